package vmquery

/*
 Copyright 2019 - 2025 Crunchy Data Solutions, Inc.
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at
      http://www.apache.org/licenses/LICENSE-2.0
 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

import (
	"path/filepath"
	"testing"

	"github.com/cencalvm/geovm/internal/geometry"
	"github.com/cencalvm/geovm/internal/payload"
	"github.com/cencalvm/geovm/internal/store"
)

func buildStore(t *testing.T, name string, inserts func(s *store.Store, g geometry.Geometry)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	s, err := store.Create(path, geometry.New().Metadata(), nil, store.Config{CacheMB: 4})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	inserts(s, geometry.New())
	if err := s.Close(); err != nil {
		t.Fatalf("store.Close: %v", err)
	}
	return path
}

func TestStateMachineTransitions(t *testing.T) {
	q := New(nil)
	if q.state != Unbound {
		t.Fatalf("initial state = %v, want UNBOUND", q.state)
	}

	if _, err := q.Query(-122.7, 35.8, 0); err == nil {
		t.Errorf("Query should fail in UNBOUND state")
	}

	path := buildStore(t, "db.vm", func(s *store.Store, g geometry.Geometry) {})
	if err := q.Configure(Config{DatabasePath: path}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if q.state != Configured {
		t.Fatalf("state after Configure = %v, want CONFIGURED", q.state)
	}

	if err := q.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if q.state != Open {
		t.Fatalf("state after Open = %v, want OPEN", q.state)
	}

	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if q.state != Configured {
		t.Fatalf("state after Close = %v, want CONFIGURED", q.state)
	}
}

func TestMaxResQueryHitsFinestLeaf(t *testing.T) {
	lon, lat, elev := -122.7, 35.8, -1000.0
	path := buildStore(t, "db.vm", func(s *store.Store, g geometry.Geometry) {
		addr, err := g.LonLatElevToAddr(lon, lat, elev, 16)
		if err != nil {
			t.Fatalf("LonLatElevToAddr: %v", err)
		}
		if err := s.Insert(addr, payload.Record{Vp: 5500, Vs: 3000, DepthFreeSurf: 10}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	})

	q := New(nil)
	if err := q.Configure(Config{DatabasePath: path}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := q.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer q.Close()

	res, err := q.Query(lon, lat, elev)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !res.Hit {
		t.Fatalf("expected a hit")
	}
	if res.Record.Vp != 5500 {
		t.Errorf("Vp = %v, want 5500", res.Record.Vp)
	}
}

func TestExtendedDomainFallback(t *testing.T) {
	lon, lat, elev := -122.7, 35.8, -1000.0

	primaryPath := buildStore(t, "primary.vm", func(s *store.Store, g geometry.Geometry) {})
	extendedPath := buildStore(t, "extended.vm", func(s *store.Store, g geometry.Geometry) {
		addr, err := g.LonLatElevToAddr(lon, lat, elev, 16)
		if err != nil {
			t.Fatalf("LonLatElevToAddr: %v", err)
		}
		if err := s.Insert(addr, payload.Record{Vp: 4200}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	})

	q := New(nil)
	if err := q.Configure(Config{DatabasePath: primaryPath, ExtendedDatabasePath: extendedPath}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := q.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer q.Close()

	res, err := q.Query(lon, lat, elev)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !res.Hit {
		t.Fatalf("expected extended-domain fallback hit")
	}
	if res.Record.Vp != 4200 {
		t.Errorf("Vp = %v, want 4200 (from extended store)", res.Record.Vp)
	}
}

func TestSetResolutionModeRejectsNegativeParam(t *testing.T) {
	path := buildStore(t, "db.vm", func(s *store.Store, g geometry.Geometry) {})
	q := New(nil)
	if err := q.Configure(Config{DatabasePath: path}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := q.SetResolutionMode(FixedRes, -100); err == nil {
		t.Errorf("expected error for negative FIXEDRES parameter")
	}
	if err := q.SetResolutionMode(WaveRes, -1); err == nil {
		t.Errorf("expected error for negative WAVERES parameter")
	}
}

func TestValueByNameIncludesSyntheticElevation(t *testing.T) {
	rec := payload.Record{Vp: 5000}
	v, err := ValueByName(rec, -250, payload.Elevation)
	if err != nil {
		t.Fatalf("ValueByName: %v", err)
	}
	if v != -250 {
		t.Errorf("Elevation = %v, want -250", v)
	}

	v, err = ValueByName(rec, -250, "Vp")
	if err != nil {
		t.Fatalf("ValueByName: %v", err)
	}
	if v != 5000 {
		t.Errorf("Vp = %v, want 5000", v)
	}

	if _, err := ValueByName(rec, 0, "NotAField"); err == nil {
		t.Errorf("expected error for unknown value name")
	}
}

func TestSquashCollapsesAboveSurfaceElevation(t *testing.T) {
	lon, lat := -122.7, 35.8
	path := buildStore(t, "db.vm", func(s *store.Store, g geometry.Geometry) {
		addr, err := g.LonLatElevToAddr(lon, lat, -50, 12)
		if err != nil {
			t.Fatalf("LonLatElevToAddr: %v", err)
		}
		// DepthFreeSurf = 50 means the free surface sits at elevation -50.
		if err := s.Insert(addr, payload.Record{Vp: 5000, DepthFreeSurf: 50}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	})

	q := New(nil)
	if err := q.Configure(Config{DatabasePath: path}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	q.SetSquash(true, DefaultSquashFloor)
	if err := q.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer q.Close()

	res, err := q.Query(lon, lat, 500) // 500m above ground: should squash down
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !res.Squashed {
		t.Errorf("expected squash to trigger for an above-surface query")
	}
	if res.Elev != -50 {
		t.Errorf("squashed elevation = %v, want -50", res.Elev)
	}
	// The Elevation column is unaffected by squashing: it always uses
	// the original query elevation plus the MAXRES DepthFreeSurf.
	if want := float32(500 + 50); res.Elevation != want {
		t.Errorf("Elevation = %v, want %v", res.Elevation, want)
	}
}

func TestSquashConsistencyWithUnsquashedQuery(t *testing.T) {
	lon, lat := -122.7, 35.8
	path := buildStore(t, "db.vm", func(s *store.Store, g geometry.Geometry) {
		addr, err := g.LonLatElevToAddr(lon, lat, -50, 12)
		if err != nil {
			t.Fatalf("LonLatElevToAddr: %v", err)
		}
		if err := s.Insert(addr, payload.Record{Vp: 5000, Vs: 2500, Density: 2.3, DepthFreeSurf: 50}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	})

	squashedQuery := New(nil)
	if err := squashedQuery.Configure(Config{DatabasePath: path}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	squashedQuery.SetSquash(true, DefaultSquashFloor)
	if err := squashedQuery.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer squashedQuery.Close()

	squashed, err := squashedQuery.Query(lon, lat, 100)
	if err != nil {
		t.Fatalf("squashed Query: %v", err)
	}
	if !squashed.Squashed {
		t.Fatalf("expected squash to trigger")
	}

	unsquashedQuery := New(nil)
	if err := unsquashedQuery.Configure(Config{DatabasePath: path}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := unsquashedQuery.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer unsquashedQuery.Close()

	unsquashed, err := unsquashedQuery.Query(lon, lat, -50)
	if err != nil {
		t.Fatalf("unsquashed Query: %v", err)
	}

	if squashed.Record != unsquashed.Record {
		t.Errorf("squashed record %+v != unsquashed-at-surface record %+v", squashed.Record, unsquashed.Record)
	}
	if want := float32(150); squashed.Elevation != want {
		t.Errorf("Elevation = %v, want %v (100 + DepthFreeSurf)", squashed.Elevation, want)
	}
}
