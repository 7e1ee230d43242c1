package geometry

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
	"math"
	"testing"
)

func TestAddrRoundTripIsIdempotent(t *testing.T) {
	g := New()

	cases := []struct {
		lon, lat, elev float64
		level          uint8
	}{
		{-123.0, 35.0, 0, 10},
		{-122.6, 36.1, -500, 14},
		{-121.9, 34.3, 2000, 6},
	}

	for _, c := range cases {
		addr, err := g.LonLatElevToAddr(c.lon, c.lat, c.elev, c.level)
		if err != nil {
			t.Fatalf("LonLatElevToAddr(%+v): %v", c, err)
		}

		lon, lat, elev, err := g.AddrToLonLatElev(addr)
		if err != nil {
			t.Fatalf("AddrToLonLatElev(%+v): %v", addr, err)
		}

		addr2, err := g.LonLatElevToAddr(lon, lat, elev, c.level)
		if err != nil {
			t.Fatalf("re-LonLatElevToAddr: %v", err)
		}

		if addr2 != addr {
			t.Errorf("address round-trip not idempotent: %+v -> (%v,%v,%v) -> %+v", addr, lon, lat, elev, addr2)
		}
	}
}

func TestEdgeLenLevelDuality(t *testing.T) {
	for level := uint8(0); level <= 20; level++ {
		edge := TickLen(level)
		gotLevel, ok := (&CentralCalifornia{}).Level(edge)
		if !ok {
			t.Fatalf("Level(%d) (edge for level %d) not ok", edge, level)
		}
		if gotLevel != level {
			t.Errorf("Level(TickLen(%d)) = %d, want %d", level, gotLevel, level)
		}
	}
}

func TestLevelRejectsNonPowerOfTwo(t *testing.T) {
	g := &CentralCalifornia{}
	if _, ok := g.Level(TickLen(5) - 1); ok {
		t.Errorf("Level should reject an edge length that is not an exact tick length")
	}
}

func TestFindParentContainsChild(t *testing.T) {
	g := New()
	addr, err := g.LonLatElevToAddr(-122.7, 35.8, -1000, 16)
	if err != nil {
		t.Fatalf("LonLatElevToAddr: %v", err)
	}

	cur := addr
	for level := int(addr.Level); level > 0; level-- {
		parent, ok := g.FindParent(cur)
		if !ok {
			t.Fatalf("FindParent at level %d returned !ok", level)
		}
		if parent.Level != cur.Level-1 {
			t.Fatalf("parent level = %d, want %d", parent.Level, cur.Level-1)
		}

		parentTick := TickLen(parent.Level)
		if cur.X/parentTick*parentTick != parent.X || cur.Y/parentTick*parentTick != parent.Y || cur.Z/parentTick*parentTick != parent.Z {
			t.Fatalf("parent %+v does not tick-align with child %+v", parent, cur)
		}
		cur = parent
	}

	if _, ok := g.FindParent(cur); ok {
		t.Errorf("FindParent at level 0 should return ok=false")
	}
}

func TestAncestorsWalksToRoot(t *testing.T) {
	g := New()
	addr, err := g.LonLatElevToAddr(-122.7, 35.8, -1000, 8)
	if err != nil {
		t.Fatalf("LonLatElevToAddr: %v", err)
	}

	chain := Ancestors(g, addr)
	if len(chain) != int(addr.Level)+1 {
		t.Fatalf("len(chain) = %d, want %d", len(chain), addr.Level+1)
	}
	if chain[0] != addr {
		t.Errorf("chain[0] = %+v, want %+v", chain[0], addr)
	}
	if chain[len(chain)-1].Level != 0 {
		t.Errorf("chain should end at level 0, ends at %d", chain[len(chain)-1].Level)
	}
}

func TestHorizontalEdgeIsVertExagTimesVertical(t *testing.T) {
	// At any level, one tick-cube edge spans TickLen(level) real
	// horizontal meters but only TickLen(level)/VertExag real vertical
	// meters, since r is computed in VertExag-stretched units while
	// p, q are not: horizontal edge length equals VertExag times
	// vertical edge length.
	for level := uint8(0); level <= 12; level++ {
		tick := float64(TickLen(level))
		verticalMeters := tick / VertExag
		horizontalMeters := tick
		if math.Abs(horizontalMeters-VertExag*verticalMeters) > 1e-9 {
			t.Errorf("level %d: horizontal %v != VertExag*vertical %v", level, horizontalMeters, VertExag*verticalMeters)
		}
	}
}

func TestLonLatElevToAddrClampsDeepElevation(t *testing.T) {
	g := New()
	addrClamped, err := g.LonLatElevToAddr(-122.7, 35.8, -100000, 10)
	if err != nil {
		t.Fatalf("LonLatElevToAddr (deep): %v", err)
	}
	addrFloor, err := g.LonLatElevToAddr(-122.7, 35.8, MinElevation, 10)
	if err != nil {
		t.Fatalf("LonLatElevToAddr (floor): %v", err)
	}
	if addrClamped != addrFloor {
		t.Errorf("elevation below MinElevation should clamp to the same address as MinElevation itself: got %+v vs %+v", addrClamped, addrFloor)
	}
}
