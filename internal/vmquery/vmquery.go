// Package vmquery implements VMQuery, the multi-resolution query
// engine over one (or two, with an extended-domain fallback) octree
// stores: resolution selection (MAXRES, FIXEDRES, WAVERES),
// value-by-name extraction with a synthetic Elevation column, squash
// mode, and a small UNBOUND -> CONFIGURED -> OPEN state machine
// mirroring the store/averager lifecycle.
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
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/cencalvm/geovm/internal/geometry"
	"github.com/cencalvm/geovm/internal/payload"
	"github.com/cencalvm/geovm/internal/status"
	"github.com/cencalvm/geovm/internal/store"
)

// State is VMQuery's lifecycle stage.
type State int

const (
	Unbound State = iota
	Configured
	Open
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "UNBOUND"
	case Configured:
		return "CONFIGURED"
	case Open:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// ResolutionMode selects how VMQuery picks the octree level to query at.
type ResolutionMode int

const (
	// MaxRes always descends to the finest available node (the
	// nearest ancestor of the deepest representable level).
	MaxRes ResolutionMode = iota
	// FixedRes targets the level whose edge length best matches a
	// caller-specified resolution in meters.
	FixedRes
	// WaveRes targets the coarsest level that still resolves a
	// caller-specified minimum shear-wave period, per
	// geometry.CellsPerWavelength.
	WaveRes
)

// DefaultSquashFloor is the default squash-mode elevation floor:
// squashing an above-surface query down onto the free surface is only
// applied when the surface itself sits above this floor, guarding
// against collapsing a query onto a wildly unrealistic DepthFreeSurf
// value.
const DefaultSquashFloor = -2000.0

// Config holds the paths and cache budget VMQuery opens its store(s)
// with.
type Config struct {
	DatabasePath         string
	ExtendedDatabasePath string // optional; "" disables the fallback
	CacheMB              int
}

// VMQuery is a single query handle. A handle carries no internal
// reentrancy protection, but independent handles (even against the
// same files) may be used from different goroutines.
type VMQuery struct {
	state State
	cfg   Config

	geom     geometry.Geometry
	primary  *store.Store
	extended *store.Store

	mode       ResolutionMode
	fixedResM  float64
	waveResSec float64

	squashEnabled bool
	squashFloor   float64

	status *status.Handler
	log    *log.Entry
}

// New returns a VMQuery in the UNBOUND state, with MAXRES as the
// default resolution mode and squash mode disabled, reporting through
// st (a private Handler is created if st is nil).
func New(st *status.Handler) *VMQuery {
	if st == nil {
		st = status.New()
	}
	return &VMQuery{
		state:       Unbound,
		geom:        geometry.New(),
		mode:        MaxRes,
		squashFloor: DefaultSquashFloor,
		status:      st,
		log:         log.WithField("component", "vmquery"),
	}
}

// Configure binds database paths and moves UNBOUND -> CONFIGURED.
// Configure may also be called again from CONFIGURED to change paths
// before Open.
func (q *VMQuery) Configure(cfg Config) error {
	if q.state == Open {
		return fmt.Errorf("vmquery: cannot Configure while OPEN")
	}
	q.cfg = cfg
	q.state = Configured
	return nil
}

// SetResolutionMode selects MAXRES, FIXEDRES (param = meters), or
// WAVERES (param = minimum period, seconds). Valid in CONFIGURED or
// OPEN.
func (q *VMQuery) SetResolutionMode(mode ResolutionMode, param float64) error {
	if q.state == Unbound {
		return fmt.Errorf("vmquery: SetResolutionMode requires CONFIGURED or OPEN state")
	}
	if (mode == FixedRes || mode == WaveRes) && param < 0 {
		q.status.Errorf("vmquery: negative resolution parameter %v", param)
		return fmt.Errorf("vmquery: resolution parameter must be non-negative, got %v", param)
	}
	q.mode = mode
	switch mode {
	case FixedRes:
		q.fixedResM = param
	case WaveRes:
		q.waveResSec = param
	}
	return nil
}

// SetSquash enables or disables squash mode with the given floor.
func (q *VMQuery) SetSquash(enabled bool, floor float64) {
	q.squashEnabled = enabled
	q.squashFloor = floor
}

// Open opens the configured store(s) and moves CONFIGURED -> OPEN.
func (q *VMQuery) Open() error {
	if q.state != Configured {
		return fmt.Errorf("vmquery: Open requires CONFIGURED state, have %v", q.state)
	}
	primary, err := store.Open(q.cfg.DatabasePath, store.Config{CacheMB: q.cfg.CacheMB, Status: q.status})
	if err != nil {
		q.status.Errorf("vmquery: open primary database: %v", err)
		return err
	}
	q.primary = primary

	if q.cfg.ExtendedDatabasePath != "" {
		extended, err := store.Open(q.cfg.ExtendedDatabasePath, store.Config{CacheMB: q.cfg.CacheMB, Status: q.status})
		if err != nil {
			primary.Close()
			q.status.Errorf("vmquery: open extended database: %v", err)
			return err
		}
		q.extended = extended
	}

	q.state = Open
	q.log.Infof("opened: primary=%s extended=%s mode=%v", q.cfg.DatabasePath, q.cfg.ExtendedDatabasePath, q.mode)
	return nil
}

// Close releases the open store(s) and moves OPEN -> CONFIGURED.
func (q *VMQuery) Close() error {
	if q.state != Open {
		return nil
	}
	var err error
	if q.primary != nil {
		err = q.primary.Close()
		q.primary = nil
	}
	if q.extended != nil {
		if e := q.extended.Close(); e != nil && err == nil {
			err = e
		}
		q.extended = nil
	}
	q.state = Configured
	return err
}

// Result is the outcome of a single point query.
type Result struct {
	Record   payload.Record
	Addr     geometry.Address
	Elev     float64
	Hit      bool
	Squashed bool

	// Elevation is the synthetic "Elevation" query value: queryElev +
	// DepthFreeSurf, where DepthFreeSurf always comes from a MAXRES
	// lookup regardless of the active resolution mode or squash
	// (spec.md §4.6.2). payload.NODATA if no MAXRES node covers the
	// point or its DepthFreeSurf is itself NODATA.
	Elevation float32
}

// Query resolves (lon, lat, elev) to a record at the level selected by
// the active resolution mode. On a miss against the primary store, and
// only then, the extended-domain store (if configured) is tried; the
// first hit wins.
func (q *VMQuery) Query(lon, lat, elev float64) (Result, error) {
	if q.state != Open {
		return Result{}, fmt.Errorf("vmquery: Query requires OPEN state, have %v", q.state)
	}

	queryElev := clampElevation(elev)

	// The free-surface depth never varies with resolution mode, so it
	// is always resolved via a MAXRES lookup; both squash and the
	// synthetic Elevation column reuse this one probe (spec.md §4.6.2,
	// §4.6.3).
	maxResProbe, err := q.queryAt(lon, lat, queryElev, geometry.MaxLevel)
	if err != nil {
		return Result{}, err
	}
	haveDepth := maxResProbe.Hit && maxResProbe.Record.DepthFreeSurf != payload.NODATA

	level, err := q.resolveLevel(maxResProbe)
	if err != nil {
		return Result{}, err
	}

	finalElev := queryElev
	squashed := false
	if q.squashEnabled && haveDepth {
		surfaceElev := -float64(maxResProbe.Record.DepthFreeSurf)
		if queryElev > surfaceElev && surfaceElev > q.squashFloor {
			finalElev = surfaceElev
			squashed = true
		}
	}

	res, err := q.queryAt(lon, lat, finalElev, level)
	if err != nil {
		return Result{}, err
	}
	res.Squashed = squashed
	res.Elev = finalElev
	if haveDepth {
		res.Elevation = float32(queryElev) + maxResProbe.Record.DepthFreeSurf
	} else {
		res.Elevation = payload.NODATA
	}

	if !res.Hit {
		q.status.Warningf("vmquery: no data at (lon=%v, lat=%v, elev=%v)", lon, lat, finalElev)
	}
	return res, nil
}

func clampElevation(elev float64) float64 {
	if elev < geometry.MinElevation {
		return geometry.MinElevation
	}
	return elev
}

func (q *VMQuery) queryAt(lon, lat, elev float64, level uint8) (Result, error) {
	addr, err := q.geom.LonLatElevToAddr(lon, lat, elev, level)
	if err != nil {
		return Result{}, err
	}

	rec, hitAddr, ok, err := q.primary.Search(q.geom, addr)
	if err != nil {
		return Result{}, err
	}
	if ok {
		return Result{Record: rec, Addr: hitAddr, Hit: true}, nil
	}

	if q.extended != nil {
		rec, hitAddr, ok, err := q.extended.Search(q.geom, addr)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return Result{Record: rec, Addr: hitAddr, Hit: true}, nil
		}
	}

	return Result{Hit: false}, nil
}

// resolveLevel picks the octree level to query at, per the active
// resolution mode. maxResProbe is the MAXRES lookup already performed
// by Query for the free-surface depth; WAVERES reuses its Vs estimate
// rather than querying a second time (spec.md §4.6.1).
func (q *VMQuery) resolveLevel(maxResProbe Result) (uint8, error) {
	switch q.mode {
	case MaxRes:
		return geometry.MaxLevel, nil

	case FixedRes:
		target := q.fixedResM * q.geom.VertExag()
		return coarsestLevelWithTickAtMost(target), nil

	case WaveRes:
		vs := float64(maxResProbe.Record.Vs)
		if !maxResProbe.Hit || vs <= 0 {
			return geometry.MaxLevel, nil
		}
		meta := q.geom.Metadata()
		targetVertical := vs * q.waveResSec * meta.CellsPerWavelength
		targetTicks := targetVertical * meta.VertExag
		return coarsestLevelWithTickAtMost(targetTicks), nil

	default:
		return 0, fmt.Errorf("vmquery: unknown resolution mode %v", q.mode)
	}
}

// coarsestLevelWithTickAtMost returns the smallest level (coarsest
// cube) whose tick length does not exceed target, or MaxLevel if even
// the finest representable cube is too coarse.
func coarsestLevelWithTickAtMost(target float64) uint8 {
	for level := uint8(0); level <= geometry.MaxLevel; level++ {
		if float64(geometry.TickLen(level)) <= target {
			return level
		}
	}
	return geometry.MaxLevel
}

// ValueByName returns the named field's value from rec, substituting
// elevation for the synthetic "Elevation" column (payload.Elevation).
// Callers pass Result.Elevation here, not Result.Elev.
func ValueByName(rec payload.Record, elevation float64, name string) (float32, error) {
	idx := payload.FieldIndex(name)
	switch {
	case idx < 0:
		return 0, fmt.Errorf("vmquery: unknown value name %q", name)
	case idx == payload.NumFields:
		return float32(elevation), nil
	default:
		return rec.Value(idx), nil
	}
}
