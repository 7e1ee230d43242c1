// Package averager implements the bottom-up aggregation pass that
// turns a leaves-only source OctreeStore into a new destination store
// carrying computed interior nodes at every coarser level, used to
// answer FIXEDRES/WAVERES queries without descending to the finest
// leaves every time.
package averager

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
	log "github.com/sirupsen/logrus"

	"github.com/cencalvm/geovm/internal/geometry"
	"github.com/cencalvm/geovm/internal/payload"
	"github.com/cencalvm/geovm/internal/status"
	"github.com/cencalvm/geovm/internal/store"
)

// Averager copies a source store's leaves into a destination store and
// then computes interior nodes level by level, from the deepest leaf
// level up to the root.
type Averager struct {
	status *status.Handler
	log    *log.Entry
}

// New returns an Averager reporting through status, or a private
// Handler if status is nil.
func New(st *status.Handler) *Averager {
	if st == nil {
		st = status.New()
	}
	return &Averager{status: st, log: log.WithField("component", "averager")}
}

// Run reads every leaf from src, copies it unchanged into dst, then
// aggregates interior nodes from the deepest occupied level up to
// level 0. Running Run again against a dst built from the same src is
// idempotent: every interior node is recomputed from src's leaves, not
// from dst's previous contents.
func (a *Averager) Run(src, dst *store.Store) error {
	maxLevel := src.MaxLevel()
	a.log.Infof("averaging from level %d up to level 0", maxLevel)

	for level := 0; level <= int(maxLevel); level++ {
		for _, addr := range src.AddressesAtLevel(uint8(level)) {
			if addr.Type != geometry.Leaf {
				continue
			}
			rec, ok, err := src.Get(addr)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := dst.Insert(addr, rec); err != nil {
				return err
			}
		}
	}

	for level := int(maxLevel); level > 0; level-- {
		if err := a.aggregateLevel(dst, uint8(level)); err != nil {
			return err
		}
	}
	return nil
}

// aggregateLevel groups every node currently in dst at level into its
// level-1 parent cube, computing one interior record per distinct
// parent with at least one child present.
func (a *Averager) aggregateLevel(dst *store.Store, level uint8) error {
	children := dst.AddressesAtLevel(level)
	if len(children) == 0 {
		return nil
	}

	byParent := make(map[geometry.Address][]payload.Record)
	tick := geometry.TickLen(level - 1)

	for _, child := range children {
		rec, ok, err := dst.Get(child)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		parent := geometry.Address{
			X:     (child.X / tick) * tick,
			Y:     (child.Y / tick) * tick,
			Z:     (child.Z / tick) * tick,
			Level: level - 1,
			Type:  geometry.Interior,
		}
		byParent[parent] = append(byParent[parent], rec)
	}

	for parent, recs := range byParent {
		agg := Aggregate(recs)
		if err := dst.Insert(parent, agg); err != nil {
			return err
		}
	}
	a.log.Debugf("level %d: aggregated %d children into %d parents", level, len(children), len(byParent))
	return nil
}

// Aggregate combines sibling records into one interior record: the
// arithmetic mean of each continuous field, ignoring NODATA (an
// all-NODATA field yields NODATA), and payload.InteriorBlock /
// payload.InteriorZone sentinels for FaultBlock/Zone whenever the
// children disagree.
func Aggregate(recs []payload.Record) payload.Record {
	if len(recs) == 0 {
		return payload.InteriorNoData()
	}

	out := payload.Record{}
	fields := []struct {
		get func(payload.Record) float32
		set func(*payload.Record, float32)
	}{
		{func(r payload.Record) float32 { return r.Vp }, func(r *payload.Record, v float32) { r.Vp = v }},
		{func(r payload.Record) float32 { return r.Vs }, func(r *payload.Record, v float32) { r.Vs = v }},
		{func(r payload.Record) float32 { return r.Density }, func(r *payload.Record, v float32) { r.Density = v }},
		{func(r payload.Record) float32 { return r.Qp }, func(r *payload.Record, v float32) { r.Qp = v }},
		{func(r payload.Record) float32 { return r.Qs }, func(r *payload.Record, v float32) { r.Qs = v }},
		{func(r payload.Record) float32 { return r.DepthFreeSurf }, func(r *payload.Record, v float32) { r.DepthFreeSurf = v }},
	}

	for _, f := range fields {
		var sum float32
		var n int
		for _, r := range recs {
			v := f.get(r)
			if v == payload.NODATA {
				continue
			}
			sum += v
			n++
		}
		if n == 0 {
			f.set(&out, payload.NODATA)
		} else {
			f.set(&out, sum/float32(n))
		}
	}

	out.FaultBlock = aggregateTag(recs, func(r payload.Record) int16 { return r.FaultBlock }, payload.InteriorBlock)
	out.Zone = aggregateTag(recs, func(r payload.Record) int16 { return r.Zone }, payload.InteriorZone)

	return out
}

// aggregateTag returns the shared tag value across recs if every
// non-NODATA entry agrees, NODATAInt if every entry is NODATA, and the
// sentinel if two or more entries disagree.
func aggregateTag(recs []payload.Record, get func(payload.Record) int16, sentinel int16) int16 {
	var value int16
	seen := false
	for _, r := range recs {
		v := get(r)
		if v == payload.NODATAInt {
			continue
		}
		if !seen {
			value = v
			seen = true
			continue
		}
		if v != value {
			return sentinel
		}
	}
	if !seen {
		return payload.NODATAInt
	}
	return value
}
