// Package geometry implements octree address arithmetic over the
// central-California Cartesian-projected domain: conversions between
// geographic coordinates (lon, lat, elev) and octree addresses
// (x, y, z, level), plus parent/ancestor and edge-length/level duality
// helpers.
//
// Geometry is deliberately exposed as an interface (Design Note §9,
// "polymorphic geometry") with CentralCalifornia as its only concrete
// implementation today, so a future region variant can be added
// without disturbing callers.
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
	"fmt"
	"math"

	"github.com/cencalvm/geovm/internal/projector"
)

// NodeType distinguishes leaves (measured data, no descendants) from
// interior nodes (computed aggregates, at least one descendant leaf).
type NodeType uint8

const (
	Leaf NodeType = iota
	Interior
)

func (t NodeType) String() string {
	if t == Leaf {
		return "LEAF"
	}
	return "INTERIOR"
}

// Address is the octree node address: integer ticks (x, y, z) into a
// cube of side ROOTLEN, at a refinement level in [0, 31], tagged with
// its node type.
type Address struct {
	X, Y, Z uint32
	Level   uint8
	Type    NodeType
}

// MaxLevel is the deepest representable octree level.
const MaxLevel = 31

// Domain geometry constants. RootLen doubles as both the tick-space
// side length and the nominal physical-meter addressable range of the
// root cube: the projector and rotate step emit planar coordinates
// directly in this same unit, so a single edgeLen(L) divides all three
// of p, q, r uniformly (see DESIGN.md Open Questions).
const (
	RootLen uint32 = 0x80000000 // 2^31 ticks == 2^31 "meters" of addressable range

	// BufferNW/BufferSW position the (small) study region away from the
	// tick-space origin after rotation.
	BufferNW float64 = 100000.0
	BufferSW float64 = 1000000.0

	// MaxElev offsets elevation into the positive tick range; paired
	// with MinElevation below this keeps z within [0, RootLen).
	MaxElev float64 = 45000.0

	// VertExag is the fixed vertical exaggeration: a tick-cube's real
	// vertical extent is 1/VertExag of its real horizontal extent.
	VertExag float64 = 4.0

	// RotationDeg rotates the projected plane so the study region's
	// long axis (the California coastal trend) aligns with the box.
	RotationDeg float64 = -40.0

	// MinElevation is the floor clamp applied by LonLatElevToAddr and,
	// once per query, by VMQuery before its OctreeStore searches.
	// -44.95km rather than an exact -45km,
	// matching the shallower of the two limits seen in practice.
	MinElevation float64 = -44950.0

	// CellsPerWavelength is the named constant for the WAVERES
	// resolution-selection rule: the coarsest level whose vertical edge
	// length is <= Vs*T*k.
	CellsPerWavelength float64 = 0.5
)

// TickLen returns the tick length of a cube at level L: 0x80000000 >> L.
func TickLen(level uint8) uint32 {
	return RootLen >> level
}

// Metadata is the free-form geometry + projector constant bundle
// written into the OctreeStore file header's metadata blob.
type Metadata struct {
	RootLen            uint32  `json:"root_len"`
	BufferNW           float64 `json:"buffer_nw"`
	BufferSW           float64 `json:"buffer_sw"`
	MaxElev            float64 `json:"max_elev"`
	VertExag           float64 `json:"vert_exag"`
	RotationDeg        float64 `json:"rotation_deg"`
	MinElevation       float64 `json:"min_elevation"`
	CellsPerWavelength float64 `json:"cells_per_wavelength"`
	CentralMeridian    float64 `json:"central_meridian_deg"`
	OriginLatitude     float64 `json:"origin_latitude_deg"`
	ScaleFactor        float64 `json:"scale_factor"`
	FalseEasting       float64 `json:"false_easting_m"`
	FalseNorthing      float64 `json:"false_northing_m"`
}

// Geometry is the capability surface a query engine and octree store
// need from a region's coordinate system.
type Geometry interface {
	LonLatElevToAddr(lon, lat, elev float64, level uint8) (Address, error)
	AddrToLonLatElev(addr Address) (lon, lat, elev float64, err error)
	EdgeLen(level uint8) uint32
	Level(edgeLen uint32) (uint8, bool)
	FindParent(addr Address) (Address, bool)
	VertExag() float64
	Metadata() Metadata
}

// CentralCalifornia is the sole concrete Geometry implementation today.
type CentralCalifornia struct {
	proj    *projector.Projector
	sinRot  float64
	cosRot  float64
}

// New returns a CentralCalifornia geometry bound to a fresh Projector.
func New() *CentralCalifornia {
	rad := RotationDeg * math.Pi / 180
	return &CentralCalifornia{
		proj:   projector.New(),
		sinRot: math.Sin(rad),
		cosRot: math.Cos(rad),
	}
}

func (g *CentralCalifornia) rotate(x, y float64) (p, q float64) {
	p = x*g.cosRot - y*g.sinRot + BufferNW
	q = x*g.sinRot + y*g.cosRot + BufferSW
	return p, q
}

func (g *CentralCalifornia) invRotate(p, q float64) (x, y float64) {
	p -= BufferNW
	q -= BufferSW
	// inverse of a rotation matrix is its transpose
	x = p*g.cosRot + q*g.sinRot
	y = -p*g.sinRot + q*g.cosRot
	return x, y
}

// EdgeLen returns the tick length of a cube at level.
func (g *CentralCalifornia) EdgeLen(level uint8) uint32 {
	return TickLen(level)
}

// Level is the exact-base-2-exponent inverse of EdgeLen: it returns
// (level, true) iff edgeLen == RootLen>>level for some level in
// [0, MaxLevel], and (0, false) otherwise.
func (g *CentralCalifornia) Level(edgeLen uint32) (uint8, bool) {
	if edgeLen == 0 || edgeLen > RootLen {
		return 0, false
	}
	for level := 0; level <= MaxLevel; level++ {
		if TickLen(uint8(level)) == edgeLen {
			return uint8(level), true
		}
		if TickLen(uint8(level)) < edgeLen {
			break
		}
	}
	return 0, false
}

// VertExag returns the fixed vertical exaggeration factor.
func (g *CentralCalifornia) VertExag() float64 {
	return VertExag
}

// Metadata returns the geometry + projector constants for this region.
func (g *CentralCalifornia) Metadata() Metadata {
	return Metadata{
		RootLen:            RootLen,
		BufferNW:           BufferNW,
		BufferSW:           BufferSW,
		MaxElev:            MaxElev,
		VertExag:           VertExag,
		RotationDeg:        RotationDeg,
		MinElevation:       MinElevation,
		CellsPerWavelength: CellsPerWavelength,
		CentralMeridian:    -123.0,
		OriginLatitude:     35.0,
		ScaleFactor:        0.9996,
		FalseEasting:       500000.0,
		FalseNorthing:      0.0,
	}
}

// clampElevation applies the -44.95km floor. Above-domain elevations
// are not clamped here; VMQuery's squash/extended-domain logic handles
// those.
func clampElevation(elev float64) float64 {
	if elev < MinElevation {
		return MinElevation
	}
	return elev
}

// LonLatElevToAddr computes the octree address at level covering
// (lon, lat, elev).
func (g *CentralCalifornia) LonLatElevToAddr(lon, lat, elev float64, level uint8) (Address, error) {
	if level > MaxLevel {
		return Address{}, fmt.Errorf("geometry: level %d exceeds MaxLevel %d", level, MaxLevel)
	}

	elev = clampElevation(elev)

	x, y, ok := g.proj.Project(lon, lat)
	if !ok {
		return Address{}, fmt.Errorf("geometry: (lon=%g, lat=%g) outside projection domain", lon, lat)
	}
	p, q := g.rotate(x, y)
	r := float64(RootLen) - (elev+MaxElev)*VertExag

	edge := float64(TickLen(level))
	tick := float64(TickLen(level))

	xi := math.Floor(p/edge) * tick
	yi := math.Floor(q/edge) * tick
	zi := math.Floor(r/edge) * tick

	if xi < 0 || yi < 0 || zi < 0 || xi >= float64(RootLen) || yi >= float64(RootLen) || zi >= float64(RootLen) {
		return Address{}, fmt.Errorf("geometry: (lon=%g, lat=%g, elev=%g) maps outside the octree domain", lon, lat, elev)
	}

	return Address{
		X:     uint32(xi),
		Y:     uint32(yi),
		Z:     uint32(zi),
		Level: level,
		Type:  Leaf,
	}, nil
}

// AddrToLonLatElev is the inverse of LonLatElevToAddr, using the cube
// center convention: add half of edgeLen(level) before unprojecting.
func (g *CentralCalifornia) AddrToLonLatElev(addr Address) (lon, lat, elev float64, err error) {
	half := float64(TickLen(addr.Level)) / 2

	p := float64(addr.X) + half
	q := float64(addr.Y) + half
	r := float64(addr.Z) + half

	x, y := g.invRotate(p, q)
	lon, lat, ok := g.proj.InvProject(x, y)
	if !ok {
		return 0, 0, 0, fmt.Errorf("geometry: address %+v unprojects outside the projection domain", addr)
	}

	elev = (float64(RootLen)-r)/VertExag - MaxElev
	return lon, lat, elev, nil
}

// FindParent returns the parent address of addr, or (zero, false) if
// addr is already at level 0 (the root has no parent).
func (g *CentralCalifornia) FindParent(addr Address) (Address, bool) {
	if addr.Level == 0 {
		return Address{}, false
	}
	parentLevel := addr.Level - 1
	tick := TickLen(parentLevel)
	return Address{
		X:     (addr.X / tick) * tick,
		Y:     (addr.Y / tick) * tick,
		Z:     (addr.Z / tick) * tick,
		Level: parentLevel,
		Type:  Interior,
	}, true
}

// Ancestors returns addr and every ancestor up to and including level 0,
// ordered from addr's own level up to the root. This is the walk
// VMQuery and OctreeStore.search use for nearest-ancestor lookups.
func Ancestors(g Geometry, addr Address) []Address {
	out := make([]Address, 0, int(addr.Level)+1)
	out = append(out, addr)
	cur := addr
	for {
		parent, ok := g.FindParent(cur)
		if !ok {
			break
		}
		out = append(out, parent)
		cur = parent
	}
	return out
}
