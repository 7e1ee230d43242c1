// Package payload defines the fixed on-disk material-property record
// stored at every octree node, its sentinel values, and the schema
// descriptor written into the store's file header.
package payload

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
	"encoding/binary"
	"io"
	"math"
)

// NODATA is the sentinel for a missing floating-point or integer
// property value.
const (
	NODATA       float32 = -999.0
	NODATAInt    int16   = -999
	InteriorBlock int16  = -9999
	InteriorZone  int16  = -9998
)

// Record is the fixed material-property vector carried by every leaf
// and interior node. Field order is normative: it is the order written
// to disk and the order the schema descriptor enumerates.
type Record struct {
	Vp            float32 // compressional wave speed, m/s
	Vs            float32 // shear wave speed, m/s
	Density       float32 // kg/m^3
	Qp            float32 // compressional attenuation factor
	Qs            float32 // shear attenuation factor
	DepthFreeSurf float32 // depth to free surface, m
	FaultBlock    int16
	Zone          int16
}

// NumFields is the number of fields in Record, excluding the synthetic
// "Elevation" value that queries may also request.
const NumFields = 8

// FieldName is the canonical name of a Record column, in on-disk order.
var FieldName = [NumFields]string{
	"Vp", "Vs", "Density", "Qp", "Qs", "DepthFreeSurf", "FaultBlock", "Zone",
}

// Elevation is the name of the synthetic query-time-only column; it has
// no column index into Record and is computed by the caller.
const Elevation = "Elevation"

// NoData returns a Record with every field set to its NODATA sentinel.
func NoData() Record {
	return Record{
		Vp: NODATA, Vs: NODATA, Density: NODATA, Qp: NODATA, Qs: NODATA,
		DepthFreeSurf: NODATA, FaultBlock: NODATAInt, Zone: NODATAInt,
	}
}

// InteriorNoData returns a Record appropriate for a freshly created
// interior node before aggregation, using the interior tag sentinels
// rather than the leaf NODATAInt sentinel for FaultBlock/Zone.
func InteriorNoData() Record {
	return Record{
		Vp: NODATA, Vs: NODATA, Density: NODATA, Qp: NODATA, Qs: NODATA,
		DepthFreeSurf: NODATA, FaultBlock: InteriorBlock, Zone: InteriorZone,
	}
}

// FieldIndex maps a value name (including "Elevation") to a column
// index, or -1 if the name is unrecognized. Elevation maps to NumFields
// since it has no Record column of its own.
func FieldIndex(name string) int {
	for i, n := range FieldName {
		if n == name {
			return i
		}
	}
	if name == Elevation {
		return NumFields
	}
	return -1
}

// Value returns the value of the column at idx. idx == NumFields is
// invalid here; callers must synthesize Elevation themselves.
func (r Record) Value(idx int) float32 {
	switch idx {
	case 0:
		return r.Vp
	case 1:
		return r.Vs
	case 2:
		return r.Density
	case 3:
		return r.Qp
	case 4:
		return r.Qs
	case 5:
		return r.DepthFreeSurf
	case 6:
		return float32(r.FaultBlock)
	case 7:
		return float32(r.Zone)
	default:
		return NODATA
	}
}

// RecordBytes is the fixed wire size of an encoded Record:
// 6 float32 (24 bytes) + 2 int16 (4 bytes) = 28 bytes.
const RecordBytes = 4*6 + 2*2

// Encode writes r to w in the big-endian on-disk layout.
func Encode(w io.Writer, r Record) error {
	var buf [RecordBytes]byte
	binary.BigEndian.PutUint32(buf[0:4], math.Float32bits(r.Vp))
	binary.BigEndian.PutUint32(buf[4:8], math.Float32bits(r.Vs))
	binary.BigEndian.PutUint32(buf[8:12], math.Float32bits(r.Density))
	binary.BigEndian.PutUint32(buf[12:16], math.Float32bits(r.Qp))
	binary.BigEndian.PutUint32(buf[16:20], math.Float32bits(r.Qs))
	binary.BigEndian.PutUint32(buf[20:24], math.Float32bits(r.DepthFreeSurf))
	binary.BigEndian.PutUint16(buf[24:26], uint16(r.FaultBlock))
	binary.BigEndian.PutUint16(buf[26:28], uint16(r.Zone))
	_, err := w.Write(buf[:])
	return err
}

// Decode reads a Record from r in the big-endian on-disk layout.
func Decode(r io.Reader) (Record, error) {
	var buf [RecordBytes]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Record{}, err
	}
	return Record{
		Vp:            math.Float32frombits(binary.BigEndian.Uint32(buf[0:4])),
		Vs:            math.Float32frombits(binary.BigEndian.Uint32(buf[4:8])),
		Density:       math.Float32frombits(binary.BigEndian.Uint32(buf[8:12])),
		Qp:            math.Float32frombits(binary.BigEndian.Uint32(buf[12:16])),
		Qs:            math.Float32frombits(binary.BigEndian.Uint32(buf[16:20])),
		DepthFreeSurf: math.Float32frombits(binary.BigEndian.Uint32(buf[20:24])),
		FaultBlock:    int16(binary.BigEndian.Uint16(buf[24:26])),
		Zone:          int16(binary.BigEndian.Uint16(buf[26:28])),
	}, nil
}

// FieldDescriptor is one entry in the on-disk schema header: a field's
// name, type code, byte size and byte offset within a Record.
type FieldDescriptor struct {
	Name   string
	Type   byte // 'f' = float32, 'i' = int16
	Size   byte
	Offset uint16
}

// TypeFloat32 and TypeInt16 are the FieldDescriptor.Type codes used by
// the schema string published in the store's header.
const (
	TypeFloat32 = 'f'
	TypeInt16   = 'i'
)

// Schema returns the fixed field-by-field descriptor matching the
// published schema string "Vp,Vs,Density,Qp,Qs,DepthFreeSurf,FaultBlock,Zone".
func Schema() []FieldDescriptor {
	return []FieldDescriptor{
		{Name: "Vp", Type: TypeFloat32, Size: 4, Offset: 0},
		{Name: "Vs", Type: TypeFloat32, Size: 4, Offset: 4},
		{Name: "Density", Type: TypeFloat32, Size: 4, Offset: 8},
		{Name: "Qp", Type: TypeFloat32, Size: 4, Offset: 12},
		{Name: "Qs", Type: TypeFloat32, Size: 4, Offset: 16},
		{Name: "DepthFreeSurf", Type: TypeFloat32, Size: 4, Offset: 20},
		{Name: "FaultBlock", Type: TypeInt16, Size: 2, Offset: 24},
		{Name: "Zone", Type: TypeInt16, Size: 2, Offset: 26},
	}
}

// SchemaString renders the published schema string used in the header
// metadata blob, e.g. "Vp,Vs,Density,Qp,Qs,DepthFreeSurf,FaultBlock,Zone".
func SchemaString() string {
	s := ""
	for i, f := range Schema() {
		if i > 0 {
			s += ","
		}
		s += f.Name
	}
	return s
}
