// Package store implements the on-disk, page-structured octree: a
// header describing the region's geometry constants and payload
// schema, followed by fixed-size page records keyed by octree address,
// backed by an MB-budgeted page cache.
//
// The on-disk layout (a flat directory of fixed-size pages, addressed
// by file offset, built into an in-memory index at open time) is this
// implementer's choice (see DESIGN.md Open Questions).
package store

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
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/cencalvm/geovm/internal/geometry"
	"github.com/cencalvm/geovm/internal/pagecache"
	"github.com/cencalvm/geovm/internal/payload"
	"github.com/cencalvm/geovm/internal/status"
)

const magic = "GEOVM001"

// pageSize is the fixed on-disk record size: the address tuple
// (X, Y, Z uint32, Level, Type uint8) followed by a payload.Record.
const pageSize = 4 + 4 + 4 + 1 + 1 + payload.RecordBytes

// nodeKey indexes the store by the ticks and level that actually name a
// cube, deliberately dropping geometry.Address.Type: a stored leaf and
// a parent address produced by geometry.FindParent/Ancestors (which
// always stamps Type: Interior) name the same cube, so the index must
// not distinguish them by type or every nearest-ancestor search across
// a Leaf/Interior boundary would miss.
type nodeKey struct {
	X, Y, Z uint32
	Level   uint8
}

func keyOf(a geometry.Address) nodeKey {
	return nodeKey{X: a.X, Y: a.Y, Z: a.Z, Level: a.Level}
}

// indexEntry is what the in-memory index keeps per nodeKey: the page's
// file offset plus the node's actual on-disk Type (Leaf/Interior),
// needed to reconstruct a full geometry.Address for callers that care
// about it (Cursor, AddressesAtLevel).
type indexEntry struct {
	offset int64
	typ    geometry.NodeType
}

func (e indexEntry) address(k nodeKey) geometry.Address {
	return geometry.Address{X: k.X, Y: k.Y, Z: k.Z, Level: k.Level, Type: e.typ}
}

// Store is a page-structured octree held open for reading and/or
// writing. Store carries no internal locking: a single handle is not
// safe for concurrent use, though independent handles on the same file
// may be used from different goroutines.
type Store struct {
	f      *os.File
	path   string
	meta   geometry.Metadata
	schema []payload.FieldDescriptor
	user   map[string]string

	cache      *pagecache.Cache
	index      map[nodeKey]indexEntry
	headerSize int64
	nextOffset int64

	status *status.Handler
	log    *log.Entry
}

// Config configures Open/Create.
type Config struct {
	CacheMB int
	Status  *status.Handler // borrowed; nil creates a private Handler
}

// Create makes a new, empty store at path with the given geometry
// metadata and free-form user metadata, and opens it for writing.
func Create(path string, meta geometry.Metadata, user map[string]string, cfg Config) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: create %s: %w", path, err)
	}

	s, err := newStore(f, path, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.meta = meta
	s.schema = payload.Schema()
	if user == nil {
		user = map[string]string{}
	}
	s.user = user

	if err := s.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	s.log.Infof("created store %s", path)
	return s, nil
}

// Open opens an existing store at path for reading and appending.
func Open(path string, cfg Config) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	s, err := newStore(f, path, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}

	if err := s.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := s.scanIndex(); err != nil {
		f.Close()
		return nil, err
	}
	s.log.Infof("opened store %s: %d nodes", path, len(s.index))
	return s, nil
}

func newStore(f *os.File, path string, cfg Config) (*Store, error) {
	cache, err := pagecache.New(cfg.CacheMB)
	if err != nil {
		return nil, err
	}
	st := cfg.Status
	if st == nil {
		st = status.New()
	}
	return &Store{
		f:      f,
		path:   path,
		cache:  cache,
		index:  make(map[nodeKey]indexEntry),
		status: st,
		log:    log.WithField("store", path),
	}, nil
}

// Close flushes and releases the underlying file.
func (s *Store) Close() error {
	return s.f.Close()
}

// Metadata returns the geometry constants this store was created with.
func (s *Store) Metadata() geometry.Metadata {
	return s.meta
}

// UserMetadata returns the free-form metadata blob.
func (s *Store) UserMetadata() map[string]string {
	return s.user
}

// Len reports the number of nodes currently in the store.
func (s *Store) Len() int {
	return len(s.index)
}

func (s *Store) writeHeader() error {
	var buf bytes.Buffer
	buf.WriteString(magic)
	binary.Write(&buf, binary.BigEndian, uint32(1)) // version

	if err := writeBlob(&buf, s.meta); err != nil {
		return err
	}
	if err := writeBlob(&buf, s.schema); err != nil {
		return err
	}
	if err := writeBlob(&buf, s.user); err != nil {
		return err
	}

	if _, err := s.f.WriteAt(buf.Bytes(), 0); err != nil {
		return fmt.Errorf("store: write header: %w", err)
	}
	s.headerSize = int64(buf.Len())
	s.nextOffset = s.headerSize
	return nil
}

func writeBlob(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal header section: %w", err)
	}
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
	return nil
}

func (s *Store) readHeader() error {
	magicBuf := make([]byte, len(magic))
	if _, err := s.f.ReadAt(magicBuf, 0); err != nil {
		return fmt.Errorf("store: read magic: %w", err)
	}
	if string(magicBuf) != magic {
		return fmt.Errorf("store: %s is not a geovm octree store (bad magic)", s.path)
	}

	r := io.NewSectionReader(s.f, int64(len(magic)), 1<<40)
	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return fmt.Errorf("store: read version: %w", err)
	}

	if err := readBlob(r, &s.meta); err != nil {
		return fmt.Errorf("store: read geometry metadata: %w", err)
	}
	if err := readBlob(r, &s.schema); err != nil {
		return fmt.Errorf("store: read schema: %w", err)
	}
	if err := readBlob(r, &s.user); err != nil {
		return fmt.Errorf("store: read user metadata: %w", err)
	}

	offset, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	s.headerSize = int64(len(magic)) + offset
	s.nextOffset = s.headerSize
	return nil
}

func readBlob(r io.Reader, v any) error {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return err
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// scanIndex rebuilds the in-memory address->offset index by reading
// every fixed-size page record sequentially from headerSize to EOF.
func (s *Store) scanIndex() error {
	info, err := s.f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	for offset := s.headerSize; offset+int64(pageSize) <= size; offset += pageSize {
		addr, _, err := s.readPageAt(offset)
		if err != nil {
			return fmt.Errorf("store: scan page at %d: %w", offset, err)
		}
		s.index[keyOf(addr)] = indexEntry{offset: offset, typ: addr.Type}
	}
	s.nextOffset = s.headerSize + int64(len(s.index))*pageSize
	return nil
}

func encodeAddr(w io.Writer, a geometry.Address) error {
	if err := binary.Write(w, binary.BigEndian, a.X); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, a.Y); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, a.Z); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, a.Level); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, uint8(a.Type))
}

func decodeAddr(r io.Reader) (geometry.Address, error) {
	var a geometry.Address
	var typ uint8
	if err := binary.Read(r, binary.BigEndian, &a.X); err != nil {
		return a, err
	}
	if err := binary.Read(r, binary.BigEndian, &a.Y); err != nil {
		return a, err
	}
	if err := binary.Read(r, binary.BigEndian, &a.Z); err != nil {
		return a, err
	}
	if err := binary.Read(r, binary.BigEndian, &a.Level); err != nil {
		return a, err
	}
	if err := binary.Read(r, binary.BigEndian, &typ); err != nil {
		return a, err
	}
	a.Type = geometry.NodeType(typ)
	return a, nil
}

func (s *Store) readPageAt(offset int64) (geometry.Address, payload.Record, error) {
	if cached, ok := s.cache.Get(pagecache.Key(offset)); ok {
		return decodePage(cached)
	}

	buf := make([]byte, pageSize)
	if _, err := s.f.ReadAt(buf, offset); err != nil {
		return geometry.Address{}, payload.Record{}, err
	}
	s.cache.Add(pagecache.Key(offset), buf)
	return decodePage(buf)
}

func decodePage(buf []byte) (geometry.Address, payload.Record, error) {
	r := bytes.NewReader(buf)
	addr, err := decodeAddr(r)
	if err != nil {
		return geometry.Address{}, payload.Record{}, err
	}
	rec, err := payload.Decode(r)
	if err != nil {
		return geometry.Address{}, payload.Record{}, err
	}
	return addr, rec, nil
}

// isAncestor reports whether a is a strict ancestor of b: a is at a
// shallower level and b's ticks fall within a's cube.
func isAncestor(a, b geometry.Address) bool {
	if a.Level >= b.Level {
		return false
	}
	tick := geometry.TickLen(a.Level)
	mask := ^(tick - 1)
	return b.X&mask == a.X && b.Y&mask == a.Y && b.Z&mask == a.Z
}

// Insert adds a node at addr. Re-inserting the same address overwrites
// its payload. Inserting a Leaf address that is an ancestor or
// descendant of an already-present, different address fails: leaves
// must be mutually disjoint. Interior inserts are exempt from this
// check: an interior node is by construction the ancestor of the
// leaves (and coarser interiors) it aggregates, so internal/averager's
// bottom-up pass is expected to insert interior nodes that cover
// already-present descendants.
func (s *Store) Insert(addr geometry.Address, rec payload.Record) error {
	key := keyOf(addr)
	entry, exact := s.index[key]

	if addr.Type != geometry.Interior && !exact {
		for existing, existingEntry := range s.index {
			existingAddr := existingEntry.address(existing)
			if isAncestor(existingAddr, addr) || isAncestor(addr, existingAddr) {
				return fmt.Errorf("store: insert %+v is not disjoint from existing address %+v", addr, existingAddr)
			}
		}
	}

	var buf bytes.Buffer
	if err := encodeAddr(&buf, addr); err != nil {
		return err
	}
	if err := payload.Encode(&buf, rec); err != nil {
		return err
	}

	offset := entry.offset
	if !exact {
		offset = s.nextOffset
		s.nextOffset += pageSize
	}

	if _, err := s.f.WriteAt(buf.Bytes(), offset); err != nil {
		return fmt.Errorf("store: write page: %w", err)
	}
	s.cache.Add(pagecache.Key(offset), buf.Bytes())
	s.index[key] = indexEntry{offset: offset, typ: addr.Type}
	return nil
}

// Search walks addr and its ancestors (finest first) per g, returning
// the first address present in the store. A nearest-ancestor hit at a
// shallower level than addr is expected and common.
func (s *Store) Search(g geometry.Geometry, addr geometry.Address) (payload.Record, geometry.Address, bool, error) {
	for _, a := range geometry.Ancestors(g, addr) {
		entry, ok := s.index[keyOf(a)]
		if !ok {
			continue
		}
		_, rec, err := s.readPageAt(entry.offset)
		if err != nil {
			return payload.Record{}, geometry.Address{}, false, err
		}
		return rec, entry.address(keyOf(a)), true, nil
	}
	return payload.Record{}, geometry.Address{}, false, nil
}

// Cursor walks every node in the store in preorder: level-ascending,
// then (X, Y, Z)-ascending within a level, so a parent always precedes
// its descendants.
type Cursor struct {
	store  *Store
	order  []geometry.Address
	offset []int64
	i      int
}

// Cursor returns a fresh preorder cursor over the store's current
// contents.
func (s *Store) Cursor() *Cursor {
	type entry struct {
		addr   geometry.Address
		offset int64
	}
	entries := make([]entry, 0, len(s.index))
	for k, e := range s.index {
		entries = append(entries, entry{addr: e.address(k), offset: e.offset})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].addr, entries[j].addr
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})

	order := make([]geometry.Address, len(entries))
	offset := make([]int64, len(entries))
	for i, e := range entries {
		order[i] = e.addr
		offset[i] = e.offset
	}
	return &Cursor{store: s, order: order, offset: offset}
}

// Next returns the next node in preorder, or ok=false at the end.
func (c *Cursor) Next() (geometry.Address, payload.Record, bool, error) {
	if c.i >= len(c.order) {
		return geometry.Address{}, payload.Record{}, false, nil
	}
	addr := c.order[c.i]
	offset := c.offset[c.i]
	c.i++
	_, rec, err := c.store.readPageAt(offset)
	if err != nil {
		return geometry.Address{}, payload.Record{}, false, err
	}
	return addr, rec, true, nil
}

// AddressesAtLevel returns every address currently in the store at
// exactly level, in ascending (X, Y, Z) order. internal/averager uses
// this to drive its deepest-level-first aggregation pass.
func (s *Store) AddressesAtLevel(level uint8) []geometry.Address {
	out := make([]geometry.Address, 0)
	for k, e := range s.index {
		if k.Level == level {
			out = append(out, e.address(k))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].Z < out[j].Z
	})
	return out
}

// MaxLevel returns the deepest level with at least one node present.
func (s *Store) MaxLevel() uint8 {
	var max uint8
	for k := range s.index {
		if k.Level > max {
			max = k.Level
		}
	}
	return max
}

// Get returns the record stored at exactly addr's (X, Y, Z, Level),
// without ancestor fallback and regardless of addr.Type.
func (s *Store) Get(addr geometry.Address) (payload.Record, bool, error) {
	entry, ok := s.index[keyOf(addr)]
	if !ok {
		return payload.Record{}, false, nil
	}
	_, rec, err := s.readPageAt(entry.offset)
	return rec, true, err
}
