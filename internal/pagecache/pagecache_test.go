package pagecache

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

import "testing"

func TestGetMissOnEmptyCache(t *testing.T) {
	c, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.Get(Key(1)); ok {
		t.Errorf("expected miss on empty cache")
	}
	if c.Stats().Misses != 1 {
		t.Errorf("Misses = %d, want 1", c.Stats().Misses)
	}
}

func TestAddThenGetHits(t *testing.T) {
	c, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	page := []byte{1, 2, 3, 4}
	c.Add(Key(7), page)

	got, ok := c.Get(Key(7))
	if !ok {
		t.Fatalf("expected hit after Add")
	}
	if len(got) != len(page) {
		t.Errorf("got page length %d, want %d", len(got), len(page))
	}
	if c.Stats().Hits != 1 {
		t.Errorf("Hits = %d, want 1", c.Stats().Hits)
	}
}

func TestByteBudgetEvictsOldest(t *testing.T) {
	// 1 MB budget; pages of 400KB each. The 3rd page (1200KB in total)
	// should force eviction of the oldest until back within budget.
	c, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	page := make([]byte, 400*1024)
	c.Add(Key(1), page)
	c.Add(Key(2), page)
	c.Add(Key(3), page)

	if c.Stats().MemoryBytes > 1024*1024 {
		t.Fatalf("MemoryBytes = %d, exceeds 1MB budget", c.Stats().MemoryBytes)
	}
	if _, ok := c.Get(Key(1)); ok {
		t.Errorf("expected key 1 (oldest) to have been evicted to respect the byte budget")
	}
	if c.Stats().Evictions == 0 {
		t.Errorf("expected at least one eviction")
	}
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	c, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Add(Key(1), []byte{1})
	if _, ok := c.Get(Key(1)); ok {
		t.Errorf("disabled cache should never hit")
	}
}

func TestPurgeResetsOccupancy(t *testing.T) {
	c, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Add(Key(1), []byte{1, 2, 3})
	c.Purge()
	if c.Stats().MemoryBytes != 0 || c.Stats().Size != 0 {
		t.Errorf("Purge did not reset occupancy: %+v", c.Stats())
	}
}
