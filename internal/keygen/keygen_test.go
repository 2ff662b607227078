// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package keygen

import (
	"encoding/binary"
	"testing"
)

func init() {
	Init(12345)
}

func drainAllKeys(t *testing.T, k *Keyer, n uint64) map[string]struct{} {
	t.Helper()
	seen := make(map[string]struct{}, n)
	var rec Record
	for i := uint64(0); i < n; i++ {
		if err := k.Get(&rec, true); err != nil {
			t.Fatalf("Get: %v", err)
		}
		key := string(rec.Key)
		if _, dup := seen[key]; dup {
			t.Fatalf("duplicate key %q at index %d", key, i)
		}
		seen[key] = struct{}{}
	}
	return seen
}

func TestKeyerUniqueWithinSpace(t *testing.T) {
	opts := Options{Count: 5000, SpacesCount: 1, SectorsCount: 1, KeySize: 16, ValueSize: 0}
	k, err := New(0, 0, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	seen := drainAllKeys(t, k, opts.Count)
	if len(seen) != int(opts.Count) {
		t.Fatalf("got %d unique keys, want %d", len(seen), opts.Count)
	}
}

func TestKeyerSectorsCoverSameSet(t *testing.T) {
	const n, sectors = uint64(4096), uint64(4)
	opts := Options{Count: n, SpacesCount: 1, SectorsCount: sectors, KeySize: 16, ValueSize: 0}

	base, err := New(0, 0, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	baseline := drainAllKeys(t, base, n)

	for sector := uint64(1); sector < sectors; sector++ {
		k, err := New(0, sector, opts)
		if err != nil {
			t.Fatalf("New(sector=%d): %v", sector, err)
		}
		got := drainAllKeys(t, k, n)
		if len(got) != len(baseline) {
			t.Fatalf("sector %d: got %d keys, want %d", sector, len(got), len(baseline))
		}
		for key := range got {
			if _, ok := baseline[key]; !ok {
				t.Fatalf("sector %d produced key %q absent from sector 0", sector, key)
			}
		}
	}
}

func TestKeyerSpacesAreDisjoint(t *testing.T) {
	const n = uint64(4096)
	opts := Options{Count: n, SpacesCount: 4, SectorsCount: 1, KeySize: 16, ValueSize: 0}

	k1, err := New(0, 0, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	k2, err := New(1, 0, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s1 := drainAllKeys(t, k1, n)
	s2 := drainAllKeys(t, k2, n)

	for key := range s1 {
		if _, ok := s2[key]; ok {
			t.Fatalf("key %q present in both space 0 and space 1", key)
		}
	}
}

func TestKeyerBinaryRoundTrip(t *testing.T) {
	const n = uint64(2000)
	opts := Options{Count: n, SpacesCount: 1, SectorsCount: 1, KeySize: 8, ValueSize: 8, Binary: true}
	k, err := New(0, 0, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seen := make(map[uint64]struct{}, n)
	var rec Record
	for i := uint64(0); i < n; i++ {
		if err := k.Get(&rec, false); err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(rec.Key) != opts.KeySize {
			t.Fatalf("key length = %d, want %d", len(rec.Key), opts.KeySize)
		}
		if len(rec.Value) != opts.ValueSize {
			t.Fatalf("value length = %d, want %d", len(rec.Value), opts.ValueSize)
		}
		v := binary.LittleEndian.Uint64(rec.Key)
		if _, dup := seen[v]; dup {
			t.Fatalf("duplicate injected value %d at index %d", v, i)
		}
		seen[v] = struct{}{}
	}
	if len(seen) != int(n) {
		t.Fatalf("got %d unique injected values, want %d", len(seen), n)
	}
}

func TestKeyerRejectsInsufficientKeySize(t *testing.T) {
	opts := Options{Count: 1 << 40, SpacesCount: 1, SectorsCount: 1, KeySize: 1, ValueSize: 0}
	if _, err := New(0, 0, opts); err == nil {
		t.Fatalf("expected error for insufficient key size")
	}
}

func TestGetBatchMatchesSequentialGet(t *testing.T) {
	const n = uint64(64)
	opts := Options{Count: n, SpacesCount: 1, SectorsCount: 1, KeySize: 16, ValueSize: 8}

	seq, err := New(0, 0, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var seqRec Record
	seqKeys := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		if err := seq.Get(&seqRec, false); err != nil {
			t.Fatalf("Get: %v", err)
		}
		seqKeys = append(seqKeys, string(seqRec.Key))
	}

	batched, err := New(0, 0, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool, err := batched.GetBatch(int(n))
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	var batchRec Record
	for i := uint64(0); i < n; i++ {
		if err := pool.Load(&batchRec); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if string(batchRec.Key) != seqKeys[i] {
			t.Fatalf("batch key %d = %q, want %q", i, batchRec.Key, seqKeys[i])
		}
	}
	var overflow Record
	if err := pool.Load(&overflow); err == nil {
		t.Fatalf("expected Load past pool end to fail")
	}
}
