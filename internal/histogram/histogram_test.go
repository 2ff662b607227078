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

package histogram

import (
	"testing"
	"time"

	"kvbench/internal/driver"
)

func TestBucketBoundariesMonotonicAndComplete(t *testing.T) {
	if len(kBuckets) != bucketCount {
		t.Fatalf("len(kBuckets) = %d, want %d", len(kBuckets), bucketCount)
	}
	for i := 1; i < bucketCount; i++ {
		if kBuckets[i] <= kBuckets[i-1] {
			t.Fatalf("kBuckets[%d] = %d not strictly greater than kBuckets[%d] = %d", i, kBuckets[i], i-1, kBuckets[i-1])
		}
	}
	if kBuckets[bucketCount-1] != ^uint64(0) {
		t.Fatalf("last bucket boundary = %d, want max uint64", kBuckets[bucketCount-1])
	}
}

func TestLocateFindsLowestQualifyingBucket(t *testing.T) {
	for i, boundary := range kBuckets {
		got := locate(boundary)
		if got != i {
			t.Fatalf("locate(%d) = %d, want %d", boundary, got, i)
		}
	}
	if got := locate(0); got != 0 {
		t.Fatalf("locate(0) = %d, want 0", got)
	}
}

func TestNewWorkerBucketTracksActiveCount(t *testing.T) {
	h := New(driver.Set.Bit())
	if got := h.workersActive.Load(); got != 0 {
		t.Fatalf("workersActive = %d, want 0", got)
	}

	b1 := h.NewWorkerBucket()
	b2 := h.NewWorkerBucket()
	if got := h.workersActive.Load(); got != 2 {
		t.Fatalf("workersActive = %d, want 2", got)
	}

	b1.Close()
	if got := h.workersActive.Load(); got != 1 {
		t.Fatalf("workersActive = %d, want 1", got)
	}
	b2.Close()
	if got := h.workersActive.Load(); got != 0 {
		t.Fatalf("workersActive = %d, want 0", got)
	}
}

func TestMergeAccumulatesIntoAggregateBucket(t *testing.T) {
	h := New(driver.Set.Bit())
	worker := h.NewWorkerBucket()
	worker.Reset(driver.Set)

	const n = 10
	t0 := Now()
	for i := 0; i < n; i++ {
		worker.Add(t0, 128)
	}

	h.Merge(worker)

	agg := h.perKind[driver.Set]
	if agg.acc.N != n {
		t.Fatalf("aggregate N = %d, want %d", agg.acc.N, n)
	}
	if agg.acc.VolumeSum != n*128 {
		t.Fatalf("aggregate VolumeSum = %d, want %d", agg.acc.VolumeSum, n*128)
	}

	// A second merge with no new samples must be a no-op.
	h.Merge(worker)
	if agg.acc.N != n {
		t.Fatalf("aggregate N after no-op merge = %d, want %d", agg.acc.N, n)
	}
}

func TestSummarizeNotYetBeforeWindowElapses(t *testing.T) {
	h := New(driver.Get.Bit())
	worker := h.NewWorkerBucket()
	worker.Reset(driver.Get)
	worker.Add(Now(), 0)
	h.Merge(worker)

	if got := h.Summarize(h.checkpointNs + 1); got != sumNotYet {
		t.Fatalf("Summarize before window elapsed = %d, want sumNotYet", got)
	}
}

func TestSummarizeWaitsForAllActiveWorkers(t *testing.T) {
	h := New(driver.Get.Bit())
	w1 := h.NewWorkerBucket()
	w2 := h.NewWorkerBucket()
	w1.Reset(driver.Get)
	w2.Reset(driver.Get)
	w1.Add(Now(), 0)
	w2.Add(Now(), 0)
	h.Merge(w1)
	h.Merge(w2)

	future := h.checkpointNs + uint64(statsWindow) + 1

	h.mu.Lock()
	first := h.summarizeLocked(future)
	h.mu.Unlock()
	if first != sumWaiting {
		t.Fatalf("first summarizeLocked = %d, want sumWaiting", first)
	}

	h.mu.Lock()
	second := h.summarizeLocked(future)
	h.mu.Unlock()
	if second != sumRolled {
		t.Fatalf("second summarizeLocked = %d, want sumRolled", second)
	}
}

func TestBucketCloseUndoesCheckedInMerge(t *testing.T) {
	h := New(driver.Delete.Bit())
	w := h.NewWorkerBucket()
	w.Reset(driver.Delete)
	w.Add(Now(), 0)

	h.mu.Lock()
	h.mergeLocked(w, Now())
	h.mu.Unlock()

	if w.mergeEvo != h.mergeEvo.Load()+1 {
		t.Skip("worker did not check in for the current epoch under this timing; nothing to undo")
	}

	before := h.workersMerged.Load()
	w.Close()
	if got := h.workersMerged.Load(); got != before-1 {
		t.Fatalf("workersMerged after Close = %d, want %d", got, before-1)
	}
}

func TestFormatLatencyPicksLargestUnit(t *testing.T) {
	cases := []struct {
		ns uint64
		want string
	}{
		{500, "500ns"},
		{uint64(1500 * time.Nanosecond), "1.500us"},
		{uint64(2 * time.Microsecond), "2.000us"},
		{uint64(3 * time.Millisecond), "3.000ms"},
		{uint64(4 * time.Second), "4.000s"},
	}
	for _, c := range cases {
		if got := formatLatency(c.ns); got != c.want {
			t.Errorf("formatLatency(%d) = %q, want %q", c.ns, got, c.want)
		}
	}
}
