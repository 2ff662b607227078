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

// Package histogram implements two-level latency aggregation: a per-worker
// Bucket that samples into a fixed 167-band ladder, and a Histogram
// registry that opportunistically absorbs per-worker deltas and rolls a
// once-per-second summary. Merging uses Go's sync/atomic and
// sync.Mutex.TryLock rather than spin-lock-free atomics.
package histogram

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"kvbench/internal/driver"
	"kvbench/internal/logging"
)

const bucketCount = 167

const (
	statsWindow = time.Second
	mergeInterval = 10 * time.Millisecond
)

const (
	us = uint64(time.Microsecond)
	ms = uint64(time.Millisecond)
	s = uint64(time.Second)
)

var scaleFactors = [16]uint64{12, 14, 16, 18, 20, 25, 30, 35, 40, 45, 50, 60, 70, 80, 90, 100}

// kBuckets is the shared 167-entry log-ish latency ladder: 9ns, then 10
// decades of 16 sub-bands each, then a 5-entry tail out to 24h, then +Inf.
var kBuckets = buildBuckets()

func buildBuckets() [bucketCount]uint64 {
	var b [bucketCount]uint64
	b[0] = 9
	decades := [10]uint64{1, 10, 100, us, us * 10, us * 100, ms, ms * 10, ms * 100, s}
	idx := 1
	for _, decade := range decades {
		for _, f := range scaleFactors {
			b[idx] = decade * f
			idx++
		}
	}
	b[idx] = s * 5 * 60
	idx++
	b[idx] = s * 30 * 60
	idx++
	b[idx] = s * 3600 * 4
	idx++
	b[idx] = s * 3600 * 8
	idx++
	b[idx] = s * 3600 * 24
	idx++
	b[idx] = ^uint64(0)
	idx++
	if idx != bucketCount {
		panic(fmt.Sprintf("histogram: built %d buckets, want %d", idx, bucketCount))
	}
	return b
}

// locate returns the lowest index i such that kBuckets[i] >= latency,
// located by binary search.
func locate(latency uint64) int {
	return sort.Search(bucketCount, func(i int) bool { return kBuckets[i] >= latency })
}

// Stats is the set of scalar aggregates accumulated per bucket.
type Stats struct {
	N uint64
	VolumeSum uint64
	LatencySumNs uint64
	LatencySumSquare uint64
}

// processStart anchors Now's monotonic reading: every value Now returns is
// time.Since(processStart), so a delta between two Now results stays
// well-ordered even if the wall clock steps backward (an NTP correction,
// say) between the two calls. Subtracting two UnixNano values would not:
// UnixNano discards the monotonic reading time.Now() attaches, so a wall
// clock step could make a later timestamp read smaller than an earlier one
// and underflow the uint64 latency into a huge, bogus bucket.
var processStart = time.Now()

// Now returns nanoseconds elapsed since process start. Worker calls this
// (rather than keeping its own clock) so every latency delta computed
// anywhere in the process shares one monotonic reference point.
func Now() uint64 { return uint64(time.Since(processStart).Nanoseconds()) }

// Bucket is a per-worker (or, when IsWorker is false, per-kind aggregate)
// latency sample buffer.
type Bucket struct {
	registry *Histogram
	isWorker bool

	enabled bool
	kind driver.Kind

	mergeEvo int32

	min, max uint64
	wholeMin, wholeMax uint64
	checkpointNs uint64
	beginNs, endNs uint64

	last, acc Stats
	counts [bucketCount]uint64
}

// Reset prepares the bucket to start sampling a new workload kind. Called
// once per iteration, before driving that kind's ops.
func (b *Bucket) Reset(kind driver.Kind) {
	mergeEvo := b.mergeEvo
	b.enabled = true
	b.kind = kind
	b.min = ^uint64(0)
	b.wholeMin = ^uint64(0)
	now := Now()
	b.checkpointNs = now
	b.beginNs = now
	b.endNs = now
	b.mergeEvo = mergeEvo
}

// Add records one sample: latency = now - t0, with the given logical
// volume in bytes. It opportunistically attempts a non-blocking merge into
// the registry every mergeInterval.
func (b *Bucket) Add(t0 uint64, volume uint64) {
	now := Now()
	latency := now - t0

	if b.beginNs == 0 {
		b.beginNs = t0
	}
	b.endNs = now

	b.acc.LatencySumNs += latency
	b.acc.LatencySumSquare += latency * latency
	b.acc.N++
	b.acc.VolumeSum += volume

	if latency < b.min {
		b.min = latency
	}
	if latency > b.max {
		b.max = latency
	}

	b.counts[locate(latency)]++

	if b.mergeEvo != b.registry.mergeEvo.Load() || now-b.checkpointNs < uint64(mergeInterval) {
		return
	}

	if b.registry.mu.TryLock() {
		b.registry.mergeLocked(b, now)
		b.registry.mu.Unlock()

		b.checkpointNs = now
		b.min = ^uint64(0)
		b.max = 0
		b.last = b.acc
		for i := range b.counts {
			b.counts[i] = 0
		}
	}
}

// Close releases a worker bucket: if this bucket already "checked in" for
// the current merge epoch, undo that so the registry's workers_merged
// bookkeeping stays consistent with the departing worker.
func (b *Bucket) Close() {
	if !b.isWorker {
		return
	}
	if b.mergeEvo == b.registry.mergeEvo.Load()+1 {
		b.registry.workersMerged.Add(-1)
	}
	b.registry.workersActive.Add(-1)
}

// Histogram is the registry mapping workload kind to an aggregate bucket,
// plus the epoch/lock machinery merges use.
type Histogram struct {
	mu sync.Mutex

	startingPointNs uint64
	checkpointNs uint64

	mergeEvo atomic.Int32
	workersActive atomic.Int32
	workersMerged atomic.Int32

	perKind [6]*Bucket

	sink Sink
}

// Sink receives one row of aggregated metrics each time the registry rolls
// a statistics window; used to feed the optional Prometheus exporter
// (internal/metrics) without histogram depending on it directly.
type Sink interface {
	Observe(kind driver.Kind, rps, minNs, avgNs, rmsNs, maxNs, bps float64, cumulativeN uint64)
}

// New builds a registry with one aggregate bucket per workload kind,
// enabling only the kinds present in enabled.
func New(enabled driver.Mask) *Histogram {
	now := Now()
	h := &Histogram{startingPointNs: now, checkpointNs: now}
	for k := driver.Kind(0); int(k) < len(h.perKind); k++ {
		b := &Bucket{registry: h, isWorker: false}
		if enabled.Has(k) {
			b.Reset(k)
		}
		h.perKind[k] = b
	}
	return h
}

// SetSink installs an optional metrics sink; nil disables it.
func (h *Histogram) SetSink(sink Sink) { h.sink = sink }

// NewWorkerBucket registers a fresh worker bucket against the registry,
// incrementing workers_active.
func (h *Histogram) NewWorkerBucket() *Bucket {
	b := &Bucket{registry: h, isWorker: true, mergeEvo: h.mergeEvo.Load()}
	h.workersActive.Add(1)
	return b
}

// Merge unconditionally (blocking) merges src into the registry. Workers
// call this once per finished workload-kind pass, as opposed to
// Bucket.Add's opportunistic try-lock merge on the hot path.
func (h *Histogram) Merge(src *Bucket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := Now()
	h.mergeLocked(src, now)

	src.checkpointNs = now
	src.min = ^uint64(0)
	src.max = 0
	src.last = src.acc
	for i := range src.counts {
		src.counts[i] = 0
	}
}

// mergeLocked must be called with h.mu held.
func (h *Histogram) mergeLocked(src *Bucket, now uint64) {
	dst := h.perKind[src.kind]

	if !dst.enabled || src.acc.N == src.last.N {
		return
	}

	dst.acc.LatencySumNs += src.acc.LatencySumNs - src.last.LatencySumNs
	dst.acc.LatencySumSquare += src.acc.LatencySumSquare - src.last.LatencySumSquare
	dst.acc.VolumeSum += src.acc.VolumeSum - src.last.VolumeSum
	dst.acc.N += src.acc.N - src.last.N

	for i := range dst.counts {
		dst.counts[i] += src.counts[i]
	}

	if dst.beginNs == 0 || dst.beginNs > src.beginNs {
		dst.beginNs = src.beginNs
	}
	if src.endNs > dst.endNs {
		dst.endNs = src.endNs
	}
	if src.min < dst.min {
		dst.min = src.min
	}
	if src.max > dst.max {
		dst.max = src.max
	}

	if src.mergeEvo == h.mergeEvo.Load() {
		if h.summarizeLocked(now) >= sumWaiting {
			src.mergeEvo++
		}
	}
}

const (
	sumNotYet = -1
	sumWaiting = 0
	sumRolled = 1
)

// Summarize acquires the registry lock and attempts to roll the current
// statistics window. now == 0 samples the clock. It returns sumNotYet,
// sumWaiting, or sumRolled.
func (h *Histogram) Summarize(now uint64) int {
	if now == 0 {
		now = Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.summarizeLocked(now)
}

func (h *Histogram) summarizeLocked(now uint64) int {
	if now-h.checkpointNs < uint64(statsWindow) {
		return sumNotYet
	}

	merged := h.workersMerged.Add(1)
	active := h.workersActive.Load()
	if active > merged {
		return sumWaiting
	}
	if active != merged {
		logging.Fatalf("histogram: not all workers finished: active=%d, merged=%d", active, merged)
	}

	if h.checkpointNs == h.startingPointNs {
		h.logHeader()
	}

	timepoint := float64(now-h.startingPointNs) / float64(s)
	wallNs := now - h.checkpointNs
	wall := float64(wallNs) / float64(s)
	h.checkpointNs = now

	var line strings.Builder
	fmt.Fprintf(&line, "%9.3f", timepoint)

	for _, b := range h.perKind {
		if !b.enabled {
			continue
		}
		n := b.acc.N - b.last.N
		vol := b.acc.VolumeSum - b.last.VolumeSum

		fmt.Fprintf(&line, " | %5s:", b.kind)
		if n != 0 {
			rms := uint64(math.Sqrt(float64(b.acc.LatencySumSquare-b.last.LatencySumSquare) / float64(n)))
			avg := (b.acc.LatencySumNs - b.last.LatencySumNs) / n
			rps := float64(n) / wall
			bps := float64(vol) / wall

			fmt.Fprintf(&line, "%10s %10s %10s %10s %10s %12s %10s",
				formatValue(rps, ""), formatLatency(b.min), formatLatency(avg),
				formatLatency(rms), formatLatency(b.max), formatValue(bps, "bps"),
				formatValue(float64(b.acc.N), ""))

			if h.sink != nil {
				h.sink.Observe(b.kind, rps, float64(b.min), float64(avg), float64(rms), float64(b.max), bps, b.acc.N)
			}
		} else {
			fmt.Fprintf(&line, "%10s %10s %10s %10s %10s %10s %10s", "-", "-", "-", "-", "-", "-", "-")
		}

		if b.min < b.wholeMin {
			b.wholeMin = b.min
		}
		b.min = ^uint64(0)

		if b.max > b.wholeMax {
			b.wholeMax = b.max
		}
		b.max = 0

		b.last = b.acc
	}

	logging.Log.Info(line.String())

	h.workersMerged.Store(0)
	h.mergeEvo.Add(1)
	return sumRolled
}

func (h *Histogram) logHeader() {
	var line strings.Builder
	line.WriteString(" time")
	for _, b := range h.perKind {
		if b.enabled {
			fmt.Fprintf(&line, " | %5s %10s %10s %10s %10s %10s %12s %10s",
				"bench", "rps", "min", "avg", "rms", "max", "vol", "#N")
		}
	}
	logging.Log.Info(line.String())
}

// Print emits the final per-workload detail table: for each non-empty
// bucket, its latency band, count, and cumulative percentile, followed by
// totals and throughput.
func (h *Histogram) Print() {
	for _, b := range h.perKind {
		if !b.enabled || b.acc.N == 0 {
			continue
		}

		logging.Log.Infof(">>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>>> %s(%d)", b.kind, b.acc.N)
		logging.Log.Infof("[ %9s %9s ] %13s %8s %10s", "ltn_from", "ltn_to", "ops_count", "%", "p%")
		logging.Log.Info("----------------------------------------------------------")

		var totalCount uint64
		factor := 1e2 / float64(b.acc.N)
		for i := 0; i < bucketCount; i++ {
			if b.counts[i] == 0 {
				continue
			}
			totalCount += b.counts[i]

			from := uint64(0)
			if i > 0 {
				from = kBuckets[i-1]
			}
			toStr := "+Inf"
			if kBuckets[i] != ^uint64(0) {
				toStr = formatLatency(kBuckets[i] - 1)
			}

			percent := factor * float64(b.counts[i])
			percentile := factor * float64(totalCount)

			logging.Log.Infof("[ %9s, %9s ] %13d %7.2f%% %9.4f%%",
				formatLatency(from), toStr, b.counts[i], percent, percentile)
		}
		logging.Log.Info("----------------------------------------------------------")

		logging.Log.Infof("total: %9s %13d", formatLatency(b.acc.LatencySumNs), totalCount)
		logging.Log.Infof("min latency: %9s/op", formatLatency(b.wholeMin))
		logging.Log.Infof("avg latency: %9s/op", formatLatency(b.acc.LatencySumNs/b.acc.N))
		rms := uint64(math.Sqrt(float64(b.acc.LatencySumSquare) / float64(b.acc.N)))
		logging.Log.Infof("rms latency: %9s/op", formatLatency(rms))
		logging.Log.Infof("max latency: %9s/op", formatLatency(b.wholeMax))

		wall := float64(b.endNs-b.beginNs) / float64(s)
		logging.Log.Infof(" throughput: %7sops/s", formatValue(float64(b.acc.N)/wall, ""))
	}
}

// KindSummary is one workload kind's final aggregate, exported for
// machine-readable reporting (internal/report) alongside Print's
// human-readable table.
type KindSummary struct {
	Kind driver.Kind `json:"kind"`
	Count uint64
	MinLatencyNs uint64
	AvgLatencyNs uint64
	RmsLatencyNs uint64
	MaxLatencyNs uint64
	ThroughputOps float64
	VolumeSumBytes uint64
}

// Snapshot returns the final aggregate for every enabled, non-empty kind, in
// the same enum order Print uses.
func (h *Histogram) Snapshot() []KindSummary {
	var out []KindSummary
	for _, b := range h.perKind {
		if !b.enabled || b.acc.N == 0 {
			continue
		}
		rms := uint64(math.Sqrt(float64(b.acc.LatencySumSquare) / float64(b.acc.N)))
		wall := float64(b.endNs-b.beginNs) / float64(s)
		out = append(out, KindSummary{
			Kind: b.kind,
			Count: b.acc.N,
			MinLatencyNs: b.wholeMin,
			AvgLatencyNs: b.acc.LatencySumNs / b.acc.N,
			RmsLatencyNs: rms,
			MaxLatencyNs: b.wholeMax,
			ThroughputOps: float64(b.acc.N) / wall,
			VolumeSumBytes: b.acc.VolumeSum,
		})
	}
	return out
}
