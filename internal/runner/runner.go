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

// Package runner coordinates a benchmark cohort: it assigns disjoint
// keyspace slices to a pool of read and write workers, releases them
// through a pair of start/finish barriers, and folds the resulting
// histogram and resource-usage deltas into the final report.
package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"kvbench/internal/config"
	"kvbench/internal/driver"
	"kvbench/internal/histogram"
	"kvbench/internal/keygen"
	"kvbench/internal/logging"
	"kvbench/internal/resource"
	"kvbench/internal/worker"
)

// barrier is a single-use rendezvous point for a fixed number of parties,
// the Go analogue of pthread_barrier_t here since every run needs exactly
// two (start and finish).
type barrier struct {
	wg sync.WaitGroup
}

func newBarrier(parties int) *barrier {
	b := &barrier{}
	b.wg.Add(parties)
	return b
}

func (b *barrier) arrive() {
	b.wg.Done()
	b.wg.Wait()
}

// Runner owns the driver and histogram registry for one benchmark
// execution and drives it from Init through Run.
type Runner struct {
	cfg *config.Config
	drv driver.Driver
	histograms *histogram.Histogram
	dataDir string

	setRead, setWrite driver.Mask
	keyerOpts keygen.Options

	failed atomic.Bool
	beforeOpenRAM int64
}

// New constructs a Runner. dataDir is the driver-specific subdirectory
// under Config.DirName.
func New(cfg *config.Config, drv driver.Driver, histograms *histogram.Histogram, dataDir string) *Runner {
	return &Runner{cfg: cfg, drv: drv, histograms: histograms, dataDir: dataDir}
}

// Init samples pre-open resource usage, opens the driver, and computes the
// keyspace layout : sectors = max(1, rthr, wthr), spaces =
// max(1, wthr), doubled if any two-keyspace kind is in the write set.
func (r *Runner) Init(ctx context.Context) error {
	before, err := resource.Load(r.dataDir)
	if err != nil {
		return fmt.Errorf("runner: sampling resources before open: %w", err)
	}
	r.beforeOpenRAM = before.RAM

	if err := r.drv.Open(ctx, driver.Options{
		DataDir: r.dataDir,
		SyncMode: r.cfg.SyncMode,
		WalMode: r.cfg.WalMode,
		Binary: r.cfg.Binary,
	}); err != nil {
		return fmt.Errorf("runner: open %s: %w", r.drv.Name(), err)
	}

	r.cfg.Benchmarks.ForEach(func(kind driver.Kind) {
		if kind == driver.Get || kind == driver.Iterate {
			r.setRead = r.setRead.Add(kind)
		} else {
			r.setWrite = r.setWrite.Add(kind)
		}
	})

	if r.setRead.Empty() && r.setWrite.Empty() {
		return fmt.Errorf("runner: there are no tasks for either reading or writing")
	}

	readThreads := r.cfg.ReadThreads
	if readThreads != 0 && r.setRead.Empty() {
		readThreads = 0
	}
	writeThreads := r.cfg.WriteThreads
	if writeThreads != 0 && r.setWrite.Empty() {
		writeThreads = 0
	}
	r.cfg.ReadThreads = readThreads
	r.cfg.WriteThreads = writeThreads

	sectors := max64(1, uint64(readThreads), uint64(writeThreads))
	spaces := max64(1, uint64(writeThreads))
	if r.setWrite&driver.MaskTwoKeyspace != 0 {
		spaces *= 2
	}

	r.keyerOpts = keygen.Options{
		Count: r.cfg.Count,
		KeySize: r.cfg.KeySize,
		ValueSize: r.cfg.ValueSize,
		SpacesCount: spaces,
		SectorsCount: sectors,
		Binary: r.cfg.Binary,
	}

	return nil
}

func max64(vals ...uint64) uint64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func (r *Runner) workerParams() worker.Params {
	return worker.Params{
		Count: r.cfg.Count,
		BatchLength: r.cfg.BatchLength,
		Nrepeat: r.cfg.Nrepeat,
		ContinuousCompleting: r.cfg.ContinuousCompleting,
		IgnoreKeyNotFound: r.cfg.IgnoreKeyNotFound,
	}
}

// runWorkersPool builds count workers consuming kinds from set (round-
// robining across kinds when Config.Separate is set), advancing *nth and
// *keySpace as it goes to keep each worker's key-space slice disjoint.
func (r *Runner) runWorkersPool(count int, nth *int, rotator *driver.Mask, set driver.Mask, keySpace *uint64) ([]*worker.Worker, error) {
	workers := make([]*worker.Worker, 0, count)

	for n := 0; n < count; n++ {
		if *rotator == 0 {
			*rotator = set
		}

		mask := *rotator
		if r.cfg.Separate {
			order := driver.Kind(0)
			mask = 0
			for mask == 0 {
				mask = *rotator & order.Bit()
				order = (order + 1) % driver.NumKinds
			}
		}

		if mask&driver.MaskWrite != 0 {
			*keySpace++
			if mask&driver.MaskTwoKeyspace != 0 {
				*keySpace++
			}
		}

		*nth++
		w, err := worker.New(*nth, mask, *keySpace, uint64(*nth), r.keyerOpts, r.workerParams(), r.drv, r.histograms, &r.failed)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)

		*rotator &^= mask
	}

	return workers, nil
}

// Run assigns and releases the worker pool, running one extra "coordinator"
// worker (the union of every selected kind) on the calling goroutine, then
// folds and prints the histogram and resource-usage report.
func (r *Runner) Run() error {
	var nth int
	var keySpace uint64

	rotRead, rotWrite := r.setRead, r.setWrite
	readWorkers, err := r.runWorkersPool(r.cfg.ReadThreads, &nth, &rotRead, r.setRead, &keySpace)
	if err != nil {
		return err
	}
	writeWorkers, err := r.runWorkersPool(r.cfg.WriteThreads, &nth, &rotWrite, r.setWrite, &keySpace)
	if err != nil {
		return err
	}
	pool := append(readWorkers, writeWorkers...)

	rusageStart, err := resource.Load(r.dataDir)
	if err != nil {
		return err
	}

	combined := r.setRead | r.setWrite
	parties := len(pool) + 1
	start := newBarrier(parties)
	finish := newBarrier(parties)

	var wg sync.WaitGroup
	for _, w := range pool {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			start.arrive()
			err := w.FulFil()
			finish.arrive()
			w.Close()
			if err != nil {
				logging.Log.Errorf("worker failed: %v", err)
				r.failed.Store(true)
			}
		}(w)
	}

	start.arrive()

	if !combined.Empty() {
		coordinator, err := worker.New(0, combined, 0, 0, r.keyerOpts, r.workerParams(), r.drv, r.histograms, &r.failed)
		if err != nil {
			return err
		}
		if err := coordinator.FulFil(); err != nil {
			logging.Log.Errorf("coordinator failed: %v", err)
			r.failed.Store(true)
		}
		coordinator.Close()
	}

	finish.arrive()
	wg.Wait()

	rusageFinish, err := resource.Load(r.dataDir)
	if err != nil {
		return err
	}

	if r.failed.Load() {
		return fmt.Errorf("runner: one or more workers failed")
	}

	r.histograms.Summarize(0)
	logging.Log.Info("complete.")
	r.histograms.Print()

	rusageStart.RAM = r.beforeOpenRAM
	rusageStart.Disk = 0
	resource.Print(rusageStart, rusageFinish)

	return nil
}

// Close releases the driver, matching Runner's destructor.
func (r *Runner) Close() error {
	return r.drv.Close()
}
