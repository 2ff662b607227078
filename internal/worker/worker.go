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

// Package worker drives one goroutine's share of a benchmark cohort: it
// owns one or two key generators, a per-worker latency bucket, and the
// per-kind evaluators that translate a workload kind into Driver calls.
package worker

import (
	"fmt"
	"sync/atomic"

	"kvbench/internal/driver"
	"kvbench/internal/histogram"
	"kvbench/internal/keygen"
	"kvbench/internal/logging"
)

// workersCount and doersDone are process-wide: doersDone lets a worker
// running past its own nrepeat quota know whether the rest of the cohort
// is done too, for continuous-completing mode.
var (
	workersCount atomic.Int32
	doersDone atomic.Int32
)

// Params carries the subset of run configuration a Worker needs, keeping
// this package independent of internal/config.
type Params struct {
	Count uint64
	BatchLength int
	Nrepeat uint64
	ContinuousCompleting bool
	IgnoreKeyNotFound bool
}

// Worker executes benchMask against drv until Nrepeat passes complete (or,
// in continuous-completing mode, until the whole cohort has).
type Worker struct {
	id int
	keySpace uint64
	keySeq uint64
	benchMask driver.Mask
	params Params

	drv driver.Driver
	histograms *histogram.Histogram
	hg *histogram.Bucket
	failed *atomic.Bool

	genA, genB *keygen.Keyer
	ctx driver.Context
}

// New constructs a Worker for one cohort seat. keySpace/keySequence select
// the disjoint keyspace slice this worker owns; keyerOpts is shared across
// the whole cohort.
func New(id int, benchMask driver.Mask, keySpace, keySequence uint64, keyerOpts keygen.Options, params Params, drv driver.Driver, histograms *histogram.Histogram, failed *atomic.Bool) (*Worker, error) {
	if benchMask.Empty() {
		logging.Fatalf("worker.%d: there is no tasks for the worker: %#x", id, uint8(benchMask))
	}

	workersCount.Add(1)

	genA, err := keygen.New(keySpace, keySequence, keyerOpts)
	if err != nil {
		return nil, fmt.Errorf("worker.%d: %w", id, err)
	}

	w := &Worker{
		id: id,
		keySpace: keySpace,
		keySeq: keySequence,
		benchMask: benchMask,
		params: params,
		drv: drv,
		histograms: histograms,
		hg: histograms.NewWorkerBucket(),
		failed: failed,
		genA: genA,
	}

	if benchMask&driver.MaskTwoKeyspace != 0 {
		genB, err := keygen.New(keySpace+1, keySequence, keyerOpts)
		if err != nil {
			return nil, fmt.Errorf("worker.%d: %w", id, err)
		}
		w.genB = genB
		logging.Log.Infof("worker.%d: %s, key-space %d and %d, key-sequence %d", id, benchMask, keySpace, keySpace+1, keySequence)
	} else {
		logging.Log.Infof("worker.%d: %s, key-space %d, key-sequence %d", id, benchMask, keySpace, keySequence)
	}

	return w, nil
}

// Close releases the worker's bucket registration. Call once, after FulFil
// returns.
func (w *Worker) Close() {
	w.hg.Close()
	workersCount.Add(-1)
}

// FulFil drives benchMask to completion: nrepeat passes over
// every enabled kind (in enum order), each pass resetting the bucket and
// merging it into the registry once the kind's count operations finish.
func (w *Worker) FulFil() error {
	ctx, err := w.drv.ThreadNew()
	if err != nil {
		return fmt.Errorf("worker.%d: thread_new: %w", w.id, err)
	}
	w.ctx = ctx
	defer func() {
		w.drv.ThreadDispose(w.ctx)
		w.ctx = nil
	}()

	var count uint64
	rc := driver.Ok
	for count < w.params.Nrepeat || (w.params.ContinuousCompleting && doersDone.Load() < workersCount.Load()) {
		rc = driver.Ok

		for kind := driver.Kind(0); rc == driver.Ok && kind < driver.NumKinds; kind++ {
			if !w.benchMask.Has(kind) {
				continue
			}
			w.hg.Reset(kind)

			for i := uint64(0); rc == driver.Ok && i < w.params.Count; {
				switch kind {
				case driver.Set, driver.Delete, driver.Get:
					rc = w.evalGST(kind)
					i++
				case driver.Crud:
					rc = w.evalCrudBenchmark()
					i++
				case driver.Batch:
					rc, i = w.evalBatch(i)
				case driver.Iterate:
					rc, i = w.evalIterate(i)
				}
			}

			w.histograms.Merge(w.hg)
		}

		count++
		if count == w.params.Nrepeat {
			doersDone.Add(1)
		}
		if rc != driver.Ok || w.failed.Load() {
			break
		}
	}

	if rc != driver.Ok {
		return fmt.Errorf("worker.%d: %w", w.id, &driver.ResultError{Op: "fulfil", Result: rc})
	}
	return nil
}

func (w *Worker) logKeyNotFound(op string, rec *driver.Record) {
	logging.Log.Debugf("worker.%d: %s: key not found: %q", w.id, op, rec.Key)
}

// evalGST evaluates one Set/Get/Delete op: generate, time a Begin/Next/Done
// block, and record its latency.
func (w *Worker) evalGST(kind driver.Kind) driver.Result {
	var rec keygen.Record
	if err := w.genA.Get(&rec, kind != driver.Set); err != nil {
		return driver.UnexpectedError
	}
	drec := driver.Record{Key: rec.Key, Value: rec.Value}

	t0 := histogram.Now()
	rc := w.drv.Begin(w.ctx, kind)
	if rc == driver.Ok {
		rc = w.drv.Next(w.ctx, kind, &drec)
	}
	rc2 := w.drv.Done(w.ctx, kind)

	volume := len(drec.Key) + len(drec.Value)
	if kind == driver.Delete {
		volume = len(drec.Key)
	}
	w.hg.Add(t0, uint64(volume))

	if rc == driver.NotFound {
		w.logKeyNotFound(kind.String(), &drec)
		if w.params.IgnoreKeyNotFound {
			rc = driver.Ok
		}
	}
	if rc == driver.Ok {
		rc = rc2
	}
	if rc != driver.Ok {
		return rc
	}
	return driver.Ok
}

// evalCrud runs the four-op set/set/delete/get sequence shared by the Crud
// and Batch kinds.
func (w *Worker) evalCrud(a, b *driver.Record) driver.Result {
	if rc := w.drv.Next(w.ctx, driver.Set, b); rc != driver.Ok {
		return rc
	}
	if rc := w.drv.Next(w.ctx, driver.Set, a); rc != driver.Ok {
		return rc
	}
	if rc := w.drv.Next(w.ctx, driver.Delete, b); rc != driver.Ok {
		if rc == driver.NotFound {
			w.logKeyNotFound("crud.del", b)
			if !w.params.IgnoreKeyNotFound {
				return driver.NotFound
			}
		} else {
			return rc
		}
	}
	if rc := w.drv.Next(w.ctx, driver.Get, a); rc != driver.Ok {
		if rc == driver.NotFound {
			w.logKeyNotFound("crud.get", a)
			if !w.params.IgnoreKeyNotFound {
				return driver.NotFound
			}
		} else {
			return rc
		}
	}
	return driver.Ok
}

func (w *Worker) evalCrudBenchmark() driver.Result {
	var recA, recB keygen.Record
	if err := w.genA.Get(&recA, false); err != nil {
		return driver.UnexpectedError
	}
	if err := w.genB.Get(&recB, false); err != nil {
		return driver.UnexpectedError
	}
	a := driver.Record{Key: recA.Key, Value: recA.Value}
	b := driver.Record{Key: recB.Key, Value: recB.Value}

	t0 := histogram.Now()
	rc := w.drv.Begin(w.ctx, driver.Crud)
	if rc == driver.Ok {
		rc = w.evalCrud(&a, &b)
	}
	if rc == driver.Ok {
		rc = w.drv.Done(w.ctx, driver.Crud)
	}

	volume := len(a.Key) + len(a.Value) + len(b.Key) + len(b.Value) + len(a.Key) + len(b.Key) + len(b.Value)
	w.hg.Add(t0, uint64(volume))
	return rc
}

// evalBatch pulls a pre-generated pool of pairs and evaluates evalCrud on
// each, stopping at the first failure or once the kind's global count is
// reached. It returns the advanced operation counter alongside the result.
func (w *Worker) evalBatch(i uint64) (driver.Result, uint64) {
	poolA, err := w.genA.GetBatch(w.params.BatchLength)
	if err != nil {
		return driver.UnexpectedError, i
	}
	poolB, err := w.genB.GetBatch(w.params.BatchLength)
	if err != nil {
		return driver.UnexpectedError, i
	}

	t0 := histogram.Now()
	rc := w.drv.Begin(w.ctx, driver.Batch)

	var recA, recB keygen.Record
	var a, b driver.Record
	for j := 0; j < w.params.BatchLength; j++ {
		if err := poolA.Load(&recA); err != nil {
			return driver.UnexpectedError, i
		}
		if err := poolB.Load(&recB); err != nil {
			return driver.UnexpectedError, i
		}
		a = driver.Record{Key: recA.Key, Value: recA.Value}
		b = driver.Record{Key: recB.Key, Value: recB.Value}

		rc = w.evalCrud(&a, &b)
		i++
		if rc != driver.Ok || i == w.params.Count {
			break
		}
	}

	if rc == driver.Ok {
		rc = w.drv.Done(w.ctx, driver.Batch)
	}

	recordSize := len(a.Key) + len(a.Value) + len(b.Key) + len(b.Value)
	w.hg.Add(t0, uint64(recordSize*w.params.BatchLength))
	return rc, i
}

// evalIterate drives a single cursor to completion (or until the kind's
// global count is reached), timing each Next call independently.
func (w *Worker) evalIterate(i uint64) (driver.Result, uint64) {
	t0 := histogram.Now()
	rc := w.drv.Begin(w.ctx, driver.Iterate)

	for rc == driver.Ok {
		var rec driver.Record
		rc = w.drv.Next(w.ctx, driver.Iterate, &rec)
		w.hg.Add(t0, uint64(len(rec.Key)+len(rec.Value)))

		i++
		if i == w.params.Count {
			break
		}
		t0 = histogram.Now()
	}

	if rc == driver.NotFound {
		rc = driver.Ok
	}
	if rc == driver.Ok {
		rc = w.drv.Done(w.ctx, driver.Iterate)
	}
	return rc, i
}
