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

package runner

import (
	"context"
	"testing"

	"kvbench/internal/config"
	"kvbench/internal/driver"
	_ "kvbench/internal/driver/debugdriver"
	"kvbench/internal/histogram"
	"kvbench/internal/keygen"
)

func init() {
	keygen.Init(7)
}

func newDebugConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.Default()
	c.DriverName = "debug"
	c.DirName = t.TempDir()
	c.Count = 32
	c.ReadThreads = 2
	c.WriteThreads = 2
	c.Benchmarks = driver.Set.Bit().Add(driver.Get)
	return &c
}

func TestRunnerInitComputesKeyspaceLayout(t *testing.T) {
	cfg := newDebugConfig(t)
	drv, err := driver.New(cfg.DriverName)
	if err != nil {
		t.Fatalf("driver.New: %v", err)
	}
	h := histogram.New(cfg.Benchmarks)
	r := New(cfg, drv, h, cfg.DirName+"/debug")

	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if r.keyerOpts.SectorsCount != 2 {
		t.Fatalf("sectors = %d, want 2", r.keyerOpts.SectorsCount)
	}
	if r.keyerOpts.SpacesCount != 2 {
		t.Fatalf("spaces = %d, want 2 (write threads, no two-keyspace kind)", r.keyerOpts.SpacesCount)
	}
}

func TestRunnerInitDoublesSpacesForTwoKeyspaceKinds(t *testing.T) {
	cfg := newDebugConfig(t)
	cfg.Benchmarks = driver.Crud.Bit()
	drv, err := driver.New(cfg.DriverName)
	if err != nil {
		t.Fatalf("driver.New: %v", err)
	}
	h := histogram.New(cfg.Benchmarks)
	r := New(cfg, drv, h, cfg.DirName+"/debug")

	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if r.keyerOpts.SpacesCount != 4 {
		t.Fatalf("spaces = %d, want 4 (2 write threads x2 for crud)", r.keyerOpts.SpacesCount)
	}
}

func TestRunnerRunCompletesWithDebugDriver(t *testing.T) {
	cfg := newDebugConfig(t)
	cfg.Count = 8
	cfg.ReadThreads = 1
	cfg.WriteThreads = 1
	drv, err := driver.New(cfg.DriverName)
	if err != nil {
		t.Fatalf("driver.New: %v", err)
	}
	h := histogram.New(cfg.Benchmarks)
	r := New(cfg, drv, h, cfg.DirName+"/debug")

	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRunnerInitAcceptsZeroReadThreadsWithNoReadTasks(t *testing.T) {
	cfg := newDebugConfig(t)
	cfg.Benchmarks = driver.Set.Bit()
	cfg.ReadThreads = 0
	cfg.WriteThreads = 1
	drv, err := driver.New(cfg.DriverName)
	if err != nil {
		t.Fatalf("driver.New: %v", err)
	}
	h := histogram.New(cfg.Benchmarks)
	r := New(cfg, drv, h, cfg.DirName+"/debug")

	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if cfg.ReadThreads != 0 {
		t.Fatalf("ReadThreads = %d, want unchanged 0", cfg.ReadThreads)
	}
}
