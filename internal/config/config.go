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

// Package config holds the run-wide settings a cohort is built from, plus
// a Print() report of the resolved values for the run log.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"kvbench/internal/driver"
	"kvbench/internal/logging"
)

// Config is the fully-resolved set of knobs for one run. Cobra flag
// binding in cmd/kvbench populates one of these; nothing under
// internal/ depends on cobra directly.
type Config struct {
	DriverName string
	DirName    string
	Benchmarks driver.Mask

	Count     uint64
	KeySize   int
	ValueSize int

	WalMode  driver.WalMode
	SyncMode driver.SyncMode

	ReadThreads  int
	WriteThreads int

	Seed        uint64
	Nrepeat     uint64
	BatchLength int

	Binary               bool
	Separate             bool
	IgnoreKeyNotFound    bool
	ContinuousCompleting bool
}

// Default returns a Config with read/write thread counts sized to the
// host's logical CPU count and the rest of the fields at sane starting
// points for a quick local run.
func Default() Config {
	cpus := runtime.NumCPU()
	return Config{
		DirName:      "./_kvbench_tmp",
		Benchmarks:   driver.Get.Bit().Add(driver.Set),
		Count:        1000000,
		KeySize:      16,
		ValueSize:    32,
		WalMode:      driver.WalDefault,
		SyncMode:     driver.SyncModeLazy,
		ReadThreads:  cpus,
		WriteThreads: cpus,
		Seed:         42,
		Nrepeat:      1,
		BatchLength:  500,
	}
}

// Validate checks the invariants a Runner needs before it can build a
// cohort: a non-empty driver name, at least one benchmark kind, a nonzero
// op count, a positive batch length, and non-negative thread counts.
// Whether the driver name is registered is checked later, by driver.New.
func (c *Config) Validate() error {
	if c.DriverName == "" {
		return fmt.Errorf("config: -D/--database is required, supported: %s", driver.Supported())
	}
	if c.Benchmarks.Empty() {
		return fmt.Errorf("config: at least one -B/--benchmark is required")
	}
	if c.Count == 0 {
		return fmt.Errorf("config: -n must be positive")
	}
	if c.BatchLength <= 0 {
		return fmt.Errorf("config: batch length must be positive")
	}
	if c.ReadThreads < 0 || c.WriteThreads < 0 {
		return fmt.Errorf("config: thread counts must not be negative")
	}
	return nil
}

// Print logs the resolved configuration in the same section layout the
// startup banner has always used: identity, workload, durability,
// sizing, thread counts, then the boolean toggles.
func (c *Config) Print() {
	log := logging.Log
	log.Info("configuration:")
	log.Infof("\tdatabase   = %s", c.DriverName)
	log.Infof("\tdirname    = %s", c.DirName)
	log.Infof("\tbenchmarks = %s", c.Benchmarks)
	log.Info("")
	log.Infof("\toperations = %d", c.Count)
	log.Info("")
	log.Infof("\tWAL mode   = %s", c.WalMode)
	log.Infof("\tsync mode  = %s", c.SyncMode)
	log.Info("")
	log.Infof("\tkey size   = %d", c.KeySize)
	log.Infof("\tvalue size = %d", c.ValueSize)
	log.Info("")
	log.Infof("\tr-threads    = %d", c.ReadThreads)
	log.Infof("\tw-threads    = %d", c.WriteThreads)
	log.Info("")
	log.Infof("\tbinary                = %s", yesNo(c.Binary))
	log.Infof("\tseparate              = %s", yesNo(c.Separate))
	log.Infof("\tignore not found      = %s", yesNo(c.IgnoreKeyNotFound))
	log.Infof("\tcontinuous completing = %s", yesNo(c.ContinuousCompleting))
	log.Info("")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ParseBenchmarks turns the -B/--benchmark tokens into a Mask.
func ParseBenchmarks(names []string) (driver.Mask, error) {
	var mask driver.Mask
	for _, name := range names {
		kind, ok := driver.KindFromString(strings.TrimSpace(name))
		if !ok {
			return 0, fmt.Errorf("config: unknown benchmark name %q", name)
		}
		mask = mask.Add(kind)
	}
	return mask, nil
}
