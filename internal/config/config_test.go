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

package config

import (
	"testing"

	"kvbench/internal/driver"
)

func TestDefaultHasSaneBenchmarks(t *testing.T) {
	c := Default()
	if !c.Benchmarks.Has(driver.Get) || !c.Benchmarks.Has(driver.Set) {
		t.Fatalf("default benchmarks = %s, want get+set", c.Benchmarks)
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected Validate to fail without a driver name")
	}
	c.DriverName = "debug"
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsEmptyBenchmarks(t *testing.T) {
	c := Default()
	c.DriverName = "debug"
	c.Benchmarks = 0
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for empty benchmark mask")
	}
}

func TestParseBenchmarksAcceptsAliases(t *testing.T) {
	mask, err := ParseBenchmarks([]string{"set", "del", "iter", "transact"})
	if err != nil {
		t.Fatalf("ParseBenchmarks: %v", err)
	}
	want := driver.Set.Bit().Add(driver.Delete).Add(driver.Iterate).Add(driver.Crud)
	if mask != want {
		t.Fatalf("mask = %s, want %s", mask, want)
	}
}

func TestParseBenchmarksRejectsUnknown(t *testing.T) {
	if _, err := ParseBenchmarks([]string{"bogus"}); err == nil {
		t.Fatalf("expected error for unknown benchmark name")
	}
}
