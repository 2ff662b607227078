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

package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kvbench/internal/driver"
	"kvbench/internal/histogram"
	"kvbench/internal/keygen"
	"kvbench/internal/resource"
)

func init() {
	keygen.Init(1)
}

func TestNewBuildsReportFromHistogramSnapshot(t *testing.T) {
	h := histogram.New(driver.Set.Bit())
	before := resource.Usage{Disk: 100, RAM: 1000}
	after := resource.Usage{Disk: 150, RAM: 1200}

	r := New("debug", time.Now(), h, before, after)
	if r.Driver != "debug" {
		t.Fatalf("Driver = %q, want debug", r.Driver)
	}
	if r.Resources.DiskBytes != 50 {
		t.Fatalf("DiskBytes = %d, want 50", r.Resources.DiskBytes)
	}
	if r.Resources.RAMBytes != 200 {
		t.Fatalf("RAMBytes = %d, want 200", r.Resources.RAMBytes)
	}
}

func TestWriteFileProducesValidJSON(t *testing.T) {
	h := histogram.New(driver.Set.Bit())
	r := New("debug", time.Now(), h, resource.Usage{}, resource.Usage{})

	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteFile(r, path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Driver != "debug" {
		t.Fatalf("decoded Driver = %q, want debug", decoded.Driver)
	}
}

func TestKindSummaryMarshalsKindByName(t *testing.T) {
	summary := histogram.KindSummary{Kind: driver.Get, Count: 5}
	data, err := json.Marshal(summary)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got := string(data); !strings.Contains(got, `"kind":"get"`) {
		t.Fatalf("marshaled summary = %s, want kind rendered as \"get\"", got)
	}
}
