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

// Package resource samples process resource consumption bracketing a run:
// getrusage counters plus a recursive directory-size walk of the driver's
// data directory.
package resource

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sys/unix"

	"kvbench/internal/logging"
)

const nsPerSec = 1e9

// Usage is one point-in-time snapshot of process resource consumption.
type Usage struct {
	RAM  int64
	Disk int64

	IopsRead  int64
	IopsWrite int64
	IopsPage  int64

	CPUUserNs   int64
	CPUKernelNs int64
}

// Load samples getrusage(RUSAGE_SELF) and, if dataDir is non-empty, walks
// it to total up file sizes on disk. A dataDir that does not exist yet
// counts as zero bytes. RAM is reported in bytes.
func Load(dataDir string) (Usage, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return Usage{}, fmt.Errorf("resource: getrusage: %w", err)
	}

	var disk int64
	if dataDir != "" {
		err := filepath.Walk(dataDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if path == dataDir && os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if !info.IsDir() {
				disk += info.Size()
			}
			return nil
		})
		if err != nil {
			return Usage{}, fmt.Errorf("resource: walking %s: %w", dataDir, err)
		}
	}

	// ru_maxrss is in bytes on darwin and in kilobytes elsewhere.
	ram := ru.Maxrss
	if runtime.GOOS != "darwin" {
		ram *= 1024
	}

	return Usage{
		RAM:  ram,
		Disk: disk,

		IopsRead:  ru.Inblock,
		IopsWrite: ru.Oublock,
		IopsPage:  ru.Majflt,

		CPUUserNs:   int64(ru.Utime.Sec)*nsPerSec + int64(ru.Utime.Usec)*1000,
		CPUKernelNs: int64(ru.Stime.Sec)*nsPerSec + int64(ru.Stime.Usec)*1000,
	}, nil
}

// Print logs the resource-usage delta between start and finish.
func Print(start, finish Usage) {
	log := logging.Log
	log.Info(">>>>>>>>>>>>>>>>>>>>>>> resources usage <<<<<<<<<<<<<<<<<<<<<<<")
	log.Infof("iops: read %d, write %d, page %d",
		finish.IopsRead-start.IopsRead, finish.IopsWrite-start.IopsWrite, finish.IopsPage-start.IopsPage)
	log.Infof("cpu: user %f, system %f",
		float64(finish.CPUUserNs-start.CPUUserNs)/nsPerSec, float64(finish.CPUKernelNs-start.CPUKernelNs)/nsPerSec)

	const mb = 1 << 20
	log.Infof("space: disk %f, ram %f",
		float64(finish.Disk-start.Disk)/mb, float64(finish.RAM-start.RAM)/mb)
}
