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

// Command kvbench drives a comparative micro-benchmark cohort against a
// single embedded or networked key/value store, selected with -D/--database.
// It parses flags into a config.Config, opens the named driver, and hands
// the cohort to internal/runner.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"kvbench/internal/config"
	"kvbench/internal/driver"
	_ "kvbench/internal/driver/badgerdriver"
	_ "kvbench/internal/driver/debugdriver"
	_ "kvbench/internal/driver/redisdriver"
	_ "kvbench/internal/driver/sqlitedriver"
	"kvbench/internal/histogram"
	"kvbench/internal/keygen"
	"kvbench/internal/logging"
	"kvbench/internal/metrics"
	"kvbench/internal/report"
	"kvbench/internal/resource"
	"kvbench/internal/runner"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logging.Log.Fatalf("%v", err)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	var (
		benchmarkNames []string
		walModeName    string
		syncModeName   string
		verbose        bool
		metricsAddr    string
		reportJSON     string
		reportBucket   string
		reportRegion   string
	)

	cmd := &cobra.Command{
		Use:   "kvbench",
		Short: "Comparative micro-benchmark harness for embedded key/value stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.SetVerbose(verbose)

			mask, err := config.ParseBenchmarks(benchmarkNames)
			if err != nil {
				return err
			}
			cfg.Benchmarks = mask

			if walMode, ok := driver.WalModeFromString(walModeName); ok {
				cfg.WalMode = walMode
			} else {
				return fmt.Errorf("unknown wal mode %q", walModeName)
			}
			if syncMode, ok := driver.SyncModeFromString(syncModeName); ok {
				cfg.SyncMode = syncMode
			} else {
				return fmt.Errorf("unknown sync mode %q", syncModeName)
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			return run(cmd.Context(), &cfg, metricsAddr, reportJSON, reportBucket, reportRegion)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.DriverName, "database", "D", cfg.DriverName,
		fmt.Sprintf("storage backend to benchmark, one of: %s", driver.Supported()))
	flags.StringVarP(&cfg.DirName, "dirname", "P", cfg.DirName, "directory the driver stores its data under")
	flags.StringSliceVarP(&benchmarkNames, "benchmark", "B", []string{"get", "set"},
		"workload kinds to run: set, get, del, iter, batch, crud")
	flags.StringVarP(&walModeName, "wal-mode", "W", cfg.WalMode.String(), "wal mode: indef, walon, waloff")
	flags.StringVarP(&syncModeName, "sync-mode", "M", cfg.SyncMode.String(), "sync mode: sync, lazy, nosync")
	flags.Uint64VarP(&cfg.Count, "num", "n", cfg.Count, "number of operations per workload kind")
	flags.IntVarP(&cfg.KeySize, "key-size", "k", cfg.KeySize, "key size in bytes")
	flags.IntVarP(&cfg.ValueSize, "value-size", "v", cfg.ValueSize, "value size in bytes")
	flags.IntVarP(&cfg.ReadThreads, "read-threads", "r", cfg.ReadThreads, "number of read worker threads")
	flags.IntVarP(&cfg.WriteThreads, "write-threads", "w", cfg.WriteThreads, "number of write worker threads")
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "key/value generator seed")
	flags.Uint64Var(&cfg.Nrepeat, "nrepeat", cfg.Nrepeat, "number of passes over the enabled workload kinds")
	flags.IntVar(&cfg.BatchLength, "batch-length", cfg.BatchLength, "operations per Batch pass")
	flags.BoolVar(&cfg.Binary, "binary", cfg.Binary, "generate binary rather than printable key/value bytes")
	flags.BoolVar(&cfg.Separate, "separate", cfg.Separate, "round-robin workers across kinds instead of grouping by thread pool")
	flags.BoolVar(&cfg.IgnoreKeyNotFound, "ignore-not-found", cfg.IgnoreKeyNotFound, "treat NotFound as success rather than a worker failure")
	flags.BoolVar(&cfg.ContinuousCompleting, "continuous", cfg.ContinuousCompleting, "keep looping a kind until every worker reaches nrepeat, rather than stopping in lock-step")
	flags.BoolVarP(&verbose, "verbose", "V", false, "enable debug logging")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "if non-empty, expose Prometheus /metrics on this address (e.g. :9090)")
	flags.StringVar(&reportJSON, "report-json", "", "if non-empty, write the final report as JSON to this path")
	flags.StringVar(&reportBucket, "report-s3-bucket", "", "if non-empty (with --report-json set), also upload the report to this S3 bucket")
	flags.StringVar(&reportRegion, "report-s3-region", "", "AWS region for --report-s3-bucket")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, metricsAddr, reportJSON, reportBucket, reportRegion string) error {
	runID := uuid.New()
	logging.Log.WithField("run_id", runID).Info("kvbench starting")
	cfg.Print()

	keygen.Init(cfg.Seed)

	drv, err := driver.New(cfg.DriverName)
	if err != nil {
		return err
	}

	dataDir := filepath.Join(cfg.DirName, drv.Name())
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("kvbench: creating data directory %s: %w", dataDir, err)
	}

	h := histogram.New(cfg.Benchmarks)

	var exporter *metrics.Exporter
	if metricsAddr != "" {
		exporter = metrics.NewExporter()
		h.SetSink(exporter)
		exporter.Serve(metricsAddr)
		logging.Log.Infof("metrics: serving /metrics on %s", metricsAddr)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	before, err := resource.Load(dataDir)
	if err != nil {
		return err
	}
	startedAt := time.Now()

	r := runner.New(cfg, drv, h, dataDir)
	if err := r.Init(ctx); err != nil {
		return err
	}
	runErr := r.Run()
	closeErr := r.Close()

	after, resErr := resource.Load(dataDir)
	if resErr != nil && runErr == nil {
		runErr = resErr
	}

	if exporter != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := exporter.Shutdown(shutdownCtx); err != nil {
			logging.Log.Errorf("metrics: shutdown: %v", err)
		}
	}

	if reportJSON != "" {
		rep := report.New(cfg.DriverName, startedAt, h, before, after)
		if err := report.WriteFile(rep, reportJSON); err != nil {
			logging.Log.Errorf("report: %v", err)
		} else {
			logging.Log.Infof("report: wrote %s", reportJSON)
		}

		if reportBucket != "" {
			key := runID.String() + ".json"
			target := report.S3Target{Bucket: reportBucket, Key: key, Region: reportRegion}
			if err := report.UploadS3(context.Background(), rep, target); err != nil {
				logging.Log.Errorf("report: s3 upload: %v", err)
			} else {
				logging.Log.Infof("report: uploaded to s3://%s/%s", reportBucket, key)
			}
		}
	}

	if runErr != nil {
		return runErr
	}
	return closeErr
}
