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

// Package report renders a completed run as machine-readable JSON and,
// optionally, uploads it to S3. The upload path is grounded on
// arkiliandb-Arkilian's internal/storage/s3.go (config.LoadDefaultConfig +
// s3.NewFromConfig + PutObject), trimmed to the single-shot case a report
// file needs instead of that package's full multipart/retry machinery.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"kvbench/internal/histogram"
	"kvbench/internal/resource"
)

// Report is the JSON-serializable summary of one completed benchmark run.
type Report struct {
	Driver    string                  `json:"driver"`
	StartedAt time.Time               `json:"started_at"`
	Duration  time.Duration           `json:"duration_ns"`
	Kinds     []histogram.KindSummary `json:"kinds"`
	Resources ResourceDelta           `json:"resources"`
}

// ResourceDelta is the resource.Usage delta bracketing the run, flattened
// for JSON.
type ResourceDelta struct {
	DiskBytes   int64 `json:"disk_bytes"`
	RAMBytes    int64 `json:"ram_bytes"`
	IopsRead    int64 `json:"iops_read"`
	IopsWrite   int64 `json:"iops_write"`
	IopsPage    int64 `json:"iops_page"`
	CPUUserNs   int64 `json:"cpu_user_ns"`
	CPUKernelNs int64 `json:"cpu_kernel_ns"`
}

// Delta computes a ResourceDelta from a before/after resource.Usage pair.
func Delta(before, after resource.Usage) ResourceDelta {
	return ResourceDelta{
		DiskBytes:   after.Disk - before.Disk,
		RAMBytes:    after.RAM - before.RAM,
		IopsRead:    after.IopsRead - before.IopsRead,
		IopsWrite:   after.IopsWrite - before.IopsWrite,
		IopsPage:    after.IopsPage - before.IopsPage,
		CPUUserNs:   after.CPUUserNs - before.CPUUserNs,
		CPUKernelNs: after.CPUKernelNs - before.CPUKernelNs,
	}
}

// New builds a Report from a run's histogram registry and resource-usage
// bracket.
func New(driverName string, startedAt time.Time, h *histogram.Histogram, before, after resource.Usage) Report {
	return Report{
		Driver:    driverName,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Kinds:     h.Snapshot(),
		Resources: Delta(before, after),
	}
}

// WriteFile marshals r as indented JSON to path.
func WriteFile(r Report, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}

// S3Target names where an uploaded report should land.
type S3Target struct {
	Bucket string
	Key    string
	Region string
}

// UploadS3 marshals r and puts it to the given bucket/key, loading AWS
// credentials the standard SDK way (environment, shared config, IAM role).
func UploadS3(ctx context.Context, r Report, target S3Target) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if target.Region != "" {
		opts = append(opts, awsconfig.WithRegion(target.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("report: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(target.Bucket),
		Key:         aws.String(target.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("report: put s3://%s/%s: %w", target.Bucket, target.Key, err)
	}
	return nil
}
