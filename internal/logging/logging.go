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

// Package logging holds the process-wide logger used by every kvbench
// package. It exists so tests and the CLI can swap verbosity without every
// package needing its own dependency on logrus.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the shared logger. It writes plain-text lines to stdout by default,
// matching the single-stream, unbuffered progress output the engine prints
// while a benchmark is running.
var Log = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: false,
		DisableColors: false,
		TimestampFormat: "15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetVerbose raises the logger to Debug level; used by -V/--verbose.
func SetVerbose(verbose bool) {
	if verbose {
		Log.SetLevel(logrus.DebugLevel)
	} else {
		Log.SetLevel(logrus.InfoLevel)
	}
}

// Fatalf logs at Fatal level and terminates the process with a non-zero
// exit code; configuration-time errors are meant to abort with a
// diagnostic rather than continue in a half-configured state.
func Fatalf(format string, args ...interface{}) {
	Log.Fatalf(format, args...)
}
