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

package histogram

import "fmt"

var decimalSuffixes = []struct {
	factor float64
	suffix string
}{
	{1e12, "T"},
	{1e9, "G"},
	{1e6, "M"},
	{1e3, "K"},
}

// formatValue scales val down to the largest suffix that keeps it >= 1
// and prints two decimal digits, matching the summary table's column
// style.
func formatValue(val float64, unit string) string {
	for _, s := range decimalSuffixes {
		if val >= s.factor {
			return fmt.Sprintf("%.2f%s%s", val/s.factor, s.suffix, unit)
		}
	}
	return fmt.Sprintf("%.2f%s", val, unit)
}

var latencySuffixes = []struct {
	divisor uint64
	suffix  string
}{
	{uint64(s), "s"},
	{uint64(ms), "ms"},
	{uint64(us), "us"},
}

// formatLatency renders a nanosecond duration in the largest unit that
// keeps the value >= 1, falling back to bare nanoseconds.
func formatLatency(ns uint64) string {
	if ns == ^uint64(0) {
		return "-"
	}
	for _, s := range latencySuffixes {
		if ns >= s.divisor {
			return fmt.Sprintf("%.3f%s", float64(ns)/float64(s.divisor), s.suffix)
		}
	}
	return fmt.Sprintf("%dns", ns)
}
