// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pumpproto

import (
	"regexp"
	"strconv"
)

var numberPattern = regexp.MustCompile(`[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`)

// ExtractNumber finds the first signed decimal (with optional exponent) in
// text. It returns false for empty input or when nothing numeric is found.
func ExtractNumber(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	match := numberPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		// Out of range exponents from garbled text
		return 0, false
	}
	return v, true
}
