// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pumpproto

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a random generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// TestFuzz_DecodersNeverPanic feeds random reads of every length to every decoder.
func TestFuzz_DecodersNeverPanic(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		raw := make([]byte, rng.Intn(MaxResponseSize+1))
		rng.Read(raw)

		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("round %d: panic on [%s]: %v", i, FormatHex(raw), r)
				}
			}()

			_, _ = DecodePressure(raw)
			_ = DecodeUnits(raw)
			_ = DecodeTurboSpeed(raw)
			_ = DecodeTipSeal(raw)
			_ = DecodePumpStatus(raw)
			_ = IsAck(raw)
			_, _ = ExtractNumber(string(raw))
			for _, c := range Commands {
				_ = FormatResponse(c, raw)
			}
		}()
	}
}

// TestFuzz_TruncatedResponses truncates valid responses at every length.
func TestFuzz_TruncatedResponses(t *testing.T) {
	full := response(WindowTurboSpeed, "081000")
	for n := 0; n <= len(full); n++ {
		raw := full[:n]
		speed := DecodeTurboSpeed(raw)
		if n <= HeaderSize+TailData && speed.Present {
			t.Errorf("len=%d: speed present from a truncated read", n)
		}
		_ = DecodeUnits(raw)
		_ = DecodeTipSeal(raw)
	}
}
