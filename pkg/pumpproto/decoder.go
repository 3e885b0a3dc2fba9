// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pumpproto

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrInvalidText is returned when a response payload is not valid UTF-8.
var ErrInvalidText = errors.New("payload is not valid UTF-8")

// DecodePressure extracts the pressure text from a pressure response.
// A short read yields an empty Pressure and no error.
func DecodePressure(raw []byte) (Pressure, error) {
	payload := ExtractPayload(raw, TailPressure)
	if !utf8.Valid(payload) {
		return Pressure{}, ErrInvalidText
	}
	return Pressure{Text: string(payload)}, nil
}

// DecodeUnits maps the last data byte of a units response to a Unit.
// Anything other than '0', '1' or '2', including a short read, is UnitUnknown.
func DecodeUnits(raw []byte) Unit {
	b, ok := byteFromEnd(raw, TrailerSize+1)
	if !ok {
		return UnitUnknown
	}
	switch b {
	case '0':
		return UnitMBar
	case '1':
		return UnitPascal
	case '2':
		return UnitTorr
	default:
		return UnitUnknown
	}
}

// DecodeTurboSpeed extracts the turbo speed text. Decode failures and empty
// payloads resolve to an absent value.
func DecodeTurboSpeed(raw []byte) TurboSpeed {
	text, ok := decodeDigits(raw)
	if !ok {
		return TurboSpeed{}
	}
	return TurboSpeed{Text: text, Present: true}
}

// DecodeTipSeal extracts the tip-seal hours. Decode failures resolve to an
// absent value.
func DecodeTipSeal(raw []byte) TipSealHours {
	text, ok := decodeDigits(raw)
	if !ok {
		return TipSealHours{}
	}
	hours, ok := ExtractNumber(text)
	if !ok {
		return TipSealHours{}
	}
	return TipSealHours{Hours: hours, Present: true}
}

// DecodePumpStatus maps the last data byte of a status response.
func DecodePumpStatus(raw []byte) PumpStatus {
	b, ok := byteFromEnd(raw, TrailerSize+1)
	if !ok {
		return PumpUnknown
	}
	switch b {
	case '1':
		return PumpRunning
	case '0':
		return PumpStopped
	default:
		return PumpUnknown
	}
}

// IsAck reports whether raw is exactly the acknowledgement frame.
func IsAck(raw []byte) bool {
	return bytes.Equal(raw, ackFrame)
}

// IsUnitsFailure reports whether a units string is the failure sentinel.
// The comparison ignores case, whitespace runs and trailing periods.
func IsUnitsFailure(text string) bool {
	normalized := strings.TrimRight(strings.TrimSpace(text), ".")
	normalized = strings.Join(strings.Fields(strings.ToLower(normalized)), " ")
	return normalized == "get units failed"
}

// decodeDigits returns the data payload as text with leading zeros removed,
// keeping at least one digit.
func decodeDigits(raw []byte) (string, bool) {
	payload := ExtractPayload(raw, TailData)
	if len(payload) == 0 || !utf8.Valid(payload) {
		return "", false
	}
	text := strings.TrimLeft(string(payload), "0")
	if text == "" {
		text = "0"
	}
	return text, true
}
