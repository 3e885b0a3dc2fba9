// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pumpproto

import (
	"fmt"
	"strings"
)

// FormatHex renders bytes as space separated hex, 16 per line.
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	var s strings.Builder
	for i, b := range data {
		if i > 0 {
			if i%16 == 0 {
				s.WriteString("\n")
			} else {
				s.WriteString(" ")
			}
		}
		fmt.Fprintf(&s, "%02X", b)
	}
	return s.String()
}

// FormatFrame describes an outgoing command frame.
func FormatFrame(c Command, f Frame) string {
	mode := "R"
	if f.Mode() == ModeWrite {
		mode = "W"
	}
	return fmt.Sprintf("%-13s win=%s %s [%s]", c.String(), f.Window(), mode, FormatHex(f.data))
}

// FormatResponse decodes a raw response for the given command into a
// human-readable string.
func FormatResponse(c Command, raw []byte) string {
	switch c {
	case CmdPressure:
		p, err := DecodePressure(raw)
		if err != nil {
			return fmt.Sprintf("Pressure: <%v>", err)
		}
		if !p.Present() {
			return "Pressure: <absent>"
		}
		if v, ok := p.Value(); ok {
			return fmt.Sprintf("Pressure: %q (%g)", p.Text, v)
		}
		return fmt.Sprintf("Pressure: %q (not numeric)", p.Text)

	case CmdUnits:
		u := DecodeUnits(raw)
		return fmt.Sprintf("Units: %s", u)

	case CmdTurboSpeed:
		t := DecodeTurboSpeed(raw)
		if !t.Present {
			return "Turbo Speed: <absent>"
		}
		return fmt.Sprintf("Turbo Speed: %s RPM", t.Text)

	case CmdTipSeal:
		h := DecodeTipSeal(raw)
		if !h.Present {
			return "Tip Seal: <absent>"
		}
		return fmt.Sprintf("Tip Seal: %.0f h", h.Hours)

	case CmdPumpStatus:
		return fmt.Sprintf("Pump Status: %s", DecodePumpStatus(raw))

	case CmdStart, CmdStop:
		if IsAck(raw) {
			return "Ack: OK"
		}
		return "Ack: missing"
	}

	return fmt.Sprintf("Payload: %s", FormatHex(raw))
}
