// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pumpproto

// Command identifies one of the fixed requests the monitor issues.
type Command int

// Commands
const (
	CmdPressure Command = iota
	CmdUnits
	CmdTurboSpeed
	CmdTipSeal
	CmdPumpStatus
	CmdStart
	CmdStop
)

// Commands lists every command in table order.
var Commands = []Command{
	CmdPressure,
	CmdUnits,
	CmdTurboSpeed,
	CmdTipSeal,
	CmdPumpStatus,
	CmdStart,
	CmdStop,
}

// commandFrames holds the literal wire bytes of each command. The checksums
// are precomputed; TestCommandFrames checks them against Build.
var commandFrames = map[Command][]byte{
	CmdPressure:   {0x02, 0x80, '2', '2', '4', 0x30, 0x03, '8', '7'},
	CmdUnits:      {0x02, 0x80, '1', '6', '3', 0x30, 0x03, '8', '7'},
	CmdTurboSpeed: {0x02, 0x80, '2', '2', '6', 0x30, 0x03, '8', '5'},
	CmdTipSeal:    {0x02, 0x80, '3', '5', '8', 0x30, 0x03, '8', 'D'},
	CmdPumpStatus: {0x02, 0x80, '0', '0', '0', 0x30, 0x03, '8', '3'},
	CmdStart:      {0x02, 0x80, '0', '0', '0', 0x31, '1', 0x03, 'B', '3'},
	CmdStop:       {0x02, 0x80, '0', '0', '0', 0x31, '0', 0x03, 'B', '2'},
}

// ackFrame is the controller's positive acknowledgement to a write.
var ackFrame = []byte{STX, Address, ACK, ETX, '8', '5'}

// CommandFrame returns the pre-validated frame for a command.
// Unknown commands yield an empty frame.
func CommandFrame(c Command) Frame {
	return Frame{data: commandFrames[c]}
}

// AckFrame returns a copy of the acknowledgement bytes.
func AckFrame() []byte {
	return append([]byte(nil), ackFrame...)
}

// IsWrite reports whether the command changes pump state.
func (c Command) IsWrite() bool {
	return c == CmdStart || c == CmdStop
}

// TailSize returns how many bytes are trimmed from the end of this command's
// response before the value text.
func (c Command) TailSize() int {
	if c == CmdPressure {
		return TailPressure
	}
	return TailData
}

// String returns the human-readable command name
func (c Command) String() string {
	switch c {
	case CmdPressure:
		return "PRESSURE"
	case CmdUnits:
		return "UNITS"
	case CmdTurboSpeed:
		return "TURBO_SPEED"
	case CmdTipSeal:
		return "TIP_SEAL_LIFE"
	case CmdPumpStatus:
		return "PUMP_STATUS"
	case CmdStart:
		return "START"
	case CmdStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}
