// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/Thermoquad/pumpstat/pkg/pumpproto"
	"github.com/spf13/cobra"
)

var framesLower bool

var framesCmd = &cobra.Command{
	Use:   "frames",
	Short: "Print and self-check the command frame table",
	Long: `Print every command frame the monitor sends and rebuild each one from
its window, mode and payload to confirm the checksum.

No connection is opened. Useful when comparing against a serial capture
or a controller manual.

Exit codes:
  0 - Every frame matches its rebuilt form
  1 - At least one frame differs`,
	RunE: runFrames,
}

func init() {
	rootCmd.AddCommand(framesCmd)
	framesCmd.Flags().BoolVar(&framesLower, "lower", false, "Also show lowercase checksum variants")
}

// frameSource describes how a command frame is built
type frameSource struct {
	window  string
	mode    pumpproto.Mode
	payload []byte
}

var frameSources = map[pumpproto.Command]frameSource{
	pumpproto.CmdPressure:   {pumpproto.WindowPressure, pumpproto.ModeRead, nil},
	pumpproto.CmdUnits:      {pumpproto.WindowUnits, pumpproto.ModeRead, nil},
	pumpproto.CmdTurboSpeed: {pumpproto.WindowTurboSpeed, pumpproto.ModeRead, nil},
	pumpproto.CmdTipSeal:    {pumpproto.WindowTipSeal, pumpproto.ModeRead, nil},
	pumpproto.CmdPumpStatus: {pumpproto.WindowPumpStatus, pumpproto.ModeRead, nil},
	pumpproto.CmdStart:      {pumpproto.WindowStartStop, pumpproto.ModeWrite, []byte("1")},
	pumpproto.CmdStop:       {pumpproto.WindowStartStop, pumpproto.ModeWrite, []byte("0")},
}

func runFrames(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Pumpstat - Command Frames\n\n")

	mismatches := checkFrames(out, framesLower)

	fmt.Fprintf(out, "\nAck frame:     [%s]\n", pumpproto.FormatHex(pumpproto.AckFrame()))
	if mismatches > 0 {
		return fmt.Errorf("%d frame(s) differ from their rebuilt form", mismatches)
	}
	fmt.Fprintf(out, "All %d frames verified\n", len(pumpproto.Commands))
	return nil
}

// checkFrames prints the table and returns the number of mismatches
func checkFrames(out io.Writer, lower bool) int {
	mismatches := 0
	for _, c := range pumpproto.Commands {
		frame := pumpproto.CommandFrame(c)
		fmt.Fprintf(out, "%s\n", pumpproto.FormatFrame(c, frame))

		src := frameSources[c]
		built, err := pumpproto.Build(src.window, src.mode, src.payload)
		switch {
		case err != nil:
			fmt.Fprintf(out, "  ✗ rebuild failed: %v\n", err)
			mismatches++
		case !built.Equal(frame):
			fmt.Fprintf(out, "  ✗ rebuilt as [%s]\n", pumpproto.FormatHex(built.Bytes()))
			mismatches++
		}

		if lower {
			if alt, err := pumpproto.BuildLower(src.window, src.mode, src.payload); err == nil && !alt.Equal(frame) {
				fmt.Fprintf(out, "  lowercase     [%s]\n", pumpproto.FormatHex(alt.Bytes()))
			}
		}
	}
	return mismatches
}
