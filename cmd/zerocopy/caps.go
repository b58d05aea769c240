package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bamsammich/zerocopy/sendfile"
)

func newCapsCmd(_ *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "caps",
		Short: "Show what sendfile supports on this platform",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			caps := sendfile.New().Capabilities()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(caps)
			}
			return printCaps(os.Stdout, caps)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print capabilities as JSON")
	return cmd
}

func printCaps(w io.Writer, c sendfile.Capabilities) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"platform", c.Platform},
		{"available", yesNo(c.Available)},
		{"headers", nativeOrEmulated(c.Headers)},
		{"trailers", nativeOrEmulated(c.Trailers)},
		{"flags", flagSummary(c)},
		{"length 0", lengthZero(c)},
		{"64-bit offsets", yesNo(c.Offset64)},
		{"file destination", yesNo(c.FileDestination)},
		{"max length", maxLength(c.MaxLength)},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func nativeOrEmulated(native bool) string {
	if native {
		return "native"
	}
	return "emulated (--emulate)"
}

func flagSummary(c sendfile.Capabilities) string {
	if !c.Flags {
		return "none"
	}
	return c.FlagSpace.String()
}

func lengthZero(c sendfile.Capabilities) string {
	if c.UntilEOF {
		return "until EOF"
	}
	return "sends nothing"
}

func maxLength(n int64) string {
	if n <= 0 {
		return "-"
	}
	return strconv.FormatInt(n, 10)
}
