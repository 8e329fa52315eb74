package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/srg/blecentral/internal/central"
)

// stdoutIsTerminal decides whether colored, live-updating output makes
// sense; piped output gets plain text.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// renderTable writes the snapshot as an aligned table, strongest-ranked
// device first.
func renderTable(w io.Writer, devices []central.DeviceView, useColor bool) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tNAME\tRSSI\tSTATUS\tLAST SEEN")

	for _, dev := range devices {
		rssi := "-"
		if dev.RSSI != nil {
			rssi = fmt.Sprintf("%d dBm", *dev.RSSI)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			dev.Identity,
			dev.DisplayName(),
			rssi,
			statusLabel(dev.Status, useColor),
			dev.LastSeen.Format(time.TimeOnly),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d device(s)\n", len(devices))
}

// renderJSON writes the snapshot as an indented JSON array.
func renderJSON(w io.Writer, devices []central.DeviceView) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(devices)
}

func statusLabel(status central.ConnectStatus, useColor bool) string {
	label := status.String()
	if !useColor {
		return label
	}
	switch status {
	case central.StatusConnected:
		return color.GreenString(label)
	case central.StatusConnecting:
		return color.YellowString(label)
	case central.StatusDisconnected:
		return color.RedString(label)
	default:
		return color.CyanString(label)
	}
}
