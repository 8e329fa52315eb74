package main

import (
	"errors"

	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/transport/goble"
)

// formatUserError turns internal errors into actionable messages.
func formatUserError(err error) string {
	switch {
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is turned off - enable it and try again"
	case errors.Is(err, central.ErrNotFound):
		return "device not found - run a scan first and check the identity"
	case errors.Is(err, central.ErrNotEligible):
		return "device is already connecting or connected"
	default:
		return err.Error()
	}
}
