package goble

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for radio-level failures.
var (
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrNotConnected = errors.New("device not connected")
)

// normalizeError maps known go-ble error strings to sentinel errors so
// callers can errors.Is them even if upstream wording drifts slightly.
// The original error is preserved in the chain.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	default:
		return err
	}
}

// isBluetoothOff reports whether err indicates the radio is powered off.
func isBluetoothOff(err error) bool {
	return errors.Is(err, ErrBluetoothOff)
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
