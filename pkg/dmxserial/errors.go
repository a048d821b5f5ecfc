// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmxserial

import (
	"errors"
	"strings"

	"go.bug.st/serial"
)

// ErrClosed is returned by Read after Close
var ErrClosed = errors.New("dmxserial: port closed")

// portErrorCode extracts the serial library error code, which may arrive
// as a value or a pointer
func portErrorCode(err error) (serial.PortErrorCode, bool) {
	var ptr *serial.PortError
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code(), true
	}
	var val serial.PortError
	if errors.As(err, &val) {
		return val.Code(), true
	}
	return 0, false
}

// translateError maps a closed-port error from the serial library to ErrClosed
func translateError(err error) error {
	if code, ok := portErrorCode(err); ok && code == serial.PortClosed {
		return ErrClosed
	}
	return err
}

// IsDisconnect reports whether err means the device went away
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClosed) {
		return true
	}

	if code, ok := portErrorCode(err); ok {
		switch code {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true // device unplugged or closed underneath us
		default:
			return false
		}
	}

	// OS-level errors that are not wrapped by the serial library
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "input/output error") ||
		strings.Contains(errStr, "no such device") ||
		strings.Contains(errStr, "device not configured")
}
