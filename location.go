// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpubuf

import (
	"fmt"
	"strings"
)

// Location identifies the memory space a buffer lives in.
//
// A buffer never migrates between locations. To move data, create a
// buffer at the other location and Set it from the first one.
type Location int

const (
	// Host is general-purpose system memory, directly addressable by Go code.
	Host Location = iota

	// Device is accelerator memory. It is not addressable from Go code and
	// is reached only through explicit transfers.
	Device
)

// String returns the lower-case name of the location.
func (l Location) String() string {
	switch l {
	case Host:
		return "host"
	case Device:
		return "device"
	default:
		return fmt.Sprintf("Location(%d)", int(l))
	}
}

// Valid reports whether l is Host or Device.
func (l Location) Valid() bool {
	return l == Host || l == Device
}

// ParseLocation parses a location name. It accepts "host" and "cpu" for
// Host, "device" and "gpu" for Device, ignoring case.
func ParseLocation(s string) (Location, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "host", "cpu":
		return Host, nil
	case "device", "gpu":
		return Device, nil
	default:
		return Host, fmt.Errorf("%w: %q", ErrInvalidLocation, s)
	}
}
