// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package hostmem

import "errors"

const mmapSupported = false

func mapAnon(int) ([]byte, error) {
	return nil, errors.New("hostmem: anonymous mappings not supported")
}

func unmapAnon([]byte) error { return nil }
