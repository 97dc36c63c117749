// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpubuf

// Import Vulkan backend so it registers via init() and OpenDevice can find it.
import _ "github.com/gogpu/wgpu/hal/vulkan"
