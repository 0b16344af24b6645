// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package arm64 provides support for ARM architecture specific operations.
//
// The following architectures/cores are supported/tested:
//   - ARMv8-A / Cortex-A53 (single-core)
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm64` as
// supported by the TamaGo framework for bare metal Go, see
// https://github.com/usbarmory/tamago.
package arm64

import (
	"runtime"
)

// CPU instance
type CPU struct {
	// Timer multiplier
	TimerMultiplier float64
	// Timer offset in nanoseconds
	TimerOffset int64
}

// defined in arm64.s
func exit(int32)

// Init performs initialization of an ARM64 core instance. vbar is the
// physical (pre-MMU) address of the reserved area used for the exception
// vector table and exception stack; virtual memory bring-up allocates
// and verifies its own table storage separately via InitMMU, so this
// area no longer also holds L1/L2 page tables as it did under the
// short-descriptor format.
func (cpu *CPU) Init(vbar uintptr) {
	runtime.Exit = exit

	// the application is allowed to override the reserved area
	if vecTableStart != 0 {
		vbar = vecTableStart
	}

	// TODO
	//cpu.initVectorTable(vbar)
}
