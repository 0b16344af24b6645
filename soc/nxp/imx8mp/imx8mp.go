// NXP i.MX8MP configuration and support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package imx8mp provides support to Go bare metal unikernels, written using
// the TamaGo framework, on the NXP i.MX 8M Plus family of System-on-Chip (SoC)
// application processors.
//
// The package implements initialization and drivers for NXP i.MX8MP SoCs,
// adopting the following reference specifications:
//   - IMX8MPRM - i.MX 8M Plus Applications Processor Reference Manual - Rev 1 2021/06
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm64` as
// supported by the TamaGo framework for bare metal Go, see
// https://github.com/usbarmory/tamago.
package imx8mp

import (
	"github.com/xzt0001/trajan/internal/reg"

	"github.com/xzt0001/trajan/arm64"

	"github.com/xzt0001/trajan/soc/nxp/uart"
)

// Peripheral registers
const (
	// DDR base address
	DDR_BASE = 0x40000000

	// Serial ports
	UART1_BASE = 0x30860000
	UART2_BASE = 0x30890000
	UART3_BASE = 0x30880000
	UART4_BASE = 0x30a60000
)

// Peripheral instances
var (
	// ARM64 core
	ARM64 = &arm64.CPU{
		// required before Init()
		TimerOffset: 1,
	}

	// Serial port 1
	UART1 = &uart.UART{
		Index: 1,
		Base:  UART1_BASE,
		CCGR:  CCM_CCGR73,
		Clock: GetUARTClock,
	}

	// Serial port 2
	UART2 = &uart.UART{
		Index: 2,
		Base:  UART2_BASE,
		CCGR:  CCM_CCGR74,
		Clock: GetUARTClock,
	}
)

// SiliconVersion returns the SoC silicon version information
// (p566, 5.1.8.39 DIGPROG Register (CCM_ANALOG_DIGPROG), IMX8MPRM).
func SiliconVersion() (sv, revMajor, revMinor uint32) {
	sv = reg.Read(CCM_ANALOG_DIGPROG)

	revMajor = (sv >> 8) & 0xffff
	revMinor = sv & 0xff

	return
}

// Model returns the SoC model name.
func Model() (model string) {
	switch Family {
	case IMX8MP:
		model = "i.MX 8M Plus"
	default:
		model = "unknown"
	}

	return
}
