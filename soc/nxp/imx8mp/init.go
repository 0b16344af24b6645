// NXP i.MX8MP initialization
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package imx8mp

import (
	"runtime"
	_ "unsafe"
)

// i.MX processor families
const (
	IMX8MP  = 0x23
)

//go:linkname ramStackOffset runtime.ramStackOffset
var ramStackOffset uint32 = 0x100

var (
	// Processor family
	Family uint32

	// Native distinguishes real silicon from an emulated target; the
	// generic timer's system counter block only exists on real silicon
	// (see initTimers in timer.go). Nothing in this trimmed-down package
	// detects real silicon to set this true, so it stays at its zero
	// value and initTimers skips the system counter block.
	Native bool
)

// Init takes care of the lower level initialization triggered early in
// runtime setup (runtime.hwinit1). Virtual memory bring-up itself
// already ran at hwinit0 (see arm64.Init, linked to
// runtime/goos.Hwinit0), so this only covers what must follow it: a
// vector table relocation base, cache enable, and the generic timers.
func Init() {
	ramStart, _ := runtime.MemRegion()
	ARM64.Init(ramStart)
	ARM64.EnableCache()

	initTimers()

	_, Family, _ = SiliconVersion()
}
