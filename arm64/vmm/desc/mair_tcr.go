// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package desc

import "github.com/xzt0001/trajan/bits"

// MAIR attribute encodings (ARM ARM D13.2.97).
const (
	mairDeviceNGnRnE = 0x00
	mairNormalWBRAWA = 0xff // inner+outer write-back, read/write-allocate
	mairNormalNC     = 0x44
	mairDeviceNGnRE  = 0x04
)

// EncodeMAIR returns the fixed MAIR_EL1 layout required by spec.md §3:
//
//	Attr0 = Device-nGnRnE
//	Attr1 = Normal WB-RA-WA inner+outer
//	Attr2 = Normal non-cacheable
//	Attr3 = Device-nGnRE
func EncodeMAIR() uint64 {
	var mair uint64

	mair |= uint64(mairDeviceNGnRnE) << (8 * uint(DeviceNGnRnE))
	mair |= uint64(mairNormalWBRAWA) << (8 * uint(NormalWB))
	mair |= uint64(mairNormalNC) << (8 * uint(NormalNC))
	mair |= uint64(mairDeviceNGnRE) << (8 * uint(DeviceNGnRE))

	return mair
}

// TCRProfile names one of the two TCR_EL1 configurations spec.md §3
// defines.
type TCRProfile int

const (
	// BootstrapDual has both translation regimes enabled (EPD0=0,
	// EPD1=0): TTBR0 and TTBR1 are both walked. Used only across the
	// ARMED -> TRANSLATING -> CONTINUED window.
	BootstrapDual TCRProfile = iota
	// KernelOnly disables TTBR0 walks (EPD0=1, EPD1=0). Only valid once
	// execution is already running from the high regime (spec.md I8).
	KernelOnly
)

// TCR_EL1 field bit positions (ARM ARM D13.2.120).
const (
	tcrT0SZ  = 0
	tcrEPD0  = 7
	tcrIRGN0 = 8
	tcrORGN0 = 10
	tcrSH0   = 12
	tcrTG0   = 14
	tcrT1SZ  = 16
	tcrA1    = 22
	tcrEPD1  = 23
	tcrIRGN1 = 24
	tcrORGN1 = 26
	tcrSH1   = 28
	tcrTG1   = 30
	tcrIPS   = 32
	tcrTBI0  = 37
	tcrTBI1  = 38
)

// EncodeTCR returns the TCR_EL1 value for the named profile at the given
// VA width (39 or 48 bits), per spec.md §3's "Translation Control (TCR)
// profile".
//
// Both profiles share: 4 KiB granule (TG0=0b00, TG1=0b10), inner-shareable
// (SH0=SH1=0b11), write-back write-allocate inner+outer (IRGN=ORGN=0b01),
// 40-bit (1 TiB) physical address size (IPS=0b010), and TBI0=TBI1=0 (no
// top-byte ignore — every VA bit participates in translation selection,
// matching spec.md I7's "all translation-selected bits set to 1").
//
// T0SZ/T1SZ are derived from vaBits (T*SZ = 64 - vaBits), giving 25 for
// 39-bit VA and 16 for 48-bit VA.
func EncodeTCR(profile TCRProfile, vaBits int) uint64 {
	tsz := uint64(64 - vaBits)

	var tcr uint64

	bits.SetN64(&tcr, tcrT0SZ, 0b111111, tsz)
	bits.SetN64(&tcr, tcrT1SZ, 0b111111, tsz)

	bits.SetN64(&tcr, tcrIRGN0, 0b11, 0b01)
	bits.SetN64(&tcr, tcrORGN0, 0b11, 0b01)
	bits.SetN64(&tcr, tcrIRGN1, 0b11, 0b01)
	bits.SetN64(&tcr, tcrORGN1, 0b11, 0b01)

	bits.SetN64(&tcr, tcrSH0, 0b11, 0b11)
	bits.SetN64(&tcr, tcrSH1, 0b11, 0b11)

	bits.SetN64(&tcr, tcrTG0, 0b11, 0b00)
	bits.SetN64(&tcr, tcrTG1, 0b11, 0b10)

	bits.SetN64(&tcr, tcrIPS, 0b111, 0b010)

	switch profile {
	case BootstrapDual:
		bits.SetTo64(&tcr, tcrEPD0, false)
		bits.SetTo64(&tcr, tcrEPD1, false)
	case KernelOnly:
		bits.SetTo64(&tcr, tcrEPD0, true)
		bits.SetTo64(&tcr, tcrEPD1, false)
	}

	return tcr
}

// TCREPD0 extracts the EPD0 bit from an encoded TCR value, for use by
// tests verifying P7 without re-deriving field positions.
func TCREPD0(tcr uint64) uint64 {
	return bits.Get64(&tcr, tcrEPD0, 1)
}
