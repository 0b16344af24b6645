// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package desc encodes and decodes AArch64 long-descriptor page table
// entries, and the MAIR/TCR/SCTLR control-register values that govern how
// they are interpreted (ARM Architecture Reference Manual ARMv8-A, D5.3).
//
// The package is pure: no allocation, no I/O, no access to CPU state. It
// only ever fails on precondition violations (misaligned physical
// addresses, out of range fields).
package desc

import (
	"errors"

	"github.com/xzt0001/trajan/bits"
)

// Descriptor bit positions (level-3 page descriptor, 4 KiB granule).
const (
	bitValid   = 0
	bitTable   = 1 // also "page" at level 3
	attrIdxPos = 2
	attrIdxLen = 3
	apPos      = 6
	apLen      = 2
	shPos      = 8
	shLen      = 2
	bitAF      = 10
	paPos      = 12
	paLen      = 36 // bits 12..47
	bitPXN     = 53
	bitUXN     = 54

	pageSize  = 1 << 12
	paMask    = ((uint64(1) << paLen) - 1) << paPos
)

// AttrIndex selects a MAIR palette entry (spec.md §3 "Attribute set").
type AttrIndex uint8

const (
	DeviceNGnRnE AttrIndex = 0
	NormalWB     AttrIndex = 1
	NormalNC     AttrIndex = 2
	DeviceNGnRE  AttrIndex = 3
)

// AccessPermission encodes the AP[2:1] field semantics used by this
// subsystem. Only the kernel-only permissions are meaningful before the
// scheduler exists; user permissions are provided for completeness and
// future (post bring-up) use.
type AccessPermission uint8

const (
	KernelRW AccessPermission = 0b00
	KernelRO AccessPermission = 0b10
	UserRW   AccessPermission = 0b01
	UserRO   AccessPermission = 0b11
)

// Shareability selects the SH[1:0] field.
type Shareability uint8

const (
	ShareNone  Shareability = 0b00
	ShareOuter Shareability = 0b10
	ShareInner Shareability = 0b11
)

// AccessFlag models the AF bit. It must be On for every valid descriptor
// this subsystem writes (spec.md I2); Off only exists so tests can
// construct and reject an invalid Attrs value (P5).
type AccessFlag uint8

const (
	AFOff AccessFlag = 0
	AFOn  AccessFlag = 1
)

// ExecuteNever selects the PXN/UXN bit combination.
type ExecuteNever uint8

const (
	ENNone             ExecuteNever = 0b00
	ENPrivilegedOnly   ExecuteNever = 0b10 // PXN set, UXN clear
	ENUnprivilegedOnly ExecuteNever = 0b01 // UXN set, PXN clear
	ENBoth             ExecuteNever = 0b11
)

// Attrs is the attribute set named in spec.md §3.
type Attrs struct {
	AttrIndex  AttrIndex
	AP         AccessPermission
	SH         Shareability
	AF         AccessFlag
	XN         ExecuteNever
}

var (
	// ErrMisaligned is returned when a physical address is not
	// page-aligned.
	ErrMisaligned = errors.New("vmm/desc: physical address is not 4KiB aligned")
	// ErrAccessFlagOff is returned when attrs.AF is off; every valid
	// descriptor this subsystem writes must carry AF=on (spec.md I2).
	ErrAccessFlagOff = errors.New("vmm/desc: access flag must be on")
)

// DescriptorKind classifies a decoded descriptor.
type DescriptorKind int

const (
	Invalid DescriptorKind = iota
	Table
	Page
	Block
)

// EncodePage constructs a level-3 page descriptor (spec.md §4.1).
func EncodePage(pa uintptr, attrs Attrs) (uint64, error) {
	if uint64(pa)&(pageSize-1) != 0 {
		return 0, ErrMisaligned
	}

	if attrs.AF != AFOn {
		return 0, ErrAccessFlagOff
	}

	var d uint64

	bits.Set64(&d, bitValid)
	bits.Set64(&d, bitTable) // page-type at level 3 reuses the table bit
	bits.SetN64(&d, attrIdxPos, (1<<attrIdxLen)-1, uint64(attrs.AttrIndex))
	bits.SetN64(&d, apPos, (1<<apLen)-1, uint64(attrs.AP))
	bits.SetN64(&d, shPos, (1<<shLen)-1, uint64(attrs.SH))
	bits.Set64(&d, bitAF)
	bits.SetTo64(&d, bitPXN, attrs.XN == ENPrivilegedOnly || attrs.XN == ENBoth)
	bits.SetTo64(&d, bitUXN, attrs.XN == ENUnprivilegedOnly || attrs.XN == ENBoth)
	d |= uint64(pa) & paMask

	return d, nil
}

// EncodeBlock constructs a level-1 or level-2 block descriptor. Block
// descriptors share every attribute bit position with page descriptors
// except the low two bits, which read 0b01 instead of 0b11 (ARM ARM
// D5.3.3). level must be 1 or 2; the bring-up path never calls this (only
// page entries are used, per spec.md §3) but later, post bring-up, large
// mappings may want it.
func EncodeBlock(pa uintptr, level int, attrs Attrs) (uint64, error) {
	if level != 1 && level != 2 {
		return 0, errors.New("vmm/desc: block descriptors only exist at level 1 or 2")
	}

	page, err := EncodePage(pa, attrs)
	if err != nil {
		return 0, err
	}

	// clear the table-type bit, leaving the valid bit: 0b01 == block.
	return page &^ (1 << bitTable), nil
}

// EncodeTable constructs an intermediate-level table descriptor with only
// the valid and table-type bits set (spec.md §4.1).
func EncodeTable(pa uintptr) (uint64, error) {
	if uint64(pa)&(pageSize-1) != 0 {
		return 0, ErrMisaligned
	}

	var d uint64
	bits.Set64(&d, bitValid)
	bits.Set64(&d, bitTable)
	d |= uint64(pa) & paMask

	return d, nil
}

// Decode classifies a descriptor and extracts its physical address and
// attributes. For Invalid and Table kinds, the returned Attrs is the zero
// value.
func Decode(d uint64) (DescriptorKind, uintptr, Attrs) {
	if d&(1<<bitValid) == 0 {
		return Invalid, 0, Attrs{}
	}

	pa := uintptr(d & paMask)

	if d&(1<<bitTable) == 0 {
		// Block descriptor: valid=1, table-type=0.
		return Block, pa, decodeAttrs(d)
	}

	// Ambiguous between Table and Page at the Go-level encoding alone;
	// callers that know the level (ptable's Builder.walk) disambiguate by depth.
	// At level 3, bitTable=1 always means Page; at levels 1/2 it means
	// Table. DecodeAtLevel resolves this; Decode defaults to Page, which
	// is correct for the spec's sole consumer (level-3 lookups).
	return Page, pa, decodeAttrs(d)
}

// DecodeAtLevel is Decode, disambiguated by the page-table level the
// descriptor was read from (0-3, level 0 being the root).
func DecodeAtLevel(d uint64, level int) (DescriptorKind, uintptr, Attrs) {
	kind, pa, attrs := Decode(d)

	if kind == Page && level < 3 {
		return Table, pa, Attrs{}
	}

	return kind, pa, attrs
}

func decodeAttrs(d uint64) Attrs {
	return Attrs{
		AttrIndex: AttrIndex(bits.Get64(&d, attrIdxPos, (1<<attrIdxLen)-1)),
		AP:        AccessPermission(bits.Get64(&d, apPos, (1<<apLen)-1)),
		SH:        Shareability(bits.Get64(&d, shPos, (1<<shLen)-1)),
		AF:        AccessFlag(bits.Get64(&d, bitAF, 1)),
		XN:        decodeXN(d),
	}
}

func decodeXN(d uint64) ExecuteNever {
	pxn := bits.Get64(&d, bitPXN, 1) == 1
	uxn := bits.Get64(&d, bitUXN, 1) == 1

	switch {
	case pxn && uxn:
		return ENBoth
	case pxn:
		return ENPrivilegedOnly
	case uxn:
		return ENUnprivilegedOnly
	default:
		return ENNone
	}
}

// EncodeSCTLRSet returns current with the MMU-enable bit (SCTLR.M, bit 0)
// set, preserving every other bit verbatim — including reserved-as-one
// bits, which must never be cleared (spec.md §4.3, §7). This is the pure
// half of policy.EnableTranslation, split out so P8 is testable without
// touching hardware.
func EncodeSCTLRSet(current uint64) uint64 {
	return current | 1
}
