// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package policy is the sole authority for AArch64 translation-related
// control-register writes and cache/TLB/barrier maintenance sequences
// (spec.md §4.3). No other package in this repository emits an MRS,
// MSR, DSB, ISB, TLBI, or IC instruction that touches translation state,
// with one exception: arm64/vmm/trampoline's trampoline.s reads SCTLR_EL1,
// sets M and writes it back inline, since that write must execute from
// the identity-mapped trampoline page. Every other such sequence is a
// named method here.
//
// Each Go method is a thin wrapper over one or more primitives declared
// with no body and implemented in policy.s, the same "one Go method per
// architected sequence" shape arm64/cache.go (cache_enable/cache_disable/
// flush_tlb) and arm64/irq.go (irq_enable/irq_disable/wfi) already use.
package policy

import "github.com/xzt0001/trajan/arm64/vmm/desc"

// defined in policy.s
func readSCTLR() uint64
func writeSCTLR(v uint64)
func readTCR() uint64
func writeTCR(v uint64)
func writeMAIR(v uint64)
func writeTTBR0(pa uint64)
func writeTTBR1(pa uint64)
func readVBAR() uint64
func writeVBAR(v uint64)
func isb()
func dsbSY()
func dmbSY()
func dsbISH()
func dsbNSH()
func tlbiVMALLE1()
func icIALLU()
func cleanDataCacheLine(addr uint64)
func readDAIF() uint64
func writeDAIF(v uint64)

// Policy is the MMU Policy Layer (spec.md §4.3). It carries no state of
// its own; every method operates directly on CPU/system-register state.
type Policy struct{}

// ConfigureMAIR writes the fixed MAIR_EL1 layout (spec.md §3) and issues
// the ISB required before any descriptor using its indices is walked.
func (Policy) ConfigureMAIR() {
	writeMAIR(desc.EncodeMAIR())
	isb()
}

// ConfigureTCR writes TCR_EL1 for the named profile and VA width,
// followed by an ISB.
func (Policy) ConfigureTCR(profile desc.TCRProfile, vaBits int) {
	writeTCR(desc.EncodeTCR(profile, vaBits))
	isb()
}

// SetTTBRBases writes TTBR0_EL1 and TTBR1_EL1, followed by an ISB.
// rootLowPA and rootHighPA must be 4 KiB-aligned physical addresses
// (spec.md invariant: "use of set_ttbr_bases with an unaligned root" is
// an invariant error); the caller (bringup.Orchestrator) is responsible
// for only ever passing roots produced by ptable.Builder.NewRegime,
// which always allocates page-aligned frames.
func (Policy) SetTTBRBases(rootLowPA, rootHighPA uintptr) {
	writeTTBR0(uint64(rootLowPA))
	writeTTBR1(uint64(rootHighPA))
	isb()
}

// BarrierPreEnable issues the ordering sequence required between the
// last descriptor write and SCTLR.M being set: DSB SY; ISB; DMB SY;
// DSB SY; ISB — every descriptor write and its cache maintenance must be
// visible to the page-table walker before translation is enabled
// (spec.md §4.3, §5).
func (Policy) BarrierPreEnable() {
	dsbSY()
	isb()
	dmbSY()
	dsbSY()
	isb()
}

// BarrierPostEnable forces instruction re-fetch under the new
// translation regime: ISB; DSB SY; ISB (spec.md §4.3).
func (Policy) BarrierPostEnable() {
	isb()
	dsbSY()
	isb()
}

// TLBIFull performs a full local TLB invalidation followed by an
// instruction-cache invalidation: DSB ISH; TLBI VMALLE1; DSB NSH;
// IC IALLU; DSB SY; ISB (spec.md §4.3). "Local" here means the
// non-inner-shareable domain, matching spec.md §5's single-CPU design
// (no SMP coordination).
func (Policy) TLBIFull() {
	dsbISH()
	tlbiVMALLE1()
	dsbNSH()
	icIALLU()
	dsbSY()
	isb()
}

// ICacheInvalidateAll invalidates the instruction cache alone: IC IALLU;
// DSB SY; ISB.
func (Policy) ICacheInvalidateAll() {
	icIALLU()
	dsbSY()
	isb()
}

// CleanDataCacheLine cleans the cache line containing addr to the point
// of coherency, satisfying ptable.CacheMaintainer. Every page-table
// descriptor write is sandwiched by a call to this method before and
// after (spec.md §4.2, §5).
func (Policy) CleanDataCacheLine(addr uintptr) {
	cleanDataCacheLine(uint64(addr))
}

// EnableTranslation reads SCTLR_EL1, sets the MMU-enable bit (bit 0)
// while preserving every other bit — including reserved-as-one bits,
// which must never be cleared (spec.md §4.3, §7) — writes it back, and
// issues BarrierPostEnable. ok is false if SCTLR.M does not read back 1
// (a translation-enable error, spec.md §7).
func (Policy) EnableTranslation() (ok bool) {
	current := readSCTLR()
	writeSCTLR(desc.EncodeSCTLRSet(current))

	p := Policy{}
	p.BarrierPostEnable()

	return readSCTLR()&1 == 1
}

// TranslationEnabled reports whether SCTLR_EL1.M currently reads back 1.
// Unlike EnableTranslation it performs no read-modify-write; it is a pure
// status check, suitable for the continuation's post-trampoline
// verification (spec.md §4.5).
func (Policy) TranslationEnabled() bool {
	return readSCTLR()&1 == 1
}

// VBAR returns the current vector base address.
func (Policy) VBAR() uintptr {
	return uintptr(readVBAR())
}

// SetVBAR writes VBAR_EL1, followed by an ISB.
func (Policy) SetVBAR(addr uintptr) {
	writeVBAR(uint64(addr))
	isb()
}

// Daif is a snapshot of the four exception mask bits (Debug, SError,
// IRQ, FIQ) as they appear in PSTATE.DAIF / DAIF_EL0, bits [9:6].
type Daif uint64

// MaskAllExceptions masks Debug, SError, IRQ, and FIQ and returns the
// previous mask so it can be restored later. Required across
// ARMED -> CONTINUED (spec.md §5): the trampoline must be
// interrupt-free. Generalizes arm64/irq.go's IRQ-only irq_enable/
// irq_disable pair to all four DAIF bits, per SPEC_FULL.md.
func (Policy) MaskAllExceptions() Daif {
	prev := Daif(readDAIF())
	writeDAIF(prev.value() | (0b1111 << 6))
	return prev
}

// RestoreExceptions restores a previously captured Daif snapshot.
func (Policy) RestoreExceptions(prev Daif) {
	writeDAIF(prev.value())
}

func (d Daif) value() uint64 { return uint64(d) }
