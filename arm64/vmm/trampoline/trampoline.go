// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package trampoline implements the dual-mapped code region that carries
// execution across the MMU enable instant, and the continuation that
// runs immediately after from high virtual (spec.md §4.5).
//
// The split mirrors arm64/irq.go and arm64/fp.go: a minimal asm-only
// primitive for the one instant that cannot be expressed as ordinary Go
// control flow (here, the branch whose before/after instructions execute
// under different translation contexts), with everything expressible in
// plain Go kept there.
package trampoline

import "github.com/xzt0001/trajan/arm64/vmm/desc"

// defined in trampoline.s
func enter(continuationHighEntry uint64)

// Trampoline is the small dual-mapped routine branched to from ARMED
// (spec.md §4.4 ARMED -> TRANSLATING). Its physical page must already be
// identity-mapped and HighBase-mapped by vmm/bringup before Enter is
// ever called; Trampoline itself carries no mapping state, only the
// entry primitive.
type Trampoline struct{}

// Enter performs spec.md §4.5 requirements (c) and (d): reads SCTLR,
// sets the MMU-enable bit, writes SCTLR, issues an ISB, then branches to
// continuationHighEntry — loaded into a register before the enable so
// the first fetch after SCTLR.M=1 still resolves (via TTBR0, identity)
// and the branch immediately after migrates execution to TTBR1.
//
// Enter never returns under correct operation. spec.md §4.4 names a
// return from the trampoline to the orchestrator as FATAL; that path is
// represented here by a panic, which a trampoline physically reached by
// branch rather than call cannot actually trigger.
func (Trampoline) Enter(continuationHighEntry uintptr) {
	enter(uint64(continuationHighEntry))
	panic("vmm/trampoline: trampoline returned to orchestrator")
}

// Policy is the subset of policy.Policy the continuation needs. Declared
// locally, the same decoupling vmm/ptable uses for CacheMaintainer/
// TLBInvalidator, so this package never has to import vmm/policy and
// vmm/policy remains the sole place those instructions are defined.
type Policy interface {
	SetVBAR(addr uintptr)
	ConfigureTCR(profile desc.TCRProfile, vaBits int)
	TLBIFull()
}

// UARTRebaser is satisfied by soc/nxp/uart.UART. Redirecting the UART's
// MMIO base is "a property of the UART driver, not of this subsystem"
// (spec.md §4.5 step 5); this package only calls it at the documented
// point in the continuation sequence.
type UARTRebaser interface {
	Rebase(base uintptr)
}

// ErrTranslationNotEnabled is returned by Continuation.Run when SCTLR.M
// does not read back as enabled — spec.md §4.5 step 1's "otherwise enter
// FATAL".
var ErrTranslationNotEnabled = continuationError("vmm/trampoline: SCTLR.M not set on continuation entry")

type continuationError string

func (e continuationError) Error() string { return string(e) }

// Continuation is the routine executed at a high-virtual address
// immediately after Trampoline.Enter's branch (spec.md §4.5
// "Continuation").
type Continuation struct {
	Policy Policy
	UART   UARTRebaser

	HighBase uintptr
	VBARPhys uintptr
	UARTPhys uintptr
	VABits   int

	// SCTLRTranslationEnabled reports whether SCTLR.M reads back 1. It is
	// injected (rather than read directly) so Run's fixup sequence is
	// testable on the host toolchain; the production wiring sets it to a
	// closure over vmm/policy's SCTLR read primitive.
	SCTLRTranslationEnabled func() bool
}

// Run performs the continuation's five remaining responsibilities
// (spec.md §4.5 steps 1-5; step 6, "return to the kernel's post-MMU
// entry point", is the caller resuming normal execution after Run
// returns nil).
func (c *Continuation) Run() error {
	if c.SCTLRTranslationEnabled == nil || !c.SCTLRTranslationEnabled() {
		return ErrTranslationNotEnabled
	}

	c.Policy.SetVBAR(c.HighBase | c.VBARPhys)
	c.Policy.ConfigureTCR(desc.KernelOnly, c.VABits)
	c.Policy.TLBIFull()
	c.RedirectUART(c.HighBase | c.UARTPhys)

	return nil
}

// RedirectUART rebases the continuation's UART instance from its
// physical MMIO base to a high-virtual address (spec.md §4.5 step 5).
// Exposed separately from Run so a caller managing multiple UART
// instances can redirect each one explicitly.
func (c *Continuation) RedirectUART(virtBase uintptr) {
	if c.UART != nil {
		c.UART.Rebase(virtBase)
	}
}
