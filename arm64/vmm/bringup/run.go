// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bringup

import (
	"github.com/xzt0001/trajan/arm64/vmm/desc"
	"github.com/xzt0001/trajan/arm64/vmm/ptable"
)

// Armed is returned by Run on success: everything the trampoline needs
// to perform the atomic low-to-high PC transfer (spec.md §4.5).
type Armed struct {
	RootLowPA, RootHighPA uintptr
	TrampolinePhys        uintptr
	ContinuationHighEntry uintptr
}

// Run drives INIT through ARMED (spec.md §4.4). TRANSLATING and
// CONTINUED are CPU-state transitions, not Go control flow. arm64's
// InitMMU adapter reports TRANSLATING via MarkTranslating just before it
// enters the trampoline; no caller in this repository invokes
// MarkContinued.
func (o *Orchestrator) Run() (Armed, error) {
	if err := o.tablesReady(); err != nil {
		o.fatal(o.state.String())
		return Armed{}, err
	}

	if err := o.installMappings(); err != nil {
		o.fatal(StateMappingsReady.String())
		return Armed{}, err
	}
	o.state = StateMappingsReady

	if err := o.verify(); err != nil {
		o.fatal(StateVerified.String())
		return Armed{}, err
	}
	o.state = StateVerified

	if err := o.arm(); err != nil {
		o.fatal(StateArmed.String())
		return Armed{}, err
	}
	o.state = StateArmed

	return Armed{
		RootLowPA:             o.builder.RootPA(ptable.RegimeLow),
		RootHighPA:            o.builder.RootPA(ptable.RegimeHigh),
		TrampolinePhys:        o.cfg.TrampolinePhys,
		ContinuationHighEntry: o.cfg.ContinuationHighEntry,
	}, nil
}

func (o *Orchestrator) tablesReady() error {
	rootLow, err := o.builder.NewRegime()
	if err != nil {
		return err
	}

	rootHigh, err := o.builder.NewRegime()
	if err != nil {
		return err
	}

	o.builder.SetRoots(rootLow, rootHigh)
	o.state = StateTablesReady

	return nil
}

// arm performs the VERIFIED -> ARMED transition (spec.md §4.4): mask all
// four DAIF exception classes (they stay masked through the trampoline),
// program every control register through the policy layer, invalidate
// TLBs, set VBAR to the low (identity) vector table address, and issue
// the pre-enable barrier.
func (o *Orchestrator) arm() error {
	o.policy.MaskAllExceptions()
	o.policy.ConfigureMAIR()
	o.policy.ConfigureTCR(desc.BootstrapDual, o.cfg.VABits)
	o.policy.SetTTBRBases(o.builder.RootPA(ptable.RegimeLow), o.builder.RootPA(ptable.RegimeHigh))
	o.policy.TLBIFull()
	o.policy.SetVBAR(o.cfg.VectorTablePhys)
	o.policy.BarrierPreEnable()

	return nil
}

// MarkTranslating records the ARMED -> TRANSLATING transition (spec.md
// §4.4). arm64's InitMMU calls it immediately before branching to the
// trampoline's physical entry; it exists purely for the diagnostic trail.
func (o *Orchestrator) MarkTranslating() { o.state = StateTranslating }

// MarkContinued records that the continuation reached its high-virtual
// entry point (spec.md §4.4 TRANSLATING -> CONTINUED).
func (o *Orchestrator) MarkContinued() { o.state = StateContinued }

// MarkFatal records an out-of-band failure reported by the trampoline or
// continuation (e.g. SCTLR.M read back 0, or a return from the
// trampoline to the orchestrator — both are FATAL per spec.md §4.4).
func (o *Orchestrator) MarkFatal(transition string) { o.fatal(transition) }
