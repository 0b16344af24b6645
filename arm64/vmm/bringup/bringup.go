// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package bringup drives the virtual memory bring-up state machine
// (spec.md §4.4): allocate roots, install the fixed mapping set, verify
// every critical mapping, arm the MMU, and hand off to the trampoline.
//
// Sequencing here follows the same shape as soc/nxp/imx8mp/init.go's
// Init() — a fixed, linear list of subsystem-initialization steps run
// once at hwinit0/hwinit1 — generalized from "call these drivers in
// order" to "install these mappings in order, verifying before arming".
package bringup

import (
	"github.com/xzt0001/trajan/arm64/vmm/desc"
	"github.com/xzt0001/trajan/arm64/vmm/policy"
	"github.com/xzt0001/trajan/arm64/vmm/ptable"
)

// State is a bring-up state-machine tag (spec.md §4.4).
type State int

const (
	StateInit State = iota
	StateTablesReady
	StateMappingsReady
	StateVerified
	StateArmed
	StateTranslating
	StateContinued
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateTablesReady:
		return "TABLES_READY"
	case StateMappingsReady:
		return "MAPPINGS_READY"
	case StateVerified:
		return "VERIFIED"
	case StateArmed:
		return "ARMED"
	case StateTranslating:
		return "TRANSLATING"
	case StateContinued:
		return "CONTINUED"
	case StateFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Region describes one linker- or config-provided physical range to be
// mapped identity-in-low and HIGH_BASE-in-high (spec.md §4.4 step
// TABLES_READY, invariant I5), with the attributes that range requires.
type Region struct {
	Name  string
	Start uintptr
	End   uintptr // exclusive
	Attrs desc.Attrs
	// IdentityOnly restricts this region to the low regime only. The
	// current stack is the region marked so (spec.md invariant I6 needs
	// no high-virtual stack mapping); the UART is not a Region and gets
	// its low and high mappings from UARTPhys and UARTVirt instead.
	IdentityOnly bool
}

// Sink is the diagnostic byte output this subsystem writes failure
// traces to (spec.md §6, "a byte-sink used for diagnostics"). This
// package only ever calls WriteString (print-only, no read-back);
// arm64's InitMMU supplies a sink that writes to standard output.
type Sink interface {
	WriteString(s string)
}

// Config is the compile-time and linker-provided configuration this
// subsystem consumes (spec.md §6). It supplements the spec's named
// fields (VA_BITS, HIGH_BASE, UART_PHYS, UART_VIRT) with the remaining
// linker section bounds and the trampoline/vector locations, all of
// which spec.md's "consumed from the linker" paragraph requires but
// does not itself name as a single struct — SPEC_FULL.md's
// bringup.Config extension.
type Config struct {
	// VABits selects the TCR profile width: 39 or 48.
	VABits int
	// HighBase is the canonical high-regime VA base; all
	// translation-selected bits must be 1 (spec.md invariant I7).
	HighBase uintptr

	TextStart, TextEnd     uintptr
	RODataStart, RODataEnd uintptr
	DataStart, DataEnd     uintptr // covers .data and .bss together

	UARTPhys uintptr
	UARTVirt uintptr

	VectorTablePhys uintptr

	TrampolinePhys uintptr
	TrampolineEnd  uintptr // exclusive

	// ContinuationEntry is the physical address of the first
	// instruction the trampoline must be able to fetch identity-mapped,
	// and ContinuationHighEntry is the high-virtual address the
	// trampoline branches to after SCTLR.M is set (spec.md §4.5).
	ContinuationEntry     uintptr
	ContinuationHighEntry uintptr

	// StackLow/StackHigh bound the current stack's identity mapping
	// (spec.md invariant I6: at least 8 KiB of headroom each side).
	StackLow, StackHigh uintptr

	Alloc ptable.FrameAllocator
	Sink  Sink
}

// Validate checks the Open Question this subsystem resolves explicitly
// (spec.md §9, last bullet): that HighBase is canonical for the
// configured VA width, i.e. every bit from VABits up to 63 is set and
// every bit below VABits is clear, so that HighBase|phys always lands in
// the high regime (invariant I7) at both 39- and 48-bit widths rather
// than only at 48.
func (c Config) Validate() error {
	if c.VABits != 39 && c.VABits != 48 {
		return ErrInvalidVABits
	}

	want := ^uintptr(0) << uint(c.VABits)
	if c.HighBase&want != want {
		return ErrHighBaseNotCanonical
	}
	if c.HighBase&^want != 0 {
		return ErrHighBaseNotCanonical
	}

	return nil
}

// Orchestrator is the bring-up state machine (spec.md §4.4). It is
// constructed fresh for a single run; orchestrator_run() has no
// persistent, restartable state, matching spec.md §9's replacement of
// global mutable state with an explicitly-passed context.
type Orchestrator struct {
	cfg     Config
	policy  policy.Policy
	builder *ptable.Builder

	state State
	// lastFatal names the transition that failed, for the UART hex
	// trail (spec.md §7 "a hex trail on the UART identifying the last
	// successful state transition").
	lastFatal string
}

var (
	ErrInvalidVABits        = fatalError("invalid VA_BITS (must be 39 or 48)")
	ErrHighBaseNotCanonical = fatalError("HIGH_BASE is not canonical for the configured VA_BITS")
)

type fatalError string

func (e fatalError) Error() string { return string(e) }

// New constructs an Orchestrator. It does not allocate or map anything;
// call Run to drive the state machine.
func New(cfg Config, mem ptable.Memory, cache ptable.CacheMaintainer, tlb ptable.TLBInvalidator) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:     cfg,
		builder: ptable.NewBuilder(cfg.Alloc, mem, cache, tlb, cfg.VABits),
		state:   StateInit,
	}, nil
}

// State returns the orchestrator's current state-machine tag.
func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) fatal(transition string) {
	o.state = StateFatal
	o.lastFatal = transition

	if o.cfg.Sink != nil {
		o.cfg.Sink.WriteString("bringup: FATAL at " + transition + "\n")
	}
}

// Builder exposes the underlying page table builder so the kernel can
// issue further high-regime mappings after CONTINUED (spec.md §6,
// "map_range_kernel").
func (o *Orchestrator) Builder() *ptable.Builder { return o.builder }
