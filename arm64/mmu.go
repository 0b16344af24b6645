// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arm64

import (
	"runtime"
	"unsafe"

	"github.com/xzt0001/trajan/arm64/vmm/bringup"
	"github.com/xzt0001/trajan/arm64/vmm/frame"
	"github.com/xzt0001/trajan/arm64/vmm/policy"
	"github.com/xzt0001/trajan/arm64/vmm/ptable"
	"github.com/xzt0001/trajan/arm64/vmm/trampoline"
)

// VA_BITS and HIGH_BASE (spec.md §6, "configuration recognized at
// compile time"). 48-bit addressing with a canonical all-ones high base
// is this core's default; bringup.Config.Validate rejects any other
// pairing. HighBase is exported so a board package can compute the
// high-virtual address of a peripheral it maps identically to InitMMU's
// fixed UART region, for its own post-continuation Rebase call.
const (
	vaBits   = 48
	HighBase = uintptr(0xFFFF_0000_0000_0000)

	stackGuard = 8 << 10 // invariant I6: >= 8 KiB headroom on each side of SP
)

// Reserved physical layout for bring-up's own bookkeeping. InitMMU carves
// it downward from the vector table base (vecTableStart, or the last
// page of RAM when that is zero) into three pieces: a vector table page,
// a trampoline page, and a frame arena for the page-table frames the
// 4-level builder allocates — replacing the two fixed L1/L2 table slots
// initL1Table/initL2Table used to carve out of it under the
// short-descriptor format.
const (
	vectorTableSize = 1 << 12
	trampolineSize  = 1 << 12
	// A 48-bit, single-region kernel mapping needs only a handful of
	// table frames beyond the two roots; 2 MiB is headroom, not a
	// tuned figure.
	tableArenaSize = 2 << 20
)

// stdoutSink adapts bring-up's diagnostic byte-sink requirement onto the
// pre-scheduler print() builtin DefaultExceptionHandler already relies
// on: bring-up runs at hwinit0, before any UART driver has been
// constructed for it to write through instead.
type stdoutSink struct{}

func (stdoutSink) WriteString(s string) { print(s) }

// uartPhysBase is the debug UART's physical MMIO base (spec.md §6,
// "configuration recognized at compile time" — UART_PHYS). It has to be
// a compile-time constant here rather than a board-set variable: package
// var initializers run as part of the ordinary Go init chain, which on
// this runtime fork executes after hwinit0, too late for InitMMU to see
// it. The value matches soc/nxp/imx8mp's UART1_BASE; the two packages
// cannot share the constant directly since arm64 stays SoC-agnostic.
const uartPhysBase = 0x30860000

// debugUART would let a board package register its UART instance for
// the continuation to redirect to its high-virtual MMIO address, but
// since the continuation runs synchronously inside hwinit0 it is always
// nil in practice — no board package has constructed its UART driver
// yet. RedirectUART treats a nil UART as a no-op; the board package
// rebases its own UART instance explicitly once it runs, in hwinit1.
var debugUART trampoline.UARTRebaser

// continueAfterMMU is the high-virtual entry point the trampoline
// branches to once SCTLR.M is set (spec.md §4.5 "Continuation"). Its
// physical code address, taken via vector(), is what InitMMU maps and
// verifies as
// ContinuationEntry/ContinuationHighEntry.
func continueAfterMMU() {
	cont := &trampoline.Continuation{
		Policy:                  policy.Policy{},
		UART:                    debugUART,
		HighBase:                HighBase,
		VBARPhys:                vecTableStart,
		UARTPhys:                uartPhysBase,
		VABits:                  vaBits,
		SCTLRTranslationEnabled: (policy.Policy{}).TranslationEnabled,
	}

	if err := cont.Run(); err != nil {
		panic("arm64: " + err.Error())
	}
}

// InitMMU drives the virtual memory bring-up subsystem to completion
// (spec.md's single entry point, bring_up_mmu): build both translation
// regimes, install and verify the fixed mapping set, arm the MMU, and
// branch into the trampoline. Under correct operation it does not
// return — see Trampoline.Enter.
func (cpu *CPU) InitMMU() {
	ramStart, ramEnd := runtime.MemRegion()
	textStart, textEnd := runtime.TextRegion()
	_ = ramStart

	vectorTablePhys := vecTableStart
	if vectorTablePhys == 0 {
		vectorTablePhys = ramEnd - vectorTableSize
	}
	trampolinePhys := vectorTablePhys - trampolineSize
	arenaStart := trampolinePhys - tableArenaSize

	var stackMarker int
	sp := uintptr(unsafe.Pointer(&stackMarker))

	entry := uintptr(vector(continueAfterMMU))

	cfg := bringup.Config{
		VABits:   vaBits,
		HighBase: HighBase,

		TextStart: textStart, TextEnd: textEnd,
		// No linker hook finer than TextRegion/MemRegion is exposed by
		// this runtime fork, so rodata and data+bss are mapped as a
		// single kernel-rw region from textEnd to ramEnd — the same
		// collapse the short-descriptor initL1Table/initL2Table pair
		// this file replaces already made (their section switch only
		// ever distinguished the text region from the rest of RAM).
		RODataStart: textEnd, RODataEnd: textEnd,
		DataStart: textEnd, DataEnd: ramEnd,

		UARTPhys: uartPhysBase,
		UARTVirt: HighBase | uartPhysBase,

		VectorTablePhys: vectorTablePhys,

		TrampolinePhys: trampolinePhys,
		TrampolineEnd:  trampolinePhys + trampolineSize,

		ContinuationEntry:     entry,
		ContinuationHighEntry: HighBase | entry,

		StackLow:  sp - stackGuard,
		StackHigh: sp + stackGuard,

		Alloc: frame.NewBumpAllocator(arenaStart, tableArenaSize),
		Sink:  stdoutSink{},
	}

	o, err := bringup.New(cfg, ptable.HardwareMemory{}, policy.Policy{}, policy.Policy{})
	if err != nil {
		panic("arm64: InitMMU: " + err.Error())
	}

	armed, err := o.Run()
	if err != nil {
		panic("arm64: InitMMU: " + err.Error())
	}

	o.MarkTranslating()
	(trampoline.Trampoline{}).Enter(armed.ContinuationHighEntry)
}
