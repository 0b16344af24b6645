// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package trampoline

import (
	"testing"

	"github.com/xzt0001/trajan/arm64/vmm/desc"
)

type fakePolicy struct {
	vbar        uintptr
	tcrProfile  desc.TCRProfile
	tcrVABits   int
	tlbiCalled  bool
	configCalls int
}

func (p *fakePolicy) SetVBAR(addr uintptr) { p.vbar = addr }

func (p *fakePolicy) ConfigureTCR(profile desc.TCRProfile, vaBits int) {
	p.tcrProfile = profile
	p.tcrVABits = vaBits
	p.configCalls++
}

func (p *fakePolicy) TLBIFull() { p.tlbiCalled = true }

type fakeUART struct {
	base   uintptr
	rebase int
}

func (u *fakeUART) Rebase(base uintptr) {
	u.base = base
	u.rebase++
}

func testContinuation(sctlrOK bool) (*Continuation, *fakePolicy, *fakeUART) {
	p := &fakePolicy{}
	u := &fakeUART{}

	c := &Continuation{
		Policy:                  p,
		UART:                    u,
		HighBase:                0xFFFF_0000_0000_0000,
		VBARPhys:                0x4007_f000,
		UARTPhys:                0x0900_0000,
		VABits:                  48,
		SCTLRTranslationEnabled: func() bool { return sctlrOK },
	}

	return c, p, u
}

// Scenario 6 (spec.md §8): after the continuation, VBAR = HighBase|vbar_phys.
func TestContinuationRunRelocatesVBAR(t *testing.T) {
	c, p, _ := testContinuation(true)

	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := c.HighBase | c.VBARPhys
	if p.vbar != want {
		t.Fatalf("vbar = %#x, want %#x", p.vbar, want)
	}
}

func TestContinuationRunSwitchesToKernelOnlyTCR(t *testing.T) {
	c, p, _ := testContinuation(true)

	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if p.tcrProfile != desc.KernelOnly {
		t.Fatalf("tcr profile = %v, want KernelOnly", p.tcrProfile)
	}
	if p.tcrVABits != 48 {
		t.Fatalf("tcr va bits = %d, want 48", p.tcrVABits)
	}
}

func TestContinuationRunInvalidatesTLB(t *testing.T) {
	c, p, _ := testContinuation(true)

	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !p.tlbiCalled {
		t.Fatalf("TLBIFull was not called")
	}
}

func TestContinuationRunRedirectsUART(t *testing.T) {
	c, _, u := testContinuation(true)

	if err := c.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := c.HighBase | c.UARTPhys
	if u.base != want || u.rebase != 1 {
		t.Fatalf("uart base = %#x (rebase=%d), want %#x (rebase=1)", u.base, u.rebase, want)
	}
}

// spec.md §4.5 step 1: SCTLR.M unset on entry is fatal, not silently
// proceeded past.
func TestContinuationRunFailsWhenTranslationNotEnabled(t *testing.T) {
	c, p, u := testContinuation(false)

	err := c.Run()
	if err != ErrTranslationNotEnabled {
		t.Fatalf("err = %v, want ErrTranslationNotEnabled", err)
	}

	if p.configCalls != 0 || u.rebase != 0 {
		t.Fatalf("continuation performed fixup despite SCTLR.M being unset")
	}
}

func TestContinuationRunMissingCheckFailsClosed(t *testing.T) {
	c, _, _ := testContinuation(true)
	c.SCTLRTranslationEnabled = nil

	if err := c.Run(); err != ErrTranslationNotEnabled {
		t.Fatalf("err = %v, want ErrTranslationNotEnabled", err)
	}
}
