// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package desc

import "testing"

// P1: round-trip for all aligned pa and valid attrs.
func TestEncodeDecodePageRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		pa    uintptr
		attrs Attrs
	}{
		{
			name: "kernel text",
			pa:   0x4008_1000,
			attrs: Attrs{
				AttrIndex: NormalWB,
				AP:        KernelRO,
				SH:        ShareInner,
				AF:        AFOn,
				XN:        ENUnprivilegedOnly,
			},
		},
		{
			name: "uart mmio",
			pa:   0x0900_0000,
			attrs: Attrs{
				AttrIndex: DeviceNGnRE,
				AP:        KernelRW,
				SH:        ShareOuter,
				AF:        AFOn,
				XN:        ENBoth,
			},
		},
		{
			name: "zero page",
			pa:   0,
			attrs: Attrs{
				AttrIndex: DeviceNGnRnE,
				AP:        KernelRW,
				SH:        ShareNone,
				AF:        AFOn,
				XN:        ENNone,
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d, err := EncodePage(c.pa, c.attrs)
			if err != nil {
				t.Fatalf("EncodePage: %v", err)
			}

			kind, pa, attrs := Decode(d)
			if kind != Page {
				t.Fatalf("Decode kind = %v, want Page", kind)
			}
			if pa != c.pa {
				t.Fatalf("Decode pa = %#x, want %#x", pa, c.pa)
			}
			if attrs != c.attrs {
				t.Fatalf("Decode attrs = %+v, want %+v", attrs, c.attrs)
			}
		})
	}
}

func TestEncodePageMisaligned(t *testing.T) {
	_, err := EncodePage(0x1001, Attrs{AF: AFOn})
	if err != ErrMisaligned {
		t.Fatalf("err = %v, want ErrMisaligned", err)
	}
}

// P5: every descriptor the encoder writes has AF on; encoding with AF off
// must be rejected rather than silently writing an access-flag fault.
func TestEncodePageRequiresAccessFlag(t *testing.T) {
	_, err := EncodePage(0x1000, Attrs{AF: AFOff})
	if err != ErrAccessFlagOff {
		t.Fatalf("err = %v, want ErrAccessFlagOff", err)
	}
}

// Scenario 3 (spec.md §8): descriptor round-trip with explicit bit checks.
func TestEncodePageBitLayout(t *testing.T) {
	attrs := Attrs{
		AttrIndex: NormalWB,
		AP:        KernelRO,
		SH:        ShareInner,
		AF:        AFOn,
		XN:        ENUnprivilegedOnly,
	}

	d, err := EncodePage(0x4008_1000, attrs)
	if err != nil {
		t.Fatalf("EncodePage: %v", err)
	}

	if d&0b11 != 0b11 {
		t.Fatalf("bits[1:0] = %02b, want 11", d&0b11)
	}
	if (d>>10)&1 != 1 {
		t.Fatalf("AF bit = %d, want 1", (d>>10)&1)
	}
	if (d>>54)&1 != 1 {
		t.Fatalf("UXN bit = %d, want 1", (d>>54)&1)
	}
	if (d>>53)&1 != 0 {
		t.Fatalf("PXN bit = %d, want 0", (d>>53)&1)
	}

	kind, pa, got := Decode(d)
	if kind != Page || pa != 0x4008_1000 || got != attrs {
		t.Fatalf("round trip mismatch: kind=%v pa=%#x attrs=%+v", kind, pa, got)
	}
}

func TestEncodeTable(t *testing.T) {
	d, err := EncodeTable(0x5000)
	if err != nil {
		t.Fatalf("EncodeTable: %v", err)
	}

	kind, pa, _ := DecodeAtLevel(d, 0)
	if kind != Table {
		t.Fatalf("kind = %v, want Table", kind)
	}
	if pa != 0x5000 {
		t.Fatalf("pa = %#x, want 0x5000", pa)
	}

	if _, err := EncodeTable(0x5001); err != ErrMisaligned {
		t.Fatalf("err = %v, want ErrMisaligned", err)
	}
}

func TestDecodeInvalid(t *testing.T) {
	kind, _, _ := Decode(0)
	if kind != Invalid {
		t.Fatalf("kind = %v, want Invalid", kind)
	}
}

func TestEncodeBlock(t *testing.T) {
	d, err := EncodeBlock(0x0020_0000, 2, Attrs{
		AttrIndex: NormalWB,
		AP:        KernelRW,
		SH:        ShareInner,
		AF:        AFOn,
		XN:        ENNone,
	})
	if err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}

	if d&0b11 != 0b01 {
		t.Fatalf("bits[1:0] = %02b, want 01 (block)", d&0b11)
	}

	kind, pa, _ := Decode(d)
	if kind != Block {
		t.Fatalf("kind = %v, want Block", kind)
	}
	if pa != 0x0020_0000 {
		t.Fatalf("pa = %#x, want 0x200000", pa)
	}

	if _, err := EncodeBlock(0x1000, 0, Attrs{AF: AFOn}); err == nil {
		t.Fatalf("expected error for level 0 block descriptor")
	}
}

// Scenario 4 / P7: the only difference between bootstrap_dual and
// kernel_only is EPD0.
func TestEncodeTCRProfiles(t *testing.T) {
	for _, vaBits := range []int{39, 48} {
		dual := EncodeTCR(BootstrapDual, vaBits)
		kernelOnly := EncodeTCR(KernelOnly, vaBits)

		if TCREPD0(dual) != 0 {
			t.Fatalf("vaBits=%d: bootstrap_dual EPD0 = %d, want 0", vaBits, TCREPD0(dual))
		}
		if TCREPD0(kernelOnly) != 1 {
			t.Fatalf("vaBits=%d: kernel_only EPD0 = %d, want 1", vaBits, TCREPD0(kernelOnly))
		}

		diff := dual ^ kernelOnly
		if diff != (1 << tcrEPD0) {
			t.Fatalf("vaBits=%d: tcr diff = %#x, want only bit %d set", vaBits, diff, tcrEPD0)
		}
	}
}

func TestEncodeMAIRFixedLayout(t *testing.T) {
	mair := EncodeMAIR()

	want := uint64(mairDeviceNGnRnE) | uint64(mairNormalWBRAWA)<<8 | uint64(mairNormalNC)<<16 | uint64(mairDeviceNGnRE)<<24
	if mair != want {
		t.Fatalf("MAIR = %#x, want %#x", mair, want)
	}
}

// P8 (pure half): SCTLR.M is set, every other bit preserved.
func TestEncodeSCTLRSetPreservesReservedBits(t *testing.T) {
	const reservedAsOne = uint64(0x30d0_1885) // stand-in for architected reserved-as-one bits

	got := EncodeSCTLRSet(reservedAsOne)

	if got&1 != 1 {
		t.Fatalf("SCTLR.M not set")
	}
	if got&^uint64(1) != reservedAsOne&^uint64(1) {
		t.Fatalf("reserved bits altered: got %#x, want %#x", got&^uint64(1), reservedAsOne&^uint64(1))
	}
}
