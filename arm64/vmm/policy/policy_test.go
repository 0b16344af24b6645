// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package policy

// Policy's methods are thin wrappers over MRS/MSR/barrier primitives with
// no Go body (defined in policy.s): they require a real AArch64 core and
// cannot be exercised on the host toolchain used to develop this package.
// Daif is the one piece of this package expressed in plain Go, so it is
// the one piece tested here.

import "testing"

func TestDaifValueRoundTrip(t *testing.T) {
	const raw = uint64(0b1010 << 6)

	d := Daif(raw)
	if d.value() != raw {
		t.Fatalf("value() = %#x, want %#x", d.value(), raw)
	}
}

func TestDaifZeroValue(t *testing.T) {
	var d Daif
	if d.value() != 0 {
		t.Fatalf("zero value Daif.value() = %#x, want 0", d.value())
	}
}
