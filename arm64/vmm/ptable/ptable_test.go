// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ptable

import (
	"testing"

	"github.com/xzt0001/trajan/arm64/vmm/desc"
)

// fakeMemory simulates physical RAM as a host-side map, the same
// substitution technique gopheros's walk_test.go uses by overriding
// ptePtrFn.
type fakeMemory struct {
	entries map[uintptr]uint64
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{entries: make(map[uintptr]uint64)}
}

func (m *fakeMemory) ReadEntry(addr uintptr) uint64 { return m.entries[addr] }

func (m *fakeMemory) WriteEntry(addr uintptr, v uint64) { m.entries[addr] = v }

func (m *fakeMemory) ZeroPage(addr uintptr) {
	for i := uintptr(0); i < entriesPerTable; i++ {
		delete(m.entries, addr+i*entrySize)
	}
}

type bumpAllocator struct {
	next  uintptr
	limit uintptr
}

func (a *bumpAllocator) AllocFrame() (uintptr, bool) {
	if a.limit != 0 && a.next >= a.limit {
		return 0, false
	}
	pa := a.next
	a.next += pageSize
	return pa, true
}

func newTestBuilder(t *testing.T, vaBits int) (*Builder, *fakeMemory) {
	t.Helper()

	mem := newFakeMemory()
	alloc := &bumpAllocator{next: 0x8000_0000}
	b := NewBuilder(alloc, mem, nil, nil, vaBits)

	root, err := b.NewRegime()
	if err != nil {
		t.Fatalf("NewRegime: %v", err)
	}
	b.SetRoots(root, root)

	return b, mem
}

func testAttrs() desc.Attrs {
	return desc.Attrs{
		AttrIndex: desc.NormalWB,
		AP:        desc.KernelRW,
		SH:        desc.ShareInner,
		AF:        desc.AFOn,
		XN:        desc.ENNone,
	}
}

// P2: after mapping a single page, Lookup returns it.
func TestMapRangeSinglePage(t *testing.T) {
	b, _ := newTestBuilder(t, 48)

	const va, pa = 0x1000, 0x9000_0000
	if err := b.MapRange(RegimeLow, va, va+pageSize, pa, testAttrs(), "test"); err != nil {
		t.Fatalf("MapRange: %v", err)
	}

	gotPA, gotAttrs, ok := b.Lookup(RegimeLow, va)
	if !ok {
		t.Fatalf("Lookup: not found")
	}
	if gotPA != pa {
		t.Fatalf("pa = %#x, want %#x", gotPA, pa)
	}
	if gotAttrs != testAttrs() {
		t.Fatalf("attrs = %+v, want %+v", gotAttrs, testAttrs())
	}
}

// P3: multi-page mapping preserves the pa = paStart + k*4K relationship.
func TestMapRangeMultiPage(t *testing.T) {
	b, _ := newTestBuilder(t, 48)

	const vaStart, paStart = 0x0040_0000, 0x9000_0000
	const n = 8

	if err := b.MapRange(RegimeLow, vaStart, vaStart+n*pageSize, paStart, testAttrs(), "test"); err != nil {
		t.Fatalf("MapRange: %v", err)
	}

	for k := uintptr(0); k < n; k++ {
		va := vaStart + k*pageSize
		pa, _, ok := b.Lookup(RegimeLow, va)
		if !ok {
			t.Fatalf("page %d: not mapped", k)
		}
		if want := paStart + k*pageSize; pa != want {
			t.Fatalf("page %d: pa = %#x, want %#x", k, pa, want)
		}
	}
}

// P4: mapping the same range twice with identical arguments leaves the
// table state bit-identical.
func TestMapRangeIdempotent(t *testing.T) {
	b, mem := newTestBuilder(t, 48)

	const va, pa = 0x2000, 0x9000_1000
	attrs := testAttrs()

	if err := b.MapRange(RegimeLow, va, va+pageSize, pa, attrs, "a"); err != nil {
		t.Fatalf("first MapRange: %v", err)
	}

	snapshot := make(map[uintptr]uint64, len(mem.entries))
	for k, v := range mem.entries {
		snapshot[k] = v
	}

	if err := b.MapRange(RegimeLow, va, va+pageSize, pa, attrs, "a"); err != nil {
		t.Fatalf("second MapRange: %v", err)
	}

	if len(mem.entries) != len(snapshot) {
		t.Fatalf("entry count changed: %d -> %d", len(snapshot), len(mem.entries))
	}
	for k, v := range snapshot {
		if mem.entries[k] != v {
			t.Fatalf("entry at %#x changed: %#x -> %#x", k, v, mem.entries[k])
		}
	}
}

// B1: va_end == va_start maps zero pages and mutates no state.
func TestMapRangeEmptyIsNoop(t *testing.T) {
	b, mem := newTestBuilder(t, 48)

	if err := b.MapRange(RegimeLow, 0x3000, 0x3000, 0x9000_2000, testAttrs(), "empty"); err != nil {
		t.Fatalf("MapRange: %v", err)
	}

	if len(mem.entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(mem.entries))
	}
	if len(b.Mappings()) != 0 {
		t.Fatalf("mapping records = %d, want 0", len(b.Mappings()))
	}
}

// B2: a range straddling a level-2 (2 MiB) boundary creates a new level-3
// table for the second half.
func TestMapRangeStraddlingLevel2Boundary(t *testing.T) {
	b, _ := newTestBuilder(t, 48)

	const level2Size = 1 << 21
	vaStart := uintptr(level2Size - pageSize)
	vaEnd := uintptr(level2Size + pageSize)
	const paStart = 0x9000_3000

	if err := b.MapRange(RegimeLow, vaStart, vaEnd, paStart, testAttrs(), "straddle"); err != nil {
		t.Fatalf("MapRange: %v", err)
	}

	for _, va := range []uintptr{vaStart, level2Size} {
		if _, _, ok := b.Lookup(RegimeLow, va); !ok {
			t.Fatalf("va %#x not mapped", va)
		}
	}
}

// B3: a read-only lookup of a never-mapped address reports no mapping
// without allocating.
func TestWalkReadOnlyMissDoesNotAllocate(t *testing.T) {
	b, mem := newTestBuilder(t, 48)

	before := len(mem.entries)

	if _, _, ok := b.Lookup(RegimeLow, 0x1234_5000); ok {
		t.Fatalf("Lookup unexpectedly succeeded")
	}

	if len(mem.entries) != before {
		t.Fatalf("entries changed on a failed read-only walk: %d -> %d", before, len(mem.entries))
	}
}

func TestMapRangeCrossRegimeRejected(t *testing.T) {
	b, _ := newTestBuilder(t, 48)

	const highBase = uintptr(1) << 63
	err := b.MapRange(RegimeLow, highBase-pageSize, highBase+pageSize, 0x9000_4000, testAttrs(), "cross")
	if err != ErrCrossRegime {
		t.Fatalf("err = %v, want ErrCrossRegime", err)
	}
}

// The UART MMIO frame may be requested through multiple call sites; an
// exact (pa, va, attrs) match must be a no-op rather than an overwrite.
func TestMapRangeExactDuplicateIsNoop(t *testing.T) {
	b, _ := newTestBuilder(t, 48)

	attrs := desc.Attrs{
		AttrIndex: desc.DeviceNGnRE,
		AP:        desc.KernelRW,
		SH:        desc.ShareOuter,
		AF:        desc.AFOn,
		XN:        desc.ENBoth,
	}

	const va, pa = 0x0900_0000, 0x0900_0000

	if err := b.MapRange(RegimeLow, va, va+pageSize, pa, attrs, "uart-a"); err != nil {
		t.Fatalf("first MapRange: %v", err)
	}
	if err := b.MapRange(RegimeLow, va, va+pageSize, pa, attrs, "uart-b"); err != nil {
		t.Fatalf("second MapRange: %v", err)
	}

	gotPA, gotAttrs, ok := b.Lookup(RegimeLow, va)
	if !ok || gotPA != pa || gotAttrs != attrs {
		t.Fatalf("lookup mismatch: pa=%#x attrs=%+v ok=%v", gotPA, gotAttrs, ok)
	}
}

func TestUnmapClearsMapping(t *testing.T) {
	b, _ := newTestBuilder(t, 48)

	const va, pa = 0x5000, 0x9000_5000
	if err := b.MapRange(RegimeLow, va, va+pageSize, pa, testAttrs(), "u"); err != nil {
		t.Fatalf("MapRange: %v", err)
	}

	if err := b.Unmap(RegimeLow, va, va+pageSize); err != nil {
		t.Fatalf("Unmap: %v", err)
	}

	if _, _, ok := b.Lookup(RegimeLow, va); ok {
		t.Fatalf("Lookup succeeded after Unmap")
	}
}

// P6 (I1): every table descriptor reachable from the root refers to a
// 4 KiB-aligned page.
func TestIntermediateTablesAreAligned(t *testing.T) {
	b, mem := newTestBuilder(t, 48)

	if err := b.MapRange(RegimeLow, 0x1_0000_0000, 0x1_0000_0000+pageSize, 0x9000_6000, testAttrs(), "deep"); err != nil {
		t.Fatalf("MapRange: %v", err)
	}

	// Every key ever written at a non-level-3 entry address must decode
	// to a table descriptor pointing at a page-aligned frame; since this
	// fake memory only ever receives frames from bumpAllocator (which
	// only ever advances by pageSize from a page-aligned base), alignment
	// holds by construction. This test instead asserts the decode path
	// agrees.
	for addr, raw := range mem.entries {
		kind, pa, _ := desc.DecodeAtLevel(raw, 0)
		if kind == desc.Table && pa%pageSize != 0 {
			t.Fatalf("table descriptor at %#x points at unaligned frame %#x", addr, pa)
		}
	}
}

func TestOutOfFramesIsFatalToWalk(t *testing.T) {
	mem := newFakeMemory()
	alloc := &bumpAllocator{next: 0x9000_0000, limit: 0x9000_0000 + pageSize}
	b := NewBuilder(alloc, mem, nil, nil, 48)

	root, err := b.NewRegime()
	if err != nil {
		t.Fatalf("NewRegime: %v", err)
	}
	b.SetRoots(root, root)

	err = b.MapRange(RegimeLow, 0x1000, 0x1000+pageSize, 0xa000_0000, testAttrs(), "oom")
	if err != ErrOutOfFrames {
		t.Fatalf("err = %v, want ErrOutOfFrames", err)
	}
}
