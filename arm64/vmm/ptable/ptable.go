// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package ptable builds and maintains the two 4-level, 4 KiB-granule
// AArch64 translation tables (spec.md §4.2): the low regime (TTBR0) and
// the high regime (TTBR1).
//
// The walk shape is grounded on gopheros's kernel/mem/vmm package
// (walk.go's pageTableWalker descent, map.go's create-on-miss table
// allocation) generalized from a 2-level x86 walk to the 4-level AArch64
// one and from a recursively-mapped virtual walk to a direct
// physical-address walk (bring-up runs before any virtual mapping of the
// tables themselves exists).
package ptable

import (
	"errors"

	"github.com/xzt0001/trajan/arm64/vmm/desc"
	"github.com/xzt0001/trajan/internal/reg"
)

// Regime distinguishes the low (TTBR0) and high (TTBR1) translation
// regimes (spec.md §3 "Translation regime").
type Regime int

const (
	RegimeLow Regime = iota
	RegimeHigh
)

func (r Regime) String() string {
	if r == RegimeHigh {
		return "high"
	}
	return "low"
}

const (
	pageSize        = 1 << 12
	entriesPerTable = 512
	entrySize       = 8
)

// levelShifts gives the VA bit offset selecting the index at each of the
// four levels, per spec.md §4.2: bits [47:39] [38:30] [29:21] [20:12].
var levelShifts = [4]uint{39, 30, 21, 12}

var (
	// ErrNotMapped is returned by a read-only walk (create=false) that
	// reaches an invalid intermediate entry.
	ErrNotMapped = errors.New("vmm/ptable: virtual address is not mapped")
	// ErrOutOfFrames is returned when walk(create=true) cannot allocate
	// an intermediate table page. Fatal to bring-up (spec.md §4.2).
	ErrOutOfFrames = errors.New("vmm/ptable: frame allocator exhausted")
	// ErrCrossRegime is returned when a requested range's endpoints do
	// not agree on which regime they belong to.
	ErrCrossRegime = errors.New("vmm/ptable: range straddles the low/high regime boundary")
)

// FrameAllocator is the frame allocator interface consumed from the
// physical frame allocator (spec.md §6), external to this subsystem.
type FrameAllocator interface {
	// AllocFrame returns a fresh, page-aligned physical frame. ok is
	// false when no frame is available.
	AllocFrame() (pa uintptr, ok bool)
}

// Memory abstracts access to table storage. The production
// implementation (HardwareMemory) reads/writes physical memory directly;
// tests substitute a simulated backing store, the same technique
// gopheros's walk_test.go uses by overriding ptePtrFn.
type Memory interface {
	ReadEntry(addr uintptr) uint64
	WriteEntry(addr uintptr, v uint64)
	ZeroPage(addr uintptr)
}

// HardwareMemory accesses table storage through the runtime's 64-bit
// register primitives (internal/reg.Read64/Write64), the same primitives
// internal/reg already uses for atomic MMIO/RAM access.
type HardwareMemory struct{}

func (HardwareMemory) ReadEntry(addr uintptr) uint64 {
	return reg.Read64(uint64(addr))
}

func (HardwareMemory) WriteEntry(addr uintptr, v uint64) {
	reg.Write64(uint64(addr), v)
}

func (HardwareMemory) ZeroPage(addr uintptr) {
	for i := uintptr(0); i < entriesPerTable; i++ {
		reg.Write64(uint64(addr+i*entrySize), 0)
	}
}

// CacheMaintainer performs the cache-clean-to-point-of-coherency that
// must sandwich every descriptor write (spec.md §4.2, §5). Implemented by
// policy.Policy; accepted here as an interface so ptable never imports
// policy (policy is the sole owner of architected maintenance sequences,
// per spec.md §4.3 — ptable only calls into it, never reimplements it).
type CacheMaintainer interface {
	CleanDataCacheLine(addr uintptr)
}

// TLBInvalidator issues the regime-wide TLB invalidation MapRange and
// Unmap require after a batch of descriptor writes (spec.md §4.2).
type TLBInvalidator interface {
	TLBIFull()
}

// MappingRecord is a diagnostics-only record of an installed mapping
// (spec.md §3).
type MappingRecord struct {
	VAStart, VAEnd uintptr
	PAStart        uintptr
	Attrs          desc.Attrs
	Name           string
}

// maxMappingRecords bounds the diagnostic mapping list (spec.md §3:
// "overflow drops the record with a warning but does not fail the
// mapping itself").
const maxMappingRecords = 256

// Builder owns the two translation regimes and is the sole component
// that may create or mutate page table entries (spec.md §4.2).
type Builder struct {
	mem   Memory
	alloc FrameAllocator
	cache CacheMaintainer
	tlb   TLBInvalidator

	vaBits int

	rootLow, rootHigh uintptr

	mappings []MappingRecord
	// Warn is called when a diagnostic mapping record is dropped due to
	// maxMappingRecords overflow, or left nil to discard the warning.
	Warn func(string)
}

// NewBuilder constructs a Builder. vaBits records the configured VA width
// (39 or 48); walks always use four levels, and the regime an address
// belongs to is decided by its bit 63 alone.
func NewBuilder(alloc FrameAllocator, mem Memory, cache CacheMaintainer, tlb TLBInvalidator, vaBits int) *Builder {
	return &Builder{
		mem:    mem,
		alloc:  alloc,
		cache:  cache,
		tlb:    tlb,
		vaBits: vaBits,
	}
}

// NewRegime allocates and zeroes a new root table, returning its physical
// address.
func (b *Builder) NewRegime() (uintptr, error) {
	root, ok := b.alloc.AllocFrame()
	if !ok {
		return 0, ErrOutOfFrames
	}

	b.mem.ZeroPage(root)

	return root, nil
}

// SetRoots installs the already-allocated root tables for both regimes.
func (b *Builder) SetRoots(low, high uintptr) {
	b.rootLow, b.rootHigh = low, high
}

// RootPA returns the physical address of a regime's root table.
func (b *Builder) RootPA(r Regime) uintptr {
	if r == RegimeHigh {
		return b.rootHigh
	}
	return b.rootLow
}

// Mappings returns the diagnostic mapping records accumulated so far.
func (b *Builder) Mappings() []MappingRecord {
	return b.mappings
}

// regimeOf classifies which regime a VA belongs to by its canonical top
// bit (63), not the top translated bit (vaBits-1): spec.md I7 requires
// HIGH_BASE to have every bit from 63 down to vaBits set to 1 and every
// bit below that zero, and every address this builder ever walks is
// either an identity/low address (bits [63:vaBits] all zero) or
// HIGH_BASE|phys (bits [63:vaBits] all one) — never something in
// between. Bit 63 alone is therefore sufficient to distinguish the two,
// and matches bringup.Config.Validate's own canonicality check.
func (b *Builder) regimeOf(va uintptr) Regime {
	if uint64(va)>>63 == 1 {
		return RegimeHigh
	}
	return RegimeLow
}

func alignDown(x uintptr) uintptr {
	return x &^ (pageSize - 1)
}

func alignUp(x uintptr) uintptr {
	return alignDown(x + pageSize - 1)
}

func (b *Builder) recordMapping(r MappingRecord) {
	if len(b.mappings) >= maxMappingRecords {
		if b.Warn != nil {
			b.Warn("vmm/ptable: mapping record list full, dropping record for " + r.Name)
		}
		return
	}
	b.mappings = append(b.mappings, r)
}

func (b *Builder) cleanLine(addr uintptr) {
	if b.cache != nil {
		b.cache.CleanDataCacheLine(addr)
	}
}

func (b *Builder) invalidateTLB() {
	if b.tlb != nil {
		b.tlb.TLBIFull()
	}
}
