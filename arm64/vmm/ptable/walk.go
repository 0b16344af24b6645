// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ptable

import "github.com/xzt0001/trajan/arm64/vmm/desc"

const idxMask = entriesPerTable - 1

// walk descends from the regime's root to the level-3 entry address for
// va. When create is true, an invalid intermediate entry causes a new
// zeroed child table to be allocated and linked (spec.md §4.2); when
// false, an invalid intermediate entry yields ErrNotMapped without
// allocating (boundary B3).
func (b *Builder) walk(regime Regime, va uintptr, create bool) (entryAddr uintptr, err error) {
	table := b.RootPA(regime)

	for level := 0; level < 4; level++ {
		idx := (uint64(va) >> levelShifts[level]) & idxMask
		addr := table + uintptr(idx)*entrySize

		if level == 3 {
			return addr, nil
		}

		raw := b.mem.ReadEntry(addr)
		kind, pa, _ := desc.DecodeAtLevel(raw, level)

		switch kind {
		case desc.Invalid:
			if !create {
				return 0, ErrNotMapped
			}

			child, ok := b.alloc.AllocFrame()
			if !ok {
				return 0, ErrOutOfFrames
			}
			b.mem.ZeroPage(child)

			d, encErr := desc.EncodeTable(child)
			if encErr != nil {
				// AllocFrame is contracted to return page-aligned
				// frames; an unaligned frame is an allocator bug, not
				// a walk-time condition this function recovers from.
				panic("vmm/ptable: frame allocator returned misaligned frame: " + encErr.Error())
			}

			b.cleanLine(addr)
			b.mem.WriteEntry(addr, d)
			b.cleanLine(addr)

			pa = child
		case desc.Table:
			// descend
		default:
			// A page or block descriptor where an intermediate table
			// was expected: the caller asked to walk past a leaf.
			return 0, ErrNotMapped
		}

		table = pa
	}

	panic("vmm/ptable: unreachable")
}

// Walk performs a page table walk for va, optionally creating
// intermediate tables. It returns the physical address of the level-3
// entry slot (not its contents) so callers can read or write the leaf
// descriptor directly.
func (b *Builder) Walk(regime Regime, va uintptr, create bool) (uintptr, error) {
	return b.walk(regime, va, create)
}
