// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ptable

import "github.com/xzt0001/trajan/arm64/vmm/desc"

// MapRange installs page descriptors for [vaStart, vaEnd) mapped to a
// contiguous physical range starting at paStart, in the given regime
// (spec.md §4.2).
//
// Endpoints not on a 4 KiB boundary are rounded outward (start down, end
// up). The range must not straddle the low/high regime boundary; the
// caller is responsible for issuing one call per regime (spec.md's
// "tie-break / edge policies"). Re-mapping an identical (pa, va, attrs)
// range is a no-op (idempotence, P4): the exact match is detected by
// comparing the computed descriptor against what is already installed,
// and the write (and its cache maintenance) is skipped as the existing
// descriptor is already correct. A genuinely different mapping at the
// same VA overwrites.
func (b *Builder) MapRange(regime Regime, vaStart, vaEnd, paStart uintptr, attrs desc.Attrs, name string) error {
	vaStart = alignDown(vaStart)
	vaEnd = alignUp(vaEnd)

	if vaEnd == vaStart {
		return nil // B1: zero pages, no state mutated.
	}

	if b.regimeOf(vaStart) != regime || b.regimeOf(vaEnd-1) != regime {
		return ErrCrossRegime
	}

	wrote := false

	pa := paStart
	for va := vaStart; va < vaEnd; va, pa = va+pageSize, pa+pageSize {
		entryAddr, err := b.walk(regime, va, true)
		if err != nil {
			return err
		}

		want, err := desc.EncodePage(pa, attrs)
		if err != nil {
			return err
		}

		if b.mem.ReadEntry(entryAddr) == want {
			continue // exact match already installed; no-op.
		}

		b.cleanLine(entryAddr)
		b.mem.WriteEntry(entryAddr, want)
		b.cleanLine(entryAddr)

		wrote = true
	}

	if wrote {
		b.invalidateTLB()
	}

	b.recordMapping(MappingRecord{
		VAStart: vaStart,
		VAEnd:   vaEnd,
		PAStart: paStart,
		Attrs:   attrs,
		Name:    name,
	})

	return nil
}

// Lookup performs a read-only walk, returning the physical address and
// attributes mapped at va, or ok=false if va is not mapped.
func (b *Builder) Lookup(regime Regime, va uintptr) (pa uintptr, attrs desc.Attrs, ok bool) {
	entryAddr, err := b.walk(regime, alignDown(va), false)
	if err != nil {
		return 0, desc.Attrs{}, false
	}

	raw := b.mem.ReadEntry(entryAddr)
	kind, pa, attrs := desc.DecodeAtLevel(raw, 3)
	if kind != desc.Page {
		return 0, desc.Attrs{}, false
	}

	return pa, attrs, true
}

// Unmap clears the mapping for [vaStart, vaEnd) (supplementing spec.md
// §4.2, whose lifecycle paragraph names "the map_range/unmap interface"
// without separately specifying Unmap; see SPEC_FULL.md). It does not
// reclaim the underlying frame: bring-up never frees (spec.md §5), and
// frame reclamation on unmap is a post bring-up kernel policy decision
// outside this subsystem.
func (b *Builder) Unmap(regime Regime, vaStart, vaEnd uintptr) error {
	vaStart = alignDown(vaStart)
	vaEnd = alignUp(vaEnd)

	if vaEnd == vaStart {
		return nil
	}

	if b.regimeOf(vaStart) != regime || b.regimeOf(vaEnd-1) != regime {
		return ErrCrossRegime
	}

	cleared := false

	for va := vaStart; va < vaEnd; va += pageSize {
		entryAddr, err := b.walk(regime, va, false)
		if err == ErrNotMapped {
			continue
		}
		if err != nil {
			return err
		}

		if b.mem.ReadEntry(entryAddr) == 0 {
			continue
		}

		b.cleanLine(entryAddr)
		b.mem.WriteEntry(entryAddr, 0)
		b.cleanLine(entryAddr)

		cleared = true
	}

	if cleared {
		b.invalidateTLB()
	}

	return nil
}
