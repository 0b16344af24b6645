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

func textAttrs() desc.Attrs {
	return desc.Attrs{AttrIndex: desc.NormalWB, AP: desc.KernelRO, SH: desc.ShareInner, AF: desc.AFOn, XN: desc.ENNone}
}

func rodataAttrs() desc.Attrs {
	return desc.Attrs{AttrIndex: desc.NormalWB, AP: desc.KernelRO, SH: desc.ShareInner, AF: desc.AFOn, XN: desc.ENBoth}
}

func dataAttrs() desc.Attrs {
	return desc.Attrs{AttrIndex: desc.NormalWB, AP: desc.KernelRW, SH: desc.ShareInner, AF: desc.AFOn, XN: desc.ENBoth}
}

func uartAttrs() desc.Attrs {
	return desc.Attrs{AttrIndex: desc.DeviceNGnRE, AP: desc.KernelRW, SH: desc.ShareOuter, AF: desc.AFOn, XN: desc.ENBoth}
}

func vectorAttrs() desc.Attrs {
	return desc.Attrs{AttrIndex: desc.NormalWB, AP: desc.KernelRO, SH: desc.ShareInner, AF: desc.AFOn, XN: desc.ENNone}
}

func trampolineAttrs() desc.Attrs {
	return desc.Attrs{AttrIndex: desc.NormalWB, AP: desc.KernelRO, SH: desc.ShareInner, AF: desc.AFOn, XN: desc.ENNone}
}

func rootTableAttrs() desc.Attrs {
	return desc.Attrs{AttrIndex: desc.NormalWB, AP: desc.KernelRW, SH: desc.ShareInner, AF: desc.AFOn, XN: desc.ENBoth}
}

// regions returns the fixed mapping set in the order spec.md §4.4's
// MAPPINGS_READY transition names it. Root tables (list item 8) are
// appended last, once their physical addresses are known, by
// installMappings rather than here.
func (o *Orchestrator) regions() []Region {
	c := o.cfg

	return []Region{
		{Name: "text", Start: c.TextStart, End: c.TextEnd, Attrs: textAttrs()},
		{Name: "rodata", Start: c.RODataStart, End: c.RODataEnd, Attrs: rodataAttrs()},
		{Name: "data+bss", Start: c.DataStart, End: c.DataEnd, Attrs: dataAttrs()},
		{Name: "vectors", Start: c.VectorTablePhys, End: c.VectorTablePhys + pageSize, Attrs: vectorAttrs()},
		{Name: "trampoline", Start: c.TrampolinePhys, End: c.TrampolineEnd, Attrs: trampolineAttrs()},
		{Name: "stack", Start: c.StackLow, End: c.StackHigh, Attrs: dataAttrs(), IdentityOnly: true},
	}
}

const pageSize = 1 << 12

// installMappings performs list items 1-8 of spec.md §4.4's
// MAPPINGS_READY transition: every region identity-mapped in the low
// regime, and (except where IdentityOnly) again at HighBase|phys in the
// high regime (invariant I5), plus the UART's asymmetric phys/virt pair
// (list item 4) and the root tables themselves (list item 8).
func (o *Orchestrator) installMappings() error {
	for _, r := range o.regions() {
		if err := o.builder.MapRange(ptable.RegimeLow, r.Start, r.End, r.Start, r.Attrs, r.Name); err != nil {
			return err
		}

		if r.IdentityOnly {
			continue
		}

		highStart := o.cfg.HighBase | r.Start
		highEnd := o.cfg.HighBase | r.End
		if err := o.builder.MapRange(ptable.RegimeHigh, highStart, highEnd, r.Start, r.Attrs, r.Name+"-high"); err != nil {
			return err
		}
	}

	// UART: identity for pre-switch debug, a separate high mapping at
	// UARTVirt for post-switch debug (spec.md §4.4 list item 4; UARTVirt
	// is not necessarily HighBase|UARTPhys verbatim, so it is mapped
	// explicitly rather than derived).
	if err := o.builder.MapRange(ptable.RegimeLow, o.cfg.UARTPhys, o.cfg.UARTPhys+pageSize, o.cfg.UARTPhys, uartAttrs(), "uart-phys"); err != nil {
		return err
	}
	if err := o.builder.MapRange(ptable.RegimeHigh, o.cfg.UARTVirt, o.cfg.UARTVirt+pageSize, o.cfg.UARTPhys, uartAttrs(), "uart-virt"); err != nil {
		return err
	}

	// Root tables: identity-mapped so post-MMU code can still touch
	// page-table pages through the addresses it used before (spec.md
	// §4.4 list item 8).
	rootLow := o.builder.RootPA(ptable.RegimeLow)
	rootHigh := o.builder.RootPA(ptable.RegimeHigh)

	if err := o.builder.MapRange(ptable.RegimeLow, rootLow, rootLow+pageSize, rootLow, rootTableAttrs(), "root-low"); err != nil {
		return err
	}
	if rootHigh != rootLow {
		if err := o.builder.MapRange(ptable.RegimeLow, rootHigh, rootHigh+pageSize, rootHigh, rootTableAttrs(), "root-high"); err != nil {
			return err
		}
	}

	return nil
}
