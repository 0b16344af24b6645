// ARM64 processor support
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bringup

import "github.com/xzt0001/trajan/arm64/vmm/ptable"

// criticalCheck names one address whose presence and mapped-ness gates
// the MAPPINGS_READY -> VERIFIED transition.
type criticalCheck struct {
	name   string
	regime ptable.Regime
	va     uintptr
}

func (o *Orchestrator) criticalChecks() []criticalCheck {
	c := o.cfg

	return []criticalCheck{
		{"continuation-entry", ptable.RegimeLow, c.ContinuationEntry},
		{"continuation-entry-high", ptable.RegimeHigh, c.ContinuationHighEntry},
		{"uart-phys", ptable.RegimeLow, c.UARTPhys},
		{"uart-virt", ptable.RegimeHigh, c.UARTVirt},
		{"vector-table", ptable.RegimeLow, c.VectorTablePhys},
		{"vector-table-high", ptable.RegimeHigh, c.HighBase | c.VectorTablePhys},
		{"trampoline-phys", ptable.RegimeLow, c.TrampolinePhys},
		{"trampoline-high", ptable.RegimeHigh, c.HighBase | c.TrampolinePhys},
		{"current-sp", ptable.RegimeLow, c.StackLow},
	}
}

// verify performs the MAPPINGS_READY -> VERIFIED transition: every
// critical address must resolve to a valid mapping (spec.md §4.4). A
// miss is fatal and is never silently repaired — the source's auto-fix
// behaviour here is the Open Question SPEC_FULL.md resolves in favor of
// the stricter, fatal reading (see DESIGN.md).
func (o *Orchestrator) verify() error {
	for _, chk := range o.criticalChecks() {
		if _, _, ok := o.builder.Lookup(chk.regime, chk.va); !ok {
			return missingMappingError(chk.name)
		}
	}

	return nil
}

type missingMappingError string

func (e missingMappingError) Error() string { return "bringup: missing critical mapping: " + string(e) }
