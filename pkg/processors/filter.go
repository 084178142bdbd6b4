// Package processors provides transformations applied to reconstructed
// event slices before storage or presentation.
package processors

import (
	"github.com/traceperf/traceperf/internal/model"
	"github.com/traceperf/traceperf/pkg/parser"
)

// TimeRange is an inclusive timestamp window in seconds. A zero-valued
// bound is open on that side.
type TimeRange struct {
	From float64
	To   float64
}

func (r TimeRange) contains(t float64) bool {
	if r.From != 0 && t < r.From {
		return false
	}
	if r.To != 0 && t > r.To {
		return false
	}
	return true
}

// AddrRange is an inclusive address window: 4 KiB units for UFS and
// custom events, sectors for block events. A zero-valued bound is open
// on that side.
type AddrRange struct {
	From uint64
	To   uint64
}

func (r AddrRange) contains(a uint64) bool {
	if r.From != 0 && a < r.From {
		return false
	}
	if r.To != 0 && a > r.To {
		return false
	}
	return true
}

// FilterTime removes events outside the window, in place. Filtering is
// idempotent: applying the same range twice is a no-op after the first
// pass. Custom events are judged by their start time.
func FilterTime(set *model.TraceSet, r TimeRange) {
	ufs := set.Ufs[:0]
	for i := range set.Ufs {
		if r.contains(set.Ufs[i].Time) {
			ufs = append(ufs, set.Ufs[i])
		}
	}
	set.Ufs = ufs

	block := set.Block[:0]
	for i := range set.Block {
		if r.contains(set.Block[i].Time) {
			block = append(block, set.Block[i])
		}
	}
	set.Block = block

	custom := set.Custom[:0]
	for i := range set.Custom {
		if r.contains(set.Custom[i].StartTime) {
			custom = append(custom, set.Custom[i])
		}
	}
	set.Custom = custom
}

// FilterAddr removes events outside the address window, in place, with
// the same idempotence guarantee as FilterTime.
func FilterAddr(set *model.TraceSet, r AddrRange) {
	ufs := set.Ufs[:0]
	for i := range set.Ufs {
		if r.contains(set.Ufs[i].LBA) {
			ufs = append(ufs, set.Ufs[i])
		}
	}
	set.Ufs = ufs

	block := set.Block[:0]
	for i := range set.Block {
		if r.contains(set.Block[i].Sector) {
			block = append(block, set.Block[i])
		}
	}
	set.Block = block

	custom := set.Custom[:0]
	for i := range set.Custom {
		if r.contains(set.Custom[i].LBA) {
			custom = append(custom, set.Custom[i])
		}
	}
	set.Custom = custom
}

// FilterFamily drops every family other than fam, in place. An unknown
// family keeps the set untouched.
func FilterFamily(set *model.TraceSet, fam parser.Family) {
	switch fam {
	case parser.FamilyUFS:
		set.Block = nil
		set.Custom = nil
	case parser.FamilyBlock:
		set.Ufs = nil
		set.Custom = nil
	case parser.FamilyCustom:
		set.Ufs = nil
		set.Block = nil
	}
}
