// Package parser classifies raw trace lines and extracts typed events
// for the three supported families: UFS host-controller traces, Linux
// block-layer request traces, and the custom CSV trace format.
package parser

import (
	"bytes"
	"fmt"

	"github.com/traceperf/traceperf/internal/model"
)

// Family identifies a trace event family.
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilyUFS
	FamilyBlock
	FamilyCustom
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyUFS:
		return "ufs"
	case FamilyBlock:
		return "block"
	case FamilyCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseFamily parses a family name as given on the command line.
func ParseFamily(s string) (Family, error) {
	switch s {
	case "ufs", "UFS":
		return FamilyUFS, nil
	case "block", "Block", "blk":
		return FamilyBlock, nil
	case "custom", "csv":
		return FamilyCustom, nil
	default:
		return FamilyUnknown, fmt.Errorf("%w: %q", ErrUnknownFamily, s)
	}
}

// Markers used by Classify. Each marker is a necessary condition of the
// corresponding full pattern, so the prefilter never changes which lines
// are accepted; it only skips the expensive match on lines that cannot
// possibly match.
var (
	ufsMarker           = []byte("ufshcd_command:")
	blockIssueMarker    = []byte("block_rq_issue:")
	blockCompleteMarker = []byte("block_rq_complete:")
	customPrefix        = []byte("0x")
)

// Classify runs the cheap substring prefilter and reports which family's
// full pattern is worth running on this line. FamilyUnknown means no
// family can match.
func Classify(line []byte) Family {
	if bytes.Contains(line, ufsMarker) {
		return FamilyUFS
	}
	if bytes.Contains(line, blockIssueMarker) || bytes.Contains(line, blockCompleteMarker) {
		return FamilyBlock
	}
	if bytes.HasPrefix(bytes.TrimLeft(line, " \t"), customPrefix) && bytes.Count(line, []byte{','}) >= 4 {
		return FamilyCustom
	}
	return FamilyUnknown
}

// ParseLine extracts one line into set. It returns true when the line
// produced an event. Lines matching no pattern and lines whose pattern
// match fails are silently dropped; callers observe data quality through
// the TraceSet counters, not through errors.
func ParseLine(line []byte, set *model.TraceSet) bool {
	switch Classify(line) {
	case FamilyUFS:
		if ev, ok := ParseUfs(line); ok {
			set.Ufs = append(set.Ufs, ev)
			return true
		}
	case FamilyBlock:
		if ev, ok := ParseBlock(line); ok {
			set.Block = append(set.Block, ev)
			return true
		}
	case FamilyCustom:
		if ev, ok := ParseCustom(line); ok {
			set.Custom = append(set.Custom, ev)
			return true
		}
	}
	return false
}
