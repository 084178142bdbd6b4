// Package model defines core data structures for traceperf.
package model

// Action identifies the lifecycle stage a trace record describes.
type Action uint8

const (
	ActionDispatch Action = iota
	ActionComplete
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionDispatch:
		return "dispatch"
	case ActionComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// UfsEvent is one UFS host-controller trace record.
// Fields up to HWQueueID are set once at parse time; the derived fields
// (QueueDepth onward) are written exactly once by the reconstructor.
type UfsEvent struct {
	// Time is the trace timestamp in seconds, monotonic within one file.
	Time float64

	// Process is the task name that emitted the record.
	Process string

	// CPU is the logical CPU the record was traced on.
	CPU uint32

	// Action is dispatch (send_req) or complete (complete_rsp).
	Action Action

	// Tag is the request slot id. Slots are reused across requests.
	Tag uint32

	// Opcode is the SCSI opcode string, e.g. "0x2a".
	Opcode string

	// LBA is the logical block address in 4 KiB units.
	LBA uint64

	// Size is the transfer size in 4 KiB units.
	Size uint32

	// GroupID is the context group id.
	GroupID uint32

	// HWQueueID is the hardware queue id, -1 when the controller
	// does not report one.
	HWQueueID int32

	// Derived fields, written by reconstruct.
	QueueDepth uint32
	DtoC       float64 // dispatch-to-complete, ms
	CtoC       float64 // complete-to-complete, ms
	CtoD       float64 // complete-to-dispatch idle gap, ms
	Sequential bool
}

// BlockEvent is one block-layer trace record (block_rq_issue /
// block_rq_complete).
type BlockEvent struct {
	Time    float64
	Process string
	CPU     uint32

	// Flags is the ftrace irq-state field, e.g. "d..2".
	Flags string

	Action Action

	// DevMajor and DevMinor identify the block device.
	DevMajor uint32
	DevMinor uint32

	// IOType is the rwbs field; the first letter encodes
	// read/write/discard/flush.
	IOType string

	// Extra is the optional field between the rwbs and the sector,
	// zero when absent.
	Extra uint32

	// Sector is the starting sector in 512-byte units.
	Sector uint64

	// Size is the request size in sectors.
	Size uint32

	// Command is the issuing command name (issue) or status (complete).
	Command string

	// Derived fields, written by reconstruct.
	QueueDepth uint32
	DtoC       float64
	CtoC       float64
	CtoD       float64
	Sequential bool
}

// CustomEvent is one record of the third-party CSV trace format. A row
// already carries both endpoints of a request, so there is no separate
// dispatch/complete pairing.
type CustomEvent struct {
	Opcode string
	LBA    uint64
	Size   uint32

	// StartTime and EndTime are in seconds.
	StartTime float64
	EndTime   float64

	// DtoC is (EndTime - StartTime) * 1000, fixed at parse time.
	DtoC float64

	// Derived fields, written by reconstruct.
	StartQD    uint32
	EndQD      uint32
	CtoC       float64
	CtoD       float64
	Sequential bool
}

// TraceSet aggregates the parsed events of one source file together with
// the ingestion counters. Callers that care about data quality compare
// LinesRead against EventsParsed; row-level problems are never surfaced
// as errors.
type TraceSet struct {
	Ufs    []UfsEvent
	Block  []BlockEvent
	Custom []CustomEvent

	LinesRead    int64
	EventsParsed int64
}

// Events returns the total number of parsed events.
func (s *TraceSet) Events() int64 {
	return int64(len(s.Ufs) + len(s.Block) + len(s.Custom))
}

// Merge appends the contents of other into s. Used when concatenating
// per-chunk results; order is restored later by the sort stage.
func (s *TraceSet) Merge(other *TraceSet) {
	s.Ufs = append(s.Ufs, other.Ufs...)
	s.Block = append(s.Block, other.Block...)
	s.Custom = append(s.Custom, other.Custom...)
	s.LinesRead += other.LinesRead
	s.EventsParsed += other.EventsParsed
}
