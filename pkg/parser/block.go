package parser

import (
	"math"
	"regexp"

	"github.com/traceperf/traceperf/internal/model"
	"github.com/traceperf/traceperf/internal/pool"
)

// Block-layer ftrace lines look like:
//
//	jbd2/sda8-295 [001] d..2 123.456789: block_rq_issue: 8,0 WS 4096 () 40960 + 8 [jbd2/sda8]
//	<idle>-0      [000] d.h2 123.456901: block_rq_complete: 8,0 WS () 40960 + 8 [0]
//
// The numeric field after the rwbs string is present on issue lines only;
// it defaults to zero when absent.
var blockPattern = regexp.MustCompile(
	`^\s*(?P<process>.+?)\s+\[(?P<cpu>\d+)\]` +
		`\s+(?P<flags>\S+)\s+(?P<time>\d+\.\d+):` +
		`\s+(?P<action>block_rq_issue|block_rq_complete):` +
		`\s+(?P<major>\d+),(?P<minor>\d+)` +
		`\s+(?P<iotype>\S+)` +
		`(?:\s+(?P<extra>\d+))?` +
		`\s+\([^)]*\)` +
		`\s+(?P<sector>\d+)\s+\+\s+(?P<size>\d+)` +
		`\s+\[(?P<cmd>[^\]]*)\]`)

var blockIdx = namedIndex(blockPattern)

// ParseBlock extracts a block-layer request event from one trace line.
// It returns false when the line does not match. A sector of MaxUint64
// is an observed "unknown" sentinel and is reset to zero.
func ParseBlock(line []byte) (model.BlockEvent, bool) {
	m := blockPattern.FindSubmatch(line)
	if m == nil {
		return model.BlockEvent{}, false
	}

	ev := model.BlockEvent{
		Time:     pool.Float64OrZero(m[blockIdx["time"]]),
		Process:  string(m[blockIdx["process"]]),
		CPU:      pool.Uint32OrZero(m[blockIdx["cpu"]]),
		Flags:    string(m[blockIdx["flags"]]),
		DevMajor: pool.Uint32OrZero(m[blockIdx["major"]]),
		DevMinor: pool.Uint32OrZero(m[blockIdx["minor"]]),
		IOType:   string(m[blockIdx["iotype"]]),
		Extra:    pool.Uint32OrZero(m[blockIdx["extra"]]),
		Size:     pool.Uint32OrZero(m[blockIdx["size"]]),
		Command:  string(m[blockIdx["cmd"]]),
	}

	if string(m[blockIdx["action"]]) == "block_rq_issue" {
		ev.Action = model.ActionDispatch
	} else {
		ev.Action = model.ActionComplete
	}

	sector := pool.Uint64OrZero(m[blockIdx["sector"]])
	if sector == math.MaxUint64 {
		sector = 0
	}
	ev.Sector = sector

	return ev, true
}

// IOClass reduces an rwbs string to its request class letter.
func IOClass(iotype string) byte {
	if len(iotype) == 0 {
		return 0
	}
	return iotype[0]
}

// ClassifiesSequential reports whether a block request class takes part
// in continuity detection. Only reads, writes and discards do; flushes
// and other classes never count as sequential neighbors.
func ClassifiesSequential(iotype string) bool {
	switch IOClass(iotype) {
	case 'R', 'W', 'D':
		return true
	default:
		return false
	}
}
