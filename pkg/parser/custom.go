package parser

import (
	"bytes"

	"github.com/traceperf/traceperf/internal/model"
	"github.com/traceperf/traceperf/internal/pool"
)

// ParseCustom extracts one record of the 5-field CSV trace format:
//
//	opcode,lba,size,start_time,end_time
//
// Header, comment and blank lines are recognized and skipped; they are
// not errors, they just produce no event. DtoC is fixed at parse time
// from the two endpoint timestamps.
func ParseCustom(line []byte) (model.CustomEvent, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == '#' {
		return model.CustomEvent{}, false
	}

	var fields [5][]byte
	n := 0
	for n < 4 {
		i := bytes.IndexByte(line, ',')
		if i < 0 {
			return model.CustomEvent{}, false
		}
		fields[n] = bytes.TrimSpace(line[:i])
		line = line[i+1:]
		n++
	}
	// A trailing comma would smuggle a sixth field into the last slot;
	// treat that as a non-matching line.
	if bytes.IndexByte(line, ',') >= 0 {
		return model.CustomEvent{}, false
	}
	fields[4] = bytes.TrimSpace(line)

	// Header rows carry a non-hex opcode column.
	if !bytes.HasPrefix(fields[0], customPrefix) {
		return model.CustomEvent{}, false
	}

	ev := model.CustomEvent{
		Opcode:    string(fields[0]),
		LBA:       pool.Uint64OrZero(fields[1]),
		Size:      pool.Uint32OrZero(fields[2]),
		StartTime: pool.Float64OrZero(fields[3]),
		EndTime:   pool.Float64OrZero(fields[4]),
	}
	ev.DtoC = (ev.EndTime - ev.StartTime) * 1000

	return ev, true
}
