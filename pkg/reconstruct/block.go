package reconstruct

import (
	"github.com/traceperf/traceperf/internal/model"
	"github.com/traceperf/traceperf/pkg/parser"
)

// blockKey matches a block_rq_issue to its block_rq_complete.
type blockKey struct {
	sector  uint64
	ioClass byte
	size    uint32
}

type blockState struct {
	inflight map[blockKey]float64
	depth    uint32

	lastComplete    float64
	hasComplete     bool
	lastIdleStart   float64
	hasIdleStart    bool
	firstCompleter  bool
	anchor          float64
	prevDispEnd     uint64
	prevDispClass   byte
	hasPrevDispatch bool
}

// RebuildBlock mutates the derived fields of an ordered, duplicate-free
// block-layer sequence in one forward pass. It returns the sequence
// because spurious zero-size write-completion markers are removed from
// the output entirely, not merely zeroed.
func RebuildBlock(events []model.BlockEvent) []model.BlockEvent {
	st := blockState{inflight: make(map[blockKey]float64, 64)}
	out := events[:0]
	for i := range events {
		ev := &events[i]
		if ev.Action == model.ActionComplete && ev.Size == 0 && parser.IOClass(ev.IOType) == 'W' {
			// Duplicate flush marker; noise, not state.
			continue
		}
		if ev.Action == model.ActionDispatch {
			st.dispatch(ev)
		} else {
			st.complete(ev)
		}
		ev.QueueDepth = st.depth
		out = append(out, *ev)
	}
	return out
}

func (st *blockState) dispatch(ev *model.BlockEvent) {
	if st.hasIdleStart {
		ev.CtoD = (ev.Time - st.lastIdleStart) * 1000
	}

	// Continuity applies to read/write/discard only; flush and other
	// classes neither match nor become the comparison partner's class.
	ev.Sequential = st.hasPrevDispatch &&
		parser.ClassifiesSequential(ev.IOType) &&
		st.prevDispClass == parser.IOClass(ev.IOType) &&
		st.prevDispEnd == ev.Sector

	st.inflight[blockKey{ev.Sector, parser.IOClass(ev.IOType), ev.Size}] = ev.Time
	st.depth++
	if st.depth == 1 {
		st.firstCompleter = true
		st.anchor = ev.Time
	}

	st.prevDispEnd = ev.Sector + uint64(ev.Size)
	st.prevDispClass = parser.IOClass(ev.IOType)
	st.hasPrevDispatch = true
}

func (st *blockState) complete(ev *model.BlockEvent) {
	key := blockKey{ev.Sector, parser.IOClass(ev.IOType), ev.Size}
	if dispatched, ok := st.inflight[key]; ok {
		ev.DtoC = (ev.Time - dispatched) * 1000
		delete(st.inflight, key)
	}

	if st.firstCompleter {
		ev.CtoC = (ev.Time - st.anchor) * 1000
		st.firstCompleter = false
	} else if st.hasComplete {
		ev.CtoC = (ev.Time - st.lastComplete) * 1000
	}
	st.lastComplete = ev.Time
	st.hasComplete = true

	if st.depth > 0 {
		st.depth--
	}
	if st.depth == 0 {
		st.lastIdleStart = ev.Time
		st.hasIdleStart = true
	}
}
