package reconstruct

import (
	"sort"

	"github.com/traceperf/traceperf/internal/model"
)

// Custom records already pair their own dispatch and completion, so the
// pass expands each record into its two endpoints on a merged timeline
// and replays the same state machine shape as the other families.

type customPoint struct {
	time  float64
	end   bool
	index int
}

type customState struct {
	depth uint32

	lastComplete    float64
	hasComplete     bool
	lastIdleStart   float64
	hasIdleStart    bool
	firstCompleter  bool
	anchor          float64
	prevDispEnd     uint64
	prevDispOpcode  string
	hasPrevDispatch bool
}

// RebuildCustom mutates the derived fields of an ordered, duplicate-free
// custom sequence. DtoC is already fixed at parse time; this pass fills
// the start/end queue depths, ctoc, ctod and the sequential flag.
func RebuildCustom(events []model.CustomEvent) {
	points := make([]customPoint, 0, 2*len(events))
	for i := range events {
		points = append(points,
			customPoint{time: events[i].StartTime, index: i},
			customPoint{time: events[i].EndTime, end: true, index: i})
	}
	sort.SliceStable(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if a.time != b.time {
			return a.time < b.time
		}
		// Same-instant end before start, as with the paired families.
		if a.end != b.end {
			return a.end
		}
		return a.index < b.index
	})

	st := customState{}
	for _, p := range points {
		ev := &events[p.index]
		if p.end {
			st.complete(ev)
		} else {
			st.dispatch(ev)
		}
	}
}

func (st *customState) dispatch(ev *model.CustomEvent) {
	if st.hasIdleStart {
		ev.CtoD = (ev.StartTime - st.lastIdleStart) * 1000
	}

	ev.Sequential = st.hasPrevDispatch &&
		st.prevDispEnd == ev.LBA &&
		st.prevDispOpcode == ev.Opcode

	st.depth++
	ev.StartQD = st.depth
	if st.depth == 1 {
		st.firstCompleter = true
		st.anchor = ev.StartTime
	}

	st.prevDispEnd = ev.LBA + uint64(ev.Size)
	st.prevDispOpcode = ev.Opcode
	st.hasPrevDispatch = true
}

func (st *customState) complete(ev *model.CustomEvent) {
	if st.firstCompleter {
		ev.CtoC = (ev.EndTime - st.anchor) * 1000
		st.firstCompleter = false
	} else if st.hasComplete {
		ev.CtoC = (ev.EndTime - st.lastComplete) * 1000
	}
	st.lastComplete = ev.EndTime
	st.hasComplete = true

	if st.depth > 0 {
		st.depth--
	}
	ev.EndQD = st.depth
	if st.depth == 0 {
		st.lastIdleStart = ev.EndTime
		st.hasIdleStart = true
	}
}
