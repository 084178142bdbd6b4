package reconstruct

import "github.com/traceperf/traceperf/internal/model"

// ufsKey matches a dispatch to its eventual completion. Tag slots are
// reused across requests but identify at most one in-flight request at
// a time.
type ufsKey struct {
	tag    uint32
	opcode string
}

// ufsState is the per-pass mutable state. It is owned exclusively by
// one RebuildUfs call, never shared.
type ufsState struct {
	inflight map[ufsKey]float64
	depth    uint32

	lastComplete    float64
	hasComplete     bool
	lastIdleStart   float64 // completion that brought the queue to zero
	hasIdleStart    bool
	firstCompleter  bool    // next completion measures ctoc from anchor
	anchor          float64 // dispatch that took the queue from 0 to 1
	prevDispEnd     uint64  // previous dispatch LBA+Size
	prevDispOpcode  string
	hasPrevDispatch bool
}

// RebuildUfs mutates the derived fields of an ordered, duplicate-free
// UFS sequence in one forward pass.
//
// The pass is intrinsically sequential: queue depth and the completion
// anchors are global across tags. A per-tag partitioned variant would
// still need a global-order pass for continuity detection, so the
// single pass is kept.
func RebuildUfs(events []model.UfsEvent) {
	st := ufsState{inflight: make(map[ufsKey]float64, 64)}
	for i := range events {
		ev := &events[i]
		if ev.Action == model.ActionDispatch {
			st.dispatch(ev)
		} else {
			st.complete(ev)
		}
		ev.QueueDepth = st.depth
	}
}

func (st *ufsState) dispatch(ev *model.UfsEvent) {
	// Idle gap since the device last drained, if it ever has.
	if st.hasIdleStart {
		ev.CtoD = (ev.Time - st.lastIdleStart) * 1000
	}

	// Continuity is judged against the single most recent dispatch,
	// regardless of tag or queue state.
	ev.Sequential = st.hasPrevDispatch &&
		st.prevDispEnd == ev.LBA &&
		st.prevDispOpcode == ev.Opcode

	st.inflight[ufsKey{ev.Tag, ev.Opcode}] = ev.Time
	st.depth++
	if st.depth == 1 {
		st.firstCompleter = true
		st.anchor = ev.Time
	}

	st.prevDispEnd = ev.LBA + uint64(ev.Size)
	st.prevDispOpcode = ev.Opcode
	st.hasPrevDispatch = true
}

func (st *ufsState) complete(ev *model.UfsEvent) {
	key := ufsKey{ev.Tag, ev.Opcode}
	if dispatched, ok := st.inflight[key]; ok {
		ev.DtoC = (ev.Time - dispatched) * 1000
		delete(st.inflight, key)
	}
	// An unmatched completion is tolerated; DtoC stays zero.

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
