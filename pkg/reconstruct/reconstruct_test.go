package reconstruct

import (
	"context"
	"math"
	"testing"

	"github.com/traceperf/traceperf/internal/model"
)

func ufsDispatch(t float64, tag uint32, opcode string, lba uint64, size uint32) model.UfsEvent {
	return model.UfsEvent{Time: t, Action: model.ActionDispatch, Tag: tag, Opcode: opcode, LBA: lba, Size: size}
}

func ufsComplete(t float64, tag uint32, opcode string) model.UfsEvent {
	return model.UfsEvent{Time: t, Action: model.ActionComplete, Tag: tag, Opcode: opcode}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestUfsPairLatency(t *testing.T) {
	events := []model.UfsEvent{
		ufsDispatch(0.000100, 5, "0x2a", 10, 1),
		ufsComplete(0.000350, 5, "0x2a"),
	}
	RebuildUfs(events)

	if events[0].QueueDepth != 1 {
		t.Errorf("dispatch QueueDepth = %d, want 1", events[0].QueueDepth)
	}
	if !almostEqual(events[1].DtoC, 0.25) {
		t.Errorf("DtoC = %v, want 0.25", events[1].DtoC)
	}
	if events[1].QueueDepth != 0 {
		t.Errorf("complete QueueDepth = %d, want 0", events[1].QueueDepth)
	}
}

func TestUfsUnmatchedComplete(t *testing.T) {
	events := []model.UfsEvent{
		ufsComplete(0.5, 9, "0x2a"),
	}
	RebuildUfs(events)

	if events[0].DtoC != 0 {
		t.Errorf("DtoC = %v, want 0 for unmatched complete", events[0].DtoC)
	}
	if events[0].QueueDepth != 0 {
		t.Errorf("QueueDepth = %d, want 0 (saturating)", events[0].QueueDepth)
	}
}

func TestUfsSequentialFlag(t *testing.T) {
	tests := []struct {
		name    string
		opcodeB string
		want    bool
	}{
		{"same opcode contiguous", "0x2a", true},
		{"different opcode", "0x28", false},
	}
	for _, tt := range tests {
		events := []model.UfsEvent{
			ufsDispatch(1.0, 1, "0x2a", 100, 8),
			ufsDispatch(2.0, 2, tt.opcodeB, 108, 4),
		}
		RebuildUfs(events)
		if events[1].Sequential != tt.want {
			t.Errorf("%s: Sequential = %v, want %v", tt.name, events[1].Sequential, tt.want)
		}
		if events[0].Sequential {
			t.Errorf("%s: first dispatch has no predecessor", tt.name)
		}
	}
}

// The continuity partner is the single most recent dispatch, not the
// most recent dispatch of the same tag.
func TestUfsSequentialIgnoresTag(t *testing.T) {
	events := []model.UfsEvent{
		ufsDispatch(1.0, 1, "0x2a", 100, 8),
		ufsDispatch(2.0, 7, "0x2a", 108, 4),
	}
	RebuildUfs(events)
	if !events[1].Sequential {
		t.Error("dispatch across tags should still be sequential")
	}
}

func TestUfsCtoCAnchors(t *testing.T) {
	// Queue goes 0->1 at t=1.0, so the first completion measures from
	// the dispatch anchor; the second from the first completion.
	events := []model.UfsEvent{
		ufsDispatch(1.0, 1, "0x2a", 0, 1),
		ufsDispatch(1.1, 2, "0x2a", 0, 1),
		ufsComplete(1.4, 1, "0x2a"),
		ufsComplete(1.9, 2, "0x2a"),
	}
	RebuildUfs(events)

	if !almostEqual(events[2].CtoC, 400) {
		t.Errorf("first CtoC = %v, want 400 (from dispatch anchor)", events[2].CtoC)
	}
	if !almostEqual(events[3].CtoC, 500) {
		t.Errorf("second CtoC = %v, want 500 (from previous completion)", events[3].CtoC)
	}
}

func TestUfsCtoDIdleGap(t *testing.T) {
	events := []model.UfsEvent{
		ufsDispatch(1.0, 1, "0x2a", 0, 1),
		ufsComplete(1.2, 1, "0x2a"), // queue drains here
		ufsDispatch(1.7, 2, "0x2a", 0, 1),
	}
	RebuildUfs(events)

	if events[0].CtoD != 0 {
		t.Errorf("first dispatch CtoD = %v, want 0 (no prior drain)", events[0].CtoD)
	}
	if !almostEqual(events[2].CtoD, 500) {
		t.Errorf("CtoD = %v, want 500", events[2].CtoD)
	}
}

func TestUfsQueueDepthConservation(t *testing.T) {
	events := []model.UfsEvent{
		ufsDispatch(1.0, 1, "0x2a", 0, 1),
		ufsDispatch(1.1, 2, "0x2a", 8, 1),
		ufsDispatch(1.2, 3, "0x28", 16, 1),
		ufsComplete(1.3, 2, "0x2a"),
		ufsComplete(1.35, 9, "0x2a"), // unmatched
		ufsComplete(1.4, 1, "0x2a"),
	}
	RebuildUfs(events)

	dispatches, matched := 0, 0
	for i := range events {
		if events[i].Action == model.ActionDispatch {
			dispatches++
		} else if events[i].DtoC > 0 {
			matched++
		}
		if int32(events[i].QueueDepth) < 0 {
			t.Fatalf("negative queue depth at %d", i)
		}
	}
	// Saturating decrement: the unmatched complete still lowered the
	// counter, so the final depth is dispatches minus all completes
	// floored at zero; with 3 dispatches and 3 completes that is 0.
	if got := events[len(events)-1].QueueDepth; got != 0 {
		t.Errorf("final QueueDepth = %d, want 0", got)
	}
	if dispatches != 3 || matched != 2 {
		t.Errorf("dispatches/matched = %d/%d, want 3/2", dispatches, matched)
	}
}

func TestUfsLatencyNonNegative(t *testing.T) {
	events := []model.UfsEvent{
		ufsDispatch(1.0, 1, "0x2a", 0, 1),
		ufsDispatch(1.05, 2, "0x2a", 0, 1),
		ufsComplete(1.1, 1, "0x2a"),
		ufsComplete(1.2, 2, "0x2a"),
		ufsDispatch(1.5, 1, "0x28", 8, 2),
		ufsComplete(1.6, 1, "0x28"),
	}
	RebuildUfs(events)
	for i := range events {
		if events[i].DtoC < 0 || events[i].CtoC < 0 || events[i].CtoD < 0 {
			t.Errorf("negative latency at %d: %+v", i, events[i])
		}
	}
}

func TestSortTieBreakCompleteFirst(t *testing.T) {
	set := &model.TraceSet{Ufs: []model.UfsEvent{
		ufsDispatch(1.0, 2, "0x2a", 0, 1),
		ufsComplete(1.0, 1, "0x2a"),
	}}
	if err := SortAndDedup(context.Background(), set); err != nil {
		t.Fatal(err)
	}
	if set.Ufs[0].Action != model.ActionComplete {
		t.Error("same-instant complete must sort before dispatch")
	}
}

func TestDedupRoundTrip(t *testing.T) {
	ev := ufsDispatch(1.000001, 3, "0x2a", 10, 1)
	set := &model.TraceSet{Ufs: []model.UfsEvent{ev, ev}}
	if err := SortAndDedup(context.Background(), set); err != nil {
		t.Fatal(err)
	}
	if len(set.Ufs) != 1 {
		t.Errorf("len = %d, want 1 after dedup", len(set.Ufs))
	}

	// Distinct actions at the same instant are not duplicates.
	set = &model.TraceSet{Ufs: []model.UfsEvent{
		ufsDispatch(1.0, 3, "0x2a", 10, 1),
		ufsComplete(1.0, 3, "0x2a"),
	}}
	if err := SortAndDedup(context.Background(), set); err != nil {
		t.Fatal(err)
	}
	if len(set.Ufs) != 2 {
		t.Errorf("len = %d, want 2", len(set.Ufs))
	}
}

func blockEvent(t float64, action model.Action, iotype string, sector uint64, size uint32) model.BlockEvent {
	return model.BlockEvent{Time: t, Action: action, IOType: iotype, Sector: sector, Size: size}
}

func TestBlockZeroSizeWriteCompleteDropped(t *testing.T) {
	events := []model.BlockEvent{
		blockEvent(1.0, model.ActionComplete, "WS", 40960, 0),
		blockEvent(1.1, model.ActionComplete, "WS", 40960, 0),
	}
	out := RebuildBlock(events)
	if len(out) != 0 {
		t.Errorf("len = %d, want 0: zero-size write completes are dropped", len(out))
	}

	// A zero-size read complete is not the flush marker.
	events = []model.BlockEvent{
		blockEvent(1.0, model.ActionComplete, "R", 40960, 0),
	}
	if out := RebuildBlock(events); len(out) != 1 {
		t.Errorf("zero-size read complete should be kept, got len %d", len(out))
	}
}

func TestBlockPairLatency(t *testing.T) {
	events := []model.BlockEvent{
		blockEvent(1.0, model.ActionDispatch, "WS", 40960, 8),
		blockEvent(1.002, model.ActionComplete, "WS", 40960, 8),
	}
	out := RebuildBlock(events)
	if !almostEqual(out[1].DtoC, 2.0) {
		t.Errorf("DtoC = %v, want 2.0", out[1].DtoC)
	}
	if out[0].QueueDepth != 1 || out[1].QueueDepth != 0 {
		t.Errorf("queue depths = %d,%d, want 1,0", out[0].QueueDepth, out[1].QueueDepth)
	}
}

func TestBlockSequentialClasses(t *testing.T) {
	tests := []struct {
		name   string
		first  string
		second string
		want   bool
	}{
		{"write then write", "WS", "W", true},
		{"read then read", "R", "RA", true},
		{"write then read", "W", "R", false},
		{"flush never sequential", "F", "F", false},
	}
	for _, tt := range tests {
		events := []model.BlockEvent{
			blockEvent(1.0, model.ActionDispatch, tt.first, 100, 8),
			blockEvent(1.1, model.ActionDispatch, tt.second, 108, 8),
		}
		out := RebuildBlock(events)
		if out[1].Sequential != tt.want {
			t.Errorf("%s: Sequential = %v, want %v", tt.name, out[1].Sequential, tt.want)
		}
	}
}

func TestBlockCompletesNeverSequential(t *testing.T) {
	events := []model.BlockEvent{
		blockEvent(1.0, model.ActionDispatch, "W", 100, 8),
		blockEvent(1.1, model.ActionDispatch, "W", 108, 8),
		blockEvent(1.2, model.ActionComplete, "W", 100, 8),
	}
	out := RebuildBlock(events)
	if out[2].Sequential {
		t.Error("completion events never set the sequential flag")
	}
}

func TestCustomReconstruction(t *testing.T) {
	// Two overlapping requests followed by an idle gap and a third.
	events := []model.CustomEvent{
		{Opcode: "0x28", LBA: 0, Size: 8, StartTime: 1.0, EndTime: 1.4},
		{Opcode: "0x28", LBA: 8, Size: 8, StartTime: 1.1, EndTime: 1.2},
		{Opcode: "0x28", LBA: 16, Size: 8, StartTime: 1.9, EndTime: 2.0},
	}
	RebuildCustom(events)

	if events[0].StartQD != 1 || events[1].StartQD != 2 {
		t.Errorf("StartQDs = %d,%d, want 1,2", events[0].StartQD, events[1].StartQD)
	}
	if events[1].EndQD != 1 || events[0].EndQD != 0 {
		t.Errorf("EndQDs = %d,%d, want 1,0", events[1].EndQD, events[0].EndQD)
	}
	// First completion measures from the 0->1 dispatch anchor.
	if !almostEqual(events[1].CtoC, 200) {
		t.Errorf("first CtoC = %v, want 200", events[1].CtoC)
	}
	if !almostEqual(events[0].CtoC, 200) {
		t.Errorf("second CtoC = %v, want 200", events[0].CtoC)
	}
	// Third request dispatches 0.5 s after the queue drained at 1.4.
	if !almostEqual(events[2].CtoD, 500) {
		t.Errorf("CtoD = %v, want 500", events[2].CtoD)
	}
	// The most recent dispatch before t=1.9 is request two, which ends
	// at LBA 16 where request three starts.
	if !events[2].Sequential {
		t.Error("third request should be sequential after request two")
	}
	if events[0].Sequential {
		t.Error("first request has no predecessor")
	}
}

func TestCustomDtoCFixedAtParse(t *testing.T) {
	events := []model.CustomEvent{
		{Opcode: "0x28", LBA: 0, Size: 8, StartTime: 123.456, EndTime: 123.789, DtoC: 333.0},
	}
	RebuildCustom(events)
	if events[0].DtoC != 333.0 {
		t.Errorf("DtoC = %v, reconstruction must not touch it", events[0].DtoC)
	}
}
