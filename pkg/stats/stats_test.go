package stats

import (
	"strings"
	"testing"

	"github.com/traceperf/traceperf/internal/model"
)

func TestSummarize(t *testing.T) {
	set := &model.TraceSet{
		LinesRead:    10,
		EventsParsed: 4,
		Ufs: []model.UfsEvent{
			{Action: model.ActionDispatch, QueueDepth: 1, Sequential: true},
			{Action: model.ActionDispatch, QueueDepth: 2},
			{Action: model.ActionComplete, QueueDepth: 1, DtoC: 2.0, CtoC: 1.0},
			{Action: model.ActionComplete, QueueDepth: 0, DtoC: 4.0, CtoC: 3.0},
		},
	}
	r := Summarize(set)

	if len(r.Families) != 1 {
		t.Fatalf("families = %d, want 1", len(r.Families))
	}
	fs := r.Families[0]
	if fs.Name != "ufs" || fs.Dispatches != 2 || fs.Completes != 2 {
		t.Errorf("family = %+v", fs)
	}
	if fs.MaxQueueDepth != 2 {
		t.Errorf("MaxQueueDepth = %d, want 2", fs.MaxQueueDepth)
	}
	if fs.Sequential != 1 {
		t.Errorf("Sequential = %d, want 1", fs.Sequential)
	}
	if fs.DtoC.Count != 2 || fs.DtoC.Min != 2.0 || fs.DtoC.Max != 4.0 || fs.DtoC.Avg != 3.0 {
		t.Errorf("DtoC = %+v", fs.DtoC)
	}
}

// Zero latencies mean "unknown" and must not drag the distribution.
func TestSummarizeExcludesNonPositive(t *testing.T) {
	set := &model.TraceSet{
		Custom: []model.CustomEvent{
			{DtoC: 0},
			{DtoC: 5.0},
		},
	}
	r := Summarize(set)
	if got := r.Families[0].DtoC; got.Count != 1 || got.Min != 5.0 {
		t.Errorf("DtoC = %+v, want single 5.0 sample", got)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want float64
	}{
		{50, 5}, {95, 10}, {99, 10}, {100, 10},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestSizeBuckets(t *testing.T) {
	set := &model.TraceSet{
		Ufs: []model.UfsEvent{
			{Action: model.ActionDispatch, Size: 0},
			{Action: model.ActionDispatch, Size: 1},
			{Action: model.ActionDispatch, Size: 1},
			{Action: model.ActionDispatch, Size: 5},
			{Action: model.ActionComplete, Size: 64}, // completes are not counted
		},
	}
	fs := Summarize(set).Families[0]

	want := []SizeBucket{
		{Lo: 0, Hi: 0, Count: 1},
		{Lo: 1, Hi: 1, Count: 2},
		{Lo: 4, Hi: 7, Count: 1},
	}
	if len(fs.Sizes) != len(want) {
		t.Fatalf("buckets = %+v, want %+v", fs.Sizes, want)
	}
	for i, b := range want {
		if fs.Sizes[i] != b {
			t.Errorf("bucket[%d] = %+v, want %+v", i, fs.Sizes[i], b)
		}
	}
}

func TestSequentialRatio(t *testing.T) {
	fs := FamilyStats{Dispatches: 4, Sequential: 1}
	if got := fs.SequentialRatio(); got != 0.25 {
		t.Errorf("ratio = %v, want 0.25", got)
	}
	if got := (FamilyStats{}).SequentialRatio(); got != 0 {
		t.Errorf("empty ratio = %v, want 0", got)
	}
}

func TestRender(t *testing.T) {
	r := Summarize(&model.TraceSet{
		LinesRead: 3,
		Ufs:       []model.UfsEvent{{Action: model.ActionDispatch}},
	})
	out := r.Render()
	if !strings.Contains(out, "lines read: 3") || !strings.Contains(out, "[ufs]") {
		t.Errorf("unexpected render output:\n%s", out)
	}
}
