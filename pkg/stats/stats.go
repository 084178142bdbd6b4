// Package stats computes textual summaries of reconstructed trace sets.
package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/traceperf/traceperf/internal/model"
)

// LatencySummary describes one latency distribution in milliseconds.
// Non-positive samples are treated as unknown and excluded.
type LatencySummary struct {
	Count int
	Min   float64
	Avg   float64
	Max   float64
	P50   float64
	P95   float64
	P99   float64
}

// SizeBucket counts dispatches whose size fell in a power-of-two range
// of transfer units.
type SizeBucket struct {
	Lo    uint32
	Hi    uint32
	Count int
}

// FamilyStats summarizes one event family.
type FamilyStats struct {
	Name       string
	Events     int
	Dispatches int
	Completes  int

	DtoC LatencySummary
	CtoC LatencySummary
	CtoD LatencySummary

	MaxQueueDepth uint32
	Sequential    int
	Sizes         []SizeBucket
}

// SequentialRatio is the share of dispatches flagged as sequential.
func (fs FamilyStats) SequentialRatio() float64 {
	if fs.Dispatches == 0 {
		return 0
	}
	return float64(fs.Sequential) / float64(fs.Dispatches)
}

// Report aggregates the per-family summaries with the ingestion
// counters.
type Report struct {
	LinesRead    int64
	EventsParsed int64
	Families     []FamilyStats
}

// Summarize computes a report over a reconstructed set.
func Summarize(set *model.TraceSet) Report {
	r := Report{LinesRead: set.LinesRead, EventsParsed: set.EventsParsed}
	if fs := summarizeUfs(set.Ufs); fs.Events > 0 {
		r.Families = append(r.Families, fs)
	}
	if fs := summarizeBlock(set.Block); fs.Events > 0 {
		r.Families = append(r.Families, fs)
	}
	if fs := summarizeCustom(set.Custom); fs.Events > 0 {
		r.Families = append(r.Families, fs)
	}
	return r
}

func summarizeUfs(events []model.UfsEvent) FamilyStats {
	fs := FamilyStats{Name: "ufs", Events: len(events)}
	var dtoc, ctoc, ctod []float64
	hist := make(map[int]int)
	for i := range events {
		ev := &events[i]
		if ev.Action == model.ActionDispatch {
			fs.Dispatches++
			if ev.Sequential {
				fs.Sequential++
			}
			bumpBucket(hist, ev.Size)
		} else {
			fs.Completes++
		}
		if ev.QueueDepth > fs.MaxQueueDepth {
			fs.MaxQueueDepth = ev.QueueDepth
		}
		dtoc = appendPositive(dtoc, ev.DtoC)
		ctoc = appendPositive(ctoc, ev.CtoC)
		ctod = appendPositive(ctod, ev.CtoD)
	}
	fs.DtoC, fs.CtoC, fs.CtoD = summarize(dtoc), summarize(ctoc), summarize(ctod)
	fs.Sizes = buckets(hist)
	return fs
}

func summarizeBlock(events []model.BlockEvent) FamilyStats {
	fs := FamilyStats{Name: "block", Events: len(events)}
	var dtoc, ctoc, ctod []float64
	hist := make(map[int]int)
	for i := range events {
		ev := &events[i]
		if ev.Action == model.ActionDispatch {
			fs.Dispatches++
			if ev.Sequential {
				fs.Sequential++
			}
			bumpBucket(hist, ev.Size)
		} else {
			fs.Completes++
		}
		if ev.QueueDepth > fs.MaxQueueDepth {
			fs.MaxQueueDepth = ev.QueueDepth
		}
		dtoc = appendPositive(dtoc, ev.DtoC)
		ctoc = appendPositive(ctoc, ev.CtoC)
		ctod = appendPositive(ctod, ev.CtoD)
	}
	fs.DtoC, fs.CtoC, fs.CtoD = summarize(dtoc), summarize(ctoc), summarize(ctod)
	fs.Sizes = buckets(hist)
	return fs
}

func summarizeCustom(events []model.CustomEvent) FamilyStats {
	fs := FamilyStats{Name: "custom", Events: len(events)}
	var dtoc, ctoc, ctod []float64
	hist := make(map[int]int)
	for i := range events {
		ev := &events[i]
		fs.Dispatches++
		fs.Completes++
		if ev.Sequential {
			fs.Sequential++
		}
		bumpBucket(hist, ev.Size)
		if ev.StartQD > fs.MaxQueueDepth {
			fs.MaxQueueDepth = ev.StartQD
		}
		dtoc = appendPositive(dtoc, ev.DtoC)
		ctoc = appendPositive(ctoc, ev.CtoC)
		ctod = appendPositive(ctod, ev.CtoD)
	}
	fs.DtoC, fs.CtoC, fs.CtoD = summarize(dtoc), summarize(ctoc), summarize(ctod)
	fs.Sizes = buckets(hist)
	return fs
}

// bumpBucket counts size into its power-of-two bucket. Zero sizes get
// a dedicated [0] bucket (exponent -1) so they are not conflated with
// single-unit requests.
func bumpBucket(hist map[int]int, size uint32) {
	if size == 0 {
		hist[-1]++
		return
	}
	exp := 0
	for s := size; s > 1; s >>= 1 {
		exp++
	}
	hist[exp]++
}

// buckets flattens the exponent histogram into ordered ranges.
func buckets(hist map[int]int) []SizeBucket {
	if len(hist) == 0 {
		return nil
	}
	exps := make([]int, 0, len(hist))
	for exp := range hist {
		exps = append(exps, exp)
	}
	sort.Ints(exps)
	out := make([]SizeBucket, 0, len(exps))
	for _, exp := range exps {
		if exp < 0 {
			out = append(out, SizeBucket{Lo: 0, Hi: 0, Count: hist[exp]})
			continue
		}
		out = append(out, SizeBucket{
			Lo:    uint32(1) << exp,
			Hi:    uint32(1)<<(exp+1) - 1,
			Count: hist[exp],
		})
	}
	return out
}

func appendPositive(dst []float64, v float64) []float64 {
	if v > 0 {
		dst = append(dst, v)
	}
	return dst
}

func summarize(samples []float64) LatencySummary {
	if len(samples) == 0 {
		return LatencySummary{}
	}
	sort.Float64s(samples)
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	return LatencySummary{
		Count: len(samples),
		Min:   samples[0],
		Avg:   sum / float64(len(samples)),
		Max:   samples[len(samples)-1],
		P50:   percentile(samples, 50),
		P95:   percentile(samples, 95),
		P99:   percentile(samples, 99),
	}
}

// percentile uses nearest-rank on a sorted sample slice.
func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// Render formats the report as plain text.
func (r Report) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "lines read: %d, events parsed: %d\n", r.LinesRead, r.EventsParsed)
	for _, fs := range r.Families {
		fmt.Fprintf(&b, "\n[%s] events=%d dispatches=%d completes=%d max_qd=%d sequential=%d (%.1f%%)\n",
			fs.Name, fs.Events, fs.Dispatches, fs.Completes, fs.MaxQueueDepth,
			fs.Sequential, fs.SequentialRatio()*100)
		renderLatency(&b, "dtoc", fs.DtoC)
		renderLatency(&b, "ctoc", fs.CtoC)
		renderLatency(&b, "ctod", fs.CtoD)
		if len(fs.Sizes) > 0 {
			b.WriteString("  size")
			for _, sb := range fs.Sizes {
				if sb.Lo == sb.Hi {
					fmt.Fprintf(&b, "  [%d]=%d", sb.Lo, sb.Count)
				} else {
					fmt.Fprintf(&b, "  [%d-%d]=%d", sb.Lo, sb.Hi, sb.Count)
				}
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderLatency(b *strings.Builder, name string, s LatencySummary) {
	if s.Count == 0 {
		fmt.Fprintf(b, "  %-4s  no samples\n", name)
		return
	}
	fmt.Fprintf(b, "  %-4s  n=%-8d min=%-10.3f avg=%-10.3f p50=%-10.3f p95=%-10.3f p99=%-10.3f max=%.3f ms\n",
		name, s.Count, s.Min, s.Avg, s.P50, s.P95, s.P99, s.Max)
}
