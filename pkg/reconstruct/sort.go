// Package reconstruct establishes the total event order per family and
// derives per-request latency and queue-depth metrics in a single
// stateful pass. The sort stage here is the sole ordering authority:
// chunked ingestion makes no cross-chunk guarantees.
package reconstruct

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/traceperf/traceperf/internal/model"
)

// micros rounds a second timestamp to whole microseconds. Dedup keys
// compare timestamps at 6 decimal digits so a line re-read at a chunk
// boundary collapses onto its first occurrence.
func micros(t float64) int64 {
	return int64(math.Round(t * 1e6))
}

// SortAndDedup sorts each family into time order with the family
// tie-breaks and drops chunk-boundary duplicates, keeping the first
// occurrence. Families are independent and run concurrently.
func SortAndDedup(ctx context.Context, set *model.TraceSet) error {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		set.Ufs = sortDedupUfs(set.Ufs)
		return nil
	})
	g.Go(func() error {
		set.Block = sortDedupBlock(set.Block)
		return nil
	})
	g.Go(func() error {
		set.Custom = sortDedupCustom(set.Custom)
		return nil
	})
	return g.Wait()
}

func sortDedupUfs(events []model.UfsEvent) []model.UfsEvent {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := &events[i], &events[j]
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		// A same-instant complete sorts before a dispatch so the
		// queue-depth decrement is observed before the increment.
		if a.Action != b.Action {
			return a.Action == model.ActionComplete
		}
		return a.Tag < b.Tag
	})

	type key struct {
		us     int64
		tag    uint32
		action model.Action
		opcode string
	}
	seen := make(map[key]struct{}, len(events))
	out := events[:0]
	for i := range events {
		k := key{micros(events[i].Time), events[i].Tag, events[i].Action, events[i].Opcode}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, events[i])
	}
	return out
}

func sortDedupBlock(events []model.BlockEvent) []model.BlockEvent {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := &events[i], &events[j]
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		if a.Sector != b.Sector {
			return a.Sector < b.Sector
		}
		return a.Size < b.Size
	})

	type key struct {
		us     int64
		sector uint64
		size   uint32
		iotype string
	}
	seen := make(map[key]struct{}, len(events))
	out := events[:0]
	for i := range events {
		k := key{micros(events[i].Time), events[i].Sector, events[i].Size, events[i].IOType}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, events[i])
	}
	return out
}

func sortDedupCustom(events []model.CustomEvent) []model.CustomEvent {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := &events[i], &events[j]
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		if a.LBA != b.LBA {
			return a.LBA < b.LBA
		}
		return a.Size < b.Size
	})

	type key struct {
		us   int64
		lba  uint64
		size uint32
	}
	seen := make(map[key]struct{}, len(events))
	out := events[:0]
	for i := range events {
		k := key{micros(events[i].StartTime), events[i].LBA, events[i].Size}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, events[i])
	}
	return out
}

// Rebuild runs the three family reconstructors over their ordered,
// duplicate-free sequences. Each pass owns its family's state
// exclusively; families run concurrently.
func Rebuild(ctx context.Context, set *model.TraceSet) error {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		RebuildUfs(set.Ufs)
		return nil
	})
	g.Go(func() error {
		set.Block = RebuildBlock(set.Block)
		return nil
	})
	g.Go(func() error {
		RebuildCustom(set.Custom)
		return nil
	})
	return g.Wait()
}
