// Package ingest turns a raw trace file into reconstructed per-request
// metrics. The file is memory-mapped once, split into line-aligned
// chunks parsed in parallel, and the merged result is handed to the
// sort/dedup and reconstruction stages.
package ingest

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/traceperf/traceperf/internal/model"
	"github.com/traceperf/traceperf/pkg/reconstruct"
)

// Pipeline stage names reported through the progress callback.
const (
	StageParse       = "parse"
	StageSort        = "sort"
	StageReconstruct = "reconstruct"
)

// Progress receives coarse stage updates. Implementations must be cheap
// and must never fail; delivery is best-effort.
type Progress func(stage string, percent float64, records int64)

// Options control an ingestion run.
type Options struct {
	// Workers caps chunk parallelism. 0 means GOMAXPROCS.
	Workers int

	// OnProgress, when set, receives stage updates.
	OnProgress Progress
}

func (o *Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (o *Options) progress(stage string, percent float64, records int64) {
	if o.OnProgress != nil {
		o.OnProgress(stage, percent, records)
	}
}

// Analyze is the one logical operation of the engine: parse path,
// order and deduplicate each family, then reconstruct latencies and
// queue depths. It fails only when the file cannot be opened or mapped;
// row-level problems degrade into zero-valued fields.
func Analyze(ctx context.Context, path string, opts Options) (*model.TraceSet, error) {
	set, err := IngestFile(ctx, path, opts)
	if err != nil {
		return nil, err
	}

	opts.progress(StageSort, 0, set.Events())
	if err := reconstruct.SortAndDedup(ctx, set); err != nil {
		return nil, err
	}
	opts.progress(StageSort, 100, set.Events())

	opts.progress(StageReconstruct, 0, set.Events())
	if err := reconstruct.Rebuild(ctx, set); err != nil {
		return nil, err
	}
	opts.progress(StageReconstruct, 100, set.Events())

	return set, nil
}

// IngestFile memory-maps path and produces the three unsorted
// per-family event collections. Chunk order is explicitly not
// preserved; the sort stage is the sole authority on event order.
func IngestFile(ctx context.Context, path string, opts Options) (*model.TraceSet, error) {
	mf, err := openMapped(path)
	if err != nil {
		return nil, err
	}
	defer mf.Close()

	chunks := splitChunks(mf.data, chunkCount(mf.size, opts.workers()))
	if len(chunks) == 0 {
		opts.progress(StageParse, 100, 0)
		return &model.TraceSet{}, nil
	}

	opts.progress(StageParse, 0, 0)

	results := make([]model.TraceSet, len(chunks))
	var done atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i, c := range chunks {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			parseChunk(mf.data[c.start:c.end], &results[i])
			n := done.Add(1)
			opts.progress(StageParse, float64(n)/float64(len(chunks))*100, results[i].EventsParsed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Concatenation merge; cross-chunk order is restored by the sort.
	set := &model.TraceSet{}
	for i := range results {
		set.Merge(&results[i])
	}
	opts.progress(StageParse, 100, set.Events())
	return set, nil
}
