package writer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/traceperf/traceperf/internal/model"
)

// WriteSet persists all three family datasets under dir, creating it if
// needed. Empty families still produce a (schema-only) file so readers
// can distinguish "no events" from "not written".
func WriteSet(ctx context.Context, dir string, set *model.TraceSet, cfg Config) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("writer: create %s: %w", dir, err)
	}
	if err := writeFile(ctx, filepath.Join(dir, UfsFile), cfg, ufsSchema(), len(set.Ufs), func(b *array.RecordBuilder, i int) {
		appendUfs(b, &set.Ufs[i])
	}); err != nil {
		return err
	}
	if err := writeFile(ctx, filepath.Join(dir, BlockFile), cfg, blockSchema(), len(set.Block), func(b *array.RecordBuilder, i int) {
		appendBlock(b, &set.Block[i])
	}); err != nil {
		return err
	}
	return writeFile(ctx, filepath.Join(dir, CustomFile), cfg, customSchema(), len(set.Custom), func(b *array.RecordBuilder, i int) {
		appendCustom(b, &set.Custom[i])
	})
}

// writeFile streams n rows through a record builder in cfg.BatchSize
// batches.
func writeFile(ctx context.Context, path string, cfg Config, schema *arrow.Schema, n int, appendRow func(*array.RecordBuilder, int)) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writer: create %s: %w", path, err)
	}
	defer f.Close()

	if err := writeRows(ctx, f, cfg, schema, n, appendRow); err != nil {
		return fmt.Errorf("writer: %s: %w", path, err)
	}
	return nil
}

func writeRows(ctx context.Context, out io.Writer, cfg Config, schema *arrow.Schema, n int, appendRow func(*array.RecordBuilder, int)) error {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}

	fw, err := pqarrow.NewFileWriter(schema, out, writerProps(cfg.Compression),
		pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return err
	}

	builder := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer builder.Release()

	pending := 0
	flush := func() error {
		if pending == 0 {
			return nil
		}
		rec := builder.NewRecord()
		defer rec.Release()
		pending = 0
		return fw.Write(rec)
	}

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			fw.Close()
			return ctx.Err()
		default:
		}
		appendRow(builder, i)
		pending++
		if pending >= cfg.BatchSize {
			if err := flush(); err != nil {
				fw.Close()
				return err
			}
		}
	}
	if err := flush(); err != nil {
		fw.Close()
		return err
	}
	return fw.Close()
}

func appendUfs(b *array.RecordBuilder, ev *model.UfsEvent) {
	b.Field(0).(*array.Float64Builder).Append(ev.Time)
	b.Field(1).(*array.StringBuilder).Append(ev.Process)
	b.Field(2).(*array.Uint32Builder).Append(ev.CPU)
	b.Field(3).(*array.StringBuilder).Append(ev.Action.String())
	b.Field(4).(*array.Uint32Builder).Append(ev.Tag)
	b.Field(5).(*array.StringBuilder).Append(ev.Opcode)
	b.Field(6).(*array.Uint64Builder).Append(ev.LBA)
	b.Field(7).(*array.Uint32Builder).Append(ev.Size)
	b.Field(8).(*array.Uint32Builder).Append(ev.GroupID)
	b.Field(9).(*array.Int32Builder).Append(ev.HWQueueID)
	b.Field(10).(*array.Uint32Builder).Append(ev.QueueDepth)
	b.Field(11).(*array.Float64Builder).Append(ev.DtoC)
	b.Field(12).(*array.Float64Builder).Append(ev.CtoC)
	b.Field(13).(*array.Float64Builder).Append(ev.CtoD)
	b.Field(14).(*array.BooleanBuilder).Append(ev.Sequential)
}

func appendBlock(b *array.RecordBuilder, ev *model.BlockEvent) {
	b.Field(0).(*array.Float64Builder).Append(ev.Time)
	b.Field(1).(*array.StringBuilder).Append(ev.Process)
	b.Field(2).(*array.Uint32Builder).Append(ev.CPU)
	b.Field(3).(*array.StringBuilder).Append(ev.Flags)
	b.Field(4).(*array.StringBuilder).Append(ev.Action.String())
	b.Field(5).(*array.Uint32Builder).Append(ev.DevMajor)
	b.Field(6).(*array.Uint32Builder).Append(ev.DevMinor)
	b.Field(7).(*array.StringBuilder).Append(ev.IOType)
	b.Field(8).(*array.Uint32Builder).Append(ev.Extra)
	b.Field(9).(*array.Uint64Builder).Append(ev.Sector)
	b.Field(10).(*array.Uint32Builder).Append(ev.Size)
	b.Field(11).(*array.StringBuilder).Append(ev.Command)
	b.Field(12).(*array.Uint32Builder).Append(ev.QueueDepth)
	b.Field(13).(*array.Float64Builder).Append(ev.DtoC)
	b.Field(14).(*array.Float64Builder).Append(ev.CtoC)
	b.Field(15).(*array.Float64Builder).Append(ev.CtoD)
	b.Field(16).(*array.BooleanBuilder).Append(ev.Sequential)
}

func appendCustom(b *array.RecordBuilder, ev *model.CustomEvent) {
	b.Field(0).(*array.StringBuilder).Append(ev.Opcode)
	b.Field(1).(*array.Uint64Builder).Append(ev.LBA)
	b.Field(2).(*array.Uint32Builder).Append(ev.Size)
	b.Field(3).(*array.Float64Builder).Append(ev.StartTime)
	b.Field(4).(*array.Float64Builder).Append(ev.EndTime)
	b.Field(5).(*array.Float64Builder).Append(ev.DtoC)
	b.Field(6).(*array.Uint32Builder).Append(ev.StartQD)
	b.Field(7).(*array.Uint32Builder).Append(ev.EndQD)
	b.Field(8).(*array.Float64Builder).Append(ev.CtoC)
	b.Field(9).(*array.Float64Builder).Append(ev.CtoD)
	b.Field(10).(*array.BooleanBuilder).Append(ev.Sequential)
}
