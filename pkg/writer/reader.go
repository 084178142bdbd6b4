package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/traceperf/traceperf/internal/model"
)

// ReadSet loads the three family datasets from dir back into memory.
// Missing files are errors; empty datasets are not.
func ReadSet(ctx context.Context, dir string) (*model.TraceSet, error) {
	set := &model.TraceSet{}

	err := readFile(ctx, filepath.Join(dir, UfsFile), func(rec arrow.Record) {
		set.Ufs = appendUfsRows(set.Ufs, rec)
	})
	if err != nil {
		return nil, err
	}
	err = readFile(ctx, filepath.Join(dir, BlockFile), func(rec arrow.Record) {
		set.Block = appendBlockRows(set.Block, rec)
	})
	if err != nil {
		return nil, err
	}
	err = readFile(ctx, filepath.Join(dir, CustomFile), func(rec arrow.Record) {
		set.Custom = appendCustomRows(set.Custom, rec)
	})
	if err != nil {
		return nil, err
	}

	set.EventsParsed = set.Events()
	return set, nil
}

func readFile(ctx context.Context, path string, consume func(arrow.Record)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("writer: open %s: %w", path, err)
	}
	defer f.Close()

	pr, err := file.NewParquetReader(f)
	if err != nil {
		return fmt.Errorf("writer: read %s: %w", path, err)
	}
	defer pr.Close()

	fr, err := pqarrow.NewFileReader(pr, pqarrow.ArrowReadProperties{BatchSize: 4096}, memory.NewGoAllocator())
	if err != nil {
		return fmt.Errorf("writer: read %s: %w", path, err)
	}

	table, err := fr.ReadTable(ctx)
	if err != nil {
		return fmt.Errorf("writer: read %s: %w", path, err)
	}
	defer table.Release()

	if table.NumRows() == 0 {
		return nil
	}

	tr := array.NewTableReader(table, 4096)
	defer tr.Release()
	for tr.Next() {
		consume(tr.Record())
	}
	return nil
}

func parseAction(s string) model.Action {
	if s == "complete" {
		return model.ActionComplete
	}
	return model.ActionDispatch
}

func appendUfsRows(events []model.UfsEvent, rec arrow.Record) []model.UfsEvent {
	n := int(rec.NumRows())
	timeCol := rec.Column(0).(*array.Float64)
	procCol := rec.Column(1).(*array.String)
	cpuCol := rec.Column(2).(*array.Uint32)
	actionCol := rec.Column(3).(*array.String)
	tagCol := rec.Column(4).(*array.Uint32)
	opcodeCol := rec.Column(5).(*array.String)
	lbaCol := rec.Column(6).(*array.Uint64)
	sizeCol := rec.Column(7).(*array.Uint32)
	groupCol := rec.Column(8).(*array.Uint32)
	hwqCol := rec.Column(9).(*array.Int32)
	qdCol := rec.Column(10).(*array.Uint32)
	dtocCol := rec.Column(11).(*array.Float64)
	ctocCol := rec.Column(12).(*array.Float64)
	ctodCol := rec.Column(13).(*array.Float64)
	seqCol := rec.Column(14).(*array.Boolean)

	for i := 0; i < n; i++ {
		events = append(events, model.UfsEvent{
			Time:       timeCol.Value(i),
			Process:    procCol.Value(i),
			CPU:        cpuCol.Value(i),
			Action:     parseAction(actionCol.Value(i)),
			Tag:        tagCol.Value(i),
			Opcode:     opcodeCol.Value(i),
			LBA:        lbaCol.Value(i),
			Size:       sizeCol.Value(i),
			GroupID:    groupCol.Value(i),
			HWQueueID:  hwqCol.Value(i),
			QueueDepth: qdCol.Value(i),
			DtoC:       dtocCol.Value(i),
			CtoC:       ctocCol.Value(i),
			CtoD:       ctodCol.Value(i),
			Sequential: seqCol.Value(i),
		})
	}
	return events
}

func appendBlockRows(events []model.BlockEvent, rec arrow.Record) []model.BlockEvent {
	n := int(rec.NumRows())
	timeCol := rec.Column(0).(*array.Float64)
	procCol := rec.Column(1).(*array.String)
	cpuCol := rec.Column(2).(*array.Uint32)
	flagsCol := rec.Column(3).(*array.String)
	actionCol := rec.Column(4).(*array.String)
	majorCol := rec.Column(5).(*array.Uint32)
	minorCol := rec.Column(6).(*array.Uint32)
	iotypeCol := rec.Column(7).(*array.String)
	extraCol := rec.Column(8).(*array.Uint32)
	sectorCol := rec.Column(9).(*array.Uint64)
	sizeCol := rec.Column(10).(*array.Uint32)
	cmdCol := rec.Column(11).(*array.String)
	qdCol := rec.Column(12).(*array.Uint32)
	dtocCol := rec.Column(13).(*array.Float64)
	ctocCol := rec.Column(14).(*array.Float64)
	ctodCol := rec.Column(15).(*array.Float64)
	seqCol := rec.Column(16).(*array.Boolean)

	for i := 0; i < n; i++ {
		events = append(events, model.BlockEvent{
			Time:       timeCol.Value(i),
			Process:    procCol.Value(i),
			CPU:        cpuCol.Value(i),
			Flags:      flagsCol.Value(i),
			Action:     parseAction(actionCol.Value(i)),
			DevMajor:   majorCol.Value(i),
			DevMinor:   minorCol.Value(i),
			IOType:     iotypeCol.Value(i),
			Extra:      extraCol.Value(i),
			Sector:     sectorCol.Value(i),
			Size:       sizeCol.Value(i),
			Command:    cmdCol.Value(i),
			QueueDepth: qdCol.Value(i),
			DtoC:       dtocCol.Value(i),
			CtoC:       ctocCol.Value(i),
			CtoD:       ctodCol.Value(i),
			Sequential: seqCol.Value(i),
		})
	}
	return events
}

func appendCustomRows(events []model.CustomEvent, rec arrow.Record) []model.CustomEvent {
	n := int(rec.NumRows())
	opcodeCol := rec.Column(0).(*array.String)
	lbaCol := rec.Column(1).(*array.Uint64)
	sizeCol := rec.Column(2).(*array.Uint32)
	startCol := rec.Column(3).(*array.Float64)
	endCol := rec.Column(4).(*array.Float64)
	dtocCol := rec.Column(5).(*array.Float64)
	startQDCol := rec.Column(6).(*array.Uint32)
	endQDCol := rec.Column(7).(*array.Uint32)
	ctocCol := rec.Column(8).(*array.Float64)
	ctodCol := rec.Column(9).(*array.Float64)
	seqCol := rec.Column(10).(*array.Boolean)

	for i := 0; i < n; i++ {
		events = append(events, model.CustomEvent{
			Opcode:     opcodeCol.Value(i),
			LBA:        lbaCol.Value(i),
			Size:       sizeCol.Value(i),
			StartTime:  startCol.Value(i),
			EndTime:    endCol.Value(i),
			DtoC:       dtocCol.Value(i),
			StartQD:    startQDCol.Value(i),
			EndQD:      endQDCol.Value(i),
			CtoC:       ctocCol.Value(i),
			CtoD:       ctodCol.Value(i),
			Sequential: seqCol.Value(i),
		})
	}
	return events
}
