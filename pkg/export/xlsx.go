// Package export writes trace analysis reports to external formats.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/traceperf/traceperf/pkg/stats"
)

// Xlsx writes the report as an Excel workbook: one summary sheet plus
// one latency sheet per family.
func Xlsx(report stats.Report, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	f.SetSheetName("Sheet1", summary)
	f.SetCellValue(summary, "A1", "lines read")
	f.SetCellValue(summary, "B1", report.LinesRead)
	f.SetCellValue(summary, "A2", "events parsed")
	f.SetCellValue(summary, "B2", report.EventsParsed)

	row := 4
	for _, cell := range []struct {
		col, header string
	}{
		{"A", "family"}, {"B", "events"}, {"C", "dispatches"},
		{"D", "completes"}, {"E", "max queue depth"}, {"F", "sequential"},
	} {
		f.SetCellValue(summary, cell.col+fmt.Sprint(row), cell.header)
	}
	for _, fs := range report.Families {
		row++
		f.SetCellValue(summary, "A"+fmt.Sprint(row), fs.Name)
		f.SetCellValue(summary, "B"+fmt.Sprint(row), fs.Events)
		f.SetCellValue(summary, "C"+fmt.Sprint(row), fs.Dispatches)
		f.SetCellValue(summary, "D"+fmt.Sprint(row), fs.Completes)
		f.SetCellValue(summary, "E"+fmt.Sprint(row), fs.MaxQueueDepth)
		f.SetCellValue(summary, "F"+fmt.Sprint(row), fs.Sequential)

		if err := writeLatencySheet(f, fs); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export: save %s: %w", path, err)
	}
	return nil
}

func writeLatencySheet(f *excelize.File, fs stats.FamilyStats) error {
	sheet := "Latency " + fs.Name
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("export: sheet %s: %w", sheet, err)
	}

	headers := []string{"metric", "count", "min", "avg", "p50", "p95", "p99", "max"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	metrics := []struct {
		name string
		s    stats.LatencySummary
	}{
		{"dtoc", fs.DtoC},
		{"ctoc", fs.CtoC},
		{"ctod", fs.CtoD},
	}
	for row, m := range metrics {
		values := []interface{}{m.name, m.s.Count, m.s.Min, m.s.Avg, m.s.P50, m.s.P95, m.s.P99, m.s.Max}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}
	return nil
}
