package export

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/traceperf/traceperf/pkg/stats"
)

func TestXlsx(t *testing.T) {
	report := stats.Report{
		LinesRead:    100,
		EventsParsed: 42,
		Families: []stats.FamilyStats{
			{
				Name:       "ufs",
				Events:     42,
				Dispatches: 21,
				Completes:  21,
				DtoC:       stats.LatencySummary{Count: 21, Min: 0.1, Avg: 0.5, Max: 2.0},
			},
		},
	}

	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := Xlsx(report, path); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got, err := f.GetCellValue("Summary", "B1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "100" {
		t.Errorf("lines read cell = %q, want 100", got)
	}

	name, err := f.GetCellValue("Latency ufs", "A2")
	if err != nil {
		t.Fatal(err)
	}
	if name != "dtoc" {
		t.Errorf("latency metric cell = %q, want dtoc", name)
	}
}
