// traceperf - Storage I/O trace latency and queue-depth analyzer.
// Parses UFS, Block and custom trace files into Parquet datasets.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/traceperf/traceperf/pkg/config"
	"github.com/traceperf/traceperf/pkg/ingest"
	"github.com/traceperf/traceperf/pkg/parser"
	"github.com/traceperf/traceperf/pkg/processors"
	"github.com/traceperf/traceperf/pkg/stats"
	"github.com/traceperf/traceperf/pkg/telemetry"
	"github.com/traceperf/traceperf/pkg/tui"
	"github.com/traceperf/traceperf/pkg/writer"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	inputFile       string
	outputDir       string
	compressionFlag string
	batchSize       int
	workers         int
	quiet           bool

	// Filter flags
	familyFlag string
	timeFrom   float64
	timeTo     float64
	addrFrom   uint64
	addrTo     uint64
)

var telemetryShutdown func(context.Context) error

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "traceperf",
	Short: "traceperf - Analyze storage I/O traces",
	Long: `traceperf reconstructs per-request latencies and queue depths from
storage I/O traces (UFS ftrace, Block blktrace, custom CSV) and writes
the enriched events as Apache Parquet datasets.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	PersistentPreRunE: setupTelemetry,
	PersistentPostRun: teardownTelemetry,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a trace file and write the Parquet dataset",
	Long: `Parse a trace file, reconstruct latencies and queue depths, and write
the result as one Parquet file per trace family.

Examples:
  traceperf analyze -i trace.txt -o ./out
  traceperf analyze -i trace.txt -o ./out --compression zstd
  traceperf analyze -i trace.txt -o ./out --family ufs
  traceperf analyze -i trace.txt -o ./out --from 10.5 --to 20.0
  traceperf analyze -i trace.txt -o ./out --lba-from 4096 --lba-to 8192`,
	RunE: runAnalyze,
}

func init() {
	cfg := config.Global().Get()

	analyzeCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input trace file path (required)")
	analyzeCmd.Flags().StringVarP(&outputDir, "output", "o", cfg.Output.Dir, "Output dataset directory")
	analyzeCmd.Flags().StringVar(&compressionFlag, "compression", cfg.Output.Compression, "Parquet compression (none, snappy, gzip, zstd)")
	analyzeCmd.Flags().IntVar(&batchSize, "batch-size", cfg.Output.BatchSize, "Rows per Parquet write batch")
	analyzeCmd.Flags().IntVar(&workers, "workers", cfg.Engine.Workers, "Parse worker count (0 = auto)")
	analyzeCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")

	analyzeCmd.Flags().StringVar(&familyFlag, "family", "", "Keep only one trace family (ufs, block, custom)")
	analyzeCmd.Flags().Float64Var(&timeFrom, "from", 0, "Keep events at or after this timestamp (seconds)")
	analyzeCmd.Flags().Float64Var(&timeTo, "to", 0, "Keep events at or before this timestamp (seconds)")
	analyzeCmd.Flags().Uint64Var(&addrFrom, "lba-from", 0, "Keep events at or above this address")
	analyzeCmd.Flags().Uint64Var(&addrTo, "lba-to", 0, "Keep events at or below this address")

	analyzeCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(analyzeCmd)
}

func setupTelemetry(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	if !cfg.Telemetry.Enabled {
		return nil
	}
	tcfg := telemetry.DefaultConfig("traceperf")
	tcfg.ServiceVersion = version
	if cfg.Telemetry.Endpoint != "" {
		tcfg.Endpoint = cfg.Telemetry.Endpoint
	}
	shutdown, err := telemetry.Init(cmd.Context(), tcfg)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	telemetryShutdown = shutdown
	return nil
}

func teardownTelemetry(cmd *cobra.Command, args []string) {
	if telemetryShutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	telemetryShutdown(ctx)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	info, err := os.Stat(inputFile)
	if err != nil {
		return fmt.Errorf("input file does not exist: %s", inputFile)
	}

	family := parser.FamilyUnknown
	if familyFlag != "" {
		family, err = parser.ParseFamily(familyFlag)
		if err != nil {
			return err
		}
	}

	if !quiet {
		tui.PrintHeader("v" + version)
	}

	ctx, span := telemetry.StartSpan(cmd.Context(), "analyze")
	defer span.End()

	start := time.Now()

	var (
		bar      *progressbar.ProgressBar
		barStage string
	)
	onProgress := func(stage string, percent float64, records int64) {
		if quiet {
			return
		}
		if stage != barStage {
			if bar != nil {
				bar.Finish()
			}
			bar = tui.StageBar(stage)
			barStage = stage
		}
		bar.Set64(int64(percent))
	}

	set, err := ingest.Analyze(ctx, inputFile, ingest.Options{
		Workers:    workers,
		OnProgress: onProgress,
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		tui.PrintError(err)
		return err
	}
	if bar != nil {
		bar.Finish()
	}

	if family != parser.FamilyUnknown {
		processors.FilterFamily(set, family)
	}
	if timeFrom > 0 || timeTo > 0 {
		processors.FilterTime(set, processors.TimeRange{From: timeFrom, To: timeTo})
	}
	if addrFrom > 0 || addrTo > 0 {
		processors.FilterAddr(set, processors.AddrRange{From: addrFrom, To: addrTo})
	}

	cfg := writer.Config{
		BatchSize:   batchSize,
		Compression: writer.ParseCompression(compressionFlag),
	}
	if err := writer.WriteSet(ctx, outputDir, set, cfg); err != nil {
		telemetry.RecordError(ctx, err)
		tui.PrintError(err)
		return err
	}

	if quiet {
		return nil
	}

	tui.PrintAnalysisReport(&tui.AnalysisReport{
		LinesRead:    set.LinesRead,
		EventsParsed: set.EventsParsed,
		InputSize:    info.Size(),
		Duration:     time.Since(start),
		OutputDir:    outputDir,
	})
	fmt.Println(stats.Summarize(set).Render())
	return nil
}
