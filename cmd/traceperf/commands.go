package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/traceperf/traceperf/pkg/config"
	"github.com/traceperf/traceperf/pkg/export"
	"github.com/traceperf/traceperf/pkg/ingest"
	"github.com/traceperf/traceperf/pkg/query"
	s3storage "github.com/traceperf/traceperf/pkg/storage/s3"
	"github.com/traceperf/traceperf/pkg/stats"
	"github.com/traceperf/traceperf/pkg/tui"
	"github.com/traceperf/traceperf/pkg/watch"
	"github.com/traceperf/traceperf/pkg/writer"
)

var (
	datasetDir string
	exportPath string

	uploadBucket string
	uploadPrefix string
	uploadRegion string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print latency and queue-depth statistics for a dataset",
	Long: `Read a previously written Parquet dataset and print per-family latency
summaries.

Examples:
  traceperf stats -d ./out`,
	RunE: runStats,
}

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Run SQL over a dataset with DuckDB",
	Long: `Execute ad-hoc SQL against a dataset. The families are exposed as the
views "ufs", "block" and "custom".

Examples:
  traceperf query -d ./out "SELECT count(*) FROM ufs WHERE dtoc > 10"
  traceperf query -d ./out "SELECT opcode, avg(dtoc) FROM ufs GROUP BY opcode"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export dataset statistics to an XLSX workbook",
	Long: `Summarize a dataset and write the report as an Excel workbook with one
sheet per trace family.

Examples:
  traceperf export -d ./out -o report.xlsx`,
	RunE: runExport,
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a dataset to S3",
	Long: `Upload the Parquet files of a dataset to an S3 bucket.

Examples:
  traceperf upload -d ./out --bucket traces --prefix runs/2024-01-01
  traceperf upload -d ./out --bucket traces --region eu-west-1`,
	RunE: runUpload,
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download a dataset from S3",
	Long: `Download the Parquet files of a previously uploaded dataset into a
local directory.

Examples:
  traceperf download -d ./out --bucket traces --prefix runs/2024-01-01`,
	RunE: runDownload,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-analyze a trace file whenever it changes",
	Long: `Watch a trace file and re-run the analysis each time the tracer appends
to it. The dataset directory is rewritten on every change.

Examples:
  traceperf watch -i trace.txt -o ./out`,
	RunE: runWatch,
}

func init() {
	cfg := config.Global().Get()

	statsCmd.Flags().StringVarP(&datasetDir, "dataset", "d", cfg.Output.Dir, "Dataset directory")

	queryCmd.Flags().StringVarP(&datasetDir, "dataset", "d", cfg.Output.Dir, "Dataset directory")

	exportCmd.Flags().StringVarP(&datasetDir, "dataset", "d", cfg.Output.Dir, "Dataset directory")
	exportCmd.Flags().StringVarP(&exportPath, "output", "o", "report.xlsx", "Output XLSX path")

	uploadCmd.Flags().StringVarP(&datasetDir, "dataset", "d", cfg.Output.Dir, "Dataset directory")
	uploadCmd.Flags().StringVar(&uploadBucket, "bucket", cfg.Storage.Bucket, "S3 bucket name")
	uploadCmd.Flags().StringVar(&uploadPrefix, "prefix", "", "Key prefix inside the bucket")
	uploadCmd.Flags().StringVar(&uploadRegion, "region", cfg.Storage.Region, "AWS region")

	downloadCmd.Flags().StringVarP(&datasetDir, "dataset", "d", cfg.Output.Dir, "Destination directory")
	downloadCmd.Flags().StringVar(&uploadBucket, "bucket", cfg.Storage.Bucket, "S3 bucket name")
	downloadCmd.Flags().StringVar(&uploadPrefix, "prefix", "", "Key prefix inside the bucket (required)")
	downloadCmd.Flags().StringVar(&uploadRegion, "region", cfg.Storage.Region, "AWS region")
	downloadCmd.MarkFlagRequired("prefix")

	watchCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Trace file to watch (required)")
	watchCmd.Flags().StringVarP(&outputDir, "output", "o", cfg.Output.Dir, "Output dataset directory")
	watchCmd.Flags().StringVar(&compressionFlag, "compression", cfg.Output.Compression, "Parquet compression")
	watchCmd.Flags().IntVar(&batchSize, "batch-size", cfg.Output.BatchSize, "Rows per Parquet write batch")
	watchCmd.Flags().IntVar(&workers, "workers", cfg.Engine.Workers, "Parse worker count (0 = auto)")
	watchCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(watchCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	set, err := writer.ReadSet(cmd.Context(), datasetDir)
	if err != nil {
		return err
	}
	fmt.Println(stats.Summarize(set).Render())
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	eng, err := query.NewEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.RegisterDataset(cmd.Context(), datasetDir); err != nil {
		return err
	}

	res, err := eng.Query(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer res.Close()

	out, err := res.RenderAll()
	if err != nil {
		return err
	}
	fmt.Print(out)
	fmt.Fprintf(os.Stderr, "(%d ms)\n", res.Duration().Milliseconds())
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	set, err := writer.ReadSet(cmd.Context(), datasetDir)
	if err != nil {
		return err
	}
	if err := export.Xlsx(stats.Summarize(set), exportPath); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", exportPath)
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	if uploadBucket == "" {
		return fmt.Errorf("bucket is required (--bucket or storage.bucket in config)")
	}

	cfg := config.Global().Get()
	s3cfg := s3storage.DefaultConfig(uploadBucket, uploadRegion)
	s3cfg.Endpoint = cfg.Storage.Endpoint
	s3cfg.UsePathStyle = cfg.Storage.PathStyle

	client, err := s3storage.NewClient(cmd.Context(), s3cfg)
	if err != nil {
		return err
	}

	prefix := uploadPrefix
	if prefix == "" {
		prefix = "traceperf/" + time.Now().UTC().Format("2006-01-02T15-04-05")
	}
	prefix = strings.TrimSuffix(prefix, "/")

	if err := client.UploadDataset(cmd.Context(), datasetDir, prefix); err != nil {
		return err
	}
	fmt.Printf("uploaded %s to s3://%s/%s\n", datasetDir, uploadBucket, prefix)
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	if uploadBucket == "" {
		return fmt.Errorf("bucket is required (--bucket or storage.bucket in config)")
	}

	cfg := config.Global().Get()
	s3cfg := s3storage.DefaultConfig(uploadBucket, uploadRegion)
	s3cfg.Endpoint = cfg.Storage.Endpoint
	s3cfg.UsePathStyle = cfg.Storage.PathStyle

	client, err := s3storage.NewClient(cmd.Context(), s3cfg)
	if err != nil {
		return err
	}

	prefix := strings.TrimSuffix(uploadPrefix, "/")
	if err := client.DownloadDataset(cmd.Context(), prefix, datasetDir); err != nil {
		return err
	}
	fmt.Printf("downloaded s3://%s/%s to %s\n", uploadBucket, prefix, datasetDir)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	analyze := func(path string) error {
		set, err := ingest.Analyze(cmd.Context(), path, ingest.Options{Workers: workers})
		if err != nil {
			return err
		}
		cfg := writer.Config{
			BatchSize:   batchSize,
			Compression: writer.ParseCompression(compressionFlag),
		}
		if err := writer.WriteSet(cmd.Context(), outputDir, set, cfg); err != nil {
			return err
		}
		fmt.Printf("%s reanalyzed: %d events\n", time.Now().Format(time.TimeOnly), set.EventsParsed)
		return nil
	}

	w, err := watch.New()
	if err != nil {
		return err
	}
	defer w.Close()

	w.OnChange = analyze
	w.OnError = func(path string, err error) {
		tui.PrintError(fmt.Errorf("watch %s: %w", path, err))
	}

	if err := w.Watch(inputFile); err != nil {
		return err
	}

	// Analyze once up front so the dataset exists before the first change.
	if err := analyze(inputFile); err != nil {
		return err
	}

	fmt.Printf("watching %s (Ctrl+C to stop)\n", inputFile)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
