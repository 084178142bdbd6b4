package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/traceperf/traceperf/pkg/config"
	"github.com/traceperf/traceperf/pkg/server"
	"github.com/traceperf/traceperf/pkg/writer"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis job API server",
	Long: `Start an HTTP server that accepts analysis jobs and streams progress
over Server-Sent Events.

The server provides:
  - POST /api/analyze to submit a trace file for analysis
  - GET /api/jobs and /api/jobs/{id} for job status
  - GET /api/jobs/{id}/events for live progress (SSE)
  - GET /api/jobs/{id}/stats for the finished latency report

Examples:
  traceperf serve                  # Start on default port (8080)
  traceperf serve --port 3000
  traceperf serve --host 0.0.0.0   # Listen on all interfaces`,
	RunE: runServe,
}

func init() {
	cfg := config.Global().Get()

	serveCmd.Flags().IntVarP(&servePort, "port", "p", cfg.Server.Port, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", cfg.Server.Host, "Host to bind to")
	serveCmd.Flags().StringVarP(&outputDir, "output", "o", cfg.Output.Dir, "Directory for job datasets")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()

	var store server.JobStore
	if cfg.Redis.Addr != "" {
		rs, err := server.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rs.Close()
		store = rs
	}

	srv := server.New(server.Options{
		Addr:      fmt.Sprintf("%s:%d", serveHost, servePort),
		OutputDir: outputDir,
		Workers:   cfg.Engine.Workers,
		Store:     store,
		Writer: writer.Config{
			BatchSize:   cfg.Output.BatchSize,
			Compression: writer.ParseCompression(cfg.Output.Compression),
		},
	})

	fmt.Printf("traceperf server listening on http://%s:%d (Ctrl+C to stop)\n", serveHost, servePort)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}
