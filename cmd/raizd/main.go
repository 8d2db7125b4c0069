// Command raizd runs the hydroponic production record service: the lot
// lifecycle HTTP API, the nightly report scheduler, and the export worker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raizcore/internal/adapters/httpapi"
	"raizcore/internal/blob"
	"raizcore/internal/core"
	"raizcore/internal/report"
)

var exitFunc = os.Exit

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "raizd:", err)
		exitFunc(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("raizd", flag.ContinueOnError)
	addr := fs.String("addr", defaultAddr(), "HTTP listen address")
	reportHour := fs.Int("report-hour", report.ReportHourFromEnv(), "hour of day (0-23) the daily report fires")
	tracePath := fs.String("trace", "", "append operation spans as JSON lines to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore(store, logger)

	tracer, closeTracer, err := openTracer(*tracePath)
	if err != nil {
		return err
	}
	defer closeTracer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	audit := core.NewMemoryAuditLog()

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithBlobStore(blobs),
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(audit),
	}
	if tracer != nil {
		opts = append(opts, core.WithTracer(tracer))
	}
	service := core.NewService(store, opts...)

	assembler := report.NewAssembler(service, nil)
	worker := report.NewWorker(assembler, blobs, audit)
	worker.Start()
	defer stopWorker(worker, logger)

	scheduler := report.NewScheduler(worker, report.WithHour(*reportHour))
	scheduler.Start()
	defer stopScheduler(scheduler, logger)

	mux := http.NewServeMux()
	api := httpapi.NewHandler(service)
	api.Reports = assembler
	api.Exports = worker
	mux.Handle("/api/v1/", api)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", *addr, "report_hour", *reportHour)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openTracer returns a JSON-lines span tracer appending to path, or a nil
// tracer when tracing is disabled.
func openTracer(path string) (*core.JSONTraceTracer, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace file: %w", err)
	}
	return core.NewJSONTracer(f), func() { _ = f.Close() }, nil
}

func defaultAddr() string {
	if addr := os.Getenv("RAIZCORE_HTTP_ADDR"); addr != "" {
		return addr
	}
	return ":8080"
}

func closeStore(store core.PersistentStore, logger *slog.Logger) {
	type closer interface{ Close() error }
	if c, ok := store.(closer); ok {
		if err := c.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}
}

func stopWorker(worker *report.Worker, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := worker.Stop(ctx); err != nil {
		logger.Error("stop export worker", "error", err)
	}
}

func stopScheduler(scheduler *report.Scheduler, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := scheduler.Stop(ctx); err != nil {
		logger.Error("stop report scheduler", "error", err)
	}
}
