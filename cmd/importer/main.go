package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farxc/dap-ledger/internal/dap"
	"github.com/farxc/dap-ledger/internal/db"
	"github.com/farxc/dap-ledger/internal/ingest"
	"github.com/farxc/dap-ledger/internal/ledger"
	"github.com/farxc/dap-ledger/internal/logger"
	"github.com/farxc/dap-ledger/internal/pdftext"
	"github.com/farxc/dap-ledger/internal/store"
	"github.com/spf13/pflag"
)

// noHistory stands in for the import history table on dry runs.
type noHistory struct{}

func (noHistory) InsertImportHistory(context.Context, *store.ImportHistory) error { return nil }

func (noHistory) UpdateImportStatus(context.Context, int64, string, string, *int64) error {
	return nil
}

// noRepo rejects every write; dry runs only parse.
type noRepo struct{}

var errDryRun = errors.New("storage disabled on dry run")

func (noRepo) CreateWithRetification(context.Context, *dap.Header, []dap.Period) (*dap.Record, error) {
	return nil, errDryRun
}

func (noRepo) GetByID(context.Context, int64) (*dap.Record, error) { return nil, errDryRun }

func (noRepo) List(context.Context, store.DapFilter) ([]dap.Record, int, error) {
	return nil, 0, errDryRun
}

func (noRepo) UpdateHeader(context.Context, int64, func(*dap.Header) error) error { return errDryRun }

func (noRepo) SoftDelete(context.Context, int64) error { return errDryRun }

func main() {
	const component = "Importer"

	appLogger := logger.New(logger.LevelInfo)

	cfg, err := Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		appLogger.Error(component, "Configuration rejected: err=%v", err)
		os.Exit(2)
	}
	appLogger.SetLogLevel(logger.ParseLevel(cfg.LogLevel))
	start := time.Now()
	monitor := NewMonitor()
	monitor.Start(2*time.Second, appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		repo    ledger.Repository = noRepo{}
		history ingest.History    = noHistory{}
	)
	if !cfg.DryRun {
		conn, err := db.New(cfg.DBAddr, cfg.Workers+2, cfg.Workers, "5m")
		if err != nil {
			appLogger.Fatal(component, "Database connection failed: err=%v", err)
		}
		defer conn.Close()

		if cfg.Migrate {
			if err := db.Migrate(ctx, conn); err != nil {
				appLogger.Fatal(component, "Schema migration failed: err=%v", err)
			}
		}
		storage := store.NewStorage(conn, appLogger)
		repo = storage.Daps
		history = storage.ImportHistory
	}

	opts := []dap.Option{dap.WithLogger(appLogger), dap.WithOCRTimeout(cfg.OCRTimeout)}
	if cfg.OCR {
		engine := pdftext.NewTesseractEngine(cfg.OCRBinary, cfg.OCRLang)
		if !engine.Available() {
			appLogger.Fatal(component, "OCR requested but engine not found: binary=%s", cfg.OCRBinary)
		}
		opts = append(opts, dap.WithOCR(pdftext.NewImageRenderer(), engine))
	}
	parser := dap.NewParser(pdftext.NewTextLayer(), opts...)

	// OCR runs inside the parse, so the parse limit covers it with room to spare.
	service := ledger.NewService(repo, appLogger, cfg.OCRTimeout+30*time.Second)
	orchestrator := ingest.NewOrchestrator(service, history, parser, appLogger, cfg.Workers,
		ingest.WithDryRun(cfg.DryRun), ingest.WithRetryLimit(cfg.RetryMax))

	summary, runErr := orchestrator.Run(ctx, cfg.Dir)
	stats := monitor.Stop()

	appLogger.Info(component, "Import finished: succeeded=%d skipped=%d failed=%d duration=%s peakGoroutines=%d peakMemoryMB=%d",
		summary.Succeeded, summary.Skipped, summary.Failed, time.Since(start).Round(time.Millisecond), stats.PeakGoroutines, stats.PeakMemoryMB)

	if runErr != nil {
		appLogger.Error(component, "Import interrupted: err=%v", runErr)
		os.Exit(1)
	}
	if summary.Failed > 0 {
		os.Exit(1)
	}
}
