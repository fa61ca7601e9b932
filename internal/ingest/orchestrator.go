package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/farxc/dap-ledger/internal/dap"
	"github.com/farxc/dap-ledger/internal/ledger"
	"github.com/farxc/dap-ledger/internal/logger"
	"github.com/farxc/dap-ledger/internal/store"
	"github.com/google/uuid"
)

type Importer interface {
	ImportPDF(ctx context.Context, parser ledger.DocumentParser, buf []byte, opts ledger.ImportOptions) (*dap.Record, error)
	Parse(ctx context.Context, parser ledger.DocumentParser, buf []byte, ov *dap.Overrides) (*dap.Payload, error)
}

type History interface {
	InsertImportHistory(ctx context.Context, history *store.ImportHistory) error
	UpdateImportStatus(ctx context.Context, id int64, status, message string, dapID *int64) error
}

type ImportJob struct {
	Path    string
	Attempt int
}

type ImportResult struct {
	Job       ImportJob
	HistoryID int64
	DapID     int64
	Status    string
	Error     error
}

// Summary is the outcome of a batch, one entry per file.
type Summary struct {
	Succeeded int
	Skipped   int
	Failed    int
	Results   []ImportResult
}

type Orchestrator struct {
	importer  Importer
	history   History
	parser    ledger.DocumentParser
	appLogger *logger.Logger

	// Settings
	maxConcurrency int
	retryLimit     int
	dryRun         bool

	summary Summary
	mu      sync.Mutex
	wg      sync.WaitGroup
	done    chan struct{}

	jobChan    chan ImportJob
	resultChan chan ImportResult
}

type Option func(*Orchestrator)

// WithDryRun parses every file without storing filings or history rows.
func WithDryRun(dryRun bool) Option {
	return func(o *Orchestrator) { o.dryRun = dryRun }
}

// WithRetryLimit sets the attempts per file on storage failures. The default
// is a single attempt.
func WithRetryLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.retryLimit = n
		}
	}
}

func NewOrchestrator(importer Importer, history History, parser ledger.DocumentParser, appLogger *logger.Logger, concurrency int, opts ...Option) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	o := &Orchestrator{
		importer:       importer,
		history:        history,
		parser:         parser,
		appLogger:      appLogger,
		maxConcurrency: concurrency,
		retryLimit:     1,
		done:           make(chan struct{}),
		jobChan:        make(chan ImportJob, 100),
		resultChan:     make(chan ImportResult, 100),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FindPDFs lists the PDF files directly inside dir, sorted by name.
func FindPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read import dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Run imports every PDF in dir and blocks until all of them are done.
func (o *Orchestrator) Run(ctx context.Context, dir string) (Summary, error) {
	const component = "Orchestrator"

	paths, err := FindPDFs(dir)
	if err != nil {
		return Summary{}, err
	}
	o.appLogger.Info(component, "Found files to import: dir=%s count=%d dryRun=%t", dir, len(paths), o.dryRun)

	o.Start(ctx)
	go func() {
		defer o.Close()
		for _, p := range paths {
			select {
			case <-ctx.Done():
				return
			case o.jobChan <- ImportJob{Path: p, Attempt: 1}:
			}
		}
	}()
	o.Wait()
	return o.Summary(), ctx.Err()
}

func (o *Orchestrator) Start(ctx context.Context) {
	const component = "Orchestrator"
	o.appLogger.Info(component, "Starting orchestrator: concurrency=%d", o.maxConcurrency)

	for i := 0; i < o.maxConcurrency; i++ {
		o.wg.Add(1)
		go o.worker(ctx, &o.wg)
	}
	go o.listenToResults()
}

// Wait blocks until the workers drain the queue and every result is recorded.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
	close(o.resultChan)
	<-o.done
}

func (o *Orchestrator) Close() {
	close(o.jobChan)
}

func (o *Orchestrator) Summary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.summary
	s.Results = append([]ImportResult(nil), o.summary.Results...)
	return s
}

func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup) {
	const component = "Worker"
	defer wg.Done()

	for job := range o.jobChan {
		if ctx.Err() != nil {
			o.resultChan <- ImportResult{Job: job, Status: store.ImportStatusFailure, Error: ctx.Err()}
			continue
		}
		o.appLogger.Debug(component, "Processing job: file=%s", job.Path)

		if o.dryRun {
			o.resultChan <- o.parseOnly(ctx, job)
			continue
		}

		importID := uuid.NewString()
		history := &store.ImportHistory{
			ImportID:    importID,
			SourceFile:  filepath.Base(job.Path),
			TriggerType: store.TriggerTypeBatch,
			Status:      store.ImportStatusInProgress,
		}
		if err := o.history.InsertImportHistory(ctx, history); err != nil {
			o.appLogger.Error(component, "Failed to create IN_PROGRESS record: file=%s err=%v", job.Path, err)
			o.resultChan <- ImportResult{Job: job, Status: store.ImportStatusFailure, Error: err}
			continue
		}

		result := o.processFile(ctx, job, importID)
		result.HistoryID = history.ID

		var dapID *int64
		message := ""
		if result.DapID != 0 {
			dapID = &result.DapID
		}
		if result.Error != nil {
			message = result.Error.Error()
		}
		if err := o.history.UpdateImportStatus(ctx, history.ID, result.Status, message, dapID); err != nil {
			o.appLogger.Error(component, "Failed to update final status: id=%d status=%s err=%v", history.ID, result.Status, err)
		}

		o.resultChan <- result
	}
}

// processFile imports one file, retrying storage failures that are neither
// conflicts nor bad documents.
func (o *Orchestrator) processFile(ctx context.Context, job ImportJob, importID string) ImportResult {
	const component = "Processor"

	buf, err := os.ReadFile(job.Path)
	if err != nil {
		return ImportResult{Job: job, Status: store.ImportStatusFailure, Error: fmt.Errorf("failed to read %s: %w", job.Path, err)}
	}

	for {
		rec, err := o.importer.ImportPDF(ctx, o.parser, buf, ledger.ImportOptions{
			ImportID: importID,
			FileName: filepath.Base(job.Path),
		})
		if err == nil {
			return ImportResult{Job: job, DapID: rec.ID, Status: store.ImportStatusSuccess}
		}

		status := classify(err)
		var perr *ledger.PersistenceError
		if errors.As(err, &perr) && job.Attempt < o.retryLimit && ctx.Err() == nil {
			o.appLogger.Warn(component, "Import failed, retrying: file=%s attempt=%d err=%v", job.Path, job.Attempt, err)
			job.Attempt++
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(job.Attempt) * 100 * time.Millisecond):
			}
			continue
		}
		return ImportResult{Job: job, Status: status, Error: err}
	}
}

func (o *Orchestrator) parseOnly(ctx context.Context, job ImportJob) ImportResult {
	buf, err := os.ReadFile(job.Path)
	if err != nil {
		return ImportResult{Job: job, Status: store.ImportStatusFailure, Error: err}
	}
	ov := dap.Overrides{ArquivoNome: filepath.Base(job.Path)}
	if _, err := o.importer.Parse(ctx, o.parser, buf, &ov); err != nil {
		return ImportResult{Job: job, Status: store.ImportStatusFailure, Error: err}
	}
	return ImportResult{Job: job, Status: store.ImportStatusSuccess}
}

// classify maps an import error to the history status it leaves behind. A
// competency that is already filed is skipped, not failed.
func classify(err error) string {
	if errors.Is(err, store.ErrDuplicateCompetency) {
		return store.ImportStatusSkipped
	}
	return store.ImportStatusFailure
}

func (o *Orchestrator) listenToResults() {
	const component = "Orchestrator-Feedback"
	defer close(o.done)

	for result := range o.resultChan {
		name := filepath.Base(result.Job.Path)
		switch result.Status {
		case store.ImportStatusSuccess:
			o.appLogger.Info(component, "File imported: file=%s dapId=%d", name, result.DapID)
		case store.ImportStatusSkipped:
			o.appLogger.Info(component, "File skipped, competency already filed: file=%s err=%v", name, result.Error)
		default:
			o.appLogger.Error(component, "File failed: file=%s attempts=%d err=%v", name, result.Job.Attempt, result.Error)
		}

		o.mu.Lock()
		switch result.Status {
		case store.ImportStatusSuccess:
			o.summary.Succeeded++
		case store.ImportStatusSkipped:
			o.summary.Skipped++
		default:
			o.summary.Failed++
		}
		o.summary.Results = append(o.summary.Results, result)
		o.mu.Unlock()
	}
}
