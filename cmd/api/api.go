package main

import (
	"context"
	"net/http"
	"time"

	"github.com/farxc/dap-ledger/internal/ledger"
	"github.com/farxc/dap-ledger/internal/logger"
	"github.com/farxc/dap-ledger/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// importLog is the slice of the import history the API reads and writes.
type importLog interface {
	InsertImportHistory(ctx context.Context, history *store.ImportHistory) error
	GetLatest(ctx context.Context, limit int) ([]store.ImportHistory, error)
	UpdateImportStatus(ctx context.Context, id int64, status, message string, dapID *int64) error
}

type application struct {
	config  config
	ledger  *ledger.Service
	imports importLog
	parser  ledger.DocumentParser
	logger  *logger.Logger
}

type config struct {
	addr           string
	db             dbConfig
	ocr            ocrConfig
	redisAddr      string
	parseCacheTTL  time.Duration
	parseTimeout   time.Duration
	maxUploadBytes int64
	migrate        bool
	logLevel       string
}

type dbConfig struct {
	addr         string
	maxOpenConns int
	maxIdleConns int
	maxIdleTime  string
}

type ocrConfig struct {
	enabled bool
	binary  string
	lang    string
	timeout time.Duration
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// OCR on a scanned filing can take most of a minute.
	r.Use(middleware.Timeout(app.config.parseTimeout + 30*time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", app.healthCheckHandler)
		r.Route("/daps", func(r chi.Router) {
			r.Get("/", app.handleListDaps)
			r.Post("/", app.handleCreateDap)
			r.Post("/upload", app.handleUploadDap)
			r.Post("/parse", app.handleParseDap)
			r.Get("/imports", app.handleGetImportHistory)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.handleGetDap)
				r.Patch("/", app.handleUpdateDap)
				r.Delete("/", app.handleDeleteDap)
				r.Get("/atos.csv", app.handleExportActs)
			})
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	const component = "API"

	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: app.config.parseTimeout + time.Minute,
		ReadTimeout:  time.Second * 40,
		IdleTimeout:  time.Minute,
	}

	app.logger.Info(component, "Server started: addr=%s", app.config.addr)
	return srv.ListenAndServe()
}
