package store

import (
	"context"

	"github.com/farxc/dap-ledger/internal/dap"
	"github.com/farxc/dap-ledger/internal/logger"
	"github.com/jmoiron/sqlx"
)

type Storage struct {
	Daps interface {
		CreateWithRetification(ctx context.Context, h *dap.Header, periods []dap.Period) (*dap.Record, error)
		GetByID(ctx context.Context, id int64) (*dap.Record, error)
		List(ctx context.Context, f DapFilter) ([]dap.Record, int, error)
		UpdateHeader(ctx context.Context, id int64, apply func(*dap.Header) error) error
		SoftDelete(ctx context.Context, id int64) error
	}

	ImportHistory interface {
		InsertImportHistory(ctx context.Context, history *ImportHistory) error
		GetLatest(ctx context.Context, limit int) ([]ImportHistory, error)
		UpdateImportStatus(ctx context.Context, id int64, status, message string, dapID *int64) error
	}
}

func NewStorage(db *sqlx.DB, log *logger.Logger) *Storage {
	return &Storage{
		Daps:          &DapStore{db: db, logger: log},
		ImportHistory: &ImportHistoryStore{db: db, logger: log},
	}
}
