package store

import (
	"context"
	"fmt"

	"github.com/farxc/dap-ledger/internal/logger"
	"github.com/jmoiron/sqlx"
)

type ImportHistoryStore struct {
	db     *sqlx.DB
	logger *logger.Logger
}

var (
	TriggerTypeUpload = "upload"
	TriggerTypeBatch  = "batch"
)

var (
	ImportStatusInProgress = "IN_PROGRESS"
	ImportStatusSuccess    = "SUCCESS"
	ImportStatusFailure    = "FAILURE"
	ImportStatusSkipped    = "SKIPPED"
)

func (ih *ImportHistoryStore) InsertImportHistory(ctx context.Context, history *ImportHistory) error {
	query := `INSERT INTO dap_import_history (
		import_id,
		source_file,
		trigger_type,
		status,
		message
	) VALUES (
		:import_id,
		:source_file,
		:trigger_type,
		:status,
		:message
	) RETURNING id, processed_at`

	rows, err := sqlx.NamedQueryContext(ctx, ih.db, query, history)
	if err != nil {
		return fmt.Errorf("failed to insert import history: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		err = rows.Scan(&history.ID, &history.ProcessedAt)
		if err != nil {
			return err
		}
	}

	ih.logger.Debug("ImportHistory", "Import history recorded: id=%d file=%s", history.ID, history.SourceFile)
	return rows.Err()
}

func (ih *ImportHistoryStore) GetLatest(ctx context.Context, limit int) ([]ImportHistory, error) {
	var out []ImportHistory
	err := ih.db.SelectContext(ctx, &out, `
		SELECT id, import_id, source_file, trigger_type, status, message, dap_id, processed_at, finished_at
		FROM dap_import_history
		ORDER BY processed_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import history: %w", err)
	}
	return out, nil
}

// UpdateImportStatus closes an import with its outcome and, on success, the
// DAP it produced.
func (ih *ImportHistoryStore) UpdateImportStatus(ctx context.Context, id int64, status, message string, dapID *int64) error {
	res, err := ih.db.ExecContext(ctx, `
		UPDATE dap_import_history
		SET status = $1, message = $2, dap_id = $3, finished_at = now()
		WHERE id = $4`, status, message, dapID, id)
	if err != nil {
		return fmt.Errorf("failed to update import history %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
