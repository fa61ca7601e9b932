package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/farxc/dap-ledger/internal/dap"
	"github.com/farxc/dap-ledger/internal/logger"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const dapColumns = `id, ano, mes, numero, tipo, data_emissao, status, retificada_por_id,
	retificadora_de_id, valores, metadata, created_at, updated_at`

type DapStore struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// DapFilter selects headers for listing. Zero values match everything;
// REMOVIDA headers are only listed when Status asks for them.
type DapFilter struct {
	Ano    int
	Mes    int
	Tipo   dap.Tipo
	Status dap.Status
	Limit  int
	Offset int
}

// CreateWithRetification stores a header with its periods and acts in one
// transaction. A RETIFICADORA is linked to the most recently updated active
// ORIGINAL of the same competency, when there is one.
func (s *DapStore) CreateWithRetification(ctx context.Context, h *dap.Header, periods []dap.Period) (*dap.Record, error) {
	const component = "DapStore"

	row, err := newDapRow(h)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.GetContext(ctx, &existingID, `
		SELECT id FROM daps
		WHERE ano = $1 AND mes = $2 AND tipo = $3 AND status <> 'REMOVIDA'
		LIMIT 1
		FOR UPDATE`, row.Ano, row.Mes, row.Tipo)
	switch {
	case err == nil:
		return nil, &ConflictError{ExistingID: existingID, Ano: h.Ano, Mes: h.Mes, Tipo: h.Tipo}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to check existing competency: %w", err)
	}

	if err := insertDap(ctx, tx, row); err != nil {
		if isActiveCompetencyViolation(err) {
			tx.Rollback()
			return nil, s.conflictAfterRace(ctx, h)
		}
		return nil, fmt.Errorf("failed to insert dap: %w", err)
	}

	stored := make([]dap.Period, 0, len(periods))
	for _, p := range periods {
		if err := insertPeriod(ctx, tx, row.ID, p); err != nil {
			return nil, err
		}
		stored = append(stored, p)
	}

	if row.Tipo == string(dap.TipoRetificadora) {
		var originalID int64
		err := tx.GetContext(ctx, &originalID, `
			SELECT id FROM daps
			WHERE ano = $1 AND mes = $2 AND tipo = 'ORIGINAL' AND status <> 'REMOVIDA'
			ORDER BY updated_at DESC
			LIMIT 1
			FOR UPDATE`, row.Ano, row.Mes)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, `
				UPDATE daps SET status = 'RETIFICADA', retificada_por_id = $1, updated_at = now()
				WHERE id = $2`, row.ID, originalID); err != nil {
				return nil, fmt.Errorf("failed to mark original %d as retificada: %w", originalID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE daps SET retificadora_de_id = $1 WHERE id = $2`, originalID, row.ID); err != nil {
				return nil, fmt.Errorf("failed to link retificadora %d: %w", row.ID, err)
			}
			row.RetificadoraDeID = &originalID
		case errors.Is(err, sql.ErrNoRows):
			s.logger.Info(component, "Retificadora without original: ano=%d mes=%d id=%d", row.Ano, row.Mes, row.ID)
		default:
			return nil, fmt.Errorf("failed to look up original: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isActiveCompetencyViolation(err) {
			return nil, s.conflictAfterRace(ctx, h)
		}
		return nil, fmt.Errorf("failed to commit dap %d: %w", row.ID, err)
	}
	s.logger.Info(component, "DAP stored: id=%d ano=%d mes=%d tipo=%s periods=%d", row.ID, row.Ano, row.Mes, row.Tipo, len(stored))

	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	rec.Periodos = stored
	return rec, nil
}

// conflictAfterRace builds the conflict for a concurrent insert that won the
// unique index after our pre-check passed.
func (s *DapStore) conflictAfterRace(ctx context.Context, h *dap.Header) error {
	conflict := &ConflictError{Ano: h.Ano, Mes: h.Mes, Tipo: h.Tipo}
	err := s.db.GetContext(ctx, &conflict.ExistingID, `
		SELECT id FROM daps
		WHERE ano = $1 AND mes = $2 AND tipo = $3 AND status <> 'REMOVIDA'
		LIMIT 1`, h.Ano, h.Mes, string(h.Tipo))
	if err != nil {
		s.logger.Warn("DapStore", "Could not resolve conflicting dap: ano=%d mes=%d err=%v", h.Ano, h.Mes, err)
	}
	return conflict
}

func insertDap(ctx context.Context, tx *sqlx.Tx, row *Dap) error {
	query := `INSERT INTO daps (
		ano,
		mes,
		numero,
		tipo,
		data_emissao,
		status,
		valores,
		metadata
	) VALUES (
		:ano,
		:mes,
		:numero,
		:tipo,
		:data_emissao,
		:status,
		:valores,
		:metadata
	) RETURNING id, created_at, updated_at`

	rows, err := sqlx.NamedQueryContext(ctx, tx, query, row)
	if err != nil {
		return err
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&row.ID, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return err
		}
	}
	return rows.Err()
}

func insertPeriod(ctx context.Context, tx *sqlx.Tx, dapID int64, p dap.Period) error {
	outros, err := marshalJSON(p.OutrosCampos)
	if err != nil {
		return fmt.Errorf("failed to encode outros_campos: %w", err)
	}
	row := DapPeriodo{
		DapID:            dapID,
		PeriodoNumero:    p.PeriodoNumero,
		TotalAtos:        p.TotalAtos,
		TotalEmolumentos: p.TotalEmolumentos,
		TotalTed:         p.TotalTed,
		TotalIss:         p.TotalIss,
		TotalLiquido:     p.TotalLiquido,
		OutrosCampos:     outros,
	}

	query := `INSERT INTO dap_periodos (
		dap_id,
		periodo_numero,
		total_atos,
		total_emolumentos,
		total_ted,
		total_iss,
		total_liquido,
		outros_campos
	) VALUES (
		:dap_id,
		:periodo_numero,
		:total_atos,
		:total_emolumentos,
		:total_ted,
		:total_iss,
		:total_liquido,
		:outros_campos
	) RETURNING id`

	rows, err := sqlx.NamedQueryContext(ctx, tx, query, row)
	if err != nil {
		return fmt.Errorf("failed to insert periodo %d: %w", p.PeriodoNumero, err)
	}
	if rows.Next() {
		err = rows.Scan(&row.ID)
	}
	rows.Close()
	if err != nil {
		return fmt.Errorf("failed to read periodo id: %w", err)
	}

	for _, a := range p.Atos {
		if err := insertAct(ctx, tx, row.ID, a); err != nil {
			return fmt.Errorf("failed to insert ato %s of periodo %d: %w", a.CodigoAto, p.PeriodoNumero, err)
		}
	}
	return nil
}

func insertAct(ctx context.Context, tx *sqlx.Tx, periodoID int64, a dap.Act) error {
	detalhes, err := marshalJSON(a.Detalhes)
	if err != nil {
		return err
	}
	row := DapAto{
		PeriodoID:    periodoID,
		CodigoAto:    a.CodigoAto,
		Tributacao:   a.Tributacao,
		Descricao:    a.Descricao,
		Quantidade:   a.Quantidade,
		Emolumentos:  a.Emolumentos,
		TaxaIss:      a.TaxaIss,
		TaxaCns:      a.TaxaCns,
		ValorLiquido: a.ValorLiquido,
		TfjValor:     a.TfjValor,
		Detalhes:     detalhes,
	}

	query := `INSERT INTO dap_atos (
		periodo_id,
		codigo_ato,
		tributacao,
		descricao,
		quantidade,
		emolumentos,
		taxa_iss,
		taxa_cns,
		valor_liquido,
		tfj_valor,
		detalhes
	) VALUES (
		:periodo_id,
		:codigo_ato,
		:tributacao,
		:descricao,
		:quantidade,
		:emolumentos,
		:taxa_iss,
		:taxa_cns,
		:valor_liquido,
		:tfj_valor,
		:detalhes
	)`

	_, err = sqlx.NamedExecContext(ctx, tx, query, row)
	return err
}

// GetByID returns a non-removed header with its periods and acts.
func (s *DapStore) GetByID(ctx context.Context, id int64) (*dap.Record, error) {
	var row Dap
	err := s.db.GetContext(ctx, &row, `SELECT `+dapColumns+` FROM daps WHERE id = $1 AND status <> 'REMOVIDA'`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dap %d: %w", id, err)
	}

	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	if rec.Periodos, err = s.periods(ctx, id); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *DapStore) periods(ctx context.Context, dapID int64) ([]dap.Period, error) {
	var periodRows []DapPeriodo
	err := s.db.SelectContext(ctx, &periodRows, `
		SELECT id, dap_id, periodo_numero, total_atos, total_emolumentos, total_ted, total_iss,
			total_liquido, outros_campos
		FROM dap_periodos
		WHERE dap_id = $1
		ORDER BY periodo_numero`, dapID)
	if err != nil {
		return nil, fmt.Errorf("failed to query periodos of dap %d: %w", dapID, err)
	}
	if len(periodRows) == 0 {
		return []dap.Period{}, nil
	}

	ids := make([]int64, len(periodRows))
	for i, p := range periodRows {
		ids[i] = p.ID
	}
	var actRows []DapAto
	err = s.db.SelectContext(ctx, &actRows, `
		SELECT id, periodo_id, codigo_ato, tributacao, descricao, quantidade, emolumentos,
			taxa_iss, taxa_cns, valor_liquido, tfj_valor, detalhes
		FROM dap_atos
		WHERE periodo_id = ANY($1)
		ORDER BY periodo_id, id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query atos of dap %d: %w", dapID, err)
	}

	byPeriod := make(map[int64][]dap.Act, len(periodRows))
	for i := range actRows {
		a, err := actRows[i].act()
		if err != nil {
			return nil, err
		}
		byPeriod[actRows[i].PeriodoID] = append(byPeriod[actRows[i].PeriodoID], a)
	}

	out := make([]dap.Period, 0, len(periodRows))
	for i := range periodRows {
		p, err := periodRows[i].period()
		if err != nil {
			return nil, err
		}
		if acts := byPeriod[periodRows[i].ID]; acts != nil {
			p.Atos = acts
		}
		out = append(out, p)
	}
	return out, nil
}

// List returns one page of headers, newest competency first, and the total
// number of headers matching the filter.
func (s *DapStore) List(ctx context.Context, f DapFilter) ([]dap.Record, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Ano != 0 {
		add("ano = $%d", f.Ano)
	}
	if f.Mes != 0 {
		add("mes = $%d", f.Mes)
	}
	if f.Tipo != "" {
		add("tipo = $%d", string(f.Tipo))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	} else {
		conds = append(conds, "status <> 'REMOVIDA'")
	}
	where := "WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM daps `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count daps: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM daps %s ORDER BY ano DESC, mes DESC, id DESC LIMIT $%d OFFSET $%d`,
		dapColumns, where, len(args)+1, len(args)+2)
	var rows []Dap
	if err := s.db.SelectContext(ctx, &rows, query, append(args, f.Limit, f.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to list daps: %w", err)
	}

	out := make([]dap.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rec)
	}
	return out, total, nil
}

// UpdateHeader locks a non-removed header, lets apply change it and writes the
// header fields back. Periods and acts are never touched. Reactivating a
// RETIFICADA original releases its retificadora.
func (s *DapStore) UpdateHeader(ctx context.Context, id int64, apply func(*dap.Header) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := lockDap(ctx, tx, id)
	if err != nil {
		return err
	}
	h, err := current.header()
	if err != nil {
		return err
	}
	if err := apply(&h); err != nil {
		return err
	}

	if current.Status == string(dap.StatusRetificada) && h.Status == dap.StatusAtiva && current.RetificadaPorID != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE daps SET retificadora_de_id = NULL, updated_at = now() WHERE id = $1`,
			*current.RetificadaPorID); err != nil {
			return fmt.Errorf("failed to release retificadora %d: %w", *current.RetificadaPorID, err)
		}
		h.RetificadaPorID = nil
	}

	row, err := newDapRow(&h)
	if err != nil {
		return err
	}
	row.ID = id

	query := `UPDATE daps SET
		numero = :numero,
		data_emissao = :data_emissao,
		status = :status,
		retificada_por_id = :retificada_por_id,
		valores = :valores,
		metadata = :metadata,
		updated_at = now()
	WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, tx, query, row); err != nil {
		return fmt.Errorf("failed to update dap %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dap %d: %w", id, err)
	}
	return nil
}

// SoftDelete marks a header REMOVIDA and repairs the retification link on the
// other side. Deleting a RETIFICADORA reactivates its ORIGINAL; the partial
// unique index allows only one active RETIFICADORA per competency.
func (s *DapStore) SoftDelete(ctx context.Context, id int64) error {
	const component = "DapStore"

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := lockDap(ctx, tx, id)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE daps SET status = 'REMOVIDA', retificada_por_id = NULL, retificadora_de_id = NULL, updated_at = now()
		WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to remove dap %d: %w", id, err)
	}

	switch {
	case current.Tipo == string(dap.TipoRetificadora) && current.RetificadoraDeID != nil:
		originalID := *current.RetificadoraDeID
		if _, err := tx.ExecContext(ctx, `
			UPDATE daps SET status = 'ATIVA', retificada_por_id = NULL, updated_at = now()
			WHERE id = $1 AND status <> 'REMOVIDA'`, originalID); err != nil {
			return fmt.Errorf("failed to reactivate original %d: %w", originalID, err)
		}

	case current.Tipo == string(dap.TipoOriginal) && current.RetificadaPorID != nil:
		if _, err := tx.ExecContext(ctx, `
			UPDATE daps SET retificadora_de_id = NULL, updated_at = now()
			WHERE id = $1`, *current.RetificadaPorID); err != nil {
			return fmt.Errorf("failed to unlink retificadora %d: %w", *current.RetificadaPorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removal of dap %d: %w", id, err)
	}
	s.logger.Info(component, "DAP removed: id=%d tipo=%s", id, current.Tipo)
	return nil
}

func lockDap(ctx context.Context, tx *sqlx.Tx, id int64) (*Dap, error) {
	var row Dap
	err := tx.GetContext(ctx, &row, `SELECT `+dapColumns+` FROM daps WHERE id = $1 AND status <> 'REMOVIDA' FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock dap %d: %w", id, err)
	}
	return &row, nil
}
