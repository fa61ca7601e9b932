package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/farxc/dap-ledger/internal/dap"
	"github.com/farxc/dap-ledger/internal/logger"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dapColumnNames = []string{
	"id", "ano", "mes", "numero", "tipo", "data_emissao", "status", "retificada_por_id",
	"retificadora_de_id", "valores", "metadata", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*DapStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	l := logger.New(logger.LevelError)
	l.SetOutput(io.Discard)
	return &DapStore{db: sqlx.NewDb(db, "postgres"), logger: l}, mock
}

func f64(v float64) *float64 { return &v }

func samplePeriods() []dap.Period {
	total := 12
	return []dap.Period{{
		PeriodoNumero: 1,
		TotalAtos:     &total,
		Atos:          []dap.Act{{CodigoAto: "0001", Tributacao: "5", Quantidade: 12, TfjValor: f64(123.45)}},
	}}
}

func dapRow(id int64, tipo, status string, retificadaPor, retificadoraDe any) []driver.Value {
	now := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)
	return []driver.Value{
		id, 2025, 10, "", tipo, nil, status, retificadaPor, retificadoraDe,
		[]byte(`{"emolumentoApurado":10.5}`), []byte(`{"origem":"upload"}`), now, now,
	}
}

var precheck = `(?s)tipo = \$3 AND status <> 'REMOVIDA'.*FOR UPDATE`

func TestCreateOriginal(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(precheck).WithArgs(2025, 10, "ORIGINAL").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO daps").WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, now, now))
	mock.ExpectQuery("INSERT INTO dap_periodos").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectExec("INSERT INTO dap_atos").WillReturnResult(sqlmock.NewResult(100, 1))
	mock.ExpectCommit()

	h := &dap.Header{Ano: 2025, Mes: 10, Tipo: dap.TipoOriginal, Status: dap.StatusAtiva}
	rec, err := s.CreateWithRetification(context.Background(), h, samplePeriods())
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, dap.StatusAtiva, rec.Status)
	assert.Nil(t, rec.RetificadoraDeID)
	require.Len(t, rec.Periodos, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicateCompetencyIsConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(precheck).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectRollback()

	h := &dap.Header{Ano: 2025, Mes: 10, Tipo: dap.TipoOriginal, Status: dap.StatusAtiva}
	_, err := s.CreateWithRetification(context.Background(), h, samplePeriods())

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(7), conflict.ExistingID)
	assert.ErrorIs(t, err, ErrDuplicateCompetency)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLosingInsertRaceIsConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(precheck).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO daps").WillReturnError(&pq.Error{Code: "23505", Constraint: "ux_daps_competencia_ativa"})
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT id FROM daps").WithArgs(2025, 10, "ORIGINAL").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	h := &dap.Header{Ano: 2025, Mes: 10, Tipo: dap.TipoOriginal, Status: dap.StatusAtiva}
	_, err := s.CreateWithRetification(context.Background(), h, samplePeriods())

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(9), conflict.ExistingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRetificadoraLinksOriginal(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(precheck).WithArgs(2025, 10, "RETIFICADORA").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO daps").WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(2, now, now))
	mock.ExpectQuery("INSERT INTO dap_periodos").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(20))
	mock.ExpectExec("INSERT INTO dap_atos").WillReturnResult(sqlmock.NewResult(200, 1))
	mock.ExpectQuery("tipo = 'ORIGINAL'").WithArgs(2025, 10).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("UPDATE daps SET status = 'RETIFICADA'").WithArgs(2, 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE daps SET retificadora_de_id = ").WithArgs(1, 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	h := &dap.Header{Ano: 2025, Mes: 10, Tipo: dap.TipoRetificadora, Status: dap.StatusRetificadora}
	rec, err := s.CreateWithRetification(context.Background(), h, samplePeriods())
	require.NoError(t, err)
	require.NotNil(t, rec.RetificadoraDeID)
	assert.Equal(t, int64(1), *rec.RetificadoraDeID)
	assert.Equal(t, dap.StatusRetificadora, rec.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateStandaloneRetificadora(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(precheck).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO daps").WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(3, now, now))
	mock.ExpectQuery("INSERT INTO dap_periodos").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))
	mock.ExpectExec("INSERT INTO dap_atos").WillReturnResult(sqlmock.NewResult(300, 1))
	mock.ExpectQuery("tipo = 'ORIGINAL'").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	h := &dap.Header{Ano: 2025, Mes: 10, Tipo: dap.TipoRetificadora, Status: dap.StatusRetificadora}
	rec, err := s.CreateWithRetification(context.Background(), h, samplePeriods())
	require.NoError(t, err)
	assert.Nil(t, rec.RetificadoraDeID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRollsBackWhenActInsertFails(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(precheck).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO daps").WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(4, now, now))
	mock.ExpectQuery("INSERT INTO dap_periodos").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(40))
	mock.ExpectExec("INSERT INTO dap_atos").WillReturnError(errors.New("check constraint violated"))
	mock.ExpectRollback()

	h := &dap.Header{Ano: 2025, Mes: 10, Tipo: dap.TipoOriginal, Status: dap.StatusAtiva}
	_, err := s.CreateWithRetification(context.Background(), h, samplePeriods())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateCompetency)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDHydratesPeriodsAndActs(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM daps WHERE id = ").WithArgs(1).
		WillReturnRows(sqlmock.NewRows(dapColumnNames).AddRow(dapRow(1, "ORIGINAL", "ATIVA", nil, nil)...))
	mock.ExpectQuery("FROM dap_periodos").WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "dap_id", "periodo_numero", "total_atos", "total_emolumentos", "total_ted", "total_iss", "total_liquido", "outros_campos"}).
			AddRow(10, 1, 1, 2, nil, nil, nil, nil, nil).
			AddRow(11, 1, 2, 1, nil, nil, nil, nil, []byte(`{"observacao":"sem selos"}`)))
	mock.ExpectQuery("FROM dap_atos").
		WillReturnRows(sqlmock.NewRows([]string{"id", "periodo_id", "codigo_ato", "tributacao", "descricao", "quantidade", "emolumentos", "taxa_iss", "taxa_cns", "valor_liquido", "tfj_valor", "detalhes"}).
			AddRow(100, 10, "0001", "5", "", 2, nil, nil, nil, nil, "12.50", nil).
			AddRow(101, 11, "0002", "1", "", 1, nil, nil, nil, nil, "3.00", []byte(`{"confianca":"baixa"}`)))

	rec, err := s.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "upload", rec.Metadata.Origem)
	require.NotNil(t, rec.Valores.EmolumentoApurado)
	assert.InDelta(t, 10.5, *rec.Valores.EmolumentoApurado, 0.001)
	require.Len(t, rec.Periodos, 2)
	assert.Equal(t, "0001", rec.Periodos[0].Atos[0].CodigoAto)
	assert.InDelta(t, 12.5, *rec.Periodos[0].Atos[0].TfjValor, 0.001)
	assert.Equal(t, "sem selos", rec.Periodos[1].OutrosCampos["observacao"])
	assert.Equal(t, "baixa", rec.Periodos[1].Atos[0].Detalhes["confianca"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM daps WHERE id = ").WillReturnRows(sqlmock.NewRows(dapColumnNames))

	_, err := s.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAppliesFilterAndPaging(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM daps WHERE ano = $1 AND tipo = $2 AND status <> 'REMOVIDA'`)).
		WithArgs(2025, "ORIGINAL").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(41))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY ano DESC, mes DESC, id DESC LIMIT $3 OFFSET $4`)).
		WithArgs(2025, "ORIGINAL", 20, 40).
		WillReturnRows(sqlmock.NewRows(dapColumnNames).AddRow(dapRow(5, "ORIGINAL", "ATIVA", nil, nil)...))

	items, total, err := s.List(context.Background(), DapFilter{Ano: 2025, Tipo: dap.TipoOriginal, Limit: 20, Offset: 40})
	require.NoError(t, err)
	assert.Equal(t, 41, total)
	require.Len(t, items, 1)
	assert.Equal(t, int64(5), items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateHeaderWritesOnlyHeader(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(5).
		WillReturnRows(sqlmock.NewRows(dapColumnNames).AddRow(dapRow(5, "ORIGINAL", "ATIVA", nil, nil)...))
	mock.ExpectExec("UPDATE daps SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpdateHeader(context.Background(), 5, func(h *dap.Header) error {
		h.Numero = "2025/77"
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateHeaderReactivationReleasesRetificadora(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(dapColumnNames).AddRow(dapRow(1, "ORIGINAL", "RETIFICADA", int64(2), nil)...))
	mock.ExpectExec("UPDATE daps SET retificadora_de_id = NULL").WithArgs(2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE daps SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpdateHeader(context.Background(), 1, func(h *dap.Header) error {
		h.Status = dap.StatusAtiva
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateHeaderApplyErrorRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(dapColumnNames).AddRow(dapRow(1, "ORIGINAL", "ATIVA", nil, nil)...))
	mock.ExpectRollback()

	boom := errors.New("rejected")
	err := s.UpdateHeader(context.Background(), 1, func(*dap.Header) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteActiveWithoutPointersTouchesNothingElse(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(5).
		WillReturnRows(sqlmock.NewRows(dapColumnNames).AddRow(dapRow(5, "ORIGINAL", "ATIVA", nil, nil)...))
	mock.ExpectExec("UPDATE daps SET status = 'REMOVIDA'").WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SoftDelete(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteRetificadoraReactivatesOriginal(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(2).
		WillReturnRows(sqlmock.NewRows(dapColumnNames).AddRow(dapRow(2, "RETIFICADORA", "RETIFICADORA", nil, int64(1))...))
	mock.ExpectExec("UPDATE daps SET status = 'REMOVIDA'").WithArgs(2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE daps SET status = 'ATIVA'").WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SoftDelete(context.Background(), 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteOriginalUnlinksRetificadora(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(1).
		WillReturnRows(sqlmock.NewRows(dapColumnNames).AddRow(dapRow(1, "ORIGINAL", "RETIFICADA", int64(2), nil)...))
	mock.ExpectExec("UPDATE daps SET status = 'REMOVIDA'").WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE daps SET retificadora_de_id = NULL").WithArgs(2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SoftDelete(context.Background(), 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteUnknownOrRemoved(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows(dapColumnNames))
	mock.ExpectRollback()

	assert.ErrorIs(t, s.SoftDelete(context.Background(), 404), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
