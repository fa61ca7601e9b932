package store

import (
	"errors"
	"fmt"

	"github.com/farxc/dap-ledger/internal/dap"
	"github.com/lib/pq"
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrDuplicateCompetency = errors.New("an active DAP already exists for this competency and type")
)

const (
	uniqueViolation       = "23505"
	activeCompetencyIndex = "ux_daps_competencia_ativa"
)

// ConflictError is returned when a non-removed filing already holds (ano, mes, tipo).
type ConflictError struct {
	ExistingID int64
	Ano        int
	Mes        int
	Tipo       dap.Tipo
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("DAP %s for %02d/%d already exists (id %d)", e.Tipo, e.Mes, e.Ano, e.ExistingID)
}

func (e *ConflictError) Is(target error) bool { return target == ErrDuplicateCompetency }

func isActiveCompetencyViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == uniqueViolation && (pqErr.Constraint == "" || pqErr.Constraint == activeCompetencyIndex)
}
