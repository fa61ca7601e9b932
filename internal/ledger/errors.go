package ledger

import (
	"errors"
	"fmt"

	"github.com/farxc/dap-ledger/internal/dap"
	"github.com/farxc/dap-ledger/internal/store"
)

// PersistenceError is a storage failure that is neither a conflict nor a
// missing record. The transaction it happened in was rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// classify keeps the domain error kinds callers branch on and wraps the rest.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var conflict *store.ConflictError
	switch {
	case errors.As(err, &conflict),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, dap.ErrValidation),
		errors.Is(err, dap.ErrParse):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
