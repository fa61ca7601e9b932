package dap

type Status string

const (
	StatusAtiva        Status = "ATIVA"
	StatusRetificada   Status = "RETIFICADA"
	StatusRetificadora Status = "RETIFICADORA"
	StatusRemovida     Status = "REMOVIDA"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAtiva, StatusRetificada, StatusRetificadora, StatusRemovida:
		return true
	}
	return false
}

// allowedTransitions lists the status moves reachable through an update.
// REMOVIDA is terminal and only reached through soft delete.
var allowedTransitions = map[Status][]Status{
	StatusAtiva:        {StatusRetificada},
	StatusRetificada:   {StatusAtiva},
	StatusRetificadora: {StatusAtiva},
}

func (s Status) CanTransition(to Status) bool {
	if s == to {
		return true
	}
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// InitialStatus is the status a new filing of the given type starts with.
func InitialStatus(t Tipo) Status {
	if t == TipoRetificadora {
		return StatusRetificadora
	}
	return StatusAtiva
}

// NextStatus resolves the status an update leaves behind. A requested ATIVA
// that the caller did not explicitly target never reactivates a record that is
// not ATIVA already. Disallowed transitions return a ValidationError.
func NextStatus(current, requested Status, explicit bool) (Status, error) {
	if requested == "" || requested == current {
		return current, nil
	}
	if !requested.Valid() {
		return current, &ValidationError{Field: "status", Message: "status inválido: " + string(requested)}
	}
	if requested == StatusAtiva && current != StatusAtiva && !explicit {
		return current, nil
	}
	if requested == StatusRemovida {
		return current, &ValidationError{Field: "status", Message: "use a remoção para marcar a DAP como REMOVIDA"}
	}
	if !current.CanTransition(requested) {
		return current, &ValidationError{Field: "status", Message: "transição de status não permitida: " + string(current) + " -> " + string(requested)}
	}
	return requested, nil
}
