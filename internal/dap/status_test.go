package dap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name      string
		current   Status
		requested Status
		explicit  bool
		want      Status
		wantErr   bool
	}{
		{"no request keeps current", StatusRetificada, "", false, StatusRetificada, false},
		{"implicit reactivation ignored", StatusRetificada, StatusAtiva, false, StatusRetificada, false},
		{"implicit reactivation of retificadora ignored", StatusRetificadora, StatusAtiva, false, StatusRetificadora, false},
		{"explicit reactivation", StatusRetificada, StatusAtiva, true, StatusAtiva, false},
		{"ativa to retificada", StatusAtiva, StatusRetificada, false, StatusRetificada, false},
		{"removida only through delete", StatusAtiva, StatusRemovida, true, StatusAtiva, true},
		{"removida stays removida", StatusRemovida, StatusAtiva, true, StatusRemovida, true},
		{"ativa cannot become retificadora", StatusAtiva, StatusRetificadora, true, StatusAtiva, true},
		{"unknown status", StatusAtiva, Status("ARQUIVADA"), true, StatusAtiva, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextStatus(tt.current, tt.requested, tt.explicit)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, StatusAtiva, InitialStatus(TipoOriginal))
	assert.Equal(t, StatusRetificadora, InitialStatus(TipoRetificadora))
}

func TestParseTipo(t *testing.T) {
	for _, in := range []string{"", "original", "Normal"} {
		got, err := ParseTipo(in)
		assert.NoError(t, err)
		assert.Equal(t, TipoOriginal, got, in)
	}
	for _, in := range []string{"RETIFICADORA", "retificação", "Retificacao"} {
		got, err := ParseTipo(in)
		assert.NoError(t, err)
		assert.Equal(t, TipoRetificadora, got, in)
	}
	_, err := ParseTipo("complementar")
	assert.ErrorIs(t, err, ErrValidation)
}
