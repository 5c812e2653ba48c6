package postgres

import (
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func sp(s string) *string { return &s }

var recordCols = []string{
	"id", "cep", "logradouro", "complemento", "unidade", "bairro", "localidade", "uf", "estado",
	"regiao", "ibge", "gia", "ddd", "siafi", "created_at", "updated_at",
}

// recordRow returns a row for recordCols with only street set.
func recordRow(id int64, code string, street *string, ts time.Time) []any {
	var none *string
	return []any{id, code, street, none, none, none, none, none, none, none, none, none, none, none, ts, ts}
}
