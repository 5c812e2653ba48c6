package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/justgu1/cepapi/migrations"
)

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{
		"00001_users.sql",
		"00002_ceps.sql",
		"00003_cep_user_pivot.sql",
		"00004_auth_limiter.sql",
	}, files)

	for _, f := range files {
		b, err := fs.ReadFile(migrations.FS, f)
		require.NoError(t, err)
		require.Contains(t, string(b), "-- +goose Up", f)
		require.Contains(t, string(b), "-- +goose Down", f)
	}
}

func TestPivotConstraints(t *testing.T) {
	t.Parallel()

	b, err := fs.ReadFile(migrations.FS, "00003_cep_user_pivot.sql")
	require.NoError(t, err)
	sql := string(b)
	require.True(t, strings.Contains(sql, "UNIQUE (user_id, cep_id)"))
	require.Equal(t, 2, strings.Count(sql, "ON DELETE CASCADE"))
}
