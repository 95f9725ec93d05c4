package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/botfactory/pkg/adapters/sqlite"
	"github.com/aretw0/botfactory/pkg/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_FileAndTranslations(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "data", "bot.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, sqlite.EnsureSchema(ctx, db))
	require.NoError(t, sqlite.PutTranslation(ctx, db, "salon", "pt", "hi", "Oi"))
	require.NoError(t, sqlite.PutTranslation(ctx, db, "salon", "pt", "hi", "Olá"))

	src := i18n.NewSQLSource(db)
	text, ok, err := src.Lookup(ctx, "salon", "pt", "hi")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Olá", text)

	_, ok, err = src.Lookup(ctx, "salon", "en", "hi")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `CREATE TABLE t (a INTEGER)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO t VALUES (1)`)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM t`).Scan(&n))
	assert.Equal(t, 1, n)
}
