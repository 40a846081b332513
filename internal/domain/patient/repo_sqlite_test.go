package patient

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shr/shr/internal/platform/db"
	"github.com/shr/shr/internal/platform/fhir"
	"github.com/shr/shr/migrations"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "shr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = db.NewSQLiteMigrator(conn, migrations.SQLite()).Up(ctx)
	require.NoError(t, err)
	return conn
}

func TestSQLiteRepo_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepo(openTestDB(t))

	_, err := repo.Find(ctx, "98001046534")
	assert.ErrorIs(t, err, ErrNotFound)

	p := &Patient{HealthID: "98001046534", Confidentiality: fhir.VeryRestricted, Address: AddressFromCatchment("302618")}
	require.NoError(t, repo.Save(ctx, p))

	got, err := repo.Find(ctx, "98001046534")
	require.NoError(t, err)
	assert.Equal(t, fhir.VeryRestricted, got.Confidentiality)
	assert.Equal(t, "302618", got.Catchment())
	assert.True(t, got.CreatedAt.Equal(p.CreatedAt))

	p.Confidentiality = fhir.Normal
	require.NoError(t, repo.Save(ctx, p))
	got, err = repo.Find(ctx, "98001046534")
	require.NoError(t, err)
	assert.Equal(t, fhir.Normal, got.Confidentiality)
}
