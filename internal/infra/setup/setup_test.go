package setup_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/infra/setup"
)

func TestInitDB_SQLiteAndMigrate(t *testing.T) {
	db, err := setup.InitDB(setup.DBOptions{Driver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, setup.MigrateDB(db))

	assert.True(t, db.Migrator().HasTable(&domain.Project{}))
	assert.True(t, db.Migrator().HasTable(&domain.DocumentVersion{}))
}

func TestInitDB_Errors(t *testing.T) {
	_, err := setup.InitDB(setup.DBOptions{Driver: "oracle"})
	assert.Error(t, err)

	_, err = setup.InitDB(setup.DBOptions{Driver: "mysql"})
	assert.Error(t, err)

	assert.Error(t, setup.MigrateDB(nil))
}

func TestDSN(t *testing.T) {
	dsn := setup.DBOptions{User: "u", Password: "p", Name: "editor"}.DSN()
	assert.Equal(t, "u:p@tcp(127.0.0.1:3306)/editor?charset=utf8mb4&parseTime=True&loc=Local", dsn)
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	client, err := setup.InitRedis(addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	_, err = setup.InitRedis(addr, "", 0)
	assert.Error(t, err)
}
