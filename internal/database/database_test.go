package database

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/config"
)

func TestOpenSQLiteMigrates(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}

	db, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	defer Close(db)

	for _, table := range []string{
		"activity_records",
		"offset_transactions",
		"factor_overrides",
		"carbon_targets",
		"net_emission_snapshots",
	} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql"}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}
