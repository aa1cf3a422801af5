package cellstoretesting

import (
	"testing"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse"
	clickhousetesting "github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse/testing"
	"github.com/stretchr/testify/require"
)

// ClientInfo holds a test client and its database name.
type ClientInfo struct {
	Client   clickhouse.Client
	Database string
	Config   clickhouse.Config
}

func NewClient(t *testing.T, db *clickhousetesting.DB) clickhouse.Client {
	return NewClientWithInfo(t, db).Client
}

// NewClientWithInfo creates a client on a fresh database with all migrations applied.
func NewClientWithInfo(t *testing.T, db *clickhousetesting.DB) *ClientInfo {
	info, err := clickhousetesting.NewTestClientWithInfo(t, db)
	require.NoError(t, err)

	cfg := db.Config(info.Database)
	err = clickhouse.RunMigrations(t.Context(), NewLogger(), cfg)
	require.NoError(t, err)

	return &ClientInfo{
		Client:   info.Client,
		Database: info.Database,
		Config:   cfg,
	}
}
