package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/schema"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/tableset"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Catalog is the read side of catalog.Catalog served by the API.
type Catalog interface {
	TableSets(ctx context.Context) (map[string]*tableset.TableSet, error)
	GetSchema(ctx context.Context, name string) (*schema.CompactedTableSchema, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Logger            *slog.Logger
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       VersionInfo
	Catalog           Catalog
	DB                Pinger
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.Catalog == nil {
		return errors.New("catalog is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return nil
}
