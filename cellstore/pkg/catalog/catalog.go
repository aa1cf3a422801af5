// Package catalog creates and drops tablesets and keeps the schemas they were created from in the
// cellstore_schemas registry table.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/schema"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/tableset"
)

const registryTable = "cellstore_schemas"

var ErrSchemaNotFound = errors.New("schema not found")

type Config struct {
	Logger *slog.Logger
	Client clickhouse.Client
	Clock  clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("clickhouse client is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Catalog struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Catalog{log: cfg.Logger, cfg: cfg}, nil
}

// CreateTableSet creates all tables of s and registers the schema. Existing tables are kept.
func (c *Catalog) CreateTableSet(ctx context.Context, s *schema.CompactedTableSchema) error {
	statements, err := s.BuildCreateStatements("")
	if err != nil {
		return fmt.Errorf("failed to build create statements: %w", err)
	}
	conn, err := c.cfg.Client.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	for _, stmt := range statements {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table of %s: %w", s.Name(), err)
		}
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	now := c.cfg.Clock.Now().UTC()
	err = conn.Exec(clickhouse.ContextWithSyncInsert(ctx),
		fmt.Sprintf("INSERT INTO %s (name, schema_json, max_resolution, compaction_enabled, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)", registryTable),
		s.Name(), string(data), s.MaxResolution(), s.UseCompaction(), now, now)
	if err != nil {
		return fmt.Errorf("failed to register schema %s: %w", s.Name(), err)
	}

	c.log.Info("created tableset", "tableset", s.Name(), "tables", len(statements))
	return nil
}

// GetSchema returns the registered schema of a tableset.
func (c *Catalog) GetSchema(ctx context.Context, name string) (*schema.CompactedTableSchema, error) {
	conn, err := c.cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, fmt.Sprintf("SELECT schema_json FROM %s FINAL WHERE name = ?", registryTable), name)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema %s: %w", name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error reading schema %s: %w", name, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}
	var data string
	if err := rows.Scan(&data); err != nil {
		return nil, fmt.Errorf("failed to scan schema %s: %w", name, err)
	}
	return schema.FromJSON([]byte(data))
}

// ListSchemas returns the names of all registered schemas in ascending order.
func (c *Catalog) ListSchemas(ctx context.Context) ([]string, error) {
	conn, err := c.cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, fmt.Sprintf("SELECT DISTINCT name FROM %s FINAL ORDER BY name", registryTable))
	if err != nil {
		return nil, fmt.Errorf("failed to query schemas: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan schema name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// TableSets lists the tablesets present in the database.
func (c *Catalog) TableSets(ctx context.Context) (map[string]*tableset.TableSet, error) {
	conn, err := c.cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()
	return tableset.List(ctx, c.log, conn)
}

// DropTableSet drops every table of the tableset found in the database and removes its schema
// from the registry. It returns the dropped table names.
func (c *Catalog) DropTableSet(ctx context.Context, name string) ([]string, error) {
	conn, err := c.cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ts, ok, err := tableset.Get(ctx, c.log, conn, name)
	if err != nil {
		return nil, err
	}
	var dropped []string
	if ok {
		for _, t := range ts.Tables() {
			if err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", t.Name())); err != nil {
				return dropped, fmt.Errorf("failed to drop table %s: %w", t.Name(), err)
			}
			dropped = append(dropped, t.Name())
		}
	}

	if err := conn.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE name = ?", registryTable), name); err != nil {
		return dropped, fmt.Errorf("failed to unregister schema %s: %w", name, err)
	}

	c.log.Info("dropped tableset", "tableset", name, "tables", len(dropped))
	return dropped, nil
}

// DropTableSetStatements returns the statements DropTableSet would execute, for dry runs.
func (c *Catalog) DropTableSetStatements(ctx context.Context, name string) ([]string, error) {
	ts, err := c.tableSet(ctx, name)
	if err != nil {
		return nil, err
	}
	var out []string
	if ts != nil {
		for _, t := range ts.Tables() {
			out = append(out, fmt.Sprintf("DROP TABLE IF EXISTS %s", t.Name()))
		}
	}
	return out, nil
}

func (c *Catalog) tableSet(ctx context.Context, name string) (*tableset.TableSet, error) {
	sets, err := c.TableSets(ctx)
	if err != nil {
		return nil, err
	}
	return sets[name], nil
}
