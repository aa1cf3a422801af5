package tableset

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse"
)

// H3IndexColumn is the mandatory spatial-key column present in every table of a tableset.
const H3IndexColumn = "h3index"

// List discovers the tablesets of the connection's current database. Columns that are missing
// from some tables of a set, or typed differently between them, are excluded with a warning.
func List(ctx context.Context, log *slog.Logger, conn clickhouse.Connection) (map[string]*TableSet, error) {
	names, err := tablesWithH3Index(ctx, conn)
	if err != nil {
		return nil, err
	}
	sets := FindTableSets(names)
	for _, basename := range slices.Sorted(maps.Keys(sets)) {
		ts := sets[basename]
		if err := loadColumns(ctx, log, conn, ts); err != nil {
			return nil, err
		}
	}
	log.Debug("listed tablesets", "count", len(sets))
	return sets, nil
}

// Get returns the tableset with the given basename.
func Get(ctx context.Context, log *slog.Logger, conn clickhouse.Connection, basename string) (*TableSet, bool, error) {
	sets, err := List(ctx, log, conn)
	if err != nil {
		return nil, false, err
	}
	ts, ok := sets[basename]
	return ts, ok, nil
}

func tablesWithH3Index(ctx context.Context, conn clickhouse.Connection) ([]string, error) {
	rows, err := conn.Query(ctx, `
		SELECT DISTINCT table
		FROM system.columns
		WHERE database = currentDatabase() AND name = ?
		ORDER BY table
	`, H3IndexColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return names, nil
}

func loadColumns(ctx context.Context, log *slog.Logger, conn clickhouse.Connection, ts *TableSet) error {
	tables := ts.Tables()
	quoted := make([]string, len(tables))
	for i, t := range tables {
		quoted[i] = QuoteString(t.Name())
	}

	rows, err := conn.Query(ctx, fmt.Sprintf(`
		SELECT name, groupUniqArray(type) AS types, count() AS tables
		FROM system.columns
		WHERE database = currentDatabase() AND table IN (%s)
		GROUP BY name
		ORDER BY name
	`, strings.Join(quoted, ", ")))
	if err != nil {
		return fmt.Errorf("failed to query columns of tableset %s: %w", ts.Basename, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name  string
			types []string
			count uint64
		)
		if err := rows.Scan(&name, &types, &count); err != nil {
			return fmt.Errorf("failed to scan column of tableset %s: %w", ts.Basename, err)
		}
		switch {
		case int(count) != len(tables):
			log.Warn("column is not present in all tables of the tableset, excluding it", "tableset", ts.Basename, "column", name, "present", count, "tables", len(tables))
		case len(types) != 1:
			log.Warn("column has different types across the tableset, excluding it", "tableset", ts.Basename, "column", name, "types", types)
		default:
			ts.Columns[name] = types[0]
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating columns of tableset %s: %w", ts.Basename, err)
	}
	return nil
}

// QuoteString renders s as a ClickHouse string literal.
func QuoteString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}
