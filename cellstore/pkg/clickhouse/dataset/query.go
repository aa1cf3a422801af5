package dataset

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/frame"
)

// ColumnMetadata represents metadata about a result column.
type ColumnMetadata struct {
	Name             string
	DatabaseTypeName string
}

// ScanFrame scans all rows into a frame with one column per result column.
func ScanFrame(rows driver.Rows) (*frame.Frame, []ColumnMetadata, error) {
	columns := rows.Columns()
	columnTypes := rows.ColumnTypes()

	meta := make([]ColumnMetadata, len(columnTypes))
	for i, colType := range columnTypes {
		meta[i] = ColumnMetadata{Name: colType.Name(), DatabaseTypeName: colType.DatabaseTypeName()}
	}

	valuePtrs := InitializeScanTargets(columnTypes)
	values := make([][]any, len(columns))
	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i := range valuePtrs {
			values[i] = append(values[i], DereferencePointer(valuePtrs[i]))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating rows: %w", err)
	}

	for i := range values {
		if values[i] == nil {
			values[i] = []any{}
		}
	}
	f, err := frame.FromColumns(columns, values)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build frame: %w", err)
	}
	return f, meta, nil
}

// QueryFrame executes a query and returns its result as a frame.
//
// Example:
//
//	f, err := dataset.QueryFrame(ctx, conn, "SELECT h3index, value FROM water_05 WHERE value > ?", 3)
func QueryFrame(ctx context.Context, conn clickhouse.Connection, query string, args ...any) (*frame.Frame, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	f, _, err := ScanFrame(rows)
	return f, err
}

// QueryUint64s executes a query returning a single UInt64 column.
func QueryUint64s(ctx context.Context, conn clickhouse.Connection, query string, args ...any) ([]uint64, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var out []uint64
	for rows.Next() {
		var v uint64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
