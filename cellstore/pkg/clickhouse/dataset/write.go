package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/frame"
)

// DefaultChunkSize is the number of rows sent per batch when no chunk size is given.
const DefaultChunkSize = 1_000_000

// WriteFrame inserts all rows of f into table, sending one batch per chunkSize rows. Columns are
// matched by name, so the table may define additional columns with defaults.
func WriteFrame(ctx context.Context, log *slog.Logger, conn clickhouse.Connection, table string, f *frame.Frame, chunkSize int) error {
	if f.NumRows() == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	for start := 0; start < f.NumRows(); start += chunkSize {
		end := min(start+chunkSize, f.NumRows())
		if err := writeChunk(ctx, log, conn, table, f, start, end); err != nil {
			return err
		}
	}
	return nil
}

func writeChunk(ctx context.Context, log *slog.Logger, conn clickhouse.Connection, table string, f *frame.Frame, start, end int) error {
	names := f.ColumnNames()
	columns := make([][]any, len(names))
	for i, name := range names {
		columns[i], _ = f.Column(name)
	}

	log.Debug("writing batch", "table", table, "count", end-start)

	batch, err := conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(names, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare batch for %s: %w", table, err)
	}
	defer batch.Close() // Always release the connection back to the pool

	row := make([]any, len(names))
	for i := start; i < end; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during batch insert: %w", ctx.Err())
		default:
		}
		for j := range columns {
			row[j] = columns[j][i]
		}
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("failed to append row %d to %s: %w", i, table, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch to %s: %w", table, err)
	}

	log.Debug("wrote batch", "table", table, "count", end-start)
	return nil
}
