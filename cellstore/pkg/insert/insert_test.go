package insert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/require"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse/dataset"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/tableset"
	cellstoretesting "github.com/dlr-eoc/ukis-h3cellstore-sub000/utils/pkg/testing"
)

func newInserter(t *testing.T, client clickhouse.Client) *Inserter {
	t.Helper()
	inserter, err := New(Config{
		Logger:                     cellstoretesting.NewLogger(),
		Client:                     client,
		MaxRowsPerInsertChunk:      2,
		MaxRowsPerAggregationBatch: 2,
	})
	require.NoError(t, err)
	return inserter
}

func countRows(t *testing.T, conn clickhouse.Connection, table string) uint64 {
	t.Helper()
	counts, err := dataset.QueryUint64s(t.Context(), conn, fmt.Sprintf("SELECT count() FROM %s FINAL", table))
	require.NoError(t, err)
	require.Len(t, counts, 1)
	return counts[0]
}

func temporaryTables(t *testing.T, conn clickhouse.Connection) []string {
	t.Helper()
	rows, err := conn.Query(t.Context(), "SELECT name FROM system.tables WHERE database = currentDatabase() AND position(name, '_tmp') > 0")
	require.NoError(t, err)
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}

// failingConn records executed statements and fails every statement containing failOn.
type failingConn struct {
	mu     sync.Mutex
	execs  []string
	failOn string
}

func (c *failingConn) Exec(_ context.Context, query string, _ ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, query)
	if strings.Contains(query, c.failOn) {
		return errors.New("read timeout")
	}
	return nil
}

func (c *failingConn) Query(context.Context, string, ...any) (driver.Rows, error) {
	return nil, errors.New("unexpected query")
}

func (c *failingConn) PrepareBatch(context.Context, string) (driver.Batch, error) {
	return nil, errors.New("unexpected batch")
}

func (c *failingConn) Close() error { return nil }

type connClient struct{ conn clickhouse.Connection }

func (c connClient) Conn(context.Context) (clickhouse.Connection, error) { return c.conn, nil }
func (c connClient) Ping(context.Context) error { return nil }
func (c connClient) Close() error { return nil }

func TestCellstore_Insert_Config(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.EqualError(t, err, "logger is required")

	_, err = New(Config{Logger: cellstoretesting.NewLogger()})
	require.EqualError(t, err, "clickhouse client is required")

	cfg := Config{Logger: cellstoretesting.NewLogger(), Client: connClient{}}
	require.NoError(t, cfg.Validate())
	require.Equal(t, uint64(DefaultMaxRowsPerAggregationBatch), cfg.MaxRowsPerAggregationBatch)
	require.Equal(t, 3, cfg.NumConnections)
	require.Equal(t, uint64(1), numAggregationBatches(DefaultMaxRowsPerAggregationBatch, cfg.MaxRowsPerAggregationBatch))
	require.Equal(t, uint64(3), numAggregationBatches(2*DefaultMaxRowsPerAggregationBatch+1, cfg.MaxRowsPerAggregationBatch))
}

func TestCellstore_Insert_FailedCreateIsDropped(t *testing.T) {
	t.Parallel()

	conn := &failingConn{failOn: "_tmp"}
	inserter, err := New(Config{Logger: cellstoretesting.NewLogger(), Client: connClient{conn: conn}})
	require.NoError(t, err)

	_, cells := waterCells(t)
	err = inserter.Insert(t.Context(), mustBuild(t, waterBuilder()), waterFrame(t, cells))
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, StageCreateTempTables, stageErr.Stage)

	var created, dropped []string
	for _, stmt := range conn.execs {
		if name, ok := strings.CutPrefix(stmt, "CREATE TABLE IF NOT EXISTS "); ok && strings.Contains(stmt, "_tmp") {
			created = append(created, strings.Fields(name)[0])
		}
		if name, ok := strings.CutPrefix(stmt, "DROP TABLE IF EXISTS "); ok {
			dropped = append(dropped, name)
		}
	}
	require.Len(t, created, 1)
	require.Equal(t, created, dropped)
}

func TestCellstore_Insert_Insert(t *testing.T) {
	t.Parallel()

	t.Run("compacts, aggregates and promotes", func(t *testing.T) {
		t.Parallel()

		client := cellstoretesting.NewClient(t, sharedDB)
		conn, err := client.Conn(t.Context())
		require.NoError(t, err)

		s := mustBuild(t, waterBuilder())
		complete, cells := waterCells(t)
		inserter := newInserter(t, client)

		require.NoError(t, inserter.Insert(t.Context(), s, waterFrame(t, cells)))

		require.Equal(t, uint64(3), countRows(t, conn, "water_08_base"))
		require.Equal(t, uint64(1), countRows(t, conn, "water_07_compacted"))
		require.Equal(t, uint64(2), countRows(t, conn, "water_06_base"))
		require.Equal(t, uint64(2), countRows(t, conn, "water_04_base"))
		require.Equal(t, uint64(0), countRows(t, conn, "water_08_compacted"))
		require.Empty(t, temporaryTables(t, conn))

		stored, err := dataset.QueryUint64s(t.Context(), conn, "SELECT h3index FROM water_07_compacted")
		require.NoError(t, err)
		require.Equal(t, []uint64{complete}, stored)

		munich, err := grid.Parent(complete, 6)
		require.NoError(t, err)
		f, err := dataset.QueryFrame(t.Context(), conn,
			"SELECT area_percent, depth_max, value FROM water_06_base WHERE h3index = ?", munich)
		require.NoError(t, err)
		require.Equal(t, 1, f.NumRows())
		row := f.Row(0)
		require.InDelta(t, 1.0/7.0, row[0].(float32), 1e-6)
		require.Equal(t, float32(2), row[1])
		require.Equal(t, uint8(1), row[2])

		munich, err = grid.Parent(complete, 4)
		require.NoError(t, err)
		f, err = dataset.QueryFrame(t.Context(), conn,
			"SELECT area_percent FROM water_04_base WHERE h3index = ?", munich)
		require.NoError(t, err)
		require.Equal(t, 1, f.NumRows())
		require.InDelta(t, 1.0/343.0, f.Row(0)[0].(float32), 1e-6)

		// 3 of the 7 children of the Berlin cell are present
		berlin, err := grid.Parent(cells[len(cells)-1], 6)
		require.NoError(t, err)
		f, err = dataset.QueryFrame(t.Context(), conn,
			"SELECT area_percent FROM water_06_base WHERE h3index = ?", berlin)
		require.NoError(t, err)
		require.Equal(t, 1, f.NumRows())
		require.InDelta(t, 3.0/49.0, f.Row(0)[0].(float32), 1e-6)

		sets, err := tableset.List(t.Context(), cellstoretesting.NewLogger(), conn)
		require.NoError(t, err)
		require.Len(t, sets, 1)
		require.Equal(t, []uint8{4, 6, 8}, sets["water"].BaseResolutions())
		require.Equal(t, []string{"area_percent", "depth_max", "h3index", "value"}, sets["water"].ColumnNames())
	})

	t.Run("repeated insert is deduplicated", func(t *testing.T) {
		t.Parallel()

		client := cellstoretesting.NewClient(t, sharedDB)
		conn, err := client.Conn(t.Context())
		require.NoError(t, err)

		s := mustBuild(t, waterBuilder())
		_, cells := waterCells(t)
		inserter := newInserter(t, client)

		require.NoError(t, inserter.Insert(t.Context(), s, waterFrame(t, cells)))
		require.NoError(t, inserter.Insert(t.Context(), s, waterFrame(t, cells)))

		counts, err := dataset.QueryUint64s(t.Context(), conn, "SELECT count() FROM water_08_base")
		require.NoError(t, err)
		require.Equal(t, []uint64{3}, counts)
		require.Empty(t, temporaryTables(t, conn))
	})

	t.Run("without compaction", func(t *testing.T) {
		t.Parallel()

		client := cellstoretesting.NewClient(t, sharedDB)
		conn, err := client.Conn(t.Context())
		require.NoError(t, err)

		s := mustBuild(t, waterBuilder().UseCompaction(false))
		cells := children(t, cellAt(t, 48.1351, 11.5820, 7), 8)

		require.NoError(t, newInserter(t, client).Insert(t.Context(), s, waterFrame(t, cells)))
		require.Equal(t, uint64(7), countRows(t, conn, "water_08_base"))
		require.Equal(t, uint64(1), countRows(t, conn, "water_06_base"))
		require.Equal(t, uint64(1), countRows(t, conn, "water_04_base"))
		require.Empty(t, temporaryTables(t, conn))
	})

	t.Run("data error aborts before touching the database", func(t *testing.T) {
		t.Parallel()

		client := cellstoretesting.NewClient(t, sharedDB)
		conn, err := client.Conn(t.Context())
		require.NoError(t, err)

		s := mustBuild(t, waterBuilder())
		cells := []uint64{cellAt(t, 48.1351, 11.5820, 9)}

		err = newInserter(t, client).Insert(t.Context(), s, waterFrame(t, cells))
		var stageErr *StageError
		require.True(t, errors.As(err, &stageErr))
		require.Equal(t, StageCompactAndSplit, stageErr.Stage)
		require.ErrorIs(t, err, ErrResolutionTooHigh)

		sets, err := tableset.List(t.Context(), cellstoretesting.NewLogger(), conn)
		require.NoError(t, err)
		require.Empty(t, sets)
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		client := cellstoretesting.NewClient(t, sharedDB)
		conn, err := client.Conn(t.Context())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		s := mustBuild(t, waterBuilder())
		_, cells := waterCells(t)
		err = newInserter(t, client).Insert(ctx, s, waterFrame(t, cells))
		require.ErrorIs(t, err, context.Canceled)
		var stageErr *StageError
		require.True(t, errors.As(err, &stageErr))
		require.Empty(t, temporaryTables(t, conn))
	})
}
