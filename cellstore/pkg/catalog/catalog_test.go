package catalog

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/schema"
	cellstoretesting "github.com/dlr-eoc/ukis-h3cellstore-sub000/utils/pkg/testing"
)

func waterSchema(t *testing.T, name string) *schema.CompactedTableSchema {
	t.Helper()
	s, err := schema.NewBuilder(name).
		BaseResolutions(4, 6, 8).
		AddH3IndexColumn().
		AddColumn("value", schema.Simple(schema.UInt8).OrderKey(1)).
		AddColumn("area_percent", schema.WithAggregation(schema.Float32, schema.AggregationRelativeToCellArea)).
		Build()
	require.NoError(t, err)
	return s
}

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(Config{
		Logger: cellstoretesting.NewLogger(),
		Client: cellstoretesting.NewClient(t, sharedDB),
		Clock:  clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	return c
}

func TestCellstore_Catalog_Config(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.EqualError(t, err, "logger is required")

	_, err = New(Config{Logger: cellstoretesting.NewLogger()})
	require.EqualError(t, err, "clickhouse client is required")
}

func TestCellstore_Catalog_TableSetLifecycle(t *testing.T) {
	t.Parallel()

	c := newCatalog(t)
	water := waterSchema(t, "water")
	require.NoError(t, c.CreateTableSet(t.Context(), water))
	require.NoError(t, c.CreateTableSet(t.Context(), waterSchema(t, "rivers")))

	t.Run("schema round-trip", func(t *testing.T) {
		got, err := c.GetSchema(t.Context(), "water")
		require.NoError(t, err)
		require.Equal(t, water.Name(), got.Name())
		require.Equal(t, water.BaseResolutions(), got.BaseResolutions())
		require.Equal(t, water.Columns(), got.Columns())
		require.True(t, got.UseCompaction())

		_, err = c.GetSchema(t.Context(), "missing")
		require.ErrorIs(t, err, ErrSchemaNotFound)
	})

	t.Run("list", func(t *testing.T) {
		names, err := c.ListSchemas(t.Context())
		require.NoError(t, err)
		require.Equal(t, []string{"rivers", "water"}, names)

		sets, err := c.TableSets(t.Context())
		require.NoError(t, err)
		require.Len(t, sets, 2)
		ts := sets["water"]
		require.NotNil(t, ts)
		require.Equal(t, []uint8{4, 6, 8}, ts.BaseResolutions())
		require.Equal(t, []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8}, ts.CompactedResolutions())
		require.Contains(t, ts.Columns, "area_percent")
	})

	t.Run("creating again keeps the tables", func(t *testing.T) {
		require.NoError(t, c.CreateTableSet(t.Context(), water))
		names, err := c.ListSchemas(t.Context())
		require.NoError(t, err)
		require.Equal(t, []string{"rivers", "water"}, names)
	})

	t.Run("drop", func(t *testing.T) {
		statements, err := c.DropTableSetStatements(t.Context(), "water")
		require.NoError(t, err)
		require.Len(t, statements, 12)
		require.Contains(t, statements, "DROP TABLE IF EXISTS water_08_base")

		dropped, err := c.DropTableSet(t.Context(), "water")
		require.NoError(t, err)
		require.Len(t, dropped, 12)

		sets, err := c.TableSets(t.Context())
		require.NoError(t, err)
		require.NotContains(t, sets, "water")
		require.Contains(t, sets, "rivers")

		_, err = c.GetSchema(t.Context(), "water")
		require.ErrorIs(t, err, ErrSchemaNotFound)

		statements, err = c.DropTableSetStatements(t.Context(), "water")
		require.NoError(t, err)
		require.Empty(t, statements)
	})
}

func TestCellstore_Catalog_MigrateDown(t *testing.T) {
	t.Parallel()

	info := cellstoretesting.NewClientWithInfo(t, sharedDB)
	log := cellstoretesting.NewLogger()
	c, err := New(Config{Logger: log, Client: info.Client})
	require.NoError(t, err)

	names, err := c.ListSchemas(t.Context())
	require.NoError(t, err)
	require.Empty(t, names)

	require.NoError(t, clickhouse.Down(t.Context(), log, info.Config))
	_, err = c.ListSchemas(t.Context())
	require.Error(t, err)

	require.NoError(t, clickhouse.RunMigrations(t.Context(), log, info.Config))
	require.NoError(t, c.CreateTableSet(t.Context(), waterSchema(t, "water")))
	names, err = c.ListSchemas(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"water"}, names)
}
