package tableset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCellstore_TableSet_ParseTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want Table
	}{
		{"water_05", Table{"water", TableSpec{H3Resolution: 5}}},
		{"water_05_base", Table{"water", TableSpec{H3Resolution: 5, HasBaseSuffix: true}}},
		{"water_13_compacted", Table{"water", TableSpec{H3Resolution: 13, IsCompacted: true}}},
		{"flood_risk_00_compacted_tmp1700000000abc", Table{"flood_risk", TableSpec{IsCompacted: true, TemporaryKey: "1700000000abc"}}},
		{"water_07_tmpx1", Table{"water", TableSpec{H3Resolution: 7, TemporaryKey: "x1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseTable(tt.name)
			require.True(t, ok)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.name, got.Name())
		})
	}

	for _, name := range []string{"water", "water_5", "water_005", "_water_05", "w_05", "water_05_other", "water_16_base", "tables", "9water_05"} {
		_, ok := ParseTable(name)
		require.False(t, ok, name)
	}
}

func TestCellstore_TableSet_NameRoundTrip(t *testing.T) {
	t.Parallel()

	for res := range uint8(16) {
		for _, compacted := range []bool{false, true} {
			for _, suffix := range []bool{false, true} {
				if compacted && suffix {
					continue
				}
				for _, key := range []string{"", "1700000000f00d", "a_b"} {
					table := Table{Basename: "water_body", Spec: TableSpec{
						H3Resolution:  res,
						IsCompacted:   compacted,
						HasBaseSuffix: suffix,
						TemporaryKey:  key,
					}}
					parsed, ok := ParseTable(table.Name())
					require.True(t, ok, table.Name())
					require.Equal(t, table, parsed, table.Name())
				}
			}
		}
	}
}

func TestCellstore_TableSet_FindTableSets(t *testing.T) {
	t.Parallel()

	names := []string{"schema_migrations", "columns", "tables", "goose_db_version"}
	for r := range 14 {
		names = append(names, fmt.Sprintf("water_%02d_base", r), fmt.Sprintf("water_%02d_compacted", r))
	}
	names = append(names, "water_05_base_tmp1700000000abc", "water_14_compacted_tmp1700000000abc")

	sets := FindTableSets(names)
	require.Len(t, sets, 1)
	water, ok := sets["water"]
	require.True(t, ok)
	require.Equal(t, "water", water.Basename)
	require.Len(t, water.BaseTables, 14)
	require.Len(t, water.CompactedTables, 14)
	require.False(t, water.HasBaseResolution(14))
	_, ok = water.CompactedTables[14]
	require.False(t, ok)
	require.Equal(t, uint8(13), water.BaseResolutions()[13])

	tables := water.TablesFor(5)
	require.Len(t, tables, 7)
	require.Equal(t, "water_05_base", tables[0].Name())
	require.Equal(t, "water_00_compacted", tables[1].Name())
	require.Equal(t, "water_05_compacted", tables[6].Name())
}

func TestCellstore_TableSet_QuoteString(t *testing.T) {
	t.Parallel()

	require.Equal(t, `'water_05'`, QuoteString("water_05"))
	require.Equal(t, `'it\'s \\ here'`, QuoteString(`it's \ here`))
}
