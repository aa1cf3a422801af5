package schema

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/tableset"
)

// ResolutionMetadata identifies one table of a tableset by resolution and compaction state.
type ResolutionMetadata struct {
	H3Resolution uint8
	IsCompacted  bool
}

// Compare orders by resolution, then non-compacted before compacted.
func (m ResolutionMetadata) Compare(o ResolutionMetadata) int {
	if c := cmp.Compare(m.H3Resolution, o.H3Resolution); c != 0 {
		return c
	}
	switch {
	case m.IsCompacted == o.IsCompacted:
		return 0
	case !m.IsCompacted:
		return -1
	}
	return 1
}

// ResolutionMetadata returns the tables of the set in order: the base resolutions, plus a
// compacted table for every resolution up to the maximum when compaction is enabled.
func (s *CompactedTableSchema) ResolutionMetadata() []ResolutionMetadata {
	var out []ResolutionMetadata
	for _, r := range s.baseResolutions {
		out = append(out, ResolutionMetadata{H3Resolution: r})
	}
	if s.useCompaction {
		for r := uint8(0); r <= s.MaxResolution(); r++ {
			out = append(out, ResolutionMetadata{H3Resolution: r, IsCompacted: true})
		}
	}
	slices.SortFunc(out, ResolutionMetadata.Compare)
	return out
}

// Table returns the table for m. A non-empty temporaryKey names the staging table of an insert.
func (s *CompactedTableSchema) Table(m ResolutionMetadata, temporaryKey string) tableset.Table {
	return tableset.Table{
		Basename: s.name,
		Spec: tableset.TableSpec{
			H3Resolution:  m.H3Resolution,
			IsCompacted:   m.IsCompacted,
			TemporaryKey:  temporaryKey,
			HasBaseSuffix: !m.IsCompacted,
		},
	}
}

// Tables returns all tables of the set in ResolutionMetadata order.
func (s *CompactedTableSchema) Tables(temporaryKey string) []tableset.Table {
	metas := s.ResolutionMetadata()
	out := make([]tableset.Table, len(metas))
	for i, m := range metas {
		out[i] = s.Table(m, temporaryKey)
	}
	return out
}

// h3OrderKeyOffset sorts the h3index column in front of every explicit order key position.
const h3OrderKeyOffset = -1 << 16

// OrderByColumnNames returns the ORDER BY key: h3index followed by the columns with an order key
// position, sorted by position and name.
func (s *CompactedTableSchema) OrderByColumnNames() []string {
	type keyed struct {
		pos  int
		name string
	}
	var keys []keyed
	for name, col := range s.columns {
		switch {
		case col.Kind == ColumnH3Index:
			pos := h3OrderKeyOffset
			if col.OrderKeyPosition != nil {
				pos += int(*col.OrderKeyPosition)
			}
			keys = append(keys, keyed{pos: pos, name: name})
		case col.OrderKeyPosition != nil:
			keys = append(keys, keyed{pos: int(*col.OrderKeyPosition), name: name})
		}
	}
	slices.SortFunc(keys, func(a, b keyed) int {
		if c := cmp.Compare(a.pos, b.pos); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.name
	}
	return out
}

// PartitionByExpressions returns the spatial partition expression followed by either the
// configured partition columns or the expression of the single temporal column.
func (s *CompactedTableSchema) PartitionByExpressions() []string {
	exprs, _ := s.partitionByExpressions()
	return exprs
}

func (s *CompactedTableSchema) partitionByExpressions() ([]string, *ValidationError) {
	exprs := []string{s.h3Partitioning.Expression()}

	if len(s.partitionBy) > 0 {
		for _, name := range s.partitionBy {
			if _, ok := s.columns[name]; !ok {
				return nil, invalid(RulePartitioning, name, "partition column does not exist")
			}
			if name == H3IndexName {
				return nil, invalid(RulePartitioning, name, "h3index is partitioned by the h3 partitioning")
			}
		}
		return append(exprs, s.partitionBy...), nil
	}

	var temporal []string
	for _, name := range slices.Sorted(maps.Keys(s.columns)) {
		if s.columns[name].Type().IsTemporal() {
			temporal = append(temporal, name)
		}
	}
	switch len(temporal) {
	case 0:
		return exprs, nil
	case 1:
		col := s.columns[temporal[0]]
		if !s.temporalResolution.Accepts(col.Type()) {
			return nil, invalid(RuleTemporal, temporal[0], "datatype %s does not match temporal resolution %q", col.Type(), s.temporalResolution)
		}
		return append(exprs, s.temporalPartitioning.Expression(temporal[0])), nil
	}
	return nil, invalid(RulePartitioning, strings.Join(temporal, ", "),
		"multiple temporal columns found, set the partition columns explicitly")
}

// ColumnDDL returns the column definitions of the CREATE TABLE statement.
func (s *CompactedTableSchema) ColumnDDL() []string {
	names := s.ColumnNames()
	out := make([]string, len(names))
	for i, name := range names {
		col := s.columns[name]
		compression := s.compression
		if col.Compression != nil {
			compression = *col.Compression
		}
		out[i] = fmt.Sprintf("%s %s %s", name, col.Type(), compression.Codec())
	}
	return out
}

// BuildCreateStatements returns one CREATE TABLE statement per table of the set.
func (s *CompactedTableSchema) BuildCreateStatements(temporaryKey string) ([]string, error) {
	engine, err := s.tableEngine.SQL()
	if err != nil {
		return nil, err
	}
	partitionBy, verr := s.partitionByExpressions()
	if verr != nil {
		return nil, verr
	}
	columns := "    " + strings.Join(s.ColumnDDL(), ",\n    ")
	tail := fmt.Sprintf("ENGINE = %s\nPARTITION BY (%s)\nORDER BY (%s)",
		engine, strings.Join(partitionBy, ", "), strings.Join(s.OrderByColumnNames(), ", "))

	tables := s.Tables(temporaryKey)
	out := make([]string, len(tables))
	for i, t := range tables {
		out[i] = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)\n%s", t.Name(), columns, tail)
	}
	return out, nil
}

// BuildDropStatements returns one DROP TABLE statement per table of the set.
func (s *CompactedTableSchema) BuildDropStatements(temporaryKey string) []string {
	tables := s.Tables(temporaryKey)
	out := make([]string, len(tables))
	for i, t := range tables {
		out[i] = fmt.Sprintf("DROP TABLE IF EXISTS %s", t.Name())
	}
	return out
}
