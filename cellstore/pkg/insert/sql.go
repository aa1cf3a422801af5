package insert

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/h3cell"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/schema"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/tableset"
)

const sourcePrefix = "src_"

// aggregationPair aggregates the data of resolution source into resolution target.
type aggregationPair struct {
	source uint8
	target uint8
}

// aggregationPairs returns adjacent base resolution pairs from the finest to the coarsest.
func aggregationPairs(bases []uint8) []aggregationPair {
	sorted := slices.Sorted(slices.Values(bases))
	var out []aggregationPair
	for i := len(sorted) - 1; i > 0; i-- {
		out = append(out, aggregationPair{source: sorted[i], target: sorted[i-1]})
	}
	return out
}

// aggregationSources returns the tables holding the data of pair.source that is not yet present
// at pair.target: the base table at source and the compacted tables above target up to source.
// Only resolutions contained in existing are returned.
func aggregationSources(pair aggregationPair, existing []schema.ResolutionMetadata) []schema.ResolutionMetadata {
	var out []schema.ResolutionMetadata
	for _, m := range existing {
		switch {
		case !m.IsCompacted && m.H3Resolution == pair.source:
		case m.IsCompacted && m.H3Resolution > pair.target && m.H3Resolution <= pair.source:
		default:
			continue
		}
		out = append(out, m)
	}
	slices.SortFunc(out, schema.ResolutionMetadata.Compare)
	return out
}

func unionOfSources(sources []string, columns []string) string {
	selects := make([]string, len(sources))
	for i, table := range sources {
		exprs := make([]string, len(columns))
		for j, c := range columns {
			exprs[j] = fmt.Sprintf("%s AS %s%s", c, sourcePrefix, c)
		}
		selects[i] = fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), table)
	}
	return strings.Join(selects, "\n    UNION ALL\n    ")
}

// BuildCountQuery counts the rows of all tables.
func BuildCountQuery(tables []string) string {
	selects := make([]string, len(tables))
	for i, table := range tables {
		selects[i] = fmt.Sprintf("SELECT %s FROM %s", schema.H3IndexName, table)
	}
	return fmt.Sprintf("SELECT count() FROM (%s)", strings.Join(selects, " UNION ALL "))
}

// aggregationExpression renders the aggregate of one column when rows of resolution source are
// combined into their ancestors at resolution target.
func aggregationExpression(name string, col schema.ColumnDefinition, source, target uint8) (string, error) {
	fn, err := col.Aggregation.SQLFunction()
	if err != nil {
		return "", err
	}
	src := sourcePrefix + name
	if col.Aggregation == schema.AggregationRelativeToCellArea {
		// a compacted row covers 7^(source - its resolution) cells of the source resolution
		return fmt.Sprintf("%s(%s * pow(%d, %d - h3GetResolution(%s%s))) / pow(%d, %d)",
			fn, src, h3cell.ChildrenPerLevel, source, sourcePrefix, schema.H3IndexName,
			h3cell.ChildrenPerLevel, source-target), nil
	}
	return fmt.Sprintf("%s(%s)", fn, src), nil
}

// BuildAggregationQuery renders the INSERT ... SELECT aggregating the sources into the target
// table. With numBatches > 1 only the ancestors hashing to batch are processed.
func BuildAggregationQuery(s *schema.CompactedTableSchema, sources []string, target string, source, targetRes uint8, numBatches, batch uint64) (string, error) {
	if len(sources) == 0 {
		return "", fmt.Errorf("no source tables to aggregate into %s", target)
	}
	if source <= targetRes {
		return "", fmt.Errorf("source resolution %d must be finer than target resolution %d", source, targetRes)
	}

	columns := s.ColumnNames()
	ancestor := fmt.Sprintf("h3ToParent(%s%s, %d)", sourcePrefix, schema.H3IndexName, targetRes)

	selects := make([]string, 0, len(columns))
	groupBy := []string{ancestor}
	for _, name := range columns {
		col, _ := s.Column(name)
		switch {
		case col.Kind == schema.ColumnH3Index:
			selects = append(selects, ancestor)
		case col.IsAggregated():
			expr, err := aggregationExpression(name, col, source, targetRes)
			if err != nil {
				return "", fmt.Errorf("column %s: %w", name, err)
			}
			selects = append(selects, expr)
		default:
			selects = append(selects, sourcePrefix+name)
			groupBy = append(groupBy, sourcePrefix+name)
		}
	}

	var where string
	if numBatches > 1 {
		where = fmt.Sprintf("\nWHERE cityHash64(%s) %% %d = %d", ancestor, numBatches, batch)
	}

	return fmt.Sprintf("INSERT INTO %s (%s)\nSELECT %s\nFROM (\n    %s\n)%s\nGROUP BY %s",
		target,
		strings.Join(columns, ", "),
		strings.Join(selects, ", "),
		unionOfSources(sources, columns),
		where,
		strings.Join(groupBy, ", "),
	), nil
}

// numAggregationBatches splits rows into batches of at most maxRows.
func numAggregationBatches(rows, maxRows uint64) uint64 {
	if maxRows == 0 || rows <= maxRows {
		return 1
	}
	return (rows + maxRows - 1) / maxRows
}

// BuildPromoteQuery copies all rows of a temporary table into its final table.
func BuildPromoteQuery(s *schema.CompactedTableSchema, tmp tableset.Table) string {
	columns := strings.Join(s.ColumnNames(), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tmp.WithoutTemporaryKey().Name(), columns, columns, tmp.Name())
}

// BuildPartitionsQuery lists the partitions touched by the rows of a temporary table. Temporary
// and final tables share the partition expression, so the ids are valid for the final table.
func BuildPartitionsQuery(tmp string) string {
	return fmt.Sprintf("SELECT DISTINCT _partition_id FROM %s ORDER BY _partition_id", tmp)
}

// BuildDeduplicationStatements deduplicates the given partitions of table, or the whole table
// when no partitions are known.
func BuildDeduplicationStatements(table string, partitionIDs []string) []string {
	if len(partitionIDs) == 0 {
		return []string{fmt.Sprintf("OPTIMIZE TABLE %s FINAL DEDUPLICATE", table)}
	}
	out := make([]string, len(partitionIDs))
	for i, id := range partitionIDs {
		out[i] = fmt.Sprintf("OPTIMIZE TABLE %s PARTITION ID %s FINAL DEDUPLICATE", table, tableset.QuoteString(id))
	}
	return out
}
