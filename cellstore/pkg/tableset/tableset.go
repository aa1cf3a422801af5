package tableset

import (
	"maps"
	"slices"
)

// TableSet is the family of tables storing one logical dataset.
type TableSet struct {
	Basename string
	// Columns holds the columns present with an identical type in every table of the set.
	Columns         map[string]string
	BaseTables      map[uint8]TableSpec
	CompactedTables map[uint8]TableSpec
}

// New returns an empty tableset.
func New(basename string) *TableSet {
	return &TableSet{
		Basename:        basename,
		Columns:         make(map[string]string),
		BaseTables:      make(map[uint8]TableSpec),
		CompactedTables: make(map[uint8]TableSpec),
	}
}

// Add registers a table of the set. Temporary tables are ignored.
func (ts *TableSet) Add(spec TableSpec) {
	if spec.IsTemporary() {
		return
	}
	if spec.IsCompacted {
		ts.CompactedTables[spec.H3Resolution] = spec
	} else {
		ts.BaseTables[spec.H3Resolution] = spec
	}
}

// BaseResolutions returns the resolutions of the base tables in ascending order.
func (ts *TableSet) BaseResolutions() []uint8 {
	return slices.Sorted(maps.Keys(ts.BaseTables))
}

// CompactedResolutions returns the resolutions of the compacted tables in ascending order.
func (ts *TableSet) CompactedResolutions() []uint8 {
	return slices.Sorted(maps.Keys(ts.CompactedTables))
}

// HasBaseResolution reports whether the set has a base table at resolution.
func (ts *TableSet) HasBaseResolution(resolution uint8) bool {
	_, ok := ts.BaseTables[resolution]
	return ok
}

// BaseTable returns the base table at resolution.
func (ts *TableSet) BaseTable(resolution uint8) (Table, bool) {
	spec, ok := ts.BaseTables[resolution]
	return Table{Basename: ts.Basename, Spec: spec}, ok
}

// CompactedTable returns the compacted table at resolution.
func (ts *TableSet) CompactedTable(resolution uint8) (Table, bool) {
	spec, ok := ts.CompactedTables[resolution]
	return Table{Basename: ts.Basename, Spec: spec}, ok
}

// Tables returns all tables of the set, base tables first, each group by ascending resolution.
func (ts *TableSet) Tables() []Table {
	out := make([]Table, 0, len(ts.BaseTables)+len(ts.CompactedTables))
	for _, r := range ts.BaseResolutions() {
		out = append(out, Table{Basename: ts.Basename, Spec: ts.BaseTables[r]})
	}
	for _, r := range ts.CompactedResolutions() {
		out = append(out, Table{Basename: ts.Basename, Spec: ts.CompactedTables[r]})
	}
	return out
}

// ColumnNames returns the common column names in ascending order.
func (ts *TableSet) ColumnNames() []string {
	return slices.Sorted(maps.Keys(ts.Columns))
}

// TablesFor returns the tables holding the data of resolution: the base table at resolution and
// every compacted table at or below it.
func (ts *TableSet) TablesFor(resolution uint8) []Table {
	var out []Table
	if t, ok := ts.BaseTable(resolution); ok {
		out = append(out, t)
	}
	for _, r := range ts.CompactedResolutions() {
		if r <= resolution {
			t, _ := ts.CompactedTable(r)
			out = append(out, t)
		}
	}
	return out
}

// FindTableSets groups table names into tablesets by basename. Names not following the naming
// grammar are ignored, temporary tables are skipped.
func FindTableSets(names []string) map[string]*TableSet {
	sets := make(map[string]*TableSet)
	for _, name := range names {
		t, ok := ParseTable(name)
		if !ok || t.Spec.IsTemporary() {
			continue
		}
		ts, ok := sets[t.Basename]
		if !ok {
			ts = New(t.Basename)
			sets[t.Basename] = ts
		}
		ts.Add(t.Spec)
	}
	return sets
}
