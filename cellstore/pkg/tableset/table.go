// Package tableset maps one logical dataset onto the family of per-resolution tables that store
// it, and discovers such families in a database.
package tableset

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	suffixBase      = "base"
	suffixCompacted = "compacted"
	prefixTemporary = "tmp"
)

var tableNameRe = regexp.MustCompile(`^([a-zA-Z][a-zA-Z_0-9]+)_([0-9]{2})(_(base|compacted))?(_tmp([a-zA-Z0-9_]+))?$`)

// TableSpec describes the role of one table within a tableset.
type TableSpec struct {
	H3Resolution uint8  `json:"h3_resolution"`
	IsCompacted  bool   `json:"is_compacted"`
	TemporaryKey string `json:"temporary_key,omitempty"`
	// HasBaseSuffix is set for base tables named with the explicit "_base" suffix.
	HasBaseSuffix bool `json:"has_base_suffix"`
}

// IsTemporary reports whether the table belongs to an insert run.
func (s TableSpec) IsTemporary() bool {
	return s.TemporaryKey != ""
}

// Table is a physical table of a tableset.
type Table struct {
	Basename string
	Spec     TableSpec
}

// Name renders the table name: {basename}_{resolution:02}[_base|_compacted][_tmp{key}].
func (t Table) Name() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s_%02d", t.Basename, t.Spec.H3Resolution)
	switch {
	case t.Spec.IsCompacted:
		b.WriteString("_" + suffixCompacted)
	case t.Spec.HasBaseSuffix:
		b.WriteString("_" + suffixBase)
	}
	if t.Spec.TemporaryKey != "" {
		b.WriteString("_" + prefixTemporary + t.Spec.TemporaryKey)
	}
	return b.String()
}

func (t Table) String() string {
	return t.Name()
}

// ParseTable parses a table name. ok is false when the name does not follow the tableset naming
// grammar, which is expected for unrelated tables.
func ParseTable(name string) (Table, bool) {
	m := tableNameRe.FindStringSubmatch(name)
	if m == nil {
		return Table{}, false
	}
	res, err := strconv.ParseUint(m[2], 10, 8)
	if err != nil || res > 15 {
		return Table{}, false
	}
	return Table{
		Basename: m[1],
		Spec: TableSpec{
			H3Resolution:  uint8(res),
			IsCompacted:   m[4] == suffixCompacted,
			HasBaseSuffix: m[4] == suffixBase,
			TemporaryKey:  m[6],
		},
	}, true
}

// WithTemporaryKey returns a copy of t belonging to the insert run identified by key.
func (t Table) WithTemporaryKey(key string) Table {
	t.Spec.TemporaryKey = key
	return t
}

// WithoutTemporaryKey returns the final table a temporary table is promoted into.
func (t Table) WithoutTemporaryKey() Table {
	t.Spec.TemporaryKey = ""
	return t
}
