// Package schema is the declarative description of one tableset: its columns, compression,
// table engine, partitioning and resolutions. A schema is validated once when it is built and
// renders the DDL of all tables of the set.
package schema

import (
	"fmt"
	"maps"
	"slices"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/h3cell"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/tableset"
)

// Validation rules reported by ValidationError.
const (
	RuleName         = "name"
	RuleColumns      = "columns"
	RuleCompression  = "compression"
	RuleH3Index      = "h3index"
	RuleTableEngine  = "table_engine"
	RuleAggregation  = "aggregation"
	RuleResolutions  = "resolutions"
	RulePartitioning = "partitioning"
	RuleTemporal     = "temporal"
)

// ValidationError identifies the rule a schema violates and where.
type ValidationError struct {
	Rule     string
	Location string
	Message  string
}

func (e *ValidationError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("invalid schema (%s): %s", e.Rule, e.Message)
	}
	return fmt.Sprintf("invalid schema (%s) at %s: %s", e.Rule, e.Location, e.Message)
}

func invalid(rule, location, format string, args ...any) *ValidationError {
	return &ValidationError{Rule: rule, Location: location, Message: fmt.Sprintf(format, args...)}
}

// CompactedTableSchema is a validated tableset schema. It is immutable; use a Builder to derive a
// modified copy.
type CompactedTableSchema struct {
	name                 string
	tableEngine          TableEngine
	compression          Compression
	baseResolutions      []uint8
	useCompaction        bool
	temporalResolution   TemporalResolution
	temporalPartitioning TemporalPartitioning
	h3Partitioning       H3Partitioning
	columns              map[string]ColumnDefinition
	partitionBy          []string
}

func (s *CompactedTableSchema) Name() string                               { return s.name }
func (s *CompactedTableSchema) TableEngine() TableEngine                   { return s.tableEngine }
func (s *CompactedTableSchema) Compression() Compression                   { return s.compression }
func (s *CompactedTableSchema) BaseResolutions() []uint8                   { return slices.Clone(s.baseResolutions) }
func (s *CompactedTableSchema) UseCompaction() bool                        { return s.useCompaction }
func (s *CompactedTableSchema) TemporalResolution() TemporalResolution     { return s.temporalResolution }
func (s *CompactedTableSchema) TemporalPartitioning() TemporalPartitioning { return s.temporalPartitioning }
func (s *CompactedTableSchema) H3Partitioning() H3Partitioning             { return s.h3Partitioning }
func (s *CompactedTableSchema) PartitionBy() []string                      { return slices.Clone(s.partitionBy) }

// Columns returns a copy of the column definitions.
func (s *CompactedTableSchema) Columns() map[string]ColumnDefinition {
	out := make(map[string]ColumnDefinition, len(s.columns))
	for name, c := range s.columns {
		out[name] = c.clone()
	}
	return out
}

// Column returns the definition of column name.
func (s *CompactedTableSchema) Column(name string) (ColumnDefinition, bool) {
	c, ok := s.columns[name]
	return c.clone(), ok
}

// ColumnNames returns the column names in DDL order: h3index first, then by name.
func (s *CompactedTableSchema) ColumnNames() []string {
	names := slices.Sorted(maps.Keys(s.columns))
	names = slices.DeleteFunc(names, func(n string) bool { return n == H3IndexName })
	return append([]string{H3IndexName}, names...)
}

// MaxResolution returns the finest base resolution.
func (s *CompactedTableSchema) MaxResolution() uint8 {
	return slices.Max(s.baseResolutions)
}

// Builder accumulates the fields of a schema. Setters return the builder for chaining; all
// validation happens in Build.
type Builder struct {
	s        CompactedTableSchema
	problems []*ValidationError
}

// NewBuilder starts a schema with defaults: ReplacingMergeTree, ZSTD(6), compaction enabled,
// base cell partitioning, monthly temporal partitioning at second resolution.
func NewBuilder(name string) *Builder {
	return &Builder{s: CompactedTableSchema{
		name:                 name,
		tableEngine:          ReplacingMergeTree(),
		compression:          DefaultCompression(),
		useCompaction:        true,
		temporalResolution:   TemporalResolutionSecond,
		temporalPartitioning: TemporalPartitionMonth,
		h3Partitioning:       BaseCellPartitioning(),
		columns:              make(map[string]ColumnDefinition),
	}}
}

// BuilderFrom starts a builder from an existing schema.
func BuilderFrom(s *CompactedTableSchema) *Builder {
	c := *s
	c.baseResolutions = slices.Clone(s.baseResolutions)
	c.columns = s.Columns()
	c.partitionBy = slices.Clone(s.partitionBy)
	return &Builder{s: c}
}

func (b *Builder) TableEngine(e TableEngine) *Builder {
	b.s.tableEngine = e
	return b
}

func (b *Builder) Compression(c Compression) *Builder {
	b.s.compression = c
	return b
}

func (b *Builder) BaseResolutions(resolutions ...uint8) *Builder {
	b.s.baseResolutions = resolutions
	return b
}

func (b *Builder) UseCompaction(enabled bool) *Builder {
	b.s.useCompaction = enabled
	return b
}

func (b *Builder) TemporalResolution(r TemporalResolution) *Builder {
	b.s.temporalResolution = r
	return b
}

func (b *Builder) TemporalPartitioning(p TemporalPartitioning) *Builder {
	b.s.temporalPartitioning = p
	return b
}

func (b *Builder) H3Partitioning(p H3Partitioning) *Builder {
	b.s.h3Partitioning = p
	return b
}

// PartitionBy sets the columns used as partition expressions after the spatial one, replacing
// the temporal auto-detection.
func (b *Builder) PartitionBy(columns ...string) *Builder {
	b.s.partitionBy = columns
	return b
}

// AddColumn adds a column. Adding the same name twice is reported by Build.
func (b *Builder) AddColumn(name string, def ColumnDefinition) *Builder {
	if _, ok := b.s.columns[name]; ok {
		b.problems = append(b.problems, invalid(RuleColumns, name, "duplicate column"))
		return b
	}
	b.s.columns[name] = def.clone()
	return b
}

// AddH3IndexColumn adds the mandatory h3index column.
func (b *Builder) AddH3IndexColumn() *Builder {
	return b.AddColumn(H3IndexName, H3Index())
}

// Build validates the schema. The error is a *ValidationError naming the first failing rule.
func (b *Builder) Build() (*CompactedTableSchema, error) {
	if len(b.problems) > 0 {
		return nil, b.problems[0]
	}
	s := BuilderFrom(&b.s).s
	slices.Sort(s.baseResolutions)
	s.baseResolutions = slices.Compact(s.baseResolutions)
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *CompactedTableSchema) validate() *ValidationError {
	if err := validateName(s.name); err != nil {
		return err
	}
	if err := s.compression.Validate(); err != nil {
		return invalid(RuleCompression, "", "%v", err)
	}
	if err := s.validateColumns(); err != nil {
		return err
	}
	if err := s.validateTableEngine(); err != nil {
		return err
	}
	if len(s.baseResolutions) == 0 {
		return invalid(RuleResolutions, "", "at least one base resolution is required")
	}
	if maxRes := s.MaxResolution(); maxRes > h3cell.MaxResolution {
		return invalid(RuleResolutions, "", "resolution %d exceeds the maximum of %d", maxRes, h3cell.MaxResolution)
	}
	if err := s.h3Partitioning.Validate(); err != nil {
		return invalid(RulePartitioning, "h3_partitioning", "%v", err)
	}
	if err := s.temporalPartitioning.Validate(); err != nil {
		return invalid(RulePartitioning, "temporal_partitioning", "%v", err)
	}
	if _, err := s.partitionByExpressions(); err != nil {
		return err
	}
	return nil
}

func validateName(name string) *ValidationError {
	for _, r := range []uint8{0, 15} {
		t := tableset.Table{Basename: name, Spec: tableset.TableSpec{H3Resolution: r, HasBaseSuffix: true}}
		parsed, ok := tableset.ParseTable(t.Name())
		if !ok || parsed != t {
			return invalid(RuleName, name, "name must start with a letter and contain only letters, digits and underscores")
		}
	}
	return nil
}

func (s *CompactedTableSchema) validateColumns() *ValidationError {
	var h3Columns []string
	for _, name := range slices.Sorted(maps.Keys(s.columns)) {
		col := s.columns[name]
		if name == "" {
			return invalid(RuleColumns, name, "column name must not be empty")
		}
		if col.Compression != nil {
			if err := col.Compression.Validate(); err != nil {
				return invalid(RuleCompression, name, "%v", err)
			}
		}
		switch col.Kind {
		case ColumnH3Index:
			h3Columns = append(h3Columns, name)
			continue
		case ColumnSimple, ColumnAggregated:
		default:
			return invalid(RuleColumns, name, "unknown column kind %q", col.Kind)
		}
		if !col.DataType.Valid() {
			return invalid(RuleColumns, name, "unsupported datatype %q", col.DataType)
		}
		if name == H3IndexName {
			return invalid(RuleH3Index, name, "column %s must be the h3index column", name)
		}
		if col.Kind == ColumnAggregated {
			if _, err := col.Aggregation.SQLFunction(); err != nil {
				return invalid(RuleAggregation, name, "%v", err)
			}
			if !col.Aggregation.AppliesTo(col.DataType) {
				return invalid(RuleAggregation, name, "aggregation %s can not be applied to datatype %s", col.Aggregation, col.DataType)
			}
		}
	}
	switch {
	case len(h3Columns) == 0:
		return invalid(RuleH3Index, "", "the %s column is missing", H3IndexName)
	case len(h3Columns) > 1:
		return invalid(RuleH3Index, h3Columns[1], "only one h3index column is allowed")
	case h3Columns[0] != H3IndexName:
		return invalid(RuleH3Index, h3Columns[0], "the h3index column must be named %s", H3IndexName)
	}
	return nil
}

func (s *CompactedTableSchema) validateTableEngine() *ValidationError {
	if _, err := s.tableEngine.SQL(); err != nil {
		return invalid(RuleTableEngine, "", "%v", err)
	}
	for _, name := range s.tableEngine.RequiredColumns() {
		col, ok := s.columns[name]
		if !ok {
			return invalid(RuleTableEngine, name, "column required by the table engine is missing")
		}
		if !col.Type().IsNumeric() || col.Kind == ColumnH3Index {
			return invalid(RuleTableEngine, name, "summed column must be numeric")
		}
	}
	return nil
}
