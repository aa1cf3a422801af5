package schema

// H3IndexName is the name of the mandatory spatial-key column.
const H3IndexName = "h3index"

// ColumnKind distinguishes plain columns, the spatial key and aggregated columns.
type ColumnKind string

const (
	ColumnSimple     ColumnKind = "simple"
	ColumnH3Index    ColumnKind = "h3index"
	ColumnAggregated ColumnKind = "aggregated"
)

// ColumnDefinition describes one column of a tableset.
//
// Simple columns are grouped on during aggregation, aggregated columns are combined with their
// Aggregation method. OrderKeyPosition places a column in the ORDER BY key, Compression overrides
// the schema-wide compression.
type ColumnDefinition struct {
	Kind             ColumnKind        `json:"kind"`
	DataType         DataType          `json:"datatype,omitempty"`
	OrderKeyPosition *uint8            `json:"order_key_position,omitempty"`
	Compression      *Compression      `json:"compression,omitempty"`
	Aggregation      AggregationMethod `json:"aggregation,omitempty"`
}

// Simple returns a plain column.
func Simple(dataType DataType) ColumnDefinition {
	return ColumnDefinition{Kind: ColumnSimple, DataType: dataType}
}

// H3Index returns the spatial-key column.
func H3Index() ColumnDefinition {
	return ColumnDefinition{Kind: ColumnH3Index}
}

// WithAggregation returns a column aggregated with method.
func WithAggregation(dataType DataType, method AggregationMethod) ColumnDefinition {
	return ColumnDefinition{Kind: ColumnAggregated, DataType: dataType, Aggregation: method}
}

// OrderKey returns a copy of the column placed at position in the ORDER BY key.
func (c ColumnDefinition) OrderKey(position uint8) ColumnDefinition {
	c.OrderKeyPosition = &position
	return c
}

// Compressed returns a copy of the column with its own compression.
func (c ColumnDefinition) Compressed(compression Compression) ColumnDefinition {
	c.Compression = &compression
	return c
}

// clone returns a copy of c that shares no pointers with it.
func (c ColumnDefinition) clone() ColumnDefinition {
	if c.OrderKeyPosition != nil {
		position := *c.OrderKeyPosition
		c.OrderKeyPosition = &position
	}
	if c.Compression != nil {
		compression := *c.Compression
		c.Compression = &compression
	}
	return c
}

// Type returns the column's ClickHouse type.
func (c ColumnDefinition) Type() DataType {
	if c.Kind == ColumnH3Index {
		return UInt64
	}
	return c.DataType
}

func (c ColumnDefinition) IsAggregated() bool {
	return c.Kind == ColumnAggregated
}
