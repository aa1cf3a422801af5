package schema

import (
	"fmt"
	"slices"
)

// DataType is a ClickHouse column type supported for tableset columns.
type DataType string

const (
	UInt8      DataType = "UInt8"
	UInt16     DataType = "UInt16"
	UInt32     DataType = "UInt32"
	UInt64     DataType = "UInt64"
	Int8       DataType = "Int8"
	Int16      DataType = "Int16"
	Int32      DataType = "Int32"
	Int64      DataType = "Int64"
	Float32    DataType = "Float32"
	Float64    DataType = "Float64"
	Date       DataType = "Date"
	Date32     DataType = "Date32"
	DateTime   DataType = "DateTime"
	DateTime64 DataType = "DateTime64(3)"
	Bool       DataType = "Bool"
	String     DataType = "String"
)

var dataTypes = []DataType{
	UInt8, UInt16, UInt32, UInt64, Int8, Int16, Int32, Int64, Float32, Float64,
	Date, Date32, DateTime, DateTime64, Bool, String,
}

func (t DataType) Valid() bool {
	return slices.Contains(dataTypes, t)
}

func (t DataType) IsNumeric() bool {
	switch t {
	case UInt8, UInt16, UInt32, UInt64, Int8, Int16, Int32, Int64, Float32, Float64:
		return true
	}
	return false
}

func (t DataType) IsTemporal() bool {
	switch t {
	case Date, Date32, DateTime, DateTime64:
		return true
	}
	return false
}

// AggregationMethod defines how values of a column are combined when rows of a finer resolution
// are aggregated into their ancestor at a coarser resolution.
type AggregationMethod string

const (
	AggregationSum     AggregationMethod = "sum"
	AggregationMin     AggregationMethod = "min"
	AggregationMax     AggregationMethod = "max"
	AggregationAverage AggregationMethod = "average"
	// AggregationRelativeToCellArea sums the values weighted by the area a cell covers of its
	// ancestor. Missing children are not accounted for: the sum is always divided by the full
	// child count.
	AggregationRelativeToCellArea AggregationMethod = "relative_to_cell_area"
)

// AppliesTo reports whether the method is legal for columns of type t.
func (m AggregationMethod) AppliesTo(t DataType) bool {
	switch m {
	case AggregationSum, AggregationAverage, AggregationRelativeToCellArea:
		return t.IsNumeric()
	case AggregationMin, AggregationMax:
		return t.IsNumeric() || t.IsTemporal()
	}
	return false
}

// SQLFunction returns the ClickHouse aggregate function implementing the method.
func (m AggregationMethod) SQLFunction() (string, error) {
	switch m {
	case AggregationSum, AggregationRelativeToCellArea:
		return "sum", nil
	case AggregationMin:
		return "min", nil
	case AggregationMax:
		return "max", nil
	case AggregationAverage:
		return "avg", nil
	}
	return "", fmt.Errorf("unknown aggregation method %q", m)
}

// TemporalResolution is the finest time step stored in the temporal column.
type TemporalResolution string

const (
	TemporalResolutionSecond TemporalResolution = "second"
	TemporalResolutionDay    TemporalResolution = "day"
)

// Accepts reports whether a temporal column of type t can hold values of the resolution.
func (r TemporalResolution) Accepts(t DataType) bool {
	switch r {
	case TemporalResolutionSecond:
		return t == DateTime || t == DateTime64
	case TemporalResolutionDay:
		return t == Date || t == Date32
	}
	return false
}
