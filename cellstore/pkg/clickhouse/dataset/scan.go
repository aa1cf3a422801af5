// Package dataset moves frames between ClickHouse and the cell store: scanning query results
// into columns and writing columns through batch inserts.
package dataset

import (
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
)

// baseType strips Nullable and LowCardinality wrappers from a ClickHouse type name.
func baseType(dbType string) (string, bool) {
	nullable := false
	for {
		switch {
		case strings.HasPrefix(dbType, "Nullable("):
			nullable = true
			dbType = strings.TrimSuffix(strings.TrimPrefix(dbType, "Nullable("), ")")
		case strings.HasPrefix(dbType, "LowCardinality("):
			dbType = strings.TrimSuffix(strings.TrimPrefix(dbType, "LowCardinality("), ")")
		default:
			return dbType, nullable
		}
	}
}

func scanTarget[T any](nullable bool) any {
	if nullable {
		var p *T
		return &p
	}
	var v T
	return &v
}

// InitializeScanTargets creates one typed scan target per column. Nullable columns get a
// pointer to a pointer so that NULL can be told apart from the zero value.
func InitializeScanTargets(columnTypes []driver.ColumnType) []any {
	valuePtrs := make([]any, len(columnTypes))
	for i, colType := range columnTypes {
		typ, nullable := baseType(colType.DatabaseTypeName())
		switch {
		case typ == "String" || strings.HasPrefix(typ, "FixedString"):
			valuePtrs[i] = scanTarget[string](nullable)
		case typ == "Date" || typ == "Date32" || strings.HasPrefix(typ, "DateTime"):
			valuePtrs[i] = scanTarget[time.Time](nullable)
		case typ == "UInt8":
			valuePtrs[i] = scanTarget[uint8](nullable)
		case typ == "UInt16":
			valuePtrs[i] = scanTarget[uint16](nullable)
		case typ == "UInt32":
			valuePtrs[i] = scanTarget[uint32](nullable)
		case typ == "UInt64":
			valuePtrs[i] = scanTarget[uint64](nullable)
		case typ == "Int8":
			valuePtrs[i] = scanTarget[int8](nullable)
		case typ == "Int16":
			valuePtrs[i] = scanTarget[int16](nullable)
		case typ == "Int32":
			valuePtrs[i] = scanTarget[int32](nullable)
		case typ == "Int64":
			valuePtrs[i] = scanTarget[int64](nullable)
		case typ == "Float32":
			valuePtrs[i] = scanTarget[float32](nullable)
		case typ == "Float64":
			valuePtrs[i] = scanTarget[float64](nullable)
		case typ == "Bool":
			valuePtrs[i] = scanTarget[bool](nullable)
		case typ == "UUID":
			valuePtrs[i] = scanTarget[uuid.UUID](nullable)
		default:
			// Let the driver pick the Go type for anything else (arrays, decimals, ...).
			valuePtrs[i] = scanTarget[any](false)
		}
	}
	return valuePtrs
}

func deref[T any](ptr any) (any, bool) {
	switch v := ptr.(type) {
	case *T:
		return *v, true
	case **T:
		if v == nil || *v == nil {
			return nil, true
		}
		return **v, true
	}
	return nil, false
}

// DereferencePointer returns the value behind a scan target created by InitializeScanTargets,
// or nil for NULL.
func DereferencePointer(ptr any) any {
	if ptr == nil {
		return nil
	}
	for _, d := range derefs {
		if v, ok := d(ptr); ok {
			return v
		}
	}
	return ptr
}

var derefs = []func(any) (any, bool){
	deref[string], deref[time.Time],
	deref[uint8], deref[uint16], deref[uint32], deref[uint64],
	deref[int8], deref[int16], deref[int32], deref[int64],
	deref[float32], deref[float64], deref[bool], deref[uuid.UUID],
	deref[any],
}
