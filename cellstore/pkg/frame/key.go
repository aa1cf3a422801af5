package frame

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"time"
)

// RowKey is the digest of a sequence of column values, e.g. all non-spatial values of a row.
// Equal values of the same Go types give equal keys.
type RowKey [sha256.Size]byte

// tags of values without a fixed-width reflect.Kind encoding
const (
	tagTime  byte = 0xf0
	tagOther byte = 0xff
)

// NewRowKey returns the key of values.
func NewRowKey(values ...any) RowKey {
	var buf []byte
	for _, v := range values {
		buf = appendValue(buf, v)
	}
	return sha256.Sum256(buf)
}

// KeyOf returns the key of row i over the given columns.
func (f *Frame) KeyOf(i int, columns []string) RowKey {
	var buf []byte
	for _, name := range columns {
		buf = appendValue(buf, f.cols[name][i])
	}
	return sha256.Sum256(buf)
}

// appendValue appends a self-delimiting encoding of v: the reflect.Kind of v as tag followed by
// a fixed-width or length-prefixed payload. Times are encoded as instants, independent of their
// location.
func appendValue(buf []byte, v any) []byte {
	switch v := v.(type) {
	case nil:
		return append(buf, byte(reflect.Invalid))
	case string:
		return appendBytes(append(buf, byte(reflect.String)), []byte(v))
	case bool:
		if v {
			return append(buf, byte(reflect.Bool), 1)
		}
		return append(buf, byte(reflect.Bool), 0)
	case float32:
		return binary.BigEndian.AppendUint32(append(buf, byte(reflect.Float32)), math.Float32bits(v))
	case float64:
		return binary.BigEndian.AppendUint64(append(buf, byte(reflect.Float64)), math.Float64bits(v))
	case time.Time:
		buf = binary.BigEndian.AppendUint64(append(buf, tagTime), uint64(v.Unix()))
		return binary.BigEndian.AppendUint32(buf, uint32(v.Nanosecond()))
	}

	rv := reflect.ValueOf(v)
	switch kind := rv.Kind(); kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return binary.BigEndian.AppendUint64(append(buf, byte(kind)), uint64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return binary.BigEndian.AppendUint64(append(buf, byte(kind)), rv.Uint())
	}
	buf = appendBytes(append(buf, tagOther), []byte(rv.Type().String()))
	return appendBytes(buf, fmt.Appendf(nil, "%v", v))
}

func appendBytes(buf, b []byte) []byte {
	return append(binary.AppendUvarint(buf, uint64(len(b))), b...)
}
