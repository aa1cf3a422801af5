package schema

import "fmt"

// CompressionMethod is a ClickHouse column codec.
type CompressionMethod string

const (
	CompressionLZ4         CompressionMethod = "lz4"
	CompressionLZ4HC       CompressionMethod = "lz4hc"
	CompressionZSTD        CompressionMethod = "zstd"
	CompressionDelta       CompressionMethod = "delta"
	CompressionDoubleDelta CompressionMethod = "double_delta"
	CompressionGorilla     CompressionMethod = "gorilla"
	CompressionT64         CompressionMethod = "t64"
)

// Compression is a codec with its level. Only LZ4HC and ZSTD take a level.
type Compression struct {
	Method CompressionMethod `json:"method"`
	Level  uint8             `json:"level,omitempty"`
}

func LZ4() Compression                { return Compression{Method: CompressionLZ4} }
func LZ4HC(level uint8) Compression   { return Compression{Method: CompressionLZ4HC, Level: level} }
func ZSTD(level uint8) Compression    { return Compression{Method: CompressionZSTD, Level: level} }
func Delta() Compression              { return Compression{Method: CompressionDelta} }
func DoubleDelta() Compression        { return Compression{Method: CompressionDoubleDelta} }
func Gorilla() Compression            { return Compression{Method: CompressionGorilla} }
func T64() Compression                { return Compression{Method: CompressionT64} }
func DefaultCompression() Compression { return ZSTD(6) }

func (c Compression) levelRange() (uint8, uint8, bool) {
	switch c.Method {
	case CompressionLZ4HC:
		return 1, 12, true
	case CompressionZSTD:
		return 1, 22, true
	}
	return 0, 0, false
}

// Validate checks the method and the level bounds of the method.
func (c Compression) Validate() error {
	switch c.Method {
	case CompressionLZ4, CompressionLZ4HC, CompressionZSTD, CompressionDelta,
		CompressionDoubleDelta, CompressionGorilla, CompressionT64:
	default:
		return fmt.Errorf("unknown compression method %q", c.Method)
	}
	lo, hi, leveled := c.levelRange()
	if !leveled {
		if c.Level != 0 {
			return fmt.Errorf("compression method %s does not take a level", c.Method)
		}
		return nil
	}
	if c.Level < lo || c.Level > hi {
		return fmt.Errorf("compression level %d of %s is out of range %d..%d", c.Level, c.Method, lo, hi)
	}
	return nil
}

// Codec renders the CODEC clause. Specialized codecs only transform the data and are followed by
// LZ4.
func (c Compression) Codec() string {
	switch c.Method {
	case CompressionLZ4:
		return "CODEC(LZ4)"
	case CompressionLZ4HC:
		return fmt.Sprintf("CODEC(LZ4HC(%d))", c.Level)
	case CompressionZSTD:
		return fmt.Sprintf("CODEC(ZSTD(%d))", c.Level)
	case CompressionDelta:
		return "CODEC(Delta, LZ4)"
	case CompressionDoubleDelta:
		return "CODEC(DoubleDelta, LZ4)"
	case CompressionGorilla:
		return "CODEC(Gorilla, LZ4)"
	case CompressionT64:
		return "CODEC(T64, LZ4)"
	}
	return ""
}
