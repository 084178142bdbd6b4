// Package writer persists reconstructed trace sets as Apache Parquet,
// one physical dataset per event family, and reads them back into the
// same in-memory shapes.
package writer

import (
	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
)

// Dataset file names inside an output directory.
const (
	UfsFile    = "ufs.parquet"
	BlockFile  = "block.parquet"
	CustomFile = "custom.parquet"
)

// Config holds writer configuration.
type Config struct {
	// BatchSize is the number of events per record batch.
	BatchSize int

	// Compression type for Parquet output.
	Compression CompressionType
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   8192,
		Compression: CompressionSnappy,
	}
}

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

// String returns the compression type name.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// ParseCompression parses a compression name, defaulting to snappy.
func ParseCompression(s string) CompressionType {
	switch s {
	case "none", "uncompressed":
		return CompressionNone
	case "gzip":
		return CompressionGzip
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	default:
		return CompressionSnappy
	}
}

func (c CompressionType) codec() compress.Compression {
	switch c {
	case CompressionSnappy:
		return compress.Codecs.Snappy
	case CompressionGzip:
		return compress.Codecs.Gzip
	case CompressionZstd:
		return compress.Codecs.Zstd
	case CompressionLZ4:
		return compress.Codecs.Lz4
	default:
		return compress.Codecs.Uncompressed
	}
}

func writerProps(c CompressionType) *parquet.WriterProperties {
	return parquet.NewWriterProperties(
		parquet.WithCompression(c.codec()),
		parquet.WithDictionaryDefault(true),
		parquet.WithDataPageSize(1024*1024),
	)
}

// ufsSchema is the Arrow schema of the UFS dataset.
func ufsSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "time", Type: arrow.PrimitiveTypes.Float64},
		{Name: "process", Type: arrow.BinaryTypes.String},
		{Name: "cpu", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "action", Type: arrow.BinaryTypes.String},
		{Name: "tag", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "opcode", Type: arrow.BinaryTypes.String},
		{Name: "lba", Type: arrow.PrimitiveTypes.Uint64},
		{Name: "size", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "group_id", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "hwq_id", Type: arrow.PrimitiveTypes.Int32},
		{Name: "queue_depth", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "dtoc", Type: arrow.PrimitiveTypes.Float64},
		{Name: "ctoc", Type: arrow.PrimitiveTypes.Float64},
		{Name: "ctod", Type: arrow.PrimitiveTypes.Float64},
		{Name: "sequential", Type: arrow.FixedWidthTypes.Boolean},
	}, nil)
}

func blockSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "time", Type: arrow.PrimitiveTypes.Float64},
		{Name: "process", Type: arrow.BinaryTypes.String},
		{Name: "cpu", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "flags", Type: arrow.BinaryTypes.String},
		{Name: "action", Type: arrow.BinaryTypes.String},
		{Name: "dev_major", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "dev_minor", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "io_type", Type: arrow.BinaryTypes.String},
		{Name: "extra", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "sector", Type: arrow.PrimitiveTypes.Uint64},
		{Name: "size", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "command", Type: arrow.BinaryTypes.String},
		{Name: "queue_depth", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "dtoc", Type: arrow.PrimitiveTypes.Float64},
		{Name: "ctoc", Type: arrow.PrimitiveTypes.Float64},
		{Name: "ctod", Type: arrow.PrimitiveTypes.Float64},
		{Name: "sequential", Type: arrow.FixedWidthTypes.Boolean},
	}, nil)
}

func customSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "opcode", Type: arrow.BinaryTypes.String},
		{Name: "lba", Type: arrow.PrimitiveTypes.Uint64},
		{Name: "size", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "start_time", Type: arrow.PrimitiveTypes.Float64},
		{Name: "end_time", Type: arrow.PrimitiveTypes.Float64},
		{Name: "dtoc", Type: arrow.PrimitiveTypes.Float64},
		{Name: "start_qd", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "end_qd", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "ctoc", Type: arrow.PrimitiveTypes.Float64},
		{Name: "ctod", Type: arrow.PrimitiveTypes.Float64},
		{Name: "sequential", Type: arrow.FixedWidthTypes.Boolean},
	}, nil)
}
