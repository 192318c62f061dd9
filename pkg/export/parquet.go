package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// compressionOption maps a codec name to a writer option. Unknown names
// fall back to uncompressed.
func compressionOption(codec string) (parquet.WriterOption, bool) {
	switch strings.ToLower(codec) {
	case "snappy":
		return parquet.Compression(&parquet.Snappy), true
	case "gzip":
		return parquet.Compression(&parquet.Gzip), true
	case "zstd":
		return parquet.Compression(&parquet.Zstd), true
	case "none", "uncompressed", "":
		return parquet.Compression(&parquet.Uncompressed), true
	default:
		return parquet.Compression(&parquet.Uncompressed), false
	}
}

// WriteParquet writes rows as a single Parquet file to w.
func WriteParquet(w io.Writer, rows []Row, codec string) error {
	opt, _ := compressionOption(codec)
	writer := parquet.NewWriter(w, parquet.SchemaOf(Row{}), opt)

	for i, r := range rows {
		if err := writer.Write(r); err != nil {
			return fmt.Errorf("write parquet row %d: %w", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	return nil
}
