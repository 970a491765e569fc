package ingestion

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// CompressionType identifies the outer compression of an upload
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionGZ
	CompressionZSTD
	CompressionXZ
)

var compressedTypes = []CompressionType{CompressionGZ, CompressionZSTD, CompressionXZ}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// maxInflateRatio bounds decompressed size relative to the compressed input
const maxInflateRatio = 16

// DetectCompression inspects the leading bytes, falling back to the file extension
func DetectCompression(filename string, data []byte) CompressionType {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return CompressionGZ
	case bytes.HasPrefix(data, zstdMagic):
		return CompressionZSTD
	case bytes.HasPrefix(data, xzMagic):
		return CompressionXZ
	}

	ext := strings.ToLower(filepath.Ext(filename))
	for _, c := range compressedTypes {
		if ext == c.Extension() {
			return c
		}
	}
	return CompressionNone
}

// Extension returns the file suffix for the compression type
func (c CompressionType) Extension() string {
	switch c {
	case CompressionGZ:
		return ".gz"
	case CompressionZSTD:
		return ".zst"
	case CompressionXZ:
		return ".xz"
	default:
		return ""
	}
}

// TrimCompressionExt strips a compression suffix so the inner format can be detected
func TrimCompressionExt(filename string) string {
	lower := strings.ToLower(filename)
	for _, c := range compressedTypes {
		if ext := c.Extension(); strings.HasSuffix(lower, ext) {
			return filename[:len(filename)-len(ext)]
		}
	}
	return filename
}

// Decompress unwraps data according to its compression type
func Decompress(kind CompressionType, data []byte) ([]byte, error) {
	var (
		reader io.Reader
		closer = func() error { return nil }
	)

	switch kind {
	case CompressionNone:
		return data, nil

	case CompressionGZ:
		gzReader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		reader, closer = gzReader, gzReader.Close

	case CompressionZSTD:
		decoder, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		reader = decoder
		closer = func() error {
			decoder.Close()
			return nil
		}

	case CompressionXZ:
		xzReader, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		reader = xzReader

	default:
		return nil, fmt.Errorf("unsupported compression type: %d", kind)
	}
	defer closer()

	limit := int64(len(data))*maxInflateRatio + 1<<20
	out, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("decompressed size exceeds %d bytes", limit)
	}
	return out, nil
}
