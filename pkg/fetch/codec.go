package fetch

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/stockpile/pkg/errors"
)

// Algorithm identifies a payload compression format.
type Algorithm string

const (
	// None means the payload is stored uncompressed
	None Algorithm = "none"
	// Gzip is gzip framing
	Gzip Algorithm = "gzip"
	// Zstd is zstandard framing
	Zstd Algorithm = "zstd"
	// LZ4 is lz4 frame format
	LZ4 Algorithm = "lz4"
	// S2 is s2/snappy stream framing
	S2 Algorithm = "s2"
)

// Frame magic numbers for the supported formats.
var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
	s2Magic   = []byte{0xff, 0x06, 0x00, 0x00, 0x73, 0x4e, 0x61, 0x50, 0x70, 0x59}
)

// Detect sniffs the compression format from the payload's leading bytes.
// Unrecognized payloads are reported as None.
func Detect(data []byte) Algorithm {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return Gzip
	case bytes.HasPrefix(data, zstdMagic):
		return Zstd
	case bytes.HasPrefix(data, lz4Magic):
		return LZ4
	case bytes.HasPrefix(data, s2Magic):
		return S2
	default:
		return None
	}
}

// Decode decompresses a fetched payload. An empty hint triggers magic-byte
// detection; a manifest-provided hint takes precedence so that payloads
// whose plaintext happens to start with a frame magic are left intact.
func Decode(data []byte, hint Algorithm) ([]byte, error) {
	algo := hint
	if algo == "" {
		algo = Detect(data)
	}

	switch algo {
	case None:
		return data, nil

	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeLoadFailed, "gzip payload corrupt")
		}
		defer r.Close()
		return readAll(r, "gzip")

	case Zstd:
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeLoadFailed, "zstd payload corrupt")
		}
		defer r.Close()
		return readAll(r.IOReadCloser(), "zstd")

	case LZ4:
		return readAll(io.NopCloser(lz4.NewReader(bytes.NewReader(data))), "lz4")

	case S2:
		return readAll(io.NopCloser(s2.NewReader(bytes.NewReader(data))), "s2")

	default:
		return nil, errors.Newf(errors.ErrorTypeLoadFailed, "unsupported compression %q", algo)
	}
}

func readAll(r io.ReadCloser, format string) ([]byte, error) {
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeLoadFailed, "payload decompression failed").
			WithDetail("format", format)
	}
	return out, nil
}
