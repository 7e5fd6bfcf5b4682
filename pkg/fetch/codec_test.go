package fetch

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var samplePayload = []byte("bundle payload with enough text to be worth compressing, repeated. " +
	"bundle payload with enough text to be worth compressing, repeated.")

func gzipCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zstdCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func lz4Compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func s2Compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := s2.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want Algorithm
	}{
		{"gzip", gzipCompress(t, samplePayload), Gzip},
		{"zstd", zstdCompress(t, samplePayload), Zstd},
		{"lz4", lz4Compress(t, samplePayload), LZ4},
		{"s2", s2Compress(t, samplePayload), S2},
		{"plain", []byte("plain text"), None},
		{"empty", nil, None},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Detect(tc.data); got != tc.want {
				t.Errorf("Detect = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeSniffsFormat(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"gzip", gzipCompress(t, samplePayload)},
		{"zstd", zstdCompress(t, samplePayload)},
		{"lz4", lz4Compress(t, samplePayload)},
		{"s2", s2Compress(t, samplePayload)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Decode(tc.data, "")
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !bytes.Equal(out, samplePayload) {
				t.Errorf("round trip mismatch: got %d bytes", len(out))
			}
		})
	}
}

func TestDecodePassthrough(t *testing.T) {
	out, err := Decode(samplePayload, "")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(out, samplePayload) {
		t.Error("uncompressed payload altered")
	}
}

// A manifest hint of None must defeat sniffing: plaintext that happens to
// begin with a frame magic stays untouched.
func TestDecodeHintBeatsSniffing(t *testing.T) {
	tricky := append([]byte{0x1f, 0x8b}, []byte("not actually gzip")...)

	out, err := Decode(tricky, None)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(out, tricky) {
		t.Error("hinted payload was decompressed anyway")
	}

	// Without the hint, sniffing tries gzip and reports corruption.
	if _, err := Decode(tricky, ""); err == nil {
		t.Error("expected corruption error for fake gzip header")
	}
}

func TestDecodeCorruptPayload(t *testing.T) {
	data := gzipCompress(t, samplePayload)
	data = data[:len(data)-4] // truncate the trailer

	if _, err := Decode(data, Gzip); err == nil {
		t.Error("expected error for truncated gzip stream")
	}
}

func TestDecodeUnknownAlgorithm(t *testing.T) {
	if _, err := Decode(samplePayload, "brotli"); err == nil {
		t.Error("expected error for unsupported algorithm")
	}
}
