// Package compress provides the gzip+base64 codec used to shrink the
// persisted response-cache blob. Encoded blobs carry the Prefix tag so
// the loader can tell compressed payloads apart from legacy plain ones.
package compress

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Prefix tags a compressed blob. Anything without it is treated as an
// uncompressed legacy payload.
const Prefix = "gz1:"

// Encode compresses s and returns the tagged base64 form.
func Encode(s string) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		return "", fmt.Errorf("compress write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress close: %w", err)
	}
	return Prefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode. Input without the Prefix tag is returned
// unchanged, so legacy uncompressed blobs round-trip transparently.
func Decode(s string) (string, error) {
	if !strings.HasPrefix(s, Prefix) {
		return s, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, Prefix))
	if err != nil {
		return "", fmt.Errorf("decompress base64: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decompress open: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("decompress read: %w", err)
	}
	return string(out), nil
}

// IsCompressed reports whether a persisted blob carries the compression tag.
func IsCompressed(s string) bool {
	return strings.HasPrefix(s, Prefix)
}
