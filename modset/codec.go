// Package modset encodes an ordered list of mod references into a short,
// URL and chat safe string, and back.
//
// Layout: base64url(raw, no padding) of a format byte followed by a zlib
// stream. The stream holds a uvarint record count, then for every record a
// length-prefixed mod id and a length-prefixed version.
package modset

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// formatV1 is the only layout this package writes and reads.
const formatV1 byte = 0x01

// maxDecoded bounds the decompressed payload.
const maxDecoded = 1 << 20

var (
	ErrInvalidAlphabet     = errors.New("invalid character in mod string")
	ErrDecompressionFailed = errors.New("mod string payload is corrupt")
	ErrMalformedRecord     = errors.New("malformed mod record")
	ErrUnsupportedFormat   = errors.New("unsupported mod string format")
)

// Error is returned by Decode. Kind is one of the Err* sentinels.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func codecErr(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

var encoding = base64.RawURLEncoding

// Encode serializes refs. Duplicate mod ids collapse to their last
// occurrence; references with an empty mod id are skipped.
func Encode(refs []Reference) string {
	refs = Dedupe(refs)

	records := binary.AppendUvarint(nil, uint64(len(refs)))
	for _, r := range refs {
		records = appendString(records, r.ModID)
		records = appendString(records, r.Version)
	}

	var buf bytes.Buffer
	buf.WriteByte(formatV1)
	zw, _ := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	// Writes into a bytes.Buffer cannot fail.
	_, _ = zw.Write(records)
	_ = zw.Close()

	return encoding.EncodeToString(buf.Bytes())
}

// Decode parses a string produced by Encode. Any failure is an *Error and
// nothing is returned alongside it.
func Decode(s string) ([]Reference, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, codecErr(ErrMalformedRecord, "empty input")
	}
	for i := 0; i < len(s); i++ {
		if !inAlphabet(s[i]) {
			return nil, codecErr(ErrInvalidAlphabet, "%q at offset %d", s[i], i)
		}
	}
	raw, err := encoding.DecodeString(s)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidAlphabet, Err: err}
	}
	if len(raw) == 0 {
		return nil, codecErr(ErrMalformedRecord, "no payload")
	}
	if raw[0] != formatV1 {
		return nil, codecErr(ErrUnsupportedFormat, "format byte 0x%02x", raw[0])
	}

	records, err := inflate(raw[1:])
	if err != nil {
		return nil, &Error{Kind: ErrDecompressionFailed, Err: err}
	}
	refs, err := parseRecords(records)
	if err != nil {
		return nil, &Error{Kind: ErrMalformedRecord, Err: err}
	}
	return Dedupe(refs), nil
}

func inAlphabet(c byte) bool {
	return c >= 'A' && c <= 'Z' ||
		c >= 'a' && c <= 'z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '_'
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, maxDecoded+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxDecoded {
		return nil, fmt.Errorf("payload exceeds %d bytes", maxDecoded)
	}
	return out, nil
}

func appendString(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

func readString(b []byte) (string, []byte, error) {
	n, k := binary.Uvarint(b)
	if k <= 0 {
		return "", nil, errors.New("bad length prefix")
	}
	b = b[k:]
	if n > uint64(len(b)) {
		return "", nil, fmt.Errorf("field of %d bytes truncated to %d", n, len(b))
	}
	return string(b[:n]), b[n:], nil
}

func parseRecords(b []byte) ([]Reference, error) {
	count, k := binary.Uvarint(b)
	if k <= 0 {
		return nil, errors.New("bad record count")
	}
	b = b[k:]
	// Every record takes at least two length bytes.
	if count > uint64(len(b))/2 {
		return nil, fmt.Errorf("record count %d does not fit %d bytes", count, len(b))
	}

	refs := make([]Reference, 0, count)
	for i := uint64(0); i < count; i++ {
		var ref Reference
		var err error
		if ref.ModID, b, err = readString(b); err != nil {
			return nil, fmt.Errorf("record %d mod id: %w", i, err)
		}
		if ref.Version, b, err = readString(b); err != nil {
			return nil, fmt.Errorf("record %d version: %w", i, err)
		}
		if ref.ModID == "" {
			return nil, fmt.Errorf("record %d: empty mod id", i)
		}
		refs = append(refs, ref)
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("%d trailing bytes", len(b))
	}
	return refs, nil
}
