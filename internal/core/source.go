package core

// source.go reads an import source fully into memory as clean UTF-8.
//
// The source passes through, in order:
//
//   - a size limit (ErrFileTooLarge)
//   - a byte counter
//   - charset decoding (IMPORT_SOURCE_ENCODING, any WHATWG label)
//   - BOM removal, which also switches to UTF-16 when a UTF-16 BOM is found
//   - replacement of ill-formed UTF-8 with U+FFFD

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// DefaultSourceEncoding is assumed when no source encoding is configured.
const DefaultSourceEncoding = "utf-8"

// lookupEncoding resolves a WHATWG encoding label such as "utf-8",
// "windows-1252" or "iso-8859-1".
func lookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultSourceEncoding
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("encoding error: unsupported source encoding %q: %w", name, err)
	}
	return enc, nil
}

func sourceTransformer(enc encoding.Encoding) transform.Transformer {
	return transform.Chain(
		unicode.BOMOverride(enc.NewDecoder()),
		runes.ReplaceIllFormed(),
	)
}

// countingReader tracks raw bytes read from the underlying source.
type countingReader struct {
	reader    io.Reader
	BytesRead int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// ReadSource reads r to EOF and returns its content decoded as UTF-8.
// maxSize <= 0 disables the size limit.
func ReadSource(r io.Reader, maxSize int64, encodingName string) ([]byte, error) {
	enc, err := lookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}

	src := r
	if maxSize > 0 {
		// One extra byte distinguishes "exactly at the limit" from "over it".
		src = io.LimitReader(r, maxSize+1)
	}
	counter := &countingReader{reader: src}

	data, err := io.ReadAll(transform.NewReader(counter, sourceTransformer(enc)))
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if maxSize > 0 && counter.BytesRead > maxSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, maxSize)
	}
	return data, nil
}
