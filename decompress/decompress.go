// Package decompress turns a possibly compressed input stream into the plain
// bytes of the JSON document, guessing the compression format from the first
// bytes when asked to.
package decompress

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format is a compression format.
type Format uint8

const (
	Auto Format = iota // guess from the magic number
	None               // plain data
	Gzip
	Zstd
	S2
	Snappy // framed snappy stream
	LZ4    // lz4 frame
)

var formatNames = [...]string{
	Auto:   "auto",
	None:   "none",
	Gzip:   "gzip",
	Zstd:   "zstd",
	S2:     "s2",
	Snappy: "snappy",
	LZ4:    "lz4",
}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// ParseFormat returns the format with the given name.  "gz" and "zst" are
// accepted as well.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "auto":
		return Auto, nil
	case "gz":
		return Gzip, nil
	case "zst":
		return Zstd, nil
	case "json", "plain":
		return None, nil
	}
	for f, name := range formatNames {
		if s == name {
			return Format(f), nil
		}
	}
	return Auto, fmt.Errorf("invalid compression format: %q", s)
}

type formatGuesser struct {
	magic  []byte
	format Format
}

var formatGuessers = []formatGuesser{
	{[]byte{0x1f, 0x8b}, Gzip},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, Zstd},
	{[]byte{0x04, 0x22, 0x4d, 0x18}, LZ4},
	{[]byte("\xff\x06\x00\x00S2sTwO"), S2},
	{[]byte("\xff\x06\x00\x00sNaPpY"), Snappy},
}

// magicLen is enough bytes to tell all the formats apart.
const magicLen = 16

// Detect returns the format whose magic number start begins with, or None.
func Detect(start []byte) Format {
	for _, guesser := range formatGuessers {
		if bytes.HasPrefix(start, guesser.magic) {
			return guesser.format
		}
	}
	return None
}

// NewReader returns a reader of the decompressed contents of r, along with
// the format in use (which is only different from f when f is Auto).  Closing
// the returned reader releases the decoder but does not close r.
func NewReader(r io.Reader, f Format) (io.ReadCloser, Format, error) {
	if f == Auto {
		br := bufio.NewReader(r)
		start, err := br.Peek(magicLen)
		if err != nil && err != io.EOF {
			return nil, Auto, fmt.Errorf("reading input: %w", err)
		}
		f = Detect(start)
		r = br
	}
	switch f {
	case None:
		return io.NopCloser(r), f, nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, f, fmt.Errorf("creating gzip reader: %w", err)
		}
		return zr, f, nil
	case Zstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, f, fmt.Errorf("creating zstd reader: %w", err)
		}
		return zr.IOReadCloser(), f, nil
	case S2:
		return io.NopCloser(s2.NewReader(r)), f, nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), f, nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), f, nil
	default:
		return nil, f, fmt.Errorf("unsupported compression format: %s", f)
	}
}
