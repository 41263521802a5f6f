// Package pump drives the extraction of array elements from a stream of
// bytes, emitting each element as soon as it is complete while keeping the
// amount of buffered input bounded.
package pump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/arnodel/arraystream/element"
	"github.com/arnodel/arraystream/internal/debug"
	"github.com/arnodel/arraystream/internal/scanner"
	"github.com/cespare/xxhash/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/valyala/bytebufferpool"
)

const (
	DefaultChunkSize         = 32768
	DefaultMaxBufferMultiple = 10
	DefaultProgressEvery     = 10000

	maxConsecutiveEmptyReads = 100
)

var (
	// ErrBufferExceeded is returned when the buffered input outgrows the
	// configured bound without yielding an element.
	ErrBufferExceeded = errors.New("buffer size limit exceeded")

	// ErrTruncated is returned when the input ends in the middle of an
	// element, or before the end of the array in strict mode.
	ErrTruncated = errors.New("input ended before the end of the array")
)

// A DecodeError wraps an error returned by the input reader, typically
// because the compressed data is corrupt or truncated.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding input: %s", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Config holds the tunables of a Pump.  Zero fields take their default
// value.
type Config struct {
	// ChunkSize is the number of bytes requested from the reader at a time.
	ChunkSize int

	// MaxBufferMultiple bounds the buffer to this many chunks.
	MaxBufferMultiple int

	// ProgressEvery is the number of elements between progress messages.  A
	// negative value disables them.
	ProgressEvery int

	// Strict rejects arrays whose structural tokens are out of place.
	Strict bool

	// MaxDepth limits the nesting of elements.
	MaxDepth int
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxBufferMultiple <= 0 {
		c.MaxBufferMultiple = DefaultMaxBufferMultiple
	}
	if c.ProgressEvery == 0 {
		c.ProgressEvery = DefaultProgressEvery
	}
	return c
}

// MaxBufferSize is the number of buffered bytes beyond which a Pump fails.
func (c Config) MaxBufferSize() int {
	c = c.withDefaults()
	return c.ChunkSize * c.MaxBufferMultiple
}

// A Sink receives the elements in the order they appear in the array.
type Sink interface {
	Emit(element.Element) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(element.Element) error

func (f SinkFunc) Emit(el element.Element) error {
	return f(el)
}

// A Pump owns the buffer of input that has not been extracted yet.  It is
// not safe for concurrent use.
type Pump struct {
	cfg       Config
	extractor element.Extractor

	// buf.B[off:] is the input not consumed yet.
	buf *bytebufferpool.ByteBuffer
	off int

	counters
	err error
}

// New returns a Pump ready to be fed from the start of a stream.
func New(cfg Config) *Pump {
	cfg = cfg.withDefaults()
	p := &Pump{
		cfg:       cfg,
		extractor: element.Extractor{Strict: cfg.Strict, MaxDepth: cfg.MaxDepth},
		buf:       bufferPool.Get(),
	}
	p.counters.init(time.Now)
	return p
}

var bufferPool bytebufferpool.Pool

// Config returns the configuration in use, defaults included.
func (p *Pump) Config() Config {
	return p.cfg
}

// Buffered returns the number of bytes received but not extracted yet.
func (p *Pump) Buffered() int {
	return len(p.buf.B) - p.off
}

// Feed appends chunk to the buffer and emits all the elements that are now
// complete.  It is the step function behind Run, for callers that get their
// input some other way.  chunk is not retained.
//
// Once Feed or Finish has returned an error, the Pump is failed and keeps
// returning that error.
func (p *Pump) Feed(chunk []byte, emit func(element.Element) error) error {
	if p.err != nil {
		return p.err
	}
	p.bytesRead += int64(len(chunk))
	p.buf.B = append(p.buf.B, chunk...)
	p.err = p.drain(emit)
	return p.err
}

func (p *Pump) drain(emit func(element.Element) error) error {
	defer p.compact()
	for {
		el, n, err := p.extractor.Extract(p.buf.B[p.off:])
		if debug.On {
			debug.Printf("extract: consumed=%d buffered=%d err=%v", n, p.Buffered(), err)
		}
		switch {
		case err == nil:
			p.off += n
			if err := emit(el); err != nil {
				return err
			}
			p.record(el)
		case errors.Is(err, element.ErrEndOfArray):
			p.off += n
		case errors.Is(err, element.ErrIncomplete):
			if rest := p.buf.B[p.off:]; scanner.IsBlank(rest) {
				p.extractor.Skip(rest)
				p.off = len(p.buf.B)
			}
			if buffered := p.Buffered(); buffered > p.cfg.MaxBufferSize() {
				return fmt.Errorf("%w: %d bytes buffered, limit is %d", ErrBufferExceeded, buffered, p.cfg.MaxBufferSize())
			}
			return nil
		default:
			return err
		}
	}
}

// compact moves the unconsumed input to the front of the buffer.
func (p *Pump) compact() {
	if p.off == 0 {
		return
	}
	p.buf.B = p.buf.B[:copy(p.buf.B, p.buf.B[p.off:])]
	p.off = 0
}

// Finish tells the Pump that the input has ended.  It fails if the input
// ended inside an element.
func (p *Pump) Finish() error {
	if p.err != nil {
		return p.err
	}
	switch {
	case p.Buffered() > 0:
		p.err = fmt.Errorf("%w: %d bytes left", ErrTruncated, p.Buffered())
	case p.cfg.Strict && p.extractor.State() == element.AfterElement:
		p.err = fmt.Errorf("%w: missing ']'", ErrTruncated)
	}
	return p.err
}

// Run reads chunks from r and feeds them to the Pump until r is exhausted,
// emitting elements to sink.  The context is checked between chunks; a
// read blocks for as long as r does.
func (p *Pump) Run(ctx context.Context, r io.Reader, sink Sink) (Stats, error) {
	chunk := make([]byte, p.cfg.ChunkSize)
	emptyReads := 0
	for {
		if err := ctx.Err(); err != nil {
			return p.Stats(), err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			emptyReads = 0
			if ferr := p.Feed(chunk[:n], sink.Emit); ferr != nil {
				return p.Stats(), ferr
			}
		}
		switch {
		case err == io.EOF:
			return p.Stats(), p.Finish()
		case err != nil:
			p.err = &DecodeError{Err: err}
			return p.Stats(), p.err
		case n == 0:
			emptyReads++
			if emptyReads >= maxConsecutiveEmptyReads {
				p.err = &DecodeError{Err: io.ErrNoProgress}
				return p.Stats(), p.err
			}
		}
	}
}

// Close releases the buffer.  The Pump must not be used afterwards.
func (p *Pump) Close() {
	if p.buf != nil {
		bufferPool.Put(p.buf)
		p.buf = nil
	}
}

func (p *Pump) record(el element.Element) {
	p.counters.record(el)
	if every := p.cfg.ProgressEvery; every > 0 && p.elements%int64(every) == 0 {
		s := p.Stats()
		fiberlog.Infof(
			"Processed %d records (%.2f seconds elapsed, avg %.2f records per second)",
			s.Elements, s.Elapsed.Seconds(), s.Rate(),
		)
	}
}

// counters track the progress of a run.  They play no part in correctness.
type counters struct {
	now       func() time.Time
	start     time.Time
	elements  int64
	bytesRead int64
	digest    *xxhash.Digest
	line      []byte
}

func (c *counters) init(now func() time.Time) {
	c.now = now
	c.start = now()
	c.digest = xxhash.New()
}

func (c *counters) record(el element.Element) {
	c.elements++
	c.line = append(el.AppendTo(c.line[:0]), '\n')
	c.digest.Write(c.line)
}

// Stats returns a snapshot of the run counters.
func (p *Pump) Stats() Stats {
	return Stats{
		Start:     p.start,
		Elapsed:   p.now().Sub(p.start),
		Elements:  p.elements,
		BytesRead: p.bytesRead,
		Digest:    p.digest.Sum64(),
	}
}

// Stats describes a run so far.
type Stats struct {
	Start     time.Time
	Elapsed   time.Duration
	Elements  int64
	BytesRead int64

	// Digest is the xxhash64 of the emitted elements in compact form, each
	// followed by '\n'.  Two runs emitting the same lines have the same
	// digest.
	Digest uint64
}

// Rate returns the average number of elements per second.
func (s Stats) Rate() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Elements) / secs
}
