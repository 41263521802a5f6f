// Package element recognizes the elements of a top-level JSON array one at a
// time, from a buffer that may hold only part of the array.
package element

import (
	"errors"
	"fmt"

	"github.com/arnodel/arraystream/encoding/json"
	"github.com/arnodel/arraystream/internal/scanner"
	"github.com/arnodel/arraystream/token"
)

var (
	// ErrIncomplete means the buffer does not hold a whole element yet.
	// Nothing was consumed.
	ErrIncomplete = json.ErrIncomplete

	// ErrEndOfArray means the buffer starts with the array's closing ']'
	// rather than an element.  The bytes up to and including the ']' (and
	// the whitespace after it) were consumed.
	ErrEndOfArray = errors.New("end of array")
)

// An Element is one value of the top-level array.
type Element struct {
	Tokens []token.Token
}

// AppendTo appends the compact JSON encoding of the element to dst.
func (e Element) AppendTo(dst []byte) []byte {
	return json.AppendCompact(dst, e.Tokens)
}

func (e Element) String() string {
	return string(e.AppendTo(nil))
}

// State is the position of an Extractor in the array.
type State uint8

const (
	NotStarted   State = iota // nothing consumed yet
	InElement                 // after '[' or ',', a value must follow
	AfterElement              // after a value, ',' or ']' must follow
	Closed                    // after the closing ']'
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case InElement:
		return "InElement"
	case AfterElement:
		return "AfterElement"
	case Closed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// An Extractor pulls array elements from the front of successive buffers.
// Each call to Extract must be given the bytes that follow the ones consumed
// by the previous successful call.
//
// By default '[', ',' and ']' are each optional around a value, so the same
// call works for the first, a middle or the last element.  This accepts some
// malformed arrays (e.g. a missing ',').  With Strict set, the Extractor
// checks the tokens against its position in the array instead.
type Extractor struct {
	Strict bool

	// MaxDepth limits the nesting of elements, see json.Decoder.
	MaxDepth int

	pos   scanner.Pos
	state State
}

// State returns the position of the extractor in the array.
func (x *Extractor) State() State {
	return x.state
}

// Pos returns the line and column (0-based) in the whole input of the first
// byte of the next buffer.
func (x *Extractor) Pos() (line, col int) {
	return x.pos.Line, x.pos.Col
}

// Skip records that b, the front of the next buffer, was dropped by the
// caller without being extracted.  It only moves the position forward, so b
// should be insignificant whitespace.
func (x *Extractor) Skip(b []byte) {
	x.pos = x.pos.Advance(b)
}

// Extract is a shorthand for extracting from buf with a new permissive
// Extractor.
func Extract(buf []byte) (Element, int, error) {
	var x Extractor
	return x.Extract(buf)
}

// Extract attempts to recognize one element at the front of buf.  It returns
// the element and the number of bytes consumed, which include the
// surrounding whitespace and structural tokens.
//
// The error is ErrIncomplete if more input is needed (0 bytes are consumed),
// ErrEndOfArray if buf starts with the end of the array (the consumed count
// is valid), or a *json.SyntaxError if buf can't start with an element.
func (x *Extractor) Extract(buf []byte) (Element, int, error) {
	s := scanner.NewScannerAt(buf, x.pos)
	var err error
	if x.Strict {
		err = x.strictBoundary(s)
	} else {
		err = x.boundary(s)
	}
	if err == nil {
		return x.value(s)
	}
	if errors.Is(err, ErrEndOfArray) {
		x.commit(s, Closed)
		return Element{}, s.Offset(), ErrEndOfArray
	}
	if errors.Is(err, scanner.ErrEndOfInput) {
		err = ErrIncomplete
	}
	return Element{}, 0, err
}

// boundary consumes the optional '[' and ',' tokens before a value.  It
// returns ErrEndOfArray when the next token is a ']' not preceded by ','.
func (x *Extractor) boundary(s *scanner.Scanner) error {
	b, err := s.SkipSpaceAndPeek()
	if err != nil {
		return err
	}
	if b == '[' {
		s.Read()
		if b, err = s.SkipSpaceAndPeek(); err != nil {
			return err
		}
	}
	if b == ',' {
		s.Read()
		return nil
	}
	return closeOrValue(s, b)
}

func (x *Extractor) strictBoundary(s *scanner.Scanner) error {
	b, err := s.SkipSpaceAndPeek()
	if err != nil {
		return err
	}
	switch x.state {
	case NotStarted:
		if b != '[' {
			return json.UnexpectedByte(s, "expected '[' at start of array, got")
		}
		s.Read()
		if b, err = s.SkipSpaceAndPeek(); err != nil {
			return err
		}
		return closeOrValue(s, b)
	case AfterElement:
		switch b {
		case ',':
			s.Read()
			return nil
		case ']':
			return closeOrValue(s, b)
		default:
			return json.UnexpectedByte(s, "expected ',' or ']' after array element, got")
		}
	default:
		return json.UnexpectedByte(s, "unexpected data after end of array")
	}
}

// closeOrValue consumes a ']' if b is one.  Otherwise a value should follow
// and the Decoder will report it if it doesn't.
func closeOrValue(s *scanner.Scanner, b byte) error {
	if b != ']' {
		return nil
	}
	s.Read()
	s.SkipSpace()
	return ErrEndOfArray
}

func (x *Extractor) value(s *scanner.Scanner) (Element, int, error) {
	acc := token.NewAccumulatorStream()
	d := json.NewDecoderFromScanner(s)
	d.MaxDepth = x.MaxDepth
	if err := d.ParseValue(acc); err != nil {
		return Element{}, 0, err
	}
	next := AfterElement
	if b, err := s.SkipSpaceAndPeek(); err == nil && b == ']' {
		s.Read()
		s.SkipSpace()
		next = Closed
	}
	x.commit(s, next)
	return Element{Tokens: acc.GetTokens()}, s.Offset(), nil
}

func (x *Extractor) commit(s *scanner.Scanner, state State) {
	x.pos = s.CurrentPos()
	x.state = state
}
