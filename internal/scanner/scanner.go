package scanner

import (
	"errors"
	"slices"
)

type Pos struct {
	Line int
	Col  int
}

// Advance returns the position reached after scanning b from p.
func (p Pos) Advance(b []byte) Pos {
	for _, c := range b {
		switch {
		case c == '\n':
			p.Line++
			p.Col = 0
		case c < 0x80 || c >= 0xC0:
			// Count the first byte of each utf8-encoded codepoint
			p.Col++
		}
	}
	return p
}

// ErrEndOfInput is returned when the scanner runs past the bytes it was
// given.  It does not mean the input is wrong, only that there is no more of
// it yet.
var ErrEndOfInput = errors.New("end of input")

// A Scanner reads bytes from a slice.  Unlike a reader-backed scanner it
// never blocks or refills: the slice is all there is until the caller builds
// a new Scanner over a longer slice.
type Scanner struct {
	buf []byte

	// Current position in buf
	// 0 <= currentIndex <= len(buf)
	currentIndex int

	// Records lineno and colno of current position (from the start position
	// given to the scanner)
	currentPos, prevPos Pos

	// Position in buf of the currently recorded token.
	// -1 means not recording a token
	tokenStartIndex int

	// Tracks how many times the end of input was hit.  This is required to
	// make Back() work after a failed Read().
	eofCount int
}

func NewScanner(buf []byte) *Scanner {
	return NewScannerAt(buf, Pos{})
}

// NewScannerAt returns a scanner whose first byte is at position start in
// some larger input.
func NewScannerAt(buf []byte, start Pos) *Scanner {
	return &Scanner{
		buf:             buf,
		currentPos:      start,
		tokenStartIndex: -1,
		prevPos:         Pos{Line: -1},
	}
}

func (s *Scanner) Read() (byte, error) {
	if s.currentIndex >= len(s.buf) {
		s.eofCount++
		return 0, ErrEndOfInput
	}
	b := s.buf[s.currentIndex]
	s.prevPos = s.currentPos
	switch {
	case b == '\n':
		s.currentPos.Line++
		s.currentPos.Col = 0
	case b < 0x80 || b >= 0xC0:
		s.currentPos.Col++
	}
	s.currentIndex++
	return b, nil
}

func (s *Scanner) Peek() (byte, error) {
	if s.currentIndex >= len(s.buf) {
		return 0, ErrEndOfInput
	}
	return s.buf[s.currentIndex], nil
}

// Back undoes the last Read().  It can only be called once in a row.
func (s *Scanner) Back() {
	if s.eofCount > 0 {
		s.eofCount--
		return
	}
	if s.currentIndex <= 0 || s.currentIndex <= s.tokenStartIndex {
		panic("cannot go back from start")
	}
	if s.prevPos.Line < 0 {
		panic("cannot go back twice")
	}
	s.currentIndex--
	s.currentPos = s.prevPos
	s.prevPos.Line = -1
}

func (s *Scanner) StartToken() Pos {
	if s.tokenStartIndex >= 0 {
		panic("already in record mode")
	}
	s.tokenStartIndex = s.currentIndex
	return s.currentPos
}

// EndToken returns a copy of the bytes read since StartToken().  The copy
// stays valid after the underlying slice is reused.
func (s *Scanner) EndToken() []byte {
	if s.tokenStartIndex < 0 {
		panic("not in record mode")
	}
	tokBytes := slices.Clone(s.buf[s.tokenStartIndex:s.currentIndex])
	s.tokenStartIndex = -1
	return tokBytes
}

func (s *Scanner) CurrentPos() Pos {
	return s.currentPos
}

// Offset is the number of bytes consumed so far.
func (s *Scanner) Offset() int {
	return s.currentIndex
}

// Rest returns the bytes not consumed yet.
func (s *Scanner) Rest() []byte {
	return s.buf[s.currentIndex:]
}

// SkipSpace moves past any JSON insignificant whitespace.
func (s *Scanner) SkipSpace() {
	for i, b := range s.buf[s.currentIndex:] {
		switch {
		case b == '\n':
			s.currentPos.Line++
			s.currentPos.Col = 0
		case IsSpace(b):
			s.currentPos.Col++
		default:
			s.currentIndex += i
			s.prevPos.Line = -1
			return
		}
	}
	s.currentIndex = len(s.buf)
	s.prevPos.Line = -1
}

func (s *Scanner) SkipSpaceAndPeek() (byte, error) {
	s.SkipSpace()
	return s.Peek()
}

func (s *Scanner) SkipSpaceAndRead() (byte, error) {
	s.SkipSpace()
	return s.Read()
}
