package json

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/arnodel/arraystream/internal/scanner"
	"github.com/arnodel/arraystream/token"
)

// ErrIncomplete is returned when the input ends before a value could be
// decided either way.  Feeding more input may turn it into a valid value or
// into a syntax error.
var ErrIncomplete = errors.New("incomplete JSON value")

// DefaultMaxDepth is the nesting depth beyond which a value is rejected.
const DefaultMaxDepth = 10000

// A SyntaxError reports input that can never be part of a valid JSON value,
// whatever follows it.
type SyntaxError struct {
	Pos scanner.Pos
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at L%d,C%d: %s", e.Pos.Line+1, e.Pos.Col+1, e.Msg)
}

// A Decoder parses JSON values from the front of a byte slice.
type Decoder struct {
	scanr *scanner.Scanner

	// MaxDepth limits the nesting of arrays and objects.  Zero means
	// DefaultMaxDepth.
	MaxDepth int
	depth    int
}

// NewDecoder sets up a Decoder reading from the start of data.
func NewDecoder(data []byte) *Decoder {
	return NewDecoderFromScanner(scanner.NewScanner(data))
}

// NewDecoderFromScanner creates a decoder using an existing scanner, so that
// the caller can consume tokens around the value with the same scanner.
func NewDecoderFromScanner(scanr *scanner.Scanner) *Decoder {
	return &Decoder{scanr: scanr}
}

// ParseValue reads one JSON value from the front of data, writing its tokens
// to out, and returns the unconsumed remainder.  Leading whitespace is
// skipped, trailing whitespace is not.
//
// The error is ErrIncomplete if data is a strict prefix of a possible value,
// or a *SyntaxError if it can't be.  In both cases some tokens may have been
// written to out already.
func ParseValue(data []byte, out token.WriteStream) ([]byte, error) {
	d := NewDecoder(data)
	if err := d.ParseValue(out); err != nil {
		return data, err
	}
	return d.scanr.Rest(), nil
}

// ParseValue reads a single JSON value and streams it.  It returns
// ErrIncomplete if the input runs out first, or a *SyntaxError if the input
// is invalid JSON.
func (d *Decoder) ParseValue(out token.WriteStream) error {
	err := d.parseValue(out)
	if errors.Is(err, scanner.ErrEndOfInput) {
		return ErrIncomplete
	}
	return err
}

func (d *Decoder) parseValue(out token.WriteStream) error {
	b, err := d.scanr.SkipSpaceAndPeek()
	if err != nil {
		return err
	}
	switch b {
	case '"':
		s, err := ParseString(d.scanr)
		if err != nil {
			return err
		}
		out.Put(s)
		return nil
	case '[':
		return d.parseArray(out)
	case '{':
		return d.parseObject(out)
	case 't':
		err := checkBytes(d.scanr, trueBytes)
		if err != nil {
			return err
		}
		out.Put(token.TrueScalar)
		return nil
	case 'f':
		err := checkBytes(d.scanr, falseBytes)
		if err != nil {
			return err
		}
		out.Put(token.FalseScalar)
		return nil
	case 'n':
		err := checkBytes(d.scanr, nullBytes)
		if err != nil {
			return err
		}
		out.Put(token.NullScalar)
		return nil
	default:
		if b == '-' || scanner.IsDigit(b) {
			n, err := ParseNumber(d.scanr)
			if err != nil {
				return err
			}
			out.Put(n)
			return nil
		}
		return UnexpectedByte(d.scanr, "expected value, got")
	}
}

func (d *Decoder) enter() error {
	maxDepth := d.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if d.depth >= maxDepth {
		return &SyntaxError{Pos: d.scanr.CurrentPos(), Msg: fmt.Sprintf("maximum nesting depth %d exceeded", maxDepth)}
	}
	d.depth++
	return nil
}

func (d *Decoder) parseArray(out token.WriteStream) error {
	var b byte
	var err error
	if err = d.enter(); err != nil {
		return err
	}
	defer func() { d.depth-- }()
	err = ExpectByte(d.scanr, '[')
	if err != nil {
		return err
	}
	out.Put(&token.StartArray{})
	b, err = d.scanr.SkipSpaceAndPeek()
	if err != nil {
		return err
	}
	if b == ']' {
		d.scanr.Read()
		out.Put(&token.EndArray{})
		return nil
	}
	for {
		err = d.parseValue(out)
		if err != nil {
			return err
		}
		b, err = d.scanr.SkipSpaceAndPeek()
		if err != nil {
			return err
		}
		switch b {
		case ']':
			d.scanr.Read()
			out.Put(&token.EndArray{})
			return nil
		case ',':
			d.scanr.Read()
		default:
			return UnexpectedByte(d.scanr, "expected ']' or ',', got")
		}
	}
}

func (d *Decoder) parseObject(out token.WriteStream) error {
	var b byte
	if err := d.enter(); err != nil {
		return err
	}
	defer func() { d.depth-- }()
	err := ExpectByte(d.scanr, '{')
	if err != nil {
		return err
	}
	out.Put(&token.StartObject{})
	b, err = d.scanr.SkipSpaceAndPeek()
	if err != nil {
		return err
	}
	if b == '}' {
		d.scanr.Read()
		out.Put(&token.EndObject{})
		return nil
	}
	for {
		if b != '"' {
			return UnexpectedByte(d.scanr, "expected object key, got")
		}
		key, err := ParseString(d.scanr)
		if err != nil {
			return err
		}
		key.TypeAndFlags |= token.KeyMask
		out.Put(key)
		b, err = d.scanr.SkipSpaceAndPeek()
		if err != nil {
			return err
		}
		if b != ':' {
			return UnexpectedByte(d.scanr, "expected ':', got")
		}
		d.scanr.Read()
		err = d.parseValue(out)
		if err != nil {
			return err
		}
		b, err = d.scanr.SkipSpaceAndPeek()
		if err != nil {
			return err
		}
		switch b {
		case '}':
			d.scanr.Read()
			out.Put(&token.EndObject{})
			return nil
		case ',':
			d.scanr.Read()
			b, err = d.scanr.SkipSpaceAndPeek()
			if err != nil {
				return err
			}
		default:
			return UnexpectedByte(d.scanr, "expected '}' or ',', got")
		}
	}
}

func ExpectByte(scanr *scanner.Scanner, xb byte) error {
	b, err := scanr.Read()
	if err != nil {
		return err
	}
	if b != xb {
		scanr.Back()
		return UnexpectedByte(scanr, "expected %q, got", xb)
	}
	return nil
}

// UnexpectedByte builds a *SyntaxError about the next byte in the scanner.
// If there is no next byte, scanner.ErrEndOfInput is returned instead as the
// input may continue in a valid way.
func UnexpectedByte(scanr *scanner.Scanner, expected string, args ...interface{}) error {
	pos := scanr.CurrentPos()
	b, err := scanr.Read()
	if err != nil {
		return err
	}
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf("%s: %q", fmt.Sprintf(expected, args...), b)}
}

func ParseString(scanr *scanner.Scanner) (*token.Scalar, error) {
	scanr.StartToken()
	err := ExpectByte(scanr, '"')
	if err != nil {
		return nil, err
	}
	isAlnum := true
	isUnescaped := true
	firstChar := true
	for {
		b, err := scanr.Read()
		if err != nil {
			return nil, err
		}
		switch b {
		case '\\':
			isUnescaped = false
			isAlnum = false
			x, err := scanr.Read()
			if err != nil {
				return nil, err
			}
			switch x {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
				continue
			case 'u':
				for i := 0; i < 4; i++ {
					b, err = scanr.Read()
					if err != nil {
						return nil, err
					}
					if !scanner.IsHex(b) {
						scanr.Back()
						return nil, UnexpectedByte(scanr, "expected hex, got")
					}
				}
			default:
				scanr.Back()
				return nil, UnexpectedByte(scanr, "invalid escape character")
			}
		case '"':
			stringBytes := scanr.EndToken()
			scalar := token.NewScalar(token.String, stringBytes)
			if isAlnum && !firstChar {
				scalar.TypeAndFlags |= token.AlnumMask
			}
			if isUnescaped {
				scalar.TypeAndFlags |= token.UnescapedMask
			}
			return scalar, nil
		default:
			if scanner.IsCtrl(b) {
				scanr.Back()
				return nil, UnexpectedByte(scanr, "invalid control character in string")
			}
			if b >= utf8.RuneSelf {
				isAlnum = false
				firstChar = false
				if err := readMultiByte(scanr); err != nil {
					return nil, err
				}
				continue
			}
			if isAlnum {
				if firstChar {
					isAlnum = scanner.IsAlpha(b)
					firstChar = false
				} else {
					isAlnum = scanner.IsAlnum(b)
				}
			}
		}
	}
}

// readMultiByte consumes the rest of a utf8-encoded codepoint whose first
// byte was just read.  A codepoint cut short by the end of the input is
// incomplete, not invalid.
func readMultiByte(scanr *scanner.Scanner) error {
	scanr.Back()
	rest := scanr.Rest()
	if !utf8.FullRune(rest) {
		return scanner.ErrEndOfInput
	}
	r, size := utf8.DecodeRune(rest)
	if r == utf8.RuneError && size <= 1 {
		return &SyntaxError{Pos: scanr.CurrentPos(), Msg: fmt.Sprintf("invalid UTF-8 byte in string: %#x", rest[0])}
	}
	for ; size > 0; size-- {
		scanr.Read()
	}
	return nil
}

// ParseNumber parses a JSON number from the scanner.  A number running up
// to the end of the input is incomplete as more digits may follow.
func ParseNumber(scanr *scanner.Scanner) (*token.Scalar, error) {
	scanr.StartToken()
	var n int
	b, err := scanr.Read()
	if err != nil {
		return nil, err
	}

	// Sign part
	if b == '-' {
		b, err = scanr.Read()
	}
	if err != nil {
		return nil, err
	}

	// Integer part
	if b == '0' {
		b, err = scanr.Read()
		if err != nil {
			return nil, err
		}
	} else if b >= '1' && b <= '9' {
		b, _, err = ReadDigits(scanr)
		if err != nil {
			return nil, err
		}
	} else {
		scanr.Back()
		return nil, UnexpectedByte(scanr, "expected digit, got")
	}

	// Fraction part
	if b == '.' {
		b, n, err = ReadDigits(scanr)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			scanr.Back()
			return nil, UnexpectedByte(scanr, "expected digit, got")
		}
	}

	// Exponent part
	if b == 'e' || b == 'E' {
		b, err = scanr.Peek()
		if err != nil {
			return nil, err
		}
		if b == '-' || b == '+' {
			scanr.Read()
		}
		_, n, err = ReadDigits(scanr)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			scanr.Back()
			return nil, UnexpectedByte(scanr, "expected digit, got")
		}
	}
	scanr.Back()
	return token.NewScalar(token.Number, scanr.EndToken()), nil
}

func ReadDigits(scanr *scanner.Scanner) (byte, int, error) {
	var n int
	for {
		b, err := scanr.Read()
		if err != nil {
			return 0, n, err
		}
		if !scanner.IsDigit(b) {
			return b, n, nil
		}
		n++
	}
}

func checkBytes(scanr *scanner.Scanner, expected []byte) error {
	for _, xb := range expected {
		if err := ExpectByte(scanr, xb); err != nil {
			return err
		}
	}
	return nil
}

var (
	trueBytes  = []byte("true")
	falseBytes = []byte("false")
	nullBytes  = []byte("null")
)
