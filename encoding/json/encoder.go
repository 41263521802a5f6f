package json

import (
	"fmt"

	"github.com/arnodel/arraystream/internal/format"
	"github.com/arnodel/arraystream/token"
)

// An Encoder outputs JSON values in compact form, one value per line, using
// the given Printer.  Scalars are printed verbatim as they were read, so the
// output of a value is its input with insignificant whitespace removed.
type Encoder struct {
	format.Printer
	*format.Colorizer
}

// Encode prints the value encoded by toks followed by a new line.  It
// assumes toks is the well-formed encoding of a single value and panics if
// that is not the case.
//
// The returned error is the one encountered by the Printer, if any.  A
// typical example is an attempt to write to a closed pipe.
func (e *Encoder) Encode(toks []token.Token) (err error) {
	defer format.CatchPrinterError(&err)
	writeCompact(toks, e.PrintBytes, func(s *token.Scalar) {
		e.Colorizer.PrintScalar(e.Printer, s)
	})
	e.EndValue()
	return nil
}

// AppendCompact appends the compact encoding of the value encoded by toks to
// dst, without a trailing new line.
func AppendCompact(dst []byte, toks []token.Token) []byte {
	writeCompact(
		toks,
		func(b []byte) { dst = append(dst, b...) },
		func(s *token.Scalar) { dst = append(dst, s.Bytes...) },
	)
	return dst
}

func writeCompact(toks []token.Token, printBytes func([]byte), printScalar func(*token.Scalar)) {
	var needComma, afterKey bool
	startValue := func() {
		if afterKey {
			afterKey = false
		} else if needComma {
			printBytes(itemSeparatorBytes)
		}
	}
	for _, tok := range toks {
		switch t := tok.(type) {
		case *token.StartObject:
			startValue()
			printBytes(openObjectBytes)
			needComma = false
		case *token.StartArray:
			startValue()
			printBytes(openArrayBytes)
			needComma = false
		case *token.EndObject:
			printBytes(closeObjectBytes)
			needComma = true
		case *token.EndArray:
			printBytes(closeArrayBytes)
			needComma = true
		case *token.Scalar:
			if t.IsKey() {
				if needComma {
					printBytes(itemSeparatorBytes)
				}
				printScalar(t)
				printBytes(keyValueSeparatorBytes)
				afterKey = true
				continue
			}
			startValue()
			printScalar(t)
			needComma = true
		default:
			panic(fmt.Sprintf("invalid token: %#v", tok))
		}
	}
}

var (
	openObjectBytes        = []byte("{")
	closeObjectBytes       = []byte("}")
	openArrayBytes         = []byte("[")
	closeArrayBytes        = []byte("]")
	itemSeparatorBytes     = []byte(",")
	keyValueSeparatorBytes = []byte(":")
)
