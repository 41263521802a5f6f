package token

// A WriteStream receives the tokens of a value as they are parsed.
type WriteStream interface {
	Put(Token)
}

// An AccumulatorStream keeps the tokens it is given in a slice.
type AccumulatorStream struct {
	toks []Token
}

var _ WriteStream = &AccumulatorStream{}

func NewAccumulatorStream() *AccumulatorStream {
	return &AccumulatorStream{}
}

func (w *AccumulatorStream) Put(tok Token) {
	w.toks = append(w.toks, tok)
}

func (w *AccumulatorStream) GetTokens() []Token {
	return w.toks
}
