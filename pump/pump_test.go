package pump

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"os"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/arnodel/arraystream/element"
	"github.com/arnodel/arraystream/encoding/json"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	lines []string
}

func (c *collector) Emit(el element.Element) error {
	c.lines = append(c.lines, el.String())
	return nil
}

func feedChunks(t *testing.T, cfg Config, chunks ...string) ([]string, error) {
	t.Helper()
	p := New(cfg)
	defer p.Close()
	var c collector
	for _, chunk := range chunks {
		if err := p.Feed([]byte(chunk), c.Emit); err != nil {
			return c.lines, err
		}
	}
	return c.lines, p.Finish()
}

func run(t *testing.T, cfg Config, r io.Reader) ([]string, Stats, error) {
	t.Helper()
	p := New(cfg)
	defer p.Close()
	var c collector
	stats, err := p.Run(context.Background(), r, &c)
	return c.lines, stats, err
}

// A sample array with a bit of everything: nesting, whitespace, escapes
// and multi-byte characters.
func sampleArray(n int) string {
	var b strings.Builder
	b.WriteString("[\n")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(" ,\n")
		}
		switch i % 4 {
		case 0:
			b.WriteString(`{"id": ` + strings.Repeat("9", i%7+1) + `, "tags": ["a", "b\"c"], "name": "café 😀"}`)
		case 1:
			b.WriteString(`[1, 2.5e-3, true, false, null]`)
		case 2:
			b.WriteString(`"plain string with ü"`)
		default:
			b.WriteString(`-42`)
		}
	}
	b.WriteString("\n]\n")
	return b.String()
}

func TestFeedSplitMidObject(t *testing.T) {
	lines, err := feedChunks(t, Config{}, `[{"a":1},{"b`, `":2}]`)
	require.NoError(t, err)
	require.Equal(t, []string{`{"a":1}`, `{"b":2}`}, lines)
}

func TestFeedEmptyArray(t *testing.T) {
	lines, err := feedChunks(t, Config{}, `[]`)
	require.NoError(t, err)
	require.Empty(t, lines)

	lines, err = feedChunks(t, Config{}, " [", " ", "] \n")
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestFeedEmptyInput(t *testing.T) {
	lines, err := feedChunks(t, Config{})
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestFeedTrailingComma(t *testing.T) {
	lines, err := feedChunks(t, Config{}, `[{"a":1},]`)
	var serr *json.SyntaxError
	require.ErrorAs(t, err, &serr)
	// elements emitted before the failure are not retracted
	require.Equal(t, []string{`{"a":1}`}, lines)
}

func TestFeedTruncated(t *testing.T) {
	lines, err := feedChunks(t, Config{}, `[{"a":1},{"b"`)
	require.ErrorIs(t, err, ErrTruncated)
	require.EqualError(t, err, "input ended before the end of the array: 5 bytes left")
	require.Equal(t, []string{`{"a":1}`}, lines)
}

func TestFeedStrictMissingEnd(t *testing.T) {
	lines, err := feedChunks(t, Config{Strict: true}, `[1, 2 `)
	require.ErrorIs(t, err, ErrTruncated)
	require.EqualError(t, err, "input ended before the end of the array: missing ']'")
	require.Equal(t, []string{"1", "2"}, lines)

	lines, err = feedChunks(t, Config{Strict: true}, `[1, {}`)
	require.ErrorIs(t, err, ErrTruncated)
	require.Equal(t, []string{"1", "{}"}, lines)

	lines, err = feedChunks(t, Config{}, `[1, {}`)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "{}"}, lines)
}

func TestChunkPartitionsAgree(t *testing.T) {
	input := sampleArray(200)
	want, err := feedChunks(t, Config{}, input)
	require.NoError(t, err)
	require.Len(t, want, 200)

	rnd := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		var chunks []string
		for rest := input; len(rest) > 0; {
			n := 1 + rnd.Intn(64)
			if n > len(rest) {
				n = len(rest)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		got, err := feedChunks(t, Config{}, chunks...)
		require.NoError(t, err)
		require.Equal(t, want, got, "trial %d", trial)
	}
}

func TestRunOneByteReads(t *testing.T) {
	input := sampleArray(50)
	want, _, err := run(t, Config{}, strings.NewReader(input))
	require.NoError(t, err)

	got, stats, err := run(t, Config{ChunkSize: 1, MaxBufferMultiple: 1000}, iotest.OneByteReader(strings.NewReader(input)))
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, int64(50), stats.Elements)
	require.Equal(t, int64(len(input)), stats.BytesRead)
}

func TestRunDigest(t *testing.T) {
	input := sampleArray(30)
	_, s1, err := run(t, Config{}, strings.NewReader(input))
	require.NoError(t, err)
	_, s2, err := run(t, Config{ChunkSize: 3, MaxBufferMultiple: 100}, iotest.HalfReader(strings.NewReader(input)))
	require.NoError(t, err)
	require.Equal(t, s1.Digest, s2.Digest)

	compact, _, err := run(t, Config{}, strings.NewReader(input))
	require.NoError(t, err)
	_, s3, err := run(t, Config{}, strings.NewReader("["+strings.Join(compact, ",")+"]"))
	require.NoError(t, err)
	require.Equal(t, s1.Digest, s3.Digest)

	_, s4, err := run(t, Config{}, strings.NewReader(sampleArray(31)))
	require.NoError(t, err)
	require.NotEqual(t, s1.Digest, s4.Digest)
}

func TestRunBufferExceeded(t *testing.T) {
	cfg := Config{ChunkSize: 16, MaxBufferMultiple: 2}
	require.Equal(t, 32, cfg.MaxBufferSize())

	input := `[{"big": "` + strings.Repeat("x", 100) + `"}, 1]`
	lines, _, err := run(t, cfg, strings.NewReader(input))
	require.ErrorIs(t, err, ErrBufferExceeded)
	require.Empty(t, lines)
}

func TestRunElementsBeforeBufferExceeded(t *testing.T) {
	cfg := Config{ChunkSize: 8, MaxBufferMultiple: 4}
	input := `[1, 2, "` + strings.Repeat("y", 64) + `"]`
	lines, _, err := run(t, cfg, strings.NewReader(input))
	require.ErrorIs(t, err, ErrBufferExceeded)
	require.Equal(t, []string{"1", "2"}, lines)
}

func TestRunLongWhitespaceTail(t *testing.T) {
	cfg := Config{ChunkSize: 16, MaxBufferMultiple: 2}
	input := `[1, 2]` + strings.Repeat(" \n", 1000)
	lines, _, err := run(t, cfg, strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, lines)
}

func TestRunLongWhitespaceBetweenElementsKeepsPositions(t *testing.T) {
	cfg := Config{ChunkSize: 4, MaxBufferMultiple: 2}
	input := "[1" + strings.Repeat("\n", 40) + " x]"
	_, _, err := run(t, cfg, strings.NewReader(input))
	require.EqualError(t, err, "syntax error at L41,C2: expected value, got: 'x'")
}

func TestRunDecodeError(t *testing.T) {
	broken := errors.New("corrupt input")
	r := io.MultiReader(strings.NewReader(`[{"a":1},`), iotest.ErrReader(broken))
	lines, _, err := run(t, Config{}, r)
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	require.ErrorIs(t, err, broken)
	require.EqualError(t, err, "decoding input: corrupt input")
	require.Equal(t, []string{`{"a":1}`}, lines)
}

func TestRunDataWithEOF(t *testing.T) {
	lines, _, err := run(t, Config{}, iotest.DataErrReader(strings.NewReader(`["x", "y"]`)))
	require.NoError(t, err)
	require.Equal(t, []string{`"x"`, `"y"`}, lines)
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) {
	return 0, nil
}

func TestRunNoProgress(t *testing.T) {
	_, _, err := run(t, Config{}, emptyReader{})
	require.ErrorIs(t, err, io.ErrNoProgress)
}

func TestRunContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(Config{})
	defer p.Close()
	_, err := p.Run(ctx, strings.NewReader(`[1]`), &collector{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSinkErrorStopsRun(t *testing.T) {
	stop := errors.New("stop")
	count := 0
	sink := SinkFunc(func(el element.Element) error {
		count++
		if count == 2 {
			return stop
		}
		return nil
	})
	p := New(Config{})
	defer p.Close()
	stats, err := p.Run(context.Background(), strings.NewReader(`[1, 2, 3, 4]`), sink)
	require.ErrorIs(t, err, stop)
	require.Equal(t, 2, count)
	require.Equal(t, int64(1), stats.Elements)

	// the pump stays failed
	require.ErrorIs(t, p.Feed([]byte(`5`), sink.Emit), stop)
	require.ErrorIs(t, p.Finish(), stop)
}

func TestBufferedShrinks(t *testing.T) {
	p := New(Config{})
	defer p.Close()
	var c collector
	require.NoError(t, p.Feed([]byte(`[{"a":1},{"b":`), c.Emit))
	require.Equal(t, len(`,{"b":`), p.Buffered())
	require.NoError(t, p.Feed([]byte(`2}`), c.Emit))
	require.Equal(t, 0, p.Buffered())
	require.Equal(t, []string{`{"a":1}`, `{"b":2}`}, c.lines)
}

func TestProgressMessages(t *testing.T) {
	var logs bytes.Buffer
	fiberlog.SetOutput(&logs)
	defer fiberlog.SetOutput(os.Stderr)

	lines, err := feedChunks(t, Config{ProgressEvery: 2}, `[1,2,3,4,5]`)
	require.NoError(t, err)
	require.Len(t, lines, 5)
	assert.Equal(t, 2, strings.Count(logs.String(), "Processed "))
	assert.Contains(t, logs.String(), "Processed 4 records (")

	logs.Reset()
	_, err = feedChunks(t, Config{ProgressEvery: -1}, `[1,2,3,4,5]`)
	require.NoError(t, err)
	assert.Empty(t, logs.String())
}

func TestStats(t *testing.T) {
	p := New(Config{})
	defer p.Close()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.counters.init(func() time.Time { return clock })
	require.Zero(t, p.Stats().Rate())

	require.NoError(t, p.Feed([]byte(`[1,2,3,4]`), func(element.Element) error { return nil }))
	clock = clock.Add(2 * time.Second)
	s := p.Stats()
	require.Equal(t, int64(4), s.Elements)
	require.Equal(t, int64(9), s.BytesRead)
	require.Equal(t, 2*time.Second, s.Elapsed)
	require.InDelta(t, 2.0, s.Rate(), 1e-9)
}

func TestConfigDefaults(t *testing.T) {
	p := New(Config{})
	defer p.Close()
	cfg := p.Config()
	require.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	require.Equal(t, DefaultMaxBufferMultiple, cfg.MaxBufferMultiple)
	require.Equal(t, DefaultProgressEvery, cfg.ProgressEvery)
	require.Equal(t, DefaultChunkSize*DefaultMaxBufferMultiple, Config{}.MaxBufferSize())
}
