package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/arnodel/arraystream/decompress"
	"github.com/arnodel/arraystream/element"
	"github.com/arnodel/arraystream/encoding/json"
	"github.com/arnodel/arraystream/internal/config"
	"github.com/arnodel/arraystream/internal/format"
	"github.com/arnodel/arraystream/pump"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// failSentinel is written to stdout when an element does not fit in the
// buffer, so that a consumer of the output can tell it is incomplete.
const failSentinel = "Fail."

func main() {
	// Do not handle SIGPIPE, we'll do it ourselves (see error handling at the bottom of main).
	signal.Ignore(syscall.SIGPIPE)

	// Display a stack trace on panic
	defer func() {
		if e := recover(); e != nil {
			fmt.Fprintf(os.Stderr, "%s: %s", e, debug.Stack())
			os.Exit(2)
		}
	}()

	fiberlog.SetOutput(os.Stderr)
	fiberlog.SetLevel(fiberlog.LevelInfo)

	// Parse the command line arguments
	var configPath string
	var envFiles string
	var showSummary bool
	flags := config.Default()

	flag.Usage = printUsage
	flag.StringVar(&configPath, "config", "", "YAML configuration file")
	flag.StringVar(&envFiles, "env", "", "comma-separated .env files to load")
	flag.StringVar(&flags.Compression, "compression", flags.Compression, "input compression: auto, none, gzip, zstd, s2, snappy, lz4")
	flag.IntVar(&flags.ChunkSize, "chunk-size", flags.ChunkSize, "number of bytes read at a time")
	flag.IntVar(&flags.MaxBufferMultiple, "max-buffer-multiple", flags.MaxBufferMultiple, "maximum buffered input, in chunks")
	flag.IntVar(&flags.ProgressEvery, "progress-every", flags.ProgressEvery, "log progress every N records (0 disables)")
	flag.BoolVar(&flags.Strict, "strict", flags.Strict, "reject arrays with misplaced '[', ',' or ']'")
	flag.StringVar(&flags.Color, "color", flags.Color, "colorize output: auto, always, never")
	flag.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "log level: debug, info, warn, error")
	flag.BoolVar(&showSummary, "summary", false, "log the number of records and their digest at the end")
	flag.Parse()

	if flag.NArg() > 0 {
		fatalError("unexpected arguments: %s\n", strings.Join(flag.Args(), " "))
	}

	cfg, err := loadConfig(configPath, envFiles, flags)
	if err != nil {
		fatalError("%s\n", err)
	}
	level, _ := cfg.FiberLogLevel()
	fiberlog.SetLevel(level)

	// Handle color mode
	var colorizer *format.Colorizer
	switch cfg.Color {
	case "always":
		colorizer = &format.DefaultColorizer
	case "auto":
		if isatty.IsTerminal(os.Stdout.Fd()) {
			colorizer = &format.DefaultColorizer
		}
	}

	// Set up stdout for handling colors
	var stdout io.Writer = os.Stdout
	if colorizer != nil {
		stdout = colorable.NewColorableStdout()
	}
	out := bufio.NewWriter(stdout)
	printer := &format.DefaultPrinter{Writer: out}

	// If we are writing to a terminal, flush after each line so user gets feedback early.
	if isatty.IsTerminal(os.Stdout.Fd()) {
		printer.Flusher = out
	}
	encoder := &json.Encoder{Printer: printer, Colorizer: colorizer}

	compression, _ := cfg.CompressionFormat()
	input, compression, err := decompress.NewReader(os.Stdin, compression)
	if err != nil {
		fatalError("error: %s\n", err)
	}
	defer input.Close()
	fiberlog.Debugf("Input compression: %s", compression)

	pumpConfig := cfg.PumpConfig()
	fiberlog.Debugf("Reading %d bytes at a time, buffer limit is %d bytes", pumpConfig.ChunkSize, pumpConfig.MaxBufferSize())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pump.New(pumpConfig)
	defer p.Close()
	stats, err := p.Run(ctx, input, pump.SinkFunc(func(el element.Element) error {
		return encoder.Encode(el.Tokens)
	}))
	if err == nil {
		err = out.Flush()
	}

	if showSummary {
		fiberlog.Infof(
			"Processed %d records from %d bytes in %.2f seconds, digest %016x",
			stats.Elements, stats.BytesRead, stats.Elapsed.Seconds(), stats.Digest,
		)
	}

	switch {
	case err == nil:
	case errors.Is(err, syscall.EPIPE):
		// stdout is a pipe and something closed it (e.g. 'head' or 'less').
		// In this case we don't want to complain.
	case errors.Is(err, pump.ErrBufferExceeded):
		fmt.Fprintln(out, failSentinel)
		out.Flush()
		fiberlog.Errorf("%s", err)
		os.Exit(1)
	default:
		out.Flush()
		fiberlog.Errorf("%s", err)
		os.Exit(1)
	}
}

// loadConfig builds the configuration from, in increasing order of
// precedence, the defaults, the config file, the environment and the flags
// set on the command line.
func loadConfig(configPath, envFiles string, flags *config.Config) (*config.Config, error) {
	if envFiles != "" {
		if err := config.LoadEnvFiles(strings.Split(envFiles, ",")...); err != nil {
			return nil, err
		}
	}
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "compression":
			cfg.Compression = flags.Compression
		case "chunk-size":
			cfg.ChunkSize = flags.ChunkSize
		case "max-buffer-multiple":
			cfg.MaxBufferMultiple = flags.MaxBufferMultiple
		case "progress-every":
			cfg.ProgressEvery = flags.ProgressEvery
		case "strict":
			cfg.Strict = flags.Strict
		case "color":
			cfg.Color = flags.Color
		case "log-level":
			cfg.LogLevel = flags.LogLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fatalError(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, msg, args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `unarray - split a JSON array into one record per line

USAGE:
  unarray [options] < input.json[.gz]

DESCRIPTION:
  unarray reads a (possibly compressed) JSON document whose top level is an
  array and writes each element of the array on its own line, in compact
  form.  Elements are written as soon as they have been read, and only a
  bounded amount of input is kept in memory.

  If an element is bigger than the buffer limit (chunk-size times
  max-buffer-multiple), unarray writes "Fail." on its own line and exits
  with status 1.

OPTIONS:
  -config FILE              YAML configuration file
  -env FILES                Comma-separated .env files to load first
  -compression FORMAT       Input compression (default: auto)
                            Formats: auto, none, gzip, zstd, s2, snappy, lz4
  -chunk-size N             Bytes read at a time (default: 32768)
  -max-buffer-multiple N    Buffer limit in chunks (default: 10)
  -progress-every N         Log progress every N records, 0 disables (default: 10000)
  -strict                   Reject arrays with misplaced '[', ',' or ']'
  -color MODE               Colorize output: auto, always, never (default: auto)
  -log-level LEVEL          debug, info, warn, error (default: info)
  -summary                  Log the record count and digest when done

ENVIRONMENT:
  UNARRAY_CHUNK_SIZE, UNARRAY_MAX_BUFFER_MULTIPLE, UNARRAY_COMPRESSION
  override the configuration file.  Command line flags override both.

EXAMPLES:
  # One record per line from a gzipped dump
  unarray < records.json.gz > records.jsonl

  # First 10 records
  zstdcat dump.json.zst | unarray -compression none | head -10
`)
}
