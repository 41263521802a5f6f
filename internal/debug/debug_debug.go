//go:build debug

// Package debug traces the extraction of elements when built with
// -tags debug.
package debug

import (
	"fmt"
	"log"
	"os"
)

var logger = log.New(os.Stderr, "arraystream: ", log.Lmicroseconds|log.Lshortfile)

// Printf logs the message with the position of its caller.
func Printf(msg string, args ...any) {
	logger.Output(2, fmt.Sprintf(msg, args...))
}

const On = true
