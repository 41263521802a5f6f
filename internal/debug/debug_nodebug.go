//go:build !debug

package debug

func Printf(msg string, args ...any) {}

// On tells whether tracing is compiled in.  Calls to Printf should be
// guarded by it so that their arguments are not evaluated otherwise.
const On = false
