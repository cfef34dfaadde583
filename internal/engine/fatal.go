package engine

import (
	"log"
	"os"
)

// Fatal is the single enforcement point for the agent's fail-fast policy:
// every unrecoverable condition anywhere in the engine funnels through
// here, logs, and exits 2 — mirroring worker.py's scattered os._exit(2)
// call sites but with one call site instead of many.
func Fatal(format string, args ...interface{}) {
	log.Printf(format, args...)
	os.Exit(2)
}
