package engine

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

// FailureLog is the flat append-only file the driver writes whenever a
// cycle fails: ticker context, timestamp, the error's type and message,
// and a stack trace. Best effort; a broken failure log must never take the
// loop down, so write errors are only logged.
type FailureLog struct {
	path string
	mu   sync.Mutex
}

func NewFailureLog(path string) *FailureLog {
	return &FailureLog{path: path}
}

func (f *FailureLog) Append(ticker string, now time.Time, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, openErr := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if openErr != nil {
		slog.Error("failure log open failed", "path", f.path, "error", openErr)
		return
	}
	defer file.Close()

	_, writeErr := fmt.Fprintf(file, "\n[%s] ticker=%s\nerror_type=%T\nerror=%v\nstack:\n%s\n",
		now.Format(time.RFC3339), ticker, err, err, debug.Stack())
	if writeErr != nil {
		slog.Error("failure log write failed", "path", f.path, "error", writeErr)
	}
}
