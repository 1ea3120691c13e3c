package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Slugpotato/pi-trading-demo/internal/strategy"
)

// Evaluation is one NDJSON line per ticker pass: what the rules decided and
// what happened to the order, if any.
type Evaluation struct {
	RunID         string          `json:"run_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Symbol        string          `json:"symbol"`
	Intent        strategy.Action `json:"intent"`
	Qty           int             `json:"qty,omitempty"`
	Close         float64         `json:"close,omitempty"`
	Reason        string          `json:"reason"`
	Result        string          `json:"result"`
	OrderID       string          `json:"order_id,omitempty"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Error         string          `json:"error,omitempty"`
}

type EvalLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func NewEvalLogger(path string, runID string) (*EvalLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &EvalLogger{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (l *EvalLogger) RunID() string {
	return l.runID
}

func (l *EvalLogger) Append(eval Evaluation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	payload, err := json.Marshal(eval)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal evaluation: %v\n", err)
		return
	}
	if _, err := l.writer.Write(append(payload, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write evaluation: %v\n", err)
		return
	}
	if err := l.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush evaluation log: %v\n", err)
	}
}

func (l *EvalLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}
