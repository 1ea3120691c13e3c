// Package ledger is the local append-only record of submitted trades. Every
// record lands in two sinks: a sqlite table and a flat human-readable text
// mirror carrying the same fields in the same order. The ledger is written
// before the order is submitted to the broker, so a row means a submission
// was attempted, not that it succeeded. No reads, updates, or deletes.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS record_trades (
	stock_ticker TEXT,
	quantity_traded INT,
	side TEXT,
	trade_type TEXT,
	date TEXT,
	price TEXT
);
`

const insertTrade = `
INSERT INTO record_trades (stock_ticker, quantity_traded, side, trade_type, date, price)
VALUES (?, ?, ?, ?, ?, ?)`

type Entry struct {
	Ticker    string
	Qty       int
	Side      string
	TradeType string
	At        time.Time
	Price     float64
}

type Ledger struct {
	db         *sql.DB
	mirrorPath string
}

// Open opens (creating if absent) the sqlite store at dbPath and remembers
// the mirror file path. The mirror file itself is created on first record.
func Open(dbPath, mirrorPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open trade db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create record_trades table: %w", err)
	}
	return &Ledger{db: db, mirrorPath: mirrorPath}, nil
}

// Record appends the trade to the sqlite table and then to the text mirror.
// A failure in either sink surfaces as an error; a partial write (row
// inserted, mirror failed) is reported, never silently swallowed or rolled
// back.
func (l *Ledger) Record(e Entry) error {
	_, err := l.db.Exec(insertTrade,
		e.Ticker, e.Qty, e.Side, e.TradeType, e.At.Format(time.RFC3339), formatPrice(e.Price))
	if err != nil {
		return fmt.Errorf("insert trade row: %w", err)
	}
	if err := l.mirror(e); err != nil {
		return fmt.Errorf("mirror trade row: %w", err)
	}
	return nil
}

func (l *Ledger) mirror(e Entry) error {
	f, err := os.OpenFile(l.mirrorPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "recorded trade: stock_ticker=%s quantity_traded=%d side=%s trade_type=%s date=%s price=%s\n\n",
		e.Ticker, e.Qty, e.Side, e.TradeType, e.At.Format(time.RFC3339), formatPrice(e.Price))
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}
