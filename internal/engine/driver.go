package engine

import (
	"context"
	"log"

	"github.com/Slugpotato/pi-trading-demo/internal/broker"
)

// RunLoop polls the watch-list during trading hours, one ticker at a time
// with a cooldown between them, and sleeps the longer off-hours interval
// otherwise. Every cycle failure is treated as transient: it is written to
// the failure log and the loop continues. The loop only returns when the
// context is cancelled.
func (e *Engine) RunLoop(ctx context.Context, failures *FailureLog) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !e.clock.InSession(e.cfg.SessionStart, e.cfg.SessionEnd) {
			log.Printf("outside trading session (now=%s), sleeping %s", e.clock.Now().Format("Mon 15:04"), e.cfg.OffHoursWait)
			if err := broker.WaitForContext(ctx, e.cfg.OffHoursWait); err != nil {
				return err
			}
			continue
		}

		for _, ticker := range e.cfg.Watchlist {
			if !e.clock.InSession(e.cfg.SessionStart, e.cfg.SessionEnd) {
				log.Printf("session closed mid-pass, stopping at %s", ticker)
				break
			}

			log.Printf("trading session open, evaluating %s", ticker)
			if err := e.EvaluateTicker(ctx, ticker); err != nil {
				failures.Append(ticker, e.clock.Now(), err)
				log.Printf("cycle failed for %s: %v (continuing after cooldown)", ticker, err)
			}

			if err := broker.WaitForContext(ctx, e.cfg.TickerCooldown); err != nil {
				return err
			}
		}
	}
}
