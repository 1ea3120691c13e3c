// Package risk is the last check before an order leaves the process. It
// never second-guesses the eligibility rules; it only blocks orders that
// could not be valid (zero quantity, selling with nothing held) and honors
// the kill switch.
package risk

import (
	"fmt"
	"log/slog"

	"github.com/Slugpotato/pi-trading-demo/internal/strategy"
)

type Context struct {
	KillSwitch bool
	HeldQty    int
}

type Gate struct{}

func (g Gate) Evaluate(intent strategy.TradeIntent, ctx Context) (strategy.TradeIntent, error) {
	if intent.Action == strategy.Hold {
		return intent, nil
	}

	slog.Info("order gate", "intent", intent.Action, "qty", intent.Qty, "held", ctx.HeldQty)

	if ctx.KillSwitch {
		slog.Info("order gate rejected", "reason", "kill_switch_enabled")
		return strategy.TradeIntent{}, fmt.Errorf("kill_switch_enabled")
	}
	if intent.Qty <= 0 {
		slog.Info("order gate rejected", "reason", "invalid_quantity", "qty", intent.Qty)
		return strategy.TradeIntent{}, fmt.Errorf("invalid_quantity")
	}
	if intent.Action == strategy.Sell && ctx.HeldQty <= 0 {
		slog.Info("order gate rejected", "reason", "no_position_to_sell")
		return strategy.TradeIntent{}, fmt.Errorf("no_position_to_sell")
	}

	slog.Info("order gate approved", "intent", intent.Action, "qty", intent.Qty, "reason", intent.Reason)
	return intent, nil
}
