// Package portfolio answers questions about current holdings and order
// history by querying the broker. The broker is the source of truth;
// nothing here is cached across calls.
package portfolio

import (
	"context"
	"strings"

	"github.com/Slugpotato/pi-trading-demo/internal/broker"
	"github.com/Slugpotato/pi-trading-demo/internal/session"
)

// Trade sides accepted by the history queries. SideBoth matches either side.
const (
	SideBuy  = "buy"
	SideSell = "sell"
	SideBoth = "both"
)

// Broker is the query surface the inspector needs from the brokerage API.
type Broker interface {
	Positions(ctx context.Context) ([]broker.Position, error)
	Orders(ctx context.Context, status string, limit int, direction string) ([]broker.Order, error)
}

// Inspector performs no retries; broker failures propagate to the caller.
type Inspector struct {
	broker     Broker
	clock      *session.Clock
	orderLimit int
}

// NewInspector builds an inspector whose order-history scans are bounded at
// orderLimit results per query.
func NewInspector(b Broker, clock *session.Clock, orderLimit int) *Inspector {
	return &Inspector{broker: b, clock: clock, orderLimit: orderLimit}
}

// Owns reports whether the account currently holds the ticker. The match is
// case-insensitive.
func (i *Inspector) Owns(ctx context.Context, ticker string) (bool, error) {
	positions, err := i.broker.Positions(ctx)
	if err != nil {
		return false, err
	}
	for _, pos := range positions {
		if strings.EqualFold(pos.Symbol, ticker) {
			return true, nil
		}
	}
	return false, nil
}

// HasPendingTrade reports whether an open order for the ticker and side was
// submitted within the trailing day window.
func (i *Inspector) HasPendingTrade(ctx context.Context, ticker, side string, days int) (bool, error) {
	orders, err := i.broker.Orders(ctx, broker.StatusOpen, i.orderLimit, "desc")
	if err != nil {
		return false, err
	}
	for _, order := range orders {
		if !matches(order, ticker, side) {
			continue
		}
		if order.SubmittedAt.IsZero() {
			continue
		}
		if i.clock.WithinLookback(order.SubmittedAt, days) {
			return true, nil
		}
	}
	return false, nil
}

// HasCompletedTrade reports whether the ticker traded on the given side
// within the window, counting both still-open orders (by submission time)
// and non-failed orders that filled inside the window.
func (i *Inspector) HasCompletedTrade(ctx context.Context, ticker, side string, days int) (bool, error) {
	pending, err := i.HasPendingTrade(ctx, ticker, side, days)
	if err != nil {
		return false, err
	}
	if pending {
		return true, nil
	}

	orders, err := i.broker.Orders(ctx, broker.StatusAll, i.orderLimit, "desc")
	if err != nil {
		return false, err
	}
	for _, order := range orders {
		if order.FailedAt != nil {
			continue
		}
		if !matches(order, ticker, side) {
			continue
		}
		if order.FilledAt == nil {
			continue
		}
		if i.clock.WithinLookback(*order.FilledAt, days) {
			return true, nil
		}
	}
	return false, nil
}

// LastFill returns the fill price of the most recent filled buy order for
// the ticker and the quantity currently held. The newest fill wins; no
// averaging across earlier buys. When no filled buy order exists the result
// is (0, 0) even if a position is held, signalling that the purchase
// history is unknown rather than that the price was zero.
func (i *Inspector) LastFill(ctx context.Context, ticker string) (price float64, qty int, err error) {
	orders, err := i.broker.Orders(ctx, broker.StatusAll, i.orderLimit, "desc")
	if err != nil {
		return 0, 0, err
	}

	found := false
	for _, order := range orders {
		if !matches(order, ticker, SideBuy) {
			continue
		}
		if order.FilledAt == nil {
			continue
		}
		price = order.FilledAvgPrice
		found = true
		break
	}
	if !found {
		return 0, 0, nil
	}

	positions, err := i.broker.Positions(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, pos := range positions {
		if strings.EqualFold(pos.Symbol, ticker) {
			qty = pos.Qty
			break
		}
	}
	return price, qty, nil
}

func matches(order broker.Order, ticker, side string) bool {
	if !strings.EqualFold(order.Symbol, ticker) {
		return false
	}
	if strings.EqualFold(side, SideBoth) {
		return true
	}
	return strings.EqualFold(order.Side, side)
}
