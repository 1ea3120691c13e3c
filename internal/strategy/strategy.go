// Package strategy holds the pure buy/sell eligibility rules: position
// sizing from buying power, the dip-within-uptrend buy gates, and the
// profit-target sell trigger. No I/O happens here; the engine feeds in
// broker and market data and acts on the returned intent.
package strategy

import "math"

type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

type TradeIntent struct {
	Action Action
	Qty    int
	Reason string
}

// ShareCount sizes a buy from available buying power: as many shares as
// half the buying power affords, falling back to the full buying power when
// half affords none. Caps single-position exposure while still guaranteeing
// a trade attempt when funds are scarce.
func ShareCount(buyingPower, price float64) int {
	if price <= 0 {
		return 0
	}
	qty := int(buyingPower / 2 / price)
	if qty <= 0 {
		qty = int(buyingPower / price)
	}
	return qty
}

// MonthlyReturn is the distance of the current price above the trailing
// monthly average. A buy requires this to be strictly positive.
func MonthlyReturn(price, monthlySMA float64) float64 {
	return price - monthlySMA
}

// EvaluateBuy gates a buy of qty shares: the monthly trajectory must be
// strictly positive and the price strictly below the weekly average.
func EvaluateBuy(price, monthlySMA, weeklySMA float64, qty int) TradeIntent {
	if qty <= 0 {
		return TradeIntent{Action: Hold, Reason: "insufficient_buying_power"}
	}
	if MonthlyReturn(price, monthlySMA) <= 0 {
		return TradeIntent{Action: Hold, Reason: "monthly_return_not_positive"}
	}
	if price >= weeklySMA {
		return TradeIntent{Action: Hold, Reason: "price_not_below_weekly_avg"}
	}
	return TradeIntent{Action: Buy, Qty: qty, Reason: "dip_within_uptrend"}
}

// EvaluateSell fires when the rounded percent change since the last buy
// fill meets the target fraction, selling the full held quantity.
func EvaluateSell(price, lastBuyPrice, target float64, held int) TradeIntent {
	if PercentChange(price, lastBuyPrice) < target {
		return TradeIntent{Action: Hold, Reason: "below_profit_target"}
	}
	return TradeIntent{Action: Sell, Qty: held, Reason: "profit_target_met"}
}

// PercentChange is (current − bought) / current rounded to 4 decimal
// places. Rounding before the threshold comparison keeps float noise from
// triggering trades at the boundary.
func PercentChange(current, bought float64) float64 {
	return math.Round((current-bought)/current*10000) / 10000
}
