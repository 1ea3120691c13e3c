// Package engine wires the eligibility rules to the broker, the market
// data feed, the trade ledger, and the evaluation log. One ticker is fully
// evaluated and acted on at a time; the broker remains the source of truth
// for positions and order history, re-queried on every pass.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"github.com/Slugpotato/pi-trading-demo/internal/broker"
	"github.com/Slugpotato/pi-trading-demo/internal/config"
	"github.com/Slugpotato/pi-trading-demo/internal/ledger"
	"github.com/Slugpotato/pi-trading-demo/internal/md"
	"github.com/Slugpotato/pi-trading-demo/internal/portfolio"
	"github.com/Slugpotato/pi-trading-demo/internal/risk"
	"github.com/Slugpotato/pi-trading-demo/internal/session"
	"github.com/Slugpotato/pi-trading-demo/internal/strategy"
)

// Moving-average windows and lookback ranges of the buy/sell procedure.
const (
	monthlySMAPeriod = 30
	weeklySMAPeriod  = 4
	buyLookbackDays  = 7
	sameDayLookback  = 1
)

// Broker adds the mutating and account calls on top of the inspector's
// query surface.
type Broker interface {
	portfolio.Broker
	Account(ctx context.Context) (broker.Account, error)
	PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderRef, error)
}

// MarketData supplies the intraday close and trailing moving averages.
type MarketData interface {
	LatestClose(ctx context.Context, symbol string) (float64, error)
	SMA(ctx context.Context, symbol string, interval md.Interval, period int) (float64, error)
}

// Inspector is the holdings/history query surface of portfolio.Inspector.
type Inspector interface {
	Owns(ctx context.Context, ticker string) (bool, error)
	HasCompletedTrade(ctx context.Context, ticker, side string, days int) (bool, error)
	LastFill(ctx context.Context, ticker string) (float64, int, error)
}

// Recorder is the trade ledger's append operation.
type Recorder interface {
	Record(entry ledger.Entry) error
}

// CycleError carries the ticker and phase of a failed evaluation so the
// driver can log context without parsing messages.
type CycleError struct {
	Ticker string
	Phase  string
	Err    error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Ticker, e.Phase, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

type Engine struct {
	cfg       config.Config
	broker    Broker
	data      MarketData
	inspector Inspector
	gate      risk.Gate
	ledger    Recorder
	evals     *EvalLogger
	clock     *session.Clock
	runID     string
	orderSeq  uint64
}

func New(cfg config.Config, b Broker, data MarketData, inspector Inspector, gate risk.Gate, rec Recorder, evals *EvalLogger, clock *session.Clock) *Engine {
	return &Engine{
		cfg:       cfg,
		broker:    b,
		data:      data,
		inspector: inspector,
		gate:      gate,
		ledger:    rec,
		evals:     evals,
		clock:     clock,
		runID:     evals.RunID(),
	}
}

// EvaluateTicker runs one full buy-or-sell pass for the ticker. Broker and
// market data failures come back as a CycleError; negative outcomes (not
// eligible, no signal, gate rejection) are normal results, not errors.
func (e *Engine) EvaluateTicker(ctx context.Context, ticker string) error {
	owns, err := e.inspector.Owns(ctx, ticker)
	if err != nil {
		return &CycleError{Ticker: ticker, Phase: "inspect_positions", Err: err}
	}

	if !owns {
		return e.evaluateBuy(ctx, ticker)
	}
	return e.evaluateSell(ctx, ticker)
}

// evaluateBuy walks the buy gates in order, fetching data only as earlier
// gates pass: no repeat purchase within a week, affordable share count,
// positive monthly trajectory, then price below the weekly average.
func (e *Engine) evaluateBuy(ctx context.Context, ticker string) error {
	recentBuy, err := e.inspector.HasCompletedTrade(ctx, ticker, portfolio.SideBuy, buyLookbackDays)
	if err != nil {
		return &CycleError{Ticker: ticker, Phase: "inspect_orders", Err: err}
	}
	if recentBuy {
		e.logHold(ticker, 0, "bought_within_week")
		return nil
	}

	price, err := e.data.LatestClose(ctx, ticker)
	if err != nil {
		return &CycleError{Ticker: ticker, Phase: "market_data", Err: err}
	}

	account, err := e.broker.Account(ctx)
	if err != nil {
		return &CycleError{Ticker: ticker, Phase: "account", Err: err}
	}

	qty := strategy.ShareCount(account.BuyingPower, price)
	if qty <= 0 {
		e.logHold(ticker, price, "insufficient_buying_power")
		return nil
	}

	monthlySMA, err := e.data.SMA(ctx, ticker, md.Monthly, monthlySMAPeriod)
	if err != nil {
		return &CycleError{Ticker: ticker, Phase: "market_data", Err: err}
	}
	if strategy.MonthlyReturn(price, monthlySMA) <= 0 {
		e.logHold(ticker, price, "monthly_return_not_positive")
		return nil
	}

	weeklySMA, err := e.data.SMA(ctx, ticker, md.Weekly, weeklySMAPeriod)
	if err != nil {
		return &CycleError{Ticker: ticker, Phase: "market_data", Err: err}
	}

	intent := strategy.EvaluateBuy(price, monthlySMA, weeklySMA, qty)
	if intent.Action != strategy.Buy {
		e.logHold(ticker, price, intent.Reason)
		return nil
	}
	return e.submit(ctx, ticker, intent, price, 0)
}

// evaluateSell skips tickers bought earlier today, then compares the
// rounded percent change since the last buy fill against the target.
func (e *Engine) evaluateSell(ctx context.Context, ticker string) error {
	boughtToday, err := e.inspector.HasCompletedTrade(ctx, ticker, portfolio.SideBuy, sameDayLookback)
	if err != nil {
		return &CycleError{Ticker: ticker, Phase: "inspect_orders", Err: err}
	}
	if boughtToday {
		e.logHold(ticker, 0, "bought_today")
		return nil
	}

	price, err := e.data.LatestClose(ctx, ticker)
	if err != nil {
		return &CycleError{Ticker: ticker, Phase: "market_data", Err: err}
	}

	lastBuyPrice, held, err := e.inspector.LastFill(ctx, ticker)
	if err != nil {
		return &CycleError{Ticker: ticker, Phase: "inspect_orders", Err: err}
	}

	intent := strategy.EvaluateSell(price, lastBuyPrice, e.cfg.ProfitTarget, held)
	if intent.Action != strategy.Sell {
		e.logHold(ticker, price, intent.Reason)
		return nil
	}
	return e.submit(ctx, ticker, intent, price, held)
}

// submit runs the order gate, records the trade locally, and only then
// calls the broker. The ledger row precedes submission deliberately: local
// bookkeeping must reflect every attempt, including ones the broker
// rejects. A submission failure after a successful record is reported, not
// reconciled.
func (e *Engine) submit(ctx context.Context, ticker string, intent strategy.TradeIntent, price float64, held int) error {
	eval := Evaluation{
		RunID:     e.runID,
		Timestamp: e.clock.Now(),
		Symbol:    ticker,
		Intent:    intent.Action,
		Qty:       intent.Qty,
		Close:     price,
		Reason:    intent.Reason,
	}

	approved, err := e.gate.Evaluate(intent, risk.Context{KillSwitch: e.cfg.KillSwitch, HeldQty: held})
	if err != nil {
		eval.Result = "rejected"
		eval.Error = err.Error()
		e.evals.Append(eval)
		return nil
	}

	entry := ledger.Entry{
		Ticker:    ticker,
		Qty:       approved.Qty,
		Side:      sideString(approved.Action),
		TradeType: "limit",
		At:        e.clock.Now(),
		Price:     price,
	}
	if err := e.ledger.Record(entry); err != nil {
		eval.Result = "record_failed"
		eval.Error = err.Error()
		e.evals.Append(eval)
		return &CycleError{Ticker: ticker, Phase: "record_trade", Err: err}
	}

	req := broker.OrderRequest{
		Symbol:        ticker,
		Qty:           approved.Qty,
		Side:          alpacaSide(approved.Action),
		Type:          alpaca.Limit,
		TimeInForce:   alpaca.Day,
		ClientOrderID: e.nextClientOrderID(),
		LimitPrice:    &price,
	}
	ref, err := e.broker.PlaceOrder(ctx, req)
	if err != nil {
		eval.Result = "order_failed"
		eval.Error = err.Error()
		e.evals.Append(eval)
		return &CycleError{Ticker: ticker, Phase: "submit_order", Err: err}
	}

	eval.Result = "order_submitted"
	eval.OrderID = ref.ID
	eval.ClientOrderID = ref.ClientOrderID
	e.evals.Append(eval)
	return nil
}

func (e *Engine) logHold(ticker string, price float64, reason string) {
	e.evals.Append(Evaluation{
		RunID:     e.runID,
		Timestamp: e.clock.Now(),
		Symbol:    ticker,
		Intent:    strategy.Hold,
		Close:     price,
		Reason:    reason,
		Result:    "hold",
	})
}

func (e *Engine) nextClientOrderID() string {
	seq := atomic.AddUint64(&e.orderSeq, 1)
	return fmt.Sprintf("%s-%d", e.runID, seq)
}

func sideString(action strategy.Action) string {
	if action == strategy.Sell {
		return portfolio.SideSell
	}
	return portfolio.SideBuy
}

func alpacaSide(action strategy.Action) alpaca.Side {
	if action == strategy.Sell {
		return alpaca.Sell
	}
	return alpaca.Buy
}
