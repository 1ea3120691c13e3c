package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Slugpotato/pi-trading-demo/internal/broker"
	"github.com/Slugpotato/pi-trading-demo/internal/config"
	"github.com/Slugpotato/pi-trading-demo/internal/ledger"
	"github.com/Slugpotato/pi-trading-demo/internal/md"
	"github.com/Slugpotato/pi-trading-demo/internal/risk"
	"github.com/Slugpotato/pi-trading-demo/internal/session"
)

type fakeBroker struct {
	buyingPower float64
	placed      []broker.OrderRequest
	placeErr    error
	calls       *[]string
}

func (f *fakeBroker) Positions(ctx context.Context) ([]broker.Position, error) { return nil, nil }

func (f *fakeBroker) Orders(ctx context.Context, status string, limit int, direction string) ([]broker.Order, error) {
	return nil, nil
}

func (f *fakeBroker) Account(ctx context.Context) (broker.Account, error) {
	return broker.Account{BuyingPower: f.buyingPower}, nil
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderRef, error) {
	if f.calls != nil {
		*f.calls = append(*f.calls, "place_order")
	}
	if f.placeErr != nil {
		return broker.OrderRef{}, f.placeErr
	}
	f.placed = append(f.placed, req)
	return broker.OrderRef{ID: "order-1", ClientOrderID: req.ClientOrderID, Status: "accepted"}, nil
}

type fakeData struct {
	close   float64
	monthly float64
	weekly  float64
	smaCall map[md.Interval]int
}

func (f *fakeData) LatestClose(ctx context.Context, symbol string) (float64, error) {
	return f.close, nil
}

func (f *fakeData) SMA(ctx context.Context, symbol string, interval md.Interval, period int) (float64, error) {
	if f.smaCall == nil {
		f.smaCall = map[md.Interval]int{}
	}
	f.smaCall[interval]++
	if interval == md.Monthly {
		return f.monthly, nil
	}
	return f.weekly, nil
}

type fakeInspector struct {
	owns         bool
	boughtInWeek bool
	boughtToday  bool
	lastBuyPrice float64
	held         int
	err          error
}

func (f *fakeInspector) Owns(ctx context.Context, ticker string) (bool, error) {
	return f.owns, f.err
}

func (f *fakeInspector) HasCompletedTrade(ctx context.Context, ticker, side string, days int) (bool, error) {
	if days == 1 {
		return f.boughtToday, nil
	}
	return f.boughtInWeek, nil
}

func (f *fakeInspector) LastFill(ctx context.Context, ticker string) (float64, int, error) {
	return f.lastBuyPrice, f.held, nil
}

type fakeRecorder struct {
	entries []ledger.Entry
	err     error
	calls   *[]string
}

func (f *fakeRecorder) Record(entry ledger.Entry) error {
	if f.calls != nil {
		*f.calls = append(*f.calls, "record")
	}
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func testEngine(t *testing.T, cfg config.Config, b Broker, data MarketData, inspector Inspector, rec Recorder) (*Engine, string) {
	t.Helper()
	evalsPath := filepath.Join(t.TempDir(), "evals.ndjson")
	evals, err := NewEvalLogger(evalsPath, "testrun")
	require.NoError(t, err)
	t.Cleanup(func() { evals.Close() })

	clock, err := session.NewClock("UTC")
	require.NoError(t, err)
	clock = clock.WithNow(func() time.Time { return time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC) })

	return New(cfg, b, data, inspector, risk.Gate{}, rec, evals, clock), evalsPath
}

func buyConfig() config.Config {
	return config.Config{ProfitTarget: 0.01, Watchlist: []string{"NRZ"}}
}

func TestBuySubmitsLimitDayOrder(t *testing.T) {
	b := &fakeBroker{buyingPower: 1000}
	data := &fakeData{close: 300, monthly: 290, weekly: 310}
	rec := &fakeRecorder{}
	e, _ := testEngine(t, buyConfig(), b, data, &fakeInspector{}, rec)

	require.NoError(t, e.EvaluateTicker(context.Background(), "NRZ"))

	require.Len(t, b.placed, 1)
	order := b.placed[0]
	assert.Equal(t, "NRZ", order.Symbol)
	assert.Equal(t, 1, order.Qty, "half of 1000 at 300 affords one share")
	assert.Equal(t, "buy", string(order.Side))
	assert.Equal(t, "limit", string(order.Type))
	assert.Equal(t, "day", string(order.TimeInForce))
	require.NotNil(t, order.LimitPrice)
	assert.Equal(t, 300.0, *order.LimitPrice)
	assert.True(t, strings.HasPrefix(order.ClientOrderID, "testrun-"))

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "buy", rec.entries[0].Side)
	assert.Equal(t, "limit", rec.entries[0].TradeType)
}

func TestNoBuyWhenOwnedRegardlessOfSignals(t *testing.T) {
	b := &fakeBroker{buyingPower: 1000}
	data := &fakeData{close: 300, monthly: 290, weekly: 310}
	rec := &fakeRecorder{}
	// Owned, no buy today, and far below the profit target: nothing happens.
	inspector := &fakeInspector{owns: true, lastBuyPrice: 299, held: 2}
	e, _ := testEngine(t, buyConfig(), b, data, inspector, rec)

	require.NoError(t, e.EvaluateTicker(context.Background(), "NRZ"))
	assert.Empty(t, b.placed)
	assert.Empty(t, rec.entries)
}

func TestNoBuyAfterPurchaseWithinWeek(t *testing.T) {
	b := &fakeBroker{buyingPower: 1000}
	data := &fakeData{close: 300, monthly: 290, weekly: 310}
	e, _ := testEngine(t, buyConfig(), b, data, &fakeInspector{boughtInWeek: true}, &fakeRecorder{})

	require.NoError(t, e.EvaluateTicker(context.Background(), "NRZ"))
	assert.Empty(t, b.placed)
	assert.Empty(t, data.smaCall, "market data is not queried when the week gate fails")
}

func TestNoBuyWhenBroke(t *testing.T) {
	b := &fakeBroker{buyingPower: 100}
	data := &fakeData{close: 300, monthly: 290, weekly: 310}
	e, _ := testEngine(t, buyConfig(), b, data, &fakeInspector{}, &fakeRecorder{})

	require.NoError(t, e.EvaluateTicker(context.Background(), "NRZ"))
	assert.Empty(t, b.placed)
	assert.Zero(t, data.smaCall[md.Monthly], "averages are not fetched without an affordable share")
}

func TestWeeklySMAFetchedOnlyAfterMonthlyGatePasses(t *testing.T) {
	b := &fakeBroker{buyingPower: 1000}
	data := &fakeData{close: 300, monthly: 300, weekly: 310} // monthly return exactly 0
	e, _ := testEngine(t, buyConfig(), b, data, &fakeInspector{}, &fakeRecorder{})

	require.NoError(t, e.EvaluateTicker(context.Background(), "NRZ"))
	assert.Empty(t, b.placed)
	assert.Equal(t, 1, data.smaCall[md.Monthly])
	assert.Zero(t, data.smaCall[md.Weekly])
}

func TestNoSellSameDayAsPurchase(t *testing.T) {
	b := &fakeBroker{}
	data := &fakeData{close: 105}
	inspector := &fakeInspector{owns: true, boughtToday: true, lastBuyPrice: 100, held: 3}
	e, _ := testEngine(t, buyConfig(), b, data, inspector, &fakeRecorder{})

	require.NoError(t, e.EvaluateTicker(context.Background(), "NRZ"))
	assert.Empty(t, b.placed, "profit target being met must not override the same-day rule")
}

func TestSellFiresAtProfitTarget(t *testing.T) {
	b := &fakeBroker{}
	data := &fakeData{close: 105}
	inspector := &fakeInspector{owns: true, lastBuyPrice: 100, held: 3}
	rec := &fakeRecorder{}
	e, _ := testEngine(t, buyConfig(), b, data, inspector, rec)

	require.NoError(t, e.EvaluateTicker(context.Background(), "NRZ"))

	require.Len(t, b.placed, 1)
	assert.Equal(t, "sell", string(b.placed[0].Side))
	assert.Equal(t, 3, b.placed[0].Qty, "the full held quantity is sold")
	require.Len(t, rec.entries, 1)
	assert.Equal(t, "sell", rec.entries[0].Side)
}

func TestSellHoldsBelowProfitTarget(t *testing.T) {
	cfg := buyConfig()
	cfg.ProfitTarget = 0.05
	b := &fakeBroker{}
	data := &fakeData{close: 105} // change is 0.0476 < 0.05
	inspector := &fakeInspector{owns: true, lastBuyPrice: 100, held: 3}
	e, _ := testEngine(t, cfg, b, data, inspector, &fakeRecorder{})

	require.NoError(t, e.EvaluateTicker(context.Background(), "NRZ"))
	assert.Empty(t, b.placed)
}

func TestSellWithUnknownPurchaseHistoryIsGated(t *testing.T) {
	// LastFill found no filled buy: price and held both come back zero.
	// The percent change degenerates to 1.0 but the order gate rejects the
	// zero-quantity sell.
	b := &fakeBroker{}
	data := &fakeData{close: 105}
	inspector := &fakeInspector{owns: true, lastBuyPrice: 0, held: 0}
	e, evalsPath := testEngine(t, buyConfig(), b, data, inspector, &fakeRecorder{})

	require.NoError(t, e.EvaluateTicker(context.Background(), "NRZ"))
	assert.Empty(t, b.placed)

	evals, err := os.ReadFile(evalsPath)
	require.NoError(t, err)
	assert.Contains(t, string(evals), `"result":"rejected"`)
}

func TestRecordPrecedesSubmission(t *testing.T) {
	var calls []string
	b := &fakeBroker{buyingPower: 1000, calls: &calls}
	data := &fakeData{close: 300, monthly: 290, weekly: 310}
	rec := &fakeRecorder{calls: &calls}
	e, _ := testEngine(t, buyConfig(), b, data, &fakeInspector{}, rec)

	require.NoError(t, e.EvaluateTicker(context.Background(), "NRZ"))
	require.Equal(t, []string{"record", "place_order"}, calls)
}

func TestFailedSubmissionStillLeavesRecord(t *testing.T) {
	b := &fakeBroker{buyingPower: 1000, placeErr: errors.New("rate limited")}
	data := &fakeData{close: 300, monthly: 290, weekly: 310}
	rec := &fakeRecorder{}
	e, _ := testEngine(t, buyConfig(), b, data, &fakeInspector{}, rec)

	err := e.EvaluateTicker(context.Background(), "NRZ")
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, "NRZ", cycleErr.Ticker)
	assert.Equal(t, "submit_order", cycleErr.Phase)

	assert.Len(t, rec.entries, 1, "the record is not rolled back on submission failure")
}

func TestRecordFailureAbortsSubmission(t *testing.T) {
	b := &fakeBroker{buyingPower: 1000}
	data := &fakeData{close: 300, monthly: 290, weekly: 310}
	rec := &fakeRecorder{err: errors.New("disk full")}
	e, _ := testEngine(t, buyConfig(), b, data, &fakeInspector{}, rec)

	err := e.EvaluateTicker(context.Background(), "NRZ")
	require.Error(t, err)
	assert.Empty(t, b.placed, "no order without a ledger record")
}

func TestKillSwitchBlocksOrders(t *testing.T) {
	cfg := buyConfig()
	cfg.KillSwitch = true
	b := &fakeBroker{buyingPower: 1000}
	data := &fakeData{close: 300, monthly: 290, weekly: 310}
	rec := &fakeRecorder{}
	e, evalsPath := testEngine(t, cfg, b, data, &fakeInspector{}, rec)

	require.NoError(t, e.EvaluateTicker(context.Background(), "NRZ"))
	assert.Empty(t, b.placed)
	assert.Empty(t, rec.entries, "rejected intents are not recorded")

	evals, err := os.ReadFile(evalsPath)
	require.NoError(t, err)
	assert.Contains(t, string(evals), "kill_switch_enabled")
}

func TestInspectorErrorsBecomeCycleErrors(t *testing.T) {
	wantErr := errors.New("auth expired")
	e, _ := testEngine(t, buyConfig(), &fakeBroker{}, &fakeData{}, &fakeInspector{err: wantErr}, &fakeRecorder{})

	err := e.EvaluateTicker(context.Background(), "NRZ")
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, "inspect_positions", cycleErr.Phase)
	assert.ErrorIs(t, err, wantErr)
}
