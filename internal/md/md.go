// Package md wraps the market data API behind the two queries the bot
// needs: the latest intraday close and a trailing simple moving average.
package md

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// Interval selects the bar width an SMA is computed over.
type Interval string

const (
	Weekly  Interval = "weekly"
	Monthly Interval = "monthly"
)

type Client struct {
	client *marketdata.Client
	now    func() time.Time
}

func New(apiKey, apiSecret string) *Client {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	return &Client{client: marketdata.NewClient(opts), now: time.Now}
}

// LatestClose returns the close of the most recent minute bar for symbol.
func (c *Client) LatestClose(ctx context.Context, symbol string) (float64, error) {
	bar, err := c.client.GetLatestBar(symbol, marketdata.GetLatestBarRequest{})
	if err != nil {
		slog.Error("fetch latest bar failed", "symbol", symbol, "error", err)
		return 0, err
	}
	if bar == nil {
		return 0, fmt.Errorf("no intraday bar for %s", symbol)
	}
	slog.Info("latest bar fetched", "symbol", symbol, "close", bar.Close)
	return bar.Close, nil
}

// SMA returns the arithmetic mean of the last period bar closes at the given
// interval. It errors when the symbol has less history than period bars.
func (c *Client) SMA(ctx context.Context, symbol string, interval Interval, period int) (float64, error) {
	frame, start, err := c.barWindow(interval, period)
	if err != nil {
		return 0, err
	}

	bars, err := c.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: frame,
		Start:     start,
	})
	if err != nil {
		slog.Error("fetch bars failed", "symbol", symbol, "interval", interval, "error", err)
		return 0, err
	}

	closes := make([]float64, 0, len(bars))
	for _, bar := range bars {
		closes = append(closes, bar.Close)
	}

	avg, err := sma(closes, period)
	if err != nil {
		return 0, fmt.Errorf("sma %s %s(%d): %w", symbol, interval, period, err)
	}
	slog.Info("sma computed", "symbol", symbol, "interval", interval, "period", period, "sma", avg)
	return avg, nil
}

// barWindow maps an interval to a bar time frame and a start time far enough
// back to cover period bars with some slack for market holidays.
func (c *Client) barWindow(interval Interval, period int) (marketdata.TimeFrame, time.Time, error) {
	now := c.now()
	switch interval {
	case Weekly:
		return marketdata.NewTimeFrame(1, marketdata.Week), now.AddDate(0, 0, -7*(period+2)), nil
	case Monthly:
		return marketdata.NewTimeFrame(1, marketdata.Month), now.AddDate(0, -(period + 2), 0), nil
	}
	return marketdata.TimeFrame{}, time.Time{}, fmt.Errorf("unsupported sma interval: %s", interval)
}
