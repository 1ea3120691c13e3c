package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
)

// Order statuses accepted by the Orders query.
const (
	StatusOpen = "open"
	StatusAll  = "all"
)

type OrderRequest struct {
	Symbol        string
	Qty           int
	Side          alpaca.Side
	Type          alpaca.OrderType
	TimeInForce   alpaca.TimeInForce
	ClientOrderID string
	ExtendedHours bool
	LimitPrice    *float64
	StopPrice     *float64
}

type OrderRef struct {
	ID            string
	ClientOrderID string
	Status        string
}

// Order is the slice of the broker's order record the bot cares about.
// FilledAt and FailedAt stay pointers: nil means the event never happened,
// which is distinct from a zero time.
type Order struct {
	ID             string
	Symbol         string
	Side           string
	Type           string
	SubmittedAt    time.Time
	FilledAt       *time.Time
	FailedAt       *time.Time
	FilledAvgPrice float64
}

type Position struct {
	Symbol string
	Qty    int
}

type Account struct {
	Equity      float64
	BuyingPower float64
}

type Client struct {
	client *alpaca.Client
}

func New(apiKey, apiSecret, baseURL string) *Client {
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	}
	return &Client{client: alpaca.NewClient(opts)}
}

func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderRef, error) {
	qty := decimal.NewFromInt(int64(req.Qty))
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		ClientOrderID: req.ClientOrderID,
		ExtendedHours: req.ExtendedHours,
	}
	if req.LimitPrice != nil {
		limitPrice := decimal.NewFromFloat(*req.LimitPrice)
		orderReq.LimitPrice = &limitPrice
	}
	if req.StopPrice != nil {
		stopPrice := decimal.NewFromFloat(*req.StopPrice)
		orderReq.StopPrice = &stopPrice
	}

	order, err := c.client.PlaceOrder(orderReq)
	if err != nil {
		slog.Error("place order failed", "side", req.Side, "symbol", req.Symbol, "qty", req.Qty, "type", req.Type, "error", err)
		return OrderRef{}, err
	}

	slog.Info("place order success", "order_id", order.ID, "side", req.Side, "symbol", req.Symbol, "qty", req.Qty, "type", req.Type, "limit_price", req.LimitPrice, "status", order.Status)
	return OrderRef{
		ID:            order.ID,
		ClientOrderID: order.ClientOrderID,
		Status:        string(order.Status),
	}, nil
}

// Orders lists order records filtered by status ("open" or "all"), capped at
// limit results, in the given direction ("asc" or "desc").
func (c *Client) Orders(ctx context.Context, status string, limit int, direction string) ([]Order, error) {
	req := alpaca.GetOrdersRequest{
		Status:    status,
		Limit:     limit,
		Direction: direction,
	}
	orders, err := c.client.GetOrders(req)
	if err != nil {
		slog.Error("fetch orders failed", "status", status, "error", err)
		return nil, err
	}
	slog.Info("orders fetched", "status", status, "count", len(orders))
	result := make([]Order, 0, len(orders))
	for _, order := range orders {
		mapped := Order{
			ID:          order.ID,
			Symbol:      order.Symbol,
			Side:        string(order.Side),
			Type:        string(order.Type),
			SubmittedAt: order.SubmittedAt,
			FilledAt:    order.FilledAt,
			FailedAt:    order.FailedAt,
		}
		if order.FilledAvgPrice != nil {
			mapped.FilledAvgPrice, _ = order.FilledAvgPrice.Float64()
		}
		result = append(result, mapped)
	}
	return result, nil
}

func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	positions, err := c.client.GetPositions()
	if err != nil {
		slog.Error("fetch positions failed", "error", err)
		return nil, err
	}
	slog.Info("positions fetched", "count", len(positions))
	result := make([]Position, 0, len(positions))
	for _, pos := range positions {
		result = append(result, Position{
			Symbol: pos.Symbol,
			Qty:    int(pos.Qty.IntPart()),
		})
	}
	return result, nil
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	acct, err := c.client.GetAccount()
	if err != nil {
		slog.Error("fetch account failed", "error", err)
		return Account{}, err
	}
	equity, _ := acct.Equity.Float64()
	buyingPower, _ := acct.BuyingPower.Float64()

	slog.Info("account fetched", "equity", equity, "buying_power", buyingPower)
	return Account{Equity: equity, BuyingPower: buyingPower}, nil
}

// WaitForContext sleeps for delay unless the context is cancelled first.
func WaitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
