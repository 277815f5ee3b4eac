package broker

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/core"
)

// Client implements Broker by encoding each operation over a Transport.
type Client struct {
	name      string
	transport Transport
	logger    *zap.Logger
}

// NewClient creates a Client named name.
func NewClient(name string, t Transport, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{name: name, transport: t, logger: logger}
}

// Name returns the broker identifier.
func (c *Client) Name() string {
	return c.name
}

func (c *Client) do(ctx context.Context, req string) (string, error) {
	raw, err := c.transport.Do(ctx, req)
	if err != nil {
		c.logger.Warn("broker request failed", zap.String("request", req), zap.Error(err))
		return "", err
	}
	c.logger.Debug("broker response", zap.String("request", req), zap.String("response", raw))
	return raw, nil
}

// Candles returns oldest-first bars.
func (c *Client) Candles(ctx context.Context, symbol, timeframe string, count int) ([]core.OHLCV, error) {
	code, err := TimeframeCode(timeframe)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 100
	}
	raw, err := c.do(ctx, candlesCommand(symbol, code, count))
	if err != nil {
		return nil, err
	}
	return parseCandles(raw, symbol, strings.ToUpper(timeframe))
}

// PlaceOrder sends a market or pending order.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	raw, err := c.do(ctx, orderCommand(req))
	if err != nil {
		return nil, err
	}
	return parseSuccess(raw)
}

// PlacePointsOrder sends a market order with SL/TP in points.
func (c *Client) PlacePointsOrder(ctx context.Context, req PointsOrderRequest) (*OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	raw, err := c.do(ctx, pointsOrderCommand(req))
	if err != nil {
		return nil, err
	}
	return parseSuccess(raw)
}

// Positions lists open positions for symbol.
func (c *Client) Positions(ctx context.Context, symbol string) ([]Position, error) {
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	raw, err := c.do(ctx, checkCommand(symbol))
	if err != nil {
		return nil, err
	}
	return parsePositions(raw)
}

// ClosePosition closes an open position.
func (c *Client) ClosePosition(ctx context.Context, ticket string) (*OrderResult, error) {
	return c.ticketCommand(ctx, closeCommand, ticket)
}

// DeleteOrder cancels a pending order.
func (c *Client) DeleteOrder(ctx context.Context, ticket string) (*OrderResult, error) {
	return c.ticketCommand(ctx, deleteCommand, ticket)
}

func (c *Client) ticketCommand(ctx context.Context, enc func(string) string, ticket string) (*OrderResult, error) {
	if strings.TrimSpace(ticket) == "" {
		return nil, ErrInvalidTicket
	}
	raw, err := c.do(ctx, enc(ticket))
	if err != nil {
		return nil, err
	}
	res, err := parseSuccess(raw)
	if err != nil {
		return nil, err
	}
	if res.Ticket == "" {
		res.Ticket = ticket
	}
	return res, nil
}

// Deal looks up a ticket in the terminal's history.
func (c *Client) Deal(ctx context.Context, ticket string) (*Deal, error) {
	if strings.TrimSpace(ticket) == "" {
		return nil, ErrInvalidTicket
	}
	raw, err := c.do(ctx, historyCommand(ticket))
	if err != nil {
		return nil, err
	}
	d, err := parseDeal(ticket, raw)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", ticket, err)
	}
	return d, nil
}
