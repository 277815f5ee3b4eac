// Package broker talks to the external trading terminal through its
// pipe-delimited socket protocol.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/newthinker/aurum/internal/core"
)

// Broker-specific errors.
var (
	// ErrInvalidSymbol indicates an invalid or empty symbol.
	ErrInvalidSymbol = errors.New("broker: invalid symbol")
	// ErrInvalidVolume indicates a non-positive volume.
	ErrInvalidVolume = errors.New("broker: invalid volume")
	// ErrInvalidPrice indicates a missing trigger price for a pending order.
	ErrInvalidPrice = errors.New("broker: invalid price for pending order")
	// ErrInvalidOrderType indicates an order type the terminal cannot place.
	ErrInvalidOrderType = errors.New("broker: invalid order type")
	// ErrInvalidTicket indicates an empty ticket.
	ErrInvalidTicket = errors.New("broker: invalid ticket")
)

// RejectError is a FAIL|<reason> answer from the terminal. Raw keeps the
// response verbatim for the trade log.
type RejectError struct {
	Raw string
}

func (e *RejectError) Error() string {
	return "broker rejected: " + e.Raw
}

// Is matches core.ErrBrokerRejected.
func (e *RejectError) Is(target error) bool {
	return target == core.ErrBrokerRejected
}

// OrderRequest represents a request to place a new order. Price is only
// sent for pending types (STOP/LIMIT).
type OrderRequest struct {
	Symbol string
	Type   core.SignalType
	Volume float64
	SL     float64
	TP     float64
	Price  float64
}

// Validate checks if the order request has valid required fields.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return ErrInvalidSymbol
	}
	if r.Volume <= 0 {
		return ErrInvalidVolume
	}
	if !r.Type.IsActionable() {
		return ErrInvalidOrderType
	}
	if r.Type.IsPending() && r.Price <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// PointsOrderRequest is a market order whose SL/TP are integer points
// away from the current bid/ask, computed by the terminal.
type PointsOrderRequest struct {
	Symbol   string
	Type     core.SignalType
	Volume   float64
	SLPoints int
	TPPoints int
}

// Validate checks if the request has valid required fields.
func (r PointsOrderRequest) Validate() error {
	if r.Symbol == "" {
		return ErrInvalidSymbol
	}
	if r.Volume <= 0 {
		return ErrInvalidVolume
	}
	if r.Type != core.SignalBuy && r.Type != core.SignalSell {
		return ErrInvalidOrderType
	}
	return nil
}

// OrderResult is a confirmed order.
type OrderResult struct {
	Ticket string
	Raw    string
}

// Position is one live position as reported by CHECK.
type Position struct {
	Ticket string
	Type   core.SignalType // BUY or SELL
	Volume float64
	Profit float64
}

// Deal is the history record of a ticket.
type Deal struct {
	Ticket     string
	Status     core.TradeStatus
	ClosePrice float64
	Profit     float64
	CloseTime  time.Time // UTC, zero when still open
	Raw        string
}

// Broker defines the terminal operations the pipeline relies on.
type Broker interface {
	// Name returns the broker identifier.
	Name() string

	// Candles returns oldest-first bars. Times are UTC.
	Candles(ctx context.Context, symbol, timeframe string, count int) ([]core.OHLCV, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	PlacePointsOrder(ctx context.Context, req PointsOrderRequest) (*OrderResult, error)

	Positions(ctx context.Context, symbol string) ([]Position, error)
	ClosePosition(ctx context.Context, ticket string) (*OrderResult, error)
	DeleteOrder(ctx context.Context, ticket string) (*OrderResult, error)

	// Deal looks up a ticket in the terminal's history.
	Deal(ctx context.Context, ticket string) (*Deal, error)
}

// Transport carries one request and returns the raw response.
type Transport interface {
	Do(ctx context.Context, request string) (string, error)
}
