package broker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newthinker/aurum/internal/core"
)

// FormatPrice renders a price with at least one decimal place:
// 2010 -> "2010.0", 2010.55 -> "2010.55".
func FormatPrice(v float64) string {
	return withDecimal(decimal.NewFromFloat(v).Round(5).String())
}

// FormatVolume renders a lot size rounded to two decimals with at least
// one decimal place: 0.01 -> "0.01", 1 -> "1.0".
func FormatVolume(v float64) string {
	return withDecimal(decimal.NewFromFloat(v).Round(2).String())
}

func withDecimal(s string) string {
	if !strings.Contains(s, ".") {
		return s + ".0"
	}
	return s
}

// Request encoders.

func candlesCommand(symbol string, tf, count int) string {
	return fmt.Sprintf("%s|%d|%d", symbol, tf, count)
}

func orderCommand(r OrderRequest) string {
	cmd := strings.Join([]string{
		"ORDER", r.Symbol, string(r.Type), FormatVolume(r.Volume), FormatPrice(r.SL), FormatPrice(r.TP),
	}, "|")
	if r.Type.IsPending() {
		cmd += "|" + FormatPrice(r.Price)
	}
	return cmd
}

func pointsOrderCommand(r PointsOrderRequest) string {
	return fmt.Sprintf("ORDER_PTS|%s|%s|%s|%d|%d", r.Symbol, r.Type, FormatVolume(r.Volume), r.SLPoints, r.TPPoints)
}

func checkCommand(symbol string) string { return "CHECK|" + symbol + "|ALL" }

func closeCommand(ticket string) string { return "CLOSE|" + ticket }

func deleteCommand(ticket string) string { return "DELETE|" + ticket }

func historyCommand(ticket string) string { return "HISTORY|" + ticket }

// Response decoders.

// isFail reports a FAIL answer anywhere in the response.
func isFail(raw string) bool {
	return strings.Contains(strings.ToUpper(raw), "FAIL")
}

// parseSuccess decodes SUCCESS or SUCCESS|<ticket>.
func parseSuccess(raw string) (*OrderResult, error) {
	if isFail(raw) {
		return nil, &RejectError{Raw: raw}
	}
	parts := strings.Split(raw, "|")
	if strings.ToUpper(strings.TrimSpace(parts[0])) != "SUCCESS" {
		return nil, core.WrapError(core.ErrBrokerProtocol, fmt.Errorf("unexpected response %q", raw))
	}
	res := &OrderResult{Raw: raw}
	if len(parts) > 1 {
		res.Ticket = strings.TrimSpace(parts[1])
	}
	return res, nil
}

// parseCandles decodes time,open,high,low,close,volume records separated
// by ';'. Malformed records are skipped.
func parseCandles(raw, symbol, tf string) ([]core.OHLCV, error) {
	if isFail(raw) {
		return nil, &RejectError{Raw: raw}
	}
	var bars []core.OHLCV
	for _, rec := range strings.Split(raw, ";") {
		f := strings.Split(strings.TrimSpace(rec), ",")
		if len(f) < 6 {
			continue
		}
		epoch, err := strconv.ParseInt(strings.TrimSpace(f[0]), 10, 64)
		if err != nil {
			continue
		}
		vals := make([]float64, 5)
		ok := true
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(f[i+1]), 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}
		bars = append(bars, core.OHLCV{
			Symbol:   symbol,
			Interval: tf,
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   int64(vals[4]),
			Time:     time.Unix(epoch, 0).UTC(),
		})
	}
	if len(bars) == 0 {
		return nil, core.ErrNoData
	}
	return bars, nil
}

// parsePositions decodes EMPTY or ticket,type,volume,profit records.
func parsePositions(raw string) ([]Position, error) {
	if isFail(raw) {
		return nil, &RejectError{Raw: raw}
	}
	if strings.EqualFold(strings.TrimSpace(raw), "EMPTY") || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []Position
	for _, rec := range strings.Split(raw, ";") {
		f := strings.Split(strings.TrimSpace(rec), ",")
		if len(f) < 4 {
			continue
		}
		vol, err1 := strconv.ParseFloat(strings.TrimSpace(f[2]), 64)
		profit, err2 := strconv.ParseFloat(strings.TrimSpace(f[3]), 64)
		if err1 != nil || err2 != nil {
			return nil, core.WrapError(core.ErrBrokerProtocol, fmt.Errorf("bad position record %q", rec))
		}
		out = append(out, Position{
			Ticket: strings.TrimSpace(f[0]),
			Type:   positionSide(f[1]),
			Volume: vol,
			Profit: profit,
		})
	}
	return out, nil
}

// positionSide accepts BUY/SELL text or the terminal's 0/1 codes.
func positionSide(s string) core.SignalType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "0", "BUY":
		return core.SignalBuy
	case "1", "SELL":
		return core.SignalSell
	}
	t, _ := core.ParseSignalType(s)
	return t.Side()
}

// parseDeal decodes CLOSED|price|profit|epoch or OPEN, with an optional
// leading SUCCESS| segment.
func parseDeal(ticket, raw string) (*Deal, error) {
	if isFail(raw) {
		return nil, &RejectError{Raw: raw}
	}
	parts := strings.Split(strings.TrimSpace(raw), "|")
	if strings.EqualFold(parts[0], "SUCCESS") {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return nil, core.WrapError(core.ErrBrokerProtocol, fmt.Errorf("empty history for %s", ticket))
	}

	d := &Deal{Ticket: ticket, Raw: raw}
	switch strings.ToUpper(strings.TrimSpace(parts[0])) {
	case "OPEN":
		d.Status = core.TradeOpen
		return d, nil
	case "CLOSED":
	default:
		return nil, core.WrapError(core.ErrBrokerProtocol, fmt.Errorf("unexpected history %q", raw))
	}

	if len(parts) < 3 {
		return nil, core.WrapError(core.ErrBrokerProtocol, fmt.Errorf("short history %q", raw))
	}
	price, err1 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	profit, err2 := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err1 != nil || err2 != nil {
		return nil, core.WrapError(core.ErrBrokerProtocol, fmt.Errorf("bad history %q", raw))
	}
	d.Status = core.TradeClosed
	d.ClosePrice = price
	d.Profit = profit
	if len(parts) > 3 {
		if epoch, err := strconv.ParseInt(strings.TrimSpace(parts[3]), 10, 64); err == nil {
			d.CloseTime = time.Unix(epoch, 0).UTC()
		}
	}
	return d, nil
}
