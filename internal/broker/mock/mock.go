// Package mock provides an in-memory trading terminal that speaks the
// bridge protocol.
package mock

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/aurum/internal/broker"
	"github.com/newthinker/aurum/internal/core"
)

type position struct {
	ticket string
	side   string
	volume string
	profit float64
}

// Terminal is an in-memory broker.Transport. Scripted responses take
// precedence over the simulated book.
type Terminal struct {
	mu sync.Mutex

	price      float64
	nextTicket int
	positions  map[string]*position
	pending    map[string]string // ticket -> raw ORDER command
	deals      map[string]string // ticket -> raw HISTORY response
	candles    []core.OHLCV
	scripts    map[string][]string
	commands   []string
	now        func() time.Time
}

// New creates a terminal quoting price. The first ticket is 1001.
func New(price float64) *Terminal {
	return &Terminal{
		price:      price,
		nextTicket: 1000,
		positions:  make(map[string]*position),
		pending:    make(map[string]string),
		deals:      make(map[string]string),
		scripts:    make(map[string][]string),
		now:        time.Now,
	}
}

// Broker returns a broker.Client backed by this terminal.
func (t *Terminal) Broker() *broker.Client {
	return broker.NewClient("mock", t, nil)
}

// SetClock replaces the clock used for close times.
func (t *Terminal) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// SetPrice changes the simulated quote.
func (t *Terminal) SetPrice(p float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.price = p
}

// SetCandles replaces the bars served for history requests.
func (t *Terminal) SetCandles(bars []core.OHLCV) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.candles = append([]core.OHLCV(nil), bars...)
}

// AddPosition seeds an open position.
func (t *Terminal) AddPosition(ticket string, side core.SignalType, volume, profit float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[ticket] = &position{ticket: ticket, side: string(side), volume: broker.FormatVolume(volume), profit: profit}
}

// RemovePosition drops a position without recording a deal, as when it
// is closed outside the pipeline.
func (t *Terminal) RemovePosition(ticket string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.positions, ticket)
}

// SetDeal records a closed deal for ticket.
func (t *Terminal) SetDeal(ticket string, closePrice, profit float64, closeTime time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deals[ticket] = fmt.Sprintf("CLOSED|%s|%s|%d", broker.FormatPrice(closePrice), broker.FormatPrice(profit), closeTime.Unix())
}

// Script queues raw responses for a command name such as "ORDER" or
// "CLOSE". Each call to that command pops one.
func (t *Terminal) Script(command string, responses ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scripts[command] = append(t.scripts[command], responses...)
}

// Commands returns every request received, in order.
func (t *Terminal) Commands() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.commands...)
}

// Pending returns tickets of pending orders, sorted.
func (t *Terminal) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.pending))
	for k := range t.pending {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Fill converts a pending order into an open position.
func (t *Terminal) Fill(ticket string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	raw, ok := t.pending[ticket]
	if !ok {
		return false
	}
	delete(t.pending, ticket)
	parts := strings.Split(raw, "|")
	t.positions[ticket] = &position{ticket: ticket, side: string(core.SignalType(parts[2]).Side()), volume: parts[3]}
	return true
}

// Do implements broker.Transport.
func (t *Terminal) Do(ctx context.Context, request string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.commands = append(t.commands, request)
	parts := strings.Split(strings.TrimSpace(request), "|")
	cmd := parts[0]

	if queued := t.scripts[cmd]; len(queued) > 0 {
		t.scripts[cmd] = queued[1:]
		return queued[0], nil
	}

	switch cmd {
	case "ORDER", "ORDER_PTS":
		return t.order(parts), nil
	case "CHECK":
		return t.check(), nil
	case "CLOSE":
		return t.close(parts), nil
	case "DELETE":
		return t.delete(parts), nil
	case "HISTORY":
		return t.history(parts), nil
	}
	if len(parts) == 3 {
		return t.series(parts), nil
	}
	return "FAIL|unknown command", nil
}

func (t *Terminal) ticket() string {
	t.nextTicket++
	return strconv.Itoa(t.nextTicket)
}

func (t *Terminal) order(parts []string) string {
	if len(parts) < 6 {
		return "FAIL|malformed order"
	}
	typ := core.SignalType(parts[2])
	if !typ.IsActionable() {
		return "FAIL|invalid type"
	}
	ticket := t.ticket()
	if typ.IsPending() {
		t.pending[ticket] = strings.Join(parts, "|")
		return "SUCCESS|" + ticket
	}
	t.positions[ticket] = &position{ticket: ticket, side: string(typ), volume: parts[3]}
	return "SUCCESS|" + ticket
}

func (t *Terminal) check() string {
	if len(t.positions) == 0 {
		return "EMPTY"
	}
	tickets := make([]string, 0, len(t.positions))
	for k := range t.positions {
		tickets = append(tickets, k)
	}
	sort.Strings(tickets)
	recs := make([]string, len(tickets))
	for i, k := range tickets {
		p := t.positions[k]
		recs[i] = fmt.Sprintf("%s,%s,%s,%s", p.ticket, p.side, p.volume, broker.FormatPrice(p.profit))
	}
	return strings.Join(recs, ";")
}

func (t *Terminal) close(parts []string) string {
	if len(parts) < 2 {
		return "FAIL|malformed close"
	}
	p, ok := t.positions[parts[1]]
	if !ok {
		return "FAIL|position not found"
	}
	delete(t.positions, p.ticket)
	t.deals[p.ticket] = fmt.Sprintf("CLOSED|%s|%s|%d",
		broker.FormatPrice(t.price), broker.FormatPrice(p.profit), t.now().Unix())
	return "SUCCESS|" + p.ticket
}

func (t *Terminal) delete(parts []string) string {
	if len(parts) < 2 {
		return "FAIL|malformed delete"
	}
	if _, ok := t.pending[parts[1]]; !ok {
		return "FAIL|order not found"
	}
	delete(t.pending, parts[1])
	return "SUCCESS"
}

func (t *Terminal) history(parts []string) string {
	if len(parts) < 2 {
		return "FAIL|malformed history"
	}
	if d, ok := t.deals[parts[1]]; ok {
		return d
	}
	if _, ok := t.positions[parts[1]]; ok {
		return "OPEN"
	}
	return "FAIL|ticket not found"
}

// series answers SYMBOL|TF|COUNT with stored candles, or flat bars at
// the current price when none are set.
func (t *Terminal) series(parts []string) string {
	count, err := strconv.Atoi(parts[2])
	if err != nil || count <= 0 {
		return "FAIL|bad count"
	}
	bars := t.candles
	if len(bars) == 0 {
		start := t.now().UTC().Truncate(time.Minute).Add(-time.Duration(count) * time.Minute)
		for i := 0; i < count; i++ {
			bars = append(bars, core.OHLCV{
				Open: t.price, High: t.price, Low: t.price, Close: t.price, Volume: 100,
				Time: start.Add(time.Duration(i) * time.Minute),
			})
		}
	}
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	recs := make([]string, len(bars))
	for i, b := range bars {
		recs[i] = fmt.Sprintf("%d,%s,%s,%s,%s,%d", b.Time.Unix(),
			broker.FormatPrice(b.Open), broker.FormatPrice(b.High), broker.FormatPrice(b.Low), broker.FormatPrice(b.Close), b.Volume)
	}
	return strings.Join(recs, ";")
}

// Serve answers bridge connections on ln until it is closed: one request
// per connection, then the connection is closed.
func (t *Terminal) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go func(c net.Conn) {
			defer c.Close()
			c.SetDeadline(time.Now().Add(5 * time.Second))
			buf := make([]byte, 4096)
			n, err := c.Read(buf)
			if err != nil {
				return
			}
			resp, err := t.Do(context.Background(), string(buf[:n]))
			if err != nil {
				return
			}
			c.Write([]byte(resp))
		}(conn)
	}
}
