package broker_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/aurum/internal/broker"
	"github.com/newthinker/aurum/internal/broker/mock"
	"github.com/newthinker/aurum/internal/core"
)

func listen(t *testing.T) (net.Listener, broker.BridgeConfig) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	addr := ln.Addr().(*net.TCPAddr)
	return ln, broker.BridgeConfig{
		Host:           "127.0.0.1",
		Port:           addr.Port,
		ConnectTimeout: time.Second,
		ReadTimeout:    200 * time.Millisecond,
		ReadRetries:    1,
	}
}

func TestBridge_NewsFastTrackOrder(t *testing.T) {
	ln, cfg := listen(t)
	term := mock.New(2000)
	term.Script("ORDER", "SUCCESS|T1")
	go term.Serve(ln)

	c := broker.NewBridgeClient(cfg, nil)
	res, err := c.PlaceOrder(context.Background(), broker.OrderRequest{
		Symbol: "XAUUSD", Type: core.SignalSell, Volume: 0.01, SL: 2010, TP: 1980,
	})
	require.NoError(t, err)
	assert.Equal(t, "T1", res.Ticket)
	assert.Equal(t, []string{"ORDER|XAUUSD|SELL|0.01|2010.0|1980.0"}, term.Commands())
}

func TestBridge_PositionsAndHistory(t *testing.T) {
	ln, cfg := listen(t)
	term := mock.New(2000)
	term.AddPosition("123", core.SignalBuy, 0.01, 4.5)
	term.SetDeal("99", 2015.3, 12.7, time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC))
	go term.Serve(ln)

	c := broker.NewBridgeClient(cfg, nil)
	ctx := context.Background()

	ps, err := c.Positions(ctx, "XAUUSD")
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "123", ps[0].Ticket)
	assert.Equal(t, 4.5, ps[0].Profit)

	d, err := c.Deal(ctx, "99")
	require.NoError(t, err)
	assert.Equal(t, core.TradeClosed, d.Status)
	assert.Equal(t, 2015.3, d.ClosePrice)

	_, err = c.ClosePosition(ctx, "555")
	assert.ErrorIs(t, err, core.ErrBrokerRejected)
}

func TestBridge_ConnectRefused(t *testing.T) {
	ln, cfg := listen(t)
	ln.Close()

	_, err := broker.NewBridge(cfg, nil).Do(context.Background(), "CHECK|XAUUSD|ALL")
	assert.ErrorIs(t, err, core.ErrBrokerUnavailable)
}

func TestBridge_SilentServerTimesOut(t *testing.T) {
	ln, cfg := listen(t)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			// hold the connection open without answering
			go func(c net.Conn) {
				time.Sleep(2 * time.Second)
				c.Close()
			}(conn)
		}
	}()

	start := time.Now()
	_, err := broker.NewBridge(cfg, nil).Do(context.Background(), "CHECK|XAUUSD|ALL")
	assert.ErrorIs(t, err, core.ErrBrokerUnavailable)
	// one read plus one retry at 200ms each
	assert.Less(t, time.Since(start), 1500*time.Millisecond)
}

func TestBridge_ReadsUntilClose(t *testing.T) {
	ln, cfg := listen(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 64)
		conn.Read(buf)
		conn.Write([]byte("  EMPTY\n"))
		conn.Close()
	}()

	raw, err := broker.NewBridge(cfg, nil).Do(context.Background(), "CHECK|XAUUSD|ALL")
	require.NoError(t, err)
	assert.Equal(t, "EMPTY", raw)
}

func TestBridge_EmptyResponse(t *testing.T) {
	ln, cfg := listen(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 64)
		conn.Read(buf)
		conn.Close()
	}()

	_, err := broker.NewBridge(cfg, nil).Do(context.Background(), "CLOSE|1")
	assert.True(t, errors.Is(err, core.ErrBrokerProtocol), "got %v", err)
}
