package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/aurum/internal/config"
	"github.com/newthinker/aurum/internal/core"
)

// BridgeConfig holds socket settings for the terminal bridge.
type BridgeConfig struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	ReadRetries    int
	BufferSize     int
}

// BridgeConfigFrom converts the loaded broker settings.
func BridgeConfigFrom(cfg config.BrokerConfig) BridgeConfig {
	return BridgeConfig{
		Host:           cfg.Host,
		Port:           cfg.Port,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		ReadRetries:    cfg.ReadRetries,
	}
}

// Bridge is a Transport that opens one TCP connection per request.
// Connections are never pooled.
type Bridge struct {
	cfg    BridgeConfig
	logger *zap.Logger
}

// NewBridge creates a bridge transport with defaults for unset fields.
func NewBridge(cfg BridgeConfig, logger *zap.Logger) *Bridge {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 1122
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.ReadRetries <= 0 {
		cfg.ReadRetries = 3
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{cfg: cfg, logger: logger}
}

// NewBridgeClient is the usual constructor: a Client over a Bridge.
func NewBridgeClient(cfg BridgeConfig, logger *zap.Logger) *Client {
	return NewClient("bridge", NewBridge(cfg, logger), logger)
}

// Addr returns host:port.
func (b *Bridge) Addr() string {
	return net.JoinHostPort(b.cfg.Host, strconv.Itoa(b.cfg.Port))
}

// Do sends request and reads until the terminal closes the connection,
// a read returns less than the buffer size, or the deadline passes. A
// timeout before the first byte is retried up to ReadRetries times.
func (b *Bridge) Do(ctx context.Context, request string) (string, error) {
	d := net.Dialer{Timeout: b.cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", b.Addr())
	if err != nil {
		return "", core.WrapError(core.ErrBrokerUnavailable, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	conn.SetWriteDeadline(time.Now().Add(b.cfg.ReadTimeout))
	if _, err := io.WriteString(conn, request); err != nil {
		return "", core.WrapError(core.ErrBrokerUnavailable, fmt.Errorf("write: %w", err))
	}

	var (
		sb      strings.Builder
		buf     = make([]byte, b.cfg.BufferSize)
		retries int
	)
	for {
		conn.SetReadDeadline(time.Now().Add(b.cfg.ReadTimeout))
		n, err := conn.Read(buf)
		sb.Write(buf[:n])

		if err == nil && n < len(buf) {
			break
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if sb.Len() > 0 {
					break
				}
				retries++
				if retries <= b.cfg.ReadRetries {
					b.logger.Debug("bridge read timeout, retrying", zap.Int("retry", retries))
					continue
				}
			}
			return "", core.WrapError(core.ErrBrokerUnavailable, fmt.Errorf("read: %w", err))
		}
	}

	resp := strings.TrimSpace(sb.String())
	if resp == "" {
		return "", core.WrapError(core.ErrBrokerProtocol, fmt.Errorf("empty response to %q", commandName(request)))
	}
	return resp, nil
}

func commandName(request string) string {
	if i := strings.IndexByte(request, '|'); i >= 0 {
		return request[:i]
	}
	return request
}
