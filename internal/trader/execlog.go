package trader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/newthinker/aurum/internal/broker"
	"github.com/newthinker/aurum/internal/core"
)

// Entry is one line of the execution log.
type Entry struct {
	Time   time.Time
	Mode   string
	Symbol string
	Type   core.SignalType
	Volume float64
	Price  float64
	SL     float64
	TP     float64
	Result string
	Ticket string
	Raw    string
}

// Line renders the entry as
// timestamp | mode | symbol | type | volume | price | SL | TP | RESULT | ticket | raw_response.
func (e Entry) Line() string {
	raw := strings.NewReplacer("\r", " ", "\n", " ").Replace(e.Raw)
	return strings.Join([]string{
		core.FormatUTC(e.Time),
		e.Mode,
		e.Symbol,
		string(e.Type),
		broker.FormatVolume(e.Volume),
		broker.FormatPrice(e.Price),
		broker.FormatPrice(e.SL),
		broker.FormatPrice(e.TP),
		e.Result,
		e.Ticket,
		raw,
	}, " | ")
}

// ExecLog appends order attempts to a dedicated sink. It is a zap logger of
// its own whose encoder emits the bare message, so every record is exactly
// one Entry.Line. It is safe for concurrent use.
type ExecLog struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// NewExecLog appends to path, creating the file and its directory on the
// first write.
func NewExecLog(path string) *ExecLog {
	return &ExecLog{path: path}
}

// NewExecLogWriter writes to w instead of a file.
func NewExecLogWriter(w io.Writer) *ExecLog {
	return &ExecLog{log: newLineLogger(zapcore.AddSync(w))}
}

func newLineLogger(ws zapcore.WriteSyncer) *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey: "msg",
		LineEnding: zapcore.DefaultLineEnding,
	})
	return zap.New(zapcore.NewCore(enc, zapcore.Lock(ws), zapcore.InfoLevel))
}

// logger opens the file sink on first use. A nil logger with a nil error
// means the log is disabled.
func (l *ExecLog) logger() (*zap.Logger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.log != nil || l.path == "" {
		return l.log, nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("creating trade log dir: %w", err)
	}
	ws, _, err := zap.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("opening trade log: %w", err)
	}
	l.log = newLineLogger(ws)
	return l.log, nil
}

// Record appends one entry.
func (l *ExecLog) Record(e Entry) error {
	if l == nil {
		return nil
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	log, err := l.logger()
	if err != nil || log == nil {
		return err
	}
	log.Info(e.Line())
	return nil
}

// Sync flushes the sink.
func (l *ExecLog) Sync() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	log := l.log
	l.mu.Unlock()
	if log == nil {
		return nil
	}
	return log.Sync()
}
