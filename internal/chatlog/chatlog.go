// Package chatlog is the append-only audit trail of delivered chat messages.
//
// Each entry is one line:
//
//	<timestamp> [<username>]: <text>
//
// The server never reads the log back. Write failures go to the operator
// logger and never reach the chat stream.
package chatlog

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/andy6609/chat-relay/internal/config"
)

// TimeLayout is the timestamp format of every entry.
const TimeLayout = time.UnixDate

var WriteErrors = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "chat_log_write_errors_total",
	Help: "Audit log appends that failed to write",
})

func init() {
	prometheus.MustRegister(WriteErrors)
}

type Log struct {
	mu     sync.Mutex
	w      io.Writer
	now    func() time.Time
	logger *slog.Logger
}

// New returns a Log appending to w. A nil w discards entries.
func New(w io.Writer, logger *slog.Logger) *Log {
	if w == nil {
		w = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{w: w, now: time.Now, logger: logger}
}

// Open returns a Log backed by a size-rotated file. An empty path yields a
// Log that discards everything.
func Open(cfg config.ChatLog, logger *slog.Logger) *Log {
	if cfg.Path == "" {
		return New(io.Discard, logger)
	}
	return New(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, logger)
}

// Append writes one entry. Concurrent calls never interleave within a line.
func (l *Log) Append(username, text string) {
	// Embedded newlines would split an entry across lines.
	text = strings.NewReplacer("\r", " ", "\n", " ").Replace(text)

	l.mu.Lock()
	defer l.mu.Unlock()

	line := l.now().Format(TimeLayout) + " [" + username + "]: " + text + "\n"
	if _, err := io.WriteString(l.w, line); err != nil {
		WriteErrors.Inc()
		l.logger.Error("chat log write failed", "username", username, "error", err)
	}
}

// Close releases the underlying sink if it is closable.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
