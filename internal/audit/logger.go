package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink is the audit contract the agent core depends on. Writes are
// best-effort: a Sink must never return an error to the caller, and a
// slow or failing sink must never block or fail the agent turn.
type Sink interface {
	LogQuery(ctx context.Context, details QueryDetails)
	LogSchemaChange(ctx context.Context, details SchemaChangeDetails)
	LogSafetyViolation(ctx context.Context, details SafetyViolationDetails)
	LogConfirmationRequest(ctx context.Context, details ConfirmationRequestDetails)
	Close() error
}

// redactPattern matches the mandated sensitive-value substrings
// (password=, secret=, token=, api_key=, auth=), case-insensitive, up to
// the next whitespace, comma, or ampersand.
var redactPattern = regexp.MustCompile(`(?i)(password|secret|token|api_key|auth)=[^\s,&]*`)

func redact(s string) string {
	if s == "" {
		return s
	}
	return redactPattern.ReplaceAllString(s, "$1=[REDACTED]")
}

// Logger is the concrete Sink implementation: async buffered writes to a
// slog handler, using a channel buffer and a ticker-flushed writeLoop,
// narrowed to this domain's four event kinds.
type Logger struct {
	config  Config
	output  io.WriteCloser
	slogger *slog.Logger
	buffer  chan *Event
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewLogger creates a new audit logger. A disabled config returns a
// no-op Logger.
func NewLogger(config Config) (*Logger, error) {
	if !config.Enabled {
		return &Logger{config: config}, nil
	}
	if config.BufferSize == 0 {
		config.BufferSize = 1000
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = 5 * time.Second
	}

	var output io.WriteCloser
	switch {
	case config.Output == "stdout" || config.Output == "":
		output = os.Stdout
	case config.Output == "stderr":
		output = os.Stderr
	case strings.HasPrefix(config.Output, "file:"):
		path := strings.TrimPrefix(config.Output, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log file: %w", err)
		}
		output = f
	default:
		return nil, fmt.Errorf("unsupported audit output: %s", config.Output)
	}

	var handler slog.Handler
	if config.Format == FormatText {
		handler = slog.NewTextHandler(output, nil)
	} else {
		handler = slog.NewJSONHandler(output, nil)
	}

	l := &Logger{
		config:  config,
		output:  output,
		slogger: slog.New(handler).With("component", "audit"),
		buffer:  make(chan *Event, config.BufferSize),
		done:    make(chan struct{}),
	}

	l.wg.Add(1)
	go l.writeLoop()
	return l, nil
}

// Close flushes remaining events and closes the logger.
func (l *Logger) Close() error {
	if !l.config.Enabled || l.done == nil {
		return nil
	}
	close(l.done)
	l.wg.Wait()
	if l.output != os.Stdout && l.output != os.Stderr {
		return l.output.Close()
	}
	return nil
}

func (l *Logger) log(event *Event) {
	if !l.config.Enabled {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case l.buffer <- event:
	default:
		// Buffer full: write synchronously rather than drop the event.
		l.writeEvent(event)
	}
}

// LogQuery records a Query event. SQL is redacted before it reaches the sink.
func (l *Logger) LogQuery(ctx context.Context, details QueryDetails) {
	details.SQL = redact(details.SQL)
	l.log(&Event{Type: EventQuery, Level: levelFor(details.Success), Query: &details})
}

// LogSchemaChange records a SchemaChange event.
func (l *Logger) LogSchemaChange(ctx context.Context, details SchemaChangeDetails) {
	details.SQL = redact(details.SQL)
	l.log(&Event{Type: EventSchemaChange, Level: LevelInfo, SchemaChange: &details})
}

// LogSafetyViolation records a SafetyViolation event.
func (l *Logger) LogSafetyViolation(ctx context.Context, details SafetyViolationDetails) {
	details.SQL = redact(details.SQL)
	details.Reason = redact(details.Reason)
	l.log(&Event{Type: EventSafetyViolation, Level: LevelWarn, SafetyViolation: &details})
}

// LogConfirmationRequest records a ConfirmationRequest event.
func (l *Logger) LogConfirmationRequest(ctx context.Context, details ConfirmationRequestDetails) {
	details.SQL = redact(details.SQL)
	l.log(&Event{Type: EventConfirmationRequest, Level: LevelInfo, ConfirmationRequest: &details})
}

func levelFor(success bool) Level {
	if success {
		return LevelInfo
	}
	return LevelWarn
}

func (l *Logger) writeLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-l.buffer:
			l.writeEvent(event)
		case <-ticker.C:
			l.flushBuffer()
		case <-l.done:
			l.flushBuffer()
			return
		}
	}
}

func (l *Logger) flushBuffer() {
	for {
		select {
		case event := <-l.buffer:
			l.writeEvent(event)
		default:
			return
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	attrs := []any{
		"audit_id", event.ID,
		"audit_type", event.Type,
		"timestamp", event.Timestamp.Format(time.RFC3339Nano),
	}
	switch {
	case event.Query != nil:
		attrs = append(attrs, "user", event.Query.User, "db", event.Query.DB,
			"sql", event.Query.SQL, "success", event.Query.Success,
			"duration_ms", event.Query.DurationMS)
		if event.Query.Rows != nil {
			attrs = append(attrs, "rows", *event.Query.Rows)
		}
	case event.SchemaChange != nil:
		attrs = append(attrs, "user", event.SchemaChange.User, "db", event.SchemaChange.DB,
			"op", event.SchemaChange.Op, "sql", event.SchemaChange.SQL,
			"approved", event.SchemaChange.Approved)
	case event.SafetyViolation != nil:
		attrs = append(attrs, "user", event.SafetyViolation.User, "sql", event.SafetyViolation.SQL,
			"reason", event.SafetyViolation.Reason, "level", event.SafetyViolation.Level)
	case event.ConfirmationRequest != nil:
		attrs = append(attrs, "confirmation_id", event.ConfirmationRequest.ID,
			"operation", event.ConfirmationRequest.Operation, "sql", event.ConfirmationRequest.SQL,
			"tier", event.ConfirmationRequest.Tier, "resolved", event.ConfirmationRequest.Resolved)
	}

	switch event.Level {
	case LevelWarn:
		l.slogger.Warn("audit", attrs...)
	case LevelError:
		l.slogger.Error("audit", attrs...)
	default:
		l.slogger.Info("audit", attrs...)
	}
}

// NoopSink discards every event. Used when audit logging is disabled.
type NoopSink struct{}

func (NoopSink) LogQuery(context.Context, QueryDetails)                           {}
func (NoopSink) LogSchemaChange(context.Context, SchemaChangeDetails)             {}
func (NoopSink) LogSafetyViolation(context.Context, SafetyViolationDetails)       {}
func (NoopSink) LogConfirmationRequest(context.Context, ConfirmationRequestDetails) {}
func (NoopSink) Close() error                                                      { return nil }

var _ Sink = (*Logger)(nil)
var _ Sink = NoopSink{}
