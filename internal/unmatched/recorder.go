// Package unmatched records messages that no rule answered. Records are
// queued and appended in the background so a slow or failing log target
// never delays a reply.
package unmatched

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"keyword_relay/internal/metrics"
)

const (
	DefaultQueueSize     = 256
	DefaultAppendTimeout = 10 * time.Second
)

// Entry is one log record.
type Entry struct {
	TableID  string
	SenderID string
	Text     string
	Matched  bool
	At       time.Time
}

// Row renders the entry as a log table row: timestamp, sender, text,
// matched flag.
func (e Entry) Row() []string {
	matched := "FALSE"
	if e.Matched {
		matched = "TRUE"
	}
	return []string{e.At.Format(time.RFC3339), e.SenderID, e.Text, matched}
}

// Appender writes an entry to the table's log.
type Appender interface {
	AppendEntry(ctx context.Context, e Entry) error
}

// Recorder queues entries for a single background writer.
type Recorder struct {
	appender Appender
	queue    chan Entry
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	startOnce sync.Once
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// Config holds the Recorder settings. Zero values take the defaults.
type Config struct {
	QueueSize     int
	AppendTimeout time.Duration
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

func NewRecorder(appender Appender, cfg Config) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = DefaultAppendTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Recorder{
		appender: appender,
		queue:    make(chan Entry, cfg.QueueSize),
		timeout:  cfg.AppendTimeout,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Record queues e without blocking. When the queue is full or the recorder
// is closed the entry is dropped and a warning is logged.
func (r *Recorder) Record(e Entry) {
	if e.At.IsZero() {
		e.At = r.now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.drop(e, "recorder closed")
		return
	}

	select {
	case r.queue <- e:
	default:
		r.drop(e, "queue full")
	}
}

func (r *Recorder) drop(e Entry, reason string) {
	r.metrics.LogAppend("dropped")
	r.logger.Warn("Dropping unmatched log entry",
		slog.String("reason", reason),
		slog.String("table", e.TableID),
		slog.String("sender", e.SenderID))
}

// Start launches the writer. Appends use contexts derived from ctx.
func (r *Recorder) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.run(context.WithoutCancel(ctx))
	})
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)
	for e := range r.queue {
		r.append(ctx, e)
	}
}

func (r *Recorder) append(ctx context.Context, e Entry) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.appender.AppendEntry(ctx, e); err != nil {
		r.metrics.LogAppend("error")
		r.logger.Error("Failed to append unmatched log entry",
			slog.String("table", e.TableID),
			slog.String("sender", e.SenderID),
			slog.Any("error", err))
		return
	}
	r.metrics.LogAppend("ok")
}

// Close stops accepting entries and waits until the queued ones are
// written or ctx is done.
func (r *Recorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})

	// Start was never called; nothing will drain the queue.
	r.startOnce.Do(func() { close(r.done) })

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
