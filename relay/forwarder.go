package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"gossipwatch/gossip"
)

const (
	defaultMaxAttempts     = 3
	defaultBackoffBase     = 200 * time.Millisecond
	defaultBackoffCap      = 2 * time.Second
	defaultDeliveryTimeout = 5 * time.Second
)

// ForwarderConfig bounds the delivery retry loop. Zero values select the
// documented defaults.
type ForwarderConfig struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	DeliveryTimeout time.Duration
}

func (cfg ForwarderConfig) withDefaults() ForwarderConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap < cfg.BackoffBase {
		cfg.BackoffCap = defaultBackoffCap
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	return cfg
}

// Forwarder drains the channel and delivers each record to the sink.
// Delivery is at-most-once: after the retry ceiling the record is dropped and
// counted, never requeued, since requeueing would reorder records behind it.
type Forwarder struct {
	cfg     ForwarderConfig
	channel *Channel
	sink    Sink
	logger  *slog.Logger
	metrics *relayMetrics

	delivered         atomic.Uint64
	transientFailures atomic.Uint64
	permanentFailures atomic.Uint64
}

// NewForwarder wires the delivery loop to a channel and sink.
func NewForwarder(cfg ForwarderConfig, channel *Channel, sink Sink, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		cfg:     cfg.withDefaults(),
		channel: channel,
		sink:    sink,
		logger:  logger.With(slog.String("component", "sink_forwarder")),
		metrics: newRelayMetrics(),
	}
}

// Run pops and delivers until the channel is closed and fully drained.
// Cancelling ctx does not abort the drain; per-attempt deadlines keep the
// loop from hanging on a dead sink, so the drain always terminates.
func (f *Forwarder) Run(ctx context.Context) error {
	base := context.WithoutCancel(ctx)
	for {
		rec, ok := f.channel.Pop()
		if !ok {
			return nil
		}
		f.deliver(base, rec)
	}
}

// deliver attempts one record up to the configured ceiling. Transient
// failures (unreachable, timeout) back off and retry; a rejection is final
// immediately. Either way the loop moves on — one poisoned record must never
// stall the channel.
func (f *Forwarder) deliver(ctx context.Context, rec gossip.CapturedRecord) {
	delay := f.cfg.BackoffBase
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.DeliveryTimeout)
		err := f.sink.Deliver(attemptCtx, rec)
		cancel()
		if err == nil {
			f.delivered.Add(1)
			f.metrics.forwarded.Inc()
			return
		}
		if errors.Is(err, ErrSinkRejected) {
			f.permanentFailures.Add(1)
			f.metrics.failures.WithLabelValues("permanent").Inc()
			f.logger.Warn("Sink rejected record",
				slog.String("source", string(rec.Source)),
				slog.Any("error", err))
			return
		}
		f.transientFailures.Add(1)
		f.metrics.failures.WithLabelValues("transient").Inc()
		if attempt >= f.cfg.MaxAttempts {
			f.permanentFailures.Add(1)
			f.metrics.failures.WithLabelValues("permanent").Inc()
			f.logger.Warn("Dropping record after retry ceiling",
				slog.String("source", string(rec.Source)),
				slog.Int("attempts", attempt),
				slog.Any("error", err))
			return
		}
		time.Sleep(delay)
		delay *= 2
		if delay > f.cfg.BackoffCap {
			delay = f.cfg.BackoffCap
		}
	}
}

// Counters reports delivered / transient-failure / permanent-failure totals.
func (f *Forwarder) Counters() (delivered, transient, permanent uint64) {
	return f.delivered.Load(), f.transientFailures.Load(), f.permanentFailures.Load()
}
