package gossip

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var (
	metricsInitOnce sync.Once
	sharedMetrics   *gossipMetrics
)

type gossipMetrics struct {
	peers     prometheus.Gauge
	datagrams *prometheus.CounterVec
	discarded *prometheus.CounterVec
	captured  prometheus.Counter
	joins     *prometheus.CounterVec
	pruned    prometheus.Counter

	meter            metric.Meter
	capturedCounter  metric.Int64Counter
	discardedCounter metric.Int64Counter
}

func newGossipMetrics() *gossipMetrics {
	metricsInitOnce.Do(func() {
		gm := &gossipMetrics{
			peers: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "gossipwatch_peers",
				Help: "Current number of peers in the live table.",
			}),
			datagrams: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gossipwatch_datagrams_total",
				Help: "Count of gossip datagrams by direction and message type.",
			}, []string{"direction", "type"}),
			discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gossipwatch_payloads_discarded_total",
				Help: "Count of inbound payloads discarded before forwarding, by reason.",
			}, []string{"reason"}),
			captured: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "gossipwatch_records_captured_total",
				Help: "Count of transaction/block-metadata records emitted by the capture filter.",
			}),
			joins: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gossipwatch_join_attempts_total",
				Help: "Count of entrypoint join attempts by result.",
			}, []string{"result"}),
			pruned: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "gossipwatch_peers_pruned_total",
				Help: "Count of peers evicted for exceeding the liveness timeout.",
			}),
		}
		prometheus.MustRegister(gm.peers, gm.datagrams, gm.discarded, gm.captured, gm.joins, gm.pruned)
		gm.initMeter()
		sharedMetrics = gm
	})
	return sharedMetrics
}

func (m *gossipMetrics) initMeter() {
	meter := otel.GetMeterProvider().Meter("gossipwatch/gossip")
	capturedCounter, err := meter.Int64Counter("gossipwatch.gossip.captured")
	if err != nil {
		meter = noop.NewMeterProvider().Meter("gossipwatch/gossip")
		capturedCounter, _ = meter.Int64Counter("gossipwatch.gossip.captured")
	}
	discardedCounter, _ := meter.Int64Counter("gossipwatch.gossip.discarded")
	m.meter = meter
	m.capturedCounter = capturedCounter
	m.discardedCounter = discardedCounter
}

func (m *gossipMetrics) observeDatagram(direction string, msgType byte) {
	if m == nil {
		return
	}
	m.datagrams.WithLabelValues(direction, msgTypeLabel(msgType)).Inc()
}

func (m *gossipMetrics) observeDiscard(ctx context.Context, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.discarded.WithLabelValues(reason).Add(float64(n))
	if m.discardedCounter != nil && ctx != nil {
		m.discardedCounter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *gossipMetrics) observeCaptured(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.captured.Add(float64(n))
	if m.capturedCounter != nil && ctx != nil {
		m.capturedCounter.Add(ctx, int64(n))
	}
}

func msgTypeLabel(t byte) string {
	switch t {
	case MsgTypePush:
		return "push"
	case MsgTypePullRequest:
		return "pull_request"
	case MsgTypePullResponse:
		return "pull_response"
	case MsgTypePrune:
		return "prune"
	default:
		return "unknown"
	}
}
