package relay

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsInitOnce sync.Once
	sharedMetrics   *relayMetrics
)

type relayMetrics struct {
	queueDepth prometheus.Gauge
	dropped    prometheus.Counter
	forwarded  prometheus.Counter
	failures   *prometheus.CounterVec
}

func newRelayMetrics() *relayMetrics {
	metricsInitOnce.Do(func() {
		rm := &relayMetrics{
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "gossipwatch_relay_queue_depth",
				Help: "Records currently queued in the forwarding channel.",
			}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "gossipwatch_relay_records_dropped_total",
				Help: "Records dropped by the forwarding channel under backpressure.",
			}),
			forwarded: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "gossipwatch_relay_records_forwarded_total",
				Help: "Records successfully delivered to the sink.",
			}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gossipwatch_relay_delivery_failures_total",
				Help: "Delivery failures by kind: transient attempts and permanent per-record losses.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(rm.queueDepth, rm.dropped, rm.forwarded, rm.failures)
		sharedMetrics = rm
	})
	return sharedMetrics
}
