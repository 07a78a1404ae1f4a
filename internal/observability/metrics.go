package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "qsomap"

// Metrics holds the Prometheus counters, histograms, and gauges for the contact pipeline.
type Metrics struct {
	// Ingestion metrics.
	DatagramsReceived  prometheus.Counter
	DatagramsMalformed prometheus.Counter
	ContactsQueued     prometheus.Counter
	QueueDepth         prometheus.Gauge

	// Enrichment metrics.
	EnricherRunning     prometheus.Gauge
	LookupRequests      *prometheus.CounterVec // labels: outcome={success,remote,decode,transport,timeout,unknown}
	LookupDuration      prometheus.Histogram
	LookupCache         *prometheus.CounterVec // labels: result={hit,miss}
	CircuitBreakerState prometheus.Gauge
	UnknownLocations    prometheus.Counter
	ContactsPublished   prometheus.Counter

	// Fan-out metrics.
	HubSubscribers prometheus.Gauge
	HubDropped     prometheus.Counter
	KafkaMirrored  prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		DatagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Total datagrams read from the ingestion socket.",
		}),
		DatagramsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_malformed_total",
			Help:      "Total datagrams discarded because they did not decode to a contact.",
		}),
		ContactsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_queued_total",
			Help:      "Total contacts pushed to the ingestion queue.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingestion_queue_depth",
			Help:      "Contacts waiting for enrichment.",
		}),
		EnricherRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enricher_running",
			Help:      "1 when the enricher is active, 0 when stopped.",
		}),
		LookupRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_requests_total",
			Help:      "Callsign lookups by outcome.",
		}, []string{"outcome"}),
		LookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "Callsign lookup duration in seconds, including cache hits.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		LookupCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_total",
			Help:      "Callsign cache lookups by result.",
		}, []string{"result"}),
		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lookup_circuit_breaker_state",
			Help:      "Directory circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
		UnknownLocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_locations_total",
			Help:      "Contacts published with the (0, 0) unknown-location sentinel.",
		}),
		ContactsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_published_total",
			Help:      "Total enriched contacts published to the hub.",
		}),
		HubSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_subscribers",
			Help:      "Currently attached hub subscribers.",
		}),
		HubDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_dropped_total",
			Help:      "Contacts dropped for lagging subscribers.",
		}),
		KafkaMirrored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_mirrored_total",
			Help:      "Enriched contacts written to the Kafka mirror topic.",
		}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.DatagramsReceived,
		m.DatagramsMalformed,
		m.ContactsQueued,
		m.QueueDepth,
		m.EnricherRunning,
		m.LookupRequests,
		m.LookupDuration,
		m.LookupCache,
		m.CircuitBreakerState,
		m.UnknownLocations,
		m.ContactsPublished,
		m.HubSubscribers,
		m.HubDropped,
		m.KafkaMirrored,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
