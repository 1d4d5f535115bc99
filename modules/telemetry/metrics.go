package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/signaling-coordinator/modules/coordinator"
)

const namespace = "coordinator"

// Metrics holds the coordinator collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	participantsJoined prometheus.Counter
	participantsLeft   prometheus.Counter
	channelsCreated    prometheus.Counter
	channelsDeleted    prometheus.Counter
	sweeps             prometheus.Counter
	messagesPruned     prometheus.Counter

	participantsOnline  prometheus.Gauge
	customChannels      prometheus.Gauge
	conversations       prometheus.Gauge
	negotiationSessions prometheus.Gauge
}

// NewMetrics creates and registers the coordinator collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		participantsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participants_joined_total",
			Help:      "New identities registered.",
		}),
		participantsLeft: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participants_left_total",
			Help:      "Participants torn down after disconnect.",
		}),
		channelsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_created_total",
			Help:      "Custom channels created.",
		}),
		channelsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_deleted_total",
			Help:      "Custom channels evicted by the sweep.",
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed eviction sweeps.",
		}),
		messagesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_pruned_total",
			Help:      "Private messages removed by retention.",
		}),
		participantsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants_online",
			Help:      "Registered participants at the last refresh.",
		}),
		customChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "custom_channels",
			Help:      "Custom channels at the last refresh.",
		}),
		conversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "private_conversations",
			Help:      "Stored private conversations at the last refresh.",
		}),
		negotiationSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "negotiation_sessions",
			Help:      "Open negotiation sessions at the last refresh.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.participantsJoined,
		m.participantsLeft,
		m.channelsCreated,
		m.channelsDeleted,
		m.sweeps,
		m.messagesPruned,
		m.participantsOnline,
		m.customChannels,
		m.conversations,
		m.negotiationSessions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeStats(st *coordinator.Stats) {
	m.participantsOnline.Set(float64(st.Participants))
	m.customChannels.Set(float64(st.CustomChannels))
	m.conversations.Set(float64(st.Conversations))
	m.negotiationSessions.Set(float64(st.NegotiationSessions))
}
