// Package metrics exposes the engine's Prometheus collectors. All methods are
// safe on a nil *Collectors so components can run without metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Collectors struct {
	OnlineIdentities prometheus.Gauge
	Connections      prometheus.Gauge
	Messages         *prometheus.CounterVec
	ReactionToggles  *prometheus.CounterVec
	Evictions        prometheus.Counter
	DroppedSends     prometheus.Counter
}

func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		OnlineIdentities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_online_identities",
			Help: "Identities currently in the presence set.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connections",
			Help: "Open websocket connections.",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Persisted message operations by kind.",
		}, []string{"op"}),
		ReactionToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_reaction_toggles_total",
			Help: "Reaction toggles by outcome.",
		}, []string{"outcome"}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_session_evictions_total",
			Help: "Connections closed because their identity joined elsewhere.",
		}),
		DroppedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_dropped_sends_total",
			Help: "Outbound frames dropped because a receiver buffer was full or closed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.OnlineIdentities, c.Connections, c.Messages, c.ReactionToggles, c.Evictions, c.DroppedSends)
	}
	return c
}

func (c *Collectors) SetOnline(n int) {
	if c != nil {
		c.OnlineIdentities.Set(float64(n))
	}
}

func (c *Collectors) ConnectionOpened() {
	if c != nil {
		c.Connections.Inc()
	}
}

func (c *Collectors) ConnectionClosed() {
	if c != nil {
		c.Connections.Dec()
	}
}

func (c *Collectors) MessageOp(op string) {
	if c != nil {
		c.Messages.WithLabelValues(op).Inc()
	}
}

func (c *Collectors) ReactionToggled(outcome string) {
	if c != nil {
		c.ReactionToggles.WithLabelValues(outcome).Inc()
	}
}

func (c *Collectors) Evicted() {
	if c != nil {
		c.Evictions.Inc()
	}
}

func (c *Collectors) SendDropped() {
	if c != nil {
		c.DroppedSends.Inc()
	}
}
