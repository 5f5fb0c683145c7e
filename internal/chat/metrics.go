package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	connectedPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_peers",
		Help: "Number of currently admitted peers",
	})

	messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total messages published by kind",
	}, []string{"kind"})

	droppedDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_dropped_deliveries_total",
		Help: "Deliveries abandoned because a peer sink was full or closed",
	})

	slowPeerEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_slow_peer_evictions_total",
		Help: "Peers evicted because they could not keep up",
	})
)

func init() {
	prometheus.MustRegister(connectedPeers)
	prometheus.MustRegister(messagesTotal)
	prometheus.MustRegister(droppedDeliveries)
	prometheus.MustRegister(slowPeerEvictions)
}
