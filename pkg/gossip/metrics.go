package gossip

import (
	"github.com/prometheus/client_golang/prometheus"
)

var roundsStarted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "strato_gossip_rounds_started_total",
		Help: "Total number of gossip rounds started, by role",
	},
	[]string{
		"role",
	},
)

var roundsCompleted = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "strato_gossip_rounds_completed_total",
		Help: "Total number of gossip rounds that reached Done",
	},
)

var roundsAbandoned = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "strato_gossip_rounds_abandoned_total",
		Help: "Total number of gossip rounds abandoned on round timeout",
	},
)

// packetsDropped counts inbound packets discarded without mutating state,
// labelled by drop cause.
var packetsDropped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "strato_gossip_packets_dropped_total",
		Help: "Total number of inbound gossip packets dropped",
	},
	[]string{
		"cause",
	},
)

var sendFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "strato_gossip_send_failures_total",
		Help: "Total number of gossip packets that could not be sent",
	},
)

var liveNodeCount = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "strato_gossip_live_nodes",
		Help: "Current number of cluster members considered alive",
	},
)

var deadNodeCount = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "strato_gossip_dead_nodes",
		Help: "Current number of cluster members considered unreachable",
	},
)

const (
	dropCauseCorrupt     = "corrupt"
	dropCauseUnknownType = "unknown_type"
	dropCauseVersion     = "unsupported_version"
	dropCauseMailbox     = "mailbox_full"
)

func init() {
	prometheus.MustRegister(roundsStarted)
	prometheus.MustRegister(roundsCompleted)
	prometheus.MustRegister(roundsAbandoned)
	prometheus.MustRegister(packetsDropped)
	prometheus.MustRegister(sendFailures)
	prometheus.MustRegister(liveNodeCount)
	prometheus.MustRegister(deadNodeCount)
}
