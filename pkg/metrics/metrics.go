package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "help_queue_chat"

var (
	// ReconcileTotal timeline rebuilds
	ReconcileTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_total",
		Help:      "Number of timeline reconciliations.",
	})

	// BroadcastSuperseded broadcasts dropped because a stored copy exists
	BroadcastSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_superseded_total",
		Help:      "Broadcast events collapsed into their stored counterpart.",
	})

	// BroadcastRedelivered at-least-once duplicates
	BroadcastRedelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_redelivered_total",
		Help:      "Broadcast events delivered more than once.",
	})

	// ReadReceipts mark-as-read attempts by result (ok / failed)
	ReadReceipts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "read_receipts_total",
		Help:      "Mark-as-read requests issued by read trackers.",
	}, []string{"result"})

	// SendDenied compose gate denials by reason
	SendDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "send_denied_total",
		Help:      "Sends rejected by the compose gate.",
	}, []string{"reason"})

	// ActiveRoomViews open room views
	ActiveRoomViews = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_room_views",
		Help:      "Room views currently open.",
	})
)
