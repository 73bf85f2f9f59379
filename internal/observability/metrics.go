package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RealtimeMessagesApplied counts inbound realtime messages applied to
	// the store, by message kind.
	RealtimeMessagesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retroboard_realtime_messages_applied_total",
		Help: "Total number of inbound realtime messages applied to the store",
	}, []string{"kind"})

	// RealtimeMessagesDropped counts inbound realtime messages dropped
	// before reaching the store, by kind and reason
	// (invalid, self_echo, stale, unknown_kind, panic).
	RealtimeMessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retroboard_realtime_messages_dropped_total",
		Help: "Total number of inbound realtime messages dropped",
	}, []string{"kind", "reason"})

	// MergeTransactions counts merge engine transactions by outcome
	// (committed, rejected, aborted).
	MergeTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retroboard_merge_transactions_total",
		Help: "Total number of merge engine transactions by outcome",
	}, []string{"outcome"})

	// BroadcastFailures counts best-effort publishes that failed after a
	// committed write. These surface only as delayed-sync risk.
	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retroboard_broadcast_failures_total",
		Help: "Total number of failed best-effort event publishes",
	})

	// WebSocketBoardConnections is the gauge of connections per board.
	WebSocketBoardConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "retroboard_websocket_board_connections",
		Help: "Number of WebSocket connections per board",
	}, []string{"board_id"})
)
