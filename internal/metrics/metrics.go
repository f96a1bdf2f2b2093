// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Push results recorded by the dispatcher.
const (
	PushDelivered = "delivered"
	PushOffline   = "offline"
	PushFailed    = "failed"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duochat_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path", "status"},
	)

	// OnlineUsers tracks users holding a registered realtime connection.
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duochat_online_users",
			Help: "Number of users with a live realtime connection",
		},
	)

	// SessionsReplaced counts live sessions evicted by a newer registration.
	SessionsReplaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duochat_sessions_replaced_total",
			Help: "Sessions evicted because the same user connected again",
		},
	)

	// MessagesCreated counts messages persisted by the store.
	MessagesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duochat_messages_created_total",
			Help: "Messages durably stored",
		},
	)

	// Pushes counts dispatch outcomes by result.
	Pushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duochat_pushes_total",
			Help: "newMessage push attempts by result",
		},
		[]string{"result"},
	)
)
