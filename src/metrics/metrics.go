package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackendRequests counts calls to the shop backend by method and status class
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_backend_requests_total",
			Help: "Total number of requests sent to the shop backend",
		},
		[]string{"method", "status"},
	)

	// ForcedLogouts counts sessions torn down by an unauthorized response
	ForcedLogouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "console_forced_logouts_total",
			Help: "Total number of sessions cleared after a 401 from the backend",
		},
	)

	// NotificationPolls counts notification fetches by result
	NotificationPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_notification_polls_total",
			Help: "Total number of notification feed fetches",
		},
		[]string{"result"},
	)

	// UnreadNotifications is the current unread count of the cached feed
	UnreadNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "console_notifications_unread",
			Help: "Unread notifications in the local cache",
		},
	)

	// NotificationAlerts counts alerts emitted and alerts suppressed by the interaction gate
	NotificationAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_notification_alerts_total",
			Help: "Audio alerts for new unread notifications",
		},
		[]string{"outcome"},
	)
)

// StatusClass buckets an HTTP status for label cardinality
func StatusClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status == 401:
		return "401"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
