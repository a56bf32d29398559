// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbound sendMessage attempts by notification kind and result (ok, failed, skipped).
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmbot_notifications_total",
			Help: "Telegram notifications by kind and result",
		},
		[]string{"kind", "result"},
	)

	// Bot API call latency in seconds.
	TelegramCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmbot_telegram_call_duration_seconds",
			Help:    "Telegram Bot API call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
		[]string{"method", "status"},
	)

	// Scheduled job runs by job name and outcome.
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmbot_job_runs_total",
			Help: "Scheduled job runs by name and status",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmbot_job_duration_seconds",
			Help:    "Scheduled job duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"job"},
	)

	// Inbound webhook updates by routed action.
	WebhookUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmbot_webhook_updates_total",
			Help: "Inbound Telegram updates by routed action",
		},
		[]string{"action"},
	)

	// Reminders suppressed by the ledger.
	RemindersSuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crmbot_reminders_suppressed_total",
			Help: "Deadline reminders skipped because the ledger already holds them",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmbot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

func IncNotification(kind, result string) {
	NotificationsTotal.WithLabelValues(kind, result).Inc()
}

func RecordTelegramCall(method, status string, d time.Duration) {
	TelegramCallDuration.WithLabelValues(method, status).Observe(d.Seconds())
}

func RecordJobRun(job, status string, d time.Duration) {
	JobRunsTotal.WithLabelValues(job, status).Inc()
	JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func IncWebhookUpdate(action string) {
	WebhookUpdatesTotal.WithLabelValues(action).Inc()
}

func IncReminderSuppressed() {
	RemindersSuppressedTotal.Inc()
}

func RecordHTTPRequest(method, path, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
