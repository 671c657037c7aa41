package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reigw_cache_requests_total",
			Help: "Gateway cache lookups by resource and result",
		},
		[]string{"resource", "result"}, // property|rent , hit|miss
	)

	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reigw_upstream_calls_total",
			Help: "Metered upstream API calls by outcome",
		},
		[]string{"api", "outcome"}, // ok|failed
	)

	QuotaRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reigw_quota_rejections_total",
			Help: "Requests rejected because the monthly API quota was exhausted",
		},
		[]string{"api"},
	)

	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reigw_webhook_events_total",
			Help: "Billing webhook events by type and outcome",
		},
		[]string{"type", "outcome"}, // ok|skipped|failed
	)

	ReportsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reigw_reports_created_total",
			Help: "Rental reports created by user tier",
		},
		[]string{"tier"}, // free|pro|admin
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		CacheRequestsTotal,
		UpstreamCallsTotal,
		QuotaRejectionsTotal,
		WebhookEventsTotal,
		ReportsCreatedTotal,
	)
}
