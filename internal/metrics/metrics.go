package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "azure_oauth2"

// Outcome label values.
const (
	ResultSuccess      = "success"
	ResultFailure      = "failure"
	ResultSkipped      = "skipped"
	ResultInvalidState = "invalid_state"
	ResultAPIError     = "api_error"
	ResultError        = "error"
)

var (
	AuthorizationURLsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorization_urls_total",
		Help:      "Authorization URLs generated, by result",
	}, []string{"result"})

	CallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "callbacks_total",
		Help:      "Authorization callbacks handled, by result",
	}, []string{"result"})

	TokenRefreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Refresh token exchanges, by result",
	}, []string{"result"})

	UserInfoFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "user_info_fetches_total",
		Help:      "User info reads, by source (cache or graph)",
	}, []string{"source"})

	StatesCleanedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "states_cleaned_total",
		Help:      "Used or expired states deleted by cleanup",
	})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_duration_seconds",
		Help:      "Latency of calls to Azure AD and Graph",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Inbound HTTP requests, by route and status",
	}, []string{"method", "route", "status"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		AuthorizationURLsTotal,
		CallbacksTotal,
		TokenRefreshesTotal,
		UserInfoFetchesTotal,
		StatesCleanedTotal,
		ProviderRequestDuration,
		HTTPRequestsTotal,
	}
}

// Register registers the metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
