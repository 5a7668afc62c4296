package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HandlerMetrics struct {
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

type ServiceMetrics struct {
	MethodCount    *prometheus.CounterVec
	MethodDuration *prometheus.HistogramVec
}

type RepositoryMetrics struct {
	QueryCount    *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// SweeperMetrics tracks the expiration sweeper's work: whole sweeps by
// status, ads removed, per-file deletions and reminder emails by outcome.
type SweeperMetrics struct {
	SweepCount    *prometheus.CounterVec
	SweepDuration *prometheus.HistogramVec
	ExpiredAds    prometheus.Counter
	FileDeletions *prometheus.CounterVec
	Reminders     *prometheus.CounterVec
}

func NewHandlerMetrics(reg prometheus.Registerer) *HandlerMetrics {
	requestCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handler_requests_total",
			Help: "Total number of HTTP requests handled by the handler layer.",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "handler_request_duration_seconds",
			Help:    "Histogram of response latency for handler in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	reg.MustRegister(requestCount, requestDuration)

	return &HandlerMetrics{
		RequestCount:    requestCount,
		RequestDuration: requestDuration,
	}
}

func NewServiceMetrics(reg prometheus.Registerer) *ServiceMetrics {
	methodCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_methods_total",
			Help: "Total number of service methods executed.",
		},
		[]string{"method", "status"},
	)

	methodDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "service_method_duration_seconds",
			Help:    "Histogram of service method execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	reg.MustRegister(methodCount, methodDuration)

	return &ServiceMetrics{
		MethodCount:    methodCount,
		MethodDuration: methodDuration,
	}
}

func NewRepositoryMetrics(reg prometheus.Registerer) *RepositoryMetrics {
	queryCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_queries_total",
			Help: "Total number of store operations executed.",
		},
		[]string{"query", "status"},
	)

	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_query_duration_seconds",
			Help:    "Histogram of store operation duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query", "status"},
	)

	reg.MustRegister(queryCount, queryDuration)

	return &RepositoryMetrics{
		QueryCount:    queryCount,
		QueryDuration: queryDuration,
	}
}

func NewSweeperMetrics(reg prometheus.Registerer) *SweeperMetrics {
	sweepCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweeper_sweeps_total",
			Help: "Total number of expiration sweeps executed.",
		},
		[]string{"status"},
	)

	sweepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweeper_sweep_duration_seconds",
			Help:    "Histogram of expiration sweep duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	expiredAds := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sweeper_expired_ads_total",
			Help: "Total number of expired ads removed by the sweeper.",
		},
	)

	fileDeletions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweeper_file_deletions_total",
			Help: "Total number of media file deletions attempted by the sweeper.",
		},
		[]string{"status"},
	)

	reminders := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweeper_reminders_total",
			Help: "Total number of expiry reminder emails attempted.",
		},
		[]string{"status"},
	)

	reg.MustRegister(sweepCount, sweepDuration, expiredAds, fileDeletions, reminders)

	return &SweeperMetrics{
		SweepCount:    sweepCount,
		SweepDuration: sweepDuration,
		ExpiredAds:    expiredAds,
		FileDeletions: fileDeletions,
		Reminders:     reminders,
	}
}

func (hm *HandlerMetrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
