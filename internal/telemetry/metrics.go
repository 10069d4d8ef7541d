package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Requests by endpoint, items by {type, subreddit}, account-error
// counters by kind, proxy failure counters, a replace-more timing
// histogram, an inflight gauge, and per-status account gauges.

var RequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "reddit",
		Name:      "requests_total",
		Help:      "Total Reddit API requests issued by the scraping collaborator.",
	},
	[]string{"endpoint"},
)

var ItemsScrapedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "reddit",
		Name:      "items_scraped_total",
		Help:      "Total items scraped.",
	},
	[]string{"type", "subreddit"},
)

var AccountErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "reddit",
		Name:      "account_errors_total",
		Help:      "Account-level errors by classified kind (rate_limited, auth_denied, transient_network).",
	},
	[]string{"kind"},
)

var ProxyFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "reddit",
		Name:      "proxy_failures_total",
		Help:      "Proxy failures by kind.",
	},
	[]string{"kind"},
)

var ReplaceMoreTimeSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "reddit",
		Name:      "replace_more_time_seconds",
		Help:      "Time spent expanding \"more comments\" stubs.",
		Buckets:   []float64{0.1, 0.3, 0.7, 1.5, 3, 6, 12, 24, 48},
	},
)

var ReplaceMoreInflight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "reddit",
		Name:      "replace_more_inflight",
		Help:      "Number of concurrent replace-more expansions in flight.",
	},
)

// Per-status account gauges (published by the health manager, C3).
var (
	AccountsReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reddit", Subsystem: "pool", Name: "ready_accounts",
		Help: "Accounts with status=ready, including those still cooling down.",
	})
	AccountsLeased = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reddit", Subsystem: "pool", Name: "leased_accounts",
		Help: "Accounts with status=leased.",
	})
	AccountsQuarantine = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reddit", Subsystem: "pool", Name: "quarantine_accounts",
		Help: "Accounts with status=quarantine.",
	})
	AccountsCooling = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reddit", Subsystem: "pool", Name: "cooling_accounts",
		Help: "Accounts with status=ready but cooldown_until > now.",
	})
)

var AccountCheckTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "reddit", Subsystem: "pool", Name: "account_check_total",
	Help: "Total account health probes performed.",
})

var AccountQuarantineTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "reddit", Subsystem: "pool", Name: "account_quarantine_total",
	Help: "Total times an account was quarantined.",
})

var AccountCooldownTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "reddit", Subsystem: "pool", Name: "account_cooldown_total",
	Help: "Total times an account was cooled down.",
})

var WorkersActive = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "reddit", Subsystem: "orchestrator", Name: "active_workers",
	Help: "Current size of the worker fleet.",
})

// HTTPRequestDuration is recorded by internal/httpserver's Metrics
// middleware for every request served by the ambient /healthz and
// /metrics surface.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "reddit",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// All returns the collectors owned by this package, for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		RequestsTotal,
		ItemsScrapedTotal,
		AccountErrorsTotal,
		ProxyFailuresTotal,
		ReplaceMoreTimeSeconds,
		ReplaceMoreInflight,
		AccountsReady,
		AccountsLeased,
		AccountsQuarantine,
		AccountsCooling,
		AccountCheckTotal,
		AccountQuarantineTotal,
		AccountCooldownTotal,
		WorkersActive,
		HTTPRequestDuration,
	}
}
