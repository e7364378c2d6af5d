package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "yield_optimizer"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total number of gateway calls by operation and outcome kind.",
		},
		[]string{"op", "outcome"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Duration of gateway calls including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"op"},
	)

	gatewayRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "retries_total",
			Help:      "Total number of retried gateway read attempts.",
		},
		[]string{"op"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "cache_lookups_total",
			Help:      "Protocol cache lookups by result.",
		},
		[]string{"result"},
	)

	storeActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "actions_total",
			Help:      "Store actions by name and result status.",
		},
		[]string{"action", "status", "kind"},
	)

	staleCompletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "stale_completions_total",
			Help:      "Completions dropped because a newer request for the same field was issued.",
		},
		[]string{"field"},
	)

	rebalanceSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "rebalance_submissions_total",
			Help:      "Rebalance submissions by outcome.",
		},
		[]string{"outcome"},
	)

	walletCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "calls_total",
			Help:      "Wallet adapter calls by wallet, operation and outcome.",
		},
		[]string{"wallet", "op", "outcome"},
	)

	autopilotCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autopilot",
			Name:      "cycles_total",
			Help:      "Auto-rebalance cycles by result.",
		},
		[]string{"result"},
	)

	portfolioDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "autopilot",
			Name:      "portfolio_drift_percent",
			Help:      "Largest drift between the portfolio and the target allocation, in percentage points.",
		},
	)

	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected WebSocket state subscribers.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		gatewayRequests,
		gatewayDuration,
		gatewayRetries,
		cacheLookups,
		storeActions,
		staleCompletions,
		rebalanceSubmissions,
		walletCalls,
		autopilotCycles,
		portfolioDrift,
		wsClients,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Routes are labelled with their mux path template so ids don't explode cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routeTemplate(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordGatewayRequest records one gateway call. outcome is "ok" or an error kind.
func RecordGatewayRequest(op, outcome string, duration time.Duration) {
	gatewayRequests.WithLabelValues(op, outcome).Inc()
	gatewayDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func RecordGatewayRetry(op string) {
	gatewayRetries.WithLabelValues(op).Inc()
}

// RecordCacheLookup records a protocol cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

func RecordStoreAction(action, status, kind string) {
	storeActions.WithLabelValues(action, status, kind).Inc()
}

func RecordStaleCompletion(field string) {
	staleCompletions.WithLabelValues(field).Inc()
}

func RecordRebalance(outcome string) {
	rebalanceSubmissions.WithLabelValues(outcome).Inc()
}

func RecordWalletCall(wallet, op, outcome string) {
	walletCalls.WithLabelValues(wallet, op, outcome).Inc()
}

// RecordAutopilotCycle records one auto-rebalance cycle: skipped, in_range, rebalanced or failed.
func RecordAutopilotCycle(result string) {
	autopilotCycles.WithLabelValues(result).Inc()
}

func SetPortfolioDrift(percent float64) {
	portfolioDrift.Set(percent)
}

func WebSocketConnected()    { wsClients.Inc() }
func WebSocketDisconnected() { wsClients.Dec() }

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
