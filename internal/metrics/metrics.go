// Package metrics 定义 Prometheus 指标；Register 必须在进程启动时调用一次。
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmfinder_api_requests_total",
			Help: "Backend API calls by endpoint and outcome",
		},
		[]string{"endpoint", "status"},
	)
	APIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filmfinder_api_request_duration_seconds",
			Help:    "Backend API call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"endpoint"},
	)
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmfinder_cache_operations_total",
			Help: "Catalog cache lookups by kind and result",
		},
		[]string{"kind", "result"}, // result: hit, disk_hit, miss, shared, error
	)
	BatchItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmfinder_batch_items_total",
			Help: "Metadata batch items by view and status",
		},
		[]string{"view", "status"},
	)
	StaleResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmfinder_stale_responses_total",
			Help: "Responses discarded because a newer request was issued",
		},
		[]string{"source"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "filmfinder_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
	CircuitBreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filmfinder_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// Collectors 返回全部指标（便于测试注册到独立 registry）。
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		APIRequests,
		APIDuration,
		CacheOperations,
		BatchItems,
		StaleResponses,
		CircuitBreakerState,
		CircuitBreakerTransitions,
	}
}

// Register 把全部指标注册到 reg；重复注册会被忽略。
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
