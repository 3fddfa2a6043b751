package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recommendation outcomes.
const (
	OutcomeParsed         = "parsed"
	OutcomeDegraded       = "degraded"
	OutcomeTransportError = "transport_error"
	OutcomeServiceError   = "service_error"
)

var (
	// Approval pipeline
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_predictions_total",
			Help: "Total number of approval decisions by label",
		},
		[]string{"label"},
	)

	PredictionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loan_prediction_errors_total",
			Help: "Total number of model inference failures",
		},
	)

	// Recommendation pipeline
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_recommendations_total",
			Help: "Total number of recommendation requests by outcome",
		},
		[]string{"outcome"},
	)

	CatalogFilterFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loan_catalog_filter_fallbacks_total",
			Help: "Total number of loan type queries that matched nothing and fell back to the full catalog",
		},
	)

	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loan_generation_duration_seconds",
			Help:    "Duration of calls to the generative recommendation service",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120, 180},
		},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loan_api_rate_limited_total",
			Help: "Total number of requests rejected by the per-client rate limiter",
		},
	)
)

// RecordPrediction counts one approval decision.
func RecordPrediction(label string) {
	PredictionsTotal.WithLabelValues(label).Inc()
}

// RecordRecommendation counts a recommendation outcome and the time spent in the generative call.
// A zero duration means the call was never made.
func RecordRecommendation(outcome string, duration time.Duration) {
	RecommendationsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		GenerationDuration.Observe(duration.Seconds())
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, status string) {
	APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}
