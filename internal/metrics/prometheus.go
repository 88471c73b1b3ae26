package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genai_turn_duration_seconds",
			Help:    "Conversation turn duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genai_turns_total",
			Help: "Total conversation turns by outcome",
		},
		[]string{"mode", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genai_llm_request_duration_seconds",
			Help:    "Completion service call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "op"},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genai_llm_requests_total",
			Help: "Completion service calls by outcome",
		},
		[]string{"provider", "op", "outcome"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genai_llm_tokens_used_total",
			Help: "Tokens reported by the completion service",
		},
		[]string{"provider", "type"},
	)

	LLMPromptTokens = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genai_llm_prompt_tokens_estimated",
			Help:    "Locally estimated prompt size in tokens",
			Buckets: prometheus.ExponentialBuckets(64, 2, 12),
		},
		[]string{"provider"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "genai_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genai_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genai_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	CacheWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "genai_cache_write_failures_total",
			Help: "Extractions whose result could not be persisted",
		},
	)

	ExtractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genai_extraction_duration_seconds",
			Help:    "Document text extraction duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"status"},
	)

	ExtractionPageFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "genai_extraction_page_failures_total",
			Help: "Pages replaced by a placeholder during extraction",
		},
	)

	DocumentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genai_documents_processed_total",
			Help: "Total documents processed",
		},
		[]string{"source", "status"},
	)

	ActiveWorkspaces = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "genai_active_workspaces",
			Help: "Conversation workspaces currently held in memory",
		},
	)

	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genai_image_analyses_total",
			Help: "Image analyses by kind and outcome",
		},
		[]string{"kind", "status"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(TurnDuration)
		prometheus.MustRegister(TurnsTotal)
		prometheus.MustRegister(LLMRequestDuration)
		prometheus.MustRegister(LLMRequestsTotal)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(LLMPromptTokens)
		prometheus.MustRegister(BreakerState)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(CacheWriteFailures)
		prometheus.MustRegister(ExtractionDuration)
		prometheus.MustRegister(ExtractionPageFailures)
		prometheus.MustRegister(DocumentsProcessed)
		prometheus.MustRegister(ActiveWorkspaces)
		prometheus.MustRegister(AnalysesTotal)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
