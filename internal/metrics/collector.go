package metrics

import (
	"github.com/nestwatch/nestwatch/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	config *config.MimirConfig

	// Check results flowing through the aggregation engine
	resultsApplied   *prometheus.CounterVec
	resultsDiscarded *prometheus.CounterVec
	checkResponseMs  *prometheus.HistogramVec

	// Service status
	serviceState      *prometheus.GaugeVec
	statusTransitions *prometheus.CounterVec
	incidentsOpen     *prometheus.GaugeVec
	regionsSweptStale prometheus.Counter

	// Worker fleet
	workersTotal    *prometheus.GaugeVec
	heartbeatsTotal prometheus.Counter
	pointsAwarded   *prometheus.CounterVec

	// Resilience
	breakerState *prometheus.GaugeVec
	degradedMode *prometheus.CounterVec

	// Fabric
	fabricMessages *prometheus.CounterVec
}

func NewCollector(cfg config.MimirConfig) *Collector {
	return &Collector{
		config: &cfg,

		resultsApplied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nestwatch_results_applied_total",
				Help: "Check results applied to a region slot",
			},
			[]string{"tenant_id", "service_id", "region", "status"},
		),
		resultsDiscarded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nestwatch_results_discarded_total",
				Help: "Check results discarded as stale or invalid",
			},
			[]string{"reason"},
		),
		checkResponseMs: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nestwatch_check_response_seconds",
				Help:    "Reported check response time",
				Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"tenant_id", "service_id", "region"},
		),
		serviceState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nestwatch_service_state",
				Help: "Current aggregate state per service (1 = in this state)",
			},
			[]string{"tenant_id", "service_id", "state"},
		),
		statusTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nestwatch_status_transitions_total",
				Help: "Aggregate status transitions",
			},
			[]string{"tenant_id", "service_id", "from", "to"},
		),
		incidentsOpen: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nestwatch_incidents_open",
				Help: "Open incidents per nest",
			},
			[]string{"tenant_id"},
		),
		regionsSweptStale: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nestwatch_regions_swept_stale_total",
				Help: "Region slots marked unknown by the stale sweep",
			},
		),
		workersTotal: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nestwatch_workers",
				Help: "Workers by state and liveness",
			},
			[]string{"state", "alive"},
		),
		heartbeatsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "nestwatch_heartbeats_total",
				Help: "Heartbeats applied",
			},
		),
		pointsAwarded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nestwatch_points_awarded_total",
				Help: "Points awarded (or deducted) per check type",
			},
			[]string{"check_type", "kind"},
		),
		breakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nestwatch_breaker_state",
				Help: "Circuit breaker state (1 = in this state)",
			},
			[]string{"breaker", "state"},
		),
		degradedMode: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nestwatch_degraded_mode_total",
				Help: "Operations that returned a fallback after exhausting retries",
			},
			[]string{"dependency", "operation"},
		),
		fabricMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nestwatch_fabric_messages_total",
				Help: "Fabric messages by stream and outcome",
			},
			[]string{"stream", "outcome"},
		),
	}
}

func (c *Collector) RecordResultApplied(tenantID, serviceID, region, status string, responseMs int) {
	c.resultsApplied.WithLabelValues(tenantID, serviceID, region, status).Inc()
	c.checkResponseMs.WithLabelValues(tenantID, serviceID, region).Observe(float64(responseMs) / 1000)
}

func (c *Collector) RecordResultDiscarded(reason string) {
	c.resultsDiscarded.WithLabelValues(reason).Inc()
}

var serviceStates = []string{"unknown", "up", "degraded", "down", "maintenance"}

func (c *Collector) RecordServiceState(tenantID, serviceID, state string) {
	for _, s := range serviceStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		c.serviceState.WithLabelValues(tenantID, serviceID, s).Set(v)
	}
}

func (c *Collector) RecordStatusTransition(tenantID, serviceID, from, to string) {
	c.statusTransitions.WithLabelValues(tenantID, serviceID, from, to).Inc()
}

func (c *Collector) RecordIncidentsOpen(tenantID string, n int) {
	c.incidentsOpen.WithLabelValues(tenantID).Set(float64(n))
}

func (c *Collector) RecordRegionSweptStale() {
	c.regionsSweptStale.Inc()
}

func (c *Collector) RecordFleet(state string, alive bool, n int) {
	aliveLabel := "false"
	if alive {
		aliveLabel = "true"
	}
	c.workersTotal.WithLabelValues(state, aliveLabel).Set(float64(n))
}

func (c *Collector) RecordHeartbeat() {
	c.heartbeatsTotal.Inc()
}

func (c *Collector) RecordPoints(checkType, kind string) {
	c.pointsAwarded.WithLabelValues(checkType, kind).Inc()
}

var breakerStates = []string{"closed", "half-open", "open"}

// RecordBreakerState satisfies resilience.Metrics.
func (c *Collector) RecordBreakerState(name string, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		c.breakerState.WithLabelValues(name, s).Set(v)
	}
}

// RecordDegradedMode satisfies resilience.Metrics.
func (c *Collector) RecordDegradedMode(dependency, operation string) {
	c.degradedMode.WithLabelValues(dependency, operation).Inc()
}

// RecordFabricMessage satisfies fabric.Metrics.
func (c *Collector) RecordFabricMessage(stream, outcome string) {
	c.fabricMessages.WithLabelValues(stream, outcome).Inc()
}
