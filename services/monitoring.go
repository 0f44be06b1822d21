package services

import (
	"fmt"
	"os"
	"strconv"
	"time"

	serviceContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	MONITORING_SVC          = "monitoring_svc"
	SERVICE_NAME            = "teamplaymate_gate"
	DEFAULT_PROMETHEUS_PORT = 2112
)

// Gate metrics
var (
	gateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Gate decisions by outcome",
		},
		[]string{"outcome"},
	)

	threatScoreObserved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gate_threat_score",
			Help:    "Computed threat score per evaluated request",
			Buckets: []float64{0, 10, 25, 50, 75, 100, 150, 200},
		},
	)

	gateCheckDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gate_check_duration_seconds",
			Help:    "Full gate pipeline duration per request",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	securityEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_events_total",
			Help: "Security events appended, by severity and type",
		},
		[]string{"severity", "type"},
	)

	storeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_store_failures_total",
			Help: "Shared-store failures that caused a fail-open decision",
		},
		[]string{"component"},
	)

	activeBlocksGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "security_active_blocks",
			Help: "Active blacklist and temporary-block entries, updated by the sweeper",
		},
		[]string{"kind"},
	)
)

type MonitoringService struct {
	serviceContext.DefaultService

	port     int
	register *prometheus.Registry

	server *fiber.App
}

func (svc *MonitoringService) Id() string {
	return MONITORING_SVC
}

func (svc *MonitoringService) Start() error {
	portStr := os.Getenv("PROMETHEUS_PORT")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = DEFAULT_PROMETHEUS_PORT
	}
	svc.port = port

	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg.MustRegister(
		gateDecisionsTotal,
		threatScoreObserved,
		gateCheckDurationSeconds,
		securityEventsTotal,
		storeFailuresTotal,
		activeBlocksGauge,
	)

	svc.register = reg
	svc.initializeMetrics()

	config := fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
		},
	}

	svc.server = fiber.New(config)
	svc.server.Use(recover.New())

	svc.server.Get("/metrics", svc.metricsHandler)
	svc.server.Get("/health", svc.healthHandler)

	log.Info().Int("port", svc.port).Msg("Prometheus metrics server started")
	return svc.server.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *MonitoringService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

func (svc *MonitoringService) metricsHandler(c *fiber.Ctx) error {
	handler := promhttp.HandlerFor(svc.register, promhttp.HandlerOpts{})
	return adaptor.HTTPHandler(handler)(c)
}

func (svc *MonitoringService) healthHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "healthy",
		"service":   SERVICE_NAME,
		"timestamp": time.Now().Unix(),
	})
}

func (svc *MonitoringService) initializeMetrics() {
	for _, outcome := range []string{"allow", "allow_with_advisory", "reject"} {
		gateDecisionsTotal.WithLabelValues(outcome).Add(0)
	}
	activeBlocksGauge.WithLabelValues("blacklist").Set(0)
	activeBlocksGauge.WithLabelValues("tempblock").Set(0)

	log.Info().Msg("Metrics initialized successfully")
}

// RecordDecision records one gate outcome together with its score and the
// time the pipeline took.
func RecordDecision(outcome string, score int, duration time.Duration) {
	gateDecisionsTotal.WithLabelValues(outcome).Inc()
	threatScoreObserved.Observe(float64(score))
	gateCheckDurationSeconds.Observe(duration.Seconds())
}

// SetActiveBlocks is called by the sweeper after each cleanup pass.
func SetActiveBlocks(kind string, count int) {
	activeBlocksGauge.WithLabelValues(kind).Set(float64(count))
}
