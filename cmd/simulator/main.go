package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ridebench/dispatchsim/internal/agent"
	"github.com/ridebench/dispatchsim/internal/dispatch"
	"github.com/ridebench/dispatchsim/internal/eval"
	"github.com/ridebench/dispatchsim/internal/eventlog"
	"github.com/ridebench/dispatchsim/internal/fleet"
	"github.com/ridebench/dispatchsim/internal/pricing"
	"github.com/ridebench/dispatchsim/internal/requests"
	"github.com/ridebench/dispatchsim/internal/trips"
	"github.com/ridebench/dispatchsim/pkg/common"
	"github.com/ridebench/dispatchsim/pkg/config"
	"github.com/ridebench/dispatchsim/pkg/errors"
	"github.com/ridebench/dispatchsim/pkg/eventbus"
	"github.com/ridebench/dispatchsim/pkg/geo"
	"github.com/ridebench/dispatchsim/pkg/logger"
	"github.com/ridebench/dispatchsim/pkg/middleware"
	"github.com/ridebench/dispatchsim/pkg/resilience"
	"github.com/ridebench/dispatchsim/pkg/tracing"
	"github.com/ridebench/dispatchsim/pkg/websocket"
)

const (
	serviceName = "dispatch-simulator"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting dispatch simulator",
		zap.String("service", serviceName),
		zap.String("version", version),
	)

	// Initialize Sentry for error tracking
	sentryConfig := errors.DefaultSentryConfig()
	sentryConfig.ServerName = serviceName
	sentryConfig.Release = version
	if err := errors.InitSentry(sentryConfig); err != nil {
		logger.Warn("Failed to initialize Sentry, continuing without error tracking", zap.Error(err))
	} else {
		defer errors.Flush(2 * time.Second)
		logger.Info("Sentry error tracking initialized successfully")
	}

	// Initialize OpenTelemetry tracer
	tracerEnabled := os.Getenv("OTEL_ENABLED") == "true"
	if tracerEnabled {
		tracerCfg := tracing.Config{
			ServiceName:    os.Getenv("OTEL_SERVICE_NAME"),
			ServiceVersion: os.Getenv("OTEL_SERVICE_VERSION"),
			Environment:    cfg.Server.Environment,
			OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Enabled:        true,
		}

		tp, err := tracing.InitTracer(tracerCfg, logger.Get())
		if err != nil {
			logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Failed to shutdown tracer", zap.Error(err))
				}
			}()
			logger.Info("OpenTelemetry tracing initialized successfully")
		}
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zones := geo.NewRegistry()
	oracle := geo.NewPlanarOracle(cfg.Simulation.AvgSpeedMPH, zones)
	fares := pricing.NewCalculatorFromConfig(cfg.Pricing)

	seed := cfg.Simulation.RandomSeed
	if !cfg.Simulation.SeedSet {
		seed = time.Now().UnixNano()
	}
	logger.Info("Simulation seed resolved", zap.Int64("seed", seed), zap.Bool("from_env", cfg.Simulation.SeedSet))

	fleetState := fleet.NewState(zones, seed)
	simulator := trips.NewSimulator(fleetState, oracle, fares)
	evaluator := eval.NewEvaluator(zones, fares)
	recorder := eventlog.NewRecorder()

	// Optional NATS JetStream fan-out of the event log
	var bus *eventbus.Bus
	if cfg.EventBus.Enabled {
		bus, err = eventbus.New(eventbus.Config{
			URL:        cfg.EventBus.URL,
			Name:       serviceName,
			StreamName: cfg.EventBus.StreamName,
		})
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer bus.Close()
		recorder.AddSink(eventlog.NewNATSSink(bus, serviceName))
		logger.Info("Event bus publishing enabled", zap.String("stream", cfg.EventBus.StreamName))
	}

	// Optional live feed server for dashboards
	var feedServer *http.Server
	if cfg.Simulation.LiveFeedEnabled {
		hub := websocket.NewHub()
		go hub.Run(runCtx)
		recorder.AddSink(eventlog.NewFeedSink(hub))

		if cfg.Server.Environment == "production" {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.New()
		router.Use(middleware.RecoveryWithSentry())
		router.Use(middleware.CorrelationID())
		router.Use(middleware.RequestLogger(serviceName))
		router.GET("/healthz", common.HealthCheck(serviceName, version))
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		router.GET("/ws/feed", func(c *gin.Context) {
			websocket.HandleWebSocket(c, hub)
		})

		feedServer = &http.Server{Addr: cfg.Simulation.ServeAddr, Handler: router}
		go func() {
			logger.Info("Live feed server starting", zap.String("addr", cfg.Simulation.ServeAddr))
			if err := feedServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Live feed server failed", zap.Error(err))
			}
		}()
	}

	scenario, err := loadScenario(cfg, zones, seed)
	if err != nil {
		logger.Fatal("Failed to prepare scenario", zap.Error(err))
	}

	if len(scenario.Vehicles) > 0 {
		err = fleetState.InitializeFrom(scenario.FleetSeeds())
	} else {
		err = fleetState.Initialize(fleet.InitOptions{
			Count:           cfg.Simulation.FleetSize,
			WheelchairRatio: cfg.Simulation.WheelchairRatio,
		})
	}
	if err != nil {
		logger.Fatal("Failed to initialize fleet", zap.Error(err))
	}

	routingAgent := selectAgent(cfg, oracle, zones)
	logger.Info("Routing agent selected", zap.String("agent", routingAgent.Name()))

	orchestrator := dispatch.NewOrchestrator(fleetState, simulator, evaluator, recorder, dispatch.Options{
		EndPadding:        time.Duration(cfg.Simulation.EndPaddingMinutes) * time.Minute,
		InterRequestDelay: time.Duration(cfg.Simulation.InterRequestDelaySeconds * float64(time.Second)),
	})

	summary, err := orchestrator.RunEvaluation(runCtx, routingAgent, scenario.Requests, scenario.StartTime, scenario.EndTime)
	if err != nil {
		logger.Fatal("Evaluation run failed", zap.Error(err))
	}

	if err := recorder.WriteFile(cfg.Simulation.EventsOutPath); err != nil {
		logger.Fatal("Failed to write event log", zap.Error(err))
	}
	if err := writeSummary(cfg.Simulation.SummaryOutPath, summary); err != nil {
		logger.Fatal("Failed to write summary", zap.Error(err))
	}
	logger.Info("Run artifacts written",
		zap.String("events", cfg.Simulation.EventsOutPath),
		zap.String("summary", cfg.Simulation.SummaryOutPath),
		zap.Int("event_count", recorder.Len()),
	)

	if bus != nil {
		publishSummary(bus, summary)
	}

	if feedServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := feedServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Live feed server forced to shutdown", zap.Error(err))
		}
	}

	logger.Info("Simulator finished",
		zap.Float64("overall_score", summary.OverallScore),
		zap.Int("requests_evaluated", summary.RequestsEvaluated),
		zap.Int("failed_requests", summary.FailedRequests),
	)
}

// loadScenario reads the scenario file when one is configured and generates
// a synthetic scenario otherwise.
func loadScenario(cfg *config.Config, zones *geo.Registry, seed int64) (*requests.Scenario, error) {
	if path := cfg.Simulation.ScenarioPath; path != "" {
		return requests.NewLoader(zones).LoadFile(path)
	}

	gen := requests.NewGenerator(zones, seed)
	return gen.Scenario(requests.GeneratorOptions{
		RequestCount:    cfg.Simulation.RequestCount,
		FleetSize:       cfg.Simulation.FleetSize,
		WheelchairRatio: cfg.Simulation.WheelchairRatio,
		Spacing:         time.Duration(cfg.Simulation.RequestSpacingSeconds) * time.Second,
	})
}

// selectAgent picks the remote agent when AGENT_URL is set and falls back to
// the in-process baseline otherwise.
func selectAgent(cfg *config.Config, oracle geo.Oracle, zones *geo.Registry) agent.RoutingAgent {
	if cfg.Agent.URL == "" {
		return agent.NewNearestVehicleAgent(oracle, zones)
	}

	settings := resilience.Settings{Name: "routing-agent"}
	if cfg.Resilience.CircuitBreaker.Enabled {
		cbCfg := cfg.Resilience.CircuitBreaker.SettingsFor("routing-agent")
		settings = resilience.Settings{
			Name:             "routing-agent",
			Interval:         time.Duration(cbCfg.IntervalSeconds) * time.Second,
			Timeout:          time.Duration(cbCfg.TimeoutSeconds) * time.Second,
			FailureThreshold: uint32(cbCfg.FailureThreshold),
			SuccessThreshold: uint32(cbCfg.SuccessThreshold),
		}
		logger.Info("Circuit breaker enabled for routing agent")
	}

	timeout := time.Duration(cfg.Agent.TimeoutSeconds) * time.Second
	return agent.NewRemoteAgent(cfg.Agent.URL, timeout, cfg.Agent.InternalAPIKey, settings, oracle)
}

func writeSummary(path string, summary eval.Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

func publishSummary(bus *eventbus.Bus, summary eval.Summary) {
	event, err := eventbus.NewEvent("RUN_SUMMARY", serviceName, summary)
	if err != nil {
		logger.Warn("Failed to wrap run summary", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := bus.Publish(ctx, eventbus.SubjectRunSummary, event); err != nil {
		logger.Warn("Failed to publish run summary", zap.Error(err))
	}
}
