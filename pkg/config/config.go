package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Simulation SimulationConfig
	Pricing    PricingConfig
	Agent      AgentConfig
	EventBus   EventBusConfig
	Resilience ResilienceConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string // Comma-separated list of allowed origins
}

// SimulationConfig holds the evaluation run parameters
type SimulationConfig struct {
	AvgSpeedMPH              float64
	FleetSize                int
	WheelchairRatio          float64
	RequestCount             int
	RequestSpacingSeconds    int
	EndPaddingMinutes        int
	InterRequestDelaySeconds float64
	ScenarioPath             string
	EventsOutPath            string
	SummaryOutPath           string
	LiveFeedEnabled          bool
	ServeAddr                string

	// RandomSeed drives fleet placement and request generation. SeedSet is
	// false when RANDOM_SEED is absent; callers then seed from the clock.
	RandomSeed int64
	SeedSet    bool
}

// PricingConfig holds the fare model constants
type PricingConfig struct {
	BaseFare            float64
	PerMileRate         float64
	PerMinuteRate       float64
	DeadheadCostPerMile float64
}

// AgentConfig configures the routing agent the simulator drives. An empty
// URL selects the in-process baseline agent.
type AgentConfig struct {
	URL            string
	TimeoutSeconds int
	InternalAPIKey string
}

// EventBusConfig holds NATS JetStream configuration
type EventBusConfig struct {
	URL        string
	Enabled    bool
	StreamName string
}

// ResilienceConfig groups runtime resilience controls
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig captures default and per-service breaker tuning
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	TimeoutSeconds   int
	IntervalSeconds  int
	ServiceOverrides map[string]CircuitBreakerSettings
}

// CircuitBreakerSettings overrides defaults for a specific upstream service
type CircuitBreakerSettings struct {
	FailureThreshold int `json:"failure_threshold"`
	SuccessThreshold int `json:"success_threshold"`
	TimeoutSeconds   int `json:"timeout_seconds"`
	IntervalSeconds  int `json:"interval_seconds"`
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Simulation: SimulationConfig{
			AvgSpeedMPH:              getEnvAsFloat("AVG_SPEED_MPH", 30.0),
			FleetSize:                getEnvAsInt("FLEET_SIZE", 20),
			WheelchairRatio:          getEnvAsFloat("WHEELCHAIR_ACCESSIBLE_RATIO", 0.1),
			RequestCount:             getEnvAsInt("REQUEST_COUNT", 50),
			RequestSpacingSeconds:    getEnvAsInt("REQUEST_SPACING_SECONDS", 30),
			EndPaddingMinutes:        getEnvAsInt("DEFAULT_SIM_END_PADDING_MINUTES", 120),
			InterRequestDelaySeconds: getEnvAsFloat("INTER_REQUEST_DELAY_SECONDS", 0.0),
			ScenarioPath:             getEnv("SCENARIO_PATH", ""),
			EventsOutPath:            getEnv("EVENTS_OUT", "events.json"),
			SummaryOutPath:           getEnv("SUMMARY_OUT", "summary.json"),
			LiveFeedEnabled:          getEnvAsBool("LIVE_FEED_ENABLED", false),
			ServeAddr:                getEnv("SIM_SERVE_ADDR", ":8090"),
		},
		Pricing: PricingConfig{
			BaseFare:            getEnvAsFloat("BASE_FARE", 2.50),
			PerMileRate:         getEnvAsFloat("PER_MILE_RATE", 2.50),
			PerMinuteRate:       getEnvAsFloat("PER_MINUTE_RATE", 0.50),
			DeadheadCostPerMile: getEnvAsFloat("DEADHEAD_COST_PER_MILE", 0.50),
		},
		Agent: AgentConfig{
			URL:            getEnv("AGENT_URL", ""),
			TimeoutSeconds: getEnvAsInt("AGENT_TIMEOUT_SECONDS", 30),
			InternalAPIKey: getEnv("INTERNAL_API_KEY", ""),
		},
		EventBus: EventBusConfig{
			URL:        getEnv("NATS_URL", "nats://localhost:4222"),
			Enabled:    getEnvAsBool("EVENTBUS_ENABLED", false),
			StreamName: getEnv("EVENTBUS_STREAM", "DISPATCH"),
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          getEnvAsBool("CB_ENABLED", false),
				FailureThreshold: getEnvAsInt("CB_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvAsInt("CB_SUCCESS_THRESHOLD", 1),
				TimeoutSeconds:   getEnvAsInt("CB_TIMEOUT_SECONDS", 30),
				IntervalSeconds:  getEnvAsInt("CB_INTERVAL_SECONDS", 60),
			},
		},
	}

	if seedStr := getEnv("RANDOM_SEED", ""); seedStr != "" {
		seed, err := strconv.ParseInt(seedStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RANDOM_SEED value: %w", err)
		}
		cfg.Simulation.RandomSeed = seed
		cfg.Simulation.SeedSet = true
	}

	if breakerOverrides := getEnv("CB_SERVICE_OVERRIDES", ""); breakerOverrides != "" {
		var serviceConfig map[string]CircuitBreakerSettings
		if err := json.Unmarshal([]byte(breakerOverrides), &serviceConfig); err != nil {
			return nil, fmt.Errorf("invalid CB_SERVICE_OVERRIDES value: %w", err)
		}
		cfg.Resilience.CircuitBreaker.ServiceOverrides = serviceConfig
	}

	if cfg.Simulation.AvgSpeedMPH <= 0 {
		cfg.Simulation.AvgSpeedMPH = 30.0
	}

	if cfg.Simulation.WheelchairRatio < 0 {
		cfg.Simulation.WheelchairRatio = 0
	}

	if cfg.Simulation.WheelchairRatio > 1 {
		cfg.Simulation.WheelchairRatio = 1
	}

	if cfg.Simulation.FleetSize <= 0 {
		cfg.Simulation.FleetSize = 20
	}

	if cfg.Simulation.RequestCount < 0 {
		cfg.Simulation.RequestCount = 0
	}

	if cfg.Simulation.InterRequestDelaySeconds < 0 {
		cfg.Simulation.InterRequestDelaySeconds = 0
	}

	if cfg.Simulation.EndPaddingMinutes < 0 {
		cfg.Simulation.EndPaddingMinutes = 120
	}

	if cfg.Agent.TimeoutSeconds <= 0 {
		cfg.Agent.TimeoutSeconds = 30
	}

	if cfg.Resilience.CircuitBreaker.TimeoutSeconds <= 0 {
		cfg.Resilience.CircuitBreaker.TimeoutSeconds = 30
	}

	if cfg.Resilience.CircuitBreaker.IntervalSeconds <= 0 {
		cfg.Resilience.CircuitBreaker.IntervalSeconds = 60
	}

	if cfg.Resilience.CircuitBreaker.FailureThreshold <= 0 {
		cfg.Resilience.CircuitBreaker.FailureThreshold = 5
	}

	if cfg.Resilience.CircuitBreaker.SuccessThreshold <= 0 {
		cfg.Resilience.CircuitBreaker.SuccessThreshold = 1
	}

	return cfg, nil
}

// SettingsFor returns effective breaker settings for a specific upstream service name
func (c CircuitBreakerConfig) SettingsFor(service string) CircuitBreakerSettings {
	settings := CircuitBreakerSettings{
		FailureThreshold: c.FailureThreshold,
		SuccessThreshold: c.SuccessThreshold,
		TimeoutSeconds:   c.TimeoutSeconds,
		IntervalSeconds:  c.IntervalSeconds,
	}

	if c.ServiceOverrides != nil {
		if override, ok := c.ServiceOverrides[service]; ok {
			if override.FailureThreshold > 0 {
				settings.FailureThreshold = override.FailureThreshold
			}
			if override.SuccessThreshold > 0 {
				settings.SuccessThreshold = override.SuccessThreshold
			}
			if override.TimeoutSeconds > 0 {
				settings.TimeoutSeconds = override.TimeoutSeconds
			}
			if override.IntervalSeconds > 0 {
				settings.IntervalSeconds = override.IntervalSeconds
			}
		}
	}

	if settings.SuccessThreshold <= 0 {
		settings.SuccessThreshold = 1
	}
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.TimeoutSeconds <= 0 {
		settings.TimeoutSeconds = 30
	}
	if settings.IntervalSeconds <= 0 {
		settings.IntervalSeconds = 60
	}

	return settings
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
