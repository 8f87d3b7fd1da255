package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AgentConfig captures all tunable parameters for the broadcast agent.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type AgentConfig struct {
	APIBaseURL string
	WSURL      string

	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	PollInterval     time.Duration
	FetchMinInterval time.Duration
	GraceWindow      time.Duration
	StatusInterval   time.Duration

	GeoTimeout time.Duration
	DefaultLat float64
	DefaultLng float64

	// Optional fixed device coordinate for hosts without a positioning
	// source; both DEVICE_LAT and DEVICE_LNG must be set.
	DeviceLat float64
	DeviceLng float64
	HasDevice bool

	DriverID    string
	DriverRole  string
	DriverToken string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	LogLevel string
}

func defaultAgentConfig() AgentConfig {
	return AgentConfig{
		APIBaseURL:       "http://localhost:3001/api",
		WSURL:            "ws://localhost:3001/socket",
		HTTPAddr:         ":8080",
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     10 * time.Second,
		IdleTimeout:      120 * time.Second,
		ShutdownTimeout:  15 * time.Second,
		PollInterval:     3 * time.Minute,
		FetchMinInterval: 5 * time.Second,
		GraceWindow:      30 * time.Second,
		StatusInterval:   30 * time.Second,
		GeoTimeout:       3 * time.Second,
		DefaultLat:       35.1255,
		DefaultLng:       33.3095,
		DriverRole:       "driver",
		KafkaTopic:       "driver-locations",
		LogLevel:         "info",
	}
}

func LoadAgentConfig() (AgentConfig, error) {
	cfg := defaultAgentConfig()
	var errs []error

	setStringFromEnv(&cfg.APIBaseURL, "API_BASE_URL")
	setStringFromEnv(&cfg.WSURL, "WS_URL")
	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")

	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	setDurationFromEnv(&cfg.PollInterval, "POLL_INTERVAL", &errs)
	setDurationFromEnv(&cfg.FetchMinInterval, "FETCH_MIN_INTERVAL", &errs)
	setDurationFromEnv(&cfg.GraceWindow, "GRACE_WINDOW", &errs)
	setDurationFromEnv(&cfg.StatusInterval, "STATUS_INTERVAL", &errs)
	setDurationFromEnv(&cfg.GeoTimeout, "GEO_TIMEOUT", &errs)

	setFloatFromEnv(&cfg.DefaultLat, "DEFAULT_LAT", &errs)
	setFloatFromEnv(&cfg.DefaultLng, "DEFAULT_LNG", &errs)

	if os.Getenv("DEVICE_LAT") != "" && os.Getenv("DEVICE_LNG") != "" {
		setFloatFromEnv(&cfg.DeviceLat, "DEVICE_LAT", &errs)
		setFloatFromEnv(&cfg.DeviceLng, "DEVICE_LNG", &errs)
		cfg.HasDevice = true
	}

	cfg.DriverID = strings.TrimSpace(os.Getenv("DRIVER_ID"))
	setStringFromEnv(&cfg.DriverRole, "DRIVER_ROLE")
	cfg.DriverToken = os.Getenv("DRIVER_TOKEN")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.DriverID == "" {
		errs = append(errs, fmt.Errorf("DRIVER_ID must be set"))
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be > 0"))
	}
	if cfg.FetchMinInterval < 0 {
		errs = append(errs, fmt.Errorf("FETCH_MIN_INTERVAL must be >= 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
