package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Every external dependency is optional: without REDIS_ADDR, PG_DSN or KAFKA_BROKERS the
// server runs on in-process stores, which is how it runs locally and in tests.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr        string
	RedisPassword    string
	RedisRequestsKey string

	KafkaBrokers       []string
	KafkaEventsTopic   string
	KafkaRequestsTopic string

	PGDSN string

	OSRMEndpoint     string
	GoogleMapsAPIKey string
	RoutingTimeout   time.Duration
	PathCacheTTL     time.Duration
	FallbackSpeedKmh float64

	FirebaseCredentialsFile string
	FirebaseProjectID       string

	MatchRadiusKm       float64
	MatchMaxDetour      float64
	MatchMinOverlap     float64
	MatchNotifyOverlap  float64
	CandidateQueryLimit int

	OpportunityTTL           time.Duration
	OpportunityMaxPassengers int
	ExpirySweepInterval      time.Duration
	NotifyCooldown           time.Duration

	LogLevel      string
	RunMigrations bool
}

// ConsumerConfig drives cmd/consumer.
type ConsumerConfig struct {
	MetricsAddr        string
	RedisAddr          string
	RedisPassword      string
	RedisRequestsKey   string
	KafkaBrokers       []string
	KafkaRequestsTopic string
	KafkaGroup         string
	LogLevel           string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:                 ":8080",
		ReadTimeout:              5 * time.Second,
		WriteTimeout:             15 * time.Second,
		IdleTimeout:              120 * time.Second,
		ShutdownTimeout:          15 * time.Second,
		RedisRequestsKey:         "ride_requests_geo",
		KafkaEventsTopic:         "shared-ride-events",
		KafkaRequestsTopic:       "ride-requests",
		RoutingTimeout:           8 * time.Second,
		PathCacheTTL:             5 * time.Minute,
		FallbackSpeedKmh:         40,
		MatchRadiusKm:            3,
		MatchMaxDetour:           0.25,
		MatchMinOverlap:          0.3,
		MatchNotifyOverlap:       0.5,
		CandidateQueryLimit:      50,
		OpportunityTTL:           5 * time.Minute,
		OpportunityMaxPassengers: 4,
		ExpirySweepInterval:      15 * time.Second,
		NotifyCooldown:           10 * time.Minute,
		LogLevel:                 "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisRequestsKey, "REDIS_REQUESTS_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaEventsTopic, "KAFKA_EVENTS_TOPIC")
	setStringFromEnv(&cfg.KafkaRequestsTopic, "KAFKA_REQUESTS_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")
	cfg.GoogleMapsAPIKey = strings.TrimSpace(os.Getenv("GOOGLE_MAPS_API_KEY"))
	setDurationFromEnv(&cfg.RoutingTimeout, "ROUTING_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.PathCacheTTL, "PATH_CACHE_TTL", &errs)
	setFloatFromEnv(&cfg.FallbackSpeedKmh, "FALLBACK_SPEED_KMH", &errs)

	setStringFromEnv(&cfg.FirebaseCredentialsFile, "FIREBASE_CREDENTIALS_FILE")
	setStringFromEnv(&cfg.FirebaseProjectID, "FIREBASE_PROJECT_ID")

	setFloatFromEnv(&cfg.MatchRadiusKm, "MATCH_RADIUS_KM", &errs)
	setFloatFromEnv(&cfg.MatchMaxDetour, "MATCH_MAX_DETOUR", &errs)
	setFloatFromEnv(&cfg.MatchMinOverlap, "MATCH_MIN_OVERLAP", &errs)
	setFloatFromEnv(&cfg.MatchNotifyOverlap, "MATCH_NOTIFY_OVERLAP", &errs)
	setIntFromEnv(&cfg.CandidateQueryLimit, "CANDIDATE_QUERY_LIMIT", &errs)

	setDurationFromEnv(&cfg.OpportunityTTL, "OPPORTUNITY_TTL", &errs)
	setIntFromEnv(&cfg.OpportunityMaxPassengers, "OPPORTUNITY_MAX_PASSENGERS", &errs)
	setDurationFromEnv(&cfg.ExpirySweepInterval, "EXPIRY_SWEEP_INTERVAL", &errs)
	setDurationFromEnv(&cfg.NotifyCooldown, "NOTIFY_COOLDOWN", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	errs = append(errs, cfg.validate()...)
	return cfg, errors.Join(errs...)
}

func (c ServerConfig) validate() []error {
	var errs []error
	if !(c.MatchRadiusKm > 0) {
		errs = append(errs, fmt.Errorf("MATCH_RADIUS_KM must be > 0"))
	}
	if !(c.MatchMaxDetour > 0) {
		errs = append(errs, fmt.Errorf("MATCH_MAX_DETOUR must be > 0"))
	}
	if !(c.MatchMinOverlap > 0) || c.MatchMinOverlap > 1 {
		errs = append(errs, fmt.Errorf("MATCH_MIN_OVERLAP must be within (0,1]"))
	}
	if c.MatchNotifyOverlap < 0 || c.MatchNotifyOverlap > 1 {
		errs = append(errs, fmt.Errorf("MATCH_NOTIFY_OVERLAP must be within [0,1]"))
	}
	if c.CandidateQueryLimit <= 0 {
		errs = append(errs, fmt.Errorf("CANDIDATE_QUERY_LIMIT must be > 0"))
	}
	if c.OpportunityMaxPassengers <= 1 {
		errs = append(errs, fmt.Errorf("OPPORTUNITY_MAX_PASSENGERS must be > 1"))
	}
	if c.OpportunityTTL <= 0 || c.ExpirySweepInterval <= 0 || c.RoutingTimeout <= 0 {
		errs = append(errs, fmt.Errorf("OPPORTUNITY_TTL, EXPIRY_SWEEP_INTERVAL and ROUTING_TIMEOUT must be > 0"))
	}
	if !(c.FallbackSpeedKmh > 0) {
		errs = append(errs, fmt.Errorf("FALLBACK_SPEED_KMH must be > 0"))
	}
	return errs
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		MetricsAddr:        ":2112",
		RedisAddr:          "localhost:6379",
		RedisRequestsKey:   "ride_requests_geo",
		KafkaBrokers:       []string{"localhost:9092"},
		KafkaRequestsTopic: "ride-requests",
		KafkaGroup:         "shared-ride-consumer",
		LogLevel:           "info",
	}
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisRequestsKey, "REDIS_REQUESTS_KEY")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaRequestsTopic, "KAFKA_REQUESTS_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if len(cfg.KafkaBrokers) == 0 {
		return cfg, errors.New("KAFKA_BROKERS must list at least one broker")
	}
	return cfg, nil
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

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
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
