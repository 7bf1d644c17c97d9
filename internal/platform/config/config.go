package config

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

const (
	envPrefix = "BOUTIQUE_"

	defaultEnvFile              = ".env"
	defaultEnvironment          = "local"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultStoreBackend         = StoreBackendFirestore
	defaultPostgresMaxOpen      = 10
	defaultPostgresMaxIdle      = 5
	defaultPostgresConnLifetime = 30 * time.Minute
	defaultCurrency             = "cad"
	defaultGeocodioBaseURL      = "https://api.geocod.io/v1.7"
	defaultGeocodeTimeout       = 5 * time.Second
	defaultGeocodeCacheTTL      = 24 * time.Hour
	defaultEventsBackend        = EventsBackendLog
	defaultLookupPerMinute      = 10
	defaultLookupBurst          = 5
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer           = "https://accounts.google.com"
	defaultStaffRole            = "staff"
	defaultIdempotencyBackend   = IdempotencyBackendMemory
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencySchedule  = "@every 1h"
	defaultIdempotencyBatchSize = 200
	defaultTimeZone             = "America/Toronto"
	defaultReferenceStart       = 100000
	defaultSecretsFallbackFile  = ".secrets.local"
)

// Store backends.
const (
	StoreBackendFirestore = "firestore"
	StoreBackendPostgres  = "postgres"
)

// Event publisher backends.
const (
	EventsBackendLog    = "log"
	EventsBackendPubSub = "pubsub"
	EventsBackendKafka  = "kafka"
)

// Idempotency store backends.
const (
	IdempotencyBackendMemory    = "memory"
	IdempotencyBackendRedis     = "redis"
	IdempotencyBackendFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Store       StoreConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Postgres    PostgresConfig
	Payments    PaymentsConfig
	Geocoding   GeocodingConfig
	Redis       RedisConfig
	Events      EventsConfig
	RateLimits  RateLimitConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
	Reports     ReportsConfig
	Business    BusinessConfig
	Secrets     SecretsConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StoreConfig selects the persistence backend for bookings and service areas.
type StoreConfig struct {
	Backend string
}

// FirebaseConfig configures the Admin SDK used to verify staff tokens.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig configures the Firestore client.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PostgresConfig configures the SQL store.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

// PaymentsConfig holds payment processor credentials.
type PaymentsConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
	Currency            string
}

// GeocodingConfig configures the Geocodio client and its cache.
type GeocodingConfig struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// RedisConfig configures the shared Redis client. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// EventsConfig selects where booking events are published.
type EventsConfig struct {
	Backend         string
	PubSubProjectID string
	PubSubTopic     string
	KafkaBrokers    []string
	KafkaTopic      string
}

// RateLimitConfig bounds booking lookups per client.
type RateLimitConfig struct {
	LookupPerMinute int
	LookupBurst     int
}

// SecurityConfig groups staff and service authentication settings.
type SecurityConfig struct {
	OIDC      OIDCConfig
	StaffRole string
}

// OIDCConfig configures verification of Google-signed service tokens (Cloud Scheduler).
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// IdempotencyConfig controls the double-submit guard.
type IdempotencyConfig struct {
	Backend          string
	Header           string
	TTL              time.Duration
	CleanupSchedule  string
	CleanupBatchSize int
}

// ReportsConfig configures reconciliation report exports.
type ReportsConfig struct {
	Bucket string
}

// BusinessConfig holds operating rules that are not prices.
type BusinessConfig struct {
	TimeZone       string
	ReferenceStart int64
}

// Location returns the business time zone, falling back to UTC when it cannot be loaded.
func (b BusinessConfig) Location() *time.Location {
	loc, err := time.LoadLocation(b.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SecretsConfig configures Secret Manager resolution.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// Load assembles configuration from defaults, a .env file, the process environment, an
// explicit map and secret references, in increasing order of precedence.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts...)

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	env := envLookup{options: options, dotEnv: dotEnv}

	cfg := Config{
		Environment: strings.ToLower(env.str("ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:         env.str("SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(env.str("STORE_BACKEND", defaultStoreBackend)),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("FIRESTORE_EMULATOR_HOST", ""),
		},
		Postgres: PostgresConfig{
			DSN:             env.str("POSTGRES_DSN", ""),
			MaxOpenConns:    env.int("POSTGRES_MAX_OPEN_CONNS", defaultPostgresMaxOpen),
			MaxIdleConns:    env.int("POSTGRES_MAX_IDLE_CONNS", defaultPostgresMaxIdle),
			ConnMaxLifetime: env.duration("POSTGRES_CONN_MAX_LIFETIME", defaultPostgresConnLifetime),
			MigrateOnStart:  env.bool("POSTGRES_MIGRATE_ON_START", false),
		},
		Payments: PaymentsConfig{
			StripeAPIKey:        env.str("STRIPE_API_KEY", ""),
			StripeWebhookSecret: env.str("STRIPE_WEBHOOK_SECRET", ""),
			Currency:            strings.ToLower(env.str("CURRENCY", defaultCurrency)),
		},
		Geocoding: GeocodingConfig{
			APIKey:   env.str("GEOCODIO_API_KEY", ""),
			BaseURL:  env.str("GEOCODIO_BASE_URL", defaultGeocodioBaseURL),
			Timeout:  env.duration("GEOCODE_TIMEOUT", defaultGeocodeTimeout),
			CacheTTL: env.duration("GEOCODE_CACHE_TTL", defaultGeocodeCacheTTL),
		},
		Redis: RedisConfig{
			Addr:     env.str("REDIS_ADDR", ""),
			Password: env.str("REDIS_PASSWORD", ""),
			DB:       env.int("REDIS_DB", 0),
		},
		Events: EventsConfig{
			Backend:         strings.ToLower(env.str("EVENTS_BACKEND", defaultEventsBackend)),
			PubSubProjectID: env.str("PUBSUB_PROJECT_ID", ""),
			PubSubTopic:     env.str("PUBSUB_TOPIC", "booking-events"),
			KafkaBrokers:    env.csv("KAFKA_BROKERS"),
			KafkaTopic:      env.str("KAFKA_TOPIC", "booking-events"),
		},
		RateLimits: RateLimitConfig{
			LookupPerMinute: env.int("RATELIMIT_LOOKUP_PER_MIN", defaultLookupPerMinute),
			LookupBurst:     env.int("RATELIMIT_LOOKUP_BURST", defaultLookupBurst),
		},
		Security: SecurityConfig{
			OIDC: OIDCConfig{
				JWKSURL:  env.str("SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: env.str("SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  env.csv("SECURITY_OIDC_ISSUERS"),
			},
			StaffRole: strings.ToLower(env.str("SECURITY_STAFF_ROLE", defaultStaffRole)),
		},
		Idempotency: IdempotencyConfig{
			Backend:          strings.ToLower(env.str("IDEMPOTENCY_BACKEND", defaultIdempotencyBackend)),
			Header:           env.str("IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              env.duration("IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupSchedule:  env.str("IDEMPOTENCY_CLEANUP_SCHEDULE", defaultIdempotencySchedule),
			CleanupBatchSize: env.int("IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Reports: ReportsConfig{
			Bucket: env.str("STORAGE_REPORTS_BUCKET", ""),
		},
		Business: BusinessConfig{
			TimeZone:       env.str("BUSINESS_TIMEZONE", defaultTimeZone),
			ReferenceStart: int64(env.int("BOOKING_REFERENCE_START", defaultReferenceStart)),
		},
		Secrets: SecretsConfig{
			ProjectID:    env.str("SECRETS_PROJECT_ID", ""),
			FallbackFile: env.str("SECRETS_FALLBACK_FILE", defaultSecretsFallbackFile),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Events.PubSubProjectID == "" {
		cfg.Events.PubSubProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultOIDCIssuer}
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Payments.StripeAPIKey", &cfg.Payments.StripeAPIKey},
		{"Payments.StripeWebhookSecret", &cfg.Payments.StripeWebhookSecret},
		{"Geocoding.APIKey", &cfg.Geocoding.APIKey},
		{"Postgres.DSN", &cfg.Postgres.DSN},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	switch cfg.Store.Backend {
	case StoreBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	case StoreBackendPostgres:
		if cfg.Postgres.DSN == "" {
			invalid = append(invalid, "Postgres.DSN")
		}
	default:
		invalid = append(invalid, "Store.Backend")
	}
	if !slices.Contains([]string{EventsBackendLog, EventsBackendPubSub, EventsBackendKafka}, cfg.Events.Backend) {
		invalid = append(invalid, "Events.Backend")
	}
	if cfg.Events.Backend == EventsBackendKafka && len(cfg.Events.KafkaBrokers) == 0 {
		invalid = append(invalid, "Events.KafkaBrokers")
	}
	switch cfg.Idempotency.Backend {
	case IdempotencyBackendMemory:
	case IdempotencyBackendRedis:
		if cfg.Redis.Addr == "" {
			invalid = append(invalid, "Redis.Addr")
		}
	case IdempotencyBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	default:
		invalid = append(invalid, "Idempotency.Backend")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		invalid = append(invalid, "Idempotency.CleanupBatchSize")
	}
	if cfg.RateLimits.LookupPerMinute <= 0 {
		invalid = append(invalid, "RateLimits.LookupPerMinute")
	}
	if _, err := time.LoadLocation(cfg.Business.TimeZone); err != nil {
		invalid = append(invalid, "Business.TimeZone")
	}
	if cfg.Payments.Currency == "" {
		invalid = append(invalid, "Payments.Currency")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}
