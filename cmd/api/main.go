package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/prasathkrishna17/Botique-maid/internal/di"
	"github.com/prasathkrishna17/Botique-maid/internal/geocoding"
	"github.com/prasathkrishna17/Botique-maid/internal/handlers"
	"github.com/prasathkrishna17/Botique-maid/internal/metrics"
	"github.com/prasathkrishna17/Botique-maid/internal/payments"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/auth"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/config"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/events"
	pfirestore "github.com/prasathkrishna17/Botique-maid/internal/platform/firestore"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/idempotency"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/observability"
	ppostgres "github.com/prasathkrishna17/Botique-maid/internal/platform/postgres"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/ratelimit"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/scheduler"
	"github.com/prasathkrishna17/Botique-maid/internal/platform/secrets"
	platformstorage "github.com/prasathkrishna17/Botique-maid/internal/platform/storage"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
	firestoreRepo "github.com/prasathkrishna17/Botique-maid/internal/repositories/firestore"
	postgresRepo "github.com/prasathkrishna17/Botique-maid/internal/repositories/postgres"
	"github.com/prasathkrishna17/Botique-maid/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(
		observability.WithLogLevel(envValues["BOUTIQUE_LOG_LEVEL"]),
		observability.WithLogEnvironment(envValues["BOUTIQUE_ENVIRONMENT"]),
		observability.WithLogVersion(envValues["BOUTIQUE_BUILD_VERSION"]),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	metricsRegistry := metrics.NewRegistry()

	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
	}

	var firestoreProvider *pfirestore.Provider
	if cfg.Store.Backend == config.StoreBackendFirestore || cfg.Idempotency.Backend == config.IdempotencyBackendFirestore {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		if _, err := firestoreProvider.Client(ctx); err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		if cfg.Store.Backend != config.StoreBackendFirestore {
			// The registry owns the provider otherwise.
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := firestoreProvider.Close(closeCtx); err != nil {
					logger.Warn("firestore close error", zap.Error(err))
				}
			}()
		}
	}

	registry, err := newRegistry(ctx, logger, cfg, firestoreProvider, dependencyChecks(fetcher, redisClient))
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	geocoder, err := newGeocoder(logger.Named("geocoding"), cfg, redisClient)
	if err != nil {
		logger.Fatal("failed to initialise geocoder", zap.Error(err))
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.Payments.StripeAPIKey,
		WebhookSecret: cfg.Payments.StripeWebhookSecret,
		Logger:        observability.EventLogger(logger.Named("stripe")),
		Clock:         time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}
	paymentManager, err := payments.NewManager(
		map[string]payments.Provider{"stripe": stripeProvider},
		payments.WithCurrencyRoutes(map[string]string{cfg.Payments.Currency: "stripe"}),
	)
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	publisher, err := newEventPublisher(ctx, logger.Named("events"), cfg)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("event publisher close error", zap.Error(err))
		}
	}()

	deps := di.Dependencies{
		Geocoder: geocoder,
		Payments: paymentManager,
		Events:   publisher,
		Observer: metricsRegistry,
		Build:    buildInfo,
		Logger:   logger,
		Clock:    time.Now,
	}
	if bucket := strings.TrimSpace(cfg.Reports.Bucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		reports, err := platformstorage.NewWriter(storageClient, bucket)
		if err != nil {
			logger.Fatal("failed to initialise report writer", zap.Error(err))
		}
		deps.Reports = reports
	} else {
		logger.Warn("reports: bucket not configured; reconciliation export disabled")
	}

	container, err := di.NewContainer(ctx, cfg, registry, deps)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()
	svc := container.Services

	idempotencyStore := newIdempotencyStore(cfg, firestoreProvider, redisClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
		idempotency.WithClock(time.Now),
		idempotency.WithReplayHook(metricsRegistry.IdempotentReplay),
	)

	lookupLimiter := ratelimit.PerMinute(cfg.RateLimits.LookupPerMinute, cfg.RateLimits.LookupBurst)
	rateLimitLogger := logger.Named("ratelimit")
	lookupMiddleware := lookupLimiter.Middleware(observability.ClientIP, func(r *http.Request) {
		rateLimitLogger.Warn("booking lookup rate limited", zap.String("client", observability.ClientIP(r)))
	})

	jobs := scheduler.New(
		scheduler.WithLogger(logger.Named("scheduler")),
		scheduler.WithJobTimeout(time.Minute),
	)
	if err := jobs.Add("idempotency-cleanup", cfg.Idempotency.CleanupSchedule, func(ctx context.Context) error {
		removed, err := idempotencyStore.CleanupExpired(ctx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Named("idempotency").Info("idempotency cleanup removed records", zap.Int("count", removed))
		}
		return nil
	}); err != nil {
		logger.Fatal("failed to schedule idempotency cleanup", zap.Error(err))
	}
	if err := jobs.Add("ratelimit-prune", "@every 5m", func(context.Context) error {
		lookupLimiter.Prune()
		return nil
	}); err != nil {
		logger.Fatal("failed to schedule rate limiter pruning", zap.Error(err))
	}
	jobs.Start()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	staffAuthenticator := auth.NewStaffAuthenticator(firebaseVerifier)
	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg, metricsRegistry)

	flowHandlers := handlers.NewFlowHandlers(svc.Areas, svc.Pricing, svc.Sessions)
	bookingHandlers := handlers.NewBookingHandlers(svc.Bookings, svc.Payments,
		handlers.WithLookupMiddlewares(lookupMiddleware),
		handlers.WithIdempotencyMiddlewares(idempotencyMiddleware),
		handlers.WithIdempotencyHeader(cfg.Idempotency.Header),
	)
	staffHandlers := handlers.NewStaffHandlers(svc.Reconciliations, svc.Areas, svc.Bookings)
	webhookHandlers := handlers.NewWebhookHandlers(svc.Payments)
	internalHandlers := handlers.NewInternalHandlers(svc.Reconciliations)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequesterMiddleware(),
		observability.RequestLoggerMiddleware(),
		metricsRegistry.Middleware,
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithMetricsHandler(metricsRegistry.Handler()))
	opts = append(opts, handlers.WithPublicRoutes(flowHandlers.Routes))
	opts = append(opts, handlers.WithPublicRoutes(bookingHandlers.Routes))
	opts = append(opts, handlers.WithStaffRoutes(staffHandlers.Routes))
	opts = append(opts, handlers.WithStaffMiddlewares(staffAuthenticator.RequireStaff(cfg.Security.StaffRole)))
	opts = append(opts, handlers.WithWebhookRoutes(webhookHandlers.Routes))
	opts = append(opts, handlers.WithInternalRoutes(internalHandlers.Routes))
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("booking api listening",
			zap.String("store", cfg.Store.Backend),
			zap.String("events", cfg.Events.Backend),
			zap.String("idempotency", cfg.Idempotency.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler stop error", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["BOUTIQUE_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["BOUTIQUE_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newRegistry(ctx context.Context, logger *zap.Logger, cfg config.Config, provider *pfirestore.Provider, checks []repositories.DependencyCheck) (repositories.Registry, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		db, err := ppostgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.MigrateOnStart {
			version, err := ppostgres.Migrate(db.DB)
			if err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("postgres migrations applied", zap.Uint("version", version))
		}
		return postgresRepo.NewRegistry(db, checks...)
	case config.StoreBackendFirestore:
		return firestoreRepo.NewRegistry(provider, checks, firestoreRepo.WithReferenceStart(cfg.Business.ReferenceStart))
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

func dependencyChecks(fetcher *secrets.Fetcher, redisClient *redis.Client) []repositories.DependencyCheck {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if redisClient != nil {
		client := redisClient
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system-healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				if errors.Is(err, secrets.ErrNotFound) {
					return nil
				}
				return err
			},
		})
	}
	return checks
}

func newGeocoder(logger *zap.Logger, cfg config.Config, redisClient *redis.Client) (services.Geocoder, error) {
	client, err := geocoding.NewClient(cfg.Geocoding, geocoding.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if redisClient == nil {
		logger.Warn("geocoding: redis not configured; lookups are not cached")
		return client, nil
	}
	return geocoding.NewCachedGeocoder(client, redisClient,
		geocoding.WithCacheTTL(cfg.Geocoding.CacheTTL),
		geocoding.WithCacheLogger(logger),
	)
}

func newEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (events.Publisher, error) {
	switch cfg.Events.Backend {
	case config.EventsBackendPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Events.PubSubProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		return events.NewPubSubPublisher(client.Topic(cfg.Events.PubSubTopic), client)
	case config.EventsBackendKafka:
		return events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
	default:
		return events.NewLogPublisher(logger), nil
	}
}

func newIdempotencyStore(cfg config.Config, provider *pfirestore.Provider, redisClient *redis.Client) idempotency.Store {
	switch cfg.Idempotency.Backend {
	case config.IdempotencyBackendRedis:
		return idempotency.NewRedisStore(redisClient)
	case config.IdempotencyBackendFirestore:
		return idempotency.NewFirestoreStore(provider)
	default:
		return idempotency.NewMemoryStore()
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config, recorder *metrics.Registry) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(logger))
	validator := auth.NewOIDCValidator(cache,
		auth.WithOIDCLogger(logger),
		auth.WithVerificationRecorder(recorder.TokenVerification),
	)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("BOUTIQUE_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	project := lookup("BOUTIQUE_SECRETS_PROJECT_ID")
	if project == "" {
		project = lookup("BOUTIQUE_FIRESTORE_PROJECT_ID")
	}
	if project == "" {
		project = lookup("BOUTIQUE_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("BOUTIQUE_SECRETS_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("BOUTIQUE_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	required := []string{
		"Payments.StripeAPIKey",
		"Payments.StripeWebhookSecret",
		"Geocoding.APIKey",
	}
	if env != nil && strings.EqualFold(strings.TrimSpace(env["BOUTIQUE_STORE_BACKEND"]), config.StoreBackendPostgres) {
		required = append(required, "Postgres.DSN")
	}
	return uniqueStrings(required)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
