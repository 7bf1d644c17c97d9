package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCacheTTL = 10 * time.Minute
	meterName       = "github.com/prasathkrishna17/Botique-maid/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (secretManagerClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// ErrNotFound is returned when neither Secret Manager nor the fallback file has the secret.
var ErrNotFound = errors.New("secrets: secret not found")

// Fetcher resolves secret:// references against Secret Manager. Values are cached for a
// bounded time so rotated Stripe and Geocodio keys are picked up without a restart. Outside
// production a local fallback file can stand in for Secret Manager.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	projectID  string
	cacheTTL   time.Duration
	clock      func() time.Time
	fallback   *fallbackFile

	mu    sync.RWMutex
	cache map[string]cacheEntry

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

type fetcherConfig struct {
	logger       *zap.Logger
	projectID    string
	environment  string
	fallbackPath string
	cacheTTL     time.Duration
	clock        func() time.Time
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithProject sets the project used when a reference carries no ?project= override.
func WithProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.projectID = strings.TrimSpace(projectID) }
}

// WithEnvironment sets the deployment environment. The fallback file is ignored in "prod".
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) { cfg.environment = strings.ToLower(strings.TrimSpace(env)) }
}

// WithFallbackFile sets the KEY=VALUE file consulted when Secret Manager is unreachable.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

// WithCacheTTL bounds how long resolved values are reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *fetcherConfig) {
		if ttl > 0 {
			cfg.cacheTTL = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(cfg *fetcherConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithMeter injects an OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = m }
}

// WithSecretManagerClient injects a preconfigured client.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// WithClientOptions forwards options to the Secret Manager client constructor.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// NewFetcher builds a Fetcher. A Secret Manager client that cannot be created is logged and
// the fetcher runs on the fallback file alone.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:   zap.NewNop(),
		cacheTTL: defaultCacheTTL,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	latency, err := meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret resolution"),
	)
	if err != nil {
		return nil, fmt.Errorf("secrets: register latency metric: %w", err)
	}
	cacheHits, err := meter.Int64Counter("secrets.fetch.cache_hits",
		metric.WithDescription("Secret resolutions served from cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("secrets: register cache metric: %w", err)
	}

	f := &Fetcher{
		logger:    cfg.logger,
		projectID: cfg.projectID,
		cacheTTL:  cfg.cacheTTL,
		clock:     cfg.clock,
		cache:     make(map[string]cacheEntry),
		latency:   latency,
		cacheHits: cacheHits,
	}
	if cfg.environment != "prod" && cfg.fallbackPath != "" {
		f.fallback = &fallbackFile{path: cfg.fallbackPath}
	}

	switch {
	case cfg.client != nil:
		f.client = cfg.client
	case cfg.projectID != "":
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager unavailable, using fallback only", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value for a secret://name[?version=N&project=P] reference.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := f.clock()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	if value, ok := f.cached(parsed.key()); ok {
		f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", maskReference(parsed.Canonical))))
		return value, nil
	}

	value, source, err := f.fetch(ctx, parsed)
	f.latency.Record(ctx, float64(f.clock().Sub(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source), attribute.Bool("error", err != nil)))
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.cache[parsed.key()] = cacheEntry{value: value, fetchedAt: f.clock()}
	f.mu.Unlock()
	return value, nil
}

// Invalidate drops every cached version of ref.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.cache {
		if strings.HasPrefix(key, parsed.Canonical+"#") {
			delete(f.cache, key)
		}
	}
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.cache[key]
	if !ok || f.clock().Sub(entry.fetchedAt) >= f.cacheTTL {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) fetch(ctx context.Context, ref parsedReference) (string, string, error) {
	project := ref.Project
	if project == "" {
		project = f.projectID
	}

	if f.client != nil && project != "" {
		name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.Secret, ref.versionOrLatest())
		resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		if err == nil {
			if resp.GetPayload() == nil {
				return "", "remote", fmt.Errorf("secrets: empty payload for %s", ref.Canonical)
			}
			return string(resp.GetPayload().GetData()), "remote", nil
		}
		if !fallbackEligible(err) || f.fallback == nil {
			if status.Code(err) == codes.NotFound {
				return "", "remote", fmt.Errorf("%w: %s", ErrNotFound, ref.Canonical)
			}
			return "", "remote", fmt.Errorf("secrets: access %s: %w", ref.Canonical, err)
		}
		f.logger.Debug("secrets: using local fallback", zap.String("secret", maskReference(ref.Canonical)), zap.Error(err))
	}

	if f.fallback == nil {
		return "", "fallback", fmt.Errorf("%w: %s (no secret manager client)", ErrNotFound, ref.Canonical)
	}
	value, ok, err := f.fallback.lookup(ref)
	if err != nil {
		return "", "fallback", err
	}
	if !ok {
		return "", "fallback", fmt.Errorf("%w: %s", ErrNotFound, ref.Canonical)
	}
	return value, "fallback", nil
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded, codes.NotFound:
		return true
	}
	return false
}
