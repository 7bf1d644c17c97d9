package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{values: map[string]string{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.GetName()]++
	if err, ok := f.errs[req.GetName()]; ok {
		return nil, err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

const stripeResource = "projects/boutique/secrets/stripe_api_key/versions/latest"

func TestResolveCachesUntilTTL(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[stripeResource] = "sk_test_1"

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("boutique"),
		WithCacheTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
		if err != nil || got != "sk_test_1" {
			t.Fatalf("Resolve = %q, %v", got, err)
		}
	}
	if calls := client.callCount(stripeResource); calls != 1 {
		t.Fatalf("expected one remote call, got %d", calls)
	}

	client.values[stripeResource] = "sk_test_2"
	now = now.Add(2 * time.Minute)
	got, err := fetcher.ResolveSecret(ctx, "sm://stripe_api_key")
	if err != nil || got != "sk_test_2" {
		t.Fatalf("expected rotated secret after ttl, got %q %v", got, err)
	}
}

func TestResolvePinnedVersionAndProjectOverride(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values["projects/other/secrets/geocodio/versions/3"] = "geo-3"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("boutique"))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://geocodio?version=3&project=other")
	if err != nil || got != "geo-3" {
		t.Fatalf("Resolve = %q, %v", got, err)
	}
}

func TestResolveFallsBackOutsideProduction(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	content := "# local\nsecret://stripe_api_key=sk_local\nsecret://geocodio?version=2=geo_v2\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	client := newFakeSecretClient()
	client.errs[stripeResource] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("boutique"),
		WithFallbackFile(path),
		WithEnvironment("local"),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
	if err != nil || got != "sk_local" {
		t.Fatalf("expected fallback value, got %q %v", got, err)
	}

	offline, err := NewFetcher(ctx, WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got, err = offline.Resolve(ctx, "secret://geocodio?version=2")
	if err != nil || got != "geo_v2" {
		t.Fatalf("expected versioned fallback, got %q %v", got, err)
	}
}

func TestResolveIgnoresFallbackInProduction(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("secret://stripe_api_key=sk_local\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	client := newFakeSecretClient()
	client.errs[stripeResource] = status.Error(codes.Unavailable, "down")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("boutique"),
		WithFallbackFile(path),
		WithEnvironment("prod"),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	if _, err := fetcher.Resolve(ctx, "secret://stripe_api_key"); err == nil {
		t.Fatalf("expected production lookup to fail without fallback")
	}
}

func TestResolveReportsMissingSecret(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(), WithSecretManagerClient(newFakeSecretClient()), WithProject("boutique"))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	if _, err := fetcher.Resolve(context.Background(), "secret://nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := fetcher.Resolve(context.Background(), "https://nope"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[stripeResource] = "a"
	fetcher, _ := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("boutique"))

	_, _ = fetcher.Resolve(ctx, "secret://stripe_api_key")
	fetcher.Invalidate("secret://stripe_api_key")
	_, _ = fetcher.Resolve(ctx, "secret://stripe_api_key")

	if calls := client.callCount(stripeResource); calls != 2 {
		t.Fatalf("expected refetch after invalidate, got %d calls", calls)
	}
}
