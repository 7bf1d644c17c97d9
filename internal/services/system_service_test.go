package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
	calls  int
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	s.calls++
	return s.report, s.err
}

var _ repositories.HealthRepository = (*stubHealthRepository)(nil)

func checks(statuses map[string]string) map[string]domain.SystemHealthCheck {
	out := make(map[string]domain.SystemHealthCheck, len(statuses))
	for name, status := range statuses {
		out[name] = domain.SystemHealthCheck{Status: status}
	}
	return out
}

func TestSystemServiceFillsBuildMetadata(t *testing.T) {
	started := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Second)
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Checks: checks(map[string]string{"postgres": domain.HealthStatusOK}),
	}}

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Build:            BuildInfo{Version: "2024.06.1", CommitSHA: "9f1c2e", Environment: "staging", StartedAt: started},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("status = %s", report.Status)
	}
	if report.Version != "2024.06.1" || report.CommitSHA != "9f1c2e" || report.Environment != "staging" {
		t.Fatalf("build metadata not applied: %+v", report)
	}
	if report.Uptime != 90*time.Second {
		t.Fatalf("uptime = %s", report.Uptime)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("generatedAt = %s", report.GeneratedAt)
	}
}

func TestSystemServiceKeepsRepositoryValues(t *testing.T) {
	repo := &stubHealthRepository{report: domain.SystemHealthReport{Status: domain.HealthStatusDegraded, Version: "from-store"}}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo, Build: BuildInfo{Version: "build"}})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded || report.Version != "from-store" {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Checks == nil {
		t.Fatalf("expected non-nil checks map")
	}
}

func TestSystemServiceStatusPolicy(t *testing.T) {
	cases := []struct {
		name   string
		checks map[string]string
		want   string
	}{
		{
			name:   "all healthy",
			checks: map[string]string{"postgres": domain.HealthStatusOK, "redis": domain.HealthStatusOK},
			want:   domain.HealthStatusOK,
		},
		{
			name:   "booking store down",
			checks: map[string]string{"postgres": domain.HealthStatusError, "redis": domain.HealthStatusOK},
			want:   domain.HealthStatusError,
		},
		{
			name:   "geocode cache down",
			checks: map[string]string{"postgres": domain.HealthStatusOK, "redis": domain.HealthStatusError},
			want:   domain.HealthStatusDegraded,
		},
		{
			name:   "secret manager slow",
			checks: map[string]string{"postgres": domain.HealthStatusOK, "secretManager": domain.HealthStatusDegraded},
			want:   domain.HealthStatusDegraded,
		},
		{
			name: "no checks",
			want: domain.HealthStatusOK,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubHealthRepository{report: domain.SystemHealthReport{Checks: checks(tc.checks)}}
			svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo, Optional: []string{"redis", " "}})
			if err != nil {
				t.Fatalf("new system service: %v", err)
			}
			report, err := svc.HealthReport(context.Background())
			if err != nil {
				t.Fatalf("health report: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("status = %s, want %s", report.Status, tc.want)
			}
		})
	}
}

func TestSystemServiceCachesReports(t *testing.T) {
	started := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	now := started
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Checks: checks(map[string]string{"firestore": domain.HealthStatusOK}),
	}}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		CacheTTL:         10 * time.Second,
		Clock:            func() time.Time { return now },
		Build:            BuildInfo{StartedAt: started},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	if _, err := svc.HealthReport(context.Background()); err != nil {
		t.Fatalf("health report: %v", err)
	}
	now = now.Add(4 * time.Second)
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("expected cached report, repository called %d times", repo.calls)
	}
	if report.Uptime != 4*time.Second {
		t.Fatalf("cached report uptime = %s", report.Uptime)
	}

	now = now.Add(10 * time.Second)
	if _, err := svc.HealthReport(context.Background()); err != nil {
		t.Fatalf("health report: %v", err)
	}
	if repo.calls != 2 {
		t.Fatalf("expected refresh after ttl, repository called %d times", repo.calls)
	}
}

func TestSystemServiceDoesNotCacheFailures(t *testing.T) {
	collectErr := errors.New("postgres: connection refused")
	repo := &stubHealthRepository{err: collectErr}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo, CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.HealthReport(context.Background()); !errors.Is(err, collectErr) {
			t.Fatalf("expected %v, got %v", collectErr, err)
		}
	}
	if repo.calls != 2 {
		t.Fatalf("failures must not be cached, calls = %d", repo.calls)
	}
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error when repository missing")
	}
}
