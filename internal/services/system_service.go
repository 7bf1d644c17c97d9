package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	domain "github.com/prasathkrishna17/Botique-maid/internal/domain"
	"github.com/prasathkrishna17/Botique-maid/internal/repositories"
)

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
//
// Optional names dependency checks whose failure only degrades readiness. A booking can still be
// quoted and stored while the geocode cache is down, so "redis" is a typical entry. CacheTTL keeps
// the last report for that long so that frequent readiness checks do not fan out to every backend.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Optional         []string
	CacheTTL         time.Duration
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	healthRepo repositories.HealthRepository
	optional   map[string]struct{}
	ttl        time.Duration
	now        func() time.Time
	build      BuildInfo

	mu       sync.Mutex
	cached   domain.SystemHealthReport
	cachedAt time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service behind /healthz and /readyz.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	now := func() time.Time { return clock().UTC() }

	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = now()
	}

	optional := make(map[string]struct{}, len(deps.Optional))
	for _, name := range deps.Optional {
		if name = strings.TrimSpace(name); name != "" {
			optional[name] = struct{}{}
		}
	}

	ttl := deps.CacheTTL
	if ttl < 0 {
		ttl = 0
	}

	return &systemService{
		healthRepo: deps.HealthRepository,
		optional:   optional,
		ttl:        ttl,
		now:        now,
		build:      build,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	if ctx == nil {
		return domain.SystemHealthReport{}, errors.New("system service: context is required")
	}

	now := s.now()
	if report, ok := s.fromCache(now); ok {
		return report, nil
	}

	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return domain.SystemHealthReport{}, err
	}
	report = s.decorate(report, now)

	if s.ttl > 0 {
		s.mu.Lock()
		s.cached = report
		s.cachedAt = now
		s.mu.Unlock()
	}
	return report, nil
}

func (s *systemService) fromCache(now time.Time) (domain.SystemHealthReport, bool) {
	if s.ttl <= 0 {
		return domain.SystemHealthReport{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cachedAt.IsZero() || now.Sub(s.cachedAt) >= s.ttl {
		return domain.SystemHealthReport{}, false
	}
	report := s.cached
	report.Uptime = now.Sub(s.build.StartedAt)
	return report, true
}

func (s *systemService) decorate(report domain.SystemHealthReport, now time.Time) domain.SystemHealthReport {
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	if report.Version == "" {
		report.Version = s.build.Version
	}
	if report.CommitSHA == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if report.Environment == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = s.overallStatus(report.Checks)
	}
	return report
}

// overallStatus reports error when a required dependency failed. Failed optional dependencies and
// degraded checks of any kind only degrade the result.
func (s *systemService) overallStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for name, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			if _, ok := s.optional[name]; !ok {
				return domain.HealthStatusError
			}
			status = domain.HealthStatusDegraded
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
