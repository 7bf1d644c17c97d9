package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultJobTimeout = 5 * time.Minute

// JobFunc is one unit of background maintenance.
type JobFunc func(ctx context.Context) error

// Scheduler runs maintenance jobs on cron schedules. Overlapping runs of the same job are
// skipped rather than queued.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration
	base    context.Context
	cancel  context.CancelFunc
}

// Option customises the scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithJobTimeout bounds each job run.
func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// New constructs a stopped scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{logger: zap.NewNop(), timeout: defaultJobTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.Named("scheduler")
	cronLogger := zapCronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	s.base, s.cancel = context.WithCancel(context.Background())
	return s
}

// Add registers fn under name on a standard five-field spec or a descriptor such as
// "@every 1h".
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		return errors.New("scheduler: name and job are required")
	}
	_, err := s.cron.AddFunc(strings.TrimSpace(spec), func() {
		s.run(name, fn)
	})
	if err != nil {
		return fmt.Errorf("scheduler: add %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) run(name string, fn JobFunc) {
	ctx, cancel := context.WithTimeout(s.base, s.timeout)
	defer cancel()
	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Warn("job failed", zap.String("job", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	s.logger.Debug("job finished", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs, cancels running jobs' contexts and waits for them up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

type zapCronLogger struct {
	logger *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("cron", keysAndValues))
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("cron", keysAndValues))
}
