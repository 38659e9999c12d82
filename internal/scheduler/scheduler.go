package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loopmarket/escrow/internal/clock"
	escrowdomain "github.com/loopmarket/escrow/internal/escrow/domain"
	obsmetrics "github.com/loopmarket/escrow/internal/observability/metrics"
	"github.com/loopmarket/escrow/internal/reminder"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	EscrowSvc   escrowdomain.StateMachine
	ReminderSvc *reminder.Service
	Config      Config              `optional:"true"`
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

// Scheduler drives the periodic escrow jobs: the auto-release sweep and the
// buyer reminder pass.
type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	escrowSvc   escrowdomain.StateMachine
	reminderSvc *reminder.Service
	metrics     *obsmetrics.Metrics

	lastReminderRun time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.EscrowSvc == nil || p.ReminderSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		clock:       p.Clock,
		escrowSvc:   p.EscrowSvc,
		reminderSvc: p.ReminderSvc,
		metrics:     p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	if s.metrics != nil {
		s.metrics.IncJobRun(name)
	}

	err := fn(ctx)
	if s.metrics != nil {
		s.metrics.ObserveJobDuration(name, time.Since(start))
	}
	if err == nil {
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncJobError(name)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	if s.isJobEnabled("auto_release") {
		err = errors.Join(err, s.runJob(parent, "auto_release", s.cfg.JobTimeout, s.AutoReleaseJob))
	}
	if s.isJobEnabled("reminders") && s.reminderDue() {
		err = errors.Join(err, s.runJob(parent, "reminders", s.cfg.JobTimeout, s.ReminderJob))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs runs everything (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// reminderDue rate-limits the reminder pass to once per ReminderInterval so
// a tight RunInterval does not spam buyers.
func (s *Scheduler) reminderDue() bool {
	now := s.clock.Now()
	if !s.lastReminderRun.IsZero() && now.Sub(s.lastReminderRun) < s.cfg.ReminderInterval {
		return false
	}
	s.lastReminderRun = now
	return true
}

func (s *Scheduler) AutoReleaseJob(ctx context.Context) error {
	report, err := s.escrowSvc.SweepAutoRelease(ctx)
	if report.Released > 0 || report.Failed > 0 {
		s.log.Info("auto-release sweep finished",
			zap.Int("released", report.Released),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
	}
	return err
}

func (s *Scheduler) ReminderJob(ctx context.Context) error {
	_, err := s.reminderSvc.Run(ctx)
	return err
}
