// Package reminder sends countdown emails to buyers ahead of the automatic
// release deadline. Reminders are advisory: a failed send is reported, never
// retried within the same run, and never blocks the release itself.
package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/loopmarket/escrow/internal/clock"
	"github.com/loopmarket/escrow/internal/config"
	"github.com/loopmarket/escrow/internal/notification"
	obsmetrics "github.com/loopmarket/escrow/internal/observability/metrics"
	orderdomain "github.com/loopmarket/escrow/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Report summarises one reminder pass.
type Report struct {
	Sent    int
	Skipped int
	Failed  int
}

type Config struct {
	// Offsets are the whole-day distances from the deadline at which a
	// reminder fires, e.g. 7, 3, 1.
	Offsets []int

	BatchSize int
}

func (c Config) withDefaults() Config {
	if len(c.Offsets) == 0 {
		c.Offsets = []int{7, 3, 1}
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	return c
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Cfg      config.Config
	Repo     orderdomain.Repository
	Notifier notification.Gateway
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	cfg      Config
	repo     orderdomain.Repository
	notifier notification.Gateway
	metrics  *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("reminder"),
		clock:    p.Clock,
		cfg:      Config{Offsets: p.Cfg.ReminderOffsets}.withDefaults(),
		repo:     p.Repo,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

// Run executes one reminder pass over every configured offset. Orders whose
// deadline falls on a reminder day get one email each; an order matching
// several offsets on the same run (clock skew, backfill) is emailed once.
func (s *Service) Run(ctx context.Context) (Report, error) {
	var (
		report Report
		errs   []error
		seen   = map[string]struct{}{}
	)

	now := s.clock.Now()
	for _, offset := range s.cfg.Offsets {
		dayStart, dayEnd := reminderWindow(now, offset)

		orders, err := s.repo.ListDueForReminder(ctx, s.db, dayStart, dayEnd, s.cfg.BatchSize)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for i := range orders {
			order := &orders[i]
			if _, ok := seen[order.ID.String()]; ok {
				continue
			}
			seen[order.ID.String()] = struct{}{}

			switch s.remind(ctx, order, offset) {
			case outcomeSent:
				report.Sent++
			case outcomeSkipped:
				report.Skipped++
			case outcomeFailed:
				report.Failed++
			}
		}
	}

	s.log.Info("reminder pass finished",
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, errors.Join(errs...)
}

const (
	outcomeSent    = "sent"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

func (s *Service) remind(ctx context.Context, order *orderdomain.Order, daysRemaining int) string {
	outcome := s.remindOne(ctx, order, daysRemaining)
	if s.metrics != nil {
		s.metrics.IncReminder(outcome)
	}
	return outcome
}

func (s *Service) remindOne(ctx context.Context, order *orderdomain.Order, daysRemaining int) string {
	if order.BuyerEmail == "" || order.AutoReleaseAt == nil {
		return outcomeSkipped
	}

	err := s.notifier.SendAutoReleaseReminder(ctx, order.BuyerEmail, order.ID, daysRemaining, *order.AutoReleaseAt)
	if err != nil {
		s.log.Warn("failed to send auto-release reminder",
			zap.String("order_id", order.ID.String()),
			zap.Int("days_remaining", daysRemaining),
			zap.Error(err),
		)
		return outcomeFailed
	}
	return outcomeSent
}

// reminderWindow returns the UTC calendar day that lies offset days ahead of
// now. Matching on whole days makes the pass insensitive to the exact time of
// day the job runs; the scheduler runs it once per day.
func reminderWindow(now time.Time, offset int) (time.Time, time.Time) {
	day := now.UTC().AddDate(0, 0, offset)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

var Module = fx.Module("reminder",
	fx.Provide(NewService),
)
