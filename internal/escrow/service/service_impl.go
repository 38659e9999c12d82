package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/loopmarket/escrow/internal/audit"
	"github.com/loopmarket/escrow/internal/clock"
	escrowdomain "github.com/loopmarket/escrow/internal/escrow/domain"
	orderdomain "github.com/loopmarket/escrow/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config controls the auto-release sweep batch size.
type Config struct {
	SweepBatchSize int
}

func DefaultConfig() Config {
	return Config{SweepBatchSize: 50}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = defaults.SweepBatchSize
	}
	return c
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     orderdomain.Repository
	Executor escrowdomain.Executor
	AuditSvc audit.Service `optional:"true"`
	Config   Config        `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	repo     orderdomain.Repository
	executor escrowdomain.Executor
	auditSvc audit.Service
}

func NewService(p Params) escrowdomain.StateMachine {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("escrow.service"),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		repo:     p.Repo,
		executor: p.Executor,
		auditSvc: p.AuditSvc,
	}
}

// RequestManualRelease handles the buyer's "I received my item" action. The
// pre-checks here produce precise errors for the caller; the executor repeats
// the decisive ones after it holds the claim.
func (s *Service) RequestManualRelease(ctx context.Context, orderID, buyerID string) (escrowdomain.ManualReleaseResult, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(orderID))
	if err != nil || id == 0 {
		return escrowdomain.ManualReleaseResult{}, orderdomain.ErrInvalidID
	}
	requester, err := snowflake.ParseString(strings.TrimSpace(buyerID))
	if err != nil || requester == 0 {
		return escrowdomain.ManualReleaseResult{}, escrowdomain.ErrForbidden
	}

	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return escrowdomain.ManualReleaseResult{}, err
	}
	if order == nil {
		return escrowdomain.ManualReleaseResult{}, orderdomain.ErrNotFound
	}
	if order.BuyerID != requester {
		return escrowdomain.ManualReleaseResult{}, escrowdomain.ErrForbidden
	}

	switch order.PaymentHoldStatus {
	case orderdomain.HoldStatusHeld:
	case orderdomain.HoldStatusReleased:
		return escrowdomain.ManualReleaseResult{}, escrowdomain.ErrAlreadyReleased
	case orderdomain.HoldStatusDisputed:
		return escrowdomain.ManualReleaseResult{}, escrowdomain.ErrDisputed
	case orderdomain.HoldStatusRefunded:
		return escrowdomain.ManualReleaseResult{}, escrowdomain.ErrRefunded
	default:
		return escrowdomain.ManualReleaseResult{}, escrowdomain.ErrAlreadyReleased
	}

	if order.TransferReference != nil {
		return escrowdomain.ManualReleaseResult{}, escrowdomain.ErrTransferAlreadyRecorded
	}
	if order.PayoutAccount == "" {
		return escrowdomain.ManualReleaseResult{}, escrowdomain.ErrNoPayoutDestination
	}

	result, err := s.executor.Execute(ctx, id, escrowdomain.TriggerBuyerConfirmed)
	if err != nil {
		if errors.Is(err, escrowdomain.ErrAlreadyClaimed) {
			// Lost the race against the sweep (or a duplicate click). Not an
			// error worth surfacing to the buyer.
			return escrowdomain.ManualReleaseResult{Outcome: escrowdomain.OutcomeAlreadyProcessed}, nil
		}
		return escrowdomain.ManualReleaseResult{}, err
	}

	// The release is committed; the confirmation stamp is bookkeeping only.
	if err := s.repo.SetBuyerConfirmed(ctx, s.db, id, s.clock.Now()); err != nil {
		s.log.Warn("failed to stamp buyer confirmation",
			zap.String("order_id", id.String()),
			zap.Error(err),
		)
	}

	if s.auditSvc != nil {
		s.auditSvc.Record(ctx, "buyer", requester.String(), "escrow.buyer_confirmed", "order", id.String(), map[string]any{
			"transfer_reference": result.TransferReference,
		})
	}

	return escrowdomain.ManualReleaseResult{
		Outcome:           escrowdomain.OutcomeReleased,
		TransferReference: result.TransferReference,
	}, nil
}

// SweepAutoRelease releases every HELD, DELIVERED order whose deadline has
// passed. One order's failure never aborts the rest: the scan pages by keyset
// cursor, so an order that fails and rolls back to HELD is left behind the
// cursor instead of being refetched, and every due order gets exactly one
// attempt per sweep.
func (s *Service) SweepAutoRelease(ctx context.Context) (escrowdomain.SweepReport, error) {
	now := s.clock.Now()
	var (
		report escrowdomain.SweepReport
		jobErr error
		cursor orderdomain.ReleaseCursor
	)

	for {
		if ctx.Err() != nil {
			return report, errors.Join(jobErr, ctx.Err())
		}

		orders, err := s.repo.ListDueForAutoRelease(ctx, s.db, now, cursor, s.cfg.SweepBatchSize)
		if err != nil {
			return report, errors.Join(jobErr, err)
		}
		if len(orders) == 0 {
			break
		}

		for _, order := range orders {
			cursor = orderdomain.ReleaseCursor{ID: order.ID}
			if order.AutoReleaseAt != nil {
				cursor.AutoReleaseAt = *order.AutoReleaseAt
			}

			_, err := s.executor.Execute(ctx, order.ID, escrowdomain.TriggerAutoRelease)
			switch {
			case errors.Is(err, escrowdomain.ErrAlreadyClaimed):
				report.Skipped++
			case err != nil:
				report.Failed++
				jobErr = errors.Join(jobErr, err)
				s.log.Warn("auto release failed",
					zap.String("order_id", order.ID.String()),
					zap.Error(err),
				)
			default:
				report.Released++
			}
		}
	}

	return report, jobErr
}
