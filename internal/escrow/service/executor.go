package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/loopmarket/escrow/internal/audit"
	"github.com/loopmarket/escrow/internal/clock"
	escrowdomain "github.com/loopmarket/escrow/internal/escrow/domain"
	"github.com/loopmarket/escrow/internal/notification"
	obsmetrics "github.com/loopmarket/escrow/internal/observability/metrics"
	orderdomain "github.com/loopmarket/escrow/internal/order/domain"
	"github.com/loopmarket/escrow/internal/processor"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ExecutorParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      orderdomain.Repository
	Processor processor.Client
	Notifier  notification.Gateway
	AuditSvc  audit.Service        `optional:"true"`
	Metrics   *obsmetrics.Metrics  `optional:"true"`
}

type Executor struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      orderdomain.Repository
	processor processor.Client
	notifier  notification.Gateway
	auditSvc  audit.Service
	metrics   *obsmetrics.Metrics
}

func NewExecutor(p ExecutorParams) escrowdomain.Executor {
	return &Executor{
		db:        p.DB,
		log:       p.Log.Named("escrow.executor"),
		clock:     p.Clock,
		repo:      p.Repo,
		processor: p.Processor,
		notifier:  p.Notifier,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

// Execute runs the release protocol for one order:
//
//  1. claim the order with a conditional HELD -> RELEASED write,
//  2. validate the claimed order,
//  3. request the external fund transfer,
//  4. persist the transfer reference, or roll the claim back.
//
// At most one execution per order can ever get past step 1, regardless of how
// many callers race, because the claim is a single compare-and-swap on the
// status column.
func (e *Executor) Execute(ctx context.Context, orderID snowflake.ID, trigger escrowdomain.Trigger) (escrowdomain.ExecuteResult, error) {
	start := e.clock.Now()
	result, err := e.execute(ctx, orderID, trigger)
	if e.metrics != nil {
		e.metrics.ObserveReleaseDuration(e.clock.Now().Sub(start))
		e.metrics.IncReleaseAttempt(string(trigger), outcomeLabel(err))
	}
	return result, err
}

func (e *Executor) execute(ctx context.Context, orderID snowflake.ID, trigger escrowdomain.Trigger) (escrowdomain.ExecuteResult, error) {
	claimed, err := e.repo.ClaimForRelease(ctx, e.db, orderID, e.clock.Now())
	if err != nil {
		return escrowdomain.ExecuteResult{}, err
	}
	if !claimed {
		return escrowdomain.ExecuteResult{}, escrowdomain.ErrAlreadyClaimed
	}

	order, err := e.repo.FindByID(ctx, e.db, orderID)
	if err != nil {
		e.rollback(ctx, orderID, err)
		return escrowdomain.ExecuteResult{}, err
	}
	if order == nil {
		err := orderdomain.ErrNotFound
		e.rollback(ctx, orderID, err)
		return escrowdomain.ExecuteResult{}, err
	}

	if err := e.validate(ctx, order); err != nil {
		e.rollback(ctx, orderID, err)
		return escrowdomain.ExecuteResult{}, err
	}

	transferRef, err := e.processor.CreateTransfer(
		ctx,
		order.PayoutAccount,
		order.SellerPayoutAmount,
		order.Currency,
		"order_"+order.ID.String(),
	)
	if err != nil {
		// Transfer failures (including timeouts) restore HELD so the sweep or
		// a later manual attempt can retry.
		e.rollback(ctx, orderID, err)
		return escrowdomain.ExecuteResult{}, err
	}

	recorded, err := e.repo.RecordTransfer(ctx, e.db, orderID, transferRef, e.clock.Now())
	if err != nil {
		// Funds have moved; rolling back to HELD here would permit a second
		// transfer. Surface the error and leave the claim in place.
		e.log.Error("transfer succeeded but could not be recorded",
			zap.String("order_id", orderID.String()),
			zap.String("transfer_reference", transferRef),
			zap.Error(err),
		)
		return escrowdomain.ExecuteResult{}, fmt.Errorf("record transfer: %w", err)
	}
	if !recorded {
		e.log.Error("transfer reference already present after claim",
			zap.String("order_id", orderID.String()),
			zap.String("transfer_reference", transferRef),
		)
		return escrowdomain.ExecuteResult{}, escrowdomain.ErrTransferAlreadyRecorded
	}

	e.log.Info("escrow released",
		zap.String("order_id", order.ID.String()),
		zap.String("trigger", string(trigger)),
		zap.String("transfer_reference", transferRef),
		zap.Int64("amount", order.SellerPayoutAmount),
	)

	if e.auditSvc != nil {
		e.auditSvc.Record(ctx, "system", string(trigger), "escrow.released", "order", order.ID.String(), map[string]any{
			"trigger":            string(trigger),
			"transfer_reference": transferRef,
			"amount":             order.SellerPayoutAmount,
			"currency":           order.Currency,
		})
	}

	e.notifySeller(ctx, order, transferRef, trigger)

	return escrowdomain.ExecuteResult{TransferReference: transferRef}, nil
}

func (e *Executor) validate(ctx context.Context, order *orderdomain.Order) error {
	if order.TransferReference != nil {
		return escrowdomain.ErrTransferAlreadyRecorded
	}
	if order.PayoutAccount == "" {
		return escrowdomain.ErrNoPayoutDestination
	}
	if order.SellerPayoutAmount <= 0 {
		return escrowdomain.ErrNonPositivePayout
	}

	charge, err := e.processor.GetCharge(ctx, order.ChargeReference)
	if err != nil {
		return err
	}
	if charge.Refunded {
		return escrowdomain.ErrChargeRefunded
	}
	return nil
}

// rollback restores HELD after a failed attempt. The write is conditional: it
// only applies while the row is still RELEASED with no transfer reference, so
// a dispute opened concurrently by another process is never clobbered.
func (e *Executor) rollback(ctx context.Context, orderID snowflake.ID, cause error) {
	rolledBack, err := e.repo.RollbackRelease(ctx, e.db, orderID, e.clock.Now())
	if err != nil {
		e.log.Error("failed to roll back release claim",
			zap.String("order_id", orderID.String()),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	if !rolledBack {
		e.log.Warn("release claim not rolled back, row changed concurrently",
			zap.String("order_id", orderID.String()),
			zap.NamedError("cause", cause),
		)
		return
	}
	e.log.Info("release claim rolled back",
		zap.String("order_id", orderID.String()),
		zap.NamedError("cause", cause),
	)
}

func (e *Executor) notifySeller(ctx context.Context, order *orderdomain.Order, transferRef string, trigger escrowdomain.Trigger) {
	if e.notifier == nil || order.SellerEmail == "" {
		return
	}
	reason := "buyer confirmed receipt"
	if trigger == escrowdomain.TriggerAutoRelease {
		reason = "protection window elapsed"
	}
	if err := e.notifier.SendPaymentReleased(ctx, order.SellerEmail, order.ID, order.SellerPayoutAmount, order.Currency, reason); err != nil {
		e.log.Warn("failed to send payment released notification",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "released"
	case errors.Is(err, escrowdomain.ErrAlreadyClaimed):
		return "already_claimed"
	default:
		return "failed"
	}
}
