package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Trigger identifies which path asked for a release. It is recorded with the
// outcome and shown to the seller in the release notification.
type Trigger string

const (
	TriggerBuyerConfirmed Trigger = "buyer_confirmed"
	TriggerAutoRelease    Trigger = "auto_release_14_days"
)

const (
	OutcomeReleased         = "released"
	OutcomeAlreadyProcessed = "already_processed"
)

// ManualReleaseResult is the outcome of a buyer confirmation. An order that
// lost the race against the sweep reports OutcomeAlreadyProcessed, not an
// error.
type ManualReleaseResult struct {
	Outcome           string `json:"outcome"`
	TransferReference string `json:"transfer_reference,omitempty"`
}

type ExecuteResult struct {
	TransferReference string
}

// SweepReport summarises one auto-release sweep. Per-order failures are
// counted, never fatal to the batch.
type SweepReport struct {
	Released int `json:"released"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

type StateMachine interface {
	RequestManualRelease(ctx context.Context, orderID, buyerID string) (ManualReleaseResult, error)
	SweepAutoRelease(ctx context.Context) (SweepReport, error)
}

// Executor performs the claim-validate-transfer-commit sequence for one order.
type Executor interface {
	Execute(ctx context.Context, orderID snowflake.ID, trigger Trigger) (ExecuteResult, error)
}

var (
	// ErrForbidden: the requester is not the order's buyer.
	ErrForbidden = errors.New("forbidden")

	// InvalidState family, one per terminal state so callers can present
	// accurate feedback.
	ErrAlreadyReleased = errors.New("payment_already_released")
	ErrDisputed        = errors.New("payment_disputed")
	ErrRefunded        = errors.New("payment_refunded")

	// ErrTransferAlreadyRecorded: a transfer reference exists. This guard is
	// independent of the status flag.
	ErrTransferAlreadyRecorded = errors.New("transfer_already_recorded")

	// PreconditionFailed family.
	ErrNoPayoutDestination = errors.New("no_payout_destination")
	ErrNonPositivePayout   = errors.New("non_positive_payout")
	ErrChargeRefunded      = errors.New("charge_refunded")

	// ErrAlreadyClaimed: another execution won the claim race. Benign, and
	// swallowed at the state-machine boundary.
	ErrAlreadyClaimed = errors.New("already_claimed")
)

// IsInvalidState reports whether err belongs to the wrong-hold-status family.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrAlreadyReleased) ||
		errors.Is(err, ErrDisputed) ||
		errors.Is(err, ErrRefunded)
}

// IsPreconditionFailed reports whether err belongs to the precondition family.
func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrNoPayoutDestination) ||
		errors.Is(err, ErrNonPositivePayout) ||
		errors.Is(err, ErrChargeRefunded)
}
