// Package processor is the client for the external payment processor holding
// the escrow funds.
package processor

import (
	"context"
	"errors"
)

// Charge is the state of the original checkout charge.
type Charge struct {
	Reference string
	Refunded  bool
}

// Client is the narrow surface the escrow engine needs: move held funds to a
// seller, and check whether the original charge still exists to move.
type Client interface {
	// CreateTransfer requests a fund transfer to destination. idempotencyKey
	// groups retries on the processor side so a repeated request cannot pay
	// twice.
	CreateTransfer(ctx context.Context, destination string, amount int64, currency string, idempotencyKey string) (string, error)

	// GetCharge fetches the original charge so callers can refuse to release
	// funds that were refunded out-of-band.
	GetCharge(ctx context.Context, chargeRef string) (Charge, error)
}

var (
	ErrTransferFailed = errors.New("transfer_failed")
	ErrChargeLookup   = errors.New("charge_lookup_failed")
)
