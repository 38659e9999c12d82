package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ReleaseCursor is a keyset position in the auto-release scan. Orders that
// fail and roll back to HELD stay due, so a sweep pages past them by
// (deadline, id) instead of refetching the head of the list.
type ReleaseCursor struct {
	AutoReleaseAt time.Time
	ID            snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByTrackingReference(ctx context.Context, db *gorm.DB, ref string) (*Order, error)

	// ClaimForRelease flips payment_hold_status HELD -> RELEASED with a single
	// conditional write. A false return means another execution won the race.
	ClaimForRelease(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	// RollbackRelease undoes a claim, but only while the row is still RELEASED
	// with no transfer reference, so a concurrently opened dispute is never
	// overwritten.
	RollbackRelease(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	// RecordTransfer persists the transfer reference exactly once.
	RecordTransfer(ctx context.Context, db *gorm.DB, id snowflake.ID, transferRef string, now time.Time) (bool, error)

	// MarkShipped sets the shipment status and stamps shipped_at only if it has
	// never been set.
	MarkShipped(ctx context.Context, db *gorm.DB, id snowflake.ID, status ShipmentStatus, shippedAt, now time.Time) error

	// MarkDelivered stamps delivered_at and auto_release_at on the first
	// delivery only; the returned bool reports whether this was the first.
	MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID, deliveredAt, autoReleaseAt, now time.Time) (bool, error)

	UpdateShipmentStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status ShipmentStatus, now time.Time) error

	SetBuyerConfirmed(ctx context.Context, db *gorm.DB, id snowflake.ID, confirmedAt time.Time) error

	// ListDueForAutoRelease returns HELD, DELIVERED orders whose deadline has
	// passed, oldest deadline first, strictly after the cursor position. A
	// zero cursor starts from the head.
	ListDueForAutoRelease(ctx context.Context, db *gorm.DB, now time.Time, after ReleaseCursor, limit int) ([]Order, error)

	// ListDueForReminder returns HELD, DELIVERED orders whose deadline falls in
	// [dayStart, dayEnd).
	ListDueForReminder(ctx context.Context, db *gorm.DB, dayStart, dayEnd time.Time, limit int) ([]Order, error)
}
