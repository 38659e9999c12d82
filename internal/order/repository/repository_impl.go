package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/loopmarket/escrow/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, buyer_id, seller_id, buyer_email, seller_email, payout_account,
			charge_reference, tracking_reference, currency,
			amount_total, protection_fee, seller_payout_amount,
			payment_hold_status, shipment_status, payout_execution_status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.BuyerID,
		order.SellerID,
		order.BuyerEmail,
		order.SellerEmail,
		order.PayoutAccount,
		order.ChargeReference,
		order.TrackingReference,
		order.Currency,
		order.AmountTotal,
		order.ProtectionFee,
		order.SellerPayoutAmount,
		order.PaymentHoldStatus,
		order.ShipmentStatus,
		order.PayoutExecutionStatus,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM orders WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByTrackingReference(ctx context.Context, db *gorm.DB, ref string) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM orders WHERE tracking_reference = ? LIMIT 1`,
		ref,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ClaimForRelease(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_hold_status = ?, updated_at = ?
		 WHERE id = ? AND payment_hold_status = ?`,
		domain.HoldStatusReleased,
		now,
		id,
		domain.HoldStatusHeld,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) RollbackRelease(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_hold_status = ?, updated_at = ?
		 WHERE id = ? AND payment_hold_status = ? AND transfer_reference IS NULL`,
		domain.HoldStatusHeld,
		now,
		id,
		domain.HoldStatusReleased,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) RecordTransfer(ctx context.Context, db *gorm.DB, id snowflake.ID, transferRef string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET transfer_reference = ?, payout_execution_status = ?, released_at = ?, updated_at = ?
		 WHERE id = ? AND transfer_reference IS NULL`,
		transferRef,
		domain.PayoutExecutionCompleted,
		now,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkShipped(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.ShipmentStatus, shippedAt, now time.Time) error {
	// shipped_at is first-write-wins; the status column follows the latest
	// event until delivery. DELIVERED is terminal for the status column, so a
	// late out-of-order event cannot pull the order out of the auto-release
	// and reminder scans.
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET shipment_status = ?, shipped_at = COALESCE(shipped_at, ?), updated_at = ?
		 WHERE id = ? AND shipment_status != ?`,
		status,
		shippedAt,
		now,
		id,
		domain.ShipmentStatusDelivered,
	).Error
}

func (r *repo) MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID, deliveredAt, autoReleaseAt, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET shipment_status = ?, delivered_at = ?, auto_release_at = ?, updated_at = ?
		 WHERE id = ? AND delivered_at IS NULL`,
		domain.ShipmentStatusDelivered,
		deliveredAt,
		autoReleaseAt,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateShipmentStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.ShipmentStatus, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET shipment_status = ?, updated_at = ?
		 WHERE id = ? AND shipment_status != ?`,
		status,
		now,
		id,
		domain.ShipmentStatusDelivered,
	).Error
}

func (r *repo) SetBuyerConfirmed(ctx context.Context, db *gorm.DB, id snowflake.ID, confirmedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET buyer_confirmed_at = COALESCE(buyer_confirmed_at, ?), updated_at = ?
		 WHERE id = ?`,
		confirmedAt,
		confirmedAt,
		id,
	).Error
}

func (r *repo) ListDueForAutoRelease(ctx context.Context, db *gorm.DB, now time.Time, after domain.ReleaseCursor, limit int) ([]domain.Order, error) {
	query := `SELECT * FROM orders
		 WHERE payment_hold_status = ?
		   AND shipment_status = ?
		   AND auto_release_at IS NOT NULL
		   AND auto_release_at <= ?`
	args := []any{domain.HoldStatusHeld, domain.ShipmentStatusDelivered, now}

	if after.ID != 0 {
		query += `
		   AND (auto_release_at > ? OR (auto_release_at = ? AND id > ?))`
		args = append(args, after.AutoReleaseAt, after.AutoReleaseAt, after.ID)
	}

	query += `
		 ORDER BY auto_release_at, id
		 LIMIT ?`
	args = append(args, limit)

	var items []domain.Order
	err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListDueForReminder(ctx context.Context, db *gorm.DB, dayStart, dayEnd time.Time, limit int) ([]domain.Order, error) {
	var items []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM orders
		 WHERE payment_hold_status = ?
		   AND shipment_status = ?
		   AND auto_release_at IS NOT NULL
		   AND auto_release_at >= ? AND auto_release_at < ?
		 ORDER BY auto_release_at
		 LIMIT ?`,
		domain.HoldStatusHeld,
		domain.ShipmentStatusDelivered,
		dayStart,
		dayEnd,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
