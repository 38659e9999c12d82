package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/loopmarket/escrow/internal/order/domain"
	"github.com/loopmarket/escrow/internal/order/repository"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_orderrepo_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec(`
		CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			buyer_id INTEGER NOT NULL,
			seller_id INTEGER NOT NULL,
			buyer_email TEXT,
			seller_email TEXT,
			payout_account TEXT,
			charge_reference TEXT NOT NULL,
			tracking_reference TEXT,
			currency TEXT NOT NULL,
			amount_total INTEGER NOT NULL,
			protection_fee INTEGER NOT NULL,
			seller_payout_amount INTEGER NOT NULL,
			payment_hold_status TEXT NOT NULL,
			shipment_status TEXT NOT NULL,
			shipped_at DATETIME,
			delivered_at DATETIME,
			auto_release_at DATETIME,
			buyer_confirmed_at DATETIME,
			transfer_reference TEXT,
			payout_execution_status TEXT NOT NULL,
			released_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		t.Fatalf("create orders table: %v", err)
	}

	return db
}

func insertHeldOrder(t *testing.T, db *gorm.DB, repo domain.Repository, node *snowflake.Node) *domain.Order {
	t.Helper()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	order := &domain.Order{
		ID:                    node.Generate(),
		BuyerID:               node.Generate(),
		SellerID:              node.Generate(),
		PayoutAccount:         "acct_seller",
		ChargeReference:       "ch_1",
		TrackingReference:     "trk_" + node.Generate().String(),
		Currency:              "EUR",
		AmountTotal:           11070,
		ProtectionFee:         570,
		SellerPayoutAmount:    10500,
		PaymentHoldStatus:     domain.HoldStatusHeld,
		ShipmentStatus:        domain.ShipmentStatusPending,
		PayoutExecutionStatus: domain.PayoutExecutionPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := repo.Insert(context.Background(), db, order); err != nil {
		t.Fatalf("insert order: %v", err)
	}
	return order
}

func TestClaimForReleaseIsExclusive(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, _ := snowflake.NewNode(3)
	order := insertHeldOrder(t, db, repo, node)
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	claimed, err := repo.ClaimForRelease(ctx, db, order.ID, now)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to win")
	}

	claimed, err = repo.ClaimForRelease(ctx, db, order.ID, now)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Fatal("expected second claim to lose")
	}
}

func TestRollbackReleaseRestoresHeld(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, _ := snowflake.NewNode(3)
	order := insertHeldOrder(t, db, repo, node)
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	if _, err := repo.ClaimForRelease(ctx, db, order.ID, now); err != nil {
		t.Fatalf("claim: %v", err)
	}

	rolledBack, err := repo.RollbackRelease(ctx, db, order.ID, now)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if !rolledBack {
		t.Fatal("expected rollback to apply")
	}

	stored, err := repo.FindByID(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.PaymentHoldStatus != domain.HoldStatusHeld {
		t.Fatalf("expected held, got %s", stored.PaymentHoldStatus)
	}
}

func TestRollbackReleaseDoesNotClobberDispute(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, _ := snowflake.NewNode(3)
	order := insertHeldOrder(t, db, repo, node)
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	if _, err := repo.ClaimForRelease(ctx, db, order.ID, now); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Dispute tooling flips the row between the failed attempt and the
	// rollback write.
	if err := db.Exec(`UPDATE orders SET payment_hold_status = ? WHERE id = ?`,
		domain.HoldStatusDisputed, order.ID).Error; err != nil {
		t.Fatalf("mark disputed: %v", err)
	}

	rolledBack, err := repo.RollbackRelease(ctx, db, order.ID, now)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if rolledBack {
		t.Fatal("expected rollback to be refused")
	}

	stored, err := repo.FindByID(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.PaymentHoldStatus != domain.HoldStatusDisputed {
		t.Fatalf("expected disputed to survive, got %s", stored.PaymentHoldStatus)
	}
}

func TestRollbackReleaseRefusedAfterTransferRecorded(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, _ := snowflake.NewNode(3)
	order := insertHeldOrder(t, db, repo, node)
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	if _, err := repo.ClaimForRelease(ctx, db, order.ID, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	recorded, err := repo.RecordTransfer(ctx, db, order.ID, "tr_1", now)
	if err != nil {
		t.Fatalf("record transfer: %v", err)
	}
	if !recorded {
		t.Fatal("expected transfer to be recorded")
	}

	rolledBack, err := repo.RollbackRelease(ctx, db, order.ID, now)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if rolledBack {
		t.Fatal("a paid-out order must never return to held")
	}
}

func TestRecordTransferIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, _ := snowflake.NewNode(3)
	order := insertHeldOrder(t, db, repo, node)
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	recorded, err := repo.RecordTransfer(ctx, db, order.ID, "tr_1", now)
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if !recorded {
		t.Fatal("expected first record to apply")
	}

	recorded, err = repo.RecordTransfer(ctx, db, order.ID, "tr_2", now)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if recorded {
		t.Fatal("expected second record to be refused")
	}

	stored, err := repo.FindByID(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.TransferReference == nil || *stored.TransferReference != "tr_1" {
		t.Fatalf("expected tr_1 to survive, got %v", stored.TransferReference)
	}
}

func TestMarkDeliveredFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, _ := snowflake.NewNode(3)
	order := insertHeldOrder(t, db, repo, node)

	deliveredAt := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	deadline := deliveredAt.Add(14 * 24 * time.Hour)

	first, err := repo.MarkDelivered(ctx, db, order.ID, deliveredAt, deadline, deliveredAt)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if !first {
		t.Fatal("expected first delivery to report true")
	}

	// Carrier re-sends DELIVERED with a later timestamp.
	laterDelivered := deliveredAt.Add(6 * time.Hour)
	first, err = repo.MarkDelivered(ctx, db, order.ID, laterDelivered, laterDelivered.Add(14*24*time.Hour), laterDelivered)
	if err != nil {
		t.Fatalf("repeat delivery: %v", err)
	}
	if first {
		t.Fatal("expected repeat delivery to report false")
	}

	stored, err := repo.FindByID(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.DeliveredAt == nil || !stored.DeliveredAt.Equal(deliveredAt) {
		t.Fatalf("expected delivered_at %v to survive, got %v", deliveredAt, stored.DeliveredAt)
	}
	if stored.AutoReleaseAt == nil || !stored.AutoReleaseAt.Equal(deadline) {
		t.Fatalf("expected auto_release_at %v to survive, got %v", deadline, stored.AutoReleaseAt)
	}
}

func TestMarkShippedKeepsFirstShippedAt(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, _ := snowflake.NewNode(3)
	order := insertHeldOrder(t, db, repo, node)

	shippedAt := time.Date(2025, 6, 5, 8, 0, 0, 0, time.UTC)
	if err := repo.MarkShipped(ctx, db, order.ID, domain.ShipmentStatusPreTransit, shippedAt, shippedAt); err != nil {
		t.Fatalf("first shipped: %v", err)
	}
	later := shippedAt.Add(3 * time.Hour)
	if err := repo.MarkShipped(ctx, db, order.ID, domain.ShipmentStatusInTransit, later, later); err != nil {
		t.Fatalf("second shipped: %v", err)
	}

	stored, err := repo.FindByID(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.ShipmentStatus != domain.ShipmentStatusInTransit {
		t.Fatalf("expected status to follow latest event, got %s", stored.ShipmentStatus)
	}
	if stored.ShippedAt == nil || !stored.ShippedAt.Equal(shippedAt) {
		t.Fatalf("expected first shipped_at %v to survive, got %v", shippedAt, stored.ShippedAt)
	}
}

func TestListDueForAutoReleaseOrdersByDeadline(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, _ := snowflake.NewNode(3)
	now := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)

	late := insertHeldOrder(t, db, repo, node)
	earlier := insertHeldOrder(t, db, repo, node)
	future := insertHeldOrder(t, db, repo, node)

	markDelivered := func(o *domain.Order, deadline time.Time) {
		t.Helper()
		if _, err := repo.MarkDelivered(ctx, db, o.ID, deadline.Add(-14*24*time.Hour), deadline, now); err != nil {
			t.Fatalf("mark delivered: %v", err)
		}
	}
	markDelivered(late, now.Add(-time.Hour))
	markDelivered(earlier, now.Add(-48*time.Hour))
	markDelivered(future, now.Add(72*time.Hour))

	due, err := repo.ListDueForAutoRelease(ctx, db, now, domain.ReleaseCursor{}, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due orders, got %d", len(due))
	}
	if due[0].ID != earlier.ID || due[1].ID != late.ID {
		t.Fatalf("expected oldest deadline first, got %s then %s", due[0].ID, due[1].ID)
	}
}

func TestListDueForAutoReleasePagesPastCursor(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, _ := snowflake.NewNode(3)
	now := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)

	first := insertHeldOrder(t, db, repo, node)
	second := insertHeldOrder(t, db, repo, node)

	markDelivered := func(o *domain.Order, deadline time.Time) {
		t.Helper()
		if _, err := repo.MarkDelivered(ctx, db, o.ID, deadline.Add(-14*24*time.Hour), deadline, now); err != nil {
			t.Fatalf("mark delivered: %v", err)
		}
	}
	markDelivered(first, now.Add(-48*time.Hour))
	markDelivered(second, now.Add(-time.Hour))

	head, err := repo.ListDueForAutoRelease(ctx, db, now, domain.ReleaseCursor{}, 1)
	if err != nil {
		t.Fatalf("head page: %v", err)
	}
	if len(head) != 1 || head[0].ID != first.ID {
		t.Fatalf("expected the oldest deadline first, got %+v", head)
	}

	// The first order is still due (it was not released), but the next page
	// starts after the cursor, not at the head again.
	cursor := domain.ReleaseCursor{AutoReleaseAt: *head[0].AutoReleaseAt, ID: head[0].ID}
	next, err := repo.ListDueForAutoRelease(ctx, db, now, cursor, 1)
	if err != nil {
		t.Fatalf("next page: %v", err)
	}
	if len(next) != 1 || next[0].ID != second.ID {
		t.Fatalf("expected the next order, got %+v", next)
	}

	cursor = domain.ReleaseCursor{AutoReleaseAt: *next[0].AutoReleaseAt, ID: next[0].ID}
	last, err := repo.ListDueForAutoRelease(ctx, db, now, cursor, 1)
	if err != nil {
		t.Fatalf("last page: %v", err)
	}
	if len(last) != 0 {
		t.Fatalf("expected the scan to end, got %+v", last)
	}
}

func TestShipmentStatusDoesNotRegressAfterDelivery(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, _ := snowflake.NewNode(3)
	order := insertHeldOrder(t, db, repo, node)

	deliveredAt := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	deadline := deliveredAt.Add(14 * 24 * time.Hour)
	if _, err := repo.MarkDelivered(ctx, db, order.ID, deliveredAt, deadline, deliveredAt); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}

	// A transit event the carrier emitted before delivery arrives late.
	later := deliveredAt.Add(time.Hour)
	if err := repo.MarkShipped(ctx, db, order.ID, domain.ShipmentStatusInTransit, later, later); err != nil {
		t.Fatalf("late shipped event: %v", err)
	}
	if err := repo.UpdateShipmentStatus(ctx, db, order.ID, domain.ShipmentStatusOutForDelivery, later); err != nil {
		t.Fatalf("late status event: %v", err)
	}

	stored, err := repo.FindByID(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.ShipmentStatus != domain.ShipmentStatusDelivered {
		t.Fatalf("expected delivered to be terminal, got %s", stored.ShipmentStatus)
	}

	// The order must still be visible to the auto-release scan.
	due, err := repo.ListDueForAutoRelease(ctx, db, deadline.Add(time.Hour), domain.ReleaseCursor{}, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(due) != 1 || due[0].ID != order.ID {
		t.Fatalf("expected the order to stay due, got %+v", due)
	}
}
