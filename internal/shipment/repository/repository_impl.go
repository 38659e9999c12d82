package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/loopmarket/escrow/internal/shipment/domain"
	pkgdb "github.com/loopmarket/escrow/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO shipment_events (
			id, carrier, carrier_event_id, tracking_reference, raw_status,
			occurred_at, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (carrier, carrier_event_id) DO NOTHING`,
		event.ID,
		event.Carrier,
		event.CarrierEventID,
		event.TrackingReference,
		event.RawStatus,
		event.OccurredAt,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		// Some drivers report the conflict as a duplicate-key error
		// instead of swallowing the row.
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, carrier, carrierEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, carrier, carrier_event_id, tracking_reference, raw_status,
			occurred_at, received_at, processed_at
		 FROM shipment_events
		 WHERE carrier = ? AND carrier_event_id = ?
		 LIMIT 1`,
		carrier,
		carrierEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE shipment_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}
