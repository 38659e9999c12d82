package domain

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/loopmarket/escrow/internal/order/domain"
	"gorm.io/gorm"
)

// EventRecord is a received carrier webhook event. The unique index on
// (carrier, carrier_event_id) is the dedup guard against redelivery.
type EventRecord struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	Carrier           string       `json:"carrier" gorm:"type:text;not null"`
	CarrierEventID    string       `json:"carrier_event_id" gorm:"type:text;not null"`
	TrackingReference string       `json:"tracking_reference" gorm:"type:text;not null"`
	RawStatus         string       `json:"raw_status" gorm:"type:text;not null"`
	OccurredAt        time.Time    `json:"occurred_at" gorm:"not null"`
	ReceivedAt        time.Time    `json:"received_at" gorm:"not null"`
	ProcessedAt       *time.Time   `json:"processed_at"`
}

func (EventRecord) TableName() string { return "shipment_events" }

// TrackingEvent is the canonical carrier event parsed by adapters.
type TrackingEvent struct {
	Carrier           string
	CarrierEventID    string
	TrackingReference string
	RawStatus         string
	// OccurredAt is the carrier-reported event time; zero when the carrier
	// did not report one.
	OccurredAt time.Time
}

// CarrierAdapter verifies and parses one carrier's webhook payloads.
type CarrierAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*TrackingEvent, error)
}

type AdapterConfig struct {
	Secret string
}

type Service interface {
	// IngestWebhook verifies, dedups and applies a raw carrier webhook.
	IngestWebhook(ctx context.Context, carrier string, payload []byte, headers http.Header) error

	// ApplyTrackingEvent applies an already-verified canonical event.
	ApplyTrackingEvent(ctx context.Context, event *TrackingEvent) error
}

type Repository interface {
	// InsertEvent returns false when the event was already recorded.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, carrier, carrierEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

var (
	ErrInvalidCarrier        = errors.New("invalid_carrier")
	ErrCarrierNotFound       = errors.New("carrier_not_found")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)

// MapCarrierStatus maps a carrier status vocabulary onto the canonical
// shipment enum. The table is finite and explicit; anything it does not know
// becomes IN_TRANSIT, because an unrecognised webhook must not be dropped.
func MapCarrierStatus(raw string) orderdomain.ShipmentStatus {
	if status, ok := carrierStatusTable[normalizeStatus(raw)]; ok {
		return status
	}
	return orderdomain.ShipmentStatusInTransit
}

var carrierStatusTable = map[string]orderdomain.ShipmentStatus{
	"pending":              orderdomain.ShipmentStatusPending,
	"unknown":              orderdomain.ShipmentStatusInTransit,
	"pre_transit":          orderdomain.ShipmentStatusPreTransit,
	"label_created":        orderdomain.ShipmentStatusPreTransit,
	"transit":              orderdomain.ShipmentStatusInTransit,
	"in_transit":           orderdomain.ShipmentStatusInTransit,
	"out_for_delivery":     orderdomain.ShipmentStatusOutForDelivery,
	"available_for_pickup": orderdomain.ShipmentStatusOutForDelivery,
	"delivered":            orderdomain.ShipmentStatusDelivered,
	"return_to_sender":     orderdomain.ShipmentStatusReturned,
	"returned":             orderdomain.ShipmentStatusReturned,
	"failure":              orderdomain.ShipmentStatusFailed,
	"failed":               orderdomain.ShipmentStatusFailed,
	"error":                orderdomain.ShipmentStatusFailed,
	"cancelled":            orderdomain.ShipmentStatusCancelled,
	"canceled":             orderdomain.ShipmentStatusCancelled,
}

func normalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.ReplaceAll(s, " ", "_")
}
