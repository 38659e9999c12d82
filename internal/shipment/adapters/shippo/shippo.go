package shippo

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/loopmarket/escrow/internal/shipment/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Carrier() string {
	return "shippo"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.CarrierAdapter, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, domain.ErrInvalidCarrier
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get("X-Shippo-Signature"))
	if signature == "" {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

type shippoEvent struct {
	Event string `json:"event"`
	Data  struct {
		TrackingNumber string `json:"tracking_number"`
		TrackingStatus struct {
			ObjectID   string `json:"object_id"`
			Status     string `json:"status"`
			StatusDate string `json:"status_date"`
		} `json:"tracking_status"`
	} `json:"data"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.TrackingEvent, error) {
	var event shippoEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	switch strings.TrimSpace(event.Event) {
	case "track_updated", "track_created":
	default:
		return nil, domain.ErrEventIgnored
	}

	tracking := strings.TrimSpace(event.Data.TrackingNumber)
	eventID := strings.TrimSpace(event.Data.TrackingStatus.ObjectID)
	status := strings.TrimSpace(event.Data.TrackingStatus.Status)
	if tracking == "" || eventID == "" || status == "" {
		return nil, domain.ErrInvalidEvent
	}

	var occurredAt time.Time
	if raw := strings.TrimSpace(event.Data.TrackingStatus.StatusDate); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			occurredAt = parsed.UTC()
		}
	}

	return &domain.TrackingEvent{
		Carrier:           "shippo",
		CarrierEventID:    eventID,
		TrackingReference: tracking,
		RawStatus:         status,
		OccurredAt:        occurredAt,
	}, nil
}
