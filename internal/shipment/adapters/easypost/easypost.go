package easypost

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
	return "easypost"
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
	header := strings.TrimSpace(headers.Get("X-Hmac-Signature"))
	signature, ok := strings.CutPrefix(header, "hmac-sha256-hex=")
	if !ok || signature == "" {
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

type easypostEvent struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Result      struct {
		TrackingCode string `json:"tracking_code"`
		Status       string `json:"status"`
		UpdatedAt    string `json:"updated_at"`
	} `json:"result"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.TrackingEvent, error) {
	var event easypostEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	if strings.TrimSpace(event.Description) != "tracker.updated" {
		return nil, domain.ErrEventIgnored
	}

	eventID := strings.TrimSpace(event.ID)
	tracking := strings.TrimSpace(event.Result.TrackingCode)
	status := strings.TrimSpace(event.Result.Status)
	if eventID == "" || tracking == "" || status == "" {
		return nil, domain.ErrInvalidEvent
	}

	var occurredAt time.Time
	if raw := strings.TrimSpace(event.Result.UpdatedAt); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			occurredAt = parsed.UTC()
		}
	}

	return &domain.TrackingEvent{
		Carrier:           "easypost",
		CarrierEventID:    eventID,
		TrackingReference: tracking,
		RawStatus:         status,
		OccurredAt:        occurredAt,
	}, nil
}
