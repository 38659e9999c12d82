package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/loopmarket/escrow/internal/audit"
	"github.com/loopmarket/escrow/internal/clock"
	"github.com/loopmarket/escrow/internal/config"
	"github.com/loopmarket/escrow/internal/notification"
	obsmetrics "github.com/loopmarket/escrow/internal/observability/metrics"
	orderdomain "github.com/loopmarket/escrow/internal/order/domain"
	"github.com/loopmarket/escrow/internal/shipment/adapters"
	"github.com/loopmarket/escrow/internal/shipment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
	Adapters  *adapters.Registry
	Repo      domain.Repository
	OrderRepo orderdomain.Repository
	Notifier  notification.Gateway
	AuditSvc  audit.Service       `optional:"true"`
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	holdWindow time.Duration
	secrets    map[string]string
	adapters   *adapters.Registry
	repo       domain.Repository
	orderRepo  orderdomain.Repository
	notifier   notification.Gateway
	auditSvc   audit.Service
	metrics    *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("shipment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		holdWindow: p.Cfg.HoldWindow,
		secrets:    p.Cfg.CarrierSecrets,
		adapters:   p.Adapters,
		repo:       p.Repo,
		orderRepo:  p.OrderRepo,
		notifier:   p.Notifier,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, carrier string, payload []byte, headers http.Header) error {
	carrier = strings.ToLower(strings.TrimSpace(carrier))
	if carrier == "" {
		return domain.ErrInvalidCarrier
	}
	if s.adapters == nil || !s.adapters.CarrierExists(carrier) {
		return domain.ErrCarrierNotFound
	}
	if !json.Valid(payload) {
		return domain.ErrInvalidPayload
	}

	secret, ok := s.secrets[carrier]
	if !ok {
		return domain.ErrCarrierNotFound
	}
	adapter, err := s.adapters.NewAdapter(carrier, domain.AdapterConfig{Secret: secret})
	if err != nil {
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}
	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, domain.ErrEventIgnored) {
			return nil
		}
		return err
	}

	now := s.clock.Now()
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	record := domain.EventRecord{
		ID:                s.genID.Generate(),
		Carrier:           event.Carrier,
		CarrierEventID:    event.CarrierEventID,
		TrackingReference: event.TrackingReference,
		RawStatus:         event.RawStatus,
		OccurredAt:        occurred,
		ReceivedAt:        now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return err
	}
	stored := &record
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Carrier, event.CarrierEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return domain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			// Duplicate webhook delivery. The first application won.
			return domain.ErrEventAlreadyProcessed
		}
	}

	if err := s.ApplyTrackingEvent(ctx, event); err != nil {
		return err
	}

	return s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now())
}

// ApplyTrackingEvent maps the carrier status onto the canonical enum and
// applies the write-once side effects. Applying the same event twice leaves
// the order unchanged.
func (s *Service) ApplyTrackingEvent(ctx context.Context, event *domain.TrackingEvent) error {
	if event == nil {
		return domain.ErrInvalidEvent
	}
	tracking := strings.TrimSpace(event.TrackingReference)
	if tracking == "" {
		return domain.ErrInvalidEvent
	}

	order, err := s.orderRepo.FindByTrackingReference(ctx, s.db, tracking)
	if err != nil {
		return err
	}
	if order == nil {
		return orderdomain.ErrNotFound
	}

	status := domain.MapCarrierStatus(event.RawStatus)
	now := s.clock.Now()
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}

	if s.metrics != nil {
		s.metrics.IncCarrierEvent(event.Carrier, string(status))
	}

	switch status {
	case orderdomain.ShipmentStatusPreTransit, orderdomain.ShipmentStatusInTransit:
		return s.orderRepo.MarkShipped(ctx, s.db, order.ID, status, occurred, now)

	case orderdomain.ShipmentStatusDelivered:
		return s.applyDelivered(ctx, order, occurred, now)

	default:
		return s.orderRepo.UpdateShipmentStatus(ctx, s.db, order.ID, status, now)
	}
}

// applyDelivered is the sole writer of auto_release_at. The deadline is set
// on the first delivery only; a re-sent DELIVERED event is a no-op.
func (s *Service) applyDelivered(ctx context.Context, order *orderdomain.Order, deliveredAt, now time.Time) error {
	deadline := deliveredAt.Add(s.holdWindow)

	first, err := s.orderRepo.MarkDelivered(ctx, s.db, order.ID, deliveredAt, deadline, now)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	s.log.Info("shipment delivered, hold window started",
		zap.String("order_id", order.ID.String()),
		zap.Time("delivered_at", deliveredAt),
		zap.Time("auto_release_at", deadline),
	)

	if s.auditSvc != nil {
		s.auditSvc.Record(ctx, "system", "carrier_webhook", "shipment.delivered", "order", order.ID.String(), map[string]any{
			"delivered_at":    deliveredAt,
			"auto_release_at": deadline,
		})
	}

	if s.notifier != nil && order.BuyerEmail != "" {
		if err := s.notifier.SendPaymentOnHold(ctx, order.BuyerEmail, order.ID, deadline); err != nil {
			s.log.Warn("failed to send payment on hold notification",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
		}
	}

	return nil
}
