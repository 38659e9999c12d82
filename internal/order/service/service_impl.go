package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/loopmarket/escrow/internal/clock"
	"github.com/loopmarket/escrow/internal/fees"
	"github.com/loopmarket/escrow/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("order.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	buyerID, err := snowflake.ParseString(strings.TrimSpace(req.BuyerID))
	if err != nil || buyerID == 0 {
		return domain.Order{}, domain.ErrInvalidBuyer
	}
	sellerID, err := snowflake.ParseString(strings.TrimSpace(req.SellerID))
	if err != nil || sellerID == 0 {
		return domain.Order{}, domain.ErrInvalidSeller
	}
	if req.ProductPrice <= 0 || req.ShippingCost < 0 {
		return domain.Order{}, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return domain.Order{}, domain.ErrInvalidCurrency
	}
	charge := strings.TrimSpace(req.ChargeReference)
	if charge == "" {
		return domain.Order{}, domain.ErrInvalidCharge
	}

	// The payout amount is fixed here, once, from the same calculator the
	// checkout quote used.
	breakdown := fees.ComputeBreakdown(req.ProductPrice, req.ShippingCost)

	now := s.clock.Now()
	order := domain.Order{
		ID:                    s.genID.Generate(),
		BuyerID:               buyerID,
		SellerID:              sellerID,
		BuyerEmail:            strings.TrimSpace(req.BuyerEmail),
		SellerEmail:           strings.TrimSpace(req.SellerEmail),
		PayoutAccount:         strings.TrimSpace(req.PayoutAccount),
		ChargeReference:       charge,
		TrackingReference:     strings.TrimSpace(req.TrackingReference),
		Currency:              currency,
		AmountTotal:           breakdown.TotalBuyerPays,
		ProtectionFee:         breakdown.ProtectionFee,
		SellerPayoutAmount:    breakdown.SellerReceives,
		PaymentHoldStatus:     domain.HoldStatusHeld,
		ShipmentStatus:        domain.ShipmentStatusPending,
		PayoutExecutionStatus: domain.PayoutExecutionPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.repo.Insert(ctx, s.db, &order); err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.Int64("seller_payout_amount", order.SellerPayoutAmount),
		zap.String("currency", order.Currency),
	)
	return order, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Order, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || orderID == 0 {
		return domain.Order{}, domain.ErrInvalidID
	}

	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	return *order, nil
}
