// Package audit records state-changing escrow actions for operational
// visibility. Writes are best-effort: an audit failure is logged, never
// propagated into the payment path.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Entry struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	ActorType  string       `gorm:"type:text;not null" json:"actor_type"`
	ActorID    string       `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string       `gorm:"type:text;not null" json:"action"`
	TargetType string       `gorm:"type:text;not null" json:"target_type"`
	TargetID   string       `gorm:"type:text" json:"target_id,omitempty"`
	Metadata   string       `gorm:"type:text;not null" json:"metadata"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

func (Entry) TableName() string { return "audit_logs" }

type Service interface {
	Record(ctx context.Context, actorType, actorID, action, targetType, targetID string, metadata map[string]any)
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("audit"),
		genID: p.GenID,
	}
}

func (s *service) Record(ctx context.Context, actorType, actorID, action, targetType, targetID string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		s.log.Warn("failed to encode audit metadata", zap.String("action", action), zap.Error(err))
		payload = []byte("{}")
	}

	entry := Entry{
		ID:         s.genID.Generate(),
		ActorType:  actorType,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   string(payload),
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (id, actor_type, actor_id, action, target_type, target_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ActorType,
		entry.ActorID,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		entry.Metadata,
		entry.CreatedAt,
	).Error; err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

var Module = fx.Module("audit",
	fx.Provide(NewService),
)
