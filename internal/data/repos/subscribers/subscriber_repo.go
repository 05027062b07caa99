package subscribers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/jobrelay/internal/data/dberr"
	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/platform/logger"
	"github.com/yungbote/jobrelay/internal/registry"
)

type SubscriberRow struct {
	ConnectionID string         `gorm:"column:connection_id;primaryKey;size:255"`
	Endpoint     string         `gorm:"column:endpoint;size:2048"`
	Metadata     datatypes.JSON `gorm:"column:metadata"`
	CreatedAt    time.Time      `gorm:"column:created_at;index"`
	UpdatedAt    time.Time      `gorm:"column:updated_at"`
}

func (SubscriberRow) TableName() string { return "subscribers" }

type subscriberRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewSubscriberRepo is the SQL-backed registry (Postgres in production, SQLite locally).
func NewSubscriberRepo(db *gorm.DB, baseLog *logger.Logger) registry.Registry {
	return &subscriberRepo{
		db:  db,
		log: baseLog.With("repo", "SubscriberRepo"),
	}
}

func (r *subscriberRepo) List(ctx context.Context) ([]domain.Subscriber, error) {
	var rows []SubscriberRow
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	out := make([]domain.Subscriber, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.toDomain(row))
	}
	return out, nil
}

// Add inserts, and on a key conflict refreshes the existing row.
func (r *subscriberRepo) Add(ctx context.Context, sub domain.Subscriber) error {
	if err := registry.Validate(sub); err != nil {
		return err
	}
	row, err := fromDomain(sub)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Create(&row).Error
	if err == nil {
		return nil
	}
	if !dberr.IsUniqueViolation(err) {
		return fmt.Errorf("insert subscriber %s: %w", sub.ConnectionID, err)
	}
	updates := map[string]interface{}{
		"endpoint":   row.Endpoint,
		"metadata":   row.Metadata,
		"updated_at": time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).
		Model(&SubscriberRow{}).
		Where("connection_id = ?", sub.ConnectionID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("update subscriber %s: %w", sub.ConnectionID, err)
	}
	return nil
}

func (r *subscriberRepo) Remove(ctx context.Context, connectionID string) error {
	if err := r.db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Delete(&SubscriberRow{}).Error; err != nil {
		return fmt.Errorf("delete subscriber %s: %w", connectionID, err)
	}
	return nil
}

func fromDomain(sub domain.Subscriber) (SubscriberRow, error) {
	meta := datatypes.JSON([]byte("{}"))
	if len(sub.Metadata) > 0 {
		raw, err := json.Marshal(sub.Metadata)
		if err != nil {
			return SubscriberRow{}, fmt.Errorf("encode subscriber metadata: %w", err)
		}
		meta = datatypes.JSON(raw)
	}
	now := time.Now().UTC()
	created := sub.CreatedAt
	if created.IsZero() {
		created = now
	}
	return SubscriberRow{
		ConnectionID: sub.ConnectionID,
		Endpoint:     sub.Endpoint,
		Metadata:     meta,
		CreatedAt:    created.UTC(),
		UpdatedAt:    now,
	}, nil
}

func (r *subscriberRepo) toDomain(row SubscriberRow) domain.Subscriber {
	sub := domain.Subscriber{
		ConnectionID: row.ConnectionID,
		Endpoint:     row.Endpoint,
		CreatedAt:    row.CreatedAt,
	}
	if len(row.Metadata) > 0 {
		var meta map[string]string
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			r.log.Warn("Undecodable subscriber metadata", "connection_id", row.ConnectionID, "error", err)
		} else if len(meta) > 0 {
			sub.Metadata = meta
		}
	}
	return sub
}
