package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, dispute *Dispute) error
	Update(ctx context.Context, db *gorm.DB, dispute *Dispute) error
	FindByID(ctx context.Context, db *gorm.DB, id uint64) (*Dispute, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id uint64) (*Dispute, error)
	FindOpenBySubscription(ctx context.Context, db *gorm.DB, subscriptionID uint64) (*Dispute, error)
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID uint64) ([]Dispute, error)
	// ListOpenCreatedBefore returns open disputes created at or before t,
	// oldest first.
	ListOpenCreatedBefore(ctx context.Context, db *gorm.DB, t time.Time, limit int) ([]Dispute, error)
}
