package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id uint64) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id uint64) (*Subscription, error)
	UpdateSchedule(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Cancel(ctx context.Context, db *gorm.DB, id uint64, at time.Time) error
	// ListActiveDueBefore returns active subscriptions with next payment at or
	// before t in ascending id order. limit <= 0 means no limit.
	ListActiveDueBefore(ctx context.Context, db *gorm.DB, t time.Time, afterID uint64, limit int) ([]Subscription, error)
	ListBySubscriber(ctx context.Context, db *gorm.DB, subscriberID string) ([]Subscription, error)
	ListByPlan(ctx context.Context, db *gorm.DB, planID uint64) ([]Subscription, error)
}
