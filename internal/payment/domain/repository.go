package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *PaymentRecord) error
	FindByID(ctx context.Context, db *gorm.DB, id uint64) (*PaymentRecord, error)
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID uint64) ([]PaymentRecord, error)
	// ListByAccount returns records with id > afterID in id order; limit 0
	// means unbounded.
	ListByAccount(ctx context.Context, db *gorm.DB, accountID string, afterID uint64, limit int) ([]PaymentRecord, error)
	// FindLatestSuccessfulCharge returns the newest successful initial or
	// scheduled charge of a subscription.
	FindLatestSuccessfulCharge(ctx context.Context, db *gorm.DB, subscriptionID uint64) (*PaymentRecord, error)
	HistoryStats(ctx context.Context, db *gorm.DB, subscriptionID uint64) (HistoryStats, error)
	// ListFailedSince returns the ids among subscriptionIDs with a failed
	// scheduled charge at or after since.
	ListFailedSince(ctx context.Context, db *gorm.DB, subscriptionIDs []uint64, since time.Time) ([]uint64, error)
}
