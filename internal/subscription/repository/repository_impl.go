package repository

import (
	"context"
	"time"

	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	"github.com/smallbiznis/recurra/pkg/db"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, plan_id, subscriber_id, start_at, last_payment_at, next_payment_at,
	active, cancelled_at, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return conn.WithContext(ctx).Create(subscription).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id uint64) (*subscriptiondomain.Subscription, error) {
	return r.find(ctx, conn, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, conn *gorm.DB, id uint64) (*subscriptiondomain.Subscription, error) {
	return r.find(ctx, conn, db.ForUpdate(conn, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`), id)
}

func (r *repo) find(ctx context.Context, conn *gorm.DB, query string, id uint64) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	if err := conn.WithContext(ctx).Raw(query, id).Scan(&subscription).Error; err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) UpdateSchedule(ctx context.Context, conn *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE subscriptions SET last_payment_at = ?, next_payment_at = ?, updated_at = ? WHERE id = ?`,
		subscription.LastPaymentAt,
		subscription.NextPaymentAt,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repo) Cancel(ctx context.Context, conn *gorm.DB, id uint64, at time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE subscriptions SET active = ?, cancelled_at = ?, updated_at = ? WHERE id = ?`,
		false,
		at,
		at,
		id,
	).Error
}

func (r *repo) ListActiveDueBefore(ctx context.Context, conn *gorm.DB, t time.Time, afterID uint64, limit int) ([]subscriptiondomain.Subscription, error) {
	query := conn.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("active = ? AND next_payment_at <= ? AND id > ?", true, t, afterID).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var subscriptions []subscriptiondomain.Subscription
	if err := query.Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) ListBySubscriber(ctx context.Context, conn *gorm.DB, subscriberID string) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := conn.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscriber_id = ? ORDER BY id ASC`,
		subscriberID,
	).Scan(&subscriptions).Error
	return subscriptions, err
}

func (r *repo) ListByPlan(ctx context.Context, conn *gorm.DB, planID uint64) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := conn.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE plan_id = ? ORDER BY id ASC`,
		planID,
	).Scan(&subscriptions).Error
	return subscriptions, err
}
