package domain

import (
	"context"
	"errors"

	plandomain "github.com/smallbiznis/recurra/internal/plan/domain"
	"gorm.io/gorm"
)

const DefaultDueLimit = 50

// InitialCharger settles the first period of a subscription without a trial.
// It runs inside the enrollment transaction; any error aborts enrollment.
type InitialCharger interface {
	ChargeInitialTx(ctx context.Context, tx *gorm.DB, subscription *Subscription, plan *plandomain.Plan) error
}

type Service interface {
	Subscribe(ctx context.Context, caller string, planID uint64) (*Subscription, error)
	CancelSubscription(ctx context.Context, caller string, id uint64) (*Subscription, error)
	GetSubscription(ctx context.Context, id uint64) (*Subscription, error)
	GetDueSubscriptions(ctx context.Context, limit int) ([]Subscription, error)
	// GetDueSubscriptionsAfter pages the due set by ascending id.
	GetDueSubscriptionsAfter(ctx context.Context, afterID uint64, limit int) ([]Subscription, error)
	ListSubscriberSubscriptions(ctx context.Context, subscriberID string) ([]Subscription, error)
	ListPlanSubscriptions(ctx context.Context, planID uint64) ([]Subscription, error)
}

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrSubscriptionInactive = errors.New("subscription_inactive")
)
