package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	plandomain "github.com/smallbiznis/recurra/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	"github.com/smallbiznis/recurra/pkg/db/pagination"
	"gorm.io/gorm"
)

type ExternalPaymentRequest struct {
	AccountID string          `json:"account_id"`
	Success   bool            `json:"success"`
	Amount    decimal.Decimal `json:"amount"`
	AssetType string          `json:"asset_type"`
	Note      string          `json:"note,omitempty"`
}

type Service interface {
	// ProcessDuePayments charges each id in its own transaction and keeps
	// going when one fails.
	ProcessDuePayments(ctx context.Context, subscriptionIDs []uint64) ([]BatchItemResult, error)
	ChargeInitialTx(ctx context.Context, tx *gorm.DB, subscription *subscriptiondomain.Subscription, plan *plandomain.Plan) error
	RecordExternalPayment(ctx context.Context, caller string, req ExternalPaymentRequest) (*PaymentRecord, error)
	// RefundTx pulls amount from the merchant to the subscriber through the
	// engine's allowance.
	RefundTx(ctx context.Context, tx *gorm.DB, disputeID uint64, merchantID string, subscriberID string, assetType string, amount decimal.Decimal) error
	GetPaymentHistory(ctx context.Context, subscriptionID uint64) ([]PaymentRecord, error)
	GetAccountPaymentHistory(ctx context.Context, accountID string) ([]PaymentRecord, error)
	// RecentlyFailed filters subscriptionIDs down to those with a failed
	// scheduled charge at or after since.
	RecentlyFailed(ctx context.Context, subscriptionIDs []uint64, since time.Time) ([]uint64, error)
	ListAccountPayments(ctx context.Context, accountID string, page pagination.Pagination) ([]PaymentRecord, pagination.PageInfo, error)
}

var (
	ErrPaymentNotFound = errors.New("payment_not_found")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidAccount  = errors.New("invalid_account")
)
