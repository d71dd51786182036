package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentKind string

const (
	PaymentKindInitial   PaymentKind = "initial"
	PaymentKindScheduled PaymentKind = "scheduled"
	PaymentKindExternal  PaymentKind = "external"
)

// PaymentRecord is one attempted charge. Records are append-only.
type PaymentRecord struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SubscriptionID uint64          `gorm:"not null;index" json:"subscription_id"`
	PayerID        string          `gorm:"size:191;not null;index" json:"payer_id"`
	MerchantID     string          `gorm:"size:191;not null;index" json:"merchant_id"`
	AssetType      string          `gorm:"type:text;not null" json:"asset_type"`
	Amount         decimal.Decimal `gorm:"type:text;not null" json:"amount"`
	Fee            decimal.Decimal `gorm:"type:text;not null" json:"fee"`
	Success        bool            `gorm:"not null" json:"success"`
	Kind           PaymentKind     `gorm:"type:text;not null" json:"kind"`
	Reference      string          `gorm:"size:191;not null;uniqueIndex" json:"reference"`
	Note           string          `gorm:"type:text" json:"note,omitempty"`
	OccurredAt     time.Time       `gorm:"not null" json:"occurred_at"`
}

func (PaymentRecord) TableName() string { return "payment_records" }

type BatchItemStatus string

const (
	BatchItemCharged BatchItemStatus = "charged"
	BatchItemFailed  BatchItemStatus = "failed"
	BatchItemSkipped BatchItemStatus = "skipped"
)

// BatchItemResult reports what happened to one id of a due-payment batch.
type BatchItemResult struct {
	SubscriptionID uint64          `json:"subscription_id"`
	Status         BatchItemStatus `json:"status"`
	PaymentID      uint64          `json:"payment_id,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// HistoryStats summarizes a subscription's charge history.
type HistoryStats struct {
	Total     int64
	Succeeded int64
}

var basisPointsDenominator = decimal.NewFromInt(10000)

// SplitFee divides amount into the protocol fee and the merchant's share.
// The fee is floor(amount * bps / 10000) and the merchant receives the rest,
// so the two always sum to amount exactly.
func SplitFee(amount decimal.Decimal, bps int64) (fee decimal.Decimal, merchant decimal.Decimal) {
	if bps <= 0 || !amount.IsPositive() {
		return decimal.Zero, amount
	}
	fee, _ = amount.Mul(decimal.NewFromInt(bps)).QuoRem(basisPointsDenominator, 0)
	return fee, amount.Sub(fee)
}
