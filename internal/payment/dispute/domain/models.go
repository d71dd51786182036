package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DisputeStatus string

const (
	DisputeStatusOpened            DisputeStatus = "opened"
	DisputeStatusEvidenceSubmitted DisputeStatus = "evidence_submitted"
	DisputeStatusResolved          DisputeStatus = "resolved"
	DisputeStatusCancelled         DisputeStatus = "cancelled"
)

type Resolution string

const (
	ResolutionNone           Resolution = "none"
	ResolutionMerchantWins   Resolution = "merchant_wins"
	ResolutionSubscriberWins Resolution = "subscriber_wins"
	ResolutionCompromise     Resolution = "compromise"
)

// Dispute contests the most recent successful charge of a subscription.
type Dispute struct {
	ID                 uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SubscriptionID     uint64          `gorm:"not null;index" json:"subscription_id"`
	PaymentID          uint64          `gorm:"not null" json:"payment_id"`
	SubscriberID       string          `gorm:"type:text;not null" json:"subscriber_id"`
	MerchantID         string          `gorm:"type:text;not null" json:"merchant_id"`
	AssetType          string          `gorm:"type:text;not null" json:"asset_type"`
	Amount             decimal.Decimal `gorm:"type:text;not null" json:"amount"`
	Reason             string          `gorm:"type:text" json:"reason"`
	Status             DisputeStatus   `gorm:"size:191;not null;index" json:"status"`
	Resolution         Resolution      `gorm:"type:text;not null" json:"resolution"`
	SubscriberEvidence string          `gorm:"type:text" json:"subscriber_evidence"`
	MerchantEvidence   string          `gorm:"type:text" json:"merchant_evidence"`
	ResolutionNotes    string          `gorm:"type:text" json:"resolution_notes"`
	RefundAmount       decimal.Decimal `gorm:"type:text;not null" json:"refund_amount"`
	ResolverID         string          `gorm:"type:text" json:"resolver_id,omitempty"`
	AutoResolved       bool            `gorm:"not null" json:"auto_resolved"`
	CreatedAt          time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"not null" json:"updated_at"`
	ResolvedAt         *time.Time      `json:"resolved_at,omitempty"`
}

func (Dispute) TableName() string { return "disputes" }

func (d Dispute) IsOpen() bool {
	return d.Status == DisputeStatusOpened || d.Status == DisputeStatusEvidenceSubmitted
}

// EligibleForAutoResolution reports whether no arbitrator acted within
// timeout of the dispute being opened.
func (d Dispute) EligibleForAutoResolution(now time.Time, timeout time.Duration) bool {
	return d.IsOpen() && now.Sub(d.CreatedAt) >= timeout
}

func IsArbitratedResolution(r Resolution) bool {
	switch r {
	case ResolutionMerchantWins, ResolutionSubscriberWins, ResolutionCompromise:
		return true
	}
	return false
}

// AppendEvidence joins submissions with newlines.
func AppendEvidence(existing, evidence string) string {
	if existing == "" {
		return evidence
	}
	return existing + "\n" + evidence
}
