package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

const DefaultAutoResolveLimit = 50

type ResolveRequest struct {
	Resolution   Resolution      `json:"resolution"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Notes        string          `json:"notes"`
}

type Service interface {
	OpenDispute(ctx context.Context, caller string, subscriptionID uint64, reason string) (*Dispute, error)
	SubmitEvidence(ctx context.Context, caller string, disputeID uint64, evidence string) (*Dispute, error)
	ResolveDispute(ctx context.Context, caller string, disputeID uint64, req ResolveRequest) (*Dispute, error)
	CancelDispute(ctx context.Context, caller string, disputeID uint64) (*Dispute, error)
	IsEligibleForAutoResolution(ctx context.Context, disputeID uint64) (bool, error)
	// AutoResolveDispute may be triggered by anyone once the resolution
	// timeout has elapsed.
	AutoResolveDispute(ctx context.Context, disputeID uint64) (*Dispute, error)
	GetDispute(ctx context.Context, disputeID uint64) (*Dispute, error)
	ListSubscriptionDisputes(ctx context.Context, subscriptionID uint64) ([]Dispute, error)
	ListAutoResolvable(ctx context.Context, limit int) ([]Dispute, error)
}

var (
	ErrDisputeNotFound    = errors.New("dispute_not_found")
	ErrDisputeAlreadyOpen = errors.New("dispute_already_open")
	ErrDisputeNotOpen     = errors.New("dispute_not_open")
	ErrInvalidRefund      = errors.New("invalid_refund")
	ErrInvalidResolution  = errors.New("invalid_resolution")
	ErrInvalidEvidence    = errors.New("invalid_evidence")
	ErrNotEligible        = errors.New("not_eligible")
)
