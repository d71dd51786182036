package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	EventPlanCreated              = "plan.created"
	EventPlanUpdated              = "plan.updated"
	EventSubscriptionCreated      = "subscription.created"
	EventSubscriptionCancelled    = "subscription.cancelled"
	EventPaymentProcessed         = "payment.processed"
	EventPaymentFailed            = "payment.failed"
	EventPaymentRecorded          = "payment.recorded"
	EventCreditScoreUpdated       = "credit.score_updated"
	EventPredictionUpdated        = "prediction.updated"
	EventDisputeOpened            = "dispute.opened"
	EventDisputeEvidenceSubmitted = "dispute.evidence_submitted"
	EventDisputeResolved          = "dispute.resolved"
	EventDisputeCancelled         = "dispute.cancelled"
	EventRoleGranted              = "role.granted"
	EventRoleRevoked              = "role.revoked"
	EventAssetDeposited           = "asset.deposited"
	EventAssetApproved            = "asset.approved"
)

const (
	AggregatePlan         = "plan"
	AggregateSubscription = "subscription"
	AggregatePayment      = "payment"
	AggregateCreditScore  = "credit_score"
	AggregatePrediction   = "prediction"
	AggregateDispute      = "dispute"
	AggregateRole         = "role"
	AggregateAsset        = "asset"
)

// Event is a domain notification queued inside a ledger transaction.
type Event struct {
	Type          string
	AggregateType string
	AggregateID   string
	Payload       map[string]any
}

// OutboxEvent is the persisted form of an Event awaiting relay.
type OutboxEvent struct {
	ID            snowflake.ID   `gorm:"primaryKey"`
	EventType     string         `gorm:"size:191;not null;index"`
	AggregateType string         `gorm:"type:text;not null"`
	AggregateID   string         `gorm:"size:191;not null;index"`
	Payload       datatypes.JSON `gorm:"not null"`
	OccurredAt    time.Time      `gorm:"not null"`
	PublishedAt   *time.Time     `gorm:"index"`
	Attempts      int            `gorm:"not null;default:0"`
	LastError     string         `gorm:"type:text"`
}

// TableName sets the database table name.
func (OutboxEvent) TableName() string { return "outbox_events" }
