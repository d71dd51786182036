package domain

import "time"

// Subscription enrolls a subscriber in a plan's billing schedule.
type Subscription struct {
	ID            uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PlanID        uint64     `gorm:"not null;index" json:"plan_id"`
	SubscriberID  string     `gorm:"size:191;not null;index" json:"subscriber_id"`
	StartAt       time.Time  `gorm:"not null" json:"start_at"`
	LastPaymentAt *time.Time `json:"last_payment_at,omitempty"`
	NextPaymentAt time.Time  `gorm:"not null;index" json:"next_payment_at"`
	Active        bool       `gorm:"not null;index" json:"active"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// IsDue reports whether the subscription should be charged at now.
func (s Subscription) IsDue(now time.Time) bool {
	return s.Active && !s.NextPaymentAt.After(now)
}
