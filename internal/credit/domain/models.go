package domain

import "time"

const (
	BaseScore    = 500
	MinScore     = 0
	MaxScore     = 1000
	SuccessDelta = 5
	FailureDelta = -10
)

// CreditScore is the stored, undecayed reputation of an account.
type CreditScore struct {
	AccountID    string    `gorm:"primaryKey;size:191" json:"account_id"`
	RawScore     int       `gorm:"not null" json:"raw_score"`
	LastUpdateAt time.Time `gorm:"not null" json:"last_update_at"`
}

func (CreditScore) TableName() string { return "credit_scores" }

// Score is the read view of an account's reputation at a point in time.
type Score struct {
	AccountID    string     `json:"account_id"`
	Raw          int        `json:"raw"`
	Decayed      int        `json:"decayed"`
	LastUpdateAt *time.Time `json:"last_update_at,omitempty"`
}

// ApplyOutcome returns raw moved by one payment outcome, clamped to the
// score range.
func ApplyOutcome(raw int, success bool) int {
	if success {
		raw += SuccessDelta
	} else {
		raw += FailureDelta
	}
	if raw < MinScore {
		return MinScore
	}
	if raw > MaxScore {
		return MaxScore
	}
	return raw
}

// Decay pulls raw toward BaseScore hyperbolically:
//
//	decayed = base + trunc((raw - base) * H / (H + elapsed))
//
// At elapsed 0 it returns raw, and the distance to base never grows as
// elapsed grows. Whole seconds keep the arithmetic exact.
func Decay(raw int, elapsed, halfLife time.Duration) int {
	if elapsed <= 0 || halfLife <= 0 {
		return raw
	}
	h := int64(halfLife / time.Second)
	e := int64(elapsed / time.Second)
	if h <= 0 {
		return BaseScore
	}
	dist := int64(raw - BaseScore)
	return BaseScore + int(dist*h/(h+e))
}
