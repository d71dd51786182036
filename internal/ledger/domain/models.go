package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerEntryDirection represents debit or credit postings.
type LedgerEntryDirection string

const (
	LedgerEntryDirectionDebit  LedgerEntryDirection = "debit"
	LedgerEntryDirectionCredit LedgerEntryDirection = "credit"
)

type LedgerSourceType string

const (
	SourceTypeDeposit        LedgerSourceType = "deposit"         // development faucet
	SourceTypeTransfer       LedgerSourceType = "transfer"        // owner-initiated movement
	SourceTypeTransferFrom   LedgerSourceType = "transfer_from"   // allowance-based pull
	SourceTypePayment        LedgerSourceType = "payment"         // subscriber charge pulled into custody
	SourceTypeMerchantPayout LedgerSourceType = "merchant_payout" // custody to merchant
	SourceTypeProtocolFee    LedgerSourceType = "protocol_fee"    // custody to fee collector
	SourceTypeDisputeRefund  LedgerSourceType = "dispute_refund"  // merchant to subscriber
)

var (
	ErrInvalidSourceType    = errors.New("invalid_source_type")
	ErrInvalidSourceID      = errors.New("invalid_source_id")
	ErrInvalidAssetType     = errors.New("invalid_asset_type")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidEntryLines    = errors.New("invalid_entry_lines")
	ErrInvalidAccount       = errors.New("invalid_account")
	ErrInvalidLineDirection = errors.New("invalid_line_direction")
	ErrInvalidLineAmount    = errors.New("invalid_line_amount")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
)

// LedgerEntry captures the immutable header for an asset movement.
type LedgerEntry struct {
	ID         snowflake.ID     `gorm:"primaryKey"`
	SourceType LedgerSourceType `gorm:"size:191;not null;index"`
	SourceID   string           `gorm:"size:191;not null;index"`
	AssetType  string           `gorm:"type:text;not null"`
	OccurredAt time.Time        `gorm:"not null"`
	CreatedAt  time.Time        `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// LedgerEntryLine is a double-entry posting line. A debit increases the
// account's holding, a credit decreases it.
type LedgerEntryLine struct {
	ID            snowflake.ID         `gorm:"primaryKey"`
	LedgerEntryID snowflake.ID         `gorm:"not null;index"`
	AccountID     string               `gorm:"size:191;not null;index"`
	Direction     LedgerEntryDirection `gorm:"type:text;not null"`
	Amount        decimal.Decimal      `gorm:"type:text;not null"`
	CreatedAt     time.Time            `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerEntryLine) TableName() string { return "ledger_entry_lines" }

// PostingRequest describes one balanced entry to append.
type PostingRequest struct {
	SourceType LedgerSourceType
	SourceID   string
	AssetType  string
	OccurredAt time.Time
	Lines      []LedgerEntryLine
}

type Service interface {
	// PostTx appends an entry inside the caller's transaction.
	PostTx(ctx context.Context, tx *gorm.DB, req PostingRequest) (*LedgerEntry, error)
	ListAccountLines(ctx context.Context, accountID string, assetType string) ([]LedgerEntryLine, error)
}

// ValidateBalanced checks that debits equal credits.
func ValidateBalanced(lines []LedgerEntryLine) error {
	debit := decimal.Zero
	credit := decimal.Zero
	for _, line := range lines {
		switch line.Direction {
		case LedgerEntryDirectionDebit:
			debit = debit.Add(line.Amount)
		case LedgerEntryDirectionCredit:
			credit = credit.Add(line.Amount)
		default:
			return ErrInvalidLineDirection
		}
	}
	if !debit.Equal(credit) {
		return ErrUnbalancedEntry
	}
	return nil
}

// TransferLines builds the two postings of a movement from one account to another.
func TransferLines(from, to string, amount decimal.Decimal) []LedgerEntryLine {
	return []LedgerEntryLine{
		{AccountID: from, Direction: LedgerEntryDirectionCredit, Amount: amount},
		{AccountID: to, Direction: LedgerEntryDirectionDebit, Amount: amount},
	}
}
