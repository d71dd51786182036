package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/recurra/internal/ledger/domain"
	"gorm.io/gorm"
)

// FaucetAccount is the contra account credited by development deposits.
const FaucetAccount = "external:faucet"

var (
	ErrTransferFailed        = errors.New("transfer_failed")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidAccount        = errors.New("invalid_account")
	ErrInsufficientBalance   = errors.New("insufficient_balance")
	ErrInsufficientAllowance = errors.New("insufficient_allowance")
)

// TransferRef ties a movement to the ledger source that caused it.
type TransferRef struct {
	SourceType ledgerdomain.LedgerSourceType
	SourceID   string
}

// Service is the fungible-asset capability the engine settles through.
// The *Tx methods never take the sequencer and never touch the database
// outside tx.
type Service interface {
	Deposit(ctx context.Context, caller string, account string, assetType string, amount decimal.Decimal) error
	Approve(ctx context.Context, owner string, spender string, assetType string, amount decimal.Decimal) error
	BalanceOf(ctx context.Context, account string, assetType string) (decimal.Decimal, error)
	AllowanceOf(ctx context.Context, owner string, spender string, assetType string) (decimal.Decimal, error)
	BalanceOfTx(ctx context.Context, tx *gorm.DB, account string, assetType string) (decimal.Decimal, error)
	AllowanceOfTx(ctx context.Context, tx *gorm.DB, owner string, spender string, assetType string) (decimal.Decimal, error)
	TransferTx(ctx context.Context, tx *gorm.DB, ref TransferRef, from string, to string, assetType string, amount decimal.Decimal) error
	TransferFromTx(ctx context.Context, tx *gorm.DB, ref TransferRef, spender string, from string, to string, assetType string, amount decimal.Decimal) error
}
