package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	assetdomain "github.com/smallbiznis/recurra/internal/asset/domain"
	"github.com/smallbiznis/recurra/internal/authorization"
	"github.com/smallbiznis/recurra/internal/clock"
	"github.com/smallbiznis/recurra/internal/events"
	ledgerdomain "github.com/smallbiznis/recurra/internal/ledger/domain"
	"github.com/smallbiznis/recurra/internal/sequencer"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      assetdomain.Repository
	Ledger    ledgerdomain.Service
	Authz     authorization.Service
	Sequencer *sequencer.Sequencer
	Outbox    *events.Outbox
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      assetdomain.Repository
	ledger    ledgerdomain.Service
	authz     authorization.Service
	sequencer *sequencer.Sequencer
	outbox    *events.Outbox
}

func NewService(p Params) assetdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("asset.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		ledger:    p.Ledger,
		authz:     p.Authz,
		sequencer: p.Sequencer,
		outbox:    p.Outbox,
	}
}

// Deposit mints funds into account from the faucet. Admin only.
func (s *Service) Deposit(ctx context.Context, caller string, account string, assetType string, amount decimal.Decimal) error {
	if err := s.authz.Authorize(ctx, caller, authorization.RoleAdmin, ""); err != nil {
		return err
	}
	account = strings.TrimSpace(account)
	assetType = strings.TrimSpace(assetType)
	if account == "" || assetType == "" {
		return assetdomain.ErrInvalidAccount
	}
	if !validAmount(amount) {
		return assetdomain.ErrInvalidAmount
	}

	return s.sequencer.Run(ctx, "asset.deposit", func(tx *gorm.DB) error {
		now := s.clock.Now()
		entry, err := s.ledger.PostTx(ctx, tx, ledgerdomain.PostingRequest{
			SourceType: ledgerdomain.SourceTypeDeposit,
			SourceID:   account,
			AssetType:  assetType,
			OccurredAt: now,
			Lines:      ledgerdomain.TransferLines(assetdomain.FaucetAccount, account, amount),
		})
		if err != nil {
			return err
		}
		if err := s.credit(ctx, tx, account, assetType, amount); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type:          events.EventAssetDeposited,
			AggregateType: events.AggregateAsset,
			AggregateID:   account,
			Payload: map[string]any{
				"account":         account,
				"asset_type":      assetType,
				"amount":          amount.String(),
				"ledger_entry_id": entry.ID.String(),
			},
		})
	})
}

// Approve sets (not adds to) the allowance owner grants spender.
func (s *Service) Approve(ctx context.Context, owner string, spender string, assetType string, amount decimal.Decimal) error {
	owner = strings.TrimSpace(owner)
	spender = strings.TrimSpace(spender)
	assetType = strings.TrimSpace(assetType)
	if owner == "" || spender == "" || assetType == "" {
		return assetdomain.ErrInvalidAccount
	}
	if amount.IsNegative() || !amount.IsInteger() {
		return assetdomain.ErrInvalidAmount
	}

	return s.sequencer.Run(ctx, "asset.approve", func(tx *gorm.DB) error {
		if err := s.repo.SetAllowance(ctx, tx, &assetdomain.Allowance{
			OwnerID:   owner,
			SpenderID: spender,
			AssetType: assetType,
			Amount:    amount,
			UpdatedAt: s.clock.Now(),
		}); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type:          events.EventAssetApproved,
			AggregateType: events.AggregateAsset,
			AggregateID:   owner,
			Payload: map[string]any{
				"owner":      owner,
				"spender":    spender,
				"asset_type": assetType,
				"amount":     amount.String(),
			},
		})
	})
}

func (s *Service) BalanceOf(ctx context.Context, account string, assetType string) (decimal.Decimal, error) {
	return s.BalanceOfTx(ctx, s.db, account, assetType)
}

func (s *Service) AllowanceOf(ctx context.Context, owner string, spender string, assetType string) (decimal.Decimal, error) {
	return s.AllowanceOfTx(ctx, s.db, owner, spender, assetType)
}

func (s *Service) BalanceOfTx(ctx context.Context, tx *gorm.DB, account string, assetType string) (decimal.Decimal, error) {
	return s.repo.GetBalance(ctx, tx, strings.TrimSpace(account), strings.TrimSpace(assetType))
}

func (s *Service) AllowanceOfTx(ctx context.Context, tx *gorm.DB, owner string, spender string, assetType string) (decimal.Decimal, error) {
	return s.repo.GetAllowance(ctx, tx, strings.TrimSpace(owner), strings.TrimSpace(spender), strings.TrimSpace(assetType))
}

func (s *Service) TransferTx(ctx context.Context, tx *gorm.DB, ref assetdomain.TransferRef, from string, to string, assetType string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return assetdomain.ErrInvalidAmount
	}
	return s.move(ctx, tx, ref, from, to, assetType, amount)
}

// TransferFromTx moves funds on behalf of from, consuming spender's allowance.
func (s *Service) TransferFromTx(ctx context.Context, tx *gorm.DB, ref assetdomain.TransferRef, spender string, from string, to string, assetType string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return assetdomain.ErrInvalidAmount
	}
	allowance, err := s.repo.GetAllowance(ctx, tx, from, spender, assetType)
	if err != nil {
		return err
	}
	if allowance.LessThan(amount) {
		return fmt.Errorf("%w: %w", assetdomain.ErrTransferFailed, assetdomain.ErrInsufficientAllowance)
	}
	if err := s.move(ctx, tx, ref, from, to, assetType, amount); err != nil {
		return err
	}
	return s.repo.SetAllowance(ctx, tx, &assetdomain.Allowance{
		OwnerID:   from,
		SpenderID: spender,
		AssetType: assetType,
		Amount:    allowance.Sub(amount),
		UpdatedAt: s.clock.Now(),
	})
}

func (s *Service) move(ctx context.Context, tx *gorm.DB, ref assetdomain.TransferRef, from string, to string, assetType string, amount decimal.Decimal) error {
	if from == "" || to == "" || assetType == "" {
		return assetdomain.ErrInvalidAccount
	}
	balance, err := s.repo.GetBalance(ctx, tx, from, assetType)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: %w", assetdomain.ErrTransferFailed, assetdomain.ErrInsufficientBalance)
	}

	sourceType := ref.SourceType
	if sourceType == "" {
		sourceType = ledgerdomain.SourceTypeTransfer
	}
	sourceID := ref.SourceID
	if sourceID == "" {
		sourceID = from
	}
	if _, err := s.ledger.PostTx(ctx, tx, ledgerdomain.PostingRequest{
		SourceType: sourceType,
		SourceID:   sourceID,
		AssetType:  assetType,
		OccurredAt: s.clock.Now(),
		Lines:      ledgerdomain.TransferLines(from, to, amount),
	}); err != nil {
		return err
	}

	now := s.clock.Now()
	if err := s.repo.SetBalance(ctx, tx, &assetdomain.Balance{
		AccountID: from,
		AssetType: assetType,
		Amount:    balance.Sub(amount),
		UpdatedAt: now,
	}); err != nil {
		return err
	}
	return s.credit(ctx, tx, to, assetType, amount)
}

func (s *Service) credit(ctx context.Context, tx *gorm.DB, account string, assetType string, amount decimal.Decimal) error {
	balance, err := s.repo.GetBalance(ctx, tx, account, assetType)
	if err != nil {
		return err
	}
	return s.repo.SetBalance(ctx, tx, &assetdomain.Balance{
		AccountID: account,
		AssetType: assetType,
		Amount:    balance.Add(amount),
		UpdatedAt: s.clock.Now(),
	})
}

func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.IsInteger()
}
