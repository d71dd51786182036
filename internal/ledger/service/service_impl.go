package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recurra/internal/clock"
	ledgerdomain "github.com/smallbiznis/recurra/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/recurra/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) PostTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.PostingRequest) (*ledgerdomain.LedgerEntry, error) {
	sourceType := ledgerdomain.LedgerSourceType(strings.TrimSpace(string(req.SourceType)))
	if sourceType == "" {
		return nil, ledgerdomain.ErrInvalidSourceType
	}
	sourceID := strings.TrimSpace(req.SourceID)
	if sourceID == "" {
		return nil, ledgerdomain.ErrInvalidSourceID
	}
	assetType := strings.TrimSpace(req.AssetType)
	if assetType == "" {
		return nil, ledgerdomain.ErrInvalidAssetType
	}
	if req.OccurredAt.IsZero() {
		return nil, ledgerdomain.ErrInvalidOccurredAt
	}
	if len(req.Lines) < 2 {
		return nil, ledgerdomain.ErrInvalidEntryLines
	}

	normalized := make([]ledgerdomain.LedgerEntryLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		accountID := strings.TrimSpace(line.AccountID)
		if accountID == "" {
			return nil, ledgerdomain.ErrInvalidAccount
		}
		direction, err := normalizeDirection(line.Direction)
		if err != nil {
			return nil, err
		}
		if !line.Amount.IsPositive() || !line.Amount.IsInteger() {
			return nil, ledgerdomain.ErrInvalidLineAmount
		}
		normalized = append(normalized, ledgerdomain.LedgerEntryLine{
			AccountID: accountID,
			Direction: direction,
			Amount:    line.Amount,
		})
	}
	if err := ledgerdomain.ValidateBalanced(normalized); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	entry := &ledgerdomain.LedgerEntry{
		ID:         s.genID.Generate(),
		SourceType: sourceType,
		SourceID:   sourceID,
		AssetType:  assetType,
		OccurredAt: req.OccurredAt.UTC(),
		CreatedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	for i := range normalized {
		normalized[i].ID = s.genID.Generate()
		normalized[i].LedgerEntryID = entry.ID
		normalized[i].CreatedAt = now
	}
	if err := tx.WithContext(ctx).Create(&normalized).Error; err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerEntry(string(sourceType))
	}
	return entry, nil
}

func (s *Service) ListAccountLines(ctx context.Context, accountID string, assetType string) ([]ledgerdomain.LedgerEntryLine, error) {
	var lines []ledgerdomain.LedgerEntryLine
	err := s.db.WithContext(ctx).
		Table("ledger_entry_lines AS l").
		Select("l.*").
		Joins("JOIN ledger_entries e ON e.id = l.ledger_entry_id").
		Where("l.account_id = ? AND e.asset_type = ?", strings.TrimSpace(accountID), strings.TrimSpace(assetType)).
		Order("l.id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func normalizeDirection(direction ledgerdomain.LedgerEntryDirection) (ledgerdomain.LedgerEntryDirection, error) {
	normalized := strings.ToLower(strings.TrimSpace(string(direction)))
	switch normalized {
	case string(ledgerdomain.LedgerEntryDirectionDebit):
		return ledgerdomain.LedgerEntryDirectionDebit, nil
	case string(ledgerdomain.LedgerEntryDirectionCredit):
		return ledgerdomain.LedgerEntryDirectionCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidLineDirection
	}
}

