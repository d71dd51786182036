package repository

import (
	"context"
	"time"

	disputedomain "github.com/smallbiznis/recurra/internal/payment/dispute/domain"
	"github.com/smallbiznis/recurra/pkg/db"
	"gorm.io/gorm"
)

const disputeColumns = `id, subscription_id, payment_id, subscriber_id, merchant_id, asset_type,
	amount, reason, status, resolution, subscriber_evidence, merchant_evidence,
	resolution_notes, refund_amount, resolver_id, auto_resolved, created_at,
	updated_at, resolved_at`

var openStatuses = []disputedomain.DisputeStatus{
	disputedomain.DisputeStatusOpened,
	disputedomain.DisputeStatusEvidenceSubmitted,
}

type repo struct{}

func Provide() disputedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, dispute *disputedomain.Dispute) error {
	return conn.WithContext(ctx).Create(dispute).Error
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, dispute *disputedomain.Dispute) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE disputes SET status = ?, resolution = ?, subscriber_evidence = ?,
		 merchant_evidence = ?, resolution_notes = ?, refund_amount = ?, resolver_id = ?,
		 auto_resolved = ?, updated_at = ?, resolved_at = ?
		 WHERE id = ?`,
		dispute.Status,
		dispute.Resolution,
		dispute.SubscriberEvidence,
		dispute.MerchantEvidence,
		dispute.ResolutionNotes,
		dispute.RefundAmount,
		dispute.ResolverID,
		dispute.AutoResolved,
		dispute.UpdatedAt,
		dispute.ResolvedAt,
		dispute.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id uint64) (*disputedomain.Dispute, error) {
	return r.find(ctx, conn, `SELECT `+disputeColumns+` FROM disputes WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, conn *gorm.DB, id uint64) (*disputedomain.Dispute, error) {
	return r.find(ctx, conn, db.ForUpdate(conn, `SELECT `+disputeColumns+` FROM disputes WHERE id = ?`), id)
}

func (r *repo) FindOpenBySubscription(ctx context.Context, conn *gorm.DB, subscriptionID uint64) (*disputedomain.Dispute, error) {
	return r.find(ctx, conn,
		`SELECT `+disputeColumns+` FROM disputes
		 WHERE subscription_id = ? AND status IN ? ORDER BY id DESC LIMIT 1`,
		subscriptionID,
		openStatuses,
	)
}

func (r *repo) find(ctx context.Context, conn *gorm.DB, query string, args ...any) (*disputedomain.Dispute, error) {
	var dispute disputedomain.Dispute
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&dispute).Error; err != nil {
		return nil, err
	}
	if dispute.ID == 0 {
		return nil, nil
	}
	return &dispute, nil
}

func (r *repo) ListBySubscription(ctx context.Context, conn *gorm.DB, subscriptionID uint64) ([]disputedomain.Dispute, error) {
	var disputes []disputedomain.Dispute
	err := conn.WithContext(ctx).Raw(
		`SELECT `+disputeColumns+` FROM disputes WHERE subscription_id = ? ORDER BY id ASC`,
		subscriptionID,
	).Scan(&disputes).Error
	if err != nil {
		return nil, err
	}
	return disputes, nil
}

func (r *repo) ListOpenCreatedBefore(ctx context.Context, conn *gorm.DB, t time.Time, limit int) ([]disputedomain.Dispute, error) {
	var disputes []disputedomain.Dispute
	err := conn.WithContext(ctx).Raw(
		`SELECT `+disputeColumns+` FROM disputes
		 WHERE status IN ? AND created_at <= ? ORDER BY id ASC LIMIT ?`,
		openStatuses,
		t,
		limit,
	).Scan(&disputes).Error
	if err != nil {
		return nil, err
	}
	return disputes, nil
}
