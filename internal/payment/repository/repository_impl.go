package repository

import (
	"context"
	"time"

	paymentdomain "github.com/smallbiznis/recurra/internal/payment/domain"
	"gorm.io/gorm"
)

const paymentColumns = `id, subscription_id, payer_id, merchant_id, asset_type, amount, fee,
	success, kind, reference, note, occurred_at`

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *paymentdomain.PaymentRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uint64) (*paymentdomain.PaymentRecord, error) {
	var record paymentdomain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payment_records WHERE id = ?`,
		id,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID uint64) ([]paymentdomain.PaymentRecord, error) {
	var records []paymentdomain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payment_records WHERE subscription_id = ? ORDER BY id ASC`,
		subscriptionID,
	).Scan(&records).Error
	return records, err
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID string, afterID uint64, limit int) ([]paymentdomain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_records
		 WHERE (payer_id = ? OR merchant_id = ?) AND id > ? ORDER BY id ASC`
	args := []any{accountID, accountID, afterID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var records []paymentdomain.PaymentRecord
	err := db.WithContext(ctx).Raw(query, args...).Scan(&records).Error
	return records, err
}

func (r *repo) FindLatestSuccessfulCharge(ctx context.Context, db *gorm.DB, subscriptionID uint64) (*paymentdomain.PaymentRecord, error) {
	var record paymentdomain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payment_records
		 WHERE subscription_id = ? AND success = ? AND kind IN ?
		 ORDER BY id DESC LIMIT 1`,
		subscriptionID,
		true,
		[]paymentdomain.PaymentKind{paymentdomain.PaymentKindInitial, paymentdomain.PaymentKindScheduled},
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) HistoryStats(ctx context.Context, db *gorm.DB, subscriptionID uint64) (paymentdomain.HistoryStats, error) {
	var row struct {
		Total     int64
		Succeeded int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS total,
		        COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS succeeded
		 FROM payment_records WHERE subscription_id = ?`,
		subscriptionID,
	).Scan(&row).Error
	if err != nil {
		return paymentdomain.HistoryStats{}, err
	}
	return paymentdomain.HistoryStats{Total: row.Total, Succeeded: row.Succeeded}, nil
}

func (r *repo) ListFailedSince(ctx context.Context, db *gorm.DB, subscriptionIDs []uint64, since time.Time) ([]uint64, error) {
	if len(subscriptionIDs) == 0 {
		return nil, nil
	}
	var ids []uint64
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT subscription_id FROM payment_records
		 WHERE subscription_id IN ? AND success = ? AND kind = ? AND occurred_at >= ?
		 ORDER BY subscription_id ASC`,
		subscriptionIDs,
		false,
		paymentdomain.PaymentKindScheduled,
		since,
	).Scan(&ids).Error
	return ids, err
}
