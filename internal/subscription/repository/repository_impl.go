package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscriptiond/internal/subscription/domain"
	"github.com/smallbiznis/subscriptiond/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const subscriptionColumns = `id, user_id, plan_id, start_date, end_date, status, payment_id, amount, cancelled_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LockUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Table("users").
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		Pluck("id", &ids).Error
	if err != nil {
		return false, err
	}
	return len(ids) == 1, nil
}

func (r *repo) ExpireLapsed(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (int64, error) {
	tx := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, updated_at = ?
		 WHERE user_id = ? AND status = ? AND end_date < ?`,
		domain.StatusExpired,
		now,
		userID,
		domain.StatusActive,
		now,
	)
	return tx.RowsAffected, tx.Error
}

func (r *repo) FindLapsed(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND end_date < ?", domain.StatusActive, now).
		Order("end_date ASC, id ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (int64, error) {
	tx := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND end_date < ?`,
		domain.StatusExpired,
		now,
		id,
		domain.StatusActive,
		now,
	)
	return tx.RowsAffected, tx.Error
}

func (r *repo) FindLive(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE user_id = ? AND status = ? AND end_date >= ?
		 ORDER BY start_date DESC, id DESC
		 LIMIT 1`,
		userID,
		domain.StatusActive,
		now,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`,
		id,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindActiveByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE user_id = ? AND status = ?
		 ORDER BY start_date DESC, id DESC
		 LIMIT 1`,
		userID,
		domain.StatusActive,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.UserID,
		sub.PlanID,
		sub.StartDate,
		sub.EndDate,
		sub.Status,
		sub.PaymentID,
		sub.Amount,
		sub.CancelledAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

// MarkCancelled only touches active rows; a zero count means nothing matched.
func (r *repo) MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error) {
	tx := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, cancelled_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCancelled,
		at,
		at,
		id,
		domain.StatusActive,
	)
	return tx.RowsAffected, tx.Error
}

func (r *repo) ListDetailed(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]domain.AdminRow, error) {
	where, args := StatusCondition("s.", filter)
	query := `SELECT s.id, s.user_id, s.plan_id, s.start_date, s.end_date, s.status, s.payment_id, s.amount,
		 s.cancelled_at, s.created_at, s.updated_at,
		 u.name AS user_name, u.email AS user_email,
		 p.name AS plan_name, p.price AS plan_price, p.duration_days AS plan_duration_days
		 FROM subscriptions s
		 LEFT JOIN users u ON u.id = s.user_id
		 LEFT JOIN plans p ON p.id = s.plan_id`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY s.created_at DESC, s.id DESC LIMIT ? OFFSET ?`

	page = page.Normalize()
	args = append(args, page.Limit, page.Offset())

	var rows []domain.AdminRow
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// StatusCondition renders the admin status filter. Expired matches rows whose
// end date has passed even if their stored status is still active.
func StatusCondition(prefix string, filter domain.ListFilter) (string, []interface{}) {
	switch filter.Status {
	case domain.StatusActive:
		return prefix + `status = ? AND ` + prefix + `end_date >= ?`,
			[]interface{}{domain.StatusActive, filter.Now}
	case domain.StatusExpired:
		return `(` + prefix + `status = ? OR (` + prefix + `status = ? AND ` + prefix + `end_date < ?))`,
			[]interface{}{domain.StatusExpired, domain.StatusActive, filter.Now}
	case domain.StatusCancelled:
		return prefix + `status = ?`, []interface{}{domain.StatusCancelled}
	default:
		return "", nil
	}
}
