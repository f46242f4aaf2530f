package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/CatPortrait/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, user_id, plan_id, provider, checkout_id, request_id, amount_minor, currency, points, status, COALESCE(raw_payload, ''), created_at, COALESCE(updated_at, created_at), completed_at`

func scanPayment(row interface{ Scan(...any) error }) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	var completedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.UserID, &p.PlanID, &p.Provider, &p.CheckoutID, &p.RequestID, &p.AmountMinor, &p.Currency, &p.Points, &p.Status, &p.RawPayload, &p.CreatedAt, &p.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	return &p, nil
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.PaymentTransaction) error {
	const query = `
INSERT INTO payment_transactions (user_id, plan_id, provider, checkout_id, request_id, amount_minor, currency, points, status, raw_payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, payment.UserID, payment.PlanID, payment.Provider, payment.CheckoutID, payment.RequestID, payment.AmountMinor, payment.Currency, payment.Points, payment.Status, payment.RawPayload)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	payment.ID = id
	return nil
}

func (r *PaymentRepository) FindByCheckoutID(ctx context.Context, checkoutID string) (*models.PaymentTransaction, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE checkout_id = ? LIMIT 1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, checkoutID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return p, nil
}

// LatestCompleted returns the most recently completed payment of the user, or nil.
func (r *PaymentRepository) LatestCompleted(ctx context.Context, userID string) (*models.PaymentTransaction, error) {
	query := `SELECT ` + paymentColumns + `
FROM payment_transactions
WHERE user_id = ? AND status = ?
ORDER BY completed_at DESC, id DESC
LIMIT 1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, userID, models.PaymentCompleted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan latest payment: %w", err)
	}
	return p, nil
}

// Cancel flips a pending checkout owned by userID to canceled.
func (r *PaymentRepository) Cancel(ctx context.Context, checkoutID, userID string) (bool, error) {
	const query = `
UPDATE payment_transactions SET status = ?, updated_at = NOW()
WHERE checkout_id = ? AND user_id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, models.PaymentCanceled, checkoutID, userID, models.PaymentPending)
	if err != nil {
		return false, fmt.Errorf("cancel payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, checkoutID string, status models.PaymentStatus, payload string) error {
	const query = `
UPDATE payment_transactions SET status = ?, raw_payload = ?, updated_at = NOW()
WHERE checkout_id = ? AND status <> ?`
	if _, err := r.db.ExecContext(ctx, query, status, payload, checkoutID, models.PaymentCompleted); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// Complete marks the checkout completed and credits its points in one
// transaction. It reports credited=false when the checkout was already
// completed, which makes webhook redelivery harmless.
func (r *PaymentRepository) Complete(ctx context.Context, checkoutID string, payload string) (*models.PaymentTransaction, bool, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE checkout_id = ? FOR UPDATE`
	p, err := scanPayment(tx.QueryRowContext(ctx, query, checkoutID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lock payment: %w", err)
	}
	if p.Status == models.PaymentCompleted {
		return p, false, nil
	}

	now := time.Now().UTC()
	const update = `
UPDATE payment_transactions SET status = ?, raw_payload = ?, completed_at = ?, updated_at = NOW()
WHERE id = ?`
	if _, err := tx.ExecContext(ctx, update, models.PaymentCompleted, payload, now, p.ID); err != nil {
		return nil, false, fmt.Errorf("complete payment: %w", err)
	}
	if p.Points > 0 {
		if err := creditTx(ctx, tx, p.UserID, p.Points, fmt.Sprintf("purchase %s plan", p.PlanID)); err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit payment: %w", err)
	}

	p.Status = models.PaymentCompleted
	p.CompletedAt = &now
	return p, true, nil
}
