package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/CatPortrait/internal/models"
)

// ErrInsufficientBalance is returned when a conditional debit matches no row.
var ErrInsufficientBalance = errors.New("insufficient balance")

const signupGrantReason = "signup grant"

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) FindByUserID(ctx context.Context, userID string) (*models.Account, error) {
	const query = `SELECT user_id, balance, created_at, updated_at FROM accounts WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, query, userID)
	var a models.Account
	if err := row.Scan(&a.UserID, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

// Ensure returns the account, creating it with the default grant on first
// sight. The grant is written to the ledger in the same transaction.
func (r *AccountRepository) Ensure(ctx context.Context, userID string, defaultPoints int) (*models.Account, bool, error) {
	account, err := r.FindByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if account != nil {
		return account, false, nil
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT IGNORE INTO accounts (user_id, balance) VALUES (?, ?)`, userID, defaultPoints)
	if err != nil {
		return nil, false, fmt.Errorf("insert account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("account rows affected: %w", err)
	}
	created := affected > 0
	if created && defaultPoints > 0 {
		if err := insertTransaction(ctx, tx, userID, defaultPoints, models.TransactionEarn, signupGrantReason); err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit account tx: %w", err)
	}

	account, err = r.FindByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if account == nil {
		return nil, false, fmt.Errorf("account %s vanished after insert", userID)
	}
	return account, created, nil
}

// Debit decrements the balance only when it covers amount and appends a SPEND
// row. Concurrent debits serialize on the account row lock.
func (r *AccountRepository) Debit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive")
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
UPDATE accounts SET balance = balance - ?, updated_at = NOW()
WHERE user_id = ? AND balance >= ?`
	res, err := tx.ExecContext(ctx, query, amount, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("debit balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("debit rows affected: %w", err)
	}
	if affected == 0 {
		return 0, ErrInsufficientBalance
	}

	if err := insertTransaction(ctx, tx, userID, -amount, models.TransactionSpend, reason); err != nil {
		return 0, err
	}
	balance, err := balanceTx(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit debit: %w", err)
	}
	return balance, nil
}

// Credit adds amount to the balance and appends an EARN row.
func (r *AccountRepository) Credit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive")
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := creditTx(ctx, tx, userID, amount, reason); err != nil {
		return 0, err
	}
	balance, err := balanceTx(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit credit: %w", err)
	}
	return balance, nil
}

func (r *AccountRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]models.PointTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	const query = `
SELECT id, user_id, amount, type, reason, created_at
FROM point_transactions
WHERE user_id = ?
ORDER BY id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list point transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.PointTransaction
	for rows.Next() {
		var t models.PointTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan point transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// LedgerSum returns the sum of all ledger rows for the account.
func (r *AccountRepository) LedgerSum(ctx context.Context, userID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM point_transactions WHERE user_id = ?`, userID)
	var sum int
	if err := row.Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum ledger: %w", err)
	}
	return sum, nil
}

func creditTx(ctx context.Context, tx *sql.Tx, userID string, amount int, reason string) error {
	const query = `
INSERT INTO accounts (user_id, balance) VALUES (?, ?)
ON DUPLICATE KEY UPDATE balance = balance + VALUES(balance), updated_at = NOW()`
	if _, err := tx.ExecContext(ctx, query, userID, amount); err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return insertTransaction(ctx, tx, userID, amount, models.TransactionEarn, reason)
}

func insertTransaction(ctx context.Context, tx *sql.Tx, userID string, amount int, kind models.TransactionType, reason string) error {
	const query = `
INSERT INTO point_transactions (user_id, amount, type, reason)
VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, userID, amount, kind, reason); err != nil {
		return fmt.Errorf("insert point transaction: %w", err)
	}
	return nil
}

func balanceTx(ctx context.Context, tx *sql.Tx, userID string) (int, error) {
	row := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE user_id = ?`, userID)
	var balance int
	if err := row.Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}
