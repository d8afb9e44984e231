package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trackmarket/logger"
	"trackmarket/model"
)

// LedgerRepository owns balances and the transactions that move them. Every
// balance change and the transaction explaining it are written in one
// database transaction.
type LedgerRepository interface {
	Balance(ctx context.Context, userID int64, monthStart time.Time) (*model.Balance, error)
	CreateWithdrawal(ctx context.Context, txn *model.Transaction) error
	RecordSale(ctx context.Context, trackID string, txn *model.Transaction) error
	CompleteTransaction(ctx context.Context, id string, at time.Time) (bool, error)
	FailWithdrawal(ctx context.Context, id string, at time.Time) (bool, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, userID int64, typ model.TransactionType) ([]*model.Transaction, error)
	ListPendingWithdrawals(ctx context.Context) ([]*model.Transaction, error)
}

type mysqlLedgerRepository struct {
	db *sql.DB
}

func NewMySQLLedgerRepository(db *sql.DB) LedgerRepository {
	return &mysqlLedgerRepository{db: db}
}

const txColumns = `id, user_id, type, amount, status, description, method, bank, account, track_id, attempts, created_at, completed_at`

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	t := &model.Transaction{}
	var completedAt sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Status, &t.Description, &t.Method,
		&t.Bank, &t.Account, &t.TrackID, &t.Attempts, &t.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	return t, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO transactions (`+txColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Type, t.Amount, t.Status, t.Description, t.Method, t.Bank, t.Account,
		t.TrackID, t.Attempts, t.CreatedAt, nullTime(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on any error.
func (r *mysqlLedgerRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Balance combines the account row with aggregates over the user's transactions.
func (r *mysqlLedgerRepository) Balance(ctx context.Context, userID int64, monthStart time.Time) (*model.Balance, error) {
	b := &model.Balance{UserID: userID}

	err := r.db.QueryRowContext(ctx, `SELECT available FROM accounts WHERE user_id = ?`, userID).Scan(&b.Available)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read account for user %d: %w", userID, err)
	}

	query := `SELECT
		COALESCE(SUM(CASE WHEN type = 'withdrawal' AND status = 'pending' THEN amount END), 0),
		COALESCE(SUM(CASE WHEN type = 'withdrawal' AND status = 'completed' AND completed_at >= ? THEN amount END), 0),
		COALESCE(SUM(CASE WHEN type = 'sale' AND status = 'completed' THEN amount END), 0)
		FROM transactions WHERE user_id = ?`
	if err := r.db.QueryRowContext(ctx, query, monthStart, userID).Scan(&b.Pending, &b.WithdrawnThisMonth, &b.EarnedTotal); err != nil {
		return nil, fmt.Errorf("failed to aggregate transactions for user %d: %w", userID, err)
	}
	return b, nil
}

// CreateWithdrawal debits the account and stores the pending withdrawal. The
// account row is locked so concurrent withdrawals cannot overdraw it.
func (r *mysqlLedgerRepository) CreateWithdrawal(ctx context.Context, t *model.Transaction) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var available int64
		err := tx.QueryRowContext(ctx, `SELECT available FROM accounts WHERE user_id = ? FOR UPDATE`, t.UserID).Scan(&available)
		if err == sql.ErrNoRows {
			return ErrInsufficientFunds
		}
		if err != nil {
			return fmt.Errorf("failed to lock account for user %d: %w", t.UserID, err)
		}
		if t.Amount > available {
			return ErrInsufficientFunds
		}

		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET available = available - ?, updated_at = ? WHERE user_id = ?`,
			t.Amount, t.CreatedAt, t.UserID); err != nil {
			return fmt.Errorf("failed to debit account for user %d: %w", t.UserID, err)
		}
		return insertTransaction(ctx, tx, t)
	})
}

// RecordSale marks an active track sold, stores the sale and credits the seller.
func (r *mysqlLedgerRepository) RecordSale(ctx context.Context, trackID string, t *model.Transaction) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		at := t.CreatedAt
		if t.CompletedAt != nil {
			at = *t.CompletedAt
		}
		res, err := tx.ExecContext(ctx, `UPDATE tracks SET status = 'sold', sold_at = ?, updated_at = ? WHERE id = ? AND status = 'active'`,
			at, at, trackID)
		if err != nil {
			return fmt.Errorf("failed to mark track %s sold: %w", trackID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrTrackNotActive
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO accounts (user_id, available, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE available = available + VALUES(available), updated_at = VALUES(updated_at)`,
			t.UserID, t.Amount, at); err != nil {
			return fmt.Errorf("failed to credit account for user %d: %w", t.UserID, err)
		}
		return insertTransaction(ctx, tx, t)
	})
}

// CompleteTransaction moves a pending transaction to completed. It reports
// false when the transaction was no longer pending.
func (r *mysqlLedgerRepository) CompleteTransaction(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET status = 'completed', completed_at = ? WHERE id = ? AND status = 'pending'`, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to complete transaction %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// FailWithdrawal marks a pending withdrawal failed and refunds it.
func (r *mysqlLedgerRepository) FailWithdrawal(ctx context.Context, id string, at time.Time) (bool, error) {
	changed := false
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		t, err := scanTransaction(tx.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = ? FOR UPDATE`, id))
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock transaction %s: %w", id, err)
		}
		if t.Status != model.TransactionPending || t.Type != model.TransactionWithdrawal {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `UPDATE transactions SET status = 'failed', completed_at = ? WHERE id = ?`, at, id); err != nil {
			return fmt.Errorf("failed to mark transaction %s failed: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET available = available + ?, updated_at = ? WHERE user_id = ?`,
			t.Amount, at, t.UserID); err != nil {
			return fmt.Errorf("failed to refund user %d: %w", t.UserID, err)
		}
		changed = true
		return nil
	})
	if err == nil && changed {
		logger.Warn("withdrawal failed and refunded", logger.String("transactionId", id))
	}
	return changed, err
}

// IncrementAttempts bumps the settlement attempt counter and returns the new value.
func (r *mysqlLedgerRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE transactions SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to bump attempts for %s: %w", id, err)
		}
		return tx.QueryRowContext(ctx, `SELECT attempts FROM transactions WHERE id = ?`, id).Scan(&attempts)
	})
	return attempts, err
}

func (r *mysqlLedgerRepository) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction %s: %w", id, err)
	}
	return t, nil
}

// ListTransactions returns the user's history newest first; an empty typ lists all.
func (r *mysqlLedgerRepository) ListTransactions(ctx context.Context, userID int64, typ model.TransactionType) ([]*model.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE user_id = ?`
	args := []interface{}{userID}
	if typ != "" {
		query += ` AND type = ?`
		args = append(args, typ)
	}
	query += ` ORDER BY created_at DESC`
	return r.queryTransactions(ctx, query, args...)
}

// ListPendingWithdrawals is used to rebuild the settlement queue after a restart.
func (r *mysqlLedgerRepository) ListPendingWithdrawals(ctx context.Context) ([]*model.Transaction, error) {
	return r.queryTransactions(ctx, `SELECT `+txColumns+` FROM transactions WHERE type = 'withdrawal' AND status = 'pending' ORDER BY created_at`)
}

func (r *mysqlLedgerRepository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during transaction rows iteration: %w", err)
	}
	return out, nil
}
