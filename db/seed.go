package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trackmarket/core/auth"
	"trackmarket/logger"
	"trackmarket/model"
	"trackmarket/repository"
)

const (
	DemoEmail   = "artem@example.com"
	demoBalance = 45000
)

// SeedDemo creates the demo seller with a small catalogue and history.
// A user left behind by an interrupted run gets its ledger seeded on the next start.
func SeedDemo(ctx context.Context, users repository.UserRepository, sqlDB *sql.DB, password string) error {
	user, err := users.GetUserByEmail(ctx, DemoEmail)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if user, err = createDemoUser(ctx, users, password); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	seeded, err := ledgerSeeded(ctx, sqlDB, user.ID)
	if err != nil {
		return err
	}
	if seeded {
		return nil
	}

	if err := seedLedger(ctx, sqlDB, user.ID, time.Now().UTC()); err != nil {
		return err
	}
	logger.Info("Demo account seeded", logger.String("email", DemoEmail), logger.Int64("userId", user.ID))
	return nil
}

func createDemoUser(ctx context.Context, users repository.UserRepository, password string) (*model.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Email:        DemoEmail,
		PasswordHash: hash,
		FirstName:    "Артём",
		LastName:     "Низоленко",
		Phone:        "+7 (999) 123-45-67",
		Bio:          "Music producer. Electronic, pop and hip-hop.",
	}
	if err := users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create demo user: %w", err)
	}
	return user, nil
}

// ledgerSeeded reports whether the demo catalogue is already in place.
func ledgerSeeded(ctx context.Context, sqlDB *sql.DB, userID int64) (bool, error) {
	var n int
	err := sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks WHERE id = ?`, demoTrackID(userID, 1)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check demo catalogue: %w", err)
	}
	return n > 0, nil
}

func demoTrackID(userID int64, n int) string {
	return fmt.Sprintf("demo-%d-%d", userID, n)
}

func demoTracks(userID int64, now time.Time) []*model.Track {
	day := 24 * time.Hour
	mk := func(id, title, genre string, price int64, status model.TrackStatus, dur int, age time.Duration) *model.Track {
		created := now.Add(-age)
		t := &model.Track{
			ID: id, UserID: userID, Title: title, Genre: genre,
			FileName: title + ".mp3", DurationSec: dur, Price: price, Status: status,
			CreatedAt: created, UpdatedAt: created,
		}
		if status == model.TrackStatusSold {
			sold := created.Add(day)
			t.SoldAt = &sold
			t.UpdatedAt = sold
		}
		return t
	}
	return []*model.Track{
		mk(demoTrackID(userID, 1), "Midnight Dreams", "Electronic", 15000, model.TrackStatusActive, 4*60+23, 20*day),
		mk(demoTrackID(userID, 2), "Summer Vibes", "Pop", 12000, model.TrackStatusActive, 3*60+45, 15*day),
		mk(demoTrackID(userID, 3), "Urban Rhythm", "Hip-Hop", 18000, model.TrackStatusSold, 5*60+12, 10*day),
		mk(demoTrackID(userID, 4), "Acoustic Soul", "Acoustic", 10000, model.TrackStatusPending, 3*60+30, 2*day),
	}
}

func demoHistory(userID int64, now time.Time) []*model.Transaction {
	day := 24 * time.Hour
	mk := func(n int, typ model.TransactionType, amount int64, status model.TransactionStatus, desc, bank string, age time.Duration) *model.Transaction {
		created := now.Add(-age)
		t := &model.Transaction{
			ID: fmt.Sprintf("txn_demo_%d_%d", userID, n), UserID: userID, Type: typ, Amount: amount,
			Status: status, Description: desc, Bank: bank, CreatedAt: created,
		}
		if typ == model.TransactionWithdrawal {
			t.Method = model.MethodCard
			t.Account = "**** 4276"
		}
		if status == model.TransactionCompleted {
			t.CompletedAt = &created
		}
		return t
	}
	return []*model.Transaction{
		mk(1, model.TransactionSale, 15000, model.TransactionCompleted, `Sale of "Midnight Dreams"`, "", 5*day),
		mk(2, model.TransactionWithdrawal, 10000, model.TransactionCompleted, "Withdrawal to card number (Сбербанк)", "Сбербанк", 4*day),
		mk(3, model.TransactionSale, 12000, model.TransactionCompleted, `Sale of "Summer Vibes"`, "", 3*day),
		mk(4, model.TransactionWithdrawal, 5000, model.TransactionPending, "Withdrawal to card number (Т-Банк)", "Т-Банк", time.Hour),
	}
}

func seedLedger(ctx context.Context, sqlDB *sql.DB, userID int64, now time.Time) error {
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (user_id, available, updated_at) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE available = available + VALUES(available), updated_at = VALUES(updated_at)`,
		userID, demoBalance, now); err != nil {
		return fmt.Errorf("failed to seed account: %w", err)
	}

	for _, t := range demoTracks(userID, now) {
		var soldAt interface{}
		if t.SoldAt != nil {
			soldAt = *t.SoldAt
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tracks (id, user_id, title, artist, genre, file_name, file_size, duration_sec, price, status, object_key, cdn_url, created_at, updated_at, sold_at)
			 VALUES (?, ?, ?, '', ?, ?, 0, ?, ?, ?, '', '', ?, ?, ?)`,
			t.ID, t.UserID, t.Title, t.Genre, t.FileName, t.DurationSec, t.Price, t.Status, t.CreatedAt, t.UpdatedAt, soldAt); err != nil {
			return fmt.Errorf("failed to seed track %s: %w", t.Title, err)
		}
	}

	for _, t := range demoHistory(userID, now) {
		var completedAt interface{}
		if t.CompletedAt != nil {
			completedAt = *t.CompletedAt
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (id, user_id, type, amount, status, description, method, bank, account, track_id, attempts, created_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', 0, ?, ?)`,
			t.ID, t.UserID, t.Type, t.Amount, t.Status, t.Description, t.Method, t.Bank, t.Account, t.CreatedAt, completedAt); err != nil {
			return fmt.Errorf("failed to seed transaction %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}
