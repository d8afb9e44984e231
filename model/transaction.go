package model

import "time"

type TransactionType string

const (
	TransactionSale       TransactionType = "sale"
	TransactionWithdrawal TransactionType = "withdrawal"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is a money movement on a user's account: a track sale credit or
// a withdrawal debit.
type Transaction struct {
	ID          string            `json:"id"`
	UserID      int64             `json:"userId"`
	Type        TransactionType   `json:"type"`
	Amount      int64             `json:"amount"`
	Status      TransactionStatus `json:"status"`
	Description string            `json:"description"`
	Method      string            `json:"method,omitempty"` // card or phone, withdrawals only
	Bank        string            `json:"bank,omitempty"`
	Account     string            `json:"account,omitempty"`
	TrackID     string            `json:"trackId,omitempty"`
	Attempts    int               `json:"-"`
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// Balance is the per-user money summary shown on the balance page.
type Balance struct {
	UserID             int64 `json:"userId"`
	Available          int64 `json:"available"`
	Pending            int64 `json:"pending"`
	WithdrawnThisMonth int64 `json:"withdrawnThisMonth"`
	EarnedTotal        int64 `json:"earnedTotal"`
}

// WithdrawalReceipt is returned when a withdrawal is accepted.
type WithdrawalReceipt struct {
	TransactionID string            `json:"transactionId"`
	Amount        int64             `json:"amount"`
	Status        TransactionStatus `json:"status"`
	Bank          string            `json:"bank"`
	Method        string            `json:"method"`
	Account       string            `json:"account"`
	Sender        string            `json:"sender"`
	EstimatedTime int               `json:"estimatedTime"` // seconds
	CreatedAt     time.Time         `json:"createdAt"`
	Message       string            `json:"message"`
}
