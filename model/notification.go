package model

import "time"

type NotificationKind string

const (
	NotifySale               NotificationKind = "sale"
	NotifyWithdrawalPending  NotificationKind = "withdrawal_pending"
	NotifyWithdrawalComplete NotificationKind = "withdrawal_completed"
	NotifyWithdrawalFailed   NotificationKind = "withdrawal_failed"
	NotifyTransferReceived   NotificationKind = "transfer_received"
	NotifyTrackListed        NotificationKind = "track_listed"
)

// Notification is a toast-style message pushed to a user.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Amount      int64            `json:"amount,omitempty"`
	RefID       string           `json:"refId,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}
