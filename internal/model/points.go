package model

import "time"

// DonorPoints balances always satisfy Total == Available + Withdrawn.
type DonorPoints struct {
	ID        int64     `json:"id"`
	DonorID   int64     `json:"donor_id"`
	Total     int       `json:"total_points"`
	Available int       `json:"available_points"`
	Withdrawn int       `json:"withdrawn_points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TransactionType string

const (
	TxEarned    TransactionType = "earned"
	TxWithdrawn TransactionType = "withdrawn"
	TxBonus     TransactionType = "bonus"
	TxPenalty   TransactionType = "penalty"
)

type PointTransaction struct {
	ID            int64           `json:"id"`
	DonorPointsID int64           `json:"donor_points_id"`
	Type          TransactionType `json:"type"`
	Points        int             `json:"points"`
	Description   string          `json:"description"`
	DonationID    *int64          `json:"donation_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalFailed     WithdrawalStatus = "failed"
	WithdrawalCancelled  WithdrawalStatus = "cancelled"
)

func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalFailed || s == WithdrawalCancelled
}

type WithdrawalRequest struct {
	ID              int64            `json:"id"`
	DonorPointsID   int64            `json:"donor_points_id"`
	Reference       string           `json:"reference"`
	PointsRequested int              `json:"points_requested"`
	Method          string           `json:"method"`
	Status          WithdrawalStatus `json:"status"`
	RequestedAt     time.Time        `json:"requested_at"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
}
