package model

import "time"

type ResponseValue string

const (
	ResponseAccept ResponseValue = "accept"
	ResponseRefuse ResponseValue = "refuse"
)

func (v ResponseValue) Valid() bool {
	return v == ResponseAccept || v == ResponseRefuse
}

type DonorResponse struct {
	ID             int64         `json:"id"`
	DonorID        int64         `json:"donor_id"`
	BloodRequestID int64         `json:"blood_request_id"`
	Response       ResponseValue `json:"response"`
	ScheduledFor   *time.Time    `json:"scheduled_for,omitempty"`
	Notes          string        `json:"notes"`
	RespondedAt    time.Time     `json:"responded_at"`
}
