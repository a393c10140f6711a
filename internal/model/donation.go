package model

import "time"

type DonationStatus string

const (
	DonationPending   DonationStatus = "pending"
	DonationCompleted DonationStatus = "completed"
	DonationCancelled DonationStatus = "cancelled"
)

type DonationHistory struct {
	ID             int64          `json:"id"`
	DonorID        int64          `json:"donor_id"`
	BloodRequestID *int64         `json:"blood_request_id,omitempty"`
	DonationDate   time.Time      `json:"donation_date"`
	Status         DonationStatus `json:"status"`
	BloodGroup     BloodGroup     `json:"blood_group"`
	VolumeML       int            `json:"volume_ml"`
	Hospital       string         `json:"hospital"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
