package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roktodanbd/roktodan/internal/model"
)

type DonationStore struct {
	db *sql.DB
}

func NewDonationStore(db *sql.DB) *DonationStore {
	return &DonationStore{db: db}
}

func scanDonation(scanner interface{ Scan(...any) error }) (*model.DonationHistory, error) {
	var d model.DonationHistory
	var requestID sql.NullInt64
	err := scanner.Scan(&d.ID, &d.DonorID, &requestID, &d.DonationDate, &d.Status, &d.BloodGroup, &d.VolumeML, &d.Hospital, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if requestID.Valid {
		d.BloodRequestID = &requestID.Int64
	}
	return &d, nil
}

const donationCols = `id, donor_id, blood_request_id, donation_date, status, blood_group, volume_ml, hospital, created_at, updated_at`

// Create logs a pending donation.
func (s *DonationStore) Create(ctx context.Context, d model.DonationHistory, now time.Time) (*model.DonationHistory, error) {
	now = now.UTC()
	if d.VolumeML <= 0 {
		d.VolumeML = 450
	}
	result, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO donation_history (donor_id, blood_request_id, donation_date, status, blood_group, volume_ml, hospital, created_at, updated_at)
		 VALUES (?, ?, ?, 'pending', ?, ?, ?, ?, ?)`,
		d.DonorID, nullInt(d.BloodRequestID), d.DonationDate.UTC(), d.BloodGroup, d.VolumeML, d.Hospital, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert donation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *DonationStore) GetByID(ctx context.Context, id int64) (*model.DonationHistory, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+donationCols+` FROM donation_history WHERE id = ?`, id)
	d, err := scanDonation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get donation: %w", err)
	}
	return d, nil
}

func (s *DonationStore) ListByDonor(ctx context.Context, donorID int64) ([]model.DonationHistory, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+donationCols+` FROM donation_history WHERE donor_id = ? ORDER BY donation_date DESC, id DESC`, donorID,
	)
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	var out []model.DonationHistory
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *DonationStore) CountCompleted(ctx context.Context, donorID int64) (int, error) {
	var n int
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM donation_history WHERE donor_id = ? AND status = 'completed'`, donorID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed donations: %w", err)
	}
	return n, nil
}

// ListUngranted returns the ids of the donor's completed donations that have
// no points grant recorded against them, oldest first.
func (s *DonationStore) ListUngranted(ctx context.Context, donorID int64) ([]int64, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx,
		`SELECT dh.id FROM donation_history dh
		 WHERE dh.donor_id = ? AND dh.status = 'completed'
		   AND NOT EXISTS (SELECT 1 FROM point_transactions pt WHERE pt.donation_id = dh.id)
		 ORDER BY dh.donation_date, dh.id`, donorID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ungranted donations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan donation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Transition moves a donation between statuses and reports whether it was in
// the from status.
func (s *DonationStore) Transition(ctx context.Context, id int64, from, to model.DonationStatus, now time.Time) (bool, error) {
	result, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE donation_history SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, now.UTC(), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("transition donation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
