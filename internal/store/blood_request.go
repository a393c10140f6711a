package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roktodanbd/roktodan/internal/model"
)

type BloodRequestStore struct {
	db *sql.DB
}

func NewBloodRequestStore(db *sql.DB) *BloodRequestStore {
	return &BloodRequestStore{db: db}
}

// RequestFilter narrows public request listings. Zero values are not constrained.
type RequestFilter struct {
	BloodGroup model.BloodGroup
	Thana      string
	MinUrgency model.Urgency
}

func scanBloodRequest(scanner interface{ Scan(...any) error }) (*model.BloodRequest, error) {
	var r model.BloodRequest
	err := scanner.Scan(
		&r.ID, &r.RecipientID, &r.PatientName, &r.BloodGroupNeeded, &r.UnitsNeeded, &r.HospitalName,
		&r.Thana, &r.District, &r.ContactPhone, &r.Urgency, &r.Status, &r.Notes,
		&r.NeededByDate, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const bloodRequestCols = `id, recipient_id, patient_name, blood_group_needed, units_needed, hospital_name, thana, district, contact_phone, urgency, status, notes, needed_by_date, expires_at, created_at, updated_at`

// Urgency first, then newest first; id breaks ties between rows created in the same instant.
const bloodRequestOrder = ` ORDER BY urgency_rank DESC, created_at DESC, id DESC`

func (s *BloodRequestStore) Create(ctx context.Context, r model.BloodRequest, now time.Time) (*model.BloodRequest, error) {
	now = now.UTC()
	if r.UnitsNeeded <= 0 {
		r.UnitsNeeded = 1
	}
	result, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO blood_requests (recipient_id, patient_name, blood_group_needed, units_needed, hospital_name, thana, district, contact_phone, urgency, urgency_rank, status, notes, needed_by_date, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, ?, ?, ?, ?)`,
		r.RecipientID, r.PatientName, r.BloodGroupNeeded, r.UnitsNeeded, r.HospitalName, r.Thana, r.District, r.ContactPhone,
		r.Urgency, r.Urgency.Rank(), r.Notes, r.NeededByDate.UTC(), r.ExpiresAt.UTC(), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert blood request: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *BloodRequestStore) GetByID(ctx context.Context, id int64) (*model.BloodRequest, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+bloodRequestCols+` FROM blood_requests WHERE id = ?`, id)
	r, err := scanBloodRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get blood request: %w", err)
	}
	return r, nil
}

// ListCompatibleForDonor returns active, unexpired requests for the blood group
// in the thana that donorID has not responded to yet.
func (s *BloodRequestStore) ListCompatibleForDonor(ctx context.Context, group model.BloodGroup, thana string, donorID int64, now time.Time) ([]model.BloodRequest, error) {
	return s.list(ctx,
		`SELECT `+bloodRequestCols+` FROM blood_requests br
		 WHERE br.blood_group_needed = ? AND br.thana = ? AND br.status = 'active' AND br.expires_at > ?
		   AND NOT EXISTS (SELECT 1 FROM donor_responses dr WHERE dr.blood_request_id = br.id AND dr.donor_id = ?)`+bloodRequestOrder,
		group, thana, now.UTC(), donorID,
	)
}

// ListActive returns active, unexpired requests matching f.
func (s *BloodRequestStore) ListActive(ctx context.Context, f RequestFilter, now time.Time) ([]model.BloodRequest, error) {
	where := []string{"status = 'active'", "expires_at > ?"}
	args := []any{now.UTC()}
	if f.BloodGroup != "" {
		where = append(where, "blood_group_needed = ?")
		args = append(args, f.BloodGroup)
	}
	if f.Thana != "" {
		where = append(where, "thana = ?")
		args = append(args, f.Thana)
	}
	if f.MinUrgency != "" {
		where = append(where, "urgency_rank >= ?")
		args = append(args, f.MinUrgency.Rank())
	}
	return s.list(ctx, `SELECT `+bloodRequestCols+` FROM blood_requests WHERE `+strings.Join(where, " AND ")+bloodRequestOrder, args...)
}

func (s *BloodRequestStore) list(ctx context.Context, query string, args ...any) ([]model.BloodRequest, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list blood requests: %w", err)
	}
	defer rows.Close()

	var requests []model.BloodRequest
	for rows.Next() {
		r, err := scanBloodRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blood request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// ListByRecipient returns every request of a recipient, newest first, with
// response tallies.
func (s *BloodRequestStore) ListByRecipient(ctx context.Context, recipientID int64) ([]model.RequestSummary, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx,
		`SELECT br.id, br.recipient_id, br.patient_name, br.blood_group_needed, br.units_needed, br.hospital_name, br.thana, br.district,
		        br.contact_phone, br.urgency, br.status, br.notes, br.needed_by_date, br.expires_at, br.created_at, br.updated_at,
		        COALESCE(SUM(CASE WHEN dr.response = 'accept' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN dr.response = 'refuse' THEN 1 ELSE 0 END), 0)
		 FROM blood_requests br
		 LEFT JOIN donor_responses dr ON dr.blood_request_id = br.id
		 WHERE br.recipient_id = ?
		 GROUP BY br.id
		 ORDER BY br.created_at DESC, br.id DESC`, recipientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list requests by recipient: %w", err)
	}
	defer rows.Close()

	var out []model.RequestSummary
	for rows.Next() {
		var rs model.RequestSummary
		r := &rs.BloodRequest
		err := rows.Scan(
			&r.ID, &r.RecipientID, &r.PatientName, &r.BloodGroupNeeded, &r.UnitsNeeded, &r.HospitalName,
			&r.Thana, &r.District, &r.ContactPhone, &r.Urgency, &r.Status, &r.Notes,
			&r.NeededByDate, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt,
			&rs.Accepted, &rs.Refused,
		)
		if err != nil {
			return nil, fmt.Errorf("scan request summary: %w", err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Transition moves a request from one status to another. It reports false,
// without error, when the request was not in the from status.
func (s *BloodRequestStore) Transition(ctx context.Context, id int64, from, to model.RequestStatus, now time.Time) (bool, error) {
	result, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE blood_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, now.UTC(), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("transition blood request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ExpireDue marks every active request whose expiry has passed as expired.
func (s *BloodRequestStore) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	result, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE blood_requests SET status = 'expired', updated_at = ? WHERE status = 'active' AND expires_at <= ?`,
		now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("expire blood requests: %w", err)
	}
	return result.RowsAffected()
}

// GetForAction loads a request that is about to be acted on. An active request
// past its expiry is moved to expired first, and the second result reports
// that this call did it.
func (s *BloodRequestStore) GetForAction(ctx context.Context, id int64, now time.Time) (*model.BloodRequest, bool, error) {
	r, err := s.GetByID(ctx, id)
	if err != nil || r == nil {
		return r, false, err
	}
	if !r.Overdue(now) {
		return r, false, nil
	}
	ok, err := s.Transition(ctx, id, model.RequestActive, model.RequestExpired, now)
	if err != nil {
		return nil, false, err
	}
	r.Status = model.RequestExpired
	r.UpdatedAt = now.UTC()
	return r, ok, nil
}
