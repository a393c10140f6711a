package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roktodanbd/roktodan/internal/model"
)

type ResponseStore struct {
	db *sql.DB
}

func NewResponseStore(db *sql.DB) *ResponseStore {
	return &ResponseStore{db: db}
}

func scanResponse(scanner interface{ Scan(...any) error }) (*model.DonorResponse, error) {
	var r model.DonorResponse
	var scheduled sql.NullTime
	err := scanner.Scan(&r.ID, &r.DonorID, &r.BloodRequestID, &r.Response, &scheduled, &r.Notes, &r.RespondedAt)
	if err != nil {
		return nil, err
	}
	if scheduled.Valid {
		r.ScheduledFor = &scheduled.Time
	}
	return &r, nil
}

const responseCols = `id, donor_id, blood_request_id, response, scheduled_for, notes, responded_at`

// Create inserts a response. A second response for the same donor and
// request yields ErrConflict, an unknown donor or request ErrForeignKey.
func (s *ResponseStore) Create(ctx context.Context, r model.DonorResponse, now time.Time) (*model.DonorResponse, error) {
	result, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO donor_responses (donor_id, blood_request_id, response, scheduled_for, notes, responded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.DonorID, r.BloodRequestID, r.Response, nullTime(r.ScheduledFor), r.Notes, now.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert response: %w", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("insert response: %w", ErrForeignKey)
		}
		return nil, fmt.Errorf("insert response: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+responseCols+` FROM donor_responses WHERE id = ?`, id)
	created, err := scanResponse(row)
	if err != nil {
		return nil, fmt.Errorf("get response: %w", err)
	}
	return created, nil
}

// Get returns the response of donorID to requestID, or nil if there is none.
func (s *ResponseStore) Get(ctx context.Context, donorID, requestID int64) (*model.DonorResponse, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+responseCols+` FROM donor_responses WHERE donor_id = ? AND blood_request_id = ?`,
		donorID, requestID,
	)
	r, err := scanResponse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get response: %w", err)
	}
	return r, nil
}

func (s *ResponseStore) CountAccepted(ctx context.Context, requestID int64) (int, error) {
	var n int
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM donor_responses WHERE blood_request_id = ? AND response = 'accept'`, requestID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count accepted responses: %w", err)
	}
	return n, nil
}

func (s *ResponseStore) ListByRequest(ctx context.Context, requestID int64) ([]model.DonorResponse, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+responseCols+` FROM donor_responses WHERE blood_request_id = ? ORDER BY responded_at, id`, requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []model.DonorResponse
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
