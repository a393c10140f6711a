package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roktodanbd/roktodan/internal/model"
)

type WithdrawalStore struct {
	db *sql.DB
}

func NewWithdrawalStore(db *sql.DB) *WithdrawalStore {
	return &WithdrawalStore{db: db}
}

func scanWithdrawal(scanner interface{ Scan(...any) error }) (*model.WithdrawalRequest, error) {
	var w model.WithdrawalRequest
	var processed sql.NullTime
	err := scanner.Scan(&w.ID, &w.DonorPointsID, &w.Reference, &w.PointsRequested, &w.Method, &w.Status, &w.RequestedAt, &processed)
	if err != nil {
		return nil, err
	}
	if processed.Valid {
		w.ProcessedAt = &processed.Time
	}
	return &w, nil
}

const withdrawalCols = `id, donor_points_id, reference, points_requested, method, status, requested_at, processed_at`

func (s *WithdrawalStore) Create(ctx context.Context, accountID int64, reference string, points int, method string, now time.Time) (*model.WithdrawalRequest, error) {
	result, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO withdrawal_requests (donor_points_id, reference, points_requested, method, status, requested_at) VALUES (?, ?, ?, ?, 'pending', ?)`,
		accountID, reference, points, method, now.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert withdrawal: %w", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("insert withdrawal: %w", ErrForeignKey)
		}
		return nil, fmt.Errorf("insert withdrawal: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *WithdrawalStore) GetByID(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+withdrawalCols+` FROM withdrawal_requests WHERE id = ?`, id)
	w, err := scanWithdrawal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	return w, nil
}

// ListByAccount returns an account's withdrawals, newest first.
func (s *WithdrawalStore) ListByAccount(ctx context.Context, accountID int64) ([]model.WithdrawalRequest, error) {
	return s.list(ctx, `SELECT `+withdrawalCols+` FROM withdrawal_requests WHERE donor_points_id = ? ORDER BY requested_at DESC, id DESC`, accountID)
}

// ListByStatus returns withdrawals in status, oldest first, for the admin queue.
func (s *WithdrawalStore) ListByStatus(ctx context.Context, status model.WithdrawalStatus) ([]model.WithdrawalRequest, error) {
	return s.list(ctx, `SELECT `+withdrawalCols+` FROM withdrawal_requests WHERE status = ? ORDER BY requested_at, id`, status)
}

func (s *WithdrawalStore) list(ctx context.Context, query string, args ...any) ([]model.WithdrawalRequest, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	var out []model.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// Transition moves a withdrawal between statuses, stamping processed_at when
// the target is terminal. It reports whether the withdrawal was in from.
func (s *WithdrawalStore) Transition(ctx context.Context, id int64, from, to model.WithdrawalStatus, now time.Time) (bool, error) {
	var processed *time.Time
	if to.Terminal() {
		processed = &now
	}
	result, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE withdrawal_requests SET status = ?, processed_at = COALESCE(?, processed_at) WHERE id = ? AND status = ?`,
		to, nullTime(processed), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("transition withdrawal: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
