package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roktodanbd/roktodan/internal/model"
)

// PointsStore owns donor_points balances and their append-only transaction
// ledger. Every balance change and its ledger row commit together.
type PointsStore struct {
	db *sql.DB
}

func NewPointsStore(db *sql.DB) *PointsStore {
	return &PointsStore{db: db}
}

func scanPoints(scanner interface{ Scan(...any) error }) (*model.DonorPoints, error) {
	var p model.DonorPoints
	err := scanner.Scan(&p.ID, &p.DonorID, &p.Total, &p.Available, &p.Withdrawn, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const pointsCols = `id, donor_id, total_points, available_points, withdrawn_points, created_at, updated_at`

// GetOrCreate returns the donor's points account, creating a zeroed one if
// needed. An unknown donor yields ErrForeignKey.
func (s *PointsStore) GetOrCreate(ctx context.Context, donorID int64, now time.Time) (*model.DonorPoints, error) {
	now = now.UTC()
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO donor_points (donor_id, created_at, updated_at) VALUES (?, ?, ?) ON CONFLICT(donor_id) DO NOTHING`,
		donorID, now, now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("create points account: %w", ErrForeignKey)
		}
		return nil, fmt.Errorf("create points account: %w", err)
	}
	p, err := s.GetByDonor(ctx, donorID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("points account for donor %d missing after create", donorID)
	}
	return p, nil
}

func (s *PointsStore) GetByDonor(ctx context.Context, donorID int64) (*model.DonorPoints, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+pointsCols+` FROM donor_points WHERE donor_id = ?`, donorID)
	p, err := scanPoints(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get points account: %w", err)
	}
	return p, nil
}

func (s *PointsStore) GetByID(ctx context.Context, id int64) (*model.DonorPoints, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+pointsCols+` FROM donor_points WHERE id = ?`, id)
	p, err := scanPoints(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get points account: %w", err)
	}
	return p, nil
}

// Credit adds n (n >= 0) to total and available and appends a ledger row of
// type typ. When donationID is set and that donation already has a grant,
// nothing changes and ErrConflict is returned.
func (s *PointsStore) Credit(ctx context.Context, accountID int64, n int, typ model.TransactionType, description string, donationID *int64, now time.Time) error {
	if n < 0 {
		return fmt.Errorf("credit points: negative amount %d", n)
	}
	return runInTx(ctx, s.db, func(ctx context.Context) error {
		if err := s.appendTx(ctx, accountID, typ, n, description, donationID, now); err != nil {
			return err
		}
		_, err := conn(ctx, s.db).ExecContext(ctx,
			`UPDATE donor_points SET total_points = total_points + ?, available_points = available_points + ?, updated_at = ? WHERE id = ?`,
			n, n, now.UTC(), accountID,
		)
		if err != nil {
			return fmt.Errorf("credit points: %w", err)
		}
		return nil
	})
}

// Debit moves n from available to withdrawn. It reports false without
// changing anything when fewer than n points are available.
func (s *PointsStore) Debit(ctx context.Context, accountID int64, n int, description string, now time.Time) (bool, error) {
	if n <= 0 {
		return false, fmt.Errorf("debit points: non-positive amount %d", n)
	}
	ok := false
	err := runInTx(ctx, s.db, func(ctx context.Context) error {
		result, err := conn(ctx, s.db).ExecContext(ctx,
			`UPDATE donor_points SET available_points = available_points - ?, withdrawn_points = withdrawn_points + ?, updated_at = ?
			 WHERE id = ? AND available_points >= ?`,
			n, n, now.UTC(), accountID, n,
		)
		if err != nil {
			return fmt.Errorf("debit points: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}
		ok = true
		return s.appendTx(ctx, accountID, model.TxWithdrawn, -n, description, nil, now)
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Refund returns n previously withdrawn points to available. Total is unchanged.
func (s *PointsStore) Refund(ctx context.Context, accountID int64, n int, description string, now time.Time) error {
	if n <= 0 {
		return fmt.Errorf("refund points: non-positive amount %d", n)
	}
	return runInTx(ctx, s.db, func(ctx context.Context) error {
		result, err := conn(ctx, s.db).ExecContext(ctx,
			`UPDATE donor_points SET available_points = available_points + ?, withdrawn_points = withdrawn_points - ?, updated_at = ?
			 WHERE id = ? AND withdrawn_points >= ?`,
			n, n, now.UTC(), accountID, n,
		)
		if err != nil {
			return fmt.Errorf("refund points: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("refund points: account %d has fewer than %d withdrawn points", accountID, n)
		}
		return s.appendTx(ctx, accountID, model.TxWithdrawn, n, description, nil, now)
	})
}

func (s *PointsStore) appendTx(ctx context.Context, accountID int64, typ model.TransactionType, delta int, description string, donationID *int64, now time.Time) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO point_transactions (donor_points_id, type, points, description, donation_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		accountID, typ, delta, description, nullInt(donationID), now.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert point transaction: %w", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("insert point transaction: %w", ErrForeignKey)
		}
		return fmt.Errorf("insert point transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the ledger of an account, newest first.
func (s *PointsStore) ListTransactions(ctx context.Context, accountID int64) ([]model.PointTransaction, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx,
		`SELECT id, donor_points_id, type, points, description, donation_id, created_at
		 FROM point_transactions WHERE donor_points_id = ? ORDER BY created_at DESC, id DESC`, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list point transactions: %w", err)
	}
	defer rows.Close()

	var out []model.PointTransaction
	for rows.Next() {
		var t model.PointTransaction
		var donationID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.DonorPointsID, &t.Type, &t.Points, &t.Description, &donationID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan point transaction: %w", err)
		}
		if donationID.Valid {
			t.DonationID = &donationID.Int64
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
