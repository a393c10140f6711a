package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roktodanbd/roktodan/internal/model"
)

type BadgeStore struct {
	db *sql.DB
}

func NewBadgeStore(db *sql.DB) *BadgeStore {
	return &BadgeStore{db: db}
}

// Create awards a badge. A donor already holding the badge yields ErrConflict.
func (s *BadgeStore) Create(ctx context.Context, donorID int64, badge model.BadgeType, count int, now time.Time) (*model.DonorBadge, error) {
	now = now.UTC()
	result, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO donor_badges (donor_id, badge_type, donation_count_when_earned, earned_at) VALUES (?, ?, ?, ?)`,
		donorID, badge, count, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert badge: %w", ErrConflict)
		}
		return nil, fmt.Errorf("insert badge: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &model.DonorBadge{
		ID:                      id,
		DonorID:                 donorID,
		BadgeType:               badge,
		DonationCountWhenEarned: count,
		EarnedAt:                now,
	}, nil
}

func (s *BadgeStore) Has(ctx context.Context, donorID int64, badge model.BadgeType) (bool, error) {
	var n int
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM donor_badges WHERE donor_id = ? AND badge_type = ?`, donorID, badge,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check badge: %w", err)
	}
	return n > 0, nil
}

func (s *BadgeStore) ListByDonor(ctx context.Context, donorID int64) ([]model.DonorBadge, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx,
		`SELECT id, donor_id, badge_type, donation_count_when_earned, earned_at FROM donor_badges WHERE donor_id = ? ORDER BY donation_count_when_earned, id`,
		donorID,
	)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var out []model.DonorBadge
	for rows.Next() {
		var b model.DonorBadge
		if err := rows.Scan(&b.ID, &b.DonorID, &b.BadgeType, &b.DonationCountWhenEarned, &b.EarnedAt); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
