package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roktodanbd/roktodan/internal/model"
)

type RecipientStore struct {
	db *sql.DB
}

func NewRecipientStore(db *sql.DB) *RecipientStore {
	return &RecipientStore{db: db}
}

func scanRecipient(scanner interface{ Scan(...any) error }) (*model.Recipient, error) {
	var r model.Recipient
	err := scanner.Scan(&r.ID, &r.AccountID, &r.FullName, &r.Phone, &r.Email, &r.BloodGroup, &r.Thana, &r.District, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const recipientCols = `id, account_id, full_name, phone, email, blood_group, thana, district, created_at, updated_at`

func (s *RecipientStore) Create(ctx context.Context, r model.Recipient, now time.Time) (*model.Recipient, error) {
	now = now.UTC()
	result, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO recipients (account_id, full_name, phone, email, blood_group, thana, district, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.AccountID, r.FullName, r.Phone, r.Email, r.BloodGroup, r.Thana, r.District, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert recipient: %w", ErrConflict)
		}
		return nil, fmt.Errorf("insert recipient: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RecipientStore) GetByID(ctx context.Context, id int64) (*model.Recipient, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+recipientCols+` FROM recipients WHERE id = ?`, id)
	r, err := scanRecipient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	return r, nil
}

func (s *RecipientStore) GetByAccountID(ctx context.Context, accountID int64) (*model.Recipient, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+recipientCols+` FROM recipients WHERE account_id = ?`, accountID)
	r, err := scanRecipient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient by account: %w", err)
	}
	return r, nil
}
