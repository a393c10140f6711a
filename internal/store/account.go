package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roktodanbd/roktodan/internal/model"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	var admin int
	err := scanner.Scan(&a.ID, &a.Email, &a.Phone, &a.PasswordHash, &admin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.IsAdmin = admin != 0
	return &a, nil
}

const accountCols = `id, email, phone, password_hash, is_admin, created_at, updated_at`

// Create inserts an account. A taken email or phone yields ErrConflict.
func (s *AccountStore) Create(ctx context.Context, email, phone, passwordHash string, now time.Time) (*model.Account, error) {
	now = now.UTC()
	result, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO accounts (email, phone, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		strings.ToLower(email), phone, passwordHash, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert account: %w", ErrConflict)
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *AccountStore) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// GetByLogin looks an account up by email when login contains '@', else by phone.
func (s *AccountStore) GetByLogin(ctx context.Context, login string) (*model.Account, error) {
	login = strings.TrimSpace(login)
	query := `SELECT ` + accountCols + ` FROM accounts WHERE phone = ?`
	if strings.Contains(login, "@") {
		query = `SELECT ` + accountCols + ` FROM accounts WHERE email = ?`
		login = strings.ToLower(login)
	}
	a, err := scanAccount(conn(ctx, s.db).QueryRowContext(ctx, query, login))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by login: %w", err)
	}
	return a, nil
}

// ResolveProfile loads an account together with the ids of its donor and
// recipient profiles in one query and derives the account role from them.
func (s *AccountStore) ResolveProfile(ctx context.Context, accountID int64) (*model.AccountProfile, error) {
	var donorID, recipientID sql.NullInt64
	var a model.Account
	var admin int
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT a.id, a.email, a.phone, a.password_hash, a.is_admin, a.created_at, a.updated_at, d.id, r.id
		 FROM accounts a
		 LEFT JOIN donors d ON d.account_id = a.id
		 LEFT JOIN recipients r ON r.account_id = a.id
		 WHERE a.id = ?`, accountID,
	).Scan(&a.ID, &a.Email, &a.Phone, &a.PasswordHash, &admin, &a.CreatedAt, &a.UpdatedAt, &donorID, &recipientID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve profile: %w", err)
	}
	a.IsAdmin = admin != 0

	p := &model.AccountProfile{
		Account: a,
		Role:    model.RoleFor(donorID.Valid, recipientID.Valid),
	}
	if donorID.Valid {
		p.DonorID = &donorID.Int64
	}
	if recipientID.Valid {
		p.RecipientID = &recipientID.Int64
	}
	return p, nil
}

func (s *AccountStore) SetAdmin(ctx context.Context, id int64, admin bool) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE accounts SET is_admin = ?, updated_at = ? WHERE id = ?`,
		boolInt(admin), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	return nil
}
