package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roktodanbd/roktodan/internal/model"
)

type DonorStore struct {
	db *sql.DB
}

func NewDonorStore(db *sql.DB) *DonorStore {
	return &DonorStore{db: db}
}

// DonorFields are the caller-editable donor columns.
type DonorFields struct {
	FullName          string
	Phone             string
	Email             string
	Age               int
	BloodGroup        model.BloodGroup
	Thana             string
	PostOffice        string
	District          string
	IsAvailable       bool
	LastDonationMonth *string
	LastDonationYear  *string
}

func scanDonor(scanner interface{ Scan(...any) error }) (*model.Donor, error) {
	var d model.Donor
	var active, available int
	var month, year sql.NullString

	err := scanner.Scan(
		&d.ID, &d.AccountID, &d.FullName, &d.Phone, &d.Email, &d.Age, &d.BloodGroup,
		&d.Thana, &d.PostOffice, &d.District, &active, &available,
		&month, &year, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.IsActive = active != 0
	d.IsAvailable = available != 0
	if month.Valid {
		d.LastDonationMonth = &month.String
	}
	if year.Valid {
		d.LastDonationYear = &year.String
	}
	return &d, nil
}

const donorCols = `id, account_id, full_name, phone, email, age, blood_group, thana, post_office, district, is_active, is_available, last_donation_month, last_donation_year, created_at, updated_at`

func (s *DonorStore) Create(ctx context.Context, accountID int64, f DonorFields, now time.Time) (*model.Donor, error) {
	now = now.UTC()
	result, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO donors (account_id, full_name, phone, email, age, blood_group, thana, post_office, district, is_active, is_available, last_donation_month, last_donation_year, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?)`,
		accountID, f.FullName, f.Phone, f.Email, f.Age, f.BloodGroup, f.Thana, f.PostOffice, f.District,
		boolInt(f.IsAvailable), nullString(f.LastDonationMonth), nullString(f.LastDonationYear), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert donor: %w", ErrConflict)
		}
		return nil, fmt.Errorf("insert donor: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *DonorStore) GetByID(ctx context.Context, id int64) (*model.Donor, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+donorCols+` FROM donors WHERE id = ?`, id)
	d, err := scanDonor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get donor: %w", err)
	}
	return d, nil
}

func (s *DonorStore) GetByAccountID(ctx context.Context, accountID int64) (*model.Donor, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+donorCols+` FROM donors WHERE account_id = ?`, accountID)
	d, err := scanDonor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get donor by account: %w", err)
	}
	return d, nil
}

func (s *DonorStore) Update(ctx context.Context, id int64, f DonorFields, now time.Time) (*model.Donor, error) {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE donors SET full_name = ?, phone = ?, email = ?, age = ?, blood_group = ?, thana = ?, post_office = ?, district = ?,
		 is_available = ?, last_donation_month = ?, last_donation_year = ?, updated_at = ? WHERE id = ?`,
		f.FullName, f.Phone, f.Email, f.Age, f.BloodGroup, f.Thana, f.PostOffice, f.District,
		boolInt(f.IsAvailable), nullString(f.LastDonationMonth), nullString(f.LastDonationYear), now.UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update donor: %w", err)
	}
	return s.GetByID(ctx, id)
}

// SetActive soft-deactivates or reactivates a donor. Donors are never deleted.
func (s *DonorStore) SetActive(ctx context.Context, id int64, active bool, now time.Time) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE donors SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set donor active: %w", err)
	}
	return nil
}

// SetLastDonation stamps the month name and year of the donor's latest donation.
func (s *DonorStore) SetLastDonation(ctx context.Context, id int64, donated time.Time, now time.Time) error {
	month := donated.Month().String()
	year := fmt.Sprintf("%d", donated.Year())
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE donors SET last_donation_month = ?, last_donation_year = ?, updated_at = ? WHERE id = ?`,
		month, year, now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set last donation: %w", err)
	}
	return nil
}

// ListCompatible returns active, available donors with the given blood group,
// newest registrations first. Empty locality criteria are not constrained.
func (s *DonorStore) ListCompatible(ctx context.Context, c model.DonorCriteria) ([]model.Donor, error) {
	where := []string{"blood_group = ?", "is_active = 1", "is_available = 1"}
	args := []any{c.BloodGroup}
	if c.Thana != "" {
		where = append(where, "thana = ?")
		args = append(args, c.Thana)
	}
	if c.PostOffice != "" {
		where = append(where, "post_office = ?")
		args = append(args, c.PostOffice)
	}
	if c.District != "" {
		where = append(where, "district = ?")
		args = append(args, c.District)
	}

	rows, err := conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+donorCols+` FROM donors WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list compatible donors: %w", err)
	}
	defer rows.Close()

	var donors []model.Donor
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donor: %w", err)
		}
		donors = append(donors, *d)
	}
	return donors, rows.Err()
}
