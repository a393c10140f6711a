// Package auth registers accounts with their donor and recipient profiles,
// logs them in and resolves sessions into an AuthContext.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/roktodanbd/roktodan/internal/apperr"
	"github.com/roktodanbd/roktodan/internal/eligibility"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/notify"
	"github.com/roktodanbd/roktodan/internal/store"
)

const (
	minPasswordLen = 8
	minDonorAge    = 18
	maxDonorAge    = 65
)

// ErrInvalidCredentials is returned by Login for an unknown login or a wrong
// password. The two cases are not distinguished.
var ErrInvalidCredentials = errors.New("invalid login or password")

// DonorInput is the editable part of a donor profile.
type DonorInput struct {
	FullName          string
	Phone             string
	Email             string
	Age               int
	BloodGroup        model.BloodGroup
	Thana             string
	PostOffice        string
	District          string
	LastDonationMonth *string
	LastDonationYear  *string
	// IsAvailable defaults to true on registration and to the stored value on update.
	IsAvailable *bool
}

type RegisterDonorInput struct {
	DonorInput
	Password string
}

type RegisterRecipientInput struct {
	FullName   string
	Phone      string
	Email      string
	Password   string
	BloodGroup model.BloodGroup
	Thana      string
	District   string
}

type Service struct {
	tx         *store.Transactor
	accounts   *store.AccountStore
	sessions   *store.SessionStore
	donors     *store.DonorStore
	recipients *store.RecipientStore
	notifier   notify.Notifier
	logger     *slog.Logger
	now        func() time.Time
	hashCost   int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithHashCost sets the bcrypt cost for new passwords.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

func NewService(
	tx *store.Transactor,
	accounts *store.AccountStore,
	sessions *store.SessionStore,
	donors *store.DonorStore,
	recipients *store.RecipientStore,
	notifier notify.Notifier,
	opts ...Option,
) *Service {
	s := &Service{
		tx:         tx,
		accounts:   accounts,
		sessions:   sessions,
		donors:     donors,
		recipients: recipients,
		notifier:   notifier,
		logger:     slog.Default(),
		now:        time.Now,
		hashCost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (in *DonorInput) validate() error {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Thana = strings.TrimSpace(in.Thana)
	in.PostOffice = strings.TrimSpace(in.PostOffice)
	in.District = strings.TrimSpace(in.District)

	if err := validateContact(in.FullName, in.Phone, in.Email); err != nil {
		return err
	}
	switch {
	case in.Age < minDonorAge || in.Age > maxDonorAge:
		return apperr.Invalid("age", "must be between 18 and 65")
	case !in.BloodGroup.Valid():
		return apperr.Invalid("blood_group", "unknown blood group")
	case in.Thana == "":
		return apperr.Invalid("thana", "required")
	case in.District == "":
		return apperr.Invalid("district", "required")
	}
	return validateLastDonation(in.LastDonationMonth, in.LastDonationYear)
}

func validateContact(name, phone, email string) error {
	if name == "" {
		return apperr.Invalid("full_name", "required")
	}
	if phone == "" {
		return apperr.Invalid("phone", "required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperr.Invalid("email", "not a valid address")
	}
	return nil
}

// validateLastDonation requires month and year together, and both readable.
func validateLastDonation(month, year *string) error {
	blank := func(s *string) bool { return s == nil || strings.TrimSpace(*s) == "" }
	if blank(month) && blank(year) {
		return nil
	}
	if blank(month) != blank(year) {
		return apperr.Invalid("last_donation", "month and year must be given together")
	}
	if _, err := eligibility.ParseLastDonation(month, year); err != nil {
		return apperr.Invalid("last_donation", err.Error())
	}
	return nil
}

func (in RegisterRecipientInput) validate() (RegisterRecipientInput, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Thana = strings.TrimSpace(in.Thana)
	in.District = strings.TrimSpace(in.District)

	if err := validateContact(in.FullName, in.Phone, in.Email); err != nil {
		return in, err
	}
	switch {
	case !in.BloodGroup.Valid():
		return in, apperr.Invalid("blood_group", "unknown blood group")
	case in.Thana == "":
		return in, apperr.Invalid("thana", "required")
	case in.District == "":
		return in, apperr.Invalid("district", "required")
	}
	return in, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", apperr.Invalid("password", "must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// account returns the account a registration attaches to. A new email and
// phone create an account; an existing account is reused only when both
// match it and the password is right, so one person can hold a donor and a
// recipient profile.
func (s *Service) account(ctx context.Context, email, phone, password, hash string, now time.Time) (*model.Account, error) {
	byEmail, err := s.accounts.GetByLogin(ctx, email)
	if err != nil {
		return nil, err
	}
	byPhone, err := s.accounts.GetByLogin(ctx, phone)
	if err != nil {
		return nil, err
	}

	switch {
	case byEmail == nil && byPhone == nil:
		a, err := s.accounts.Create(ctx, email, phone, hash, now)
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.Invalid("email", "already registered")
		}
		return a, err
	case byEmail != nil && byPhone != nil && byEmail.ID == byPhone.ID:
		if bcrypt.CompareHashAndPassword([]byte(byEmail.PasswordHash), []byte(password)) != nil {
			return nil, apperr.Invalid("email", "already registered")
		}
		return byEmail, nil
	case byEmail != nil:
		return nil, apperr.Invalid("email", "already registered")
	default:
		return nil, apperr.Invalid("phone", "already registered")
	}
}

// RegisterDonor creates a donor profile, and its account when needed, and
// opens a session for it.
func (s *Service) RegisterDonor(ctx context.Context, in RegisterDonorInput) (*model.Donor, *model.Session, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()

	var donor *model.Donor
	var sess *model.Session
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		a, err := s.account(ctx, in.Email, in.Phone, in.Password, hash, now)
		if err != nil {
			return err
		}
		fields := in.fields(true)
		donor, err = s.donors.Create(ctx, a.ID, fields, now)
		if errors.Is(err, store.ErrConflict) {
			return apperr.Invalid("account", "already has a donor profile")
		}
		if err != nil {
			return err
		}
		sess, err = s.sessions.Create(ctx, a.ID, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("donor registered", "donor_id", donor.ID, "account_id", donor.AccountID, "blood_group", donor.BloodGroup)
	s.notify(ctx, notify.Event{Kind: notify.KindDonorWelcome, Donor: donor})
	s.notify(ctx, notify.Event{Kind: notify.KindAdminNewRegistration, Donor: donor})
	return donor, sess, nil
}

func (in DonorInput) fields(available bool) store.DonorFields {
	if in.IsAvailable != nil {
		available = *in.IsAvailable
	}
	f := store.DonorFields{
		FullName:    in.FullName,
		Phone:       in.Phone,
		Email:       in.Email,
		Age:         in.Age,
		BloodGroup:  in.BloodGroup,
		Thana:       in.Thana,
		PostOffice:  in.PostOffice,
		District:    in.District,
		IsAvailable: available,
	}
	if in.LastDonationMonth != nil && strings.TrimSpace(*in.LastDonationMonth) != "" {
		month := strings.TrimSpace(*in.LastDonationMonth)
		year := strings.TrimSpace(*in.LastDonationYear)
		f.LastDonationMonth, f.LastDonationYear = &month, &year
	}
	return f
}

// RegisterRecipient creates a recipient profile, and its account when
// needed, and opens a session for it.
func (s *Service) RegisterRecipient(ctx context.Context, in RegisterRecipientInput) (*model.Recipient, *model.Session, error) {
	in, err := in.validate()
	if err != nil {
		return nil, nil, err
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()

	var recipient *model.Recipient
	var sess *model.Session
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		a, err := s.account(ctx, in.Email, in.Phone, in.Password, hash, now)
		if err != nil {
			return err
		}
		recipient, err = s.recipients.Create(ctx, model.Recipient{
			AccountID:  a.ID,
			FullName:   in.FullName,
			Phone:      in.Phone,
			Email:      in.Email,
			BloodGroup: in.BloodGroup,
			Thana:      in.Thana,
			District:   in.District,
		}, now)
		if errors.Is(err, store.ErrConflict) {
			return apperr.Invalid("account", "already has a recipient profile")
		}
		if err != nil {
			return err
		}
		sess, err = s.sessions.Create(ctx, a.ID, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("recipient registered", "recipient_id", recipient.ID, "account_id", recipient.AccountID)
	s.notify(ctx, notify.Event{Kind: notify.KindRecipientWelcome, Recipient: recipient})
	s.notify(ctx, notify.Event{Kind: notify.KindAdminNewRegistration, Recipient: recipient})
	return recipient, sess, nil
}

// Login checks a password against the account found by email or phone and
// opens a session.
func (s *Service) Login(ctx context.Context, login, password string) (*model.Session, error) {
	a, err := s.accounts.GetByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	sess, err := s.sessions.Create(ctx, a.ID, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("login", "account_id", a.ID)
	return sess, nil
}

// Authenticate resolves a session token. It returns nil for unknown or
// expired tokens and for sessions whose account is gone.
func (s *Service) Authenticate(ctx context.Context, token string) (*AuthContext, error) {
	if token == "" {
		return nil, nil
	}
	sess, err := s.sessions.GetByToken(ctx, token, s.now())
	if err != nil || sess == nil {
		return nil, err
	}
	profile, err := s.accounts.ResolveProfile(ctx, sess.AccountID)
	if err != nil || profile == nil {
		return nil, err
	}
	return &AuthContext{Profile: *profile, SessionID: sess.ID}, nil
}

func (s *Service) Logout(ctx context.Context, sessionID int64) error {
	return s.sessions.Delete(ctx, sessionID)
}

// DeleteExpiredSessions removes sessions past their expiry.
func (s *Service) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now())
}

// Donor loads a donor profile.
func (s *Service) Donor(ctx context.Context, donorID int64) (*model.Donor, error) {
	d, err := s.donors.GetByID(ctx, donorID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFound("donor", donorID)
	}
	return d, nil
}

// Recipient loads a recipient profile.
func (s *Service) Recipient(ctx context.Context, recipientID int64) (*model.Recipient, error) {
	r, err := s.recipients.GetByID(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.NotFound("recipient", recipientID)
	}
	return r, nil
}

// UpdateDonor replaces a donor's editable fields. A nil IsAvailable keeps
// the stored availability.
func (s *Service) UpdateDonor(ctx context.Context, donorID int64, in DonorInput) (*model.Donor, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var updated *model.Donor
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.Donor(ctx, donorID)
		if err != nil {
			return err
		}
		updated, err = s.donors.Update(ctx, donorID, in.fields(current.IsAvailable), s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetDonorActive soft-deactivates or reactivates a donor. Inactive donors
// are left out of matching.
func (s *Service) SetDonorActive(ctx context.Context, donorID int64, active bool) (*model.Donor, error) {
	var d *model.Donor
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.Donor(ctx, donorID); err != nil {
			return err
		}
		if err := s.donors.SetActive(ctx, donorID, active, s.now()); err != nil {
			return err
		}
		var err error
		d, err = s.donors.GetByID(ctx, donorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("donor active changed", "donor_id", donorID, "active", active)
	return d, nil
}

func (s *Service) notify(ctx context.Context, ev notify.Event) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn("notification failed", "kind", ev.Kind, "error", err)
	}
}
