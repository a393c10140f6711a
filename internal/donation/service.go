// Package donation logs donations and drives their lifecycle. Completing a
// donation settles the donor's rewards and eligibility in the same
// transaction.
package donation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roktodanbd/roktodan/internal/apperr"
	"github.com/roktodanbd/roktodan/internal/eligibility"
	"github.com/roktodanbd/roktodan/internal/metrics"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/reward"
	"github.com/roktodanbd/roktodan/internal/store"
)

const (
	minVolumeML = 250
	maxVolumeML = 500
)

type LogInput struct {
	BloodRequestID *int64
	DonationDate   time.Time
	VolumeML       int
	Hospital       string
}

// Completion is the outcome of completing a donation.
type Completion struct {
	Donation      *model.DonationHistory `json:"donation"`
	Points        *model.DonorPoints     `json:"points"`
	DonationCount int                    `json:"donation_count"`
}

type Service struct {
	tx        *store.Transactor
	donations *store.DonationStore
	donors    *store.DonorStore
	requests  *store.BloodRequestStore
	rewards   *reward.Engine
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(
	tx *store.Transactor,
	donations *store.DonationStore,
	donors *store.DonorStore,
	requests *store.BloodRequestStore,
	rewards *reward.Engine,
	opts ...Option,
) *Service {
	s := &Service{
		tx:        tx,
		donations: donations,
		donors:    donors,
		requests:  requests,
		rewards:   rewards,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Log records a pending donation for donor.
func (s *Service) Log(ctx context.Context, donor *model.Donor, in LogInput) (*model.DonationHistory, error) {
	if donor == nil {
		return nil, apperr.Invalid("donor", "required")
	}
	now := s.now()
	if in.DonationDate.IsZero() {
		in.DonationDate = now
	}
	if in.DonationDate.After(now) {
		return nil, apperr.Invalid("donation_date", "cannot be in the future")
	}
	if in.VolumeML != 0 && (in.VolumeML < minVolumeML || in.VolumeML > maxVolumeML) {
		return nil, apperr.Invalid("volume_ml", fmt.Sprintf("must be between %d and %d", minVolumeML, maxVolumeML))
	}
	if in.BloodRequestID != nil {
		r, err := s.requests.GetByID(ctx, *in.BloodRequestID)
		if err != nil {
			return nil, err
		}
		if r == nil {
			return nil, apperr.NotFound("blood request", *in.BloodRequestID)
		}
	}

	d, err := s.donations.Create(ctx, model.DonationHistory{
		DonorID:        donor.ID,
		BloodRequestID: in.BloodRequestID,
		DonationDate:   in.DonationDate,
		BloodGroup:     donor.BloodGroup,
		VolumeML:       in.VolumeML,
		Hospital:       strings.TrimSpace(in.Hospital),
	}, now)
	if err != nil {
		return nil, err
	}
	s.logger.Info("donation logged", "donation_id", d.ID, "donor_id", donor.ID)
	return d, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.DonationHistory, error) {
	d, err := s.donations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFound("donation", id)
	}
	return d, nil
}

func (s *Service) History(ctx context.Context, donorID int64) ([]model.DonationHistory, error) {
	list, err := s.donations.ListByDonor(ctx, donorID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.DonationHistory{}
	}
	return list, nil
}

// Complete moves a pending donation to completed, pays its rewards and
// records it as the donor's last donation when it is the most recent one.
func (s *Service) Complete(ctx context.Context, id int64) (*Completion, error) {
	now := s.now()
	out := &Completion{}
	var settled *reward.Settlement
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		d, err := s.transition(ctx, id, model.DonationCompleted, now)
		if err != nil {
			return err
		}
		out.Donation = d

		settled, err = s.rewards.Settle(ctx, d.DonorID)
		if err != nil {
			return err
		}
		out.Points, out.DonationCount = settled.Account, settled.Completed

		donor, err := s.donors.GetByID(ctx, d.DonorID)
		if err != nil {
			return err
		}
		if donor == nil {
			return apperr.NotFound("donor", d.DonorID)
		}
		last, err := eligibility.ParseLastDonation(donor.LastDonationMonth, donor.LastDonationYear)
		if err == nil && !last.Before(firstOfMonth(d.DonationDate)) {
			return nil
		}
		return s.donors.SetLastDonation(ctx, donor.ID, d.DonationDate, now)
	})
	if err != nil {
		return nil, err
	}

	s.rewards.Report(out.Donation.DonorID, settled)
	s.metrics.IncDonationCompleted()
	s.logger.Info("donation completed",
		"donation_id", id, "donor_id", out.Donation.DonorID, "donations", out.DonationCount, "points", out.Points.Total)
	return out, nil
}

// Cancel moves a pending donation to cancelled.
func (s *Service) Cancel(ctx context.Context, id int64) (*model.DonationHistory, error) {
	var d *model.DonationHistory
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.transition(ctx, id, model.DonationCancelled, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) transition(ctx context.Context, id int64, to model.DonationStatus, now time.Time) (*model.DonationHistory, error) {
	d, err := s.donations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFound("donation", id)
	}
	ok, err := s.donations.Transition(ctx, id, model.DonationPending, to, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("donation %d is %s, cannot move to %s: %w", id, d.Status, to, apperr.ErrInvalidState)
	}
	d.Status = to
	d.UpdatedAt = now.UTC()
	return d, nil
}

func firstOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
