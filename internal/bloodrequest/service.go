// Package bloodrequest runs the recipient side of a blood request: opening
// it, alerting compatible donors, tracking responses and closing it.
package bloodrequest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/roktodanbd/roktodan/internal/apperr"
	"github.com/roktodanbd/roktodan/internal/matching"
	"github.com/roktodanbd/roktodan/internal/metrics"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/notify"
	"github.com/roktodanbd/roktodan/internal/store"
)

const maxUnits = 10

type CreateInput struct {
	PatientName  string
	BloodGroup   model.BloodGroup
	UnitsNeeded  int
	HospitalName string
	Thana        string
	District     string
	ContactPhone string
	Urgency      model.Urgency
	Notes        string
	NeededBy     time.Time
	// ExpiresAt defaults to NeededBy.
	ExpiresAt time.Time
}

// Filter narrows public listings. Zero fields match everything.
type Filter struct {
	BloodGroup model.BloodGroup
	Thana      string
}

type Service struct {
	tx        *store.Transactor
	requests  *store.BloodRequestStore
	responses *store.ResponseStore
	finder    *matching.Finder
	notifier  notify.Notifier
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
	requests *store.BloodRequestStore,
	responses *store.ResponseStore,
	finder *matching.Finder,
	notifier notify.Notifier,
	opts ...Option,
) *Service {
	s := &Service{
		tx:        tx,
		requests:  requests,
		responses: responses,
		finder:    finder,
		notifier:  notifier,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (in *CreateInput) validate(now time.Time) error {
	in.PatientName = strings.TrimSpace(in.PatientName)
	in.HospitalName = strings.TrimSpace(in.HospitalName)
	in.Thana = strings.TrimSpace(in.Thana)
	in.District = strings.TrimSpace(in.District)
	in.ContactPhone = strings.TrimSpace(in.ContactPhone)
	in.Notes = strings.TrimSpace(in.Notes)

	switch {
	case in.PatientName == "":
		return apperr.Invalid("patient_name", "required")
	case !in.BloodGroup.Valid():
		return apperr.Invalid("blood_group_needed", "unknown blood group")
	case in.HospitalName == "":
		return apperr.Invalid("hospital_name", "required")
	case in.Thana == "":
		return apperr.Invalid("thana", "required")
	case in.ContactPhone == "":
		return apperr.Invalid("contact_phone", "required")
	}
	if in.Urgency == "" {
		in.Urgency = model.UrgencyMedium
	}
	if !in.Urgency.Valid() {
		return apperr.Invalid("urgency", "must be low, medium, high or critical")
	}
	if in.UnitsNeeded == 0 {
		in.UnitsNeeded = 1
	}
	if in.UnitsNeeded < 1 || in.UnitsNeeded > maxUnits {
		return apperr.Invalid("units_needed", "must be between 1 and 10")
	}
	if !in.NeededBy.After(now) {
		return apperr.Invalid("needed_by_date", "must be in the future")
	}
	if in.ExpiresAt.IsZero() {
		in.ExpiresAt = in.NeededBy
	}
	if in.ExpiresAt.After(in.NeededBy) {
		return apperr.Invalid("expires_at", "must not be after needed_by_date")
	}
	if !in.ExpiresAt.After(now) {
		return apperr.Invalid("expires_at", "must be in the future")
	}
	return nil
}

// Create opens a request for recipient and alerts every compatible donor in
// the request's thana.
func (s *Service) Create(ctx context.Context, recipient *model.Recipient, in CreateInput) (*model.BloodRequest, error) {
	if recipient == nil {
		return nil, apperr.Invalid("recipient", "required")
	}
	now := s.now()
	if err := in.validate(now); err != nil {
		return nil, err
	}
	if in.District == "" {
		in.District = recipient.District
	}

	r, err := s.requests.Create(ctx, model.BloodRequest{
		RecipientID:      recipient.ID,
		PatientName:      in.PatientName,
		BloodGroupNeeded: in.BloodGroup,
		UnitsNeeded:      in.UnitsNeeded,
		HospitalName:     in.HospitalName,
		Thana:            in.Thana,
		District:         in.District,
		ContactPhone:     in.ContactPhone,
		Urgency:          in.Urgency,
		Notes:            in.Notes,
		NeededByDate:     in.NeededBy,
		ExpiresAt:        in.ExpiresAt,
	}, now)
	if err != nil {
		return nil, err
	}
	s.metrics.IncRequestCreated()
	s.logger.Info("blood request created",
		"blood_request_id", r.ID, "recipient_id", recipient.ID, "blood_group", r.BloodGroupNeeded, "urgency", r.Urgency)

	s.notify(ctx, notify.Event{Kind: notify.KindRequestOpened, Request: r})
	s.alertDonors(ctx, r, recipient.AccountID)
	return r, nil
}

func (s *Service) alertDonors(ctx context.Context, r *model.BloodRequest, recipientAccountID int64) {
	donors, err := s.finder.FindCompatibleDonors(ctx, model.DonorCriteria{BloodGroup: r.BloodGroupNeeded, Thana: r.Thana})
	if err != nil {
		s.logger.Warn("find donors to alert", "blood_request_id", r.ID, "error", err)
		return
	}
	for i := range donors {
		if donors[i].AccountID == recipientAccountID {
			continue
		}
		s.notify(ctx, notify.Event{Kind: notify.KindBloodRequestToDonor, Donor: &donors[i], Request: r})
	}
	s.logger.Info("donors alerted", "blood_request_id", r.ID, "donors", len(donors))
}

// Get loads a request, expiring it first when it is overdue.
func (s *Service) Get(ctx context.Context, id int64) (*model.BloodRequest, error) {
	var (
		r       *model.BloodRequest
		expired bool
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		r, expired, err = s.requests.GetForAction(ctx, id, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.NotFound("blood request", id)
	}
	if expired {
		s.closed(ctx, r)
	}
	return r, nil
}

// Cancel closes an active request owned by recipientID.
func (s *Service) Cancel(ctx context.Context, recipientID, id int64) (*model.BloodRequest, error) {
	now := s.now()
	var (
		r         *model.BloodRequest
		expired   bool
		cancelled bool
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		r, expired, err = s.requests.GetForAction(ctx, id, now)
		if err != nil {
			return err
		}
		if r == nil || r.RecipientID != recipientID {
			r = nil
			return apperr.NotFound("blood request", id)
		}
		if r.Status != model.RequestActive {
			return nil
		}
		cancelled, err = s.requests.Transition(ctx, id, model.RequestActive, model.RequestCancelled, now)
		if cancelled {
			r.Status = model.RequestCancelled
			r.UpdatedAt = now.UTC()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired || cancelled {
		s.closed(ctx, r)
	}
	if !cancelled {
		return nil, apperr.NotActionable("blood request", id, "request is "+string(r.Status))
	}
	s.logger.Info("blood request cancelled", "blood_request_id", id, "recipient_id", recipientID)
	return r, nil
}

// ListActive returns open requests, most urgent first.
func (s *Service) ListActive(ctx context.Context, f Filter) ([]model.BloodRequest, error) {
	return s.list(ctx, store.RequestFilter{BloodGroup: f.BloodGroup, Thana: strings.TrimSpace(f.Thana)})
}

// Emergency returns open requests of high or critical urgency.
func (s *Service) Emergency(ctx context.Context, f Filter) ([]model.BloodRequest, error) {
	return s.list(ctx, store.RequestFilter{BloodGroup: f.BloodGroup, Thana: strings.TrimSpace(f.Thana), MinUrgency: model.UrgencyHigh})
}

func (s *Service) list(ctx context.Context, f store.RequestFilter) ([]model.BloodRequest, error) {
	if f.BloodGroup != "" && !f.BloodGroup.Valid() {
		return nil, apperr.Invalid("blood_group", "unknown blood group")
	}
	reqs, err := s.requests.ListActive(ctx, f, s.now())
	if err != nil {
		return nil, err
	}
	if reqs == nil {
		reqs = []model.BloodRequest{}
	}
	return reqs, nil
}

// Track lists a recipient's requests with response tallies. Overdue requests
// are reported as expired even before the sweeper persists it.
func (s *Service) Track(ctx context.Context, recipientID int64) ([]model.RequestSummary, error) {
	list, err := s.requests.ListByRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range list {
		if list[i].Overdue(now) {
			list[i].Status = model.RequestExpired
		}
	}
	if list == nil {
		list = []model.RequestSummary{}
	}
	return list, nil
}

// Responses lists the donor responses to a request owned by recipientID.
func (s *Service) Responses(ctx context.Context, recipientID, id int64) ([]model.DonorResponse, error) {
	r, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil || r.RecipientID != recipientID {
		return nil, apperr.NotFound("blood request", id)
	}
	list, err := s.responses.ListByRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.DonorResponse{}
	}
	return list, nil
}

// ExpireDue persists expiry of every overdue request. The sweeper calls it.
func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	n, err := s.requests.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.IncRequestClosed(string(model.RequestExpired), int(n))
	}
	return n, nil
}

func (s *Service) closed(ctx context.Context, r *model.BloodRequest) {
	s.metrics.IncRequestClosed(string(r.Status), 1)
	s.notify(ctx, notify.Event{Kind: notify.KindRequestClosed, Request: r})
}

func (s *Service) notify(ctx context.Context, ev notify.Event) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn("notification failed", "kind", ev.Kind, "error", err)
	}
}
