// Package response records donors' accept/refuse decisions on blood requests.
package response

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roktodanbd/roktodan/internal/apperr"
	"github.com/roktodanbd/roktodan/internal/metrics"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/notify"
	"github.com/roktodanbd/roktodan/internal/store"
)

const maxNotes = 1000

// Input is what a donor submits with a response.
type Input struct {
	Response     model.ResponseValue
	ScheduledFor *time.Time
	Notes        string
}

type Ledger struct {
	tx         *store.Transactor
	requests   *store.BloodRequestStore
	responses  *store.ResponseStore
	recipients *store.RecipientStore
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func NewLedger(
	tx *store.Transactor,
	requests *store.BloodRequestStore,
	responses *store.ResponseStore,
	recipients *store.RecipientStore,
	notifier notify.Notifier,
	opts ...Option,
) *Ledger {
	l := &Ledger{
		tx:         tx,
		requests:   requests,
		responses:  responses,
		recipients: recipients,
		notifier:   notifier,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordResponse stores donor's answer to a request. Each (donor, request)
// pair accepts one response; a second attempt returns
// *apperr.DuplicateResponseError and leaves the first untouched. The request
// must be active. Enough accepts fulfil it.
//
// The recipient is notified after commit; delivery failures are logged only.
func (l *Ledger) RecordResponse(ctx context.Context, donor *model.Donor, requestID int64, in Input) (*model.DonorResponse, error) {
	if donor == nil {
		return nil, apperr.Invalid("donor", "required")
	}
	if !in.Response.Valid() {
		return nil, apperr.Invalid("response", "must be accept or refuse")
	}
	in.Notes = strings.TrimSpace(in.Notes)
	if len(in.Notes) > maxNotes {
		return nil, apperr.Invalid("notes", fmt.Sprintf("at most %d characters", maxNotes))
	}

	now := l.now()
	var (
		req       *model.BloodRequest
		resp      *model.DonorResponse
		expired   bool
		fulfilled bool
	)

	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		req, expired, err = l.requests.GetForAction(ctx, requestID, now)
		if err != nil {
			return err
		}
		if req == nil {
			return apperr.NotFound("blood request", requestID)
		}
		if req.Status != model.RequestActive {
			// Commit a lazy expiry even though the response is refused.
			return nil
		}

		// Advisory. The unique index below is what actually guards the pair.
		prior, err := l.responses.Get(ctx, donor.ID, requestID)
		if err != nil {
			return err
		}
		if prior != nil {
			return &apperr.DuplicateResponseError{DonorID: donor.ID, BloodRequestID: requestID}
		}

		resp, err = l.responses.Create(ctx, model.DonorResponse{
			DonorID:        donor.ID,
			BloodRequestID: requestID,
			Response:       in.Response,
			ScheduledFor:   in.ScheduledFor,
			Notes:          in.Notes,
		}, now)
		if errors.Is(err, store.ErrConflict) {
			return &apperr.DuplicateResponseError{DonorID: donor.ID, BloodRequestID: requestID}
		}
		if errors.Is(err, store.ErrForeignKey) {
			return apperr.NotFound("donor", donor.ID)
		}
		if err != nil {
			return err
		}

		if in.Response != model.ResponseAccept {
			return nil
		}
		accepted, err := l.responses.CountAccepted(ctx, requestID)
		if err != nil {
			return err
		}
		if accepted < req.UnitsNeeded {
			return nil
		}
		fulfilled, err = l.requests.Transition(ctx, requestID, model.RequestActive, model.RequestFulfilled, now)
		if err != nil {
			return err
		}
		if fulfilled {
			req.Status = model.RequestFulfilled
		}
		return nil
	})
	if err != nil {
		var dup *apperr.DuplicateResponseError
		if errors.As(err, &dup) {
			l.metrics.IncDuplicateResponse()
		}
		return nil, err
	}

	if expired {
		l.metrics.IncRequestClosed(string(model.RequestExpired), 1)
		l.notify(ctx, notify.Event{Kind: notify.KindRequestClosed, Request: req})
	}
	if resp == nil {
		return nil, apperr.NotActionable("blood request", requestID, "request is "+string(req.Status))
	}

	l.metrics.IncResponse(string(resp.Response))
	l.logger.Info("donor response recorded",
		"donor_id", donor.ID, "blood_request_id", requestID, "response", resp.Response, "fulfilled", fulfilled)

	ev := notify.Event{Kind: notify.KindDonorResponse, Donor: donor, Request: req, Response: resp}
	recipient, err := l.recipients.GetByID(ctx, req.RecipientID)
	if err != nil {
		l.logger.Warn("load recipient for notification", "blood_request_id", requestID, "error", err)
	}
	ev.Recipient = recipient
	l.notify(ctx, ev)

	if fulfilled {
		l.metrics.IncRequestClosed(string(model.RequestFulfilled), 1)
		l.notify(ctx, notify.Event{Kind: notify.KindRequestClosed, Request: req})
	}
	return resp, nil
}

func (l *Ledger) notify(ctx context.Context, ev notify.Event) {
	if err := l.notifier.Notify(ctx, ev); err != nil {
		l.logger.Warn("notification failed", "kind", ev.Kind, "error", err)
	}
}
