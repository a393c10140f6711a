// Package notify is the boundary between the donation services and outbound
// delivery. Services describe what happened as an Event; the Dispatcher hands
// it to every configured channel (email, web push, live feed).
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/roktodanbd/roktodan/internal/apperr"
	"github.com/roktodanbd/roktodan/internal/metrics"
	"github.com/roktodanbd/roktodan/internal/model"
)

type Kind string

const (
	KindDonorResponse        Kind = "donor_response"
	KindBloodRequestToDonor  Kind = "blood_request_to_donor"
	KindRequestOpened        Kind = "blood_request_opened"
	KindRequestClosed        Kind = "blood_request_closed"
	KindDonorWelcome         Kind = "donor_welcome"
	KindRecipientWelcome     Kind = "recipient_welcome"
	KindAdminNewRegistration Kind = "admin_new_registration"
)

// Event is a structured notification. Which fields are set depends on Kind:
//
//	donor_response          Donor, Recipient, Request, Response
//	blood_request_to_donor  Donor, Request
//	blood_request_opened    Request
//	blood_request_closed    Request
//	donor_welcome           Donor
//	recipient_welcome       Recipient
//	admin_new_registration  Donor or Recipient
type Event struct {
	Kind      Kind
	Donor     *model.Donor
	Recipient *model.Recipient
	Request   *model.BloodRequest
	Response  *model.DonorResponse
}

// Notifier accepts events. A returned error means at least one channel failed
// to deliver; callers log it and carry on.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Channel delivers events over one medium. Channels return nil for kinds they
// do not carry.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Dispatcher fans an event out to every channel.
type Dispatcher struct {
	channels []Channel
	metrics  *metrics.Metrics
}

func NewDispatcher(m *metrics.Metrics, channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, metrics: m}
}

// Notify delivers ev on all channels, even when an earlier one fails. Failures
// are returned as a single *apperr.NotificationDeliveryError.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, ch := range d.channels {
		if err := ch.Deliver(ctx, ev); err != nil {
			d.metrics.IncNotificationFailure(ch.Name())
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &apperr.NotificationDeliveryError{Kind: string(ev.Kind), Err: errors.Join(errs...)}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(context.Context, Event) error { return nil }
