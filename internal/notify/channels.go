package notify

import (
	"context"
	"fmt"

	"github.com/roktodanbd/roktodan/internal/email"
	"github.com/roktodanbd/roktodan/internal/push"
	"github.com/roktodanbd/roktodan/internal/websocket"
)

// EmailSender is satisfied by *email.Client.
type EmailSender interface {
	Send(ctx context.Context, msg email.Message) error
}

// EmailChannel sends composed messages through an EmailSender.
type EmailChannel struct {
	sender     EmailSender
	baseURL    string
	adminEmail string
}

func NewEmailChannel(sender EmailSender, baseURL, adminEmail string) *EmailChannel {
	return &EmailChannel{sender: sender, baseURL: baseURL, adminEmail: adminEmail}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Deliver(ctx context.Context, ev Event) error {
	msg, ok := Compose(ev, c.baseURL, c.adminEmail)
	if !ok {
		return nil
	}
	return c.sender.Send(ctx, msg)
}

// DonorPusher is satisfied by *push.Service.
type DonorPusher interface {
	SendToDonor(ctx context.Context, donorID int64, payload push.Payload) error
}

// PushChannel alerts donors' devices about requests they can answer.
type PushChannel struct {
	pusher DonorPusher
}

func NewPushChannel(p DonorPusher) *PushChannel {
	return &PushChannel{pusher: p}
}

func (c *PushChannel) Name() string { return "push" }

func (c *PushChannel) Deliver(ctx context.Context, ev Event) error {
	if ev.Kind != KindBloodRequestToDonor || ev.Donor == nil || ev.Request == nil {
		return nil
	}
	r := ev.Request
	return c.pusher.SendToDonor(ctx, ev.Donor.ID, push.Payload{
		Title: fmt.Sprintf("%s blood needed in %s", r.BloodGroupNeeded, r.Thana),
		Body:  fmt.Sprintf("%s at %s (%s)", r.PatientName, r.HospitalName, r.Urgency),
		URL:   fmt.Sprintf("/donor/requests/%d", r.ID),
		Tag:   fmt.Sprintf("blood-request-%d", r.ID),
	})
}

// Publisher is satisfied by *websocket.Hub.
type Publisher interface {
	Broadcast(msg websocket.Message)
	SendToAccount(accountID int64, msg websocket.Message)
}

// FeedChannel pushes events to open dashboards.
type FeedChannel struct {
	hub Publisher
}

func NewFeedChannel(hub Publisher) *FeedChannel {
	return &FeedChannel{hub: hub}
}

func (c *FeedChannel) Name() string { return "feed" }

func (c *FeedChannel) Deliver(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case KindDonorResponse:
		if ev.Recipient == nil || ev.Response == nil || ev.Request == nil {
			return nil
		}
		c.hub.SendToAccount(ev.Recipient.AccountID, websocket.NewMessage("donor_response", "created", ev.Response.ID, map[string]any{
			"blood_request_id": ev.Request.ID,
			"response":         string(ev.Response.Response),
		}))
	case KindBloodRequestToDonor:
		if ev.Donor == nil || ev.Request == nil {
			return nil
		}
		c.hub.SendToAccount(ev.Donor.AccountID, websocket.NewMessage("blood_request", "matched", ev.Request.ID, nil))
	case KindRequestOpened:
		if ev.Request == nil {
			return nil
		}
		c.hub.Broadcast(websocket.NewMessage("blood_request", "opened", ev.Request.ID, map[string]any{
			"blood_group": string(ev.Request.BloodGroupNeeded),
			"thana":       ev.Request.Thana,
			"urgency":     string(ev.Request.Urgency),
		}))
	case KindRequestClosed:
		if ev.Request == nil {
			return nil
		}
		c.hub.Broadcast(websocket.NewMessage("blood_request", string(ev.Request.Status), ev.Request.ID, nil))
	}
	return nil
}
