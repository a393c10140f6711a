package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/roktodanbd/roktodan/internal/email"
	"github.com/roktodanbd/roktodan/internal/model"
)

// Compose renders the email for ev. It reports false for kinds that have no
// email form or when the addressee is unknown.
func Compose(ev Event, baseURL, adminEmail string) (email.Message, bool) {
	switch ev.Kind {
	case KindDonorResponse:
		if ev.Recipient == nil || ev.Donor == nil || ev.Request == nil || ev.Response == nil {
			return email.Message{}, false
		}
		return donorResponseMessage(ev, baseURL), true
	case KindBloodRequestToDonor:
		if ev.Donor == nil || ev.Request == nil {
			return email.Message{}, false
		}
		return requestToDonorMessage(ev, baseURL), true
	case KindDonorWelcome:
		if ev.Donor == nil {
			return email.Message{}, false
		}
		return welcome(ev.Donor.Email, ev.Donor.FullName,
			"Thank you for registering as a blood donor. We will let you know when someone near "+ev.Donor.Thana+" needs "+string(ev.Donor.BloodGroup)+" blood.",
			baseURL+"/donor"), true
	case KindRecipientWelcome:
		if ev.Recipient == nil {
			return email.Message{}, false
		}
		return welcome(ev.Recipient.Email, ev.Recipient.FullName,
			"Your account is ready. You can post a blood request and follow donor responses from your dashboard.",
			baseURL+"/recipient/requests"), true
	case KindAdminNewRegistration:
		if adminEmail == "" {
			return email.Message{}, false
		}
		return adminRegistrationMessage(ev, adminEmail)
	}
	return email.Message{}, false
}

func donorResponseMessage(ev Event, baseURL string) email.Message {
	verb := "accepted"
	if ev.Response.Response == model.ResponseRefuse {
		verb = "declined"
	}
	subject := fmt.Sprintf("%s %s your blood request for %s", ev.Donor.FullName, verb, ev.Request.PatientName)

	lines := []string{
		fmt.Sprintf("%s (%s) has %s your request for %s blood at %s.", ev.Donor.FullName, ev.Donor.BloodGroup, verb, ev.Request.BloodGroupNeeded, ev.Request.HospitalName),
	}
	if ev.Response.Response == model.ResponseAccept {
		lines = append(lines, "Contact the donor at "+ev.Donor.Phone+".")
		if ev.Response.ScheduledFor != nil {
			lines = append(lines, "Proposed time: "+ev.Response.ScheduledFor.Format("2 Jan 2006 15:04")+".")
		}
	}
	if ev.Response.Notes != "" {
		lines = append(lines, "Note from donor: "+ev.Response.Notes)
	}
	link := fmt.Sprintf("%s/recipient/requests/%d", baseURL, ev.Request.ID)
	return build(ev.Recipient.Email, subject, lines, link, "View your request")
}

func requestToDonorMessage(ev Event, baseURL string) email.Message {
	r := ev.Request
	subject := fmt.Sprintf("%s blood needed in %s", r.BloodGroupNeeded, r.Thana)
	if r.Urgency.Rank() >= model.UrgencyHigh.Rank() {
		subject = "Urgent: " + subject
	}
	lines := []string{
		fmt.Sprintf("Dear %s, a patient near you needs %d unit(s) of %s blood.", ev.Donor.FullName, r.UnitsNeeded, r.BloodGroupNeeded),
		fmt.Sprintf("Hospital: %s, %s", r.HospitalName, r.Thana),
		"Needed by: " + r.NeededByDate.Format("2 Jan 2006"),
		"Urgency: " + string(r.Urgency),
	}
	link := fmt.Sprintf("%s/donor/requests/%d", baseURL, r.ID)
	return build(ev.Donor.Email, subject, lines, link, "Respond to this request")
}

func adminRegistrationMessage(ev Event, adminEmail string) (email.Message, bool) {
	switch {
	case ev.Donor != nil:
		d := ev.Donor
		lines := []string{
			fmt.Sprintf("New donor: %s (%s), age %d", d.FullName, d.BloodGroup, d.Age),
			fmt.Sprintf("Location: %s, %s, %s", d.Thana, d.PostOffice, d.District),
			"Contact: " + d.Phone + ", " + d.Email,
		}
		return build(adminEmail, "New donor registration: "+d.FullName, lines, "", ""), true
	case ev.Recipient != nil:
		r := ev.Recipient
		lines := []string{
			fmt.Sprintf("New recipient: %s (%s)", r.FullName, r.BloodGroup),
			fmt.Sprintf("Location: %s, %s", r.Thana, r.District),
			"Contact: " + r.Phone + ", " + r.Email,
		}
		return build(adminEmail, "New recipient registration: "+r.FullName, lines, "", ""), true
	}
	return email.Message{}, false
}

func welcome(to, name, body, link string) email.Message {
	return build(to, "Welcome to RoktoDan, "+name, []string{"Dear " + name + ",", body}, link, "Open your dashboard")
}

func build(to, subject string, lines []string, link, linkText string) email.Message {
	text := strings.Join(lines, "\n\n")
	var h strings.Builder
	for _, l := range lines {
		h.WriteString("<p>" + html.EscapeString(l) + "</p>")
	}
	if link != "" {
		text += "\n\n" + linkText + ": " + link
		h.WriteString(fmt.Sprintf(`<p><a href="%s">%s</a></p>`, html.EscapeString(link), html.EscapeString(linkText)))
	}
	return email.Message{To: to, Subject: subject, TextBody: text, HTMLBody: h.String()}
}
