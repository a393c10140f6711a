package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/roktodanbd/roktodan/internal/auth"
	"github.com/roktodanbd/roktodan/internal/middleware"
	"github.com/roktodanbd/roktodan/internal/model"
)

type AuthHandler struct {
	accounts     *auth.Service
	secureCookie bool
	logger       *slog.Logger
}

// NewAuthHandler serves registration and sessions. secureCookie marks the
// session cookie Secure, for deployments behind HTTPS.
func NewAuthHandler(accounts *auth.Service, secureCookie bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, secureCookie: secureCookie, logger: logger}
}

func (h *AuthHandler) setSession(w http.ResponseWriter, sess *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

type donorRegistration struct {
	FullName          string           `json:"full_name"`
	Phone             string           `json:"phone"`
	Email             string           `json:"email"`
	Password          string           `json:"password"`
	Age               int              `json:"age"`
	BloodGroup        model.BloodGroup `json:"blood_group"`
	Thana             string           `json:"thana"`
	PostOffice        string           `json:"post_office"`
	District          string           `json:"district"`
	LastDonationMonth *string          `json:"last_donation_month"`
	LastDonationYear  *string          `json:"last_donation_year"`
	IsAvailable       *bool            `json:"is_available"`
}

func (d donorRegistration) input() auth.DonorInput {
	group, err := model.ParseBloodGroup(string(d.BloodGroup))
	if err != nil {
		group = d.BloodGroup
	}
	return auth.DonorInput{
		FullName:          d.FullName,
		Phone:             d.Phone,
		Email:             d.Email,
		Age:               d.Age,
		BloodGroup:        group,
		Thana:             d.Thana,
		PostOffice:        d.PostOffice,
		District:          d.District,
		LastDonationMonth: d.LastDonationMonth,
		LastDonationYear:  d.LastDonationYear,
		IsAvailable:       d.IsAvailable,
	}
}

// RegisterDonor handles POST /api/register/donor
func (h *AuthHandler) RegisterDonor(w http.ResponseWriter, r *http.Request) {
	var req donorRegistration
	if !decodeJSON(w, r, &req) {
		return
	}
	donor, sess, err := h.accounts.RegisterDonor(r.Context(), auth.RegisterDonorInput{
		DonorInput: req.input(),
		Password:   req.Password,
	})
	if err != nil {
		writeServiceError(w, h.logger, "register donor", err)
		return
	}
	h.setSession(w, sess)
	writeJSON(w, http.StatusCreated, donor)
}

type recipientRegistration struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	BloodGroup string `json:"blood_group"`
	Thana      string `json:"thana"`
	District   string `json:"district"`
}

// RegisterRecipient handles POST /api/register/recipient
func (h *AuthHandler) RegisterRecipient(w http.ResponseWriter, r *http.Request) {
	var req recipientRegistration
	if !decodeJSON(w, r, &req) {
		return
	}
	group, err := model.ParseBloodGroup(req.BloodGroup)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "unknown blood group", Field: "blood_group"})
		return
	}
	recipient, sess, err := h.accounts.RegisterRecipient(r.Context(), auth.RegisterRecipientInput{
		FullName:   req.FullName,
		Phone:      req.Phone,
		Email:      req.Email,
		Password:   req.Password,
		BloodGroup: group,
		Thana:      req.Thana,
		District:   req.District,
	})
	if err != nil {
		writeServiceError(w, h.logger, "register recipient", err)
		return
	}
	h.setSession(w, sess)
	writeJSON(w, http.StatusCreated, recipient)
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/login. login is an email address or phone number.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}
	sess, err := h.accounts.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, "login", err)
		return
	}
	h.setSession(w, sess)
	writeJSON(w, http.StatusOK, sessionResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt})
}

// Logout handles POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if err := h.accounts.Logout(r.Context(), ac.SessionID); err != nil {
		writeServiceError(w, h.logger, "logout", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	writeJSON(w, http.StatusOK, ac.Profile)
}
