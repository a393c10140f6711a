package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/roktodanbd/roktodan/internal/apperr"
	"github.com/roktodanbd/roktodan/internal/auth"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantField string
	}{
		{"validation", apperr.Invalid("units_needed", "must be between 1 and 10"), http.StatusUnprocessableEntity, "units_needed"},
		{"wrapped validation", fmt.Errorf("create: %w", apperr.Invalid("thana", "required")), http.StatusUnprocessableEntity, "thana"},
		{"not found", apperr.NotFound("blood request", 7), http.StatusNotFound, ""},
		{"not actionable", apperr.NotActionable("blood request", 7, "request is expired"), http.StatusNotFound, ""},
		{"duplicate", &apperr.DuplicateResponseError{DonorID: 1, BloodRequestID: 2}, http.StatusConflict, ""},
		{"invalid state", fmt.Errorf("withdrawal: %w", apperr.ErrInvalidState), http.StatusConflict, ""},
		{"credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized, ""},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, slog.New(slog.DiscardHandler), "op", tt.err)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Field != tt.wantField {
				t.Errorf("field = %q, want %q", body.Field, tt.wantField)
			}
			if tt.wantCode == http.StatusInternalServerError && body.Error != "internal error" {
				t.Errorf("500 body leaked %q", body.Error)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct{ Name string }

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"Name":"x"}`))
	if !decodeJSON(rec, r, &v) || v.Name != "x" {
		t.Fatalf("decode failed: %+v", v)
	}

	rec = httptest.NewRecorder()
	r = httptest.NewRequest("POST", "/", strings.NewReader(`{`))
	if decodeJSON(rec, r, &v) || rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	big := `{"Name":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	r = httptest.NewRequest("POST", "/", strings.NewReader(big))
	if decodeJSON(rec, r, &v) {
		t.Fatal("oversized body accepted")
	}
}

func TestPathID(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want bool
	}{{"12", true}, {"0", false}, {"-3", false}, {"abc", false}} {
		mux := http.NewServeMux()
		var ok bool
		mux.HandleFunc("GET /x/{id}", func(w http.ResponseWriter, r *http.Request) {
			_, ok = pathID(w, r)
		})
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", "/x/"+tc.raw, nil))
		if ok != tc.want {
			t.Errorf("pathID(%q) ok = %v, want %v", tc.raw, ok, tc.want)
		}
		if !tc.want && rec.Code != http.StatusBadRequest {
			t.Errorf("pathID(%q) status = %d", tc.raw, rec.Code)
		}
	}
}
