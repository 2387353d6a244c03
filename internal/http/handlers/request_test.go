package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/models/dto"
)

func TestDecodeValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"email":`, "invalid JSON payload"},
		{"missing email", `{"password":"password123","userType":"kid","displayName":"K"}`, "email is required"},
		{"bad email", `{"email":"nope","password":"password123","userType":"kid","displayName":"K"}`, "email must be a valid email address"},
		{"short password", `{"email":"a@b.co","password":"short","userType":"kid","displayName":"K"}`, "password must be at least 8 characters"},
		{"unknown type", `{"email":"a@b.co","password":"password123","userType":"admin","displayName":"K"}`, "userType must be one of: kid parent school"},
		{"bad date", `{"email":"a@b.co","password":"password123","userType":"kid","displayName":"K","dateOfBirth":"01/02/2015"}`, "dateOfBirth must be formatted YYYY-MM-DD"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var out dto.RegisterRequest
			err := decode(httptest.NewRecorder(), req, &out)
			if !errors.Is(err, apperr.ErrInvalidInput) {
				t.Fatalf("expected InvalidInput, got %v", err)
			}
			e, _ := apperr.From(err)
			if e.Message != tc.want {
				t.Fatalf("message = %q, want %q", e.Message, tc.want)
			}
		})
	}
}

func TestDecodeAcceptsValidRegistration(t *testing.T) {
	body := `{"email":"kid@example.com","password":"password123","userType":"kid","displayName":"Kiddo","dateOfBirth":"2015-04-02"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var out dto.RegisterRequest
	if err := decode(httptest.NewRecorder(), req, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.DateOfBirth != "2015-04-02" {
		t.Fatalf("unexpected request %+v", out)
	}
}

func TestProfileChangeRequestChangesOnlySentFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"displayName":"Star","grade":""}`))
	var out dto.ProfileChangeRequest
	if err := decode(httptest.NewRecorder(), req, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	changes := out.Changes()
	if len(changes) != 2 || changes["displayName"] != "Star" || changes["grade"] != "" {
		t.Fatalf("unexpected changes %v", changes)
	}
}
