package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReportsStoreState(t *testing.T) {
	cases := []struct {
		name  string
		store Pinger
		want  int
	}{
		{"no store", nil, http.StatusOK},
		{"store up", pingFunc(func(context.Context) error { return nil }), http.StatusOK},
		{"store down", pingFunc(func(context.Context) error { return errors.New("connection refused") }), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHealthHandler(time.Now(), tc.store).Register(r)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
