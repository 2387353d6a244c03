package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/auth"
	"github.com/hongminglow/nova-be/internal/http/respond"
	"github.com/hongminglow/nova-be/internal/models"
	"github.com/hongminglow/nova-be/internal/storage"
)

// UserFinder loads the account a token resolves to.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// BearerToken extracts the token from an Authorization header. Anything
// that is not "Bearer <header.payload.signature>" is MalformedToken.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", apperr.ErrMalformedToken
	}
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return "", apperr.ErrMalformedToken
	}
	for _, segment := range strings.Split(token, ".") {
		if segment == "" {
			return "", apperr.ErrMalformedToken
		}
	}
	return token, nil
}

// Authenticate verifies the bearer token, loads the user and rejects
// inactive accounts before calling next.
func Authenticate(provider auth.IdentityProvider, users UserFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticate(r, provider, users)
			if err != nil {
				respond.Fail(w, err, RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
		})
	}
}

func authenticate(r *http.Request, provider auth.IdentityProvider, users UserFinder) (models.User, error) {
	token, err := BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return models.User{}, err
	}
	identity, err := provider.Verify(r.Context(), token)
	if err != nil {
		if _, ok := apperr.From(err); ok {
			return models.User{}, err
		}
		return models.User{}, apperr.ErrInvalidToken
	}
	user, err := users.FindByID(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, apperr.ErrInvalidToken
		}
		return models.User{}, err
	}
	if !user.IsActive {
		return models.User{}, apperr.ErrInactiveAccount
	}
	return user, nil
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userKey).(models.User)
	return user, ok
}

// RequireUserType rejects authenticated users whose type is not listed.
func RequireUserType(types ...models.UserType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				respond.Fail(w, apperr.ErrInvalidToken, RequestID(r.Context()))
				return
			}
			for _, t := range types {
				if user.UserType == t {
					next.ServeHTTP(w, r)
					return
				}
			}
			respond.Fail(w, apperr.ErrForbidden, RequestID(r.Context()))
		})
	}
}
