package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/http/respond"
	"github.com/hongminglow/nova-be/internal/middleware"
	"github.com/hongminglow/nova-be/internal/models"
)

const maxJSONBody = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// decode reads a JSON body into dst and runs its validate tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return apperr.Invalid("invalid JSON payload")
	}
	if err := validate.Struct(dst); err != nil {
		return validationErr(err)
	}
	return nil
}

// decodeOptional is decode for endpoints whose body may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decode(w, r, dst)
}

func validationErr(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperr.ErrInvalidInput
	}
	fe := fieldErrs[0]
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return apperr.Invalid(field + " is required")
	case "email":
		return apperr.Invalid(field + " must be a valid email address")
	case "min":
		return apperr.Invalid(fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
	case "max":
		return apperr.Invalid(fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
	case "oneof":
		return apperr.Invalid(fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
	case "datetime":
		return apperr.Invalid(field + " must be formatted YYYY-MM-DD")
	default:
		return apperr.Invalid(field + " is invalid")
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	respond.Fail(w, err, middleware.RequestID(r.Context()))
}

// currentUser returns the authenticated caller. Routes using it sit behind
// middleware.Authenticate.
func currentUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		fail(w, r, apperr.ErrInvalidToken)
	}
	return user, ok
}
