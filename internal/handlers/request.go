package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/platform/textutil"
	"github.com/hanko-field/storefront/internal/services"
)

const (
	maxJSONBody     = 16 * 1024
	maxReasonLength = 500
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("size", func(fl validator.FieldLevel) bool {
		return domain.Size(fl.Field().String()).Valid()
	})
	return v
}

// actorFrom maps the authenticated identity onto the service actor.
func actorFrom(ctx context.Context) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return services.Actor{}, false
	}
	return services.Actor{UserID: identity.UID, IsAdmin: identity.IsAdmin()}, true
}

func requireActor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.Actor{}, false
	}
	return actor, true
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	return data, nil
}

// decodeJSON reads, decodes and validates a request DTO, writing a 400/413 on failure.
// Empty bodies are accepted when allowEmpty is set and the zero value validates.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxJSONBody)
	switch {
	case errors.Is(err, errEmptyBody) && allowEmpty:
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge))
		return false
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	default:
		if err := json.Unmarshal(body, dst); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return false
		}
	}
	if err := validate.StructCtx(ctx, dst); err != nil {
		httpx.WriteError(ctx, w, validationError(err))
		return false
	}
	return true
}

func validationError(err error) httpx.Error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field())
	}
	first := fieldErrs[0]
	message := fmt.Sprintf("%s is invalid (%s)", first.Field(), first.Tag())
	if first.Tag() == "required" {
		message = first.Field() + " is required"
	}
	return httpx.NewError("invalid_request", message, http.StatusBadRequest).WithDetails(map[string]any{"fields": fields})
}

func pathParam(w http.ResponseWriter, r *http.Request, value, name string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", name+" is required", http.StatusBadRequest))
		return "", false
	}
	return value, true
}

func pageFromRequest(w http.ResponseWriter, r *http.Request) (domain.Pagination, bool) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return domain.Pagination{}, false
	}
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, true
}

func cleanReason(raw string) string {
	return textutil.PlainText(raw, maxReasonLength)
}
