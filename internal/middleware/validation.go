package middleware

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
)

// FieldError is one entry of a 400 response's errors array.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldMessenger lets a request type replace the generic per-field
// messages, keyed by JSON field name.
type FieldMessenger interface {
	FieldMessages() map[string]string
}

type bodyKey struct{}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// ValidateJSON decodes the request body into T and validates it against
// its `validate` tags. Valid bodies are stored for BodyFromContext; invalid
// ones are answered with 400 and never reach the handler.
func ValidateJSON[T any]() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := new(T)

			if err := json.NewDecoder(r.Body).Decode(body); err != nil && !errors.Is(err, io.EOF) {
				if IsBodyTooLarge(err) {
					writeMessage(w, http.StatusRequestEntityTooLarge, "Request body too large")
					return
				}
				var typeErr *json.UnmarshalTypeError
				if errors.As(err, &typeErr) && typeErr.Field != "" {
					writeValidationErrors(w, []FieldError{fieldError(body, topLevelField(typeErr.Field), "")})
					return
				}
				writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
				return
			}

			if errs := validateBody(body); len(errs) > 0 {
				writeValidationErrors(w, errs)
				return
			}

			ctx := context.WithValue(r.Context(), bodyKey{}, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BodyFromContext returns the body validated by ValidateJSON[T].
func BodyFromContext[T any](ctx context.Context) (*T, bool) {
	body, ok := ctx.Value(bodyKey{}).(*T)
	return body, ok
}

func validateBody(body any) []FieldError {
	err := validate.Struct(body)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "body", Message: "Invalid request body"}}
	}

	seen := make(map[string]bool, len(verrs))
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := topLevelField(fe.Field())
		if seen[field] {
			continue
		}
		seen[field] = true
		out = append(out, fieldError(body, field, fe.Tag()))
	}
	return out
}

func fieldError(body any, field, tag string) FieldError {
	if m, ok := body.(FieldMessenger); ok {
		if msg, ok := m.FieldMessages()[field]; ok {
			return FieldError{Field: field, Message: msg}
		}
	}
	if tag == "required" {
		return FieldError{Field: field, Message: fmt.Sprintf("%s is required", field)}
	}
	return FieldError{Field: field, Message: fmt.Sprintf("%s is invalid", field)}
}

// topLevelField trims "features[3]" or "a.b" down to the JSON field the
// caller sent.
func topLevelField(field string) string {
	if i := strings.IndexAny(field, ".["); i > 0 {
		return field[:i]
	}
	return field
}

func writeValidationErrors(w http.ResponseWriter, errs []FieldError) {
	writeError(w, http.StatusBadRequest, errorBody{
		Message: errs[0].Message,
		Errors:  errs,
	})
}
