package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/hypeshelf/hypeshelf/internal/apperror"
)

// maxJSONBody bounds every JSON request body.
const maxJSONBody = 64 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a single JSON object into dst and checks its shape with
// the validate struct tags. Content rules (lengths after trimming, allowed
// genres, URL schemes) stay with the services.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("", "Invalid JSON body")
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return fmt.Errorf("handler: validating request: %w", err)
	}
	return nil
}

func fieldError(fe validator.FieldError) *apperror.AppError {
	field := fe.Field()
	label := strings.ToUpper(field[:1]) + field[1:]
	switch fe.Tag() {
	case "required":
		return apperror.ValidationFailed(field, label+" is required")
	case "max":
		return apperror.ValidationFailed(field, label+" must be at most "+fe.Param()+" characters")
	default:
		return apperror.ValidationFailed(field, label+" is invalid")
	}
}

// recommendationRequest is the body of create and update. The services
// trim, strip and length-check every field.
type recommendationRequest struct {
	Title    string `json:"title" validate:"required,max=1000"`
	Genre    string `json:"genre" validate:"required,max=50"`
	Link     string `json:"link" validate:"required,max=4096"`
	Blurb    string `json:"blurb" validate:"required,max=4000"`
	ImageRef string `json:"imageRef" validate:"omitempty,max=64"`
}

type staffPickRequest struct {
	IsStaffPick *bool `json:"isStaffPick" validate:"required"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}
