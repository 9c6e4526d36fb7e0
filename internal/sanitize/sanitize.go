// Package sanitize validates and normalizes untrusted field values before
// they are persisted.
//
// Text is plain-text, defense-in-depth cleaning. It does not parse HTML and
// its output must still be escaped by anything that renders it as markup.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rs/xid"

	"github.com/hypeshelf/hypeshelf/internal/apperror"
	"github.com/hypeshelf/hypeshelf/internal/model"
)

// Field limits.
const (
	TitleMinLength       = 2
	TitleMaxLength       = 200
	BlurbMinLength       = 10
	BlurbMaxLength       = 1000
	DisplayNameMinLength = 1
	DisplayNameMaxLength = 100
	URLMaxLength         = 2048
)

// Applied in order; Text repeats the whole pipeline until nothing changes so
// that removing one pattern cannot splice together another.
var stripPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[<>]`),
	regexp.MustCompile(`(?i)(javascript|data|vbscript|file):`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)style\s*=\s*["'][^"']*["']`),
	regexp.MustCompile(`[\x00-\x1F\x7F]`),
	regexp.MustCompile(`(?i);\s*(DROP|DELETE|INSERT|UPDATE|ALTER|CREATE|EXEC|EXECUTE)\s+`),
	regexp.MustCompile(`--|/\*|\*/`),
}

var whitespaceRun = regexp.MustCompile(`\s+`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Text trims value, enforces [minLen, maxLen] runes, and strips markup,
// script protocols, inline handlers, control characters and SQL comment
// patterns. label names the field in error messages ("Title").
func Text(value string, minLen, maxLen int, label string) (string, error) {
	field := strings.ToLower(label)
	trimmed := strings.TrimSpace(value)

	if err := checkLength(trimmed, minLen, maxLen, field, label); err != nil {
		return "", err
	}

	cleaned := trimmed
	for {
		next := cleaned
		for _, p := range stripPatterns {
			next = p.ReplaceAllString(next, "")
		}
		next = strings.TrimSpace(whitespaceRun.ReplaceAllString(next, " "))
		if next == cleaned {
			break
		}
		cleaned = next
	}

	// Stripping can shrink the value below the minimum.
	if n := utf8.RuneCountInString(cleaned); n < minLen {
		return "", apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be at least %d characters", label, minLen))
	}

	return cleaned, nil
}

func checkLength(s string, minLen, maxLen int, field, label string) error {
	n := utf8.RuneCountInString(s)
	if n < minLen {
		if n == 0 {
			return apperror.ValidationFailed(field, fmt.Sprintf("%s is required", label))
		}
		return apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be at least %d characters", label, minLen))
	}
	if n > maxLen {
		return apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be less than %d characters", label, maxLen))
	}
	return nil
}

// URL accepts only absolute http(s) URLs of at most URLMaxLength characters
// and returns the trimmed input unchanged otherwise.
func URL(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", apperror.ValidationFailed("link", "Link is required")
	}
	if len(trimmed) > URLMaxLength {
		return "", apperror.ValidationFailed("link",
			fmt.Sprintf("URL is too long (maximum %d characters)", URLMaxLength))
	}
	if err := getValidator().Var(trimmed, "http_url"); err != nil {
		return "", apperror.ValidationFailed("link", "Link must be a valid http:// or https:// URL")
	}
	return trimmed, nil
}

// Genre trims value and requires an exact, case-sensitive member of allowed.
func Genre(value string, allowed []model.Genre) (model.Genre, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", apperror.ValidationFailed("genre", "Genre is required")
	}
	for _, g := range allowed {
		if string(g) == trimmed {
			return g, nil
		}
	}

	names := make([]string, len(allowed))
	for i, g := range allowed {
		names[i] = string(g)
	}
	return "", apperror.ValidationFailed("genre",
		fmt.Sprintf("Genre must be one of: %s", strings.Join(names, ", ")))
}

// ImageRef validates an optional blob reference. Empty means "no image".
func ImageRef(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", nil
	}
	if _, err := xid.FromString(trimmed); err != nil {
		return "", apperror.ValidationFailed("imageRef", "Image reference is invalid")
	}
	return trimmed, nil
}

// DisplayName sanitizes an identity provider's display name.
func DisplayName(value string) (string, error) {
	return Text(value, DisplayNameMinLength, DisplayNameMaxLength, "User name")
}

// Recommendation validates every content field in fields, in the same way
// for create and update.
func Recommendation(fields model.RecommendationFields) (model.RecommendationFields, model.Genre, error) {
	var out model.RecommendationFields
	var err error

	if out.Title, err = Text(fields.Title, TitleMinLength, TitleMaxLength, "Title"); err != nil {
		return out, "", err
	}
	genre, err := Genre(fields.Genre, model.Genres)
	if err != nil {
		return out, "", err
	}
	out.Genre = string(genre)
	if out.Link, err = URL(fields.Link); err != nil {
		return out, "", err
	}
	if out.Blurb, err = Text(fields.Blurb, BlurbMinLength, BlurbMaxLength, "Blurb"); err != nil {
		return out, "", err
	}
	if out.ImageRef, err = ImageRef(fields.ImageRef); err != nil {
		return out, "", err
	}
	return out, genre, nil
}
