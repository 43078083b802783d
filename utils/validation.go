package utils

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Inbound request bounds
const (
	MaxQueryLength  = 100
	MaxTickers      = 50
	MaxTickerLength = 10
)

var (
	// validate is the singleton validator instance
	validate *validator.Validate

	// tickerRegex matches exchange symbols such as BRK.A or RDS-B
	tickerRegex = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)
)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = validate.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
		return tickerRegex.MatchString(fl.Field().String())
	})
}

// SearchRequest is the validated search input
type SearchRequest struct {
	Query string `json:"query" validate:"required,max=100"`
}

// TickerBatch is the validated ticker list of news and info requests
type TickerBatch struct {
	Tickers []string `json:"tickers" validate:"required,min=1,max=50,dive,required,max=10,ticker"`
}

// ValidateStruct validates a struct using go-playground/validator
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError wraps validation errors with structured details
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError from validator.ValidationErrors
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string)
	for _, err := range errs {
		field := err.Field()
		tag := err.Tag()

		switch tag {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "min":
			fields[field] = fmt.Sprintf("%s must have at least %s entries", field, err.Param())
		case "max":
			if err.Kind() == reflect.String {
				fields[field] = fmt.Sprintf("%s must be at most %s characters", field, err.Param())
			} else {
				fields[field] = fmt.Sprintf("%s must have at most %s entries", field, err.Param())
			}
		case "ticker":
			fields[field] = fmt.Sprintf("%s must contain only letters, digits, '.' or '-'", field)
		default:
			fields[field] = fmt.Sprintf("%s validation failed on '%s' tag", field, tag)
		}
	}

	return &ValidationError{
		Message: "Validation failed",
		Fields:  fields,
	}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// GetValidationFields extracts field errors from a ValidationError
func GetValidationFields(err error) map[string]string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}

// NormalizeQuery trims a search query and checks its length
func NormalizeQuery(query string) (string, error) {
	req := SearchRequest{Query: strings.TrimSpace(query)}
	if err := ValidateStruct(&req); err != nil {
		return "", err
	}
	return req.Query, nil
}

// NormalizeTickers trims and upper-cases every symbol, validates the batch
// and drops duplicates, keeping the first occurrence.
func NormalizeTickers(raw []string) ([]string, error) {
	batch := TickerBatch{Tickers: make([]string, len(raw))}
	for i, t := range raw {
		batch.Tickers[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	if err := ValidateStruct(&batch); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(batch.Tickers))
	out := make([]string, 0, len(batch.Tickers))
	for _, t := range batch.Tickers {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

// ValidateUUID validates that a string is a valid UUID
func ValidateUUID(s string) error {
	if _, err := uuid.Parse(s); err != nil {
		return fmt.Errorf("invalid UUID format: %s", s)
	}
	return nil
}
