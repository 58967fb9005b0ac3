// Package planner turns signals, carryover and an approval response into the
// decomposed plan of a shift.
package planner

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/josephgoksu/ShiftWing/models"
)

// validate is a singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validation for non-empty trimmed strings
	_ = validate.RegisterValidation("nonempty", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		return s != ""
	})
}

// DecompositionPolicy bounds the size of every step and task. A plan that
// breaks any bound is rejected before it reaches the plan store.
type DecompositionPolicy struct {
	// MaxSubActionsPerStep caps the sub-actions packed into one step.
	MaxSubActionsPerStep int `json:"max_sub_actions_per_step" yaml:"maxSubActionsPerStep" validate:"gte=1,lte=20"`

	// MaxStepsPerTask caps the steps of one task. Larger tasks are split.
	MaxStepsPerTask int `json:"max_steps_per_task" yaml:"maxStepsPerTask" validate:"gte=1,lte=50"`

	// MaxStepMinutes caps the estimated duration of one step.
	MaxStepMinutes int `json:"max_step_minutes" yaml:"maxStepMinutes" validate:"gte=1"`
}

// Validate checks the policy bounds themselves.
func (p DecompositionPolicy) Validate() ValidationResult {
	return validateStruct(p)
}

// SubAction is one concrete action inside a task.
type SubAction struct {
	// Description says what to do, in words a worker can act on alone.
	Description string `json:"description" yaml:"description" validate:"required,nonempty,max=500"`

	// EstimatedMinutes is the expected effort. Zero counts as one minute.
	EstimatedMinutes int `json:"estimated_minutes,omitempty" yaml:"estimatedMinutes,omitempty" validate:"gte=0"`
}

// TaskProposal is a unit of work offered to the planner, either by the
// signal source or by an approver adding or modifying a task.
type TaskProposal struct {
	// ID is optional; the planner assigns one when empty.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	Title string      `json:"title" yaml:"title" validate:"required,nonempty,min=3,max=200"`
	Tier  models.Tier `json:"tier" yaml:"tier" validate:"required,oneof=P1 P2 P3"`

	// Context is prepended to every step description so a step can be worked
	// on without the rest of the task.
	Context string `json:"context,omitempty" yaml:"context,omitempty"`

	SubActions []SubAction `json:"sub_actions" yaml:"subActions" validate:"required,min=1,dive"`

	// DependsOn lists task ids whose last step must be done first.
	DependsOn []string `json:"depends_on,omitempty" yaml:"dependsOn,omitempty" validate:"dive,required"`

	Destructive       bool `json:"destructive,omitempty" yaml:"destructive,omitempty"`
	ExternallyVisible bool `json:"externally_visible,omitempty" yaml:"externallyVisible,omitempty"`
}

// Validate checks the proposal against the schema rules.
func (t *TaskProposal) Validate() ValidationResult {
	return validateStruct(t)
}

// ValidationError provides structured error information for schema validation failures
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

// ValidationResult contains the result of schema validation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func (r *ValidationResult) add(field, tag, format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Tag: tag, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) merge(other ValidationResult) {
	if other.Valid {
		return
	}
	r.Valid = false
	r.Errors = append(r.Errors, other.Errors...)
}

// Err returns the result as an error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDecompositionRejected, r.ErrorSummary())
}

// validateStruct is a helper that validates any struct and returns ValidationResult
func validateStruct(s any) ValidationResult {
	err := validate.Struct(s)
	if err == nil {
		return ValidationResult{Valid: true}
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationResult{Errors: []ValidationError{{Message: err.Error()}}}
	}
	var errors []ValidationError
	for _, err := range validationErrs {
		errors = append(errors, ValidationError{
			Field:   err.Field(),
			Tag:     err.Tag(),
			Value:   err.Value(),
			Message: formatValidationError(err),
		})
	}

	return ValidationResult{
		Valid:  false,
		Errors: errors,
	}
}

// formatValidationError creates a human-readable error message
func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "nonempty":
		return fmt.Sprintf("%s cannot be empty or whitespace", err.Field())
	case "min":
		if err.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", err.Field(), err.Param())
		}
		return fmt.Sprintf("%s must have at least %s items", err.Field(), err.Param())
	case "max":
		if err.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		}
		return fmt.Sprintf("%s must have at most %s items", err.Field(), err.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s must be %s %s", err.Field(), map[string]string{"gte": "at least", "lte": "at most"}[err.Tag()], err.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", err.Field(), err.Tag())
	}
}

// ErrorSummary returns a single string summarizing all validation errors
func (r ValidationResult) ErrorSummary() string {
	if r.Valid {
		return ""
	}
	var parts []string
	for _, e := range r.Errors {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, "; ")
}
