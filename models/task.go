package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Tier is the priority tier of a task. P1 is the most urgent.
type Tier string

const (
	TierP1 Tier = "P1"
	TierP2 Tier = "P2"
	TierP3 Tier = "P3"
)

// Rank orders tiers for selection: lower runs first. Unknown tiers sort last.
func (t Tier) Rank() int {
	switch t {
	case TierP1:
		return 1
	case TierP2:
		return 2
	case TierP3:
		return 3
	default:
		return 4
	}
}

// Task groups the ordered steps produced from one unit of planned work.
type Task struct {
	ID          string   `json:"id" yaml:"id" toml:"id" validate:"required"`
	Title       string   `json:"title" yaml:"title" toml:"title" validate:"required,min=3,max=255"`
	Tier        Tier     `json:"tier" yaml:"tier" toml:"tier" validate:"required,oneof=P1 P2 P3"`
	Order       int      `json:"order" yaml:"order" toml:"order" validate:"gte=0"`
	StepIDs     []string `json:"stepIds" yaml:"stepIds" toml:"stepIds" validate:"dive,required"`
	Carryover   bool     `json:"carryover,omitempty" yaml:"carryover,omitempty" toml:"carryover,omitempty"`
	SourceShift string   `json:"sourceShift,omitempty" yaml:"sourceShift,omitempty" toml:"sourceShift,omitempty"`
}

// ErrInvalidTransition is returned when a status change is not in the
// allowed transition table.
var ErrInvalidTransition = errors.New("invalid status transition")

// global validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterStructValidation(validateStepClaim, Step{})
}

// ValidateStruct performs validation on any struct that has validation tags.
func ValidateStruct(s interface{}) error {
	if validate == nil {
		validate = validator.New()
	}
	err := validate.Struct(s)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, fmt.Sprintf("Validation failed on field '%s': rule '%s' (value: '%v')", e.StructNamespace(), e.Tag(), e.Value()))
		}
		return fmt.Errorf("%s", strings.Join(errorMessages, "; "))
	}
	return nil
}

// validateStepClaim enforces that claim metadata is present exactly when a
// step is claimed.
func validateStepClaim(sl validator.StructLevel) {
	step := sl.Current().Interface().(Step)
	claimed := step.Status == StepClaimed
	if claimed && step.ClaimedAt == nil {
		sl.ReportError(step.ClaimedAt, "ClaimedAt", "claimedAt", "claim_required", "")
	}
	if claimed && step.ClaimedBy == "" {
		sl.ReportError(step.ClaimedBy, "ClaimedBy", "claimedBy", "claim_required", "")
	}
	if !claimed && step.ClaimedAt != nil {
		sl.ReportError(step.ClaimedAt, "ClaimedAt", "claimedAt", "claim_forbidden", "")
	}
}
