package schema

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

// sourceIDPattern bounds what a vendor-native identifier may look like when it
// arrives in a write request. Vendors use numeric ids, UUIDs and opaque
// tokens; anything outside this set is rejected before any mutation.
var sourceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// Validator validates canonical alerts and write-operation inputs.
type Validator struct {
	validate  *validator.Validate
	maxFuture time.Duration
}

// ValidatorConfig holds configuration for the validator.
type ValidatorConfig struct {
	MaxFuture time.Duration
}

// DefaultValidatorConfig returns the default validator configuration.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxFuture: 5 * time.Minute,
	}
}

// NewValidator creates a new Validator with default configuration.
func NewValidator() *Validator {
	return NewValidatorWithConfig(DefaultValidatorConfig())
}

// NewValidatorWithConfig creates a new Validator with the specified configuration.
func NewValidatorWithConfig(cfg ValidatorConfig) *Validator {
	v := validator.New()

	v.RegisterValidation("source_id", func(fl validator.FieldLevel) bool {
		return sourceIDPattern.MatchString(fl.Field().String())
	})

	return &Validator{
		validate:  v,
		maxFuture: cfg.MaxFuture,
	}
}

// ValidateAlert validates a canonical alert.
func (v *Validator) ValidateAlert(alert *Alert) error {
	if err := v.validate.Struct(alert); err != nil {
		return fmt.Errorf("alert validation failed: %w", err)
	}

	if !alert.Source.KnownSource() {
		return fmt.Errorf("unknown source %q", alert.Source)
	}

	if alert.DetectedAt.After(time.Now().UTC().Add(v.maxFuture)) {
		return fmt.Errorf("detected_at in future: %v", alert.DetectedAt)
	}

	return nil
}

// Struct validates an arbitrary tagged struct, used for write commands.
func (v *Validator) Struct(s any) error {
	return v.validate.Struct(s)
}

// ValidSourceID checks if a vendor-native identifier is well-formed.
func ValidSourceID(id string) bool {
	return sourceIDPattern.MatchString(id)
}
