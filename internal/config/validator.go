package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers Celestine-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// key_hash: validates "sha256:<hex>" or "argon2id:<encoded>"
	if err := v.RegisterValidation("key_hash", validateKeyHash); err != nil {
		return fmt.Errorf("failed to register key_hash validator: %w", err)
	}
	return nil
}

// validateKeyHash validates the API key hash field.
// Valid values: "sha256:<hex>" or "argon2id:$argon2id$..."
func validateKeyHash(fl validator.FieldLevel) bool {
	hash := fl.Field().String()

	if rest, ok := strings.CutPrefix(hash, "sha256:"); ok {
		return len(rest) == 64
	}
	if rest, ok := strings.CutPrefix(hash, "argon2id:"); ok {
		return strings.HasPrefix(rest, "$argon2id$")
	}
	return false
}

// Validate validates the Config using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateDurations(); err != nil {
		return err
	}

	if err := c.validateIdentityReferences(); err != nil {
		return err
	}

	return nil
}

// validateDurations ensures all duration-typed string fields parse.
func (c *Config) validateDurations() error {
	fields := map[string]string{
		"generator.timeout":         c.Generator.Timeout,
		"rate_limit.window":         c.RateLimit.Window,
		"rate_limit.sweep_interval": c.RateLimit.SweepInterval,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q", name, value)
		}
		if d <= 0 {
			return fmt.Errorf("%s: duration must be positive", name)
		}
	}
	return nil
}

// validateIdentityReferences ensures all API key identity_id values reference valid identities.
func (c *Config) validateIdentityReferences() error {
	knownIdentities := make(map[string]struct{}, len(c.Auth.Identities))
	for _, identity := range c.Auth.Identities {
		knownIdentities[identity.ID] = struct{}{}
	}

	for i, apiKey := range c.Auth.APIKeys {
		if _, exists := knownIdentities[apiKey.IdentityID]; !exists {
			return fmt.Errorf("api_keys[%d]: references unknown identity_id: %s", i, apiKey.IdentityID)
		}
	}

	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			msg := formatSingleValidationError(e)
			messages = append(messages, msg)
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "key_hash":
		return fmt.Sprintf("%s must be 'sha256:<hex>' or 'argon2id:<encoded>'", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
