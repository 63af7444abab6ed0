package application

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-hydra/internal/domain"
)

// RegisterConfigValidators registers Hydra's custom validation tags with v:
//   - modelformat: "provider/model" or "provider/model@version"
//   - scheme: a known leaderboard scheme name
//   - decision: hire, reject or retest
//
// RegisterConfigValidators returns an error if any registration fails.
func RegisterConfigValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("modelformat", validateModelFormat); err != nil {
		return fmt.Errorf("failed to register modelformat validator: %w", err)
	}
	if err := v.RegisterValidation("scheme", validateScheme); err != nil {
		return fmt.Errorf("failed to register scheme validator: %w", err)
	}
	if err := v.RegisterValidation("decision", validateDecision); err != nil {
		return fmt.Errorf("failed to register decision validator: %w", err)
	}
	return nil
}

// newValidator returns a validator with the custom tags registered.
func newValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		// Registration only fails for empty tags or nil funcs.
		panic(err)
	}
	return v
}

// validateModelFormat validates that a model string matches the required format:
// ^[a-z0-9]+/[A-Za-z0-9\-_\.]+(@[A-Za-z0-9\-_\.]+)?$
// This ensures the model follows the pattern provider/model or provider/model@version.
func validateModelFormat(fl validator.FieldLevel) bool {
	model := fl.Field().String()

	if model == "" {
		return true
	}

	provider, name, ok := strings.Cut(model, "/")
	if !ok || provider == "" || name == "" {
		return false
	}
	for _, ch := range provider {
		if (ch < 'a' || ch > 'z') && (ch < '0' || ch > '9') {
			return false
		}
	}
	if base, version, hasVersion := strings.Cut(name, "@"); hasVersion {
		return base != "" && version != ""
	}
	return true
}

// validateScheme accepts an empty value or one of domain.Schemes.
func validateScheme(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || domain.Scheme(s).IsValid()
}

// validateDecision accepts hire, reject or retest in any case.
func validateDecision(fl validator.FieldLevel) bool {
	_, err := domain.ParseDecision(fl.Field().String())
	return err == nil
}
