package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration against its struct tags. Every
// violation is reported, joined into a single error.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fieldError(fe))
	}
	return errors.Join(errs...)
}

// fieldError renders a validation failure using the config key path, e.g.
// "engine.workers: must be >= 1 (got 0)".
func fieldError(fe validator.FieldError) error {
	key := configKey(fe.Namespace())

	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Errorf("%s: is required", key)
	case "oneof":
		return fmt.Errorf("%s: must be one of [%s] (got %v)", key, fe.Param(), fe.Value())
	case "gt":
		return fmt.Errorf("%s: must be > %s (got %v)", key, fe.Param(), fe.Value())
	case "gte", "min":
		return fmt.Errorf("%s: must be >= %s (got %v)", key, fe.Param(), fe.Value())
	case "lte", "max":
		return fmt.Errorf("%s: must be <= %s (got %v)", key, fe.Param(), fe.Value())
	default:
		return fmt.Errorf("%s: failed %q validation (got %v)", key, fe.Tag(), fe.Value())
	}
}

// configKey maps a validator namespace ("Config.Engine.QueueSize") to the
// config key ("engine.queue_size").
func configKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snakeCase(p)
	}
	return strings.Join(parts, ".")
}

func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
