package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Tegath/kaleads/internal/domain"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // config key, e.g. "cascade.search_timeout"
	Value   any
	Message string
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the accepted log levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLedgerDrivers returns the accepted ledger drivers.
func ValidLedgerDrivers() []string {
	return []string{"sqlite", "memory"}
}

// ValidInspectModes returns the accepted inspection modes.
func ValidInspectModes() []string {
	return []string{"http", "browser"}
}

// Validate checks the Config and returns every problem found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateLog()...)
	errs = append(errs, c.validateLedger()...)
	errs = append(errs, c.validateServices()...)
	errs = append(errs, c.validateCascade()...)
	errs = append(errs, c.validateQuality()...)
	errs = append(errs, c.validateFeedback()...)
	return errs
}

func (c *Config) validateLog() []ValidationError {
	if !slices.Contains(ValidLogLevels(), c.Log.Level) {
		return []ValidationError{{
			Field:   "log.level",
			Value:   c.Log.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		}}
	}
	return nil
}

func (c *Config) validateLedger() []ValidationError {
	var errs []ValidationError
	if !slices.Contains(ValidLedgerDrivers(), c.Ledger.Driver) {
		errs = append(errs, ValidationError{
			Field:   "ledger.driver",
			Value:   c.Ledger.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLedgerDrivers(), ", ")),
		})
	}
	if c.Ledger.Driver == "sqlite" && strings.TrimSpace(c.Ledger.DataDir) == "" {
		errs = append(errs, ValidationError{Field: "ledger.data_dir", Value: c.Ledger.DataDir, Message: "is required for the sqlite driver"})
	}
	if c.Ledger.MaxHistory < 0 {
		errs = append(errs, ValidationError{Field: "ledger.max_history", Value: c.Ledger.MaxHistory, Message: "must be non-negative"})
	}
	return errs
}

func (c *Config) validateServices() []ValidationError {
	var errs []ValidationError
	if c.Search.Enabled {
		if c.Search.BaseURL == "" {
			errs = append(errs, ValidationError{Field: "search.base_url", Value: c.Search.BaseURL, Message: "is required when search is enabled"})
		}
		if c.Search.MaxResults <= 0 {
			errs = append(errs, ValidationError{Field: "search.max_results", Value: c.Search.MaxResults, Message: "must be positive"})
		}
	}
	if c.Inspect.Enabled && !slices.Contains(ValidInspectModes(), c.Inspect.Mode) {
		errs = append(errs, ValidationError{
			Field:   "inspect.mode",
			Value:   c.Inspect.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidInspectModes(), ", ")),
		})
	}
	if c.Inference.Enabled && c.Inference.APIKey == "" {
		errs = append(errs, ValidationError{Field: "inference.api_key", Value: "", Message: "is required when inference is enabled"})
	}
	if c.Inference.Temperature < 0 || c.Inference.Temperature > 2 {
		errs = append(errs, ValidationError{Field: "inference.temperature", Value: c.Inference.Temperature, Message: "must be between 0 and 2"})
	}
	return errs
}

func (c *Config) validateCascade() []ValidationError {
	var errs []ValidationError
	timeouts := []struct {
		key   string
		value any
		ok    bool
	}{
		{"cascade.context_timeout", c.Cascade.ContextTimeout, c.Cascade.ContextTimeout > 0},
		{"cascade.search_timeout", c.Cascade.SearchTimeout, c.Cascade.SearchTimeout > 0},
		{"cascade.inspect_timeout", c.Cascade.InspectTimeout, c.Cascade.InspectTimeout > 0},
		{"cascade.inference_timeout", c.Cascade.InferenceTimeout, c.Cascade.InferenceTimeout > 0},
	}
	for _, t := range timeouts {
		if !t.ok {
			errs = append(errs, ValidationError{Field: t.key, Value: t.value, Message: "must be positive"})
		}
	}
	if c.Orchestrator.Deadline < 0 {
		errs = append(errs, ValidationError{Field: "orchestrator.deadline", Value: c.Orchestrator.Deadline, Message: "must be non-negative"})
	}
	return errs
}

func (c *Config) validateQuality() []ValidationError {
	var errs []ValidationError
	check := func(section string, m map[string]int) {
		for k, v := range m {
			if err := domain.ValidateField(domain.FieldID(k)); err != nil {
				errs = append(errs, ValidationError{Field: section + "." + k, Value: k, Message: "unknown field"})
			}
			if v < 0 {
				errs = append(errs, ValidationError{Field: section + "." + k, Value: v, Message: "must be non-negative"})
			}
		}
	}
	check("quality.weights", c.Quality.Weights)
	check("quality.penalties", c.Quality.Penalties)
	slices.SortFunc(errs, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
	return errs
}

func (c *Config) validateFeedback() []ValidationError {
	if c.Feedback.Threshold <= 0 || c.Feedback.Threshold > 1 {
		return []ValidationError{{Field: "feedback.threshold", Value: c.Feedback.Threshold, Message: "must be in (0, 1]"}}
	}
	return nil
}
