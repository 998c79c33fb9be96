package cascade

import (
	"errors"
	"fmt"

	"github.com/Tegath/kaleads/internal/domain"
)

// ConfigError reports a cascade that cannot run at all. It is an
// authoring bug, never a runtime condition, and aborts the whole
// orchestration run.
type ConfigError struct {
	Resolver domain.FieldID
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("resolver %s misconfigured: %s", e.Resolver, e.Reason)
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Validate checks a strategy list for field. Rules:
//   - at least one spec and no more than MaxFallbackLevel+1;
//   - the last spec is a Fallback tagged generic, no other spec is generic;
//   - every spec has a strategy, a known source and a positive timeout
//     (the terminal one excepted);
//   - base confidences, when set, sit inside their level's band.
func Validate(field domain.FieldID, specs []Spec) error {
	n := len(specs)
	if n == 0 {
		return &ConfigError{Resolver: field, Reason: "empty strategy list"}
	}
	if n > domain.MaxFallbackLevel+1 {
		return &ConfigError{Resolver: field, Reason: fmt.Sprintf("%d strategies, at most %d allowed", n, domain.MaxFallbackLevel+1)}
	}

	for i, spec := range specs {
		if spec.Strategy == nil {
			return &ConfigError{Resolver: field, Reason: fmt.Sprintf("strategy %d is nil", i)}
		}
		if err := domain.ValidateSource(spec.Source); err != nil {
			return &ConfigError{Resolver: field, Reason: fmt.Sprintf("strategy %q: %v", spec.Strategy.Name(), err)}
		}

		terminal := i == n-1
		if terminal {
			if _, ok := spec.Strategy.(Fallback); !ok {
				return &ConfigError{Resolver: field, Reason: fmt.Sprintf("last strategy %q is not a fallback", spec.Strategy.Name())}
			}
			if spec.Source != domain.SourceGeneric {
				return &ConfigError{Resolver: field, Reason: fmt.Sprintf("last strategy %q must be tagged generic", spec.Strategy.Name())}
			}
		} else {
			if spec.Source == domain.SourceGeneric {
				return &ConfigError{Resolver: field, Reason: fmt.Sprintf("generic strategy %q before the end of the cascade", spec.Strategy.Name())}
			}
			if spec.Timeout <= 0 {
				return &ConfigError{Resolver: field, Reason: fmt.Sprintf("strategy %q has no timeout", spec.Strategy.Name())}
			}
		}

		if spec.BaseConfidence != 0 {
			level := LevelOf(i, n)
			lo, hi := domain.ConfidenceBand(level)
			if spec.BaseConfidence < lo || spec.BaseConfidence > hi {
				return &ConfigError{Resolver: field, Reason: fmt.Sprintf(
					"strategy %q base confidence %d outside level %d band [%d,%d]",
					spec.Strategy.Name(), spec.BaseConfidence, level, lo, hi)}
			}
		}
	}
	return nil
}
