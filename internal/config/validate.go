package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrInvalidTieBreak indicates an unknown or repeated resolution rule.
	ErrInvalidTieBreak = errors.New("invalid tie-break order")

	// ErrInvalidWorkers indicates a negative worker count.
	ErrInvalidWorkers = errors.New("invalid worker count")

	// ErrInvalidDebounce indicates a non-positive watch debounce.
	ErrInvalidDebounce = errors.New("invalid watch debounce")

	// ErrInvalidPattern indicates an ignore glob that does not compile.
	ErrInvalidPattern = errors.New("invalid ignore pattern")

	// ErrInvalidLimit indicates a non-positive search limit.
	ErrInvalidLimit = errors.New("invalid search limit")

	// ErrInvalidCacheSettings indicates invalid cache configuration.
	ErrInvalidCacheSettings = errors.New("invalid cache settings")
)

var tieBreakRules = map[string]bool{
	"same-module":   true,
	"same-file":     true,
	"lexicographic": true,
}

// Validate checks that the configuration is valid and complete.
// Every problem is reported, not just the first.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Index.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: workers cannot be negative, got %d", ErrInvalidWorkers, cfg.Index.Workers))
	}
	if cfg.Index.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("%w: max_file_size cannot be negative, got %d", ErrInvalidCacheSettings, cfg.Index.MaxFileSize))
	}
	for _, p := range cfg.Index.Ignore {
		if _, err := glob.Compile(p, '/'); err != nil {
			errs = append(errs, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err))
		}
	}

	errs = append(errs, validateTieBreak(cfg.Resolve.TieBreak)...)

	if cfg.Watch.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("%w: must be positive, got %s", ErrInvalidDebounce, cfg.Watch.Debounce))
	}
	if cfg.Search.Limit <= 0 {
		errs = append(errs, fmt.Errorf("%w: must be positive, got %d", ErrInvalidLimit, cfg.Search.Limit))
	}
	if cfg.Cache.MaxAgeDays < 0 {
		errs = append(errs, fmt.Errorf("%w: max_age_days cannot be negative, got %d", ErrInvalidCacheSettings, cfg.Cache.MaxAgeDays))
	}

	return joinErrors(errs)
}

func validateTieBreak(order []string) []error {
	var errs []error
	if len(order) == 0 {
		return []error{fmt.Errorf("%w: at least one rule required", ErrInvalidTieBreak)}
	}
	seen := map[string]bool{}
	for _, rule := range order {
		if !tieBreakRules[rule] {
			errs = append(errs, fmt.Errorf("%w: unknown rule %q (valid: same-module, same-file, lexicographic)", ErrInvalidTieBreak, rule))
			continue
		}
		if seen[rule] {
			errs = append(errs, fmt.Errorf("%w: rule %q listed twice", ErrInvalidTieBreak, rule))
		}
		seen[rule] = true
	}
	return errs
}

// joinErrors combines multiple errors into a single error with clear
// formatting. errors.Is still matches each wrapped sentinel.
func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}

	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return &multiError{errs: errs, msg: "validation failed:\n  - " + strings.Join(msgs, "\n  - ")}
}

type multiError struct {
	errs []error
	msg  string
}

func (m *multiError) Error() string   { return m.msg }
func (m *multiError) Unwrap() []error { return m.errs }
