package checks

import (
	"errors"
	"fmt"
	"slices"

	"github.com/mapset-verifier/server/pkg/levenshtein"
)

// Sentinel errors for the registry.
var (
	ErrUnknownCheck   = errors.New("unknown check")
	ErrDuplicateCheck = errors.New("duplicate check")
	ErrCatalog        = errors.New("check documentation catalog")
)

// Registry holds the checks known to the engine.
type Registry struct {
	checks     []Check
	byMessage  map[string]Check
	categories []string
}

// NewRegistry indexes checks by id and message. Both must be unique.
func NewRegistry(checks ...Check) (*Registry, error) {
	r := &Registry{byMessage: make(map[string]Check, len(checks))}
	ids := make(map[string]bool, len(checks))

	for _, c := range checks {
		meta := c.Meta()

		if ids[meta.ID] {
			return nil, fmt.Errorf("%w: id %q", ErrDuplicateCheck, meta.ID)
		}

		if _, taken := r.byMessage[meta.Message]; taken {
			return nil, fmt.Errorf("%w: message %q", ErrDuplicateCheck, meta.Message)
		}

		ids[meta.ID] = true
		r.byMessage[meta.Message] = c
		r.checks = append(r.checks, c)

		if !slices.Contains(r.categories, meta.Category) {
			r.categories = append(r.categories, meta.Category)
		}
	}

	return r, nil
}

// Default returns a registry of the built-in checks.
func Default() (*Registry, error) {
	builtin, err := Builtin()
	if err != nil {
		return nil, err
	}

	return NewRegistry(builtin...)
}

// Checks returns all checks in registration order.
func (r *Registry) Checks() []Check {
	return slices.Clone(r.checks)
}

// Categories returns the check categories in registration order.
func (r *Registry) Categories() []string {
	return slices.Clone(r.categories)
}

// InCategory returns the checks of one category.
func (r *Registry) InCategory(category string) []Check {
	var out []Check

	for _, c := range r.checks {
		if c.Meta().Category == category {
			out = append(out, c)
		}
	}

	return out
}

// ByMessage finds the check whose message is msg.
func (r *Registry) ByMessage(msg string) (Check, error) {
	c, ok := r.byMessage[msg]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCheck, msg)
	}

	return c, nil
}

// Suggest returns the registered message closest to msg, for misspelled
// overlay requests.
func (r *Registry) Suggest(msg string) (string, bool) {
	messages := make([]string, 0, len(r.checks))
	for _, c := range r.checks {
		messages = append(messages, c.Meta().Message)
	}

	return levenshtein.Closest(msg, messages)
}
