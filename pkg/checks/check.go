// Package checks implements the beatmap set check engine.
//
// A check inspects a loaded set and reports issues at a severity level.
// Checks are grouped into categories; the Checker runs categories
// concurrently and reports progress per category.
package checks

import (
	"fmt"

	"github.com/mapset-verifier/server/pkg/beatmap"
)

// Level is the severity of an issue.
type Level int

// Issue levels, from least to most severe.
const (
	LevelInfo Level = iota
	LevelCheck
	LevelMinor
	LevelWarning
	LevelProblem
	LevelError
)

// String returns the display name of the level.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "Info"
	case LevelCheck:
		return "Check"
	case LevelMinor:
		return "Minor"
	case LevelWarning:
		return "Warning"
	case LevelProblem:
		return "Problem"
	case LevelError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Icon returns the icon name the client uses for the level.
func (l Level) Icon() string {
	switch l {
	case LevelProblem:
		return "cross"
	case LevelWarning:
		return "exclamation"
	case LevelMinor:
		return "minor"
	case LevelError:
		return "error"
	case LevelCheck:
		return "check"
	default:
		return "info"
	}
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Blocking reports whether issues at this level prevent ranking.
func (l Level) Blocking() bool {
	return l >= LevelProblem
}

// Issue is a single finding of a check.
type Issue struct {
	CheckID string `json:"check"`
	Level   Level  `json:"level"`
	Message string `json:"message"`
	// Beatmap is the difficulty version, empty for set-wide issues.
	Beatmap string `json:"beatmap,omitempty"`
}

// Template is a named issue format of a check.
type Template struct {
	Level  Level
	Format string
}

// Section is one titled block of check documentation.
type Section struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// Meta describes a check.
type Meta struct {
	ID       string
	Message  string
	Category string
	Author   string
	// General checks look at the set as a whole rather than per difficulty.
	General   bool
	Templates map[string]Template
	Docs      []Section
}

// Issue builds an issue from the named template.
func (m *Meta) Issue(template, version string, args ...any) Issue {
	tmpl, ok := m.Templates[template]
	if !ok {
		return Issue{
			CheckID: m.ID,
			Level:   LevelError,
			Message: fmt.Sprintf("unknown issue template %q", template),
			Beatmap: version,
		}
	}

	return Issue{
		CheckID: m.ID,
		Level:   tmpl.Level,
		Message: fmt.Sprintf(tmpl.Format, args...),
		Beatmap: version,
	}
}

// Check inspects a beatmap set.
type Check interface {
	Meta() Meta
	Run(set *beatmap.Set) []Issue
}

// funcCheck is a Check backed by a function.
type funcCheck struct {
	meta Meta
	run  func(m *Meta, set *beatmap.Set) []Issue
}

// New returns a check with the given metadata and body.
func New(meta Meta, run func(m *Meta, set *beatmap.Set) []Issue) Check {
	return &funcCheck{meta: meta, run: run}
}

func (c *funcCheck) Meta() Meta { return c.meta }

func (c *funcCheck) Run(set *beatmap.Set) []Issue { return c.run(&c.meta, set) }
