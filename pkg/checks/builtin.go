package checks

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/mapset-verifier/server/pkg/beatmap"
)

// Check categories.
const (
	CategoryResources = "Resources"
	CategoryMetadata  = "Metadata"
	CategorySettings  = "Settings"
	CategoryCompose   = "Compose"
)

const (
	builtinAuthor   = "mapsetverifier"
	settingMin      = 0.0
	settingMax      = 10.0
	settingDecimals = 10
	decimalEpsilon  = 1e-9
	minDrainMs      = 30_000
)

// Builtin returns the built-in checks with their documentation attached.
func Builtin() ([]Check, error) {
	docs, err := loadCatalog()
	if err != nil {
		return nil, err
	}

	builtin := []Check{
		audioMissing(),
		background(),
		metadataConsistency(),
		difficultySettings(),
		emptyDifficulty(),
		drainTime(),
	}

	for _, c := range builtin {
		fc, ok := c.(*funcCheck)
		if !ok {
			continue
		}

		sections, found := docs[fc.meta.ID]
		if !found {
			return nil, fmt.Errorf("%w: no documentation for %q", ErrCatalog, fc.meta.ID)
		}

		fc.meta.Docs = sections
	}

	return builtin, nil
}

func audioMissing() Check {
	return New(Meta{
		ID:       "audio-missing",
		Message:  "Missing audio file.",
		Category: CategoryResources,
		Author:   builtinAuthor,
		General:  true,
		Templates: map[string]Template{
			"unset":   {Level: LevelProblem, Format: "\"%s\" has no audio file set."},
			"missing": {Level: LevelProblem, Format: "\"%s\" is missing, used by %s."},
		},
	}, func(m *Meta, set *beatmap.Set) []Issue {
		var issues []Issue

		missing := map[string][]string{}
		for _, bm := range set.Beatmaps {
			name := bm.General.AudioFilename

			switch {
			case name == "":
				issues = append(issues, m.Issue("unset", "", bm.Metadata.Version))
			case !set.HasFile(name):
				missing[name] = append(missing[name], bm.Metadata.Version)
			}
		}

		for _, name := range sortedKeys(missing) {
			issues = append(issues, m.Issue("missing", "", name, strings.Join(missing[name], ", ")))
		}

		return issues
	})
}

func background() Check {
	return New(Meta{
		ID:       "background",
		Message:  "Missing background image.",
		Category: CategoryResources,
		Author:   builtinAuthor,
		General:  true,
		Templates: map[string]Template{
			"unset":   {Level: LevelWarning, Format: "\"%s\" has no background image."},
			"missing": {Level: LevelProblem, Format: "\"%s\" is missing, used by %s."},
		},
	}, func(m *Meta, set *beatmap.Set) []Issue {
		var issues []Issue

		missing := map[string][]string{}
		for _, bm := range set.Beatmaps {
			switch {
			case bm.Background == "":
				issues = append(issues, m.Issue("unset", "", bm.Metadata.Version))
			case !set.HasFile(bm.Background):
				missing[bm.Background] = append(missing[bm.Background], bm.Metadata.Version)
			}
		}

		for _, name := range sortedKeys(missing) {
			issues = append(issues, m.Issue("missing", "", name, strings.Join(missing[name], ", ")))
		}

		return issues
	})
}

func metadataConsistency() Check {
	fields := []struct {
		name string
		get  func(beatmap.Metadata) string
	}{
		{"Artist", func(md beatmap.Metadata) string { return md.Artist }},
		{"Title", func(md beatmap.Metadata) string { return md.Title }},
		{"Creator", func(md beatmap.Metadata) string { return md.Creator }},
		{"Source", func(md beatmap.Metadata) string { return md.Source }},
		{"Tags", func(md beatmap.Metadata) string { return md.Tags }},
	}

	return New(Meta{
		ID:       "metadata-consistency",
		Message:  "Inconsistent metadata.",
		Category: CategoryMetadata,
		Author:   builtinAuthor,
		General:  true,
		Templates: map[string]Template{
			"inconsistent": {Level: LevelProblem, Format: "Inconsistent %s field: \"%s\" in %s, \"%s\" in %s."},
		},
	}, func(m *Meta, set *beatmap.Set) []Issue {
		if len(set.Beatmaps) < 2 {
			return nil
		}

		var issues []Issue

		ref := set.Beatmaps[0]
		for _, f := range fields {
			want := f.get(ref.Metadata)

			for _, bm := range set.Beatmaps[1:] {
				got := f.get(bm.Metadata)
				if got != want {
					issues = append(issues, m.Issue("inconsistent", "",
						f.name, want, ref.Metadata.Version, got, bm.Metadata.Version))
				}
			}
		}

		return issues
	})
}

func difficultySettings() Check {
	return New(Meta{
		ID:       "difficulty-settings",
		Message:  "Difficulty settings out of range.",
		Category: CategorySettings,
		Author:   builtinAuthor,
		Templates: map[string]Template{
			"range":    {Level: LevelProblem, Format: "%s %g is outside the 0 to 10 range."},
			"decimals": {Level: LevelMinor, Format: "%s %g has more than one decimal."},
		},
	}, func(m *Meta, set *beatmap.Set) []Issue {
		var issues []Issue

		for _, bm := range set.Beatmaps {
			d := bm.Difficulty
			settings := []struct {
				name  string
				value float64
			}{
				{"HP Drain", d.HPDrain},
				{"Circle Size", d.CircleSize},
				{"Overall Difficulty", d.OverallDifficulty},
				{"Approach Rate", d.ApproachRate},
			}

			for _, s := range settings {
				if s.value < settingMin || s.value > settingMax {
					issues = append(issues, m.Issue("range", bm.Metadata.Version, s.name, s.value))

					continue
				}

				scaled := s.value * settingDecimals
				if math.Abs(scaled-math.Round(scaled)) > decimalEpsilon {
					issues = append(issues, m.Issue("decimals", bm.Metadata.Version, s.name, s.value))
				}
			}
		}

		return issues
	})
}

func emptyDifficulty() Check {
	return New(Meta{
		ID:       "empty-difficulty",
		Message:  "Difficulty has no hit objects.",
		Category: CategoryCompose,
		Author:   builtinAuthor,
		Templates: map[string]Template{
			"empty": {Level: LevelProblem, Format: "No hit objects."},
		},
	}, func(m *Meta, set *beatmap.Set) []Issue {
		var issues []Issue

		for _, bm := range set.Beatmaps {
			if len(bm.HitObjects) == 0 {
				issues = append(issues, m.Issue("empty", bm.Metadata.Version))
			}
		}

		return issues
	})
}

func drainTime() Check {
	return New(Meta{
		ID:       "drain-time",
		Message:  "Drain time too short.",
		Category: CategoryCompose,
		Author:   builtinAuthor,
		Templates: map[string]Template{
			"short": {Level: LevelProblem, Format: "Drain time %s is below the 30 second minimum."},
		},
	}, func(m *Meta, set *beatmap.Set) []Issue {
		var issues []Issue

		for _, bm := range set.Beatmaps {
			// Reported by empty-difficulty.
			if len(bm.HitObjects) == 0 {
				continue
			}

			if drain := bm.DrainTime(); drain < minDrainMs {
				issues = append(issues, m.Issue("short", bm.Metadata.Version, beatmap.Timestamp(drain)))
			}
		}

		return issues
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
