package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mapset-verifier/server/pkg/beatmap"
)

const notApplicable = "N/A"

// Overview renders metadata, settings and statistics side by side for every
// difficulty. stats must be in the same order as set.Beatmaps.
func Overview(stats []beatmap.Stats, set *beatmap.Set) (string, error) {
	if len(stats) != len(set.Beatmaps) {
		return "", fmt.Errorf("overview: %d statistics for %d difficulties", len(stats), len(set.Beatmaps))
	}

	chart, err := objectChart(stats)
	if err != nil {
		return "", err
	}

	return beatmapInfo(set) +
		Div("paste-separator") +
		metadataContainer(set) +
		generalContainer(set) +
		difficultyContainer(set) +
		statisticsContainer(stats, set) +
		resourcesContainer(set) +
		colourContainer(set) +
		container("Hit Objects", chart) +
		Div("overview-footer"), nil
}

func metadataContainer(set *beatmap.Set) string {
	return container("Metadata",
		perBeatmap(set, "Artist", func(bm *beatmap.Beatmap) string { return bm.Metadata.Artist }),
		perBeatmap(set, "Unicode Artist", func(bm *beatmap.Beatmap) string { return bm.Metadata.ArtistUnicode }),
		perBeatmap(set, "Title", func(bm *beatmap.Beatmap) string { return bm.Metadata.Title }),
		perBeatmap(set, "Unicode Title", func(bm *beatmap.Beatmap) string { return bm.Metadata.TitleUnicode }),
		perBeatmap(set, "Creator", func(bm *beatmap.Beatmap) string { return bm.Metadata.Creator }),
		perBeatmap(set, "Source", func(bm *beatmap.Beatmap) string { return bm.Metadata.Source }),
		perBeatmap(set, "Tags", func(bm *beatmap.Beatmap) string { return bm.Metadata.Tags }),
	)
}

func generalContainer(set *beatmap.Set) string {
	return container("General Settings",
		perBeatmap(set, "Audio Filename", func(bm *beatmap.Beatmap) string { return bm.General.AudioFilename }),
		perBeatmap(set, "Audio Lead-in", func(bm *beatmap.Beatmap) string { return strconv.Itoa(bm.General.AudioLeadIn) }),
		perBeatmap(set, "Mode", func(bm *beatmap.Beatmap) string { return bm.General.Mode.String() }),
		perBeatmap(set, "Stack Leniency", func(bm *beatmap.Beatmap) string { return number(bm.General.StackLeniency) }),
	)
}

func difficultyContainer(set *beatmap.Set) string {
	exceptMode := func(mode beatmap.Mode, get func(beatmap.Difficulty) float64) func(*beatmap.Beatmap) string {
		return func(bm *beatmap.Beatmap) string {
			if bm.General.Mode == mode {
				return notApplicable
			}

			return number(get(bm.Difficulty))
		}
	}

	return container("Difficulty Settings",
		perBeatmap(set, "HP Drain", func(bm *beatmap.Beatmap) string { return number(bm.Difficulty.HPDrain) }),
		perBeatmap(set, "Circle Size", exceptMode(beatmap.ModeTaiko,
			func(d beatmap.Difficulty) float64 { return d.CircleSize })),
		perBeatmap(set, "Overall Difficulty", func(bm *beatmap.Beatmap) string {
			return number(bm.Difficulty.OverallDifficulty)
		}),
		perBeatmap(set, "Approach Rate", exceptMode(beatmap.ModeMania,
			func(d beatmap.Difficulty) float64 { return d.ApproachRate })),
		perBeatmap(set, "Slider Tick Rate", exceptMode(beatmap.ModeMania,
			func(d beatmap.Difficulty) float64 { return d.SliderTickRate })),
		perBeatmap(set, "SV Multiplier", exceptMode(beatmap.ModeMania,
			func(d beatmap.Difficulty) float64 { return d.SliderMultiplier })),
	)
}

func statisticsContainer(stats []beatmap.Stats, set *beatmap.Set) string {
	byIndex := func(get func(beatmap.Stats) string) func(*beatmap.Beatmap) string {
		index := make(map[*beatmap.Beatmap]int, len(set.Beatmaps))
		for i, bm := range set.Beatmaps {
			index[bm] = i
		}

		return func(bm *beatmap.Beatmap) string { return get(stats[index[bm]]) }
	}

	count := func(kind beatmap.ObjectKind) func(beatmap.Stats) string {
		return func(s beatmap.Stats) string { return strconv.Itoa(s.Counts[kind]) }
	}

	return container("Statistics",
		perBeatmap(set, "Circle Count", byIndex(count(beatmap.ObjectCircle))),
		perBeatmap(set, "Slider Count", byIndex(count(beatmap.ObjectSlider))),
		perBeatmap(set, "Spinner Count", byIndex(count(beatmap.ObjectSpinner))),
		perBeatmap(set, "Hold Note Count", byIndex(count(beatmap.ObjectHold))),
		perBeatmap(set, "Break Count", byIndex(func(s beatmap.Stats) string { return strconv.Itoa(s.Breaks) })),
		perBeatmap(set, "Drain Time", byIndex(func(s beatmap.Stats) string { return beatmap.Timestamp(s.DrainTime) })),
		perBeatmap(set, "Play Time", byIndex(func(s beatmap.Stats) string { return beatmap.Timestamp(s.PlayTime) })),
		perBeatmap(set, "Object Spacing", byIndex(func(s beatmap.Stats) string {
			return fmt.Sprintf("%.0f ms (σ %.0f ms)", s.SpacingMean, s.SpacingStdDev)
		})),
		perBeatmap(set, "Object Density", byIndex(func(s beatmap.Stats) string {
			return fmt.Sprintf("%.2f objects/s", s.Density)
		})),
	)
}

func resourcesContainer(set *beatmap.Set) string {
	return container("Resources",
		perBeatmap(set, "Background", func(bm *beatmap.Beatmap) string { return bm.Background }),
		field("File Count", strconv.Itoa(len(set.Files))),
		field("Total Size", humanize.Bytes(uint64(max(set.Size(), 0)))),
	)
}

func colourContainer(set *beatmap.Set) string {
	combos := 0
	for _, bm := range set.Beatmaps {
		combos = max(combos, len(bm.Colours.Combos))
	}

	// Taiko and mania draw their own colours.
	ifColoured := func(get func(*beatmap.Beatmap) string) func(*beatmap.Beatmap) string {
		return func(bm *beatmap.Beatmap) string {
			if bm.General.Mode == beatmap.ModeTaiko || bm.General.Mode == beatmap.ModeMania {
				return Encode(notApplicable)
			}

			return get(bm)
		}
	}

	fields := make([]string, 0, combos+2)

	for i := range combos {
		fields = append(fields, perBeatmapHTML(set, fmt.Sprintf("Combo %d", i+1), ifColoured(func(bm *beatmap.Beatmap) string {
			return swatch(comboAt(bm.Colours.Combos, i), ", less than 43 or greater than 250 in kiai is bad.")
		})))
	}

	fields = append(fields,
		perBeatmapHTML(set, "Slider Border", ifColoured(func(bm *beatmap.Beatmap) string {
			return swatch(bm.Colours.SliderBorder, ", less than 43 is bad.")
		})),
		perBeatmapHTML(set, "Slider Track", ifColoured(func(bm *beatmap.Beatmap) string {
			return swatch(bm.Colours.SliderTrack, "")
		})),
	)

	return container("Colour Settings", fields...)
}

// comboAt returns the colour shown as the i-th combo in game, where the first
// colour of the file comes last.
func comboAt(combos []beatmap.Colour, i int) *beatmap.Colour {
	switch {
	case len(combos) > i+1:
		return &combos[i+1]
	case len(combos) == i+1:
		return &combos[0]
	default:
		return nil
	}
}

func swatch(c *beatmap.Colour, advice string) string {
	if c == nil {
		return DivAttr("overview-colour", DataAttr("colour", ""))
	}

	return DivAttr("overview-colour",
		DataAttr("colour", c.String())+
			Tooltip(fmt.Sprintf("HSP luminosity %.1f%s", c.Luminosity(), advice)))
}

// perBeatmap renders a single field when every difficulty has the same
// value, otherwise one sub-field per difficulty. Values are escaped.
func perBeatmap(set *beatmap.Set, title string, get func(*beatmap.Beatmap) string) string {
	return perBeatmapHTML(set, title, func(bm *beatmap.Beatmap) string {
		return Timestamps(Encode(get(bm)))
	})
}

// perBeatmapHTML is perBeatmap for values that are already HTML.
func perBeatmapHTML(set *beatmap.Set, title string, get func(*beatmap.Beatmap) string) string {
	values := make([]string, len(set.Beatmaps))
	same := true

	for i, bm := range set.Beatmaps {
		values[i] = get(bm)
		if values[i] != values[0] {
			same = false
		}
	}

	if same {
		value := ""
		if len(values) > 0 {
			value = values[0]
		}

		return field(title, value)
	}

	var b strings.Builder

	for i, bm := range set.Beatmaps {
		b.WriteString(field(bm.Metadata.Version, values[i]))
	}

	return field(title, b.String())
}

func container(title string, contents ...string) string {
	return Div("overview-container",
		Div("overview-container-title", Encode(title)),
		Div("overview-fields", contents...),
	)
}

func field(title string, contents ...string) string {
	return Div("overview-field",
		Div("overview-field-title", Encode(title)),
		Div("overview-field-content", contents...),
	)
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
