package render

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mapset-verifier/server/pkg/beatmap"
	"github.com/mapset-verifier/server/pkg/checks"
)

// General is the pseudo difficulty holding set-wide results.
const General = "General"

// beatmapInfo renders the set header shared by the set views.
func beatmapInfo(set *beatmap.Set) string {
	title := filepath.Base(set.Path)
	creator := ""
	setID := 0

	if len(set.Beatmaps) > 0 {
		md := set.Beatmaps[0].Metadata
		title = md.Artist + " - " + md.Title
		creator = md.Creator
		setID = md.BeatmapSetID
	}

	web := DivAttr("beatmap-option beatmap-option-filter no-click web-unavailable-icon",
		Tooltip("No beatmap page available"))
	if setID > 0 {
		web = DivAttr("beatmap-options-web beatmap-option beatmap-option-filter web-icon",
			DataAttr("setid", strconv.Itoa(setID))+Tooltip("Open beatmap page"))
	}

	return Div("beatmap-container",
		Div("beatmap-title", Encode(title)),
		Div("beatmap-author-field",
			"Beatmapset by "+Link("https://osu.ppy.sh/users/"+creator, Encode(creator))),
		Div("beatmap-options",
			DivAttr("beatmap-options-folder beatmap-option beatmap-option-filter folder-icon",
				DataAttr("folder", set.Path)+Tooltip("Open song folder")),
			web,
		),
	)
}

// difficultyTabs renders the selector of General plus one tab per
// difficulty, each with the icon chosen by iconFor.
func difficultyTabs(set *beatmap.Set, general string, iconFor func(version string) string) string {
	var b strings.Builder

	b.WriteString(DivAttr("beatmap-difficulty noselect", DataAttr("difficulty", general),
		Div("medium-icon "+iconFor("")+"-icon"),
		Div("difficulty-name", General),
	))

	for i, bm := range set.Beatmaps {
		class := "beatmap-difficulty noselect"
		if i == 0 {
			class += " beatmap-difficulty-selected"
		}

		version := bm.Metadata.Version
		b.WriteString(DivAttr(class, DataAttr("difficulty", version),
			Div("medium-icon "+iconFor(version)+"-icon"),
			Div("difficulty-name", Encode(version)),
		))
	}

	return Div("beatmap-difficulties", b.String())
}

// Checks renders check results for a set. Every registered check is listed
// under its category, with the issues it produced.
func Checks(registry *checks.Registry, issues []checks.Issue, set *beatmap.Set) (string, error) {
	byVersion := make(map[string][]checks.Issue)
	for _, issue := range issues {
		byVersion[issue.Beatmap] = append(byVersion[issue.Beatmap], issue)
	}

	var cards strings.Builder

	cards.WriteString(DivAttr("card-difficulty", DataAttr("difficulty", General),
		checkCategories(registry, byVersion[""], General, true)))

	for _, bm := range set.Beatmaps {
		version := bm.Metadata.Version
		cards.WriteString(DivAttr("card-difficulty", DataAttr("difficulty", version),
			checkCategories(registry, byVersion[version], version, false)))
	}

	return beatmapInfo(set) +
		difficultyTabs(set, General, func(version string) string { return Icon(byVersion[version]) }) +
		Div("paste-separator") +
		Div("card-container-unselected", cards.String()) +
		Div("paste-separator select-separator") +
		Div("card-container-selected"), nil
}

func checkCategories(registry *checks.Registry, issues []checks.Issue, version string, general bool) string {
	var b strings.Builder

	for _, category := range registry.Categories() {
		var (
			details  strings.Builder
			catIssue []checks.Issue
			listed   bool
		)

		for _, c := range registry.InCategory(category) {
			meta := c.Meta()

			var own []checks.Issue

			for _, issue := range issues {
				if issue.CheckID == meta.ID {
					own = append(own, issue)
				}
			}

			// A difficulty check that failed to run reports set-wide.
			if meta.General != general && len(own) == 0 {
				continue
			}

			listed = true
			catIssue = append(catIssue, own...)
			details.WriteString(checkDetail(meta, own))
		}

		if !listed {
			continue
		}

		b.WriteString(DivAttr("card", DataAttr("difficulty", version),
			Div("card-box shadow noselect",
				Div("large-icon "+Icon(catIssue)+"-icon"),
				Div("card-title", Encode(category)),
			),
			Div("card-details-container", Div("card-details", details.String())),
		))
	}

	return Div("card-difficulty-checks", b.String())
}

func checkDetail(meta checks.Meta, issues []checks.Issue) string {
	message := Encode(meta.Message)

	text := Div("card-detail-text", message)
	if len(issues) > 0 {
		text = Div("", Div("card-detail-text", message), Div("vertical-arrow card-detail-toggle"))
	}

	detail := Div("card-detail",
		Div("card-detail-icon "+Icon(issues)+"-icon"),
		text,
	)

	if len(issues) == 0 {
		return detail
	}

	var instances strings.Builder

	for _, issue := range issues {
		instances.WriteString(Div("card-detail",
			Div("card-detail-icon "+issue.Level.Icon()+"-icon"),
			Div("", Timestamps(Encode(issue.Message))),
		))
	}

	return detail + Div("card-detail-instances", instances.String())
}
