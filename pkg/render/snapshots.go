package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mapset-verifier/server/pkg/beatmap"
	"github.com/mapset-verifier/server/pkg/snapshot"
)

// Files is the pseudo difficulty listing every recorded file.
const Files = "Files"

const snapshotTimeLayout = "2006-01-02 15:04:05"

// Snapshot icons.
const (
	iconUnchanged = "gear-gray"
	iconChanged   = "gear-blue"
	iconAdded     = "plus"
	iconRemoved   = "minus"
)

// Snapshots renders the recorded history of every difficulty.
func Snapshots(histories []snapshot.FileHistory, set *beatmap.Set) (string, error) {
	byVersion := make(map[string]snapshot.FileHistory, len(histories))
	for _, h := range histories {
		byVersion[h.Version] = h
	}

	var cards strings.Builder

	cards.WriteString(DivAttr("card-difficulty", DataAttr("difficulty", Files),
		Div("card-difficulty-checks", snapshotFiles(histories))))

	for _, bm := range set.Beatmaps {
		version := bm.Metadata.Version
		cards.WriteString(DivAttr("card-difficulty", DataAttr("difficulty", version),
			Div("card-difficulty-checks", snapshotHistory(byVersion[version], version))))
	}

	iconFor := func(version string) string {
		if version == "" {
			return iconUnchanged
		}

		return diffsIcon(byVersion[version].Diffs)
	}

	return beatmapInfo(set) +
		difficultyTabs(set, Files, iconFor) +
		Div("paste-separator") +
		Div("card-container-unselected", cards.String()) +
		Div("paste-separator select-separator") +
		Div("card-container-selected"), nil
}

func snapshotFiles(histories []snapshot.FileHistory) string {
	var details strings.Builder

	for _, h := range histories {
		var text string

		switch {
		case h.Skipped:
			text = Encode(h.File) + " was too large to record."
		case h.Recordings == 0:
			text = Encode(h.File) + " has no recordings."
		default:
			text = fmt.Sprintf("%s: %s, first seen %s.",
				Encode(h.File), plural(h.Recordings, "recording"), humanize.Time(h.First))
		}

		details.WriteString(Div("card-detail",
			Div("card-detail-icon "+diffsIcon(h.Diffs)+"-icon"),
			Div("card-detail-text", text),
		))
	}

	return DivAttr("card", DataAttr("difficulty", Files),
		Div("card-box shadow noselect",
			Div("large-icon "+iconUnchanged+"-icon"),
			Div("card-title", Files),
		),
		Div("card-details-container", Div("card-details", details.String())),
	)
}

func snapshotHistory(h snapshot.FileHistory, version string) string {
	var details strings.Builder

	if len(h.Diffs) == 0 {
		details.WriteString(Div("card-detail",
			Div("card-detail-icon "+iconUnchanged+"-icon"),
			Div("card-detail-text", "No changes were recorded."),
		))
	}

	// Newest change first.
	for i := len(h.Diffs) - 1; i >= 0; i-- {
		details.WriteString(diffDetail(h.Diffs[i]))
	}

	return DivAttr("card", DataAttr("difficulty", version),
		Div("card-box shadow noselect",
			Div("large-icon "+diffsIcon(h.Diffs)+"-icon"),
			Div("card-title", "History"),
		),
		Div("card-details-container", Div("card-details", details.String())),
	)
}

func diffDetail(d snapshot.Diff) string {
	summary := fmt.Sprintf("%s to %s (%s): %s added, %s removed.",
		d.From.Format(snapshotTimeLayout), d.To.Format(snapshotTimeLayout), humanize.Time(d.To),
		plural(len(d.Added), "line"), plural(len(d.Removed), "line"))

	var lines strings.Builder

	for _, l := range d.Removed {
		lines.WriteString(Div("card-detail",
			Div("card-detail-icon "+iconRemoved+"-icon"),
			Div("", Encode(strconv.Itoa(l.Number)+": "+l.Text)),
		))
	}

	for _, l := range d.Added {
		lines.WriteString(Div("card-detail",
			Div("card-detail-icon "+iconAdded+"-icon"),
			Div("", Encode(strconv.Itoa(l.Number)+": "+l.Text)),
		))
	}

	return Div("card-detail",
		Div("card-detail-icon "+diffIcon(d)+"-icon"),
		Div("", Div("card-detail-text", summary), Div("vertical-arrow card-detail-toggle")),
	) + Div("card-detail-instances", lines.String())
}

func diffIcon(d snapshot.Diff) string {
	switch {
	case d.Empty():
		return iconUnchanged
	case len(d.Removed) == 0:
		return iconAdded
	case len(d.Added) == 0:
		return iconRemoved
	default:
		return iconChanged
	}
}

func diffsIcon(diffs []snapshot.Diff) string {
	if len(diffs) == 0 {
		return iconUnchanged
	}

	return diffIcon(diffs[len(diffs)-1])
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}

	return humanize.Comma(int64(n)) + " " + noun + "s"
}
