package snapshot

import (
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Line is a numbered line of a file. Numbers start at 1.
type Line struct {
	Number int
	Text   string
}

// Diff is the line change between two recordings of a file.
type Diff struct {
	From    time.Time
	To      time.Time
	Added   []Line
	Removed []Line
}

// Empty reports whether the recordings were identical.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffLines computes a line diff from before to after. Removed lines carry
// their number in before, added lines their number in after.
func DiffLines(before, after string) (added, removed []Line) {
	dmp := diffmatchpatch.New()
	src, dst, lines := dmp.DiffLinesToRunes(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(src, dst, false), lines)

	oldLine, newLine := 1, 1

	for _, d := range diffs {
		texts := splitLines(d.Text)

		switch d.Type {
		case diffmatchpatch.DiffEqual:
			oldLine += len(texts)
			newLine += len(texts)
		case diffmatchpatch.DiffDelete:
			for _, text := range texts {
				removed = append(removed, Line{Number: oldLine, Text: text})
				oldLine++
			}
		case diffmatchpatch.DiffInsert:
			for _, text := range texts {
				added = append(added, Line{Number: newLine, Text: text})
				newLine++
			}
		}
	}

	return added, removed
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}

	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}

	return lines
}
