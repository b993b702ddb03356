// Package beatmaptest builds beatmap sets for tests.
package beatmaptest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mapset-verifier/server/pkg/beatmap"
)

// Default fixture values.
const (
	DefaultSetID  = 4242
	DefaultAudio  = "audio.mp3"
	DefaultBG     = "bg.jpg"
	objectSpacing = 250
	firstObjectMs = 1000
)

// Difficulty describes one .osu file of a fixture set.
type Difficulty struct {
	Version string
	Artist  string
	Objects int
	HP      float64
	OD      float64
	// Breaks as start/end pairs in milliseconds.
	Breaks [][2]int
}

// Osu renders a minimal but valid .osu file.
func Osu(d Difficulty) string {
	artist := d.Artist
	if artist == "" {
		artist = "Artist"
	}

	var b strings.Builder

	b.WriteString("osu file format v14\n\n")
	b.WriteString("[General]\n")
	fmt.Fprintf(&b, "AudioFilename: %s\nAudioLeadIn: 0\nMode: 0\nStackLeniency: 0.7\n\n", DefaultAudio)
	b.WriteString("[Metadata]\n")
	fmt.Fprintf(&b, "Title:Song\nTitleUnicode:Song\nArtist:%s\nArtistUnicode:%s\n", artist, artist)
	fmt.Fprintf(&b, "Creator:Mapper\nVersion:%s\nSource:\nTags:test\nBeatmapID:0\nBeatmapSetID:%d\n\n", d.Version, DefaultSetID)
	b.WriteString("[Difficulty]\n")
	fmt.Fprintf(&b, "HPDrainRate:%g\nCircleSize:4\nOverallDifficulty:%g\nApproachRate:8\n", d.HP, d.OD)
	b.WriteString("SliderMultiplier:1.4\nSliderTickRate:1\n\n")
	b.WriteString("[Events]\n")
	fmt.Fprintf(&b, "0,0,\"%s\",0,0\n", DefaultBG)

	for _, br := range d.Breaks {
		fmt.Fprintf(&b, "2,%d,%d\n", br[0], br[1])
	}

	b.WriteString("\n[HitObjects]\n")

	for i := range d.Objects {
		fmt.Fprintf(&b, "256,192,%d,1,0,0:0:0:0:\n", firstObjectMs+i*objectSpacing)
	}

	return b.String()
}

// WriteSet writes the difficulties plus audio and background into a fresh
// temporary directory and returns its path.
func WriteSet(t testing.TB, diffs ...Difficulty) string {
	t.Helper()

	dir := t.TempDir()
	WriteInto(t, dir, diffs...)

	return dir
}

// WriteInto writes the difficulties plus audio and background into dir.
func WriteInto(t testing.TB, dir string, diffs ...Difficulty) {
	t.Helper()

	writeFile(t, filepath.Join(dir, DefaultAudio), "audio")
	writeFile(t, filepath.Join(dir, DefaultBG), "image")

	for _, d := range diffs {
		writeFile(t, filepath.Join(dir, FileName(d.Version)), Osu(d))
	}
}

// FileName is the .osu file name used for a difficulty version.
func FileName(version string) string {
	return fmt.Sprintf("Artist - Song (Mapper) [%s].osu", version)
}

// Set parses the difficulties in memory, without touching the disk.
func Set(t testing.TB, path string, diffs ...Difficulty) *beatmap.Set {
	t.Helper()

	set := &beatmap.Set{
		Path: path,
		Files: []beatmap.File{
			{Path: DefaultAudio, Size: 5},
			{Path: DefaultBG, Size: 5},
		},
	}

	for _, d := range diffs {
		name := FileName(d.Version)
		content := Osu(d)

		bm, err := beatmap.Parse(name, strings.NewReader(content))
		require.NoError(t, err)

		set.Files = append(set.Files, beatmap.File{Path: name, Size: int64(len(content))})
		set.Beatmaps = append(set.Beatmaps, bm)
	}

	return set
}

func writeFile(t testing.TB, path, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}
