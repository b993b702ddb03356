// Package beatmap parses osu! beatmap sets (a song folder of .osu files plus
// their resources) into an immutable in-memory representation.
package beatmap

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// Mode is the gameplay mode a beatmap is made for.
type Mode int

// Gameplay modes, in .osu file order.
const (
	ModeStandard Mode = iota
	ModeTaiko
	ModeCatch
	ModeMania
)

// String returns the display name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "Standard"
	case ModeTaiko:
		return "Taiko"
	case ModeCatch:
		return "Catch"
	case ModeMania:
		return "Mania"
	default:
		return "Unknown"
	}
}

// ObjectKind classifies a hit object.
type ObjectKind int

// Hit object kinds.
const (
	ObjectCircle ObjectKind = iota
	ObjectSlider
	ObjectSpinner
	ObjectHold
)

// HitObject is a single timed gameplay element.
type HitObject struct {
	Time    int
	EndTime int
	Kind    ObjectKind
}

// Break is a gameplay pause between Start and End (milliseconds).
type Break struct {
	Start int
	End   int
}

// General holds the [General] section.
type General struct {
	AudioFilename string
	AudioLeadIn   int
	Mode          Mode
	StackLeniency float64
}

// Metadata holds the [Metadata] section.
type Metadata struct {
	Title         string
	TitleUnicode  string
	Artist        string
	ArtistUnicode string
	Creator       string
	Version       string
	Source        string
	Tags          string
	BeatmapID     int
	BeatmapSetID  int
}

// Difficulty holds the [Difficulty] section.
type Difficulty struct {
	HPDrain           float64
	CircleSize        float64
	OverallDifficulty float64
	ApproachRate      float64
	SliderMultiplier  float64
	SliderTickRate    float64
}

// Colour is an RGB colour from the [Colours] section.
type Colour struct {
	R, G, B uint8
}

// String returns the colour as "r,g,b".
func (c Colour) String() string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}

// Luminosity is the HSP perceived brightness, from 0 to 255.
func (c Colour) Luminosity() float64 {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)

	return math.Sqrt(r*r*0.299 + g*g*0.587 + b*b*0.114)
}

// Colours holds the [Colours] section. Combos are in file order; the game
// shows Combos[0] last.
type Colours struct {
	Combos       []Colour
	SliderBorder *Colour
	SliderTrack  *Colour
}

// Beatmap is one parsed difficulty of a set.
type Beatmap struct {
	FileName   string
	General    General
	Metadata   Metadata
	Difficulty Difficulty
	Colours    Colours
	Background string
	Breaks     []Break
	HitObjects []HitObject

	// Code is the raw file content, kept for snapshotting.
	Code string
}

// Counts returns the number of hit objects per kind.
func (b *Beatmap) Counts() map[ObjectKind]int {
	counts := make(map[ObjectKind]int, len(b.HitObjects))
	for _, obj := range b.HitObjects {
		counts[obj.Kind]++
	}

	return counts
}

// PlayTime is the time from the first object to the end of the last one.
func (b *Beatmap) PlayTime() int {
	if len(b.HitObjects) == 0 {
		return 0
	}

	first := b.HitObjects[0].Time
	last := b.HitObjects[len(b.HitObjects)-1].EndTime

	return max(last-first, 0)
}

// DrainTime is the play time minus the time spent in breaks.
func (b *Beatmap) DrainTime() int {
	drain := b.PlayTime()
	for _, br := range b.Breaks {
		drain -= br.End - br.Start
	}

	return max(drain, 0)
}

// File is a file of the set, relative to the set directory.
type File struct {
	Path string
	Size int64
}

// Set is a loaded beatmap set. It is never mutated after loading.
type Set struct {
	Path     string
	Files    []File
	Beatmaps []*Beatmap
}

// HasFile reports whether the set contains the given relative path,
// ignoring case and path separator style.
func (s *Set) HasFile(rel string) bool {
	want := normalizePath(rel)
	for _, f := range s.Files {
		if normalizePath(f.Path) == want {
			return true
		}
	}

	return false
}

// Size returns the total size of all files in the set.
func (s *Set) Size() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.Size
	}

	return total
}

// Key identifies the set across sessions: the online set id when known,
// otherwise the folder name.
func (s *Set) Key() string {
	for _, bm := range s.Beatmaps {
		if bm.Metadata.BeatmapSetID > 0 {
			return strconv.Itoa(bm.Metadata.BeatmapSetID)
		}
	}

	return filepath.Base(s.Path)
}

// Beatmap returns the difficulty with the given version name, or nil.
func (s *Set) Beatmap(version string) *Beatmap {
	for _, bm := range s.Beatmaps {
		if bm.Metadata.Version == version {
			return bm
		}
	}

	return nil
}

func normalizePath(p string) string {
	return strings.ToLower(filepath.ToSlash(filepath.Clean(p)))
}

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
)

// Timestamp formats milliseconds the way the editor does (mm:ss:mmm).
func Timestamp(ms int) string {
	sign := ""
	if ms < 0 {
		sign = "-"
		ms = -ms
	}

	return fmt.Sprintf("%s%02d:%02d:%03d", sign, ms/msPerMinute, (ms%msPerMinute)/msPerSecond, ms%msPerSecond)
}
