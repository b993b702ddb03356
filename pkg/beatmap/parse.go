package beatmap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Sentinel parse errors.
var (
	// ErrMalformedHitObject indicates a [HitObjects] line that cannot be decoded.
	ErrMalformedHitObject = errors.New("malformed hit object")
	// ErrMalformedBreak indicates a break event that cannot be decoded.
	ErrMalformedBreak = errors.New("malformed break event")
)

// Hit object type bits as stored in the .osu format.
const (
	typeCircle  = 1
	typeSlider  = 2
	typeSpinner = 8
	typeHold    = 128
)

// Minimum field counts for event and hit object lines.
const (
	minHitObjectFields = 4
	minBreakFields     = 3
	endTimeField       = 5
)

// maxLineBytes bounds a single .osu line; storyboard-heavy maps can exceed
// the bufio default.
const maxLineBytes = 1 << 20

// Parse decodes a single .osu file.
func Parse(name string, r io.Reader) (*Beatmap, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	bm := &Beatmap{FileName: name, Code: string(raw)}
	p := parser{bm: bm, name: name, arUnset: true}

	scanner := bufio.NewScanner(strings.NewReader(bm.Code))
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineBytes)

	for scanner.Scan() {
		p.line++

		lineErr := p.consume(scanner.Text())
		if lineErr != nil {
			return nil, lineErr
		}
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return nil, fmt.Errorf("scan %s: %w", name, scanErr)
	}

	// Older formats have no ApproachRate; it mirrors OverallDifficulty there.
	if p.arUnset {
		bm.Difficulty.ApproachRate = bm.Difficulty.OverallDifficulty
	}

	return bm, nil
}

type parser struct {
	bm      *Beatmap
	name    string
	section string
	line    int
	arUnset bool
}

func (p *parser) consume(text string) error {
	line := strings.TrimSpace(text)
	if line == "" || strings.HasPrefix(line, "//") {
		return nil
	}

	if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
		p.section = line[1 : len(line)-1]

		return nil
	}

	switch p.section {
	case "General":
		p.general(keyValue(line))
	case "Metadata":
		p.metadata(keyValue(line))
	case "Difficulty":
		p.difficulty(keyValue(line))
	case "Colours":
		p.colours(keyValue(line))
	case "Events":
		return p.event(line)
	case "HitObjects":
		return p.hitObject(line)
	}

	return nil
}

func keyValue(line string) (string, string) {
	key, value, _ := strings.Cut(line, ":")

	return strings.TrimSpace(key), strings.TrimSpace(value)
}

func (p *parser) general(key, value string) {
	g := &p.bm.General

	switch key {
	case "AudioFilename":
		g.AudioFilename = value
	case "AudioLeadIn":
		g.AudioLeadIn = atoi(value)
	case "Mode":
		g.Mode = Mode(atoi(value))
	case "StackLeniency":
		g.StackLeniency = atof(value)
	}
}

func (p *parser) metadata(key, value string) {
	m := &p.bm.Metadata

	switch key {
	case "Title":
		m.Title = value
	case "TitleUnicode":
		m.TitleUnicode = value
	case "Artist":
		m.Artist = value
	case "ArtistUnicode":
		m.ArtistUnicode = value
	case "Creator":
		m.Creator = value
	case "Version":
		m.Version = value
	case "Source":
		m.Source = value
	case "Tags":
		m.Tags = value
	case "BeatmapID":
		m.BeatmapID = atoi(value)
	case "BeatmapSetID":
		m.BeatmapSetID = atoi(value)
	}
}

func (p *parser) difficulty(key, value string) {
	d := &p.bm.Difficulty

	switch key {
	case "HPDrainRate":
		d.HPDrain = atof(value)
	case "CircleSize":
		d.CircleSize = atof(value)
	case "OverallDifficulty":
		d.OverallDifficulty = atof(value)
	case "ApproachRate":
		d.ApproachRate = atof(value)
		p.arUnset = false
	case "SliderMultiplier":
		d.SliderMultiplier = atof(value)
	case "SliderTickRate":
		d.SliderTickRate = atof(value)
	}
}

// colours skips malformed colour lines; the game falls back to its defaults
// for them too.
func (p *parser) colours(key, value string) {
	colour, ok := parseColour(value)
	if !ok {
		return
	}

	c := &p.bm.Colours

	switch {
	case strings.HasPrefix(key, "Combo"):
		c.Combos = append(c.Combos, colour)
	case key == "SliderBorder":
		c.SliderBorder = &colour
	case key == "SliderTrackOverride":
		c.SliderTrack = &colour
	}
}

func parseColour(value string) (Colour, bool) {
	parts := strings.Split(value, ",")
	if len(parts) < 3 {
		return Colour{}, false
	}

	var rgb [3]uint8

	for i := range rgb {
		n, err := strconv.ParseUint(strings.TrimSpace(parts[i]), 10, 8)
		if err != nil {
			return Colour{}, false
		}

		rgb[i] = uint8(n)
	}

	return Colour{R: rgb[0], G: rgb[1], B: rgb[2]}, true
}

func (p *parser) event(line string) error {
	fields := strings.Split(line, ",")

	switch fields[0] {
	case "0":
		if len(fields) >= minBreakFields && p.bm.Background == "" {
			p.bm.Background = strings.Trim(fields[2], `"`)
		}
	case "2", "Break":
		if len(fields) < minBreakFields {
			return p.errorf(ErrMalformedBreak)
		}

		start, startErr := strconv.Atoi(strings.TrimSpace(fields[1]))
		end, endErr := strconv.Atoi(strings.TrimSpace(fields[2]))

		if startErr != nil || endErr != nil || end < start {
			return p.errorf(ErrMalformedBreak)
		}

		p.bm.Breaks = append(p.bm.Breaks, Break{Start: start, End: end})
	}

	return nil
}

func (p *parser) hitObject(line string) error {
	fields := strings.Split(line, ",")
	if len(fields) < minHitObjectFields {
		return p.errorf(ErrMalformedHitObject)
	}

	time, timeErr := strconv.Atoi(strings.TrimSpace(fields[2]))
	typeBits, typeErr := strconv.Atoi(strings.TrimSpace(fields[3]))

	if timeErr != nil || typeErr != nil {
		return p.errorf(ErrMalformedHitObject)
	}

	obj := HitObject{Time: time, EndTime: time}

	switch {
	case typeBits&typeSpinner != 0:
		obj.Kind = ObjectSpinner
		obj.EndTime = endTime(fields, time)
	case typeBits&typeHold != 0:
		obj.Kind = ObjectHold
		obj.EndTime = endTime(fields, time)
	case typeBits&typeSlider != 0:
		obj.Kind = ObjectSlider
	case typeBits&typeCircle != 0:
		obj.Kind = ObjectCircle
	default:
		return p.errorf(ErrMalformedHitObject)
	}

	p.bm.HitObjects = append(p.bm.HitObjects, obj)

	return nil
}

// endTime reads the end time of spinners ("...,end,...") and hold notes
// ("...,end:hitsample"), falling back to the start time.
func endTime(fields []string, start int) int {
	if len(fields) <= endTimeField {
		return start
	}

	raw, _, _ := strings.Cut(fields[endTimeField], ":")

	end, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || end < start {
		return start
	}

	return end
}

func (p *parser) errorf(err error) error {
	return fmt.Errorf("%s:%d: %w", p.name, p.line, err)
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}

	return v
}

func atof(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	return v
}
