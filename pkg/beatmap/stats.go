package beatmap

import (
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the gameplay content of one difficulty.
type Stats struct {
	Version   string
	Mode      Mode
	Counts    map[ObjectKind]int
	Objects   int
	Breaks    int
	DrainTime int
	PlayTime  int
	// Spacing is the time between consecutive object starts, in
	// milliseconds.
	SpacingMean   float64
	SpacingStdDev float64
	// Density is objects per second of drain time.
	Density float64
}

// Statistics computes the Stats of a difficulty.
func (b *Beatmap) Statistics() Stats {
	s := Stats{
		Version:   b.Metadata.Version,
		Mode:      b.General.Mode,
		Counts:    b.Counts(),
		Objects:   len(b.HitObjects),
		Breaks:    len(b.Breaks),
		DrainTime: b.DrainTime(),
		PlayTime:  b.PlayTime(),
	}

	if len(b.HitObjects) > 1 {
		gaps := make([]float64, 0, len(b.HitObjects)-1)
		for i := 1; i < len(b.HitObjects); i++ {
			gaps = append(gaps, float64(b.HitObjects[i].Time-b.HitObjects[i-1].Time))
		}

		s.SpacingMean, s.SpacingStdDev = stat.MeanStdDev(gaps, nil)
	}

	if s.DrainTime > 0 {
		s.Density = float64(s.Objects) / (float64(s.DrainTime) / msPerSecond)
	}

	return s
}
