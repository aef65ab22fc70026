package tui

import (
	"math"
	"strings"

	"github.com/verte-zerg/lovefit/internal/heartrate"
)

var waveLevels = []rune("▁▂▃▄▅▆▇█")

const (
	wavePeriod    = 16.0
	wavePhaseStep = math.Pi / 8
	chaseSpeedup  = 3
)

// renderWave draws one line of heartbeat waveform for bpm at phase.
// Amplitude scales the swing so a calm pulse stays low and flat.
func renderWave(width int, bpm int, phase float64) string {
	if width <= 0 {
		return ""
	}
	scale := heartrate.Amplitude(bpm) / 50
	top := len(waveLevels) - 1
	var b strings.Builder
	for x := 0; x < width; x++ {
		v := math.Sin(phase + float64(x)*2*math.Pi/wavePeriod)
		level := int(math.Round((v*scale + 1) / 2 * float64(top)))
		level = max(0, min(top, level))
		b.WriteRune(waveLevels[level])
	}
	return b.String()
}
