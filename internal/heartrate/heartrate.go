// Package heartrate supplies beats-per-minute readings shown next to the story.
package heartrate

import (
	"math/rand"
	"sync"
	"time"
)

const (
	// MinSynthetic and MaxSynthetic bound the synthetic BPM range (inclusive).
	MinSynthetic = 65
	MaxSynthetic = 160
)

// Source supplies the current heart rate. Sample is called once per tick.
type Source interface {
	Sample() int
	BPM() int
}

// Synthetic produces uniformly distributed readings in [MinSynthetic, MaxSynthetic].
type Synthetic struct {
	mu  sync.Mutex
	rnd *rand.Rand
	bpm int
}

// NewSynthetic returns a Synthetic seeded with the current time.
func NewSynthetic() *Synthetic {
	return NewSyntheticSeed(time.Now().UnixNano())
}

// NewSyntheticSeed returns a deterministic Synthetic.
func NewSyntheticSeed(seed int64) *Synthetic {
	s := &Synthetic{rnd: rand.New(rand.NewSource(seed))}
	s.bpm = s.next()
	return s
}

// Sample draws a new reading and returns it.
func (s *Synthetic) Sample() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bpm = s.next()
	return s.bpm
}

// BPM returns the last reading.
func (s *Synthetic) BPM() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bpm
}

func (s *Synthetic) next() int {
	return MinSynthetic + s.rnd.Intn(MaxSynthetic-MinSynthetic+1)
}

// Fixed always reports the same value.
type Fixed int

func (f Fixed) Sample() int { return int(f) }
func (f Fixed) BPM() int    { return int(f) }

// Amplitude maps bpm to a waveform height: clamp((bpm-60)/2, 10, 50).
func Amplitude(bpm int) float64 {
	a := float64(bpm-60) / 2
	if a < 10 {
		return 10
	}
	if a > 50 {
		return 50
	}
	return a
}

// Summary aggregates the readings of one run.
type Summary struct {
	Min, Max int
	Avg      float64
	Count    int
}

// Recorder accumulates readings into a Summary.
type Recorder struct {
	sum     int
	summary Summary
}

// Add records one reading; non-positive readings are ignored.
func (r *Recorder) Add(bpm int) {
	if bpm <= 0 {
		return
	}
	if r.summary.Count == 0 || bpm < r.summary.Min {
		r.summary.Min = bpm
	}
	if bpm > r.summary.Max {
		r.summary.Max = bpm
	}
	r.sum += bpm
	r.summary.Count++
	r.summary.Avg = float64(r.sum) / float64(r.summary.Count)
}

// Summary returns the aggregate so far.
func (r *Recorder) Summary() Summary {
	return r.summary
}

// Reset clears all readings.
func (r *Recorder) Reset() {
	*r = Recorder{}
}
