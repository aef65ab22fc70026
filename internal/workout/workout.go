// Package workout reads exercise records that feed progress sync.
package workout

import (
	"context"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/verte-zerg/lovefit/internal/model"
)

// RecentLimit is how many workouts a sync looks at.
const RecentLimit = 10

// Known workout types.
const (
	TypeRunning = "running"
	TypeWalking = "walking"
	TypeHiking  = "hiking"
	TypeCycling = "cycling"
	TypeOther   = "other"
)

// Workout aliases the shared record type.
type Workout = model.Workout

// Source supplies recent workouts, newest first.
type Source interface {
	Recent(ctx context.Context, limit int) ([]Workout, error)
}

// NormalizeType maps free-form activity names onto the known types.
func NormalizeType(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "running", "run", "jog", "jogging":
		return TypeRunning
	case "walking", "walk":
		return TypeWalking
	case "hiking", "hike":
		return TypeHiking
	case "cycling", "cycle", "bike", "biking":
		return TypeCycling
	default:
		return TypeOther
	}
}

// Recorder is the store surface StoreSource needs.
type Recorder interface {
	InsertWorkout(ctx context.Context, w model.Workout) (int64, error)
	RecentWorkouts(ctx context.Context, limit int) ([]model.Workout, error)
}

// StoreSource reads workouts recorded in the local database.
type StoreSource struct {
	rec Recorder
}

func NewStoreSource(rec Recorder) *StoreSource {
	return &StoreSource{rec: rec}
}

func (s *StoreSource) Recent(ctx context.Context, limit int) ([]Workout, error) {
	if limit <= 0 || limit > RecentLimit {
		limit = RecentLimit
	}
	return s.rec.RecentWorkouts(ctx, limit)
}

// Add normalizes and stores a workout. A zero EndedAt means now.
func (s *StoreSource) Add(ctx context.Context, w Workout) (Workout, error) {
	w.Type = NormalizeType(w.Type)
	if w.EndedAt.IsZero() {
		w.EndedAt = time.Now()
	}
	id, err := s.rec.InsertWorkout(ctx, w)
	if err != nil {
		return Workout{}, err
	}
	w.ID = id
	return w, nil
}

// MockSource fabricates plausible workouts for offline demos.
type MockSource struct {
	faker *gofakeit.Faker
	now   func() time.Time
}

// NewMockSource returns a deterministic MockSource for seed.
func NewMockSource(seed int64) *MockSource {
	return &MockSource{faker: gofakeit.New(seed), now: time.Now}
}

func (m *MockSource) Recent(_ context.Context, limit int) ([]Workout, error) {
	if limit <= 0 || limit > RecentLimit {
		limit = RecentLimit
	}
	types := []string{TypeRunning, TypeRunning, TypeWalking, TypeCycling, TypeHiking}
	end := m.now()
	out := make([]Workout, 0, limit)
	for i := 0; i < limit; i++ {
		end = end.Add(-time.Duration(m.faker.IntRange(6, 48)) * time.Hour)
		out = append(out, Workout{
			Type:     m.faker.RandomString(types),
			Distance: float64(m.faker.IntRange(500, 8000)),
			Duration: float64(m.faker.IntRange(300, 3600)),
			EndedAt:  end,
		})
	}
	return out, nil
}

// TestWorkout is the fixed record submitted in mock sync mode.
func TestWorkout() Workout {
	return Workout{Type: TypeRunning, Distance: 1000, Duration: 600, EndedAt: time.Now()}
}
