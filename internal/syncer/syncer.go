// Package syncer pushes recent workouts to the progress endpoint and keeps a
// human-readable status line for the UI.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/lovefit/internal/progress"
	"github.com/verte-zerg/lovefit/internal/progressapi"
	"github.com/verte-zerg/lovefit/internal/workout"
)

// DefaultSubmit is how many of the recent workouts are submitted per sync.
const DefaultSubmit = 3

const (
	StatusIdle       = "Press s to sync workouts."
	statusTesting    = "Testing server connection..."
	statusConnected  = "Server connected."
	statusFetching   = "Fetching workouts data..."
	statusNoWorkouts = "No workouts found. Add a test record with `lovefit workout add`."
	statusNoUnlock   = "All workouts synchronized, no new story unlocked."
	statusMock       = "Testing with mock data..."
)

// ErrNoWorkouts is returned when the source has nothing to submit.
var ErrNoWorkouts = errors.New("no workouts found")

// Submitter is the progress API surface the syncer needs.
type Submitter interface {
	TestConnection(ctx context.Context) (progressapi.ConnectionInfo, error)
	SubmitWorkout(ctx context.Context, w progressapi.WorkoutPayload) (progress.Result, error)
}

// Report summarizes one sync.
type Report struct {
	Found         int
	Submitted     int
	Dropped       int
	NewlyUnlocked []string
	Progress      *progress.UserProgress
}

type Syncer struct {
	client Submitter
	source workout.Source
	submit int

	mu       sync.Mutex
	status   string
	unlocked []string
}

func New(client Submitter, source workout.Source, submit int) *Syncer {
	if submit <= 0 {
		submit = DefaultSubmit
	}
	return &Syncer{
		client: client,
		source: source,
		submit: submit,
		status: StatusIdle,
	}
}

// Status returns the current status line.
func (s *Syncer) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Unlocked returns every story unlocked through this syncer, in unlock order.
func (s *Syncer) Unlocked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.unlocked...)
}

func (s *Syncer) setStatus(msg string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.status
	s.status = msg
	return prev
}

// TestConnection pings the server. On failure the status line reverts.
func (s *Syncer) TestConnection(ctx context.Context) error {
	prev := s.setStatus(statusTesting)
	if _, err := s.client.TestConnection(ctx); err != nil {
		s.setStatus(prev)
		log.Errorf("test connection failed: %s", err)
		return fmt.Errorf("failed to reach progress server: %w", err)
	}
	s.setStatus(statusConnected)
	return nil
}

// Sync submits the most recent workouts concurrently. Malformed answers are
// dropped. When no submission succeeds the status line reverts; otherwise it
// shows the unlocks of the submissions that went through.
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	prev := s.setStatus(statusFetching)

	workouts, err := s.source.Recent(ctx, workout.RecentLimit)
	if err != nil {
		s.setStatus(prev)
		log.Errorf("fetch workouts failed: %s", err)
		return Report{}, fmt.Errorf("failed to fetch workouts: %w", err)
	}
	if len(workouts) == 0 {
		s.setStatus(statusNoWorkouts)
		return Report{}, ErrNoWorkouts
	}
	found := len(workouts)
	s.setStatus(fmt.Sprintf("Found %d workouts, synchronizing...", found))

	if len(workouts) > s.submit {
		workouts = workouts[:s.submit]
	}
	report, err := s.submitAll(ctx, workouts)
	report.Found = found
	if err != nil {
		log.Errorf("workout submission failed: %s", err)
		if report.Submitted == 0 {
			s.setStatus(prev)
		} else {
			s.finish(report.NewlyUnlocked, fmt.Sprintf("Synchronized %d of %d workouts, no new story unlocked.",
				report.Submitted, len(workouts)))
		}
		return report, fmt.Errorf("failed to submit workouts: %w", err)
	}
	s.finish(report.NewlyUnlocked, statusNoUnlock)
	return report, nil
}

// SyncMock submits the fixed mock workout.
func (s *Syncer) SyncMock(ctx context.Context) (Report, error) {
	prev := s.setStatus(statusMock)
	report, err := s.submitAll(ctx, []workout.Workout{workout.TestWorkout()})
	report.Found = 1
	if err != nil {
		s.setStatus(prev)
		log.Errorf("mock submission failed: %s", err)
		return report, fmt.Errorf("failed to submit mock workout: %w", err)
	}
	s.finish(report.NewlyUnlocked, "Mock data synchronized, no new story unlocked.")
	return report, nil
}

func (s *Syncer) finish(newly []string, noUnlock string) {
	if len(newly) == 0 {
		s.setStatus(noUnlock)
		return
	}
	s.record(newly)
	s.setStatus("New story unlocked: " + strings.Join(newly, ", "))
}

func (s *Syncer) record(newly []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlocked = append(s.unlocked, newly...)
}

type submitResult struct {
	res progress.Result
	err error
}

func (s *Syncer) submitAll(ctx context.Context, workouts []workout.Workout) (Report, error) {
	results := make([]submitResult, len(workouts))
	g, ctx := errgroup.WithContext(ctx)
	for i, w := range workouts {
		g.Go(func() error {
			log.Debugf("processing workout: %s, distance: %.0fm, duration: %.0fs", w.Type, w.Distance, w.Duration)
			res, err := s.client.SubmitWorkout(ctx, progressapi.WorkoutPayload{
				Type:     workout.NormalizeType(w.Type),
				Distance: w.Distance,
				Duration: int(w.Duration),
			})
			// captured per workout so one failure does not cancel the rest
			results[i] = submitResult{res: res, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	var report Report
	var errs error
	for _, r := range results {
		switch {
		case r.err == nil:
			report.Submitted++
			report.NewlyUnlocked = append(report.NewlyUnlocked, r.res.NewlyUnlocked...)
			p := r.res.TotalProgress
			if report.Progress == nil || p.TotalDistance >= report.Progress.TotalDistance {
				report.Progress = &p
			}
		case errors.Is(r.err, progressapi.ErrMalformedResponse):
			report.Dropped++
			log.Debugf("dropping malformed progress update: %s", r.err)
		default:
			errs = multierr.Append(errs, r.err)
		}
	}
	return report, errs
}
