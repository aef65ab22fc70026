// Package progress tracks accumulated workout totals per user and unlocks
// stories whose requirement a single workout meets.
package progress

import (
	"slices"
	"sync"
)

// DefaultUserID is the only user the local server tracks.
const DefaultUserID = "test_user"

// Requirement unlocks StoryID when one workout of Type reaches Distance
// meters or Duration seconds. A zero threshold is not checked.
type Requirement struct {
	StoryID  string  `json:"-"`
	Type     string  `json:"type"`
	Distance float64 `json:"distance,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Met reports whether a single workout satisfies r.
func (r Requirement) Met(workoutType string, distance, duration float64) bool {
	if r.Type != workoutType {
		return false
	}
	if r.Distance > 0 && distance >= r.Distance {
		return true
	}
	if r.Duration > 0 && duration >= r.Duration {
		return true
	}
	return false
}

// DefaultRequirements returns the built-in unlock table.
func DefaultRequirements() []Requirement {
	return []Requirement{
		{StoryID: "story_1", Type: "running", Distance: 1000},
		{StoryID: "story_2", Type: "running", Duration: 1000},
		{StoryID: "story_3", Type: "running", Distance: 1200},
		{StoryID: "story_4", Type: "running", Duration: 1200},
	}
}

// UserProgress is the running tally for one user.
type UserProgress struct {
	TotalDistance   float64        `json:"total_distance"`
	TotalDuration   float64        `json:"total_duration"`
	UnlockedStories []string       `json:"unlocked_stories"`
	CurrentProgress map[string]any `json:"current_progress"`
}

func (p UserProgress) clone() UserProgress {
	p.UnlockedStories = slices.Clone(p.UnlockedStories)
	if p.UnlockedStories == nil {
		p.UnlockedStories = []string{}
	}
	cur := make(map[string]any, len(p.CurrentProgress))
	for k, v := range p.CurrentProgress {
		cur[k] = v
	}
	p.CurrentProgress = cur
	return p
}

// Result is returned for every processed workout.
type Result struct {
	NewlyUnlocked []string     `json:"newly_unlocked"`
	TotalProgress UserProgress `json:"total_progress"`
}

// AvailableContent lists unlocked and locked stories for a user.
type AvailableContent struct {
	UnlockedStories []string               `json:"unlocked_stories"`
	LockedStories   []string               `json:"locked_stories"`
	Requirements    map[string]Requirement `json:"requirements,omitempty"`
}

// Engine is safe for concurrent use.
type Engine struct {
	mu           sync.Mutex
	requirements []Requirement
	users        map[string]*UserProgress
}

// NewEngine returns an engine over reqs; nil means DefaultRequirements.
func NewEngine(reqs []Requirement) *Engine {
	if reqs == nil {
		reqs = DefaultRequirements()
	}
	return &Engine{
		requirements: slices.Clone(reqs),
		users:        map[string]*UserProgress{},
	}
}

// ProcessWorkout adds the workout to the user's totals and unlocks every
// still-locked story whose requirement it meets.
func (e *Engine) ProcessWorkout(userID, workoutType string, distance, duration float64) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	user, ok := e.users[userID]
	if !ok {
		user = &UserProgress{UnlockedStories: []string{}, CurrentProgress: map[string]any{}}
		e.users[userID] = user
	}
	user.TotalDistance += distance
	user.TotalDuration += duration

	newly := []string{}
	for _, req := range e.requirements {
		if slices.Contains(user.UnlockedStories, req.StoryID) {
			continue
		}
		if req.Met(workoutType, distance, duration) {
			user.UnlockedStories = append(user.UnlockedStories, req.StoryID)
			newly = append(newly, req.StoryID)
		}
	}
	return Result{NewlyUnlocked: newly, TotalProgress: user.clone()}
}

// AvailableContent reports the user's unlocked and locked stories. Unknown
// users get every story locked and no requirement table.
func (e *Engine) AvailableContent(userID string) AvailableContent {
	e.mu.Lock()
	defer e.mu.Unlock()

	user, ok := e.users[userID]
	if !ok {
		locked := make([]string, 0, len(e.requirements))
		for _, req := range e.requirements {
			locked = append(locked, req.StoryID)
		}
		return AvailableContent{UnlockedStories: []string{}, LockedStories: locked}
	}
	locked := []string{}
	for _, req := range e.requirements {
		if !slices.Contains(user.UnlockedStories, req.StoryID) {
			locked = append(locked, req.StoryID)
		}
	}
	return AvailableContent{
		UnlockedStories: slices.Clone(user.UnlockedStories),
		LockedStories:   locked,
		Requirements:    e.requirementMap(),
	}
}

// Status returns a copy of the user's progress.
func (e *Engine) Status(userID string) (UserProgress, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	user, ok := e.users[userID]
	if !ok {
		return UserProgress{}, false
	}
	return user.clone(), true
}

// Reset forgets the user's progress.
func (e *Engine) Reset(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.users, userID)
}

// Requirements returns the unlock table keyed by story id.
func (e *Engine) Requirements() map[string]Requirement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requirementMap()
}

func (e *Engine) requirementMap() map[string]Requirement {
	out := make(map[string]Requirement, len(e.requirements))
	for _, req := range e.requirements {
		out[req.StoryID] = req
	}
	return out
}
