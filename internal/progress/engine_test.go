package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessWorkout_UnlocksByDistance(t *testing.T) {
	e := NewEngine(nil)

	res := e.ProcessWorkout(DefaultUserID, "running", 1000, 600)
	assert.Equal(t, []string{"story_1"}, res.NewlyUnlocked)
	assert.Equal(t, 1000.0, res.TotalProgress.TotalDistance)
	assert.Equal(t, 600.0, res.TotalProgress.TotalDuration)

	res = e.ProcessWorkout(DefaultUserID, "running", 1300, 1250)
	assert.Equal(t, []string{"story_2", "story_3", "story_4"}, res.NewlyUnlocked)
	assert.Equal(t, []string{"story_1", "story_2", "story_3", "story_4"}, res.TotalProgress.UnlockedStories)

	res = e.ProcessWorkout(DefaultUserID, "running", 5000, 5000)
	assert.Empty(t, res.NewlyUnlocked)
	assert.NotNil(t, res.NewlyUnlocked)
}

func TestProcessWorkout_SingleWorkoutMustMeetThreshold(t *testing.T) {
	e := NewEngine(nil)
	for i := 0; i < 5; i++ {
		res := e.ProcessWorkout(DefaultUserID, "running", 500, 300)
		assert.Empty(t, res.NewlyUnlocked)
	}
	status, ok := e.Status(DefaultUserID)
	require.True(t, ok)
	assert.Equal(t, 2500.0, status.TotalDistance)
	assert.Empty(t, status.UnlockedStories)
}

func TestProcessWorkout_WrongTypeNeverUnlocks(t *testing.T) {
	e := NewEngine(nil)
	res := e.ProcessWorkout(DefaultUserID, "cycling", 50000, 7200)
	assert.Empty(t, res.NewlyUnlocked)
	assert.Equal(t, 50000.0, res.TotalProgress.TotalDistance)
}

func TestAvailableContent(t *testing.T) {
	e := NewEngine(nil)

	content := e.AvailableContent("nobody")
	assert.Empty(t, content.UnlockedStories)
	assert.Equal(t, []string{"story_1", "story_2", "story_3", "story_4"}, content.LockedStories)
	assert.Nil(t, content.Requirements)

	e.ProcessWorkout("u1", "running", 1100, 100)
	content = e.AvailableContent("u1")
	assert.Equal(t, []string{"story_1"}, content.UnlockedStories)
	assert.Equal(t, []string{"story_2", "story_3", "story_4"}, content.LockedStories)
	require.Len(t, content.Requirements, 4)
	assert.Equal(t, 1200.0, content.Requirements["story_3"].Distance)
}

func TestResetAndStatus(t *testing.T) {
	e := NewEngine(nil)
	_, ok := e.Status(DefaultUserID)
	assert.False(t, ok)

	e.ProcessWorkout(DefaultUserID, "running", 1000, 1000)
	e.Reset(DefaultUserID)
	_, ok = e.Status(DefaultUserID)
	assert.False(t, ok)

	res := e.ProcessWorkout(DefaultUserID, "running", 1000, 0)
	assert.Equal(t, []string{"story_1"}, res.NewlyUnlocked)
}

func TestResultIsDetached(t *testing.T) {
	e := NewEngine(nil)
	res := e.ProcessWorkout(DefaultUserID, "running", 1000, 0)
	res.TotalProgress.UnlockedStories[0] = "mutated"
	status, _ := e.Status(DefaultUserID)
	assert.Equal(t, "story_1", status.UnlockedStories[0])
}

func TestEngineConcurrentWorkouts(t *testing.T) {
	e := NewEngine(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.ProcessWorkout(DefaultUserID, "running", 10, 1)
		}()
	}
	wg.Wait()
	status, ok := e.Status(DefaultUserID)
	require.True(t, ok)
	assert.Equal(t, 500.0, status.TotalDistance)
	assert.Equal(t, 50.0, status.TotalDuration)
}

func TestRequirementMet(t *testing.T) {
	req := Requirement{Type: "running", Duration: 1000}
	assert.True(t, req.Met("running", 0, 1000))
	assert.False(t, req.Met("running", 99999, 999))
	assert.False(t, req.Met("walking", 0, 5000))
}
