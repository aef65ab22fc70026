package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/lovefit/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "lovefit.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return st
}

func TestInsertAndListRuns(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, mode := range []string{"auto", "chapter-gate", "auto"} {
		run := model.RunStats{
			ID:             "run-" + string(rune('a'+i)),
			StartedAt:      base.Add(time.Duration(i) * time.Hour),
			EndedAt:        base.Add(time.Duration(i)*time.Hour + 6*time.Minute),
			Mode:           mode,
			ElapsedSeconds: 360 + i,
			FinalIndex:     16,
			FinalSegmentID: "the-joke",
			ReachedFinale:  i != 1,
			HRMin:          70,
			HRMax:          150,
			HRAvg:          110.5,
		}
		var choices []model.RunChoice
		if i == 0 {
			choices = []model.RunChoice{
				{SegmentID: "first-clue", SegmentIndex: 5, Option: "Go LEFT toward sundial", ElapsedSeconds: 61},
				{SegmentID: "heart-rate-2", SegmentIndex: 9, Option: "Do Push-ups", ElapsedSeconds: 130},
			}
		}
		if err := st.InsertRun(ctx, run, choices); err != nil {
			t.Fatalf("insert run %d: %v", i, err)
		}
	}

	runs, err := st.ListRuns(ctx, model.HistoryConfig{})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-a" || runs[0].Choices != 2 || !runs[0].ReachedFinale {
		t.Fatalf("unexpected first run: %+v", runs[0])
	}
	if runs[1].ReachedFinale {
		t.Fatalf("expected second run to be abandoned")
	}

	autoRuns, err := st.ListRuns(ctx, model.HistoryConfig{Mode: "auto"})
	if err != nil {
		t.Fatalf("list auto runs: %v", err)
	}
	if len(autoRuns) != 2 {
		t.Fatalf("expected 2 auto runs, got %d", len(autoRuns))
	}

	since := base.Add(90 * time.Minute)
	recent, err := st.ListRuns(ctx, model.HistoryConfig{Since: &since})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "run-c" {
		t.Fatalf("unexpected since filter result: %+v", recent)
	}

	last, err := st.ListRuns(ctx, model.HistoryConfig{Last: 2})
	if err != nil {
		t.Fatalf("list last: %v", err)
	}
	if len(last) != 2 || last[0].ID != "run-b" {
		t.Fatalf("unexpected last filter result: %+v", last)
	}

	choices, err := st.ListRunChoices(ctx, "run-a")
	if err != nil {
		t.Fatalf("list choices: %v", err)
	}
	if len(choices) != 2 || choices[1].Option != "Do Push-ups" {
		t.Fatalf("unexpected choices: %+v", choices)
	}
}

func TestInsertRunDuplicateRollsBack(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	run := model.RunStats{ID: "dup", StartedAt: time.Now(), EndedAt: time.Now()}
	if err := st.InsertRun(ctx, run, nil); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	choice := []model.RunChoice{{SegmentID: "x", Option: "A"}}
	if err := st.InsertRun(ctx, run, choice); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	choices, err := st.ListRunChoices(ctx, "dup")
	if err != nil {
		t.Fatalf("list choices: %v", err)
	}
	if len(choices) != 0 {
		t.Fatalf("failed insert left %d choices behind", len(choices))
	}
}

func TestRecentWorkoutsNewestFirst(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		w := model.Workout{
			Type:     "running",
			Distance: float64(1000 + i),
			Duration: 600,
			EndedAt:  base.Add(time.Duration(i) * 24 * time.Hour),
		}
		if _, err := st.InsertWorkout(ctx, w); err != nil {
			t.Fatalf("insert workout: %v", err)
		}
	}

	got, err := st.RecentWorkouts(ctx, 10)
	if err != nil {
		t.Fatalf("recent workouts: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 workouts, got %d", len(got))
	}
	if got[0].Distance != 1011 || got[9].Distance != 1002 {
		t.Fatalf("expected newest first, got %v ... %v", got[0].Distance, got[9].Distance)
	}
	if !got[0].EndedAt.Equal(base.Add(11 * 24 * time.Hour)) {
		t.Fatalf("unexpected ended at: %s", got[0].EndedAt)
	}

	none, err := st.RecentWorkouts(ctx, 0)
	if err != nil || none != nil {
		t.Fatalf("expected nil for zero limit, got %v %v", none, err)
	}
}

func TestMessagesOrderedByTimestamp(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []model.Message{
		{ID: "3", UserID: "u", Text: "third", Timestamp: base.Add(3 * time.Second)},
		{ID: "1", UserID: "u", Text: "first", IsUser: true, Timestamp: base.Add(time.Second)},
		{ID: "2", UserID: "u", Text: "second", AudioURL: "https://example.test/a.mp3", Timestamp: base.Add(2 * time.Second)},
		{ID: "x", UserID: "other", Text: "elsewhere", Timestamp: base},
	}
	for _, m := range msgs {
		if err := st.InsertMessage(ctx, m); err != nil {
			t.Fatalf("insert message: %v", err)
		}
	}

	all, err := st.ListMessages(ctx, "u", time.Time{}, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(all))
	}
	for i, want := range []string{"first", "second", "third"} {
		if all[i].Text != want {
			t.Fatalf("message %d = %q, want %q", i, all[i].Text, want)
		}
	}
	if !all[0].IsUser || all[1].AudioURL == "" {
		t.Fatalf("fields not round-tripped: %+v", all[:2])
	}

	newer, err := st.ListMessages(ctx, "u", base.Add(time.Second), 1)
	if err != nil {
		t.Fatalf("list newer: %v", err)
	}
	if len(newer) != 1 || newer[0].Text != "second" {
		t.Fatalf("unexpected newer messages: %+v", newer)
	}
}
