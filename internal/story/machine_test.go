package story

import (
	"reflect"
	"testing"
)

func tickN(m *Machine, n int) {
	for i := 0; i < n; i++ {
		m.Tick()
	}
}

func TestTickAdvancesOnMinuteBoundary(t *testing.T) {
	m := NewMachine(catalogOf(t, 0, 1, 2), Options{})
	m.StartRun()
	tickN(m, 59)
	if got := m.Snapshot().CurrentSegmentIndex; got != 0 {
		t.Fatalf("expected index 0 after 59 ticks, got %d", got)
	}
	if !m.Tick() {
		t.Fatalf("expected 60th tick to change segment")
	}
	if got := m.Snapshot().CurrentSegmentIndex; got != 1 {
		t.Fatalf("expected index 1 after 60 ticks, got %d", got)
	}
}

func TestTickSixtyTimesAddsOneMinute(t *testing.T) {
	m := NewMachine(catalogOf(t, 0, 5), Options{})
	m.StartRun()
	tickN(m, 30)
	before := m.Snapshot()
	tickN(m, 60)
	after := m.Snapshot()
	if after.ElapsedTime-before.ElapsedTime != 60 {
		t.Fatalf("expected +60 seconds, got %d", after.ElapsedTime-before.ElapsedTime)
	}
	if after.ElapsedMinutes()-before.ElapsedMinutes() != 1 {
		t.Fatalf("expected +1 minute, got %d", after.ElapsedMinutes()-before.ElapsedMinutes())
	}
}

func TestTickIgnoredWhenNotRunning(t *testing.T) {
	m := NewMachine(catalogOf(t, 0, 1), Options{})
	tickN(m, 120)
	if m.Snapshot().ElapsedTime != 0 {
		t.Fatalf("idle machine accrued time")
	}
	m.StartRun()
	tickN(m, 10)
	m.Pause()
	tickN(m, 100)
	snap := m.Snapshot()
	if snap.ElapsedTime != 10 {
		t.Fatalf("expected elapsed frozen at 10, got %d", snap.ElapsedTime)
	}
	if snap.Phase != PhaseIdle {
		t.Fatalf("expected idle phase while paused, got %s", snap.Phase)
	}
	m.Resume()
	m.Tick()
	if m.Snapshot().ElapsedTime != 11 {
		t.Fatalf("expected time to resume")
	}
}

func TestChooseAdvancesOneRegardlessOfOption(t *testing.T) {
	for _, opt := range []string{"A", "B", "not-an-option"} {
		segs := []Segment{
			{RunTime: 0, Text: "a"},
			{RunTime: 0, Text: "b"},
			{RunTime: 0, Text: "c", Options: []string{"A", "B"}},
			{RunTime: 0, Text: "d"},
			{RunTime: 1, Text: "e"},
		}
		c, err := NewCatalog(segs)
		if err != nil {
			t.Fatalf("new catalog: %v", err)
		}
		m := NewMachine(c, Options{})
		m.StartRun()
		m.AdvanceIfAllowed()
		m.AdvanceIfAllowed()
		if m.Phase() != PhaseAwaitingChoice {
			t.Fatalf("expected awaiting choice, got %s", m.Phase())
		}
		if res := m.Choose(opt); res != ResultAdvanced {
			t.Fatalf("choose %q: got %s", opt, res)
		}
		snap := m.Snapshot()
		if snap.SelectedOption == nil || *snap.SelectedOption != opt {
			t.Fatalf("expected selected option %q, got %v", opt, snap.SelectedOption)
		}
		if snap.CurrentSegmentIndex != 3 {
			t.Fatalf("expected index 3, got %d", snap.CurrentSegmentIndex)
		}
	}
}

func TestChooseWithoutOptionsIsRejected(t *testing.T) {
	m := NewMachine(catalogOf(t, 0, 0), Options{})
	m.StartRun()
	if res := m.Choose("A"); res != ResultNoChoice {
		t.Fatalf("expected no choice result, got %s", res)
	}
	snap := m.Snapshot()
	if snap.CurrentSegmentIndex != 0 || snap.SelectedOption != nil {
		t.Fatalf("state changed on rejected choice: %+v", snap.State)
	}
}

func TestAdvanceWithinChapterIsImmediate(t *testing.T) {
	m := NewMachine(catalogOf(t, 0, 0, 0, 1), Options{Mode: ModeChapterGate})
	m.StartRun()
	if res := m.AdvanceIfAllowed(); res != ResultAdvanced {
		t.Fatalf("expected advance within chapter, got %s", res)
	}
	if res := m.AdvanceIfAllowed(); res != ResultAdvanced {
		t.Fatalf("expected advance within chapter, got %s", res)
	}
	if got := m.Snapshot().CurrentSegmentIndex; got != 2 {
		t.Fatalf("expected index 2, got %d", got)
	}
}

func TestAdvanceAcrossLockedChapterIsNoop(t *testing.T) {
	for _, mode := range []Mode{ModeAuto, ModeChapterGate} {
		m := NewMachine(catalogOf(t, 0, 1), Options{Mode: mode})
		m.StartRun()
		tickN(m, 3)
		before := m.Snapshot()
		if before.IsSectionUnlocked {
			t.Fatalf("%s: expected locked section", mode)
		}
		if res := m.AdvanceIfAllowed(); res != ResultLocked {
			t.Fatalf("%s: expected locked result, got %s", mode, res)
		}
		if after := m.Snapshot(); !reflect.DeepEqual(before, after) {
			t.Fatalf("%s: state changed on locked advance\nbefore %+v\nafter  %+v", mode, before, after)
		}
	}
}

func TestChapterGateCountdownUnlocks(t *testing.T) {
	m := NewMachine(catalogOf(t, 0, 1, 2), Options{Mode: ModeChapterGate, UnlockCountdown: 5})
	m.StartRun()
	snap := m.Snapshot()
	if !snap.IsCountingDown || snap.Countdown != 5 || snap.Phase != PhaseGated {
		t.Fatalf("expected armed countdown, got %+v phase %s", snap.State, snap.Phase)
	}
	tickN(m, 4)
	if m.Snapshot().IsSectionUnlocked {
		t.Fatalf("unlocked too early")
	}
	m.Tick()
	snap = m.Snapshot()
	if !snap.IsSectionUnlocked || snap.IsCountingDown || snap.Countdown != 0 {
		t.Fatalf("expected unlocked and halted countdown, got %+v", snap.State)
	}
	tickN(m, 200)
	if got := m.Snapshot().CurrentSegmentIndex; got != 0 {
		t.Fatalf("chapter-gate mode must not auto-advance, index %d", got)
	}
	if res := m.AdvanceIfAllowed(); res != ResultAdvanced {
		t.Fatalf("expected advance after unlock, got %s", res)
	}
	snap = m.Snapshot()
	if snap.CurrentSegmentIndex != 1 || snap.Countdown != 5 || !snap.IsCountingDown || snap.IsSectionUnlocked {
		t.Fatalf("expected countdown re-armed for new chapter, got %+v", snap.State)
	}
	if res := m.AdvanceIfAllowed(); res != ResultLocked {
		t.Fatalf("expected next chapter locked again, got %s", res)
	}
}

func TestDefaultCountdownIsFifteen(t *testing.T) {
	m := NewMachine(catalogOf(t, 0, 1), Options{Mode: ModeChapterGate})
	m.StartRun()
	if got := m.Snapshot().Countdown; got != 15 {
		t.Fatalf("expected countdown 15, got %d", got)
	}
	if DefaultUnlockCountdown != 15 {
		t.Fatalf("expected DefaultUnlockCountdown 15, got %d", DefaultUnlockCountdown)
	}
}

func TestHeartRateGateHoldsAutoAdvance(t *testing.T) {
	segs := []Segment{
		{RunTime: 0, Text: "start"},
		{RunTime: 1, Text: "warning", IsHeartRateWarning: true},
		{RunTime: 2, Text: "after"},
	}
	c, err := NewCatalog(segs)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	m := NewMachine(c, Options{HeartRateGate: true, UnlockCountdown: 90})
	m.StartRun()
	tickN(m, 60)
	snap := m.Snapshot()
	if snap.CurrentSegmentIndex != 1 || !snap.IsCountingDown || snap.Phase != PhaseGated {
		t.Fatalf("expected held on warning, got %+v phase %s", snap.State, snap.Phase)
	}
	// minute 2 arrives at 120s but the hold lasts until 150s
	tickN(m, 89)
	if got := m.Snapshot().CurrentSegmentIndex; got != 1 {
		t.Fatalf("expected hold on warning, got index %d", got)
	}
	m.Tick()
	if got := m.Snapshot().CurrentSegmentIndex; got != 2 {
		t.Fatalf("expected advance once hold expired, got index %d", got)
	}
}

func TestHeartRateGateDisabledDoesNotHold(t *testing.T) {
	segs := []Segment{
		{RunTime: 0, Text: "warning", IsHeartRateWarning: true},
		{RunTime: 1, Text: "after"},
	}
	c, err := NewCatalog(segs)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	m := NewMachine(c, Options{})
	m.StartRun()
	tickN(m, 60)
	if got := m.Snapshot().CurrentSegmentIndex; got != 1 {
		t.Fatalf("expected auto-advance without gate, got %d", got)
	}
}

func TestFinaleIsTerminal(t *testing.T) {
	segs := []Segment{
		{RunTime: 0, Text: "a"},
		{RunTime: 1, Text: "end", IsFinale: true, Options: []string{"Finish"}},
	}
	c, err := NewCatalog(segs)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	for _, mode := range []Mode{ModeAuto, ModeChapterGate} {
		m := NewMachine(c, Options{Mode: mode, UnlockCountdown: 1})
		m.StartRun()
		tickN(m, 5)
		if mode == ModeChapterGate {
			if res := m.AdvanceIfAllowed(); res != ResultAdvanced {
				t.Fatalf("%s: expected advance into finale, got %s", mode, res)
			}
		} else {
			tickN(m, 60)
		}
		for i := 0; i < 10; i++ {
			m.AdvanceIfAllowed()
			tickN(m, 600)
		}
		if res := m.Choose("Finish"); res != ResultAtEnd {
			t.Fatalf("%s: expected at end, got %s", mode, res)
		}
		snap := m.Snapshot()
		if snap.CurrentSegmentIndex != 1 || snap.Phase != PhaseFinale {
			t.Fatalf("%s: expected to stay on finale, got index %d phase %s", mode, snap.CurrentSegmentIndex, snap.Phase)
		}
	}
}

func TestAutoAdvanceStopsAtEarlierFinale(t *testing.T) {
	segs := []Segment{
		{RunTime: 0, Text: "a"},
		{RunTime: 1, Text: "end", IsFinale: true},
		{RunTime: 2, Text: "epilogue"},
	}
	c, err := NewCatalog(segs)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	m := NewMachine(c, Options{})
	m.StartRun()
	tickN(m, 600)
	if got := m.Snapshot().CurrentSegmentIndex; got != 1 {
		t.Fatalf("expected to stop at finale, got %d", got)
	}
	if res := m.AdvanceIfAllowed(); res != ResultAtEnd {
		t.Fatalf("expected at end, got %s", res)
	}
}

func TestAdvancePastLastSegmentIsNoop(t *testing.T) {
	m := NewMachine(catalogOf(t, 0, 0), Options{})
	m.StartRun()
	m.AdvanceIfAllowed()
	if res := m.AdvanceIfAllowed(); res != ResultAtEnd {
		t.Fatalf("expected at end, got %s", res)
	}
	if got := m.Snapshot().CurrentSegmentIndex; got != 1 {
		t.Fatalf("expected last index, got %d", got)
	}
}

func TestAdvanceOnChoiceSegmentNeedsChoice(t *testing.T) {
	c, err := NewCatalog([]Segment{{Options: []string{"A"}}, {}})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	m := NewMachine(c, Options{})
	m.StartRun()
	if res := m.AdvanceIfAllowed(); res != ResultChoicePending {
		t.Fatalf("expected choice pending, got %s", res)
	}
}

func TestResetThenStartIsIdempotent(t *testing.T) {
	c := catalogOf(t, 0, 0, 1, 2)
	fresh := NewMachine(c, Options{Mode: ModeChapterGate})
	fresh.StartRun()
	want := fresh.Snapshot()

	used := NewMachine(c, Options{Mode: ModeChapterGate})
	used.StartRun()
	tickN(used, 200)
	used.AdvanceIfAllowed()
	used.AdvanceIfAllowed()
	used.Pause()
	used.Reset()
	if used.Snapshot().Phase != PhaseIdle {
		t.Fatalf("expected idle after reset")
	}
	used.StartRun()
	if got := used.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("reset+start differs from fresh start\ngot  %+v\nwant %+v", got, want)
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	m := NewMachine(catalogOf(t, 0, 1), Options{})
	var got []Snapshot
	cancel := m.Subscribe(func(s Snapshot) { got = append(got, s) })
	m.StartRun()
	tickN(m, 60)
	if len(got) != 61 {
		t.Fatalf("expected 61 notifications, got %d", len(got))
	}
	if got[len(got)-1].CurrentSegmentIndex != 1 {
		t.Fatalf("expected last notification on segment 1")
	}
	cancel()
	m.Tick()
	if len(got) != 61 {
		t.Fatalf("expected no notifications after cancel")
	}
}

func TestAutoAdvanceHoldsOnChoice(t *testing.T) {
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	m := NewMachine(c, Options{})
	m.StartRun()
	m.Tick()
	if got := m.Snapshot().CurrentSegmentIndex; got != 4 {
		t.Fatalf("expected last minute-0 segment, got %d", got)
	}
	tickN(m, 59)
	snap := m.Snapshot()
	if snap.Segment.ID != "first-clue" || snap.Phase != PhaseAwaitingChoice {
		t.Fatalf("expected hold on first-clue, got %q phase %s", snap.Segment.ID, snap.Phase)
	}
	tickN(m, 600)
	if got := m.Snapshot().Segment.ID; got != "first-clue" {
		t.Fatalf("ticks moved past a pending choice to %q", got)
	}
	if res := m.Choose(snap.Segment.Options[0]); res != ResultAdvanced {
		t.Fatalf("expected advance after choice, got %s", res)
	}
	m.Tick()
	if got := m.Snapshot().Segment.ID; got == "first-clue" || got == "stone-lion-1" {
		t.Fatalf("expected auto advance to resume after the choice, got %q", got)
	}
}

func TestHeartRateGateHoldsSameMinuteWarning(t *testing.T) {
	segs := []Segment{
		{RunTime: 0, Text: "start"},
		{RunTime: 1, Text: "warning", IsHeartRateWarning: true},
		{RunTime: 1, Text: "after"},
	}
	c, err := NewCatalog(segs)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	m := NewMachine(c, Options{HeartRateGate: true, UnlockCountdown: 30})
	m.StartRun()
	tickN(m, 60)
	snap := m.Snapshot()
	if snap.CurrentSegmentIndex != 1 || !snap.IsCountingDown || snap.Phase != PhaseGated {
		t.Fatalf("expected hold on warning, got %+v phase %s", snap.State, snap.Phase)
	}
	tickN(m, 29)
	if got := m.Snapshot().CurrentSegmentIndex; got != 1 {
		t.Fatalf("expected hold until countdown ends, got index %d", got)
	}
	m.Tick()
	if got := m.Snapshot().CurrentSegmentIndex; got != 2 {
		t.Fatalf("expected advance once hold expired, got index %d", got)
	}
}

func TestChooseRequiresRunningSession(t *testing.T) {
	c, err := NewCatalog([]Segment{{Options: []string{"A"}}, {}})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	m := NewMachine(c, Options{})
	if res := m.Choose("A"); res != ResultNotRunning {
		t.Fatalf("expected not running on idle machine, got %s", res)
	}
	m.StartRun()
	m.Pause()
	if res := m.Choose("A"); res != ResultNotRunning {
		t.Fatalf("expected not running while paused, got %s", res)
	}
	snap := m.Snapshot()
	if snap.CurrentSegmentIndex != 0 || snap.SelectedOption != nil {
		t.Fatalf("rejected choice changed state: %+v", snap.State)
	}
	m.Resume()
	if res := m.Choose("A"); res != ResultAdvanced {
		t.Fatalf("expected advance once resumed, got %s", res)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	c, err := NewCatalog([]Segment{{Options: []string{"A"}}, {}})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	m := NewMachine(c, Options{})
	m.StartRun()
	m.Choose("A")
	snap := m.Snapshot()
	*snap.SelectedOption = "B"
	if *m.Snapshot().SelectedOption != "A" {
		t.Fatalf("snapshot shares selected option with machine")
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeAuto, "auto": ModeAuto, "Chapter-Gate": ModeChapterGate} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("sideways"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
