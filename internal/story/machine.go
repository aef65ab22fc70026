package story

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// DefaultUnlockCountdown is the number of ticks a chapter stays locked.
const DefaultUnlockCountdown = 15

// Mode selects how the machine crosses chapter boundaries.
type Mode int

const (
	// ModeAuto moves to the last eligible segment as elapsed time grows.
	ModeAuto Mode = iota
	// ModeChapterGate never moves on ticks; a countdown unlocks the next chapter
	// and the user has to advance explicitly.
	ModeChapterGate
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeChapterGate:
		return "chapter-gate"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "auto" or "chapter-gate".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "chapter-gate", "chapter", "gate":
		return ModeChapterGate, nil
	default:
		return ModeAuto, fmt.Errorf("unknown story mode %q (want auto or chapter-gate)", s)
	}
}

// Options configures a Machine.
type Options struct {
	Mode            Mode
	UnlockCountdown int
	// HeartRateGate holds auto-advance on heart-rate warning segments until
	// the countdown has run out.
	HeartRateGate bool
}

// State is the mutable per-session story state.
type State struct {
	CurrentSegmentIndex int
	IsRunning           bool
	ElapsedTime         int // seconds
	SelectedOption      *string
	Countdown           int
	IsCountingDown      bool
	IsSectionUnlocked   bool
}

// ElapsedMinutes is the elapsed time in whole minutes.
func (s State) ElapsedMinutes() int {
	return s.ElapsedTime / 60
}

func (s State) clone() State {
	if s.SelectedOption != nil {
		opt := *s.SelectedOption
		s.SelectedOption = &opt
	}
	return s
}

// Phase is the derived state of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseAwaitingChoice
	PhaseGated
	PhaseFinale
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseAwaitingChoice:
		return "awaiting-choice"
	case PhaseGated:
		return "gated"
	case PhaseFinale:
		return "finale"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Result reports the outcome of a user action.
type Result int

const (
	ResultAdvanced Result = iota
	// ResultLocked means the next chapter is not unlocked yet.
	ResultLocked
	// ResultAtEnd means the current segment is terminal.
	ResultAtEnd
	// ResultChoicePending means the segment needs Choose instead.
	ResultChoicePending
	// ResultNoChoice means Choose was called on a segment without options.
	ResultNoChoice
	// ResultNotRunning means the session is idle or paused.
	ResultNotRunning
)

func (r Result) String() string {
	switch r {
	case ResultAdvanced:
		return "advanced"
	case ResultLocked:
		return "not yet permitted"
	case ResultAtEnd:
		return "at end"
	case ResultChoicePending:
		return "choice pending"
	case ResultNoChoice:
		return "no choice pending"
	case ResultNotRunning:
		return "not running"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Snapshot is an immutable view of a session handed to observers.
type Snapshot struct {
	State
	Phase   Phase
	Segment Segment
}

// Machine is the story state machine for one session. It is not safe for
// concurrent use; a single owner drives it from one goroutine.
type Machine struct {
	catalog *Catalog
	opts    Options
	state   State

	subscribers map[int]func(Snapshot)
	nextSubID   int
}

// NewMachine creates an idle machine over catalog.
func NewMachine(catalog *Catalog, opts Options) *Machine {
	if opts.UnlockCountdown <= 0 {
		opts.UnlockCountdown = DefaultUnlockCountdown
	}
	m := &Machine{
		catalog:     catalog,
		opts:        opts,
		subscribers: map[int]func(Snapshot){},
	}
	m.state = m.initialState()
	return m
}

// Catalog returns the catalog the machine plays.
func (m *Machine) Catalog() *Catalog {
	return m.catalog
}

// Options returns the effective options.
func (m *Machine) Options() Options {
	return m.opts
}

// Subscribe registers fn to be called after every state change. The returned
// func removes the subscription.
func (m *Machine) Subscribe(fn func(Snapshot)) func() {
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	return func() {
		delete(m.subscribers, id)
	}
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		State:   m.state.clone(),
		Phase:   m.Phase(),
		Segment: m.CurrentSegment(),
	}
}

// CurrentSegment returns the active segment.
func (m *Machine) CurrentSegment() Segment {
	return m.catalog.SegmentAt(m.state.CurrentSegmentIndex)
}

// Phase derives the current phase from state.
func (m *Machine) Phase() Phase {
	seg := m.CurrentSegment()
	switch {
	case seg.IsFinale:
		return PhaseFinale
	case !m.state.IsRunning:
		return PhaseIdle
	case seg.HasOptions():
		return PhaseAwaitingChoice
	case m.heartRateHolding() || m.chapterLocked():
		return PhaseGated
	default:
		return PhaseRunning
	}
}

// StartRun begins a new session from the first segment.
func (m *Machine) StartRun() {
	m.state = m.initialState()
	m.state.IsRunning = true
	if m.opts.Mode == ModeChapterGate {
		m.armCountdown()
	} else if m.opts.HeartRateGate && m.CurrentSegment().IsHeartRateWarning {
		m.armCountdown()
	}
	m.refreshUnlocked()
	m.notify()
}

// Pause stops elapsed time from accruing.
func (m *Machine) Pause() {
	if !m.state.IsRunning {
		return
	}
	m.state.IsRunning = false
	m.notify()
}

// Resume continues a paused session.
func (m *Machine) Resume() {
	if m.state.IsRunning {
		return
	}
	m.state.IsRunning = true
	m.notify()
}

// Reset returns the machine to its idle initial state.
func (m *Machine) Reset() {
	m.state = m.initialState()
	m.notify()
}

// Tick advances the session by one second. It reports whether the current
// segment changed.
func (m *Machine) Tick() bool {
	if !m.state.IsRunning {
		return false
	}
	m.state.ElapsedTime++

	if m.state.IsCountingDown {
		m.state.Countdown--
		if m.state.Countdown <= 0 {
			m.state.Countdown = 0
			m.state.IsCountingDown = false
			if m.opts.Mode == ModeChapterGate {
				m.state.IsSectionUnlocked = true
			}
		}
	}

	changed := false
	if m.opts.Mode == ModeAuto && !m.heartRateHolding() {
		target := m.capAtHold(m.catalog.LastEligibleFor(m.state.ElapsedMinutes()))
		if target > m.state.CurrentSegmentIndex {
			m.moveTo(target)
			changed = true
		}
	}
	m.refreshUnlocked()
	m.notify()
	return changed
}

// Choose records option and moves one segment forward. The label does not
// influence which segment comes next.
func (m *Machine) Choose(option string) Result {
	if !m.state.IsRunning {
		return ResultNotRunning
	}
	seg := m.CurrentSegment()
	if !seg.HasOptions() {
		return ResultNoChoice
	}
	m.state.SelectedOption = &option
	if m.isTerminal(m.state.CurrentSegmentIndex) {
		m.notify()
		return ResultAtEnd
	}
	m.moveTo(m.state.CurrentSegmentIndex + 1)
	m.refreshUnlocked()
	m.notify()
	return ResultAdvanced
}

// AdvanceIfAllowed moves to the next segment when permitted. Segments sharing
// the current run time are always reachable; crossing into a later chapter
// requires the section to be unlocked.
func (m *Machine) AdvanceIfAllowed() Result {
	idx := m.state.CurrentSegmentIndex
	seg := m.CurrentSegment()
	if seg.HasOptions() {
		return ResultChoicePending
	}
	if m.isTerminal(idx) {
		return ResultAtEnd
	}
	next := m.catalog.SegmentAt(idx + 1)
	if next.RunTime != seg.RunTime && !m.state.IsSectionUnlocked {
		log.Debugf("story: advance from %q locked (countdown %d)", seg.ID, m.state.Countdown)
		return ResultLocked
	}
	m.moveTo(idx + 1)
	m.refreshUnlocked()
	m.notify()
	return ResultAdvanced
}

func (m *Machine) initialState() State {
	return State{Countdown: m.opts.UnlockCountdown}
}

func (m *Machine) armCountdown() {
	m.state.Countdown = m.opts.UnlockCountdown
	m.state.IsCountingDown = true
	m.state.IsSectionUnlocked = false
}

// moveTo sets the current index and re-arms gating for a new chapter or a
// new heart-rate warning.
func (m *Machine) moveTo(index int) {
	prev := m.CurrentSegment()
	m.state.CurrentSegmentIndex = index
	cur := m.CurrentSegment()
	switch m.opts.Mode {
	case ModeChapterGate:
		if cur.RunTime != prev.RunTime {
			m.armCountdown()
		}
	default:
		if m.opts.HeartRateGate && cur.IsHeartRateWarning && !prev.IsHeartRateWarning {
			m.armCountdown()
		}
	}
}

// refreshUnlocked derives the unlock flag in auto mode: the next chapter is
// open once its minute has been reached and no heart-rate hold is active.
func (m *Machine) refreshUnlocked() {
	if m.opts.Mode != ModeAuto {
		return
	}
	idx := m.state.CurrentSegmentIndex
	if m.isTerminal(idx) {
		m.state.IsSectionUnlocked = false
		return
	}
	next := m.catalog.SegmentAt(idx + 1)
	m.state.IsSectionUnlocked = !m.heartRateHolding() && m.state.ElapsedMinutes() >= next.RunTime
}

func (m *Machine) heartRateHolding() bool {
	return m.opts.Mode == ModeAuto && m.opts.HeartRateGate &&
		m.state.IsCountingDown && m.CurrentSegment().IsHeartRateWarning
}

func (m *Machine) chapterLocked() bool {
	if m.opts.Mode != ModeChapterGate || m.state.IsSectionUnlocked {
		return false
	}
	idx := m.state.CurrentSegmentIndex
	if m.isTerminal(idx) {
		return false
	}
	return m.catalog.SegmentAt(idx+1).RunTime != m.CurrentSegment().RunTime
}

func (m *Machine) isTerminal(index int) bool {
	return index >= m.catalog.Len()-1 || m.catalog.SegmentAt(index).IsFinale
}

// capAtHold keeps auto-advance from jumping over a segment that has to hold
// the story: a finale, a pending choice, or a heart-rate warning while the
// gate is on. The current segment's warning is not checked again; its hold
// has already run out when this is called.
func (m *Machine) capAtHold(target int) int {
	cur := m.state.CurrentSegmentIndex
	for i := cur; i < target; i++ {
		seg := m.catalog.SegmentAt(i)
		if seg.IsFinale || seg.HasOptions() {
			return i
		}
		if i > cur && m.opts.HeartRateGate && seg.IsHeartRateWarning {
			return i
		}
	}
	return target
}

func (m *Machine) notify() {
	if len(m.subscribers) == 0 {
		return
	}
	snap := m.Snapshot()
	for _, fn := range m.subscribers {
		fn(snap)
	}
}
