// Package tui provides the Bubble Tea story player.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/verte-zerg/lovefit/internal/clock"
	"github.com/verte-zerg/lovefit/internal/heartrate"
	"github.com/verte-zerg/lovefit/internal/model"
	statsPkg "github.com/verte-zerg/lovefit/internal/stats"
	"github.com/verte-zerg/lovefit/internal/story"
	"github.com/verte-zerg/lovefit/internal/syncer"
)

const (
	frameInterval  = 80 * time.Millisecond
	revealPerFrame = 4
	saveTimeout    = 5 * time.Second
	syncTimeout    = 30 * time.Second
)

const (
	statusIdle     = "Press space to start your run."
	statusStarted  = "Run started. Keep moving!"
	statusPaused   = "Paused. Press p or space to resume."
	statusComplete = "Run complete. Press r to run again."
	statusTheEnd   = "The End."
)

// RunSaver persists finished and abandoned runs.
type RunSaver interface {
	InsertRun(ctx context.Context, run model.RunStats, choices []model.RunChoice) error
}

// Options wires the player. Ticks, Runs and Syncer may be nil.
type Options struct {
	Machine     *story.Machine
	Ticks       <-chan clock.Tick
	HeartRate   heartrate.Source
	Runs        RunSaver
	Syncer      *syncer.Syncer
	CatalogPath string
	Now         func() time.Time
}

type (
	tickMsg     clock.Tick
	frameMsg    time.Time
	syncDoneMsg struct {
		report syncer.Report
		err    error
	}
	runSavedMsg struct {
		run model.RunStats
		err error
	}
)

type activeRun struct {
	id        string
	startedAt time.Time
	choices   []model.RunChoice
	finished  bool
}

// Model implements the Bubble Tea story player.
type Model struct {
	machine     *story.Machine
	ticks       <-chan clock.Tick
	hr          heartrate.Source
	runs        RunSaver
	syncer      *syncer.Syncer
	catalogPath string
	now         func() time.Time

	keys keyMap
	help help.Model
	bar  progress.Model

	width  int
	height int

	phase        float64
	revealed     int
	segmentIndex int
	cursor       int

	run      *activeRun
	recorder heartrate.Recorder
	lastRun  *model.RunStats
	status   string
	syncing  bool
}

var (
	textStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4A4A4A"))
	dialogueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAAD14"))
	chaseStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	chapterStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	optionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	waveStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF7A90"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	cardStyle     = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
)

// NewModel constructs the story player.
func NewModel(opts Options) *Model {
	m := &Model{
		machine:     opts.Machine,
		ticks:       opts.Ticks,
		hr:          opts.HeartRate,
		runs:        opts.Runs,
		syncer:      opts.Syncer,
		catalogPath: opts.CatalogPath,
		now:         opts.Now,
		keys:        defaultKeyMap(),
		help:        help.New(),
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		status:      statusIdle,
	}
	if m.hr == nil {
		m.hr = heartrate.NewSynthetic()
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.segmentIndex = m.machine.Snapshot().CurrentSegmentIndex
	m.machine.Subscribe(m.onSnapshot)
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{frameCmd()}
	if m.ticks != nil {
		cmds = append(cmds, waitForTick(m.ticks))
	}
	return tea.Batch(cmds...)
}

// LastRun returns the most recently ended run, if any.
func (m *Model) LastRun() (model.RunStats, bool) {
	if m.lastRun == nil {
		return model.RunStats{}, false
	}
	return *m.lastRun, true
}

func waitForTick(ch <-chan clock.Tick) tea.Cmd {
	return func() tea.Msg {
		t, ok := <-ch
		if !ok {
			return nil
		}
		return tickMsg(t)
	}
}

func frameCmd() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.bar.Width = max(10, m.contentWidth()/2)
		return m, nil
	case tickMsg:
		m.handleTick()
		return m, waitForTick(m.ticks)
	case frameMsg:
		m.handleFrame()
		return m, frameCmd()
	case syncDoneMsg:
		m.syncing = false
		m.status = m.syncer.Status()
		if msg.err != nil && msg.report.Submitted == 0 && !errors.Is(msg.err, syncer.ErrNoWorkouts) {
			m.status = fmt.Sprintf("Sync failed: %s", msg.err)
		}
		return m, nil
	case runSavedMsg:
		if msg.err != nil {
			log.Errorf("failed to save run %s: %s", msg.run.ID, msg.err)
			m.status = "Could not save run history."
			return m, nil
		}
		log.Infof("run %s saved (elapsed %ds, finale %t)", msg.run.ID, msg.run.ElapsedSeconds, msg.run.ReachedFinale)
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if cmd := m.endRun(); cmd != nil {
			return tea.Sequence(cmd, tea.Quit)
		}
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Sync):
		return m.startSync()
	case key.Matches(msg, m.keys.Reset):
		return m.restart()
	case key.Matches(msg, m.keys.Pause):
		m.togglePause()
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.Pick):
		return m.choose(int(msg.String()[0] - '1'))
	case key.Matches(msg, m.keys.Advance):
		return m.advance()
	}
	return nil
}

func (m *Model) handleTick() {
	bpm := m.hr.Sample()
	if !m.active() || !m.running() {
		return
	}
	m.recorder.Add(bpm)
	m.machine.Tick()
}

func (m *Model) handleFrame() {
	step := wavePhaseStep
	if m.machine.CurrentSegment().IsChaseScene {
		step *= chaseSpeedup
	}
	m.phase -= step
	if m.active() {
		m.revealed = min(m.revealed+revealPerFrame, m.textLen())
	}
}

func (m *Model) active() bool {
	return m.run != nil && !m.run.finished
}

func (m *Model) running() bool {
	return m.machine.Snapshot().IsRunning
}

func (m *Model) textLen() int {
	return len([]rune(m.machine.CurrentSegment().Text))
}

// onSnapshot resets per-segment view state when the machine moves. It runs
// synchronously inside machine calls made from Update.
func (m *Model) onSnapshot(snap story.Snapshot) {
	if snap.CurrentSegmentIndex == m.segmentIndex {
		return
	}
	m.segmentIndex = snap.CurrentSegmentIndex
	m.revealed = 0
	m.cursor = 0
}

func (m *Model) startRun() {
	m.machine.StartRun()
	m.recorder.Reset()
	m.run = &activeRun{id: uuid.NewString(), startedAt: m.now()}
	m.segmentIndex = 0
	m.revealed = 0
	m.cursor = 0
	m.status = statusStarted
	log.Infof("run %s started (mode %s)", m.run.id, m.machine.Options().Mode)
}

func (m *Model) restart() tea.Cmd {
	cmd := m.endRun()
	m.machine.Reset()
	m.recorder.Reset()
	m.run = nil
	m.segmentIndex = 0
	m.revealed = 0
	m.cursor = 0
	m.status = statusIdle
	return cmd
}

func (m *Model) togglePause() {
	if !m.active() {
		return
	}
	if m.running() {
		m.machine.Pause()
		m.status = statusPaused
		return
	}
	m.machine.Resume()
	m.status = ""
}

func (m *Model) moveCursor(delta int) {
	n := len(m.machine.CurrentSegment().Options)
	if n == 0 {
		return
	}
	m.cursor = (m.cursor + delta + n) % n
}

func (m *Model) advance() tea.Cmd {
	if m.run == nil {
		m.startRun()
		return nil
	}
	if m.run.finished {
		m.status = statusComplete
		return nil
	}
	if !m.running() {
		m.machine.Resume()
		m.status = ""
		return nil
	}
	if n := m.textLen(); m.revealed < n {
		m.revealed = n
		return nil
	}
	seg := m.machine.CurrentSegment()
	if seg.HasOptions() {
		return m.choose(m.cursor)
	}
	switch m.machine.AdvanceIfAllowed() {
	case story.ResultAdvanced:
		m.status = ""
	case story.ResultLocked:
		m.status = m.lockedStatus()
	case story.ResultAtEnd:
		m.status = statusTheEnd
		return m.endRun()
	}
	return nil
}

func (m *Model) choose(idx int) tea.Cmd {
	if !m.active() || !m.running() {
		return nil
	}
	snap := m.machine.Snapshot()
	seg := snap.Segment
	if idx < 0 || idx >= len(seg.Options) {
		return nil
	}
	option := seg.Options[idx]
	res := m.machine.Choose(option)
	if res == story.ResultNoChoice || res == story.ResultNotRunning {
		return nil
	}
	m.run.choices = append(m.run.choices, model.RunChoice{
		SegmentID:      seg.ID,
		SegmentIndex:   snap.CurrentSegmentIndex,
		Option:         option,
		ElapsedSeconds: snap.ElapsedTime,
	})
	if res == story.ResultAtEnd {
		m.status = statusTheEnd
		return m.endRun()
	}
	m.status = "You chose: " + option
	return nil
}

func (m *Model) lockedStatus() string {
	snap := m.machine.Snapshot()
	if snap.IsCountingDown {
		if m.machine.Options().Mode == story.ModeChapterGate {
			return fmt.Sprintf("Next chapter unlocks in %ds.", snap.Countdown)
		}
		return fmt.Sprintf("Catch your breath: %ds before the story moves on.", snap.Countdown)
	}
	next := m.machine.Catalog().SegmentAt(snap.CurrentSegmentIndex + 1)
	return fmt.Sprintf("Keep moving. The next chapter starts at minute %d.", next.RunTime)
}

// endRun closes the active run and returns a command that persists it.
func (m *Model) endRun() tea.Cmd {
	if !m.active() {
		return nil
	}
	m.machine.Pause()
	snap := m.machine.Snapshot()
	hr := m.recorder.Summary()
	run := model.RunStats{
		ID:             m.run.id,
		StartedAt:      m.run.startedAt,
		EndedAt:        m.now(),
		Mode:           m.machine.Options().Mode.String(),
		CatalogPath:    m.catalogPath,
		ElapsedSeconds: snap.ElapsedTime,
		FinalIndex:     snap.CurrentSegmentIndex,
		FinalSegmentID: snap.Segment.ID,
		ReachedFinale:  snap.Segment.IsFinale,
		HRMin:          hr.Min,
		HRMax:          hr.Max,
		HRAvg:          hr.Avg,
	}
	choices := append([]model.RunChoice(nil), m.run.choices...)
	m.run.finished = true
	m.lastRun = &run
	if m.runs == nil {
		return nil
	}
	saver := m.runs
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		return runSavedMsg{run: run, err: saver.InsertRun(ctx, run, choices)}
	}
}

func (m *Model) startSync() tea.Cmd {
	if m.syncer == nil {
		m.status = "Sync is not configured."
		return nil
	}
	if m.syncing {
		return nil
	}
	m.syncing = true
	m.status = "Syncing workouts..."
	s := m.syncer
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		report, err := s.Sync(ctx)
		return syncDoneMsg{report: report, err: err}
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	content := m.renderCard()
	footer := m.renderFooter()
	if m.width == 0 || m.height == 0 {
		return content + "\n" + footer
	}
	helpLine := m.help.View(m.keys)
	reserved := 1 + lipgloss.Height(helpLine)
	if m.height < reserved+3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-reserved, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	helpBlock := lipgloss.PlaceHorizontal(m.width, lipgloss.Center, helpLine)
	return body + "\n" + footerLine + "\n" + helpBlock
}

func (m *Model) contentWidth() int {
	if m.width == 0 {
		return 72
	}
	return max(20, int(float64(m.width)*0.70))
}

func (m *Model) renderCard() string {
	width := m.contentWidth()
	textWidth := max(1, width-cardStyle.GetHorizontalFrameSize())
	snap := m.machine.Snapshot()
	seg := snap.Segment

	style := cardStyle
	base := textStyle
	switch {
	case seg.IsChaseScene:
		style = style.BorderForeground(lipgloss.Color("#FF4D4F"))
	case seg.IsHeartRateWarning:
		style = style.BorderForeground(lipgloss.Color("#FAAD14"))
		base = warningStyle
	}

	var sections []string
	if m.run == nil {
		sections = append(sections,
			titleStyle.Render("Ready to run?"),
			chapterStyle.Render(fmt.Sprintf("%d segments · %s mode", m.machine.Catalog().Len(), m.machine.Options().Mode)),
			textStyle.Render(statusIdle),
		)
	} else {
		sections = append(sections, m.renderHeader(snap))
		text := wrapStyledRunes(buildStyledRunes([]rune(seg.Text), m.revealed, base), textWidth)
		sections = append(sections, text)
		if opts := m.renderOptions(seg); opts != "" {
			sections = append(sections, opts)
		}
		if gate := m.renderGate(snap); gate != "" {
			sections = append(sections, gate)
		}
	}

	wave := waveStyle
	if seg.IsChaseScene && m.run != nil {
		wave = chaseStyle
	}
	sections = append(sections, wave.Render(renderWave(textWidth, m.hr.BPM(), m.phase)))

	return style.Width(width - style.GetHorizontalBorderSize()).Render(strings.Join(sections, "\n\n"))
}

func (m *Model) renderHeader(snap story.Snapshot) string {
	seg := snap.Segment
	header := titleStyle.Render(seg.Title)
	meta := chapterStyle.Render(fmt.Sprintf("minute %d · %d/%d", seg.RunTime, snap.CurrentSegmentIndex+1, m.machine.Catalog().Len()))
	var tags []string
	if seg.IsHeartRateWarning {
		tags = append(tags, warningStyle.Render("♥ HEART RATE CHECK"))
	}
	if seg.IsChaseScene {
		tags = append(tags, chaseStyle.Render("» CHASE «"))
	}
	if seg.IsFinale {
		tags = append(tags, dialogueStyle.Render("FINALE"))
	}
	line := header + "  " + meta
	if len(tags) > 0 {
		line += "  " + strings.Join(tags, " ")
	}
	return line
}

func (m *Model) renderOptions(seg story.Segment) string {
	if !seg.HasOptions() {
		return ""
	}
	lines := make([]string, 0, len(seg.Options))
	for i, opt := range seg.Options {
		if i == m.cursor {
			lines = append(lines, selectedStyle.Render(fmt.Sprintf("> %d. %s", i+1, opt)))
			continue
		}
		lines = append(lines, optionStyle.Render(fmt.Sprintf("  %d. %s", i+1, opt)))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderGate(snap story.Snapshot) string {
	opts := m.machine.Options()
	if snap.IsCountingDown {
		label := fmt.Sprintf("Unlocks in %2ds ", snap.Countdown)
		if opts.Mode == story.ModeAuto {
			label = fmt.Sprintf("Recover %2ds ", snap.Countdown)
		}
		done := 1 - float64(snap.Countdown)/float64(opts.UnlockCountdown)
		return chapterStyle.Render(label) + m.bar.ViewAs(done)
	}
	if opts.Mode == story.ModeChapterGate && snap.IsSectionUnlocked && !snap.Segment.HasOptions() {
		return dialogueStyle.Render("Next chapter unlocked. Press space.")
	}
	return ""
}

func (m *Model) renderFooter() string {
	snap := m.machine.Snapshot()
	segments := []string{
		fmt.Sprintf("♥ %d bpm", m.hr.BPM()),
		statsPkg.FormatClock(snap.ElapsedTime),
		m.phaseLabel(snap),
		m.machine.Options().Mode.String(),
	}
	if m.status != "" {
		segments = append(segments, m.status)
	}
	return footerStyle.Render(strings.Join(segments, "  ·  "))
}

func (m *Model) phaseLabel(snap story.Snapshot) string {
	switch {
	case m.run == nil:
		return "ready"
	case m.run.finished:
		return "complete"
	case !snap.IsRunning:
		return "paused"
	default:
		return snap.Phase.String()
	}
}
