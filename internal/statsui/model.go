// Package statsui provides the Bubble Tea run history browser.
package statsui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/lovefit/internal/model"
	"github.com/verte-zerg/lovefit/internal/stats"
)

const (
	tabOverview = iota
	tabRuns
	tabChoices
)

const defaultWindow = 5

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	optionStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#E8C07D"))
)

// Store is the history surface the browser reads from.
type Store interface {
	stats.RunLister
	ListRunChoices(ctx context.Context, runID string) ([]model.RunChoice, error)
}

// Model implements the Bubble Tea history UI.
type Model struct {
	store  Store
	cfg    model.HistoryConfig
	window int

	// runs is newest first, matching the table rows.
	runs      []model.RunAggregate
	choices   []model.RunChoice
	choicesOf string
	errMsg    string

	tabs      []string
	activeTab int
	viewports []viewport.Model
	runTable  table.Model

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string
}

// NewModel constructs a history UI model. window is the moving average
// window of the trend line.
func NewModel(st Store, cfg model.HistoryConfig, window int) *Model {
	if window < 1 {
		window = defaultWindow
	}
	m := &Model{
		store:  st,
		cfg:    cfg,
		window: window,
		tabs:   []string{"Overview", "Runs", "Choices"},
	}
	m.initInputs()
	m.runTable = buildRunTable(nil, 0, 1)
	m.initViewports()
	m.refreshReport()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || (!m.filterMode && msg.String() == "q") {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "=":
			m.window = nextWindow(m.window)
			m.renderTabContents()
			return m, nil
		case "-":
			m.window = prevWindow(m.window)
			m.renderTabContents()
			return m, nil
		case "/":
			return m.startFilter()
		case "enter":
			if m.activeTab == tabRuns && len(m.runs) > 0 {
				m.activeTab = tabChoices
				m.runTable.Blur()
				m.loadChoices()
				m.renderTabContents()
				return m, tea.ClearScreen
			}
			return m, nil
		case "g", "home":
			if m.activeTab == tabRuns {
				m.runTable.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabRuns {
				m.runTable.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == tabRuns {
				var cmd tea.Cmd
				m.runTable, cmd = m.runTable.Update(msg)
				return m, cmd
			}
			vp := m.viewports[m.activeTab]
			var cmd tea.Cmd
			vp, cmd = vp.Update(msg)
			m.viewports[m.activeTab] = vp
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

// SelectedRun returns the run under the table cursor.
func (m *Model) SelectedRun() (model.RunAggregate, bool) {
	idx := m.runTable.Cursor()
	if idx < 0 || idx >= len(m.runs) {
		return model.RunAggregate{}, false
	}
	return m.runs[idx], true
}

func (m *Model) initViewports() {
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
}

func (m *Model) initInputs() {
	m.filterInputs = []textinput.Model{
		newFilterInput("Mode: "),
		newFilterInput("Since (YYYY-MM-DD): "),
		newFilterInput("Last: "),
		newFilterInput("Trend window: "),
	}
	m.setInputsFromConfig()
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) setInputsFromConfig() {
	m.filterInputs[0].SetValue(m.cfg.Mode)
	if m.cfg.Since != nil {
		m.filterInputs[1].SetValue(m.cfg.Since.Format("2006-01-02"))
	} else {
		m.filterInputs[1].SetValue("")
	}
	if m.cfg.Last > 0 {
		m.filterInputs[2].SetValue(strconv.Itoa(m.cfg.Last))
	} else {
		m.filterInputs[2].SetValue("")
	}
	m.filterInputs[3].SetValue(strconv.Itoa(m.window))
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(1, lipgloss.Height(activeNavStyle.Render("X")))
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(1, m.height-headerHeight-footerHeight)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = bodyHeight
	}
	m.runTable.SetWidth(m.width)
	m.runTable.SetHeight(max(1, bodyHeight-1))
	for i := range m.filterInputs {
		promptWidth := lipgloss.Width(m.filterInputs[i].Prompt)
		m.filterInputs[i].Width = max(10, m.width-promptWidth-2)
	}
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := (m.activeTab + delta + count) % count
	m.activeTab = next
	if m.activeTab == tabRuns {
		m.runTable.Focus()
	} else {
		m.runTable.Blur()
	}
	if m.activeTab == tabChoices {
		m.loadChoices()
		m.renderTabContents()
	}
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	filters := padLines(m.renderFilterSummary(), m.width)
	return tabs + "\n" + filters
}

func (m *Model) renderFilterSummary() string {
	mode := m.cfg.Mode
	if mode == "" {
		mode = "any"
	}
	since := "any"
	if m.cfg.Since != nil {
		since = m.cfg.Since.Format("2006-01-02")
	}
	last := "all"
	if m.cfg.Last > 0 {
		last = strconv.Itoa(m.cfg.Last)
	}
	summary := fmt.Sprintf("Settings: mode=%s  since=%s  last=%s  window=%d", mode, since, last, m.window)
	return headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderHelp() string {
	help := "Nav: left/right  Scroll: up/down/pgup/pgdn  Window: -/=  Settings: /  Quit: q"
	if m.activeTab == tabRuns {
		help = "Nav: left/right  Select: up/down  Choices: enter  Settings: /  Quit: q"
	}
	return headerStyle.Render(truncateLine(help, m.width))
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
	}
	if m.errMsg != "" {
		return m.renderHelp() + "\n" + errorStyle.Render(m.errMsg)
	}
	return m.renderHelp()
}

func (m *Model) renderFilterForm() string {
	lines := []string{"Settings (enter to apply, esc to cancel)"}
	for _, input := range m.filterInputs {
		lines = append(lines, input.View())
	}
	if m.filterError != "" {
		lines = append(lines, errorStyle.Render(m.filterError))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderBody(height int) string {
	if m.filterMode {
		return fitLines(m.renderFilterForm(), m.width, height)
	}
	if m.activeTab == tabRuns {
		if len(m.runs) == 0 {
			return fitLines("No runs found.", m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.runTable.View()), m.width, height)
	}
	return fitLines(m.viewports[m.activeTab].View(), m.width, height)
}

func (m *Model) refreshReport() {
	report, err := stats.BuildReport(context.Background(), m.store, m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		m.runs = nil
		for i := range m.viewports {
			m.viewports[i].SetContent("Failed to load history.")
		}
		return
	}
	m.errMsg = ""
	m.runs = reversed(report.Runs)
	m.runTable.SetRows(buildRunRows(m.runs))
	m.runTable.SetCursor(0)
	m.choicesOf = ""
	m.choices = nil
	m.renderTabContents()
}

func (m *Model) loadChoices() {
	run, ok := m.SelectedRun()
	if !ok || run.ID == m.choicesOf {
		return
	}
	choices, err := m.store.ListRunChoices(context.Background(), run.ID)
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	m.choices = choices
	m.choicesOf = run.ID
}

func (m *Model) renderTabContents() {
	if len(m.viewports) == 0 || (m.errMsg != "" && m.runs == nil) {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabOverview].SetContent(renderOverview(m.runs, m.window, width))
	run, ok := m.SelectedRun()
	if !ok {
		m.viewports[tabChoices].SetContent("No runs found.")
		return
	}
	m.viewports[tabChoices].SetContent(renderChoices(run, m.choices))
}

func renderOverview(runs []model.RunAggregate, window, width int) string {
	if len(runs) == 0 {
		return "No runs found."
	}
	summary := renderSummaryCards(runs, width)
	var buf bytes.Buffer
	if err := stats.RenderTrend(&buf, reversed(runs), window, width); err != nil {
		return fmt.Sprintf("Failed to render trend: %v", err)
	}
	return strings.TrimRight(summary+"\n\n"+buf.String(), "\n")
}

func renderSummaryCards(runs []model.RunAggregate, width int) string {
	var totalSec, longest, finished, hrRuns int
	var hrSum float64
	for _, r := range runs {
		totalSec += r.ElapsedSeconds
		longest = max(longest, r.ElapsedSeconds)
		if r.ReachedFinale {
			finished++
		}
		if r.HRAvg > 0 {
			hrSum += r.HRAvg
			hrRuns++
		}
	}
	hr := "-"
	if hrRuns > 0 {
		hr = fmt.Sprintf("%.0f bpm", hrSum/float64(hrRuns))
	}
	cards := []string{
		metricCard("Runs", strconv.Itoa(len(runs))),
		metricCard("Finished", strconv.Itoa(finished)),
		metricCard("Avg Time", stats.FormatClock(totalSec/len(runs))),
		metricCard("Longest", stats.FormatClock(longest)),
		metricCard("Avg HR", hr),
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4])
	return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func renderChoices(run model.RunAggregate, choices []model.RunChoice) string {
	finale := "stopped early"
	if run.ReachedFinale {
		finale = "reached the finale"
	}
	lines := []string{
		cardValueStyle.Render(fmt.Sprintf("Run %s", run.EndedAt.Local().Format("2006-01-02 15:04"))),
		headerStyle.Render(fmt.Sprintf("%s mode, %s, %s", run.Mode, stats.FormatClock(run.ElapsedSeconds), finale)),
		"",
	}
	if len(choices) == 0 {
		lines = append(lines, "No choices recorded.")
		return strings.Join(lines, "\n")
	}
	for _, c := range choices {
		lines = append(lines, fmt.Sprintf("%s  #%-3d %-16s %s",
			stats.FormatClock(c.ElapsedSeconds), c.SegmentIndex+1, c.SegmentID, optionStyle.Render(c.Option)))
	}
	return strings.Join(lines, "\n")
}

func runColumns() []table.Column {
	return []table.Column{
		{Title: "Ended", Width: 16},
		{Title: "Mode", Width: 12},
		{Title: "Time", Width: 6},
		{Title: "Segment", Width: 7},
		{Title: "Finale", Width: 6},
		{Title: "Avg HR", Width: 6},
		{Title: "Choices", Width: 7},
	}
}

func buildRunTable(runs []model.RunAggregate, width, height int) table.Model {
	t := table.New(
		table.WithColumns(runColumns()),
		table.WithRows(buildRunRows(runs)),
		table.WithHeight(max(1, height-1)),
	)
	t.SetWidth(width)
	t.SetStyles(runTableStyles())
	return t
}

func buildRunRows(runs []model.RunAggregate) []table.Row {
	rows := make([]table.Row, 0, len(runs))
	for _, r := range runs {
		finale := "no"
		if r.ReachedFinale {
			finale = "yes"
		}
		hr := "-"
		if r.HRAvg > 0 {
			hr = fmt.Sprintf("%.0f", r.HRAvg)
		}
		rows = append(rows, table.Row{
			r.EndedAt.Local().Format("2006-01-02 15:04"),
			r.Mode,
			stats.FormatClock(r.ElapsedSeconds),
			strconv.Itoa(r.FinalIndex + 1),
			finale,
			hr,
			strconv.Itoa(r.Choices),
		})
	}
	return rows
}

func runTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.setInputsFromConfig()
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		if err := m.applyFilter(); err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filterMode = false
		m.filterError = ""
		m.refreshReport()
		m.updateLayout()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	m.filterIndex = (idx + count) % count
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) applyFilter() error {
	mode := strings.TrimSpace(m.filterInputs[0].Value())
	switch mode {
	case "", "auto", "chapter-gate":
	default:
		return errors.New("invalid mode (use auto or chapter-gate)")
	}

	var since *time.Time
	if input := strings.TrimSpace(m.filterInputs[1].Value()); input != "" {
		parsed, err := time.ParseInLocation("2006-01-02", input, time.Local)
		if err != nil {
			return errors.New("invalid since date (expected YYYY-MM-DD)")
		}
		since = &parsed
	}

	last := 0
	if input := strings.TrimSpace(m.filterInputs[2].Value()); input != "" {
		parsed, err := strconv.Atoi(input)
		if err != nil || parsed < 0 {
			return errors.New("invalid last value (use 0 or positive integer)")
		}
		last = parsed
	}

	window := defaultWindow
	if input := strings.TrimSpace(m.filterInputs[3].Value()); input != "" {
		parsed, err := strconv.Atoi(input)
		if err != nil || parsed < 1 {
			return errors.New("invalid trend window (use integer >= 1)")
		}
		window = parsed
	}

	m.cfg = model.HistoryConfig{Mode: mode, Since: since, Last: last}
	m.window = window
	return nil
}

func reversed(runs []model.RunAggregate) []model.RunAggregate {
	out := make([]model.RunAggregate, len(runs))
	for i, r := range runs {
		out[len(runs)-1-i] = r
	}
	return out
}

func nextWindow(n int) int {
	if n < 5 {
		return 5
	}
	return (n/5 + 1) * 5
}

func prevWindow(n int) int {
	if n <= 5 {
		return 1
	}
	if n%5 == 0 {
		return n - 5
	}
	return (n / 5) * 5
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
