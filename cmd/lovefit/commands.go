package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/lovefit/internal/chat"
	"github.com/verte-zerg/lovefit/internal/model"
	"github.com/verte-zerg/lovefit/internal/progress"
	"github.com/verte-zerg/lovefit/internal/progressapi"
	"github.com/verte-zerg/lovefit/internal/server"
	"github.com/verte-zerg/lovefit/internal/stats"
	"github.com/verte-zerg/lovefit/internal/statsui"
	"github.com/verte-zerg/lovefit/internal/story"
	"github.com/verte-zerg/lovefit/internal/syncer"
	"github.com/verte-zerg/lovefit/internal/workout"
)

const defaultTrendWindow = 5

var (
	syncBaseURL string
	syncMock    bool
	syncTest    bool
	syncContent bool
	syncTimeout time.Duration
	syncSubmit  int

	workoutType     string
	workoutDistance float64
	workoutDuration time.Duration
	workoutEnded    string
	workoutLimit    int

	historyMode   string
	historySince  string
	historyLast   int
	historyWindow int
	historyTUI    bool

	chatUser   string
	chatAudio  string
	chatBot    bool
	chatFollow bool

	serveAddr string

	catalogPath string
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Submit recent workouts to the progress server",
		Args:  cobra.NoArgs,
		RunE:  runSyncCmd,
	}
	cmd.Flags().StringVar(&syncBaseURL, "base-url", progressapi.DefaultBaseURL, "progress API base URL")
	cmd.Flags().BoolVar(&syncMock, "mock", false, "submit a fixed test workout instead of recorded ones")
	cmd.Flags().BoolVar(&syncTest, "test", false, "only test the server connection")
	cmd.Flags().BoolVar(&syncContent, "content", false, "print unlocked and locked stories after syncing")
	cmd.Flags().DurationVar(&syncTimeout, "timeout", defaultSyncTimeout, "HTTP timeout")
	cmd.Flags().IntVar(&syncSubmit, "submit", syncer.DefaultSubmit, "number of recent workouts to submit")
	return cmd
}

func runSyncCmd(cmd *cobra.Command, _ []string) error {
	cfg := resolveSyncConfig(cmd)
	if cfg.Submit <= 0 {
		return fmt.Errorf("--submit must be > 0")
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	s := newSyncer(cfg, st)

	if syncTest {
		if err := s.TestConnection(ctx); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, s.Status())
		return err
	}

	var report syncer.Report
	if cfg.Mock {
		report, err = s.SyncMock(ctx)
	} else {
		report, err = s.Sync(ctx)
	}
	if errors.Is(err, syncer.ErrNoWorkouts) {
		_, werr := fmt.Fprintln(out, s.Status())
		return werr
	}
	if err != nil {
		return err
	}

	lines := []string{
		s.Status(),
		fmt.Sprintf("Found %d, submitted %d, dropped %d", report.Found, report.Submitted, report.Dropped),
	}
	if p := report.Progress; p != nil {
		lines = append(lines, fmt.Sprintf("Total distance: %.0f m, total duration: %.0f s, unlocked: %s",
			p.TotalDistance, p.TotalDuration, joinOrNone(p.UnlockedStories)))
	}
	if syncContent {
		client := progressapi.NewClient(cfg.BaseURL, nil)
		content, err := client.AvailableContent(ctx, progress.DefaultUserID)
		if err != nil {
			return fmt.Errorf("failed to fetch available content: %w", err)
		}
		lines = append(lines,
			"Unlocked stories: "+joinOrNone(content.UnlockedStories),
			"Locked stories: "+joinOrNone(content.LockedStories),
		)
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newWorkoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workout",
		Short: "Record and list workouts",
	}
	add := &cobra.Command{
		Use:   "add",
		Short: "Record a workout",
		Args:  cobra.NoArgs,
		RunE:  runWorkoutAddCmd,
	}
	add.Flags().StringVar(&workoutType, "type", workout.TypeRunning, "activity: running, walking, hiking, cycling")
	add.Flags().Float64Var(&workoutDistance, "distance", 1000, "distance in meters")
	add.Flags().DurationVar(&workoutDuration, "duration", 10*time.Minute, "workout duration")
	add.Flags().StringVar(&workoutEnded, "ended", "", "end time (RFC3339, default: now)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List recent workouts",
		Args:  cobra.NoArgs,
		RunE:  runWorkoutListCmd,
	}
	list.Flags().IntVar(&workoutLimit, "limit", workout.RecentLimit, "number of workouts")

	cmd.AddCommand(add, list)
	return cmd
}

func runWorkoutAddCmd(cmd *cobra.Command, _ []string) error {
	if workoutDistance < 0 {
		return fmt.Errorf("--distance must be >= 0")
	}
	if workoutDuration <= 0 {
		return fmt.Errorf("--duration must be > 0")
	}
	w := workout.Workout{
		Type:     workoutType,
		Distance: workoutDistance,
		Duration: workoutDuration.Seconds(),
	}
	if workoutEnded != "" {
		ended, err := time.Parse(time.RFC3339, workoutEnded)
		if err != nil {
			return fmt.Errorf("invalid --ended value: %w", err)
		}
		w.EndedAt = ended
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	saved, err := workout.NewStoreSource(st).Add(cmd.Context(), w)
	if err != nil {
		return fmt.Errorf("failed to save workout: %w", err)
	}
	log.Infof("workout %d recorded: %s %.0fm %.0fs", saved.ID, saved.Type, saved.Distance, saved.Duration)
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Recorded workout #%d: %s\n", saved.ID, describeWorkout(saved))
	return err
}

func runWorkoutListCmd(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	workouts, err := workout.NewStoreSource(st).Recent(cmd.Context(), workoutLimit)
	if err != nil {
		return fmt.Errorf("failed to list workouts: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(workouts) == 0 {
		_, err := fmt.Fprintln(out, "No workouts recorded. Add one with: lovefit workout add")
		return err
	}
	for _, w := range workouts {
		if _, err := fmt.Fprintf(out, "#%-4d %s  %s\n", w.ID, w.EndedAt.Local().Format("2006-01-02 15:04"), describeWorkout(w)); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func describeWorkout(w workout.Workout) string {
	return fmt.Sprintf("%s %.0f m in %s", w.Type, w.Distance, stats.FormatClock(int(w.Duration)))
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show story run history",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyMode, "mode", "", "mode filter (auto, chapter-gate)")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N runs")
	cmd.Flags().IntVar(&historyWindow, "window", defaultTrendWindow, "moving average window for the trend line")
	cmd.Flags().BoolVar(&historyTUI, "tui", false, "browse runs interactively")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	var sinceTime *time.Time
	if historySince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", historySince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	if historyLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	cfg := model.HistoryConfig{
		Mode:  historyMode,
		Since: sinceTime,
		Last:  historyLast,
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	if historyTUI {
		browser := statsui.NewModel(st, cfg, historyWindow)
		program := tea.NewProgram(browser, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("failed to run history TUI: %w", err)
		}
		return nil
	}

	report, err := stats.BuildReport(cmd.Context(), st, cfg)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	out := cmd.OutOrStdout()
	if err := stats.RenderSummary(out, report.Runs); err != nil {
		return err
	}
	if err := stats.RenderRunTable(out, report.Runs); err != nil {
		return err
	}
	return stats.RenderTrend(out, report.Runs, historyWindow, stats.TerminalWidth())
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Send and read story chat messages",
	}
	cmd.PersistentFlags().StringVar(&chatUser, "user", progress.DefaultUserID, "conversation user id")

	send := &cobra.Command{
		Use:   "send <text>",
		Short: "Append a message",
		Args:  cobra.ArbitraryArgs,
		RunE:  runChatSendCmd,
	}
	send.Flags().StringVar(&chatAudio, "audio", "", "audio attachment URL")
	send.Flags().BoolVar(&chatBot, "bot", false, "send as the story narrator")

	list := &cobra.Command{
		Use:   "list",
		Short: "Print the conversation",
		Args:  cobra.NoArgs,
		RunE:  runChatListCmd,
	}
	list.Flags().BoolVar(&chatFollow, "follow", false, "keep polling for new messages")

	cmd.AddCommand(send, list)
	return cmd
}

func runChatSendCmd(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	msg, err := chat.NewLog(st).Send(cmd.Context(), chatUser, strings.Join(args, " "), chatAudio, !chatBot)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	log.Debugf("chat message %s stored for %s", msg.ID, msg.UserID)
	return printMessages(cmd, []model.Message{msg})
}

func runChatListCmd(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	chatLog := chat.NewLog(st)
	history, err := chatLog.History(ctx, chatUser)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	if err := printMessages(cmd, history); err != nil {
		return err
	}
	if !chatFollow {
		return nil
	}

	var since time.Time
	if len(history) > 0 {
		since = history[len(history)-1].Timestamp
	}
	for batch := range chatLog.Listen(ctx, chatUser, since, chat.DefaultPollInterval) {
		if err := printMessages(cmd, batch); err != nil {
			return err
		}
	}
	return nil
}

func printMessages(cmd *cobra.Command, msgs []model.Message) error {
	out := cmd.OutOrStdout()
	for _, m := range msgs {
		who := "story"
		if m.IsUser {
			who = "you"
		}
		line := fmt.Sprintf("[%s] %s: %s", m.Timestamp.Local().Format("15:04:05"), who, m.Text)
		if m.AudioURL != "" {
			line += " (audio: " + m.AudioURL + ")"
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "serve",
		Short:       "Run the local progress server",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationLogStdout: "true"},
		RunE:        runServeCmd,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", defaultServerAddr, "listen address")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	applyStringConfig(cmd, "addr", &serveAddr, fileCfg.Server.Addr)
	engine := progress.NewEngine(nil)
	srv := server.NewServer(engine, nil)
	if err := srv.Serve(cmd.Context(), serveAddr); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the story segments in play order",
		Args:  cobra.NoArgs,
		RunE:  runCatalogCmd,
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "custom YAML story catalog (default: built-in story)")
	return cmd
}

func runCatalogCmd(cmd *cobra.Command, _ []string) error {
	applyStringConfig(cmd, "catalog", &catalogPath, fileCfg.Story.Catalog)
	catalog, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for i, seg := range catalog.Segments() {
		if _, err := fmt.Fprintf(out, "%3d  min %-3d %-5s %s\n", i+1, seg.RunTime, segmentFlags(seg), seg.Title); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	_, err = fmt.Fprintf(out, "%d segments, %d minutes\n", catalog.Len(), catalog.SegmentAt(catalog.Len()-1).RunTime)
	return err
}

// segmentFlags renders H (heart-rate warning), C (chase), F (finale) and
// O (waits for a choice), with '.' for unset flags.
func segmentFlags(seg story.Segment) string {
	flags := []byte("....")
	if seg.IsHeartRateWarning {
		flags[0] = 'H'
	}
	if seg.IsChaseScene {
		flags[1] = 'C'
	}
	if seg.IsFinale {
		flags[2] = 'F'
	}
	if seg.HasOptions() {
		flags[3] = 'O'
	}
	return string(flags)
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
