// Package main provides the CLI entrypoint for lovefit.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/lovefit/internal/clock"
	"github.com/verte-zerg/lovefit/internal/config"
	"github.com/verte-zerg/lovefit/internal/heartrate"
	"github.com/verte-zerg/lovefit/internal/logging"
	"github.com/verte-zerg/lovefit/internal/model"
	"github.com/verte-zerg/lovefit/internal/progressapi"
	"github.com/verte-zerg/lovefit/internal/stats"
	"github.com/verte-zerg/lovefit/internal/store"
	"github.com/verte-zerg/lovefit/internal/story"
	"github.com/verte-zerg/lovefit/internal/syncer"
	"github.com/verte-zerg/lovefit/internal/tui"
	"github.com/verte-zerg/lovefit/internal/workout"
)

const (
	defaultMode        = "auto"
	defaultSyncTimeout = 10 * time.Second
	defaultServerAddr  = ":5001"
	defaultLogLevel    = "info"
)

// commands annotated with this key log to stdout unless configured otherwise
const annotationLogStdout = "log-stdout"

var (
	configPath string
	logLevel   string
	fileCfg    config.FileConfig
	logCloser  io.Closer

	playMode      string
	playCountdown int
	playHRGate    bool
	playCatalog   string
	playTick      time.Duration
	playBPM       int
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "lovefit",
		Short:             "Interactive running story driven by elapsed exercise time",
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: setupCmd,
		PersistentPostRun: func(*cobra.Command, []string) {
			if logCloser != nil {
				if err := logCloser.Close(); err != nil {
					logErrf("failed to close log file: %v\n", err)
				}
			}
		},
		RunE: runPlayCmd,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")

	rootCmd.Flags().StringVar(&playMode, "mode", defaultMode, "story mode: auto or chapter-gate")
	rootCmd.Flags().IntVar(&playCountdown, "countdown", story.DefaultUnlockCountdown, "seconds a chapter stays locked in chapter-gate mode")
	rootCmd.Flags().BoolVar(&playHRGate, "hr-gate", false, "hold auto-advance on heart-rate warning segments")
	rootCmd.Flags().StringVar(&playCatalog, "catalog", "", "custom YAML story catalog (default: built-in story)")
	rootCmd.Flags().DurationVar(&playTick, "tick", clock.DefaultInterval, "length of one story second")
	rootCmd.Flags().IntVar(&playBPM, "bpm", 0, "fixed heart rate instead of synthetic readings")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newWorkoutCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCatalogCmd())

	return rootCmd
}

// setupCmd loads the config file with environment overrides and configures
// logging for every subcommand.
func setupCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	fileCfg = cfg

	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	logFile := config.DefaultLogPath()
	if fileCfg.Log.File != nil {
		logFile = *fileCfg.Log.File
	}
	toStdout := cmd.Annotations[annotationLogStdout] == "true"
	if fileCfg.Log.Stdout != nil {
		toStdout = *fileCfg.Log.Stdout
	}
	formatJSON := fileCfg.Log.JSON != nil && *fileCfg.Log.JSON
	logCloser = logging.Setup(logging.SetupParams{
		LogFileName:   logFile,
		LogToStdout:   toStdout,
		LogLevel:      logLevel,
		LogFormatJSON: formatJSON,
	})
	log.Debugf("lovefit %s: config %s", cmd.Name(), configPath)
	return nil
}

func runPlayCmd(cmd *cobra.Command, _ []string) error {
	applyStringConfig(cmd, "mode", &playMode, fileCfg.Story.Mode)
	applyIntConfig(cmd, "countdown", &playCountdown, fileCfg.Story.Countdown)
	applyBoolConfig(cmd, "hr-gate", &playHRGate, fileCfg.Story.HeartRateGate)
	applyStringConfig(cmd, "catalog", &playCatalog, fileCfg.Story.Catalog)

	cfg := model.Config{
		Mode:          playMode,
		Countdown:     playCountdown,
		HeartRateGate: playHRGate,
		CatalogPath:   playCatalog,
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}
	if playTick <= 0 {
		return fmt.Errorf("--tick must be > 0")
	}
	if playBPM < 0 {
		return fmt.Errorf("--bpm must be >= 0")
	}
	mode, err := story.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	machine := story.NewMachine(catalog, story.Options{
		Mode:            mode,
		UnlockCountdown: cfg.Countdown,
		HeartRateGate:   cfg.HeartRateGate,
	})

	var hr heartrate.Source = heartrate.NewSynthetic()
	if playBPM > 0 {
		hr = heartrate.Fixed(playBPM)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	clk := clock.New(playTick)
	clk.Start(ctx)
	defer clk.Stop()

	catalogLabel := cfg.CatalogPath
	if catalogLabel == "" {
		catalogLabel = "builtin"
	}
	player := tui.NewModel(tui.Options{
		Machine:     machine,
		Ticks:       clk.Ticks(),
		HeartRate:   hr,
		Runs:        st,
		Syncer:      newSyncer(resolveSyncConfig(cmd), st),
		CatalogPath: catalogLabel,
	})
	log.Infof("starting story: %d segments, mode %s, countdown %ds, heart-rate gate %t",
		catalog.Len(), mode, cfg.Countdown, cfg.HeartRateGate)
	program := tea.NewProgram(player, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	if run, ok := player.LastRun(); ok {
		status := "abandoned"
		if run.ReachedFinale {
			status = "finished"
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Run %s after %s at segment %d/%d.\n",
			status, stats.FormatClock(run.ElapsedSeconds), run.FinalIndex+1, catalog.Len()); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func loadCatalog(path string) (*story.Catalog, error) {
	if path == "" {
		catalog, err := story.DefaultCatalog()
		if err != nil {
			return nil, fmt.Errorf("failed to load built-in catalog: %w", err)
		}
		return catalog, nil
	}
	catalog, err := story.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	return catalog, nil
}

func openStore() (*store.Store, error) {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		log.Errorf("failed to close db: %s", err)
	}
}

// resolveSyncConfig merges the [sync] section with any sync flags defined on cmd.
func resolveSyncConfig(cmd *cobra.Command) model.SyncConfig {
	cfg := model.SyncConfig{
		BaseURL: progressapi.DefaultBaseURL,
		Timeout: defaultSyncTimeout,
		Submit:  syncer.DefaultSubmit,
	}
	if v := fileCfg.Sync.BaseURL; v != nil {
		cfg.BaseURL = *v
	}
	if v := fileCfg.Sync.Mock; v != nil {
		cfg.Mock = *v
	}
	if v := fileCfg.Sync.TimeoutSec; v != nil && *v > 0 {
		cfg.Timeout = time.Duration(*v) * time.Second
	}
	if v := fileCfg.Sync.Submit; v != nil && *v > 0 {
		cfg.Submit = *v
	}
	if cmd.Flags().Lookup("base-url") == nil {
		return cfg
	}
	if cmd.Flags().Changed("base-url") {
		cfg.BaseURL = syncBaseURL
	}
	if cmd.Flags().Changed("mock") {
		cfg.Mock = syncMock
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = syncTimeout
	}
	if cmd.Flags().Changed("submit") {
		cfg.Submit = syncSubmit
	}
	return cfg
}

func newSyncer(cfg model.SyncConfig, st *store.Store) *syncer.Syncer {
	client := progressapi.NewClient(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout})
	var src workout.Source = workout.NewStoreSource(st)
	if cfg.Mock {
		src = workout.NewMockSource(time.Now().UnixNano())
	}
	return syncer.New(client, src, cfg.Submit)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.DefaultTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func validateConfig(cfg model.Config) error {
	if _, err := story.ParseMode(cfg.Mode); err != nil {
		return fmt.Errorf("--mode must be auto or chapter-gate")
	}
	if cfg.Countdown <= 0 {
		return fmt.Errorf("--countdown must be > 0")
	}
	if cfg.CatalogPath != "" {
		if _, err := os.Stat(cfg.CatalogPath); err != nil {
			return fmt.Errorf("--catalog: %w", err)
		}
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
