package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/tvget/internal/binmanager"
	"github.com/jmylchreest/tvget/internal/config"
	"github.com/jmylchreest/tvget/internal/controller"
	"github.com/jmylchreest/tvget/internal/database"
	"github.com/jmylchreest/tvget/internal/dupcheck"
	"github.com/jmylchreest/tvget/internal/events"
	"github.com/jmylchreest/tvget/internal/metadata"
	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/observability"
	"github.com/jmylchreest/tvget/internal/playlist"
	"github.com/jmylchreest/tvget/internal/scheduler"
	"github.com/jmylchreest/tvget/internal/status"
	"github.com/jmylchreest/tvget/internal/storage"
	"github.com/jmylchreest/tvget/internal/store"
	"github.com/jmylchreest/tvget/internal/taskstore"
	"github.com/jmylchreest/tvget/internal/ytdlp"
)

// runCmd starts the Scheduler and Controller and blocks until a
// termination signal is received, persisting the task list on the way
// out.
var runCmd = &cobra.Command{
	Use:   "run [url...]",
	Short: "Run the download orchestration core",
	Long: `Start the Scheduler and Controller and block until interrupted.

This is the headless download engine: it classifies and
enqueues URLs, dispatches a worker pool against yt-dlp/ffmpeg, tracks
task and download history, and persists the task list across restarts.
Presentation (GUI or remote CLI) is an external collaborator, not part
of this process.

Any URLs given as arguments are enqueued at startup. A URL carrying
both a video and a list parameter is ambiguous; pass --playlist to
expand it as a playlist, or --force to download the single video.
Without either flag such a URL is rejected.`,
	RunE: runRun,
}

var (
	runPreferPlaylist bool
	runForce          bool
)

func init() {
	runCmd.Flags().BoolVar(&runPreferPlaylist, "playlist", false, "treat ambiguous URLs as playlists")
	runCmd.Flags().BoolVar(&runForce, "force", false, "re-download even if the video is already in history (purges the history entry)")
	rootCmd.AddCommand(runCmd)
}

// enqueuerFunc adapts a closure to playlist.Enqueuer, letting the
// Expander hand expanded children to a Controller that is constructed
// after the Expander itself.
type enqueuerFunc func(priority int, task *models.Task)

func (f enqueuerFunc) Enqueue(priority int, task *models.Task) { f(priority, task) }

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)

	sandbox, err := storage.NewSandbox(cfg.Storage.BaseDir)
	if err != nil {
		return fmt.Errorf("creating data sandbox: %w", err)
	}

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	history := store.NewHistoryStore(db)
	if err := history.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating history store: %w", err)
	}

	binaries := store.NewBinaryVersionStore(db)
	if err := binaries.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating binary version store: %w", err)
	}

	binMgr := binmanager.New(binaries, cfg.Storage.BinDir, cfg.Binaries, logger)
	if ok, err := binMgr.EnsurePresent(ctx, nil, nil); err != nil {
		return fmt.Errorf("ensuring yt-dlp/ffmpeg are present: %w", err)
	} else if !ok {
		return fmt.Errorf("yt-dlp/ffmpeg installation did not complete; run 'tvget bin update'")
	}

	downloaderPath, ok := binMgr.YtdlpPath()
	if !ok {
		return fmt.Errorf("yt-dlp is not installed; run 'tvget bin update'")
	}
	muxerPath, ok := binMgr.FfmpegPath()
	if !ok {
		return fmt.Errorf("ffmpeg is not installed; run 'tvget bin update'")
	}
	wrapper := ytdlp.NewWrapper(downloaderPath, muxerPath, logger)

	updateChecker := binMgr.StartPeriodicCheck(ctx)
	defer updateChecker.Stop()

	taskStore := taskstore.New(sandbox)
	dup := dupcheck.New(history)
	metadataFetcher := metadata.New(wrapper)
	bus := events.NewBus()

	sched := scheduler.New(wrapper, metadataFetcher, bus, logger)

	var ctrl *controller.Controller
	activeTasks := func() []*models.Task {
		if ctrl == nil {
			return nil
		}
		return ctrl.Tasks()
	}
	adopt := enqueuerFunc(func(priority int, task *models.Task) {
		if ctrl != nil {
			ctrl.Enqueue(priority, task)
		}
	})
	expander := playlist.New(wrapper, adopt, history, activeTasks, logger)
	ctrl = controller.New(sched, taskStore, history, dup, expander, logger)

	if err := ctrl.LoadTasks(); err != nil {
		return fmt.Errorf("loading tasks: %w", err)
	}

	listenCtx, cancelListen := context.WithCancel(ctx)
	defer cancelListen()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	go ctrl.Listen(listenCtx, sub)

	statusSrv := status.NewServer(cfg.Server, ctrl, sched, logger)
	go func() {
		if err := statusSrv.Start(); err != nil {
			logger.Error("status endpoint failed", "error", err)
		}
	}()
	defer func() {
		if err := statusSrv.Shutdown(context.Background()); err != nil {
			logger.Warn("status endpoint shutdown failed", "error", err)
		}
	}()

	maxDownloads := cfg.Settings.MaxDownloads
	if maxDownloads <= 0 {
		maxDownloads = 1
	}
	if cfg.Settings.UseAcceleration {
		// Accelerated downloads already fan out into concurrent fragment
		// fetches; clamp the worker pool to 1 so outbound concurrency
		// isn't amplified further.
		maxDownloads = 1
	}
	sched.Initialize(maxDownloads)

	logger.Info("tvget started", "workers", maxDownloads, "data_dir", cfg.Storage.BaseDir)

	for _, rawURL := range args {
		if err := enqueueURL(ctx, ctrl, rawURL, cfg.Settings, logger); err != nil {
			logger.Error("not enqueued", "url", rawURL, "error", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if err := ctrl.Shutdown(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

// enqueueURL resolves one startup URL through the Controller's add
// path, applying the --playlist and --force flags in place of the
// interactive prompts a GUI front end would show.
func enqueueURL(ctx context.Context, ctrl *controller.Controller, rawURL string, settings config.SettingsConfig, logger *slog.Logger) error {
	add := ctrl.Add
	if runForce {
		add = func(ctx context.Context, u string, s config.SettingsConfig) (*models.Task, error) {
			return ctrl.AddWithConsent(ctx, u, s, runPreferPlaylist)
		}
	} else if runPreferPlaylist {
		add = func(ctx context.Context, u string, s config.SettingsConfig) (*models.Task, error) {
			return ctrl.AddAs(ctx, u, s, true)
		}
	}

	task, err := add(ctx, rawURL, settings)
	switch {
	case errors.Is(err, models.ErrAmbiguousURL):
		return fmt.Errorf("%w; pass --playlist to expand it, or strip the list parameter", err)
	case errors.Is(err, models.ErrDuplicateDownload):
		return fmt.Errorf("%w; pass --force to download it again", err)
	case err != nil:
		return err
	}

	if task != nil {
		logger.Info("enqueued", "task_id", task.ID, "url", task.Origin)
	}
	return nil
}
