package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/tvget/internal/binmanager"
	"github.com/jmylchreest/tvget/internal/config"
	"github.com/jmylchreest/tvget/internal/database"
	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/observability"
	"github.com/jmylchreest/tvget/internal/store"
)

var binCmd = &cobra.Command{
	Use:   "bin",
	Short: "Manage the yt-dlp and ffmpeg binaries",
	Long:  `Check for and install updates to the managed yt-dlp and ffmpeg binaries.`,
}

var binStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show installed binary versions and check for updates",
	RunE:  runBinStatus,
}

var binUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Install or update the yt-dlp and ffmpeg binaries",
	RunE:  runBinUpdate,
}

func init() {
	rootCmd.AddCommand(binCmd)
	binCmd.AddCommand(binStatusCmd)
	binCmd.AddCommand(binUpdateCmd)
}

func newBinManager() (*binmanager.Manager, func() error, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := observability.NewLogger(cfg.Logging)

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	versions := store.NewBinaryVersionStore(db)
	if err := versions.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrating binary version store: %w", err)
	}

	manager := binmanager.New(versions, cfg.Storage.BinDir, cfg.Binaries, logger)
	return manager, db.Close, nil
}

func runBinStatus(cmd *cobra.Command, args []string) error {
	manager, closeDB, err := newBinManager()
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	ctx := context.Background()
	for _, name := range []models.BinaryName{models.BinaryDownloader, models.BinaryMuxer} {
		path, installed := pathFor(manager, name)
		if !installed {
			fmt.Printf("%s: not installed\n", name)
			continue
		}
		fmt.Printf("%s: installed at %s\n", name, path)
	}

	updates, err := manager.CheckUpdates(ctx)
	if err != nil {
		return fmt.Errorf("checking for updates: %w", err)
	}
	if len(updates) == 0 {
		fmt.Println("up to date")
		return nil
	}
	for name, info := range updates {
		fmt.Printf("%s: update available (%s -> %s)\n", name, info.Current, info.Latest)
	}
	return nil
}

func runBinUpdate(cmd *cobra.Command, args []string) error {
	manager, closeDB, err := newBinManager()
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	ok, err := manager.EnsurePresent(context.Background(), func(name models.BinaryName, downloaded, total int64) {
		if total > 0 {
			fmt.Printf("\r%s: %d/%d bytes", name, downloaded, total)
		}
	}, nil)
	if err != nil {
		return fmt.Errorf("installing binaries: %w", err)
	}
	fmt.Println()
	if !ok {
		return fmt.Errorf("binary installation did not complete")
	}

	updates, err := manager.CheckUpdates(context.Background())
	if err != nil {
		return fmt.Errorf("checking for updates: %w", err)
	}
	if len(updates) == 0 {
		fmt.Println("already up to date")
		return nil
	}

	subset := make([]models.BinaryName, 0, len(updates))
	for name := range updates {
		subset = append(subset, name)
	}
	if ok, err := manager.Update(context.Background(), subset, func(name models.BinaryName, downloaded, total int64) {
		if total > 0 {
			fmt.Printf("\r%s: %d/%d bytes", name, downloaded, total)
		}
	}, nil); err != nil {
		return fmt.Errorf("updating binaries: %w", err)
	} else if !ok {
		return fmt.Errorf("binary update did not complete")
	}
	fmt.Println()
	return nil
}

func pathFor(manager *binmanager.Manager, name models.BinaryName) (string, bool) {
	if name == models.BinaryDownloader {
		return manager.YtdlpPath()
	}
	return manager.FfmpegPath()
}
