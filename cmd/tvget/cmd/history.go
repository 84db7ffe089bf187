package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/tvget/internal/config"
	"github.com/jmylchreest/tvget/internal/database"
	"github.com/jmylchreest/tvget/internal/observability"
	"github.com/jmylchreest/tvget/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query and purge the download history",
	Long:  `Look up or remove a completed-download record, keyed by video id and format.`,
}

var (
	historyVideoID string
	historyFormat  string
)

var historyGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show a download history record",
	RunE:  runHistoryGet,
}

var historyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove a download history record",
	RunE:  runHistoryPurge,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyGetCmd)
	historyCmd.AddCommand(historyPurgeCmd)

	for _, c := range []*cobra.Command{historyGetCmd, historyPurgeCmd} {
		c.Flags().StringVar(&historyVideoID, "video-id", "", "video id to look up (required)")
		c.Flags().StringVar(&historyFormat, "format", "", "format string used at download time (required)")
		_ = c.MarkFlagRequired("video-id")
		_ = c.MarkFlagRequired("format")
	}
}

func newHistoryStore() (*store.HistoryStore, func() error, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := observability.NewLogger(cfg.Logging)

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	history := store.NewHistoryStore(db)
	if err := history.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrating history store: %w", err)
	}
	return history, db.Close, nil
}

func runHistoryGet(cmd *cobra.Command, args []string) error {
	history, closeDB, err := newHistoryStore()
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	record, err := history.Get(context.Background(), historyVideoID, historyFormat)
	if err != nil {
		return fmt.Errorf("looking up history record: %w", err)
	}
	if record == nil {
		fmt.Printf("no history record for video %s format %s\n", historyVideoID, historyFormat)
		return nil
	}
	fmt.Printf("video_id: %s\nformat: %s\ntitle: %s\nuploader: %s\ncompleted: %s\n",
		record.VideoID, record.Format, record.Title, record.Uploader, record.CompletionTimestamp)
	return nil
}

func runHistoryPurge(cmd *cobra.Command, args []string) error {
	history, closeDB, err := newHistoryStore()
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	if err := history.Remove(context.Background(), historyVideoID, historyFormat); err != nil {
		return fmt.Errorf("purging history record: %w", err)
	}
	fmt.Printf("removed history record for video %s format %s\n", historyVideoID, historyFormat)
	return nil
}
