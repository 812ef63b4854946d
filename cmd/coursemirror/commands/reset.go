package commands

import (
	"fmt"
	"log/slog"

	"coursemirror/internal/ledger"
	"coursemirror/lib/platforms"

	"github.com/spf13/cobra"
)

var resetYes *bool

func init() {
	resetYes = resetCmd.Flags().Bool("yes", false, "Confirm wiping the community's sync state.")
	rootCmd.AddCommand(resetCmd)
}

var resetCmd = &cobra.Command{
	Use:   "reset --yes <community-url>",
	Short: "Forgets everything mirrored for a community so the next sync starts fresh.",
	Long: "Forgets everything mirrored for a community so the next sync starts fresh.\n" +
		"Files on disk are left alone; only the sync-state database is cleared.",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if !*resetYes {
			fatal("refusing to reset", fmt.Errorf("pass --yes to confirm"))
		}

		cfg, err := loadConfig()
		if err != nil {
			fatal("failed to read config", err)
		}

		slug := platforms.DefaultRegistry().ExtractCommunitySlug(args[0])
		store, err := ledger.Open(cfg.CacheDir, slug)
		if err != nil {
			fatal("failed to open ledger", err)
		}
		defer store.Close()

		if err := store.Clear(cmd.Context()); err != nil {
			fatal("failed to clear ledger", err)
		}
		slog.Info("sync state cleared", "community", slug)
	},
}
