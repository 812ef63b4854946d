package commands

import (
	"os"

	"coursemirror/internal/ledger"
	"coursemirror/lib/platforms"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status <community-url>",
	Short: "Lists the lessons already mirrored for a community.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
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

		entries, err := store.Entries(cmd.Context())
		if err != nil {
			fatal("failed to list ledger entries", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Key", "Title", "Completed", "Files"})
		for _, e := range entries {
			t.AppendRow(table.Row{
				e.Key,
				e.Title,
				e.CompletedAt.Format("2006-01-02 15:04"),
				len(e.Assets),
			})
		}
		t.Render()
	},
}
