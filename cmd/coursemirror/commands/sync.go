package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"coursemirror/internal/browser"
	"coursemirror/internal/ledger"
	"coursemirror/internal/shutdown"
	"coursemirror/internal/syncer"
	"coursemirror/internal/transport"
	"coursemirror/lib/hls"
	"coursemirror/lib/platforms"
	"coursemirror/lib/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync <community-url>...",
	Short: "Mirrors one or more communities, resuming where a previous run stopped.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("failed to read config", err)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		telemetry.InstrumentPerfStats(ctx)

		coord := shutdown.NewCoordinator()
		coord.Notify(ctx)

		// a second interrupt abandons in-flight transfers immediately
		go func() {
			<-coord.Forced()
			cancel()
		}()

		var summaries []syncer.Summary
		for _, communityURL := range args {
			if !coord.ShouldContinue() {
				break
			}
			summary, err := syncCommunity(ctx, cfg, coord, communityURL)
			summaries = append(summaries, summary)
			if err != nil {
				slog.Error("community sync stopped early",
					"community", summary.Community,
					"err", err,
				)
			}
		}

		coord.RunCleanups(ctx)
		printSummaries(summaries)
	},
}

// syncCommunity builds an isolated pipeline for one community: its own
// session, its own ledger, a shared shutdown coordinator.
func syncCommunity(ctx context.Context, cfg Config, coord *shutdown.Coordinator, communityURL string) (syncer.Summary, error) {
	registry := platforms.DefaultRegistry()
	slug := registry.ExtractCommunitySlug(communityURL)

	store, err := ledger.Open(cfg.CacheDir, slug)
	if err != nil {
		return syncer.Summary{Community: slug}, fmt.Errorf("open ledger: %w", err)
	}
	coord.OnCleanup("ledger:"+slug, func(context.Context) error {
		return store.Close()
	})

	session, err := browser.NewHttpSession(browser.SessionOptions{
		Cookies:   cfg.Cookies,
		UserAgent: cfg.UserAgent,
	})
	if err != nil {
		return syncer.Summary{Community: slug}, fmt.Errorf("create session: %w", err)
	}
	coord.OnCleanup("session:"+slug, func(context.Context) error {
		return session.Close()
	})

	s := syncer.New(syncer.Params{
		Session:    session,
		Ledger:     store,
		Downloader: transport.NewHttpDownloader(),
		Manifests:  hls.NewClient(),
		Registry:   registry,
		Coord:      coord,
		OutputRoot: cfg.OutputRoot,
		MaxHeight:  cfg.MaxHeight,
	})
	return s.Run(ctx, communityURL)
}

func printSummaries(summaries []syncer.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Community", "Completed", "Skipped", "Failed", "Interrupted"})
	for _, s := range summaries {
		t.AppendRow(table.Row{
			s.Community,
			s.Completed,
			s.Skipped,
			len(s.Failed),
			s.Interrupted,
		})
	}
	t.Render()

	for _, s := range summaries {
		for _, f := range s.Failed {
			fmt.Printf("failed: [%s] %s: %s\n", s.Community, failureLabel(f), f.Err)
		}
	}
}

func failureLabel(f syncer.LessonFailure) string {
	if f.Title != "" {
		return f.Title
	}
	return f.Key
}
