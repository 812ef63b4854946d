package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"coursemirror/lib/configutil"
	"coursemirror/lib/telemetry"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "coursemirror",
	Short: "coursemirror incrementally mirrors paid course content onto local disk.",
}

var debugFlag *bool

func init() {
	debugFlag = rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging.")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*debugFlag)
	}
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Config is the explicit, validated run configuration. Only the fields
// below are user-settable; there is no dynamic merge of arbitrary keys.
type Config struct {
	// OutputRoot is where mirrored communities are laid out.
	OutputRoot string `json:"output_root"`
	// CacheDir holds one sync-state database per community.
	CacheDir string `json:"cache_dir"`
	// MaxHeight caps variant selection, e.g. 1080; zero means best
	// available.
	MaxHeight int `json:"max_height"`
	// Cookies is the authenticated session cookie header.
	Cookies string `json:"cookies"`
	// UserAgent optionally overrides the default browser user agent.
	UserAgent string `json:"user_agent"`
}

func (c Config) validate() error {
	if c.OutputRoot == "" {
		return fmt.Errorf("config: output_root is required")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("config: cache_dir is required")
	}
	if c.MaxHeight < 0 {
		return fmt.Errorf("config: max_height must be >= 0")
	}
	return nil
}

func loadConfig() (Config, error) {
	cfg, err := configutil.Load[Config]("config.json5")
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(1)
}
