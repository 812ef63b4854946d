package commands

import (
	"fmt"
	"os"

	"coursemirror/lib/hls"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(variantsCmd)
}

var variantsCmd = &cobra.Command{
	Use:   "variants <manifest-url>",
	Short: "Fetches a stream manifest and prints its renditions, best first.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := hls.NewClient()
		manifest, base, err := client.FetchManifest(cmd.Context(), args[0])
		if err != nil {
			fatal("failed to fetch manifest", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Label", "Bandwidth", "Resolution", "URL"})
		for _, v := range hls.ParseVariants(manifest, base) {
			resolution := ""
			if v.Height > 0 {
				resolution = fmt.Sprintf("%dx%d", v.Width, v.Height)
			}
			t.AppendRow(table.Row{v.Label, v.Bandwidth, resolution, v.URL})
		}
		t.Render()
	},
}
