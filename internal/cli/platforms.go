package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/guiyumin/clipget/internal/core/config"
	"github.com/guiyumin/clipget/internal/core/i18n"
	"github.com/guiyumin/clipget/internal/core/link"
	"github.com/guiyumin/clipget/internal/core/platform"
	"github.com/spf13/cobra"
)

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List supported platforms and link formats",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadOrDefault()
		printPlatforms(os.Stdout, i18n.GetTranslations(cfg.Language))
	},
}

func init() {
	rootCmd.AddCommand(platformsCmd)
}

func printPlatforms(w io.Writer, t *i18n.Translations) {
	formats := link.SupportedFormats()
	bold := color.New(color.Bold).SprintFunc()
	hint := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s:\n", t.List.Formats)
	for _, p := range platform.Supported() {
		info := p.Info()
		fmt.Fprintf(w, "\n  %s  %s\n", bold(info.DisplayName), hint(info.Description))
		for _, f := range formats[p] {
			fmt.Fprintf(w, "    • %s\n", f)
		}
		fmt.Fprintf(w, "    %s\n", hint("e.g. "+link.ExampleURL(p)))
	}
}
