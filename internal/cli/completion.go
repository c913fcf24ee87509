package cli

import (
	"os"
	"strings"

	"github.com/guiyumin/clipget/internal/core/platform"
	"github.com/guiyumin/clipget/internal/core/store"
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for clipget.

Bash:
  # Add to ~/.bashrc:
  source <(clipget completion bash)

  # Or install to system:
  clipget completion bash > /etc/bash_completion.d/clipget

Zsh:
  # Add to ~/.zshrc:
  source <(clipget completion zsh)

  # Or install to fpath:
  clipget completion zsh > "${fpath[1]}/_clipget"

Fish:
  clipget completion fish > ~/.config/fish/completions/clipget.fish

PowerShell:
  clipget completion powershell >> $PROFILE
`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletion(os.Stdout)
		default:
			return cmd.Help()
		}
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)

	configGetCmd.ValidArgsFunction = completeConfigKey
	configSetCmd.ValidArgsFunction = completeConfigKey
	configUnsetCmd.ValidArgsFunction = completeConfigKey
}

func qualityNames() []string {
	names := []string{"best"}
	for _, q := range platform.Tiers() {
		names = append(names, q.Label())
	}
	return names
}

func completeQuality(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return filterPrefix(qualityNames(), "", toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeStatuses completes the last entry of a comma-separated list.
func completeStatuses(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	head, last := "", toComplete
	if i := strings.LastIndex(toComplete, ","); i >= 0 {
		head, last = toComplete[:i+1], toComplete[i+1:]
	}
	names := make([]string, 0, len(store.Statuses()))
	for _, s := range store.Statuses() {
		names = append(names, string(s))
	}
	return filterPrefix(names, head, last), cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}

func completeConfigKey(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return filterPrefix(configKeyNames(), "", toComplete), cobra.ShellCompDirectiveNoFileComp
}

func filterPrefix(names []string, head, prefix string) []string {
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			out = append(out, head+n)
		}
	}
	return out
}
