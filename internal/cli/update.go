package cli

import (
	"fmt"
	"os"

	"github.com/guiyumin/clipget/internal/core/updater"
	"github.com/spf13/cobra"
)

var updateCheck bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update clipget to the latest release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !updateCheck {
			return updater.Update(cmd.Context(), os.Stdout)
		}
		latest, newer, err := updater.Check(cmd.Context())
		if err != nil {
			return err
		}
		if newer {
			fmt.Printf("%s is available. Run 'clipget update' to install it.\n", latest.Version())
		} else {
			fmt.Println("Already up to date")
		}
		return nil
	},
}

func init() {
	updateCmd.Flags().BoolVar(&updateCheck, "check", false, "only report whether an update is available")
	rootCmd.AddCommand(updateCmd)
}
