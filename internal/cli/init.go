package cli

import (
	"errors"
	"fmt"

	"github.com/guiyumin/clipget/internal/core/config"
	"github.com/guiyumin/clipget/internal/core/i18n"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create clipget config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isTerminal() {
			t := i18n.GetTranslations(config.DefaultConfig().Language)
			if config.Exists() {
				fmt.Printf(t.Config.AlreadyExists+"\n", config.SavePath())
				return nil
			}
			if err := config.Init(); err != nil {
				return err
			}
			fmt.Printf(t.Config.Saved+"\n", config.SavePath())
			return nil
		}

		// Run interactive wizard (loads existing config as defaults if present)
		cfg, err := config.RunInitWizard()
		if errors.Is(err, config.ErrWizardCancelled) {
			fmt.Println(i18n.GetTranslations(config.LoadOrDefault().Language).Config.Cancelled)
			return nil
		}
		if err != nil {
			return err
		}

		if err := config.Save(cfg); err != nil {
			return err
		}

		fmt.Printf("\n"+i18n.GetTranslations(cfg.Language).Config.Saved+"\n", config.SavePath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
