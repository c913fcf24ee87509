package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/guiyumin/clipget/internal/core/config"
	"github.com/guiyumin/clipget/internal/core/crypto"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage clipget configuration",
	Long:  "View and modify clipget settings in config.yml",
}

// clipget config show - show current config
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadOrDefault()
		fmt.Println("Current configuration:")
		for _, key := range configKeyNames() {
			fmt.Printf("  %-26s %s\n", key+":", displayValue(key, configKeys[key].get(cfg)))
		}
		fmt.Printf("  %-26s %s\n", "config:", config.SavePath())
		if len(cfg.Resolver.Strategies) > 0 {
			fmt.Println("\nStrategies:")
			names := make([]string, 0, len(cfg.Resolver.Strategies))
			for p := range cfg.Resolver.Strategies {
				names = append(names, p)
			}
			sort.Strings(names)
			for _, p := range names {
				fmt.Printf("  %s: %s\n", p, strings.Join(cfg.Resolver.Strategies[p], ", "))
			}
		}
	},
}

// clipget config path - show config file path
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.SavePath())
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Set a configuration value",
	Long: `Set a configuration value in config.yml.

Run 'clipget config show' to see every key. Secrets such as
storage.webdav.password are prompted for when the value is omitted.
With --encrypt a secret is stored sealed under a passphrase, taken from
$CLIPGET_PASSPHRASE or prompted for; clipget then needs the same
variable set to run.

Examples:
  clipget config set language tr
  clipget config set quality 1080p
  clipget config set storage.sink webdav
  clipget config set --encrypt storage.webdav.password`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		k, ok := configKeys[key]
		if !ok {
			return unknownKey(key)
		}

		var value string
		switch {
		case len(args) == 2:
			value = args[1]
		case k.secret:
			fmt.Printf("%s: ", key)
			b, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", key, err)
			}
			value = string(b)
		default:
			return fmt.Errorf("missing value for %s", key)
		}

		if configEncrypt {
			if !config.IsSecret(key) {
				return fmt.Errorf("%s is not a secret and cannot be encrypted", key)
			}
			sealed, err := sealValue(value)
			if err != nil {
				return err
			}
			value = sealed
		}

		cfg := config.LoadOrDefault()
		if err := k.set(cfg, value); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Set %s = %s\n", key, displayValue(key, value))
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, ok := configKeys[args[0]]
		if !ok {
			return unknownKey(args[0])
		}
		fmt.Println(k.get(config.LoadOrDefault()))
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Reset a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		k, ok := configKeys[key]
		if !ok {
			return unknownKey(key)
		}
		cfg := config.LoadOrDefault()
		if err := k.set(cfg, k.get(config.DefaultConfig())); err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Unset %s\n", key)
		return nil
	},
}

var configEncrypt bool

func init() {
	configSetCmd.Flags().BoolVar(&configEncrypt, "encrypt", false, "store a secret encrypted with a passphrase")
	configCmd.AddCommand(configShowCmd, configPathCmd, configSetCmd, configGetCmd, configUnsetCmd)
	rootCmd.AddCommand(configCmd)
}

type configKey struct {
	get    func(*config.Config) string
	set    func(*config.Config, string) error
	secret bool
}

func stringKey(field func(*config.Config) *string) configKey {
	return configKey{
		get: func(c *config.Config) string { return *field(c) },
		set: func(c *config.Config, v string) error { *field(c) = v; return nil },
	}
}

func secretKey(field func(*config.Config) *string) configKey {
	k := stringKey(field)
	k.secret = true
	return k
}

func intKey(field func(*config.Config) *int) configKey {
	return configKey{
		get: func(c *config.Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid number: %s", v)
			}
			*field(c) = n
			return nil
		},
	}
}

func boolKey(field func(*config.Config) *bool) configKey {
	return configKey{
		get: func(c *config.Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *config.Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean: %s", v)
			}
			*field(c) = b
			return nil
		},
	}
}

func durationKey(field func(*config.Config) *time.Duration) configKey {
	return configKey{
		get: func(c *config.Config) string { return field(c).String() },
		set: func(c *config.Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", v)
			}
			*field(c) = d
			return nil
		},
	}
}

var configKeys = map[string]configKey{
	"language":      stringKey(func(c *config.Config) *string { return &c.Language }),
	"output_dir":    stringKey(func(c *config.Config) *string { return &c.OutputDir }),
	"quality":       stringKey(func(c *config.Config) *string { return &c.Quality }),
	"notifications": stringKey(func(c *config.Config) *string { return &c.Notifications }),

	"server.port":           intKey(func(c *config.Config) *int { return &c.Server.Port }),
	"server.max_concurrent": intKey(func(c *config.Config) *int { return &c.Server.MaxConcurrent }),
	"server.api_key":        secretKey(func(c *config.Config) *string { return &c.Server.APIKey }),

	"resolver.fetch_timeout":  durationKey(func(c *config.Config) *time.Duration { return &c.Resolver.FetchTimeout }),
	"resolver.render_timeout": durationKey(func(c *config.Config) *time.Duration { return &c.Resolver.RenderTimeout }),
	"resolver.settle_delay":   durationKey(func(c *config.Config) *time.Duration { return &c.Resolver.SettleDelay }),

	"browser.disabled": boolKey(func(c *config.Config) *bool { return &c.Browser.Disabled }),
	"browser.visible":  boolKey(func(c *config.Config) *bool { return &c.Browser.Visible }),
	"browser.bin":      stringKey(func(c *config.Config) *string { return &c.Browser.Bin }),

	"storage.records":              stringKey(func(c *config.Config) *string { return &c.Storage.Records }),
	"storage.records_path":         stringKey(func(c *config.Config) *string { return &c.Storage.RecordsPath }),
	"storage.postgres_dsn":         secretKey(func(c *config.Config) *string { return &c.Storage.PostgresDSN }),
	"storage.sink":                 stringKey(func(c *config.Config) *string { return &c.Storage.Sink }),
	"storage.slug_names":           boolKey(func(c *config.Config) *bool { return &c.Storage.SlugNames }),
	"storage.webdav.url":           stringKey(func(c *config.Config) *string { return &c.Storage.WebDAV.URL }),
	"storage.webdav.username":      stringKey(func(c *config.Config) *string { return &c.Storage.WebDAV.Username }),
	"storage.webdav.password":      secretKey(func(c *config.Config) *string { return &c.Storage.WebDAV.Password }),
	"storage.s3.region":            stringKey(func(c *config.Config) *string { return &c.Storage.S3.Region }),
	"storage.s3.bucket":            stringKey(func(c *config.Config) *string { return &c.Storage.S3.Bucket }),
	"storage.s3.prefix":            stringKey(func(c *config.Config) *string { return &c.Storage.S3.Prefix }),
	"storage.s3.endpoint":          stringKey(func(c *config.Config) *string { return &c.Storage.S3.Endpoint }),
	"storage.s3.access_key_id":     stringKey(func(c *config.Config) *string { return &c.Storage.S3.AccessKeyID }),
	"storage.s3.secret_access_key": secretKey(func(c *config.Config) *string { return &c.Storage.S3.SecretAccessKey }),
}

func configKeyNames() []string {
	names := make([]string, 0, len(configKeys))
	for k := range configKeys {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// displayValue masks secrets.
func displayValue(key, value string) string {
	if configKeys[key].secret && value != "" {
		return "********"
	}
	return value
}

// sealValue encrypts v under the passphrase from the environment, prompting
// twice when it is unset.
func sealValue(v string) (string, error) {
	pass := config.Passphrase()
	if pass == "" {
		fmt.Print("Passphrase: ")
		first, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase: %w", err)
		}
		fmt.Print("Repeat passphrase: ")
		second, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase: %w", err)
		}
		if string(first) != string(second) {
			return "", fmt.Errorf("passphrases do not match")
		}
		pass = string(first)
	}
	return crypto.Seal(v, pass)
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown config key: %s\nRun 'clipget config show' to see supported keys", key)
}
