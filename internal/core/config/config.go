package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/guiyumin/clipget/internal/core/platform"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName = "config.yml"
	AppDirName     = "clipget"

	// EnvPrefix prefixes every environment override, e.g. CLIPGET_SERVER_PORT.
	EnvPrefix = "CLIPGET"
)

// ConfigDir returns the standard config directory for clipget.
// Windows: %APPDATA%\clipget\
// macOS/Linux: ~/.config/clipget/
func ConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, AppDirName), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppDirName), nil
}

// ConfigPath returns the path to the config file. CLIPGET_CONFIG_FILE
// overrides the default location.
func ConfigPath() (string, error) {
	if p := os.Getenv(EnvPrefix + "_CONFIG_FILE"); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

type Config struct {
	// Language of user-visible messages ("en", "tr")
	Language string `yaml:"language,omitempty" envconfig:"LANGUAGE"`

	// Default output directory of the file sink
	OutputDir string `yaml:"output_dir,omitempty" envconfig:"OUTPUT_DIR"`

	// Preferred quality tier (e.g., "1080p", "720p"); "best" takes the highest
	Quality string `yaml:"quality,omitempty" envconfig:"QUALITY"`

	// Notifications selects the notifier: "console", "log" or "none"
	Notifications string `yaml:"notifications,omitempty" envconfig:"NOTIFICATIONS"`

	Server   ServerConfig   `yaml:"server,omitempty" envconfig:"SERVER"`
	Resolver ResolverConfig `yaml:"resolver,omitempty" envconfig:"RESOLVER"`
	Browser  BrowserConfig  `yaml:"browser,omitempty" envconfig:"BROWSER"`
	Storage  StorageConfig  `yaml:"storage,omitempty" envconfig:"STORAGE"`
}

// ServerConfig holds HTTP server settings for `clipget serve`
type ServerConfig struct {
	// Port is the HTTP listen port (default: 8080)
	Port int `yaml:"port,omitempty" envconfig:"PORT"`

	// MaxConcurrent is the max number of concurrent downloads (default: 2)
	MaxConcurrent int `yaml:"max_concurrent,omitempty" envconfig:"MAX_CONCURRENT"`

	// APIKey for authentication (optional, if set mutating requests must include X-API-Key header)
	APIKey string `yaml:"api_key,omitempty" envconfig:"API_KEY"`
}

// ResolverConfig tunes how post URLs are resolved.
type ResolverConfig struct {
	FetchTimeout  time.Duration `yaml:"fetch_timeout,omitempty" envconfig:"FETCH_TIMEOUT"`
	RenderTimeout time.Duration `yaml:"render_timeout,omitempty" envconfig:"RENDER_TIMEOUT"`
	SettleDelay   time.Duration `yaml:"settle_delay,omitempty" envconfig:"SETTLE_DELAY"`

	// Strategies overrides the strategy order per platform, e.g.
	//   strategies:
	//     twitter: [syndication, page]
	Strategies map[string][]string `yaml:"strategies,omitempty" ignored:"true"`
}

// BrowserConfig controls the headless browser used as the last resort.
type BrowserConfig struct {
	// Disabled turns the rendered-page fallback off
	Disabled bool `yaml:"disabled,omitempty" envconfig:"DISABLED"`

	// Visible shows the browser window, for debugging
	Visible bool `yaml:"visible,omitempty" envconfig:"VISIBLE"`

	// Bin is the browser binary; rod downloads one when empty
	Bin string `yaml:"bin,omitempty" envconfig:"BIN"`
}

// StorageConfig selects where records and files are kept.
type StorageConfig struct {
	// Records is "memory", "json" or "postgres"
	Records string `yaml:"records,omitempty" envconfig:"RECORDS"`

	// RecordsPath is the JSON records file
	RecordsPath string `yaml:"records_path,omitempty" envconfig:"RECORDS_PATH"`

	// PostgresDSN is the connection string; the PG_* variables are used when empty
	PostgresDSN string `yaml:"postgres_dsn,omitempty" envconfig:"POSTGRES_DSN"`

	// Sink is "file", "webdav" or "s3"
	Sink string `yaml:"sink,omitempty" envconfig:"SINK"`

	// SlugNames stores files under ASCII slugs of their titles
	SlugNames bool `yaml:"slug_names,omitempty" envconfig:"SLUG_NAMES"`

	WebDAV WebDAVConfig `yaml:"webdav,omitempty" envconfig:"WEBDAV"`
	S3     S3Config     `yaml:"s3,omitempty" envconfig:"S3"`
}

// WebDAVConfig is the WebDAV sink's target directory and credentials.
type WebDAVConfig struct {
	// URL is the WebDAV directory (e.g., "https://dav.example.com/videos")
	URL      string `yaml:"url,omitempty" envconfig:"URL"`
	Username string `yaml:"username,omitempty" envconfig:"USERNAME"`
	Password string `yaml:"password,omitempty" envconfig:"PASSWORD"`
}

// S3Config is the S3 sink's bucket. Credentials fall back to the AWS
// environment when empty.
type S3Config struct {
	Region          string `yaml:"region,omitempty" envconfig:"REGION"`
	Bucket          string `yaml:"bucket,omitempty" envconfig:"BUCKET"`
	Prefix          string `yaml:"prefix,omitempty" envconfig:"PREFIX"`
	Endpoint        string `yaml:"endpoint,omitempty" envconfig:"ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" envconfig:"SECRET_ACCESS_KEY"`
}

// Plans returns the configured strategy orders keyed by platform. Unknown
// platform names are reported as an error.
func (c *Config) Plans() (map[platform.Platform][]string, error) {
	plans := make(map[platform.Platform][]string, len(c.Resolver.Strategies))
	for name, strategies := range c.Resolver.Strategies {
		p := platform.Parse(name)
		if p == platform.Unknown {
			return nil, fmt.Errorf("resolver.strategies: unknown platform %q", name)
		}
		plans[p] = strategies
	}
	return plans, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: %q is not one of %s", field, value, strings.Join(allowed, ", ")))
	}

	oneOf("notifications", c.Notifications, "console", "log", "none")
	oneOf("storage.records", c.Storage.Records, "memory", "json", "postgres")
	oneOf("storage.sink", c.Storage.Sink, "file", "webdav", "s3")
	if c.Quality != "best" && !platform.QualityTier(c.Quality).Valid() {
		errs = append(errs, fmt.Errorf("quality: unknown tier %q", c.Quality))
	}
	if c.Storage.Sink == "webdav" && c.Storage.WebDAV.URL == "" {
		errs = append(errs, errors.New("storage.webdav.url is required for the webdav sink"))
	}
	if c.Storage.Sink == "s3" && c.Storage.S3.Bucket == "" {
		errs = append(errs, errors.New("storage.s3.bucket is required for the s3 sink"))
	}
	if _, err := c.Plans(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DefaultDownloadDir returns the default download directory
// Windows: ~/Downloads/clipget
// macOS: ~/Downloads/clipget
// Linux: ~/downloads
func DefaultDownloadDir() string {
	// Docker: use the default container path (users mount their volume here)
	if IsRunningInDocker() {
		return "/home/clipget/downloads"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./downloads"
	}

	switch runtime.GOOS {
	case "darwin", "windows":
		return filepath.Join(home, "Downloads", "clipget")
	default:
		return filepath.Join(home, "downloads")
	}
}

// IsRunningInDocker detects if we're running inside a Docker container
func IsRunningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		content := string(data)
		if strings.Contains(content, "docker") || strings.Contains(content, "containerd") {
			return true
		}
	}
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// DefaultRecordsPath is where the JSON store keeps download records.
func DefaultRecordsPath() string {
	dir, err := ConfigDir()
	if err != nil {
		return "downloads.json"
	}
	return filepath.Join(dir, "downloads.json")
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Language:      "en",
		OutputDir:     DefaultDownloadDir(),
		Quality:       "720p",
		Notifications: "console",
		Server: ServerConfig{
			Port:          8080,
			MaxConcurrent: 2,
		},
		Resolver: ResolverConfig{
			FetchTimeout:  30 * time.Second,
			RenderTimeout: 15 * time.Second,
			SettleDelay:   2 * time.Second,
		},
		Storage: StorageConfig{
			Records:     "json",
			RecordsPath: DefaultRecordsPath(),
			Sink:        "file",
		},
	}
}

// Exists checks if config file exists
func Exists() bool {
	path, err := ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Load reads the config file over the defaults, then applies CLIPGET_*
// environment overrides.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile is Load for an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with CLIPGET_* environment variables, e.g.
// CLIPGET_STORAGE_SINK or CLIPGET_RESOLVER_FETCH_TIMEOUT=10s.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("parsing environment variables: %w", err)
	}
	cfg.OutputDir = expandPath(cfg.OutputDir)
	cfg.Storage.RecordsPath = expandPath(cfg.Storage.RecordsPath)
	return nil
}

// expandPath expands the tilde (~) in the path to the user's home directory.
// Both separators are accepted so "~\Downloads" works on every platform.
func expandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		// Only expand if it's explicitly "~", "~/", or "~\"
		if len(path) == 1 || path[1] == '/' || path[1] == '\\' {
			home, err := os.UserHomeDir()
			if err == nil {
				subPath := path[1:]
				if len(subPath) > 0 && (subPath[0] == '/' || subPath[0] == '\\') {
					subPath = subPath[1:]
				}
				return filepath.Join(home, subPath)
			}
		}
	}

	return path
}

// Save writes the config to the config path.
func Save(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return SaveTo(cfg, configPath)
}

// SaveTo writes the config to path, creating its directory.
func SaveTo(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	header := "# clipget configuration file\n# Run 'clipget init' to regenerate with defaults\n\n"
	return os.WriteFile(path, []byte(header+string(data)), 0600)
}

// SavePath returns the path where config will be saved
func SavePath() string {
	if path, err := ConfigPath(); err == nil {
		return path
	}
	return ConfigFileName
}

// Init creates a new config.yml with default values
func Init() error {
	if Exists() {
		return fmt.Errorf("%s already exists", SavePath())
	}
	return Save(DefaultConfig())
}

// LoadOrDefault loads config if it exists, otherwise returns defaults with
// the environment applied. A config that exists but cannot be loaded is
// logged before falling back.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err == nil {
		return cfg
	}
	if !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: %v; using defaults", err)
	}
	cfg = DefaultConfig()
	if err := ApplyEnv(cfg); err != nil {
		log.Printf("config: %v", err)
	}
	return cfg
}
