package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/guiyumin/clipget/internal/core/config"
	"github.com/guiyumin/clipget/internal/core/i18n"
	"github.com/guiyumin/clipget/internal/server"
	"github.com/spf13/cobra"
)

var (
	servePort      int
	serveOutputDir string
	serveDaemon    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve [stop|status]",
	Short: "Start HTTP server for remote downloads",
	Long: `Start an HTTP server that accepts download requests via API.

Examples:
  clipget serve              # Start server on port 8080
  clipget serve -p 9000      # Start server on port 9000
  clipget serve -d           # Start server as background daemon
  clipget serve stop         # Stop the daemon

API Endpoints:
  GET    /api/health            # Health check
  GET    /api/platforms         # Supported platforms and link shapes
  POST   /api/classify          # Recognise a link in text
  POST   /api/resolve           # Resolve a post to its qualities
  POST   /api/downloads         # Queue a download
  GET    /api/downloads         # List downloads (?status=completed,failed)
  GET    /api/downloads/:id     # Get one download
  DELETE /api/downloads/:id     # Cancel or remove a download
  DELETE /api/downloads         # Cancel everything
  DELETE /api/history           # Remove completed and failed downloads
  GET    /api/queue             # Queue state
  GET    /api/queue/events      # Server-sent state and progress events
  GET    /api/stats             # Counts by status and platform`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"stop", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			switch args[0] {
			case "stop":
				return stopDaemon()
			case "status":
				return daemonStatus()
			default:
				return fmt.Errorf("unknown serve command %q", args[0])
			}
		}

		cfg := config.LoadOrDefault()
		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if serveOutputDir != "" {
			cfg.OutputDir = serveOutputDir
		}
		if serveDaemon {
			return startDaemon(cfg.Server.Port, cfg.OutputDir)
		}
		return RunServer(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP listen port (default: 8080)")
	serveCmd.Flags().StringVarP(&serveOutputDir, "output", "o", "", "output directory for downloads")
	serveCmd.Flags().BoolVarP(&serveDaemon, "daemon", "d", false, "run as background daemon")

	rootCmd.AddCommand(serveCmd)
}

// RunServer serves the HTTP API until ctx is cancelled, then waits up to
// ten seconds for running downloads.
func RunServer(ctx context.Context, cfg *config.Config) error {
	if !config.Exists() {
		t := i18n.GetTranslations(cfg.Language)
		log.Printf("%s", t.Server.NoConfigWarning)
		log.Printf("   %s", t.Server.RunInitHint)
	}

	app, err := NewApp(ctx, cfg, AppOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	srv := server.New(app.Resolver, app.Manager, server.Options{
		Port:     cfg.Server.Port,
		APIKey:   cfg.Server.APIKey,
		Language: cfg.Language,
		Quality:  cfg.Quality,
	})

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

func startDaemon(port int, outputDir string) error {
	if pid := getDaemonPID(); pid > 0 {
		if processExists(pid) {
			return fmt.Errorf("daemon already running (PID %d)", pid)
		}
		os.Remove(getPIDFilePath())
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"serve", "-p", strconv.Itoa(port)}
	if outputDir != "" {
		args = append(args, "-o", outputDir)
	}

	logPath := getLogFilePath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(executable, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	if err := savePID(cmd.Process.Pid); err != nil {
		cmd.Process.Kill()
		return fmt.Errorf("failed to save PID: %w", err)
	}

	fmt.Printf("clipget server started as daemon (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  Port: %d\n", port)
	fmt.Printf("  Log: %s\n", logPath)
	fmt.Printf("\nUse 'clipget serve stop' to stop the daemon\n")
	return nil
}

func stopDaemon() error {
	pid := getDaemonPID()
	if pid <= 0 {
		return fmt.Errorf("daemon is not running")
	}
	defer os.Remove(getPIDFilePath())

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("daemon process not found")
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	// The server gives running downloads ten seconds; wait a little longer.
	for i := 0; i < 120 && processExists(pid); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Println("Daemon stopped")
	return nil
}

func daemonStatus() error {
	pid := getDaemonPID()
	if pid <= 0 {
		fmt.Println("Daemon is not running")
		return nil
	}
	if !processExists(pid) {
		os.Remove(getPIDFilePath())
		fmt.Println("Daemon is not running (stale PID file removed)")
		return nil
	}
	fmt.Printf("Daemon is running (PID %d)\n", pid)
	fmt.Printf("Log file: %s\n", getLogFilePath())
	return nil
}

func stateFile(name string) string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, name)
}

func getPIDFilePath() string { return stateFile("serve.pid") }

func getLogFilePath() string { return stateFile("serve.log") }

func savePID(pid int) error {
	pidFile := getPIDFilePath()
	if err := os.MkdirAll(filepath.Dir(pidFile), 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0644)
}

func getDaemonPID() int {
	data, err := os.ReadFile(getPIDFilePath())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds, so send signal 0 to check
	return process.Signal(syscall.Signal(0)) == nil
}
