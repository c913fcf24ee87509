package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/guiyumin/clipget/internal/core/config"
	"github.com/guiyumin/clipget/internal/core/i18n"
	"github.com/guiyumin/clipget/internal/core/store"
	"github.com/guiyumin/clipget/internal/core/webdav"
	"github.com/spf13/cobra"
)

var (
	listStatus string
	listStats  bool
	listRemote bool
	jsonFlag   bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded downloads",
	Long: `List downloads from the record store, newest first.

Examples:
  clipget list
  clipget list --status failed,paused
  clipget list --stats
  clipget list --remote    # files in the WebDAV sink directory
  clipget list --json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "comma-separated statuses to show (pending, downloading, paused, completed, failed)")
	listCmd.Flags().BoolVar(&listStats, "stats", false, "show counts by status and platform")
	listCmd.Flags().BoolVar(&listRemote, "remote", false, "list files in the WebDAV sink instead of records")
	listCmd.Flags().BoolVar(&jsonFlag, "json", false, "output as JSON")
	listCmd.RegisterFlagCompletionFunc("status", completeStatuses)
	rootCmd.AddCommand(listCmd)
}

// parseStatuses splits a comma-separated status list.
func parseStatuses(s string) ([]store.Status, error) {
	var out []store.Status
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		st, ok := store.ParseStatus(part)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", part)
		}
		out = append(out, st)
	}
	return out, nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.LoadOrDefault()
	t := i18n.GetTranslations(cfg.Language)

	if listRemote {
		return listRemoteFiles(ctx, cfg)
	}

	statuses, err := parseStatuses(listStatus)
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	if listStats {
		return printStats(ctx, os.Stdout, st, t)
	}

	records, err := st.List(ctx, store.Filter{Statuses: statuses})
	if err != nil {
		return err
	}

	if jsonFlag {
		if records == nil {
			records = []store.Record{}
		}
		out, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	printRecords(os.Stdout, records, t)
	return nil
}

var statusColors = map[store.Status]*color.Color{
	store.StatusPending:     color.New(color.FgHiBlack),
	store.StatusDownloading: color.New(color.FgCyan),
	store.StatusPaused:      color.New(color.FgYellow),
	store.StatusCompleted:   color.New(color.FgGreen),
	store.StatusFailed:      color.New(color.FgRed),
}

func printRecords(w io.Writer, records []store.Record, t *i18n.Translations) {
	if len(records) == 0 {
		fmt.Fprintln(w, t.List.Empty)
		return
	}
	for _, r := range records {
		status := string(r.Status)
		if c, ok := statusColors[r.Status]; ok {
			status = c.Sprintf("%-11s", status)
		}
		fmt.Fprintf(w, "  %s %s  %-10s %-40s %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"), status,
			r.Platform.ShortName(), r.FileName, r.FormattedSize())
		if r.Status == store.StatusFailed && r.Error != "" {
			fmt.Fprintf(w, "      %s\n", color.HiBlackString(r.Error))
		}
	}
}

func printStats(ctx context.Context, w io.Writer, st store.Store, t *i18n.Translations) error {
	stats, err := store.Count(ctx, st)
	if err != nil {
		return err
	}
	if jsonFlag {
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(out))
		return nil
	}

	fmt.Fprintf(w, "%s: %d\n", t.List.Total, stats.Total)
	fmt.Fprintf(w, "\n%s:\n", t.List.ByStatus)
	for _, s := range store.Statuses() {
		if n := stats.ByStatus[s]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", s, n)
		}
	}

	platforms := make([]string, 0, len(stats.ByPlatform))
	for p := range stats.ByPlatform {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)
	fmt.Fprintf(w, "\n%s:\n", t.List.ByPlat)
	for _, p := range platforms {
		fmt.Fprintf(w, "  %-12s %d\n", p, stats.ByPlatform[p])
	}
	return nil
}

// FileEntry is a remote file in --json output.
type FileEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

func listRemoteFiles(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.Sink != "webdav" {
		return fmt.Errorf("--remote needs storage.sink set to webdav (currently %q)", cfg.Storage.Sink)
	}
	if err := cfg.OpenSecrets(config.Passphrase()); err != nil {
		return err
	}
	dav := cfg.Storage.WebDAV
	client, err := webdav.NewClient(dav.URL, dav.Username, dav.Password)
	if err != nil {
		return fmt.Errorf("failed to create WebDAV client: %w", err)
	}
	files, err := client.List(ctx)
	if err != nil {
		return err
	}

	// directories first, then files, alphabetically
	sort.Slice(files, func(i, j int) bool {
		if files[i].IsDir != files[j].IsDir {
			return files[i].IsDir
		}
		return files[i].Name < files[j].Name
	})

	if jsonFlag {
		entries := make([]FileEntry, len(files))
		for i, f := range files {
			entries[i] = FileEntry{Name: f.Name, Path: f.Path, IsDir: f.IsDir, Size: f.Size}
		}
		out, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	if len(files) == 0 {
		fmt.Println("(empty directory)")
		return nil
	}
	fmt.Println(dav.URL)
	for _, f := range files {
		if f.IsDir {
			fmt.Printf("  %s/\n", f.Name)
		} else {
			fmt.Printf("  %-40s %s\n", f.Name, store.FormatBytes(f.Size))
		}
	}
	return nil
}
