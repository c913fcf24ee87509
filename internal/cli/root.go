package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/guiyumin/clipget/internal/core/config"
	"github.com/guiyumin/clipget/internal/core/downloader"
	"github.com/guiyumin/clipget/internal/core/extractor"
	"github.com/guiyumin/clipget/internal/core/i18n"
	"github.com/guiyumin/clipget/internal/core/link"
	"github.com/guiyumin/clipget/internal/core/manager"
	"github.com/guiyumin/clipget/internal/core/notify"
	"github.com/guiyumin/clipget/internal/core/store"
	"github.com/guiyumin/clipget/internal/core/version"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	output    string
	quality   string
	info      bool
	inputFile string
	visible   bool
)

// errReported means the message was already shown by a TUI.
var errReported = errors.New("reported")

var rootCmd = &cobra.Command{
	Use:   "clipget [url or text]",
	Short: "Download videos from Instagram, TikTok, X, YouTube, Facebook and Pinterest posts",
	Long: `Download the video behind a social media post.

The argument may be a post URL or any text containing one, such as a
message copied from a share sheet.

Examples:
  clipget https://x.com/user/status/1234567890
  clipget -q 1080p https://www.instagram.com/reel/ABC123xyz/
  clipget --info "check this https://vm.tiktok.com/ZMabc123/"
  clipget -f urls.txt`,
	Version:       version.Version,
	Args:          cobra.MaximumNArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile != "" {
			return runBatch(cmd.Context(), inputFile)
		}
		if len(args) == 0 {
			return cmd.Help()
		}
		return runDownload(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "output file name, optionally with a directory")
	rootCmd.Flags().StringVarP(&quality, "quality", "q", "", "preferred quality (best, 4k, 1080p, 720p, 480p, 360p)")
	rootCmd.Flags().BoolVar(&info, "info", false, "show video info without downloading")
	rootCmd.Flags().StringVarP(&inputFile, "file", "f", "", "read URLs from file (one per line)")
	rootCmd.Flags().BoolVar(&visible, "visible", false, "show browser window (for debugging)")
	rootCmd.RegisterFlagCompletionFunc("quality", completeQuality)
}

// Execute runs the CLI until it finishes or is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
	}
	return err
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// loadConfig returns the config, warning once when no file exists yet.
func loadConfig() *config.Config {
	cfg := config.LoadOrDefault()
	if !config.Exists() {
		t := i18n.T(cfg.Language)
		fmt.Fprintln(os.Stderr, color.YellowString("%s %s", t.Server.NoConfigWarning, t.Server.RunInitHint))
	}
	return cfg
}

// splitOutput turns the -o flag into a directory and a base name without
// extension; the extension comes from the media URL.
func splitOutput(out string) (dir, name string) {
	if out == "" {
		return "", ""
	}
	dir = filepath.Dir(out)
	if dir == "." && !strings.ContainsAny(out, `/\`) {
		dir = ""
	}
	base := filepath.Base(out)
	return dir, strings.TrimSuffix(base, filepath.Ext(base))
}

// postURL pulls the first supported link out of shared text.
func postURL(text string) string {
	if u, ok := link.ExtractSupportedURL(text); ok {
		return u
	}
	return strings.TrimSpace(text)
}

func runDownload(ctx context.Context, text string) error {
	cfg := loadConfig()
	tty := isTerminal()
	dir, name := splitOutput(output)

	opts := AppOptions{OutputDir: dir, Visible: visible}
	if tty {
		opts.Notifier = notify.Nop{} // the TUI shows progress
	}
	app, err := NewApp(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer app.Close()
	t := app.T

	url := postURL(text)
	var vi *extractor.VideoInfo
	if tty {
		vi, err = resolveWithSpinner(ctx, app.Resolver, url, t)
		if err != nil {
			if errors.Is(err, errResolveCancelled) {
				return nil
			}
			return errReported
		}
	} else {
		vi, err = app.Resolver.Resolve(ctx, url)
		if err != nil {
			return errors.New(extractor.Describe(err, t))
		}
	}
	if !vi.Playable() {
		if tty {
			return errReported
		}
		return errors.New(t.Errors.NoMedia)
	}

	if info {
		printInfo(os.Stdout, vi, t)
		return nil
	}

	pref := quality
	if pref == "" {
		pref = cfg.Quality
	}
	opt := vi.Choose(pref)
	fmt.Printf("  %s: %s %s\n", t.Download.Quality, opt.Tier.Label(), opt.FormattedSize())

	if !tty {
		return downloadPlain(ctx, app.Manager, vi, *opt, name, t)
	}

	if _, err := downloader.RunProgressTUI(ctx, vi.Title, t, managerJob(app.Manager, vi, *opt, name)); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return errReported
	}
	return nil
}

// managerJob runs one download through the manager so that it is recorded
// like any other, reporting its progress to the TUI.
func managerJob(m *manager.Manager, vi *extractor.VideoInfo, opt extractor.QualityOption, name string) downloader.Job {
	return func(ctx context.Context, progress downloader.ProgressFunc) (*downloader.Result, error) {
		events, stopEvents := m.SubscribeProgress()
		defer stopEvents()

		id, err := m.Enqueue(context.Background(), vi, opt, name)
		if err != nil {
			return nil, err
		}
		// Subscribed after Enqueue, so an idle state means this job is over.
		states, stopStates := m.Subscribe()
		defer stopStates()

		cancelled := ctx.Done()
		for {
			select {
			case ev := <-events:
				if ev.ID != id {
					continue
				}
				if ev.Total > 0 {
					progress(ev.Read, ev.Total)
				}
				if ev.Status.Terminal() {
					return outcome(m, id)
				}
			case st := <-states:
				if st.Kind == manager.Idle {
					return outcome(m, id)
				}
			case <-cancelled:
				cancelled = nil
				if err := m.CancelDownload(context.Background(), id); err != nil && !errors.Is(err, manager.ErrNotActive) {
					return nil, err
				}
			}
		}
	}
}

// outcome turns a finished record into a transfer result.
func outcome(m *manager.Manager, id string) (*downloader.Result, error) {
	rec, err := m.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case store.StatusCompleted:
		return &downloader.Result{Location: rec.FilePath, Size: rec.FileSize}, nil
	case store.StatusPaused:
		return nil, context.Canceled
	default:
		return nil, errors.New(rec.Error)
	}
}

// downloadPlain is the non-interactive path; the notifier prints progress.
func downloadPlain(ctx context.Context, m *manager.Manager, vi *extractor.VideoInfo, opt extractor.QualityOption, name string, t *i18n.Translations) error {
	res, err := managerJob(m, vi, opt, name)(ctx, func(int64, int64) {})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println(t.Download.Cancelled)
			return nil
		}
		return fmt.Errorf(t.Errors.DownloadFailed, err)
	}
	fmt.Printf("%s: %s (%s)\n", t.Download.FileSaved, res.Location, store.FormatBytes(res.Size))
	return nil
}

func printInfo(w io.Writer, vi *extractor.VideoInfo, t *i18n.Translations) {
	label := color.New(color.FgHiBlack).SprintFunc()
	fmt.Fprintf(w, "  %s: %s\n", label(t.Info.Platform), vi.Platform.DisplayName())
	fmt.Fprintf(w, "  %s: %s\n", label(t.Info.Title), vi.Title)
	if vi.Author != "" {
		fmt.Fprintf(w, "  %s: %s\n", label(t.Info.Author), vi.Author)
	}
	if d := vi.FormattedDuration(); d != "" {
		fmt.Fprintf(w, "  %s: %s\n", label(t.Info.Duration), d)
	}
	fmt.Fprintf(w, "  %s:\n", label(t.Info.Qualities))
	for _, q := range vi.Qualities {
		size := q.FormattedSize()
		if size != "" {
			size = " (" + size + ")"
		}
		fmt.Fprintf(w, "    • %s%s\n", q.Tier.Label(), size)
	}
}

// readURLs returns the post links in a batch file, one per line. Blank
// lines and lines starting with # are skipped.
func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, postURL(line))
	}
	return urls, sc.Err()
}

func runBatch(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open batch file: %w", err)
	}
	urls, err := readURLs(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to read batch file: %w", err)
	}

	cfg := loadConfig()
	tty := isTerminal()
	opts := AppOptions{Visible: visible}
	if output != "" {
		opts.OutputDir = output
	}
	if tty {
		opts.Notifier = notify.Nop{}
	}
	app, err := NewApp(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer app.Close()
	t := app.T

	var barOut io.Writer
	if tty {
		barOut = os.Stdout
	}
	bars := downloader.NewMultiBar(ctx, barOut)
	events, stopEvents := app.Manager.SubscribeProgress()
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		for ev := range events {
			bars.Update(ev.ID, ev.Read, ev.Total)
			if ev.Status.Terminal() {
				bars.Done(ev.ID)
			}
		}
	}()

	pref := quality
	if pref == "" {
		pref = cfg.Quality
	}
	var ids []string
	failed := 0
	for _, u := range urls {
		vi, err := app.Resolver.Resolve(ctx, u)
		if ctx.Err() != nil {
			break
		}
		if err == nil && !vi.Playable() {
			err = errors.New(t.Errors.NoMedia)
		}
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", color.RedString("✗"), u, extractor.Describe(err, t))
			continue
		}
		id, err := app.Manager.Enqueue(ctx, vi, *vi.Choose(pref), "")
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("✗"), u, err)
			continue
		}
		if rec, err := app.Manager.Get(ctx, id); err == nil {
			bars.Add(id, rec.FileName)
		}
		ids = append(ids, id)
	}

	if ctx.Err() != nil {
		app.Manager.CancelAll(context.Background())
	}
	app.Manager.Wait()
	stopEvents()
	<-fed
	bars.Wait()

	completed := 0
	for _, id := range ids {
		rec, err := app.Manager.Get(context.Background(), id)
		switch {
		case err != nil:
			failed++
		case rec.Status == store.StatusCompleted:
			completed++
		case rec.Status == store.StatusFailed:
			failed++
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", color.RedString("✗"), rec.Title, rec.Error)
		}
	}
	fmt.Printf(t.Download.Summary+"\n", completed, failed)
	if failed > 0 {
		return errReported
	}
	return nil
}
