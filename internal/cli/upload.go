package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shelfdrop/shelfdrop-cli/internal/api"
	"github.com/shelfdrop/shelfdrop-cli/internal/config"
	"github.com/shelfdrop/shelfdrop-cli/internal/events"
	ihttp "github.com/shelfdrop/shelfdrop-cli/internal/http"
	"github.com/shelfdrop/shelfdrop-cli/internal/progress"
	"github.com/shelfdrop/shelfdrop-cli/internal/queue"
	"github.com/shelfdrop/shelfdrop-cli/internal/scan"
	"github.com/shelfdrop/shelfdrop-cli/internal/uploader"
)

func newUploadCmd() *cobra.Command {
	var (
		secret    string
		notes     string
		turbo     bool
		noTurbo   bool
		noResume  bool
		noClaim   bool
		maxFiles  int
		proxyPass string
	)

	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload files or folders, then claim them with your shelf secret",
		Long: `Upload one or more files and/or folders to the shelfdrop server.

Folders are expanded recursively and keep their structure on the server.
After every transfer finishes, the session is claimed with your shelf
secret (prompted unless --secret is given). Failed files are reported but
do not block claiming the ones that made it.

Examples:
  shelfdrop upload report.pdf
  shelfdrop upload ./photos --notes "holiday batch"
  shelfdrop upload *.csv data/ --turbo`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := loadConfig()
			if err != nil {
				return err
			}
			cfg := bundle.Config

			if turbo {
				cfg.Turbo = true
			}
			if noTurbo {
				cfg.Turbo = false
			}
			if maxFiles > 0 {
				cfg.Restrictions.MaxConcurrentFiles = maxFiles
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if proxyPass != "" {
				cfg.ProxyPassword = proxyPass
			} else if pw := os.Getenv("SHELFDROP_PROXY_PASSWORD"); pw != "" {
				cfg.ProxyPassword = pw
			} else if ihttp.NeedsProxyPassword(cfg) {
				pw, err := promptSecret("Proxy password")
				if err != nil {
					return err
				}
				cfg.ProxyPassword = pw
			}

			return runUpload(cmd, args, cfg, uploadOptions{
				secret:   secret,
				notes:    notes,
				noResume: noResume,
				noClaim:  noClaim,
			})
		},
	}

	cmd.Flags().StringVarP(&secret, "secret", "s", "", "Shelf secret (prompted if omitted)")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "Notes to attach to this drop")
	cmd.Flags().BoolVar(&turbo, "turbo", false, "Prefer direct multipart uploads")
	cmd.Flags().BoolVar(&noTurbo, "no-turbo", false, "Force chunked uploads")
	cmd.Flags().BoolVar(&noResume, "no-resume", false, "Ignore cached resume state, start from scratch")
	cmd.Flags().BoolVar(&noClaim, "no-claim", false, "Upload only, skip the claim step")
	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "Maximum concurrent file transfers (0 = config default)")
	cmd.Flags().StringVar(&proxyPass, "proxy-password", "", "Proxy password (overrides prompt and environment)")
	cmd.MarkFlagsMutuallyExclusive("turbo", "no-turbo")

	return cmd
}

type uploadOptions struct {
	secret   string
	notes    string
	noResume bool
	noClaim  bool
}

func runUpload(cmd *cobra.Command, args []string, cfg *config.Config, opts uploadOptions) error {
	roots, err := expandArgs(args)
	if err != nil {
		return err
	}

	httpClient, err := ihttp.CreateTransferClient(cfg)
	if err != nil {
		return fmt.Errorf("building HTTP client: %w", err)
	}
	apiClient, err := api.NewClient(cfg, logger)
	if err != nil {
		return err
	}

	var resumeStore *uploader.ResumeStore
	if !opts.noResume {
		dir, err := uploader.DefaultResumeDir()
		if err == nil {
			resumeStore, err = uploader.NewResumeStore(dir)
		}
		if err != nil {
			logger.Warn().Err(err).Msg("Resume cache unavailable, uploads will not survive restarts")
		}
	}

	eventBus := events.NewEventBus(0)
	defer eventBus.Close()

	chunked := uploader.NewChunkedStrategy(httpClient, cfg.ServerURL,
		cfg.Restrictions.ChunkSizeBytes, cfg.Restrictions.RetryDelays, resumeStore, logger)

	var initial uploader.Strategy = chunked
	if cfg.Turbo {
		initial = uploader.NewMultipartStrategy(apiClient, httpClient,
			cfg.Restrictions.ChunkSizeBytes, 0, cfg.Restrictions.RetryDelays, logger)
	}

	fallback := uploader.NewFallbackController(initial, chunked, eventBus, logger)
	finalizer := uploader.NewFinalizer(apiClient, eventBus, logger)
	session := uploader.NewSession(fallback, finalizer, cfg.Restrictions, eventBus, logger)

	added, rejected, err := session.AddPaths(roots, scan.SourceFileInput)
	if err != nil {
		return err
	}
	for _, r := range rejected {
		fmt.Fprintf(cmd.ErrOrStderr(), "Skipping %s: %v\n", r.Path, r.Reason)
	}
	if len(added) == 0 {
		return errors.New("nothing to upload")
	}

	// Ask for the secret before the long part so the run is unattended
	// from here on.
	uploadSecret := opts.secret
	if !opts.noClaim && uploadSecret == "" {
		uploadSecret, err = promptSecret("Shelf secret")
		if err != nil {
			return err
		}
		if uploadSecret == "" {
			return errors.New("a shelf secret is required to claim the upload")
		}
	}

	// One file gets a single plain bar; batches get the multi-bar display.
	uiDone := make(chan struct{})
	if len(added) == 1 {
		var reporter progress.Reporter = progress.NoOpReporter{}
		if progress.IsTerminal() {
			reporter = progress.NewBarReporter(cmd.ErrOrStderr())
		}
		ch := eventBus.SubscribeAll()
		go func() {
			progress.WatchSingle(ch, reporter)
			close(uiDone)
		}()
	} else {
		ui := progress.NewUploadUI(len(added))
		ch := eventBus.SubscribeAll()
		go func() {
			ui.Watch(ch)
			ui.Wait()
			close(uiDone)
		}()
	}

	stats := session.Drain(rootContext)

	eventBus.Close()
	<-uiDone

	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d/%d files\n", stats.Completed, stats.Total())
	if stats.Failed > 0 {
		for _, f := range session.ListPending() {
			if f.Status == queue.StatusFailed {
				fmt.Fprintf(cmd.ErrOrStderr(), "  failed: %s: %v\n", f.Name, f.Error)
			}
		}
	}

	if opts.noClaim {
		return nil
	}

	result, err := session.Finalize(rootContext, uploadSecret, opts.notes)
	if err != nil {
		if errors.Is(err, api.ErrBadSecret) {
			return fmt.Errorf("claim rejected: wrong shelf secret (your files are uploaded; run `shelfdrop claim` to retry)")
		}
		if errors.Is(err, uploader.ErrNothingToClaim) {
			return errors.New("no files were accepted by the server, nothing to claim")
		}
		return err
	}

	if result.FirstLogin {
		fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s! Your shelf is ready.\n", result.Username)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Claimed by %s.\n", result.Username)
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d file(s) failed to upload", stats.Failed)
	}
	return nil
}

// expandArgs glob-expands each argument for shells that pass wildcards
// through. An argument that matches nothing is kept verbatim so the scanner
// reports the real error.
func expandArgs(args []string) ([]string, error) {
	var roots []string
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			roots = append(roots, arg)
			continue
		}
		roots = append(roots, matches...)
	}
	return roots, nil
}
