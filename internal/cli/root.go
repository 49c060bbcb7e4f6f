// Package cli provides the command-line interface for shelfdrop.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shelfdrop/shelfdrop-cli/internal/logging"
	"github.com/shelfdrop/shelfdrop-cli/internal/version"
)

var (
	// Global flags
	cfgFile   string
	serverURL string
	verbose   bool
	quiet     bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shelfdrop",
		Short: "Shelfdrop - upload files to your shelf",
		Long: `Shelfdrop ` + version.Version + ` - Built: ` + version.BuildTime + `
Uploads files and folders to a shelfdrop server, resumable and in parallel,
then claims them with your shelf secret.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultLogger()
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
			if quiet {
				logging.SetGlobalLevel(zerolog.ErrorLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server-url", "", "Server base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print errors")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newClaimCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// Execute runs the CLI with signal-aware cancellation. Ctrl-C cancels the
// root context so in-flight transfers stop at the next chunk boundary.
func Execute() int {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancelFunc()
	}()

	if err := NewRootCmd().Execute(); err != nil {
		return 1
	}
	return 0
}

// loadConfig resolves the config file path and applies flag overrides.
func loadConfig() (*configBundle, error) {
	path := cfgFile
	if path == "" {
		var err error
		path, err = defaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := loadConfigFile(path)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	return &configBundle{Config: cfg, Path: path}, nil
}
