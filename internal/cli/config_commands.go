package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shelfdrop/shelfdrop-cli/internal/config"
)

// configBundle ties a loaded config to the path it came from so `config set`
// writes back to the right file.
type configBundle struct {
	Config *config.Config
	Path   string
}

func defaultConfigPath() (string, error) { return config.DefaultPath() }

func loadConfigFile(path string) (*config.Config, error) { return config.Load(path) }

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change shelfdrop settings",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := loadConfig()
			if err != nil {
				return err
			}
			cfg := bundle.Config

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config file:          %s\n", bundle.Path)
			fmt.Fprintf(out, "server_url:           %s\n", cfg.ServerURL)
			fmt.Fprintf(out, "turbo:                %t\n", cfg.Turbo)
			fmt.Fprintf(out, "proxy.mode:           %s\n", cfg.ProxyMode)
			if cfg.ProxyMode != "no-proxy" && cfg.ProxyMode != "" {
				fmt.Fprintf(out, "proxy.host:           %s\n", cfg.ProxyHost)
				fmt.Fprintf(out, "proxy.port:           %d\n", cfg.ProxyPort)
				fmt.Fprintf(out, "proxy.user:           %s\n", cfg.ProxyUser)
				fmt.Fprintf(out, "proxy.no_proxy:       %s\n", cfg.NoProxy)
			}
			fmt.Fprintf(out, "max_file_size_mb:     %d\n", cfg.Restrictions.MaxFileSizeBytes/(1024*1024))
			fmt.Fprintf(out, "chunk_size_mb:        %d\n", cfg.Restrictions.ChunkSizeBytes/(1024*1024))
			fmt.Fprintf(out, "max_concurrent_files: %d\n", cfg.Restrictions.MaxConcurrentFiles)
			fmt.Fprintf(out, "allowed_extensions:   %s\n", config.FormatExtensions(cfg.Restrictions.AllowedExtensions))
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value and save it",
		Long: `Set one configuration key and write the config file.

Keys:
  server_url            Server base URL
  turbo                 true/false - prefer direct multipart uploads
  proxy.mode            no-proxy, system, basic, ntlm
  proxy.host            Proxy hostname
  proxy.port            Proxy port
  proxy.user            Proxy username
  proxy.no_proxy        Comma-separated proxy bypass list
  max_file_size_mb      Per-file size limit in MiB (0 = unlimited)
  chunk_size_mb         Chunk/part size in MiB (minimum 5)
  max_concurrent_files  Simultaneous file transfers
  allowed_extensions    Comma-separated extension allowlist (empty = all)`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := loadConfig()
			if err != nil {
				return err
			}
			cfg := bundle.Config

			key, value := strings.ToLower(args[0]), args[1]
			if err := applyConfigKey(cfg, key, value); err != nil {
				return err
			}
			if err := config.Save(cfg, bundle.Path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", key, bundle.Path)
			return nil
		},
	})

	return configCmd
}

func applyConfigKey(cfg *config.Config, key, value string) error {
	switch key {
	case "server_url":
		cfg.ServerURL = value
	case "turbo":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("turbo must be true or false: %w", err)
		}
		cfg.Turbo = b
	case "proxy.mode":
		cfg.ProxyMode = value
	case "proxy.host":
		cfg.ProxyHost = value
	case "proxy.port":
		p, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("proxy.port must be a number: %w", err)
		}
		cfg.ProxyPort = p
	case "proxy.user":
		cfg.ProxyUser = value
	case "proxy.no_proxy":
		cfg.NoProxy = value
	case "max_file_size_mb":
		mb, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("max_file_size_mb must be a number: %w", err)
		}
		cfg.Restrictions.MaxFileSizeBytes = mb * 1024 * 1024
	case "chunk_size_mb":
		mb, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("chunk_size_mb must be a number: %w", err)
		}
		cfg.Restrictions.ChunkSizeBytes = mb * 1024 * 1024
	case "max_concurrent_files":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_concurrent_files must be a number: %w", err)
		}
		cfg.Restrictions.MaxConcurrentFiles = n
	case "allowed_extensions":
		cfg.Restrictions.AllowedExtensions = config.ParseExtensions(value)
	default:
		return fmt.Errorf("unknown config key %q", key)
	}

	// A fresh config legitimately has no server_url yet; don't block setting
	// other keys first.
	if err := cfg.Validate(); err != nil && !errors.Is(err, config.ErrMissingServerURL) {
		return err
	}
	return nil
}
