package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shelfdrop/shelfdrop-cli/internal/api"
	"github.com/shelfdrop/shelfdrop-cli/internal/uploader"
)

// newClaimCmd retries the claim step on its own, for when an upload run
// finished but the secret was mistyped or withheld (--no-claim).
func newClaimCmd() *cobra.Command {
	var (
		secret string
		notes  string
	)

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim previously uploaded files with your shelf secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := loadConfig()
			if err != nil {
				return err
			}
			cfg := bundle.Config
			if err := cfg.Validate(); err != nil {
				return err
			}

			if secret == "" {
				secret, err = promptSecret("Shelf secret")
				if err != nil {
					return err
				}
			}
			if secret == "" {
				return errors.New("a shelf secret is required")
			}

			apiClient, err := api.NewClient(cfg, logger)
			if err != nil {
				return err
			}

			finalizer := uploader.NewFinalizer(apiClient, nil, logger)
			result, err := finalizer.Finalize(rootContext, secret, notes)
			if err != nil {
				if errors.Is(err, api.ErrBadSecret) {
					return errors.New("claim rejected: wrong shelf secret")
				}
				return err
			}

			if result.FirstLogin {
				fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s! Your shelf is ready.\n", result.Username)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Claimed by %s.\n", result.Username)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&secret, "secret", "s", "", "Shelf secret (prompted if omitted)")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "Notes to attach to this claim")
	return cmd
}
