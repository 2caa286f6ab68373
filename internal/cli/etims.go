package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukahub/dukasync/internal/etims"
	"github.com/dukahub/dukasync/internal/outbox"
)

// NewEtimsCommand creates the etims command group: direct drain plus the
// air-gapped file exchange.
func NewEtimsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "etims",
		Short: "Manage tax invoice submissions",
	}
	cmd.AddCommand(newEtimsSubmitCommand(rootOpts))
	cmd.AddCommand(newEtimsExportCommand(rootOpts))
	cmd.AddCommand(newEtimsImportCommand(rootOpts))
	return cmd
}

// withRelay loads config, opens the store and backend, and hands a ready
// relay to fn. Cleanup always runs.
func withRelay(opts *RootOptions, fn func(r *etims.Relay, st *outbox.Store) error) error {
	setupLogging(opts)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	st, err := openOutbox(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	backend, closeBackend, err := newBackend(cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	relay := etims.NewRelay(st, backend, nil, cfg.StoreID, cfg.VATRate)
	return fn(relay, st)
}

func newEtimsSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "submit",
		Short:         "Deliver pending submissions over the network",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRelay(rootOpts, func(r *etims.Relay, _ *outbox.Store) error {
				delivered, remaining, err := r.SubmitPending(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "submission drain failed", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Delivered %d submission(s), %d left pending.\n", delivered, remaining)
				if remaining > 0 {
					return WrapExitError(ExitFailure,
						fmt.Sprintf("%d submission(s) still pending", remaining), nil)
				}
				return nil
			})
		},
	}
}

func newEtimsExportCommand(rootOpts *RootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:           "export",
		Short:         "Write pending submissions to a portable file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRelay(rootOpts, func(r *etims.Relay, _ *outbox.Store) error {
				path, count, err := r.Export(cmd.Context(), dir)
				if err != nil {
					return WrapExitError(ExitCommandError, "export failed", err)
				}
				if count == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No pending submissions; nothing exported.")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d submission(s) to %s\n", count, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to write the export file into")
	return cmd
}

func newEtimsImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "import <results-file>",
		Short:         "Apply a results file from a connected device",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRelay(rootOpts, func(r *etims.Relay, _ *outbox.Store) error {
				summary, err := r.ImportResultsFile(cmd.Context(), args[0])
				if err != nil {
					if etims.IsValidationError(err) {
						return WrapExitError(ExitFailure, "results file rejected", err)
					}
					return WrapExitError(ExitCommandError, "import failed", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s: applied %d, skipped %d (of %d).\n",
					summary.SessionID, summary.Applied, summary.Skipped, summary.Total)
				return nil
			})
		},
	}
}
