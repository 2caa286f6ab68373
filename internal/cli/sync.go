package cli

import (
	"github.com/spf13/cobra"

	"github.com/dukahub/dukasync/internal/syncengine"
)

// NewSyncCommand creates the sync command: a single foreground sync pass.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and exit",
		Long: `Drain the local outbox against the backend once, regardless of the
configured mode preference, and report what moved.

Example:
  dukasync sync --config ./dukasync.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncOnce(rootOpts, cmd)
		},
	}
	return cmd
}

func runSyncOnce(opts *RootOptions, cmd *cobra.Command) error {
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

	// No mode manager: a one-shot invocation is an explicit operator
	// request and always attempts the backend.
	status := syncengine.NewStatus()
	orch := syncengine.New(st, backend, nil, status)

	if err := orch.Sync(cmd.Context()); err != nil {
		return WrapExitError(ExitFailure, "sync pass failed", err)
	}

	snap := status.Snapshot()
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return formatter.Success(snap)
	}
	if snap.LastError != "" {
		return WrapExitError(ExitFailure, snap.LastError, nil)
	}
	return formatter.Success("Sync complete.")
}
