package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dukahub/dukasync/internal/etims"
	"github.com/dukahub/dukasync/internal/mode"
	"github.com/dukahub/dukasync/internal/syncengine"
)

// NewRunCommand creates the run command: the long-lived sync daemon.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		Long: `Run the background sync loop: probe backend reachability, manage the
online/offline mode state machine, and drain the local outbox on every
scheduled pass.

Example:
  dukasync run --config ./dukasync.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(rootOpts, cmd)
		},
	}
	return cmd
}

func runDaemon(opts *RootOptions, cmd *cobra.Command) error {
	setupLogging(opts)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	slog.Info("opening local store", "path", cfg.StorePath)
	st, err := openOutbox(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing local store", "error", closeErr)
		}
	}()

	backend, closeBackend, err := newBackend(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeBackend(); closeErr != nil {
			slog.Error("error closing backend", "error", closeErr)
		}
	}()

	modes := mode.NewManager(cfg.ModeSettings())
	status := syncengine.NewStatus()
	orch := syncengine.New(st, backend, modes, status)
	relay := etims.NewRelay(st, backend, modes, cfg.StoreID, cfg.VATRate)
	sched := syncengine.NewScheduler(orch, modes, backend, relay)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("sync daemon starting",
		"store_id", cfg.StoreID,
		"remote", cfg.Remote.Kind,
		"preference", cfg.Mode.Preference,
	)
	fmt.Fprintln(cmd.OutOrStdout(), "Sync daemon started. Press Ctrl-C to stop.")

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "sync daemon error", err)
	}

	slog.Info("sync daemon stopped gracefully")
	return nil
}
