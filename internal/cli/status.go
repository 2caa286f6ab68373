package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukahub/dukasync/internal/outbox"
)

// OutboxStatus summarizes what the local store is still holding.
type OutboxStatus struct {
	UnsyncedProducts   int `json:"unsynced_products"`
	UnsyncedSales      int `json:"unsynced_sales"`
	UnsyncedPurchases  int `json:"unsynced_purchases"`
	PendingSubmissions int `json:"pending_tax_submissions"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show outbox backlog counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
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

	status, err := collectStatus(cmd.Context(), st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read outbox", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(status)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Store:                   %s\n", cfg.StoreID)
	fmt.Fprintf(out, "Unsynced products:       %d\n", status.UnsyncedProducts)
	fmt.Fprintf(out, "Unsynced sales:          %d\n", status.UnsyncedSales)
	fmt.Fprintf(out, "Unsynced purchases:      %d\n", status.UnsyncedPurchases)
	fmt.Fprintf(out, "Pending tax submissions: %d\n", status.PendingSubmissions)
	return nil
}

func collectStatus(ctx context.Context, st *outbox.Store) (OutboxStatus, error) {
	var status OutboxStatus
	var err error
	if status.UnsyncedProducts, err = st.CountUnsyncedProducts(ctx); err != nil {
		return status, err
	}
	if status.UnsyncedSales, err = st.CountUnsyncedSales(ctx); err != nil {
		return status, err
	}
	if status.UnsyncedPurchases, err = st.CountUnsyncedPurchases(ctx); err != nil {
		return status, err
	}
	if status.PendingSubmissions, err = st.CountPendingSubmissions(ctx); err != nil {
		return status, err
	}
	return status, nil
}
