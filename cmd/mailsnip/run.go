package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// signalContext is cancelled by the first SIGINT or SIGTERM.  A second
// one terminates the process immediately.
func signalContext(parent context.Context) context.Context {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll until interrupted (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := signalContext(cmd.Context())
			p, cleanup, err := a.poller(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			a.log.Info("polling; press Ctrl-C to stop")
			if err := p.Run(ctx); err != nil {
				return errors.Wrap(err, "polling stopped")
			}
			a.log.Info("stopped")
			return nil
		},
	}
}

func newOnceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single polling tick and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := signalContext(cmd.Context())
			p, cleanup, err := a.poller(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			r := p.Tick(ctx)
			if r.Err != nil {
				return errors.Wrap(r.Err, "tick failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d listed, %d written, %d skipped, %d failed\n",
				r.Listed, r.Written, r.Skipped, r.Failed)
			return nil
		},
	}
}
