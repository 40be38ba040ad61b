package main

import (
	"github.com/matta/mailsnip/internal/config"
	"github.com/matta/mailsnip/internal/gmailhttp"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newAuthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to Gmail and save the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Backend != config.BackendGmail {
				return errors.Errorf("auth is only needed for the %s backend", config.BackendGmail)
			}
			conf, err := gmailhttp.Config(a.cfg.Credentials)
			if err != nil {
				return err
			}
			store, err := a.tokenStore()
			if err != nil {
				return err
			}
			return gmailhttp.Authorize(cmd.Context(), conf, store, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
