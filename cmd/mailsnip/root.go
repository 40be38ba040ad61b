package main

import (
	"io"

	"github.com/matta/mailsnip/internal/config"
	"github.com/matta/mailsnip/internal/logging"
	"github.com/matta/mailsnip/internal/tracehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	trace      bool

	cfg       *config.Config
	log       *logrus.Logger
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "mailsnip",
		Short: "Save unread mail as JSON snippets",
		Long: `mailsnip periodically lists the unread messages in a Gmail label or
IMAP mailbox, marks them read, and writes one JSON file per message
holding its To, From and Subject headers and a snippet of its body.

The file is named "<HH-MM-SS> <message-id>.json" after the message's
Date and Message-ID headers.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.teardown() },
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "config.json", "configuration file")
	root.PersistentFlags().BoolVarP(&a.trace, "trace", "T", false, "request debug tracing")

	run := newRunCmd(a)
	root.RunE = run.RunE
	root.AddCommand(run, newOnceCmd(a), newAuthCmd(a), newStatusCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, closer, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		return errors.Wrap(err, "unable to initialize logging")
	}
	if a.trace {
		log.SetLevel(logrus.DebugLevel)
		tracehttp.WrapDefaultTransport(log)
	}
	a.cfg, a.log, a.logCloser = cfg, log, closer
	return nil
}

func (a *app) teardown() {
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}
