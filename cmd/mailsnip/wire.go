package main

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/matta/mailsnip/internal/config"
	"github.com/matta/mailsnip/internal/gmail"
	"github.com/matta/mailsnip/internal/gmailhttp"
	"github.com/matta/mailsnip/internal/imapmail"
	"github.com/matta/mailsnip/internal/jsondir"
	"github.com/matta/mailsnip/internal/persist"
	"github.com/matta/mailsnip/internal/poll"
	"github.com/matta/mailsnip/internal/token"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func (a *app) tokenStore() (token.Store, error) {
	switch a.cfg.TokenStore {
	case config.TokenStoreKeyring:
		ks, err := token.OpenKeyring(filepath.Dir(a.cfg.TokenFile))
		if err != nil {
			return nil, err
		}
		return ks, nil
	default:
		return &token.FileStore{Path: a.cfg.TokenFile}, nil
	}
}

func (a *app) mailService(ctx context.Context) (poll.MailService, error) {
	switch a.cfg.Backend {
	case config.BackendIMAP:
		s, err := imapmail.New(imapmail.Options{
			Host:     a.cfg.IMAP.Host,
			Port:     a.cfg.IMAP.Port,
			Username: a.cfg.IMAP.Username,
			Password: a.cfg.IMAP.Password,
			TLS:      a.cfg.IMAP.TLS,
		}, a.log)
		if err != nil {
			return nil, errors.Wrap(err, "unable to initialize IMAP")
		}
		return s, nil
	default:
		store, err := a.tokenStore()
		if err != nil {
			return nil, err
		}
		client, err := gmailhttp.New(ctx, gmailhttp.Options{
			Credentials: a.cfg.Credentials,
			APIKey:      a.cfg.APIKey,
			Store:       store,
		})
		if err != nil {
			return nil, errors.Wrap(err, "unable to initialize GMail HTTP client")
		}
		s, err := gmail.New(ctx, client, a.log)
		if err != nil {
			return nil, errors.Wrap(err, "unable to initialize GMail")
		}
		return s, nil
	}
}

// poller builds a Poller from the configuration.  The returned
// function releases what it opened.
func (a *app) poller(ctx context.Context) (*poll.Poller, func(), error) {
	svc, err := a.mailService(ctx)
	if err != nil {
		return nil, nil, err
	}
	dir, err := jsondir.New(a.cfg.Path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to initialize output directory")
	}

	opts := poll.Options{
		Folder:           a.cfg.Folder,
		Interval:         a.cfg.Interval(),
		FetchConcurrency: a.cfg.FetchConcurrency,
		Log:              a.log,
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if a.cfg.Journal != "" {
		db, err := persist.Open(ctx, a.cfg.Journal, a.log)
		if err != nil {
			return nil, nil, errors.Wrap(err, "unable to initialize journal")
		}
		closers = append(closers, func() { db.Close() })
		opts.Journal = db
	}

	if a.cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts.Metrics = poll.NewMetrics(reg)
		srv := serveMetrics(a.cfg.MetricsAddr, reg, a.log)
		closers = append(closers, func() { srv.Close() })
	}

	a.log.WithFields(logrus.Fields{
		"backend":  a.cfg.Backend,
		"folder":   opts.Folder,
		"path":     dir.Path(),
		"interval": opts.Interval,
	}).Info("poller configured")
	return poll.New(svc, dir, opts), cleanup, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).WithField("op", "ServeMetrics").Error("metrics server failed")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")
	return srv
}
