// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/H0llyW00dzZ/connectivity-checker/src/netdiag"
	"github.com/H0llyW00dzZ/connectivity-checker/src/report"
	"github.com/H0llyW00dzZ/connectivity-checker/src/status"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		listen   string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run every diagnostic on an interval and serve the results over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("listen") {
				a.cfg.Listen = listen
			}
			if cmd.Flags().Changed("interval") {
				a.cfg.Interval = interval
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "status API address (default from config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between diagnostic rounds (default from config)")
	return cmd
}

func (a *app) serve(ctx context.Context) (err error) {
	c, err := a.checker()
	if err != nil {
		return err
	}
	srv := status.NewServer(a.logger, status.NewMemoryStore(a.cfg.StatusTTL), status.NewMetrics())

	ln, err := net.Listen("tcp", a.cfg.Listen)
	if err != nil {
		return multierr.Append(err, c.Close())
	}
	httpSrv := &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.logger.Info("serve_started", zap.String("listen", ln.Addr().String()), zap.Duration("interval", a.cfg.Interval))

	serveErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	ctx, cancel := context.WithCancel(ctx)
	rounds := make(chan struct{})
	go func() {
		defer close(rounds)
		a.rounds(ctx, c, srv)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	cancel()
	<-rounds

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	err = multierr.Combine(err, httpSrv.Shutdown(shutdownCtx), c.Close())
	a.logger.Info("serve_stopped", zap.Error(err))
	return err
}

// rounds runs every diagnostic immediately and then once per interval
// until ctx is done.
func (a *app) rounds(ctx context.Context, c *netdiag.Checker, srv *status.Server) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		a.round(ctx, c, srv)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *app) round(ctx context.Context, c *netdiag.Checker, srv *status.Server) {
	diagnostics := []struct {
		kind report.Kind
		run  func(context.Context) (report.Record, error)
	}{
		{report.KindTrial, func(ctx context.Context) (report.Record, error) { return c.Trial(ctx, "") }},
		{report.KindHealth, c.Health},
		{report.KindDNSTest, func(ctx context.Context) (report.Record, error) { return c.DNSTest(ctx) }},
	}
	for _, d := range diagnostics {
		// A retrying DNS test must not stall the next round.
		runCtx, cancel := context.WithTimeout(ctx, a.cfg.Interval)
		rec, err := d.run(runCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Warn("diagnostic_error", zap.String("kind", string(d.kind)), zap.Error(err))
			continue
		}
		srv.Record(rec)
	}
}
