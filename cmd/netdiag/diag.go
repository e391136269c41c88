// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package main

import (
	"time"

	"github.com/H0llyW00dzZ/connectivity-checker/src/netdiag"
	"github.com/H0llyW00dzZ/connectivity-checker/src/report"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func newTrialCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "trial [url]",
		Short: "Fetch a URL that must answer 204 to detect a captive portal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("timeout") {
				a.cfg.Trial.Timeout = timeout
			}
			url := ""
			if len(args) == 1 {
				url = args[0]
			}
			return a.runOnce(func(c *netdiag.Checker) (report.Record, error) {
				return c.Trial(cmd.Context(), url)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up on the trial after this long")
	a.addOutputFlags(cmd)
	return cmd
}

func newHealthCmd(a *app) *cobra.Command {
	var (
		remoteIPs  []string
		remoteURLs []string
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check whether the connection can still move data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg.Health.RemoteIPs = append(a.cfg.Health.RemoteIPs, remoteIPs...)
			a.cfg.Health.RemoteURLs = append(a.cfg.Health.RemoteURLs, remoteURLs...)
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.runOnce(func(c *netdiag.Checker) (report.Record, error) {
				return c.Health(cmd.Context())
			})
		},
	}
	cmd.Flags().StringSliceVar(&remoteIPs, "remote-ip", nil, "extra remote address to probe on port 80")
	cmd.Flags().StringSliceVar(&remoteURLs, "remote-url", nil, "port 80 URL whose host is added to the probe pool")
	a.addOutputFlags(cmd)
	return cmd
}

func newDNSTestCmd(a *app) *cobra.Command {
	var (
		retry    bool
		hostname string
	)
	cmd := &cobra.Command{
		Use:   "dnstest [server...]",
		Short: "Check that DNS servers resolve a well-known name",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("retry") {
				a.cfg.DNSTest.RetryUntilSuccess = retry
			}
			if cmd.Flags().Changed("hostname") {
				a.cfg.DNSTest.Hostname = hostname
			}
			return a.runOnce(func(c *netdiag.Checker) (report.Record, error) {
				return c.DNSTest(cmd.Context(), args...)
			})
		},
	}
	cmd.Flags().BoolVar(&retry, "retry", false, "retry failed lookups until one succeeds")
	cmd.Flags().StringVar(&hostname, "hostname", "", "name to resolve")
	a.addOutputFlags(cmd)
	return cmd
}

// runOnce runs one diagnostic on a fresh checker and prints the result.
func (a *app) runOnce(run func(*netdiag.Checker) (report.Record, error)) (err error) {
	c, err := a.checker()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, c.Close()) }()

	rec, err := run(c)
	if err != nil {
		return err
	}
	return a.emit(rec)
}
