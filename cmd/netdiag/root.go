// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/H0llyW00dzZ/connectivity-checker/src/config"
	"github.com/H0llyW00dzZ/connectivity-checker/src/connectivity"
	"github.com/H0llyW00dzZ/connectivity-checker/src/logging"
	"github.com/H0llyW00dzZ/connectivity-checker/src/netdiag"
	"github.com/H0llyW00dzZ/connectivity-checker/src/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errFailed makes the process exit non-zero when a diagnostic did not
// succeed.
var errFailed = errors.New("diagnostic failed")

// app carries the state shared by every subcommand.
type app struct {
	cfgPath    string
	iface      string
	dnsServers []string
	logDir     string
	debug      bool
	jsonOut    bool
	xlsxPath   string

	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "netdiag",
		Short:         "Connectivity diagnostics: captive portal trial, connection health, DNS server test",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&a.cfgPath, "config", "c", "", "YAML configuration file")
	f.StringVarP(&a.iface, "interface", "i", "", "bind probes to this network interface")
	f.StringSliceVar(&a.dnsServers, "dns", nil, "DNS servers of the connection (host or host:port)")
	f.StringVar(&a.logDir, "log-dir", "", "write rotated JSON logs here instead of stderr")
	f.BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newTrialCmd(a),
		newHealthCmd(a),
		newDNSTestCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup loads the configuration, applies flag overrides and builds the
// logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("interface") {
		cfg.Interface = a.iface
	}
	if flags.Changed("dns") {
		// The tester follows the connection unless configured apart.
		if slices.Equal(cfg.DNSTest.Servers, cfg.DNSServers) {
			cfg.DNSTest.Servers = a.dnsServers
		}
		cfg.DNSServers = a.dnsServers
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = a.logDir
	}
	if flags.Changed("debug") {
		cfg.Debug = a.debug
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// checker builds a netdiag.Checker from the resolved configuration.
func (a *app) checker() (*netdiag.Checker, error) {
	cfg := a.cfg
	return netdiag.New(
		netdiag.WithLogger(a.logger),
		netdiag.WithConnection(cfg.Interface, cfg.DNSServers, cfg.IPv6),
		netdiag.WithTrialURL(cfg.Trial.URL),
		netdiag.WithRemoteIPs(cfg.RemoteIPs()...),
		netdiag.WithRemoteURLs(cfg.Health.RemoteURLs...),
		netdiag.WithDNSTestServers(cfg.DNSTest.Servers...),
		netdiag.WithRetryUntilSuccess(cfg.DNSTest.RetryUntilSuccess),
		netdiag.WithComponentOptions(
			connectivity.WithLogger(a.logger),
			connectivity.WithTrialTimeout(cfg.Trial.Timeout),
			connectivity.WithTCPStateUpdateWait(cfg.Health.StateWait),
			connectivity.WithDNSTimeout(cfg.DNSTest.Timeout),
			connectivity.WithDNSTestHostname(cfg.DNSTest.Hostname),
			connectivity.WithDNSTestRetryInterval(cfg.DNSTest.RetryInterval),
		),
	)
}

// addOutputFlags registers the result output flags on a one-shot command.
func (a *app) addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&a.jsonOut, "json", false, "print results as JSON")
	cmd.Flags().StringVar(&a.xlsxPath, "xlsx", "", "also save results to this Excel workbook")
}

// emit prints records and returns errFailed if any of them failed.
func (a *app) emit(records ...report.Record) error {
	if a.xlsxPath != "" {
		if err := report.SaveXLSX(a.xlsxPath, records); err != nil {
			return err
		}
	}

	if a.jsonOut {
		if err := report.WriteJSON(a.out, records); err != nil {
			return err
		}
	} else {
		for _, r := range records {
			fmt.Fprintf(a.out, "%-9s %-18s %-8s %s\n",
				r.Kind, r.Result, r.Duration.Round(time.Millisecond), target(r))
		}
	}

	for _, r := range records {
		if !r.Success {
			return errFailed
		}
	}
	return nil
}

func target(r report.Record) string {
	if r.Interface == "" {
		return r.Target
	}
	return strings.Join([]string{r.Target, "via", r.Interface}, " ")
}
