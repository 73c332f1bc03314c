package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arrowhead-f/confsys/pkg/api"
	"github.com/arrowhead-f/confsys/pkg/config"
	"github.com/arrowhead-f/confsys/pkg/directory"
	"github.com/arrowhead-f/confsys/pkg/dnssd"
	"github.com/arrowhead-f/confsys/pkg/events"
	"github.com/arrowhead-f/confsys/pkg/log"
	"github.com/arrowhead-f/confsys/pkg/resolver"
	"github.com/arrowhead-f/confsys/pkg/store"
	"github.com/arrowhead-f/confsys/pkg/tsig"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Exit codes: 0 clean exit, 1 startup failure, 2 orderly-exit failure.
const (
	exitOK = iota
	exitStartup
	exitShutdown
)

var (
	configPath      string
	notDiscoverable bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitStartup)
	}
}

var rootCmd = &cobra.Command{
	Use:   "confsys",
	Short: "Confsys - Arrowhead configuration system",
	Long: `Confsys is a proof-of-concept Arrowhead configuration system.

It stores configuration documents in an embedded directory, validates them
against templates, and announces itself in the local automation cloud via
DNS-SD dynamic updates.`,
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		if code := run(); code != exitOK {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Confsys version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.Flags().StringVar(&configPath, "config", "confsys.yaml", "Path to the settings file")
	rootCmd.Flags().BoolVarP(&notDiscoverable, "not-discoverable", "d", false,
		"Do not publish this system via DNS-SD")
}

func run() int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitStartup
	}

	log.Init(log.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	logger := log.WithComponent("main")

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		logger.Error().Err(err).Msg("failed to create data directory")
		return exitStartup
	}
	dir, err := directory.Open(cfg.DataDir, &directory.Options{MapSize: cfg.Database.MapSize})
	if err != nil {
		logger.Error().Err(err).Msg("failed to open directory")
		return exitStartup
	}

	broker := events.NewBroker()

	st := store.New(dir, broker)

	discovery, err := newDiscovery(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to configure service discovery")
		dir.Close()
		return exitStartup
	}

	instance := dnssd.Instance{
		Name:        cfg.Service.Name,
		ServiceType: cfg.Service.Type,
		Hostname:    cfg.DNS.Hostname,
		Port:        cfg.Service.Port,
		Metadata:    cfg.Service.Metadata,
	}

	if !notDiscoverable {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := discovery.Publish(ctx, instance)
		cancel()
		if err != nil {
			logger.Error().Err(err).Msg("failed to publish service")
			discovery.Close()
			dir.Close()
			return exitStartup
		}
		broker.Publish(events.New(events.EventServicePublished, cfg.Service.Name))
	}

	apiServer := api.NewServer(st)
	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(cfg.API.ListenAddr); err != nil {
			errCh <- err
		}
	}()

	logger.Info().
		Str("version", Version).
		Str("api", cfg.API.ListenAddr).
		Bool("discoverable", !notDiscoverable).
		Msg("configuration system running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("API server failed")
	}

	// Orderly exit: unpublish, stop the API, close everything.
	code := exitOK
	if !notDiscoverable {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := discovery.Unpublish(ctx, instance)
		cancel()
		if err != nil {
			logger.Error().Err(err).Msg("failed to unpublish service")
			code = exitShutdown
		} else {
			broker.Publish(events.New(events.EventServiceUnpublished, cfg.Service.Name))
		}
	}
	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("failed to stop API server")
		code = exitShutdown
	}
	discovery.Close()
	broker.Close()
	if err := dir.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close directory")
		code = exitShutdown
	}

	logger.Info().Msg("shutdown complete")
	return code
}

// newDiscovery builds the DNS-SD client from the settings, wiring in the
// transaction signer when key material is configured.
func newDiscovery(cfg *config.Config) (*dnssd.Service, error) {
	var signer *tsig.Signer
	if cfg.DNS.TSIG.KeyName != "" {
		key, err := cfg.TSIGSecret()
		if err != nil {
			return nil, err
		}
		signer, err = tsig.New(cfg.DNS.TSIG.KeyName, cfg.DNS.TSIG.Algorithm, key, cfg.DNS.TSIG.Fudge)
		if err != nil {
			return nil, err
		}
	}

	return dnssd.New(&dnssd.Config{
		NameServers:         cfg.DNS.NameServers,
		BrowsingDomains:     cfg.DNS.BrowsingDomains,
		RegistrationDomains: cfg.DNS.RegistrationDomains,
		Hostname:            cfg.DNS.Hostname,
		Signer:              signer,
		TTL:                 cfg.DNS.TTL,
		Resolver: &resolver.Options{
			Timeout:     time.Duration(cfg.DNS.TimeoutMs) * time.Millisecond,
			KeepOpenFor: time.Duration(cfg.DNS.KeepOpenForMs) * time.Millisecond,
			OnUnhandledError: func(err error) {
				resolverLog := log.WithComponent("resolver")
				resolverLog.Debug().Err(err).Msg("unhandled resolver error")
			},
		},
	}), nil
}
