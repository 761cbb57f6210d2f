package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	gosundheit "github.com/AppsFlyer/go-sundheit"
	"github.com/AppsFlyer/go-sundheit/checks"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/WAGO/tp-firmware-sdk-sub000/internal/authn"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/httpapi"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/oauthserver"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/paramprovider"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/settings"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/tokens"
	"github.com/WAGO/tp-firmware-sdk-sub000/internal/webui"
)

// serveOptions holds the flags fixes for the CLI surface, plus
// the ambient path flags adds.
type serveOptions struct {
	socketPath string
	logChannel string
	logLevel string
	basePath string
	configDir string
	clientsDir string
	resourceServersDir string
	templatesDir string
}

func commandServe() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use: "serve",
		Short: "Run the authorization server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runServe(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.socketPath, "socket", "s", "/run/authd/authd.sock", "Unix domain socket path to listen on")
	flags.StringVarP(&opts.logChannel, "log-channel", "c", "stderr", "Log output channel: stderr or syslog")
	flags.StringVarP(&opts.logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	flags.StringVarP(&opts.basePath, "base-path", "r", "/auth", "Base path the OAuth endpoints are mounted under")
	flags.StringVar(&opts.configDir, "config-dir", "/etc/authd", "Directory holding authd.conf")
	flags.StringVar(&opts.clientsDir, "clients-dir", "/etc/authd/clients.d", "Directory of <client_id>.conf files")
	flags.StringVar(&opts.resourceServersDir, "resource-servers-dir", "/etc/authd/resource_servers.d", "Directory of <server_id>.conf files")
	flags.StringVar(&opts.templatesDir, "templates-dir", "/etc/authd/templates", "Directory of the four named HTML templates")

	return cmd
}

func newLogger(level, channel string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	// syslog is out of scope for this implementation; any channel other
	// than stderr still logs there rather than silently dropping output.
	_ = channel
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func runServe(opts serveOptions) error {
	logger := newLogger(opts.logLevel, opts.logChannel)

	store, err := settings.New(settings.Paths{
		ConfigFile: opts.configDir + "/authd.conf",
		ClientsDir: opts.clientsDir,
		ResourceServersDir: opts.resourceServersDir,
	}, logger)
	if err != nil {
		return fmt.Errorf("fatal: settings store init: %w", err)
	}

	refreshLifetime, err := time.ParseDuration(store.GetGlobalSetting(settings.KeyRefreshTokenLifetime) + "s")
	if err != nil {
		refreshLifetime = time.Hour
	}
	tok, err := tokens.New(refreshLifetime, nil, logger)
	if err != nil {
		return fmt.Errorf("fatal: token handler init: %w", err)
	}

	backend := authn.NewInMemoryBackend()
	authenticator := authn.New(backend, backend, backend)

	ui, err := webui.Load(opts.templatesDir, webui.Config{
		ServiceName: "authd",
		ServiceVersion: version,
		SystemUseNotificationSetting: func() string {
			return store.GetGlobalSetting(settings.KeySystemUseNotification)
		},
	})
	if err != nil {
		return fmt.Errorf("fatal: template load: %w", err)
	}

	srv := oauthserver.New(store, tok, authenticator, ui, logger)
	provider := paramprovider.New(store, tok)

	health := gosundheit.New()
	health.RegisterCheck(&checks.CustomCheck{
		CheckName: "settings",
		CheckFunc: func(_ context.Context) (interface{}, error) {
			if store.GetGlobalSetting(settings.KeyAccessTokenLifetime) == "" {
				return nil, fmt.Errorf("settings store has no access_token_lifetime loaded")
			}
			return nil, nil
		},
	}, gosundheit.InitiallyPassing(true))

	router := httpapi.NewRouter(srv, httpapi.Config{
		BasePath: opts.basePath,
		HealthChecker: health,
		Registry: prometheus.NewRegistry(),
	}, logger)

	listener, err := net.Listen("unix", opts.socketPath)
	if err != nil {
		return fmt.Errorf("fatal: listening on socket %s: %w", opts.socketPath, err)
	}
	if err := os.Chmod(opts.socketPath, 0o660); err != nil {
		listener.Close()
		return fmt.Errorf("fatal: chmod socket %s: %w", opts.socketPath, err)
	}

	httpServer := &http.Server{Handler: router}

	var g run.Group

	g.Add(func() error {
		logger.Info("listening", "socket", opts.socketPath, "base_path", opts.basePath)
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		httpServer.Shutdown(ctx)
	})

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	g.Add(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tok.CleanupBlacklist()
			case <-sweepCtx.Done():
				return nil
			}
		}
	}, func(error) { sweepCancel() })

	watchCtx, watchCancel := context.WithCancel(context.Background())
	g.Add(func() error {
		if err := store.WatchForChanges(watchCtx); err != nil {
			return err
		}
		<-watchCtx.Done()
		return nil
	}, func(error) { watchCancel() })

	busCtx, busCancel := context.WithCancel(context.Background())
	g.Add(func() error {
		return runParameterBusLoop(busCtx, provider, logger)
	}, func(error) { busCancel() })

	g.Add(run.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))

	if err := g.Run(); err != nil {
		if _, ok := err.(run.SignalError); ok {
			logger.Info("shutting down cleanly")
			return nil
		}
		return fmt.Errorf("run group: %w", err)
	}
	return nil
}

// runParameterBusLoop wakes once an hour and only logs a debug line; the
// real parameter-bus transport is out of scope and is not implemented
// here. Blacklist sweeps run on the separate one-minute ticker in runServe.
func runParameterBusLoop(ctx context.Context, _ *paramprovider.Provider, logger *slog.Logger) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			logger.Debug("parameter-bus loop woke for periodic housekeeping")
		case <-ctx.Done():
			return nil
		}
	}
}
