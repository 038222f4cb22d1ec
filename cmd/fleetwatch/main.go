package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"golang.org/x/sync/errgroup"

	"fleetwatch/internal/alerting"
	"fleetwatch/internal/api"
	"fleetwatch/internal/cache"
	"fleetwatch/internal/collect"
	"fleetwatch/internal/config"
	"fleetwatch/internal/model"
	"fleetwatch/internal/notify"
	"fleetwatch/internal/sampler"
	"fleetwatch/internal/sched"
	"fleetwatch/internal/store"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// buildInfo returns version, commit, build time, and VCS details from the
// embedded Go build info. ldflags-injected values take priority; VCS info
// from debug.ReadBuildInfo fills in anything left as default.
func buildInfo() (ver, sha, built, dirty string) {
	ver = version
	sha = commit
	built = buildTime
	dirty = "clean"

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if sha == "none" {
				sha = s.Value
			}
		case "vcs.time":
			if built == "unknown" {
				built = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" {
				dirty = "dirty"
			}
		}
	}

	return
}

func main() {
	configPath := flag.String("config", "", "path to fleetwatch.yml config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	ver, sha, built, dirty := buildInfo()

	if *showVersion {
		fmt.Printf("fleetwatch %s\n  commit:    %s (%s)\n  built:     %s\n  go:        %s\n  platform:  %s/%s\n",
			ver, sha, dirty, built, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigFileNotFound) {
			fmt.Fprintf(os.Stderr, "error: %s\n\n", err)
			fmt.Fprintf(os.Stderr, "Copy the example config to get started:\n")
			fmt.Fprintf(os.Stderr, "  cp fleetwatch.example.yml %s\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "error: loading config (%s): %s\n", *configPath, err)
		}
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting fleetwatch",
		"version", ver,
		"commit", sha,
		"built", built,
		"dirty", dirty,
		"go", runtime.Version(),
		"listen", cfg.Listen,
		"sampler_mode", cfg.Sampler.Mode,
	)

	st, err := store.New(cfg.DBPath)
	if err != nil {
		slog.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, err := buildCache(ctx, cfg)
	if err != nil {
		slog.Error("initializing cache", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	if err := seedServers(ctx, st, cfg); err != nil {
		slog.Error("seeding servers", "error", err)
		os.Exit(1)
	}

	hub := notify.NewHub()
	manager := alerting.NewManager(st, hub, alerting.Config{
		SuppressionWindow: cfg.Alerting.SuppressionWindow.Duration,
		StaleCutoff:       cfg.Alerting.StaleCutoff.Duration,
	})
	selector := sampler.NewSelector(sampler.Mode(cfg.Sampler.Mode), cfg.Sampler.MinDiskMB)
	collector := collect.New(st, selector, manager, c, hub, cfg.Cache.TTL.Duration)
	scheduler := sched.New(st, collector, manager, sampler.Mode(cfg.Sampler.Mode))
	pruner := store.NewPruner(st, store.DefaultRetention())
	apiServer := api.NewServer(cfg.Listen, st, c, manager, hub)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return scheduler.Run(ctx) })
	g.Go(func() error { return pruner.Run(ctx) })
	g.Go(func() error { return apiServer.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fleetwatch exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("fleetwatch stopped")
}

func setupLogging(cfg *config.Config) {
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func buildCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if cfg.Cache.Backend == "redis" {
		return cache.NewRedis(ctx, cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB)
	}
	return cache.NewMemory(), nil
}

// seedServers populates an empty servers table so a fresh install has
// something to monitor: the local machine in host mode, a small demo fleet
// in simulated mode.
func seedServers(ctx context.Context, st *store.Store, cfg *config.Config) error {
	n, err := st.CountServers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if cfg.Sampler.Mode == string(sampler.ModeHost) {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "localhost"
		}
		_, err = st.CreateServer(ctx, model.Server{
			Name:            hostname,
			HostName:        hostname,
			Description:     "Local machine",
			OperatingSystem: runtime.GOOS,
			IsActive:        true,
			IsHost:          true,
			Thresholds:      model.DefaultThresholds(),
		})
		if err != nil {
			return err
		}
		slog.Info("seeded local host server", "name", hostname)
		return nil
	}

	demo := []model.Server{
		{Name: "web-01", HostName: "web-01.demo", IPAddress: "10.0.0.11", Location: "us-east"},
		{Name: "web-02", HostName: "web-02.demo", IPAddress: "10.0.0.12", Location: "us-east"},
		{Name: "db-01", HostName: "db-01.demo", IPAddress: "10.0.0.21", Location: "eu-west"},
	}
	for _, srv := range demo {
		srv.IsActive = true
		srv.OperatingSystem = "linux"
		srv.Thresholds = model.DefaultThresholds()
		if _, err := st.CreateServer(ctx, srv); err != nil {
			return err
		}
	}
	slog.Info("seeded demo fleet", "servers", len(demo))
	return nil
}
