package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/logcatd/internal/config"
	"github.com/gosuda/logcatd/internal/device"
	"github.com/gosuda/logcatd/internal/logcat"
	"github.com/gosuda/logcatd/internal/prefs"
	"github.com/gosuda/logcatd/internal/server"
	"github.com/gosuda/logcatd/internal/store/postgres"
	redisstore "github.com/gosuda/logcatd/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(cfg.Log.Level)
	if cfg.Log.Format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	displayPrefs := prefs.Load(cfg.PrefsPath)

	// Device bridges: adb always, docker exec when a host is configured.
	var dockerBridge device.Bridge
	if cfg.Docker.Host != "" {
		docker, dockerErr := device.NewDocker(cfg.Docker.Host, cfg.Docker.Label)
		if dockerErr != nil {
			return fmt.Errorf("docker bridge: %w", dockerErr)
		}
		defer docker.Close()
		dockerBridge = docker
		log.Info().Str("host", cfg.Docker.Host).Str("label", cfg.Docker.Label).Msg("docker bridge enabled")
	}
	router := device.NewRouter(device.NewADB(cfg.ADB.Path), dockerBridge)

	packages, err := device.NewPackages(router, int64(cfg.Ingest.PackageEntries), 0)
	if err != nil {
		return err
	}
	defer packages.Close()

	sinks := make(map[string]logcat.Sink)
	deps := server.Deps{
		Devices:  router,
		Prefs:    displayPrefs,
		Location: time.Local,
	}

	if cfg.Redis.Addr != "" {
		pubsub, redisErr := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if redisErr != nil {
			return redisErr
		}
		defer pubsub.Close()
		sinks["redis"] = redisstore.RecordSink(pubsub)
		deps.Mirror = pubsub
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis mirror enabled")
	}

	if cfg.Database.DSN != "" {
		if cfg.Database.MaxConns < 1 || cfg.Database.MaxConns > math.MaxInt32 {
			return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
		}
		store, dbErr := postgres.New(ctx, cfg.Database.DSN, int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
		if dbErr != nil {
			return dbErr
		}
		defer store.Close()
		if schemaErr := store.EnsureSchema(ctx); schemaErr != nil {
			return schemaErr
		}
		sinks["postgres"] = postgres.RecordSink(store.Records())
		deps.Archive = store.Records()
		log.Info().Msg("postgres archive enabled")
	}

	svc := logcat.NewService(router, logcat.Options{
		FlushDelay:   cfg.Ingest.FlushDelay,
		HistoryBytes: cfg.Ingest.HistoryBytes,
		Packages:     packages.Resolver,
		Sinks:        sinks,
		Location:     time.Local,
	})
	deps.Ingestor = svc

	go svc.Watch(ctx, router, cfg.Ingest.WatchInterval, cfg.Ingest.AutoStart)

	srv := server.New(ctx, cfg, deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case <-ctx.Done():
	case startErr := <-errCh:
		if startErr != nil {
			_ = svc.Shutdown(context.Background())
			return startErr
		}
	}
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	srvErr := srv.Shutdown(shutdownCtx)
	svcErr := svc.Shutdown(shutdownCtx)
	if srvErr != nil {
		return srvErr
	}
	if svcErr != nil {
		return svcErr
	}

	log.Info().Msg("stopped")
	return nil
}
