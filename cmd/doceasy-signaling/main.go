package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/Hari-dev-2004/doceasy-main/internal/config"
	"github.com/Hari-dev-2004/doceasy-main/internal/httpserver"
	"github.com/Hari-dev-2004/doceasy-main/internal/identity"
	"github.com/Hari-dev-2004/doceasy-main/internal/metrics"
	"github.com/Hari-dev-2004/doceasy-main/internal/relay"
	"github.com/Hari-dev-2004/doceasy-main/internal/room"
	"github.com/Hari-dev-2004/doceasy-main/internal/signaling"
	"github.com/Hari-dev-2004/doceasy-main/internal/store"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting doceasy-signaling",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"database_url_set", cfg.DatabaseURL != "",
		"max_connections", cfg.MaxConnections,
		"max_signal_payload_bytes", cfg.MaxSignalPayloadBytes,
		"max_signaling_message_bytes", cfg.MaxMessageBytes,
		"max_signaling_messages_per_second", cfg.MaxMessagesPerSecond,
		"room_grace_period", cfg.RoomGracePeriod,
		"room_sweep_interval", cfg.RoomSweepInterval,
		"dedupe_participants_by_user", cfg.DedupeParticipantsByUser,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "err", err)
			os.Exit(1)
		}
		st = pg
	} else {
		logger.Warn("DATABASE_URL not set, room metadata is held in memory only")
		st = store.NewMemory()
	}
	defer st.Close()

	m := metrics.New()
	identities := identity.NewStore()
	rooms := room.NewRegistry(room.Config{
		GracePeriod:   cfg.RoomGracePeriod,
		SweepInterval: cfg.RoomSweepInterval,
		OnRemove: func(roomID string) {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := st.DeleteRoom(dctx, roomID); err != nil {
				logger.Error("failed to delete swept room", "room_id", roomID, "err", err)
				return
			}
			logger.Info("removed empty room", "room_id", roomID)
		},
	}, m)
	router := relay.NewRouter(relay.Config{
		SendQueueFrames:    cfg.SendQueueFrames,
		SendQueueBytes:     cfg.SendQueueBytes,
		OverflowCloseAfter: cfg.OverflowCloseAfter,
	}, rooms, identities, m, logger)

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, st, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})

	srv.Mux().Handle("GET /ws", signaling.NewServer(cfg, st, rooms, identities, router, m, logger))

	// Expose internal counters in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go rooms.Run(sweepCtx)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the
	// Go build info when available.
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}
	return commit, buildTime
}
