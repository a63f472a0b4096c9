package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tausound/server/internal/config"
	"github.com/tausound/server/internal/dispatch"
	"github.com/tausound/server/internal/engine"
	"github.com/tausound/server/internal/engine/software"
	"github.com/tausound/server/internal/event"
	"github.com/tausound/server/internal/health"
	"github.com/tausound/server/internal/logging"
	"github.com/tausound/server/internal/media"
	"github.com/tausound/server/internal/player"
	"github.com/tausound/server/internal/recorder"
	"github.com/tausound/server/internal/session"
	"github.com/tausound/server/internal/slot"
	"github.com/tausound/server/internal/telemetry"
	"github.com/tausound/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	genToken := flag.Bool("generate-token", false, "Generate an auth token when none is configured")
	flag.Parse()

	if err := run(*configPath, *port, *genToken); err != nil {
		fmt.Fprintf(os.Stderr, "tau-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int, genToken bool) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if genToken && cfg.Server.AuthToken == "" {
		tok, err := config.GenerateToken()
		if err != nil {
			return err
		}
		cfg.Server.AuthToken = tok
		logger.Info("generated auth token", "token", tok)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	if err := os.MkdirAll(cfg.Recorder.RecordDir, 0o755); err != nil {
		return fmt.Errorf("record dir: %w", err)
	}

	eng := software.New(software.Options{
		SampleRate:   cfg.Engine.SampleRate,
		Tick:         cfg.Engine.Tick,
		FeedLowWater: cfg.Engine.FeedBuffer,
	})
	tracker := health.NewTracker(health.DefaultThreshold)

	// Player channel.
	players := slot.New[*player.Player]()
	playerCast := ws.NewBroadcaster(session.PlayerKind.String(), cfg.Server.MaxConnections, logger)
	playerLevel, _ := engine.ParseLogLevel(cfg.Player.LogLevel)
	playerDeps := &player.Deps{
		Engine:               eng,
		Emitter:              event.NewEmitter(session.PlayerKind, tracker.Observe(session.PlayerKind, playerCast), players.StateOf, logger),
		Registry:             players,
		Media:                &media.Policy{Root: cfg.Player.ResourceDir},
		Logger:               logger,
		LogLevel:             playerLevel,
		SubscriptionInterval: cfg.Player.SubscriptionInterval,
	}
	playerDispatch := dispatch.New(player.Namespace(playerDeps), players, logger)

	// Recorder channel; recordings stay inside the record dir.
	recorders := slot.New[*recorder.Recorder]()
	recorderCast := ws.NewBroadcaster(session.RecorderKind.String(), cfg.Server.MaxConnections, logger)
	recorderLevel, _ := engine.ParseLogLevel(cfg.Recorder.LogLevel)
	recordPolicy, err := media.Confined(cfg.Recorder.RecordDir)
	if err != nil {
		return fmt.Errorf("record dir: %w", err)
	}
	recorderDeps := &recorder.Deps{
		Engine:   eng,
		Emitter:  event.NewEmitter(session.RecorderKind, tracker.Observe(session.RecorderKind, recorderCast), recorders.StateOf, logger),
		Registry: recorders,
		Media:                recordPolicy,
		Logger:               logger,
		LogLevel:             recorderLevel,
		SubscriptionInterval: cfg.Recorder.SubscriptionInterval,
	}
	recorderDispatch := dispatch.New(recorder.Namespace(recorderDeps), recorders, logger)

	checker := health.NewChecker(tracker, map[session.Kind]health.Lister{
		session.PlayerKind:   players,
		session.RecorderKind: recorders,
	})
	server := ws.NewServer([]ws.Channel{
		{Kind: session.PlayerKind.String(), Handler: playerDispatch, Broadcaster: playerCast, Live: players.Live},
		{Kind: session.RecorderKind.String(), Handler: recorderDispatch, Broadcaster: recorderCast, Live: recorders.Live},
	}, ws.Options{
		Auth:           ws.Authenticator{Token: cfg.Server.AuthToken, JWTSecret: []byte(cfg.Server.JWTSecret)},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Health:         checker,
		Logger:         logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ws.ListenAndServe(gctx, cfg.ListenAddr(), server.Handler(), logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		server.Close()
		players.ResetAll()
		recorders.ResetAll()
		return nil
	})
	return g.Wait()
}
