package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Johnr24/neso-octowatch/pkg/log"
	"github.com/Johnr24/neso-octowatch/pkg/neso"
	"github.com/Johnr24/neso-octowatch/pkg/poller"
	"github.com/Johnr24/neso-octowatch/pkg/publisher"
	"github.com/Johnr24/neso-octowatch/pkg/server"
	"github.com/Johnr24/neso-octowatch/pkg/storage"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	client := neso.Configured()
	db := storage.Configured()
	sink := publisher.ConfiguredSink()
	pub := publisher.New()
	p := poller.Configured(client, pub, sink, db)

	// init server
	srv := server.Configured(pub, p)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	if err := client.Validate(); err != nil {
		slog.Error("invalid neso client configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := db.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
		if err := sink.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close sink", "error", err)
		}
	}()

	// run the collection loop alongside the server
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		if err := p.Run(ctx); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "poller failed", "error", err)
			cancel()
		}
	}()

	// Run will block until context is canceled or error happens
	err := srv.Run(ctx)
	cancel()
	<-pollerDone
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
