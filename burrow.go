package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/burrowbb/burrow/api"
	"github.com/burrowbb/burrow/cfg"
	"github.com/burrowbb/burrow/forum"
	"github.com/burrowbb/burrow/hooks"
	"github.com/burrowbb/burrow/notify"
	"github.com/burrowbb/burrow/store"
	"github.com/burrowbb/burrow/telemetry"
	"github.com/burrowbb/burrow/translate"
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("Burrow - Forum Publication Backend")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	// Record store
	storePath := filepath.Join(cfg.Config.DataDir, "records")
	recordStore, err := store.NewPebbleStore(storePath, store.DefaultPebbleOptions())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open record store")
		return
	}
	defer recordStore.Close()

	// Cross-process signal bus
	log.Info().Str("backend", string(cfg.Config.Signal.Backend)).Msg("Starting signal bus")
	bus, err := notify.NewBus(cfg.Config.Signal)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start signal bus")
		return
	}
	defer bus.Close()

	// Extension hooks + forum core
	hookBus := hooks.NewBus()
	forumCore, err := forum.New(recordStore, hookBus, bus)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize forum core")
		return
	}

	// Translation runs as a pre-create filter: non-English content is
	// replaced by its translation before the record is persisted. The
	// client fails open, so a translator outage never blocks publication.
	translator := translate.NewClient(cfg.Config.Translator)
	if cfg.Config.Translator.URL != "" {
		hookBus.RegisterFilter("filter:post.create", func(payload interface{}) (interface{}, error) {
			post, ok := payload.(*forum.Post)
			if !ok {
				return payload, nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Config.Translator.TimeoutMS)*time.Millisecond)
			defer cancel()
			isEnglish, translated := translator.Translate(ctx, post.Content)
			if !isEnglish {
				post.Content = translated
			}
			return post, nil
		})
	}

	// Counter gauges
	collector := telemetry.NewMetricsCollector(recordStore, 15*time.Second)
	collector.Start()
	defer collector.Stop()

	// Scheduled topic publisher
	publisherCtx, cancelPublisher := context.WithCancel(context.Background())
	defer cancelPublisher()
	go forumCore.RunScheduledPublisher(publisherCtx)

	// HTTP API
	server := api.NewServer(forumCore)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("API server shutdown incomplete")
		}
	}
}
