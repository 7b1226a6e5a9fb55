package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/bmsc/comms/internal/adapter/driven/gateway/ws"
	"github.com/bmsc/comms/internal/adapter/driven/media/agora"
	"github.com/bmsc/comms/internal/adapter/driven/media/loopback"
	"github.com/bmsc/comms/internal/adapter/driven/persistence/sqlite"
	signalmem "github.com/bmsc/comms/internal/adapter/driven/signal/memory"
	"github.com/bmsc/comms/internal/adapter/driven/signal/natskv"
	handler "github.com/bmsc/comms/internal/adapter/driving/http"
	"github.com/bmsc/comms/internal/config"
	"github.com/bmsc/comms/internal/core/service"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()
	zlog.Logger = l

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to load config")
	}

	retry := service.RetryPolicy{MaxAttempts: cfg.Retry.MaxAttempts, Step: cfg.Retry.Step()}
	services := service.NewServices()

	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		l.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("Failed to open database")
	}
	defer db.Close()
	services.BindContacts(sqlite.NewContactRepository(db))
	services.BindHistory(sqlite.NewCallHistoryRepository(db))

	var nc *nats.Conn
	if cfg.NATS.Enabled {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("bmsc-comms"),
			nats.ReconnectWait(time.Second),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				l.Warn().Err(err).Msg("NATS disconnected")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				l.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
			}),
		)
		if err != nil {
			l.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		defer nc.Close()

		store, err := natskv.New(nc, cfg.NATS.Bucket)
		if err != nil {
			l.Fatal().Err(err).Msg("Failed to bind signal bucket")
		}
		services.BindSignals(store)
		l.Info().Str("bucket", cfg.NATS.Bucket).Msg("Using NATS signal store")
	} else {
		services.BindSignals(signalmem.NewStore())
		l.Warn().Msg("Using in-process signal store; single-node only")
	}

	services.BindMedia(loopback.NewEngine().NewTransport())

	if err := services.Ready(); err != nil {
		l.Fatal().Err(err).Msg("Collaborators not ready")
	}

	tokens := agora.NewTokenService(cfg.Agora.AppID, cfg.Agora.AppCertificate)
	if !tokens.Configured() {
		l.Warn().Msg("Agora credentials not set; token endpoint will return 500")
	}

	hub := ws.NewHub()
	go hub.Run()

	contactService := service.NewContactService(services, retry)
	historyService := service.NewCallHistoryService(services, retry)
	chatService := service.NewChatService(services, retry)
	coordinator := service.NewCoordinator(services, retry)

	h := handler.NewHandler(contactService, historyService, chatService, coordinator, tokens, hub)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: h.NewRouter(),
	}

	go func() {
		l.Info().Str("addr", cfg.Listen).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	hub.Stop()
	l.Info().Msg("Server exited")
}
