// make24d is one player's daemon: it joins the replicated room store
// over NATS and exposes the game to a local UI over WebSocket.
package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/make24/make24/internal/client"
	"github.com/make24/make24/internal/config"
	"github.com/make24/make24/internal/gateway"
	"github.com/make24/make24/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(os.Getenv("MAKE24_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := connectNATS(cfg.NATS.URL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream context")
	}

	clock := clockwork.NewRealClock()
	st, err := store.NewNATS(ctx, js, store.DefaultNATSConfig(), clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bind room store")
	}

	c := client.New(st, clock, rand.New(rand.NewSource(time.Now().UnixNano())), client.Config{
		ClockDuration:     cfg.ClockDuration(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
	})

	svc := gateway.NewService(c, gateway.DefaultConnConfig())
	server := &http.Server{Addr: cfg.Gateway.Addr, Handler: svc.Handler()}

	go func() {
		log.Info().Str("addr", cfg.Gateway.Addr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("gateway server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Leave gracefully so the deferred disconnect cleanup never fires.
	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.LeaveRoom(leaveCtx); err != nil && err != client.ErrNotJoined {
		log.Error().Err(err).Msg("graceful leave failed")
	}
	svc.Close()
	if err := server.Shutdown(leaveCtx); err != nil {
		log.Error().Err(err).Msg("gateway shutdown failed")
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func connectNATS(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	)
}
