package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordtwist/go/clients"
	"github.com/mcdev12/wordtwist/go/internal/notice"
	"github.com/mcdev12/wordtwist/go/internal/prefs"
	"github.com/mcdev12/wordtwist/go/internal/results"
	"github.com/mcdev12/wordtwist/go/internal/session"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig(getEnv("WORDTWIST_CONFIG", "wordtwist.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Err(err).Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	endpoints, err := session.NewEndpoints(cfg.ServerURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid server url")
	}

	store, err := prefs.New(cfg.PrefsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open preferences")
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate preferences")
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("server_url", cfg.ServerURL).
		Str("username", cfg.Username).
		Str("prefs_path", cfg.PrefsPath).
		Msg("starting wordtwist")

	term := newTerminal(os.Stdout, store, prefs.GameOptions{Size: cfg.DefaultSize, Time: cfg.DefaultTime})

	clock := clockwork.NewRealClock()
	notices := notice.NewBoard(clock, cfg.NoticeDelay)
	notices.OnChange = term.onNotice

	wsCfg := session.DefaultWebsocketConfig()
	if cfg.SessionCookie != "" {
		wsCfg.Header = http.Header{"Cookie": []string{cfg.SessionCookie}}
	}

	scores := clients.NewScoreClient(cfg.ServerURL, cfg.SessionCookie)
	scores.SetTimeout(cfg.RequestTimeout)
	if cfg.Username != "" {
		term.scores = scores
	}

	clientCfg := session.Config{
		Endpoints:         endpoints,
		Dialer:            session.NewWebsocketDialer(wsCfg),
		Clock:             clock,
		Username:          cfg.Username,
		Scores:            scores,
		Notices:           notices,
		GracePeriod:       cfg.GracePeriod,
		SideEffectTimeout: cfg.RequestTimeout,
		OnChange:          term.onSession,
	}

	// Results fan-out is optional
	if cfg.NATSURL != "" {
		jsCfg := results.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		publisher, err := results.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			log.Error().Err(err).Str("nats_url", cfg.NATSURL).Msg("results publishing disabled")
		} else {
			defer publisher.Close()
			clientCfg.Publisher = publisher
		}
	}

	client := session.NewClient(clientCfg)
	term.client = client
	defer client.Reset()

	if err := term.run(ctx, os.Stdin); err != nil {
		log.Error().Err(err).Msg("failed to read commands")
	}

	log.Info().Msg("shutting down")
}
