// Command exchanged is the exchange process entrypoint: it loads config,
// opens the durable store, rebuilds every open market's book, and starts
// the TCP transport.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wagerbook/internal/config"
	"wagerbook/internal/engine"
	"wagerbook/internal/store"
	"wagerbook/internal/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the exchange config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := store.Open(ctx, cfg.DatabaseURL, cfg.MaxPoolConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer pg.Close()

	eng := engine.New(pg, nil, cfg.TakerFeeBps)

	marketIDs, err := pg.ListOpenMarketIDs(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list open markets")
	}
	for _, id := range marketIDs {
		if err := eng.LoadMarket(ctx, id); err != nil {
			log.Fatal().Err(err).Str("marketId", id).Msg("failed to rebuild market book")
		}
		log.Info().Str("marketId", id).Msg("market book rebuilt")
	}

	srv := transport.New(cfg.Host, cfg.Port, eng, cfg.JWTSecret)
	eng.SetNotifier(srv)

	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("transport server exited")
		os.Exit(1)
	}
}
