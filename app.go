package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"autostats/config"
	"autostats/services"
)

// app holds every long-lived service a command may need.
type app struct {
	cfg       *config.Config
	cache     *services.CacheService
	mongo     *services.MongoDBService
	discord   *services.DiscordBotService
	collector *services.Collector
}

// newApp connects the sinks. Only the spreadsheet is mandatory; MongoDB and
// Discord degrade to disabled on failure.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	sheets, err := services.NewSheetsService(ctx, cfg.Sheets)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, cache: services.NewCacheService(cfg)}

	a.mongo, err = services.NewMongoDBService(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("MongoDB connection failed, row history disabled")
		a.mongo = nil
	}

	a.discord, err = services.NewDiscordBotService(cfg.Discord.Token, cfg.Discord.ChannelID, cfg.Discord.NotifyOK)
	if err != nil {
		log.Warn().Err(err).Msg("Discord bot initialization failed, notifications disabled")
		a.discord = nil
	}

	deps := services.CollectorDeps{
		Store:    sheets,
		Launcher: services.NewChromeLauncher(cfg.Browser),
		Chain:    services.NewSubstrateClient(cfg),
		Cache:    a.cache,
	}
	if a.mongo.Enabled() {
		deps.Mirror = a.mongo
	}
	if a.discord.Enabled() {
		deps.Notifier = a.discord
	}
	a.collector = services.NewCollector(cfg, deps)

	return a, nil
}

func (a *app) Close() {
	a.cache.Stop()
	if a.discord != nil {
		a.discord.Close()
	}
	if a.mongo != nil {
		if err := a.mongo.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close MongoDB connection")
		}
	}
}
