package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"autostats/config"
	"autostats/handlers"
	"autostats/middleware"
	"autostats/services"
)

func newServeCmd(cfg func() *config.Config) *cobra.Command {
	var (
		host       string
		port       int
		noSchedule bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the collector on its schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if cmd.Flags().Changed("host") {
				c.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				c.Server.Port = port
			}
			return serve(cmd.Context(), c, !noSchedule)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides SERVER_HOST)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides SERVER_PORT)")
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "only run collections triggered over HTTP")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, schedule bool) error {
	log.Info().
		Str("server", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Str("schedule", cfg.Collector.Schedule).
		Bool("redis", cfg.Redis.Enabled).
		Bool("mongodb", cfg.MongoDB.Enabled).
		Msg("Configuration loaded")

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.cache.StartHealthCheck()

	h := handlers.NewHandler(cfg, a.cache, a.collector, a.mongo)

	var scheduler *services.Scheduler
	if schedule {
		scheduler, err = services.NewScheduler(cfg.Collector.Schedule, a.collector)
		if err != nil {
			return err
		}
		h.NextRun = scheduler.Next
	}

	if a.discord.Enabled() {
		a.discord.StatusFunc = func() string {
			last, found := a.cache.GetLastRun()
			if !found {
				return "No collection has run yet."
			}
			msg := fmt.Sprintf("Last run %s at %s: %s", last.Status, last.Timestamp.Format(time.RFC3339), last.Message)
			if scheduler != nil {
				msg += fmt.Sprintf("\nNext run at %s", scheduler.Next().Format(time.RFC3339))
			}
			return msg
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.LoggerMiddleware())
	e.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	h.Register(e)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", serverAddr).Msg("Server running")
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if scheduler != nil {
		scheduler.Start()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Graceful shutdown initiated")
	case err := <-serverErr:
		log.Error().Err(err).Msg("Server stopped")
	}

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info().Msg("Server exited cleanly")
	return nil
}
