package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"Pitstop/Clock"
	"Pitstop/Config"
	"Pitstop/Controllers"
	"Pitstop/CronJobs"
	"Pitstop/FiberConfig"
	"Pitstop/Lifecycle"
	"Pitstop/Models"
	"Pitstop/Notifications"
	"Pitstop/Slack"
	"Pitstop/email"
	"Pitstop/middleware"

	"go.uber.org/zap"
)

func main() {
	cfg, err := Config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := Config.NewLogger(cfg.LogLevel, cfg.LogFormat, "pitstop")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("pitstop stopped", zap.Error(err))
	}
}

func run(cfg *Config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := Models.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	venue, err := Config.LoadVenue(cfg.VenueFile)
	if err != nil {
		return err
	}
	created, err := Models.SeedVenue(db, *venue)
	if err != nil {
		return err
	}
	logger.Info("venue loaded",
		zap.String("venue", venue.Name),
		zap.String("time_zone", venue.TimeZone),
		zap.Int("created", created))

	gapPolicy, err := Clock.ParseGapPolicy(cfg.GapPolicy)
	if err != nil {
		return err
	}
	settings := Lifecycle.Settings{
		TimeZone:     venue.TimeZone,
		SharedPoolID: venue.SharedPoolID,
		GapPolicy:    gapPolicy,
	}
	if cfg.FirebaseCredentials != "" {
		fcm, err := Notifications.NewFCM(ctx, db, cfg.FirebaseCredentials, logger)
		if err != nil {
			return err
		}
		settings.Notifier = fcm
	} else {
		logger.Warn("FIREBASE_CREDENTIALS not set, push notifications disabled")
	}
	engine, err := Lifecycle.New(db, logger, settings)
	if err != nil {
		return err
	}

	var publishers []CronJobs.Publisher
	if cfg.SlackToken != "" && cfg.SlackChannel != "" {
		publishers = append(publishers, Slack.NewBoard(cfg.SlackToken, cfg.SlackChannel, logger))
	}
	if cfg.SMTP.Enabled() {
		publishers = append(publishers, &email.DigestMail{
			Sender:  email.NewSender(cfg.SMTP.EmailConfig(venue.Name)),
			To:      cfg.SMTP.To,
			Subject: venue.Name + " maintenance digest",
		})
	}

	var digest Controllers.DigestRunner
	if len(publishers) > 0 {
		scheduler := CronJobs.NewDigestScheduler(engine, venue.Name, logger, publishers...)
		if cfg.DigestCron != "" {
			if err := scheduler.Start(cfg.DigestCron); err != nil {
				return err
			}
			defer scheduler.Stop()
		}
		digest = scheduler
	}

	if cfg.SlackToken != "" && cfg.SlackAppToken != "" && cfg.SlackChannel != "" {
		var refresh func(context.Context) error
		if digest != nil {
			refresh = func(ctx context.Context) error {
				_, err := digest.RunNow(ctx)
				return err
			}
		}
		commands := Slack.NewCommands(engine, refresh)
		go func() {
			if err := Slack.Listen(ctx, cfg.SlackToken, cfg.SlackAppToken, cfg.SlackChannel, commands, logger); err != nil && ctx.Err() == nil {
				logger.Error("slack listener stopped", zap.Error(err))
			}
		}()
	}

	app := FiberConfig.NewApp(logger)
	handler := Controllers.NewHandler(engine, logger)
	FiberConfig.SetupRoutes(app, FiberConfig.NewHandlers(handler, venue.Name, digest), middleware.NewAuth(cfg.JWTSecret))

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		_ = app.Shutdown()
	}()

	logger.Info("server up", zap.String("port", cfg.Port))
	return app.Listen(":" + cfg.Port)
}
