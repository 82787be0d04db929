package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pwsrelay/internal/config"
	"pwsrelay/internal/db"
	"pwsrelay/internal/httpapi"
	"pwsrelay/internal/logging"
	"pwsrelay/internal/metrics"
	"pwsrelay/internal/migrate"
	"pwsrelay/internal/modules/weather"
	"pwsrelay/internal/modules/weather/service"
	weatherviews "pwsrelay/internal/modules/weather/views"
	"pwsrelay/internal/mqtt"
	"pwsrelay/internal/scheduler"
	"pwsrelay/internal/wunderground"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"dbDriver", cfg.Driver,
		"sqlitePath", cfg.Path,
		"dbMaxOpenConns", cfg.MaxOpenConns,
		"dbMaxIdleConns", cfg.MaxIdleConns,
		"dbConnMaxLifetime", cfg.ConnMaxLifetime,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
		"stationTimezone", cfg.Location.String(),
		"samplesPerHour", cfg.Engine.SamplesPerHour,
		"windVectors", cfg.Engine.WindVectors,
		"wuEnabled", cfg.WUEnabled,
		"wuStation", cfg.WUStation,
		"retention", cfg.Retention,
	)
	dbConn, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := db.Close(dbConn)
		if closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(ctx, dbConn); err != nil {
		return err
	}
	slog.Info("database ready")

	if err := weatherviews.LoadTemplates(); err != nil {
		return err
	}

	collector := metrics.NewCollector("pwsrelay")

	mqttSubscriber, err := mqtt.NewSubscriber(cfg, logging.Component("mqtt"))
	if err != nil {
		return err
	}

	var uploader service.Uploader
	if cfg.WUEnabled {
		creds, err := wunderground.LoadCredentials(cfg.WUCredentialsFile)
		if err != nil {
			return fmt.Errorf("wunderground: %w", err)
		}
		uploader = wunderground.NewClient(wunderground.Config{
			URL:     cfg.WUURL,
			RTFreq:  cfg.WURTFreq,
			Timeout: cfg.WUTimeout,
		}, creds, logging.Component("wunderground"))
		slog.Info("uploads enabled", "station", cfg.WUStation, "credentials", creds.String())
	}

	mux := httpapi.NewMux(dbConn, mqttSubscriber, collector)
	feature, err := weather.RegisterFeature(mux, dbConn, cfg, weather.Deps{
		Metrics:   collector,
		Publisher: mqttSubscriber,
		Uploader:  uploader,
	})
	if err != nil {
		return err
	}

	// Set the MQTT handler before Connect so the connect callback can
	// subscribe immediately; the broker may deliver queued messages right
	// after CONNACK.
	mqttSubscriber.SetHandler(feature.Service.HandleMQTT)

	// Use a short timeout for the initial connect so a missing broker does not block startup.
	connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
	err = mqttSubscriber.Connect(connectCtx)
	connectCancel()
	if err != nil {
		slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
	}

	sched := scheduler.New(feature.Repository, cfg.Retention, cfg.RetentionInterval, collector, logging.Component("scheduler"))
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	srv := httpapi.NewServer(cfg, mux, collector)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		mqttSubscriber.Disconnect()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("mqtt disconnecting")
	mqttSubscriber.Disconnect()

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
