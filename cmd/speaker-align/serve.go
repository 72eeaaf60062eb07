package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/snarg/speaker-align/internal/align"
	"github.com/snarg/speaker-align/internal/api"
	"github.com/snarg/speaker-align/internal/config"
	"github.com/snarg/speaker-align/internal/database"
	"github.com/snarg/speaker-align/internal/ingest"
	"github.com/snarg/speaker-align/internal/metrics"
	"github.com/snarg/speaker-align/internal/mqttclient"
	"github.com/snarg/speaker-align/internal/render"
	"github.com/snarg/speaker-align/internal/storage"
	"github.com/snarg/speaker-align/internal/transcribe"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	var o config.Overrides
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, job workers and optional MQTT and directory ingest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, o)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&o.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	fl.StringVar(&o.DatabaseURL, "database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	fl.StringVar(&o.MQTTBrokerURL, "mqtt-broker", "", "MQTT broker URL (overrides MQTT_BROKER_URL)")
	fl.StringVar(&o.OutputDir, "output-dir", "", "directory for rendered outputs (overrides OUTPUT_DIR)")
	fl.StringVar(&o.OutputFormats, "formats", "", "comma-separated output formats (overrides OUTPUT_FORMATS)")
	fl.StringVar(&o.WatchDir, "watch-dir", "", "directory to watch for inputs (overrides WATCH_DIR)")
	fl.StringVar(&o.SpeakerNames, "names", "", "YAML file mapping speaker labels to display names")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	startTime := time.Now()
	log := newLogger(cfg)
	log.Info().Str("version", version).Msg("speaker-align starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	names, err := render.LoadSpeakerNames(cfg.SpeakerNames)
	if err != nil {
		return err
	}
	formats, err := render.ParseFormats(cfg.OutputFormats)
	if err != nil {
		return err
	}

	// Database
	var db *database.DB
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		dbLog := log.With().Str("component", "database").Logger()
		db, err = database.Connect(ctx, cfg.DatabaseURL, dbLog)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		pool = db.Pool
	} else {
		log.Info().Msg("DATABASE_URL not set, transcripts are not persisted")
	}

	// Output storage
	var store storage.Store
	if cfg.SaveOutput {
		store, err = storage.New(cfg.S3, cfg.OutputDir, log.With().Str("component", "storage").Logger())
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		log.Info().Str("type", store.Type()).Strs("formats", formatNames(formats)).Msg("output storage ready")
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	pruner := storage.NewUploadPruner(cfg.UploadDir, cfg.UploadRetention, cfg.UploadMaxGB, log)
	pruner.Start()
	defer pruner.Stop()

	// MQTT
	var mq *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		mq, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topics:    cfg.MQTTJobTopic,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			return fmt.Errorf("connect mqtt broker: %w", err)
		}
		defer mq.Close()
	}

	// Workers
	pipeline := buildPipeline(cfg, log)
	workers := transcribe.NewWorkerPool(transcribe.WorkerPoolOptions{
		Pipeline:  pipeline,
		Store:     store,
		DB:        db,
		Formats:   formats,
		Names:     names,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		OnComplete: func(res transcribe.JobResult) {
			if mq == nil || cfg.MQTTResultTopic == "" {
				return
			}
			if err := mq.PublishJSON(cfg.MQTTResultTopic, res); err != nil {
				log.Warn().Err(err).Str("job_id", res.Job.ID).Msg("failed to publish job result")
			}
		},
		Log: log.With().Str("component", "workers").Logger(),
	})
	workers.Start()
	defer workers.Stop()

	prometheus.MustRegister(metrics.NewCollector(pool, workers))

	if mq != nil {
		mq.SetMessageHandler(ingest.NewJobHandler(workers, log))
	}

	// Directory ingest
	var watcher *ingest.FileWatcher
	if cfg.WatchDir != "" {
		watcher = ingest.NewFileWatcher(workers, cfg.WatchDir, cfg.WatchBackfill, log)
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start file watcher: %w", err)
		}
		defer watcher.Stop()
	}

	// HTTP server
	opts := api.ServerOptions{
		Config: cfg,
		Queue:  workers,
		Store:  store,
		Names:  names,
		AlignConfig: align.Options{
			UnknownSpeaker: cfg.UnknownSpeaker,
			Merge:          align.MergeOptions{Terminators: cfg.Terminators},
		},
		Version:   version,
		StartTime: startTime,
		Log:       log.With().Str("component", "http").Logger(),
	}
	if db != nil {
		opts.DB = db
		opts.DBHealth = db
	}
	if mq != nil {
		opts.MQTT = mq
	}
	if watcher != nil {
		opts.Watcher = watcher
	}
	srv := api.NewServer(opts)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		if runErr != nil {
			log.Error().Err(runErr).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout; deferred stops then drain the
	// watcher, the worker queue, MQTT and the database in that order.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Dur("uptime", time.Since(startTime)).Msg("speaker-align stopped")
	return runErr
}

func formatNames(fs []render.Format) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}
