package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/pbrane/onms-alertmanager-bridge/internal/alarmtable"
	"github.com/pbrane/onms-alertmanager-bridge/internal/api"
	"github.com/pbrane/onms-alertmanager-bridge/internal/config"
	"github.com/pbrane/onms-alertmanager-bridge/internal/consumer"
	"github.com/pbrane/onms-alertmanager-bridge/internal/mapper"
	"github.com/pbrane/onms-alertmanager-bridge/internal/metrics"
	"github.com/pbrane/onms-alertmanager-bridge/internal/nodecache"
	"github.com/pbrane/onms-alertmanager-bridge/internal/scheduler"
	"github.com/pbrane/onms-alertmanager-bridge/internal/sink"
	"github.com/pbrane/onms-alertmanager-bridge/internal/wire"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func run(ctx context.Context) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load(cfgFile)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return err
	}
	slog.Info("starting onms-alertmanager-bridge",
		"kafka_brokers", cfg.KafkaBrokers,
		"topics_alarms", cfg.Topics.Alarms,
		"topics_nodes", cfg.Topics.Nodes,
		"admin_addr", cfg.AdminAddr,
		"alertmanager_url", cfg.Alertmanager.URL,
		"resend_interval", cfg.Alert.ResendInterval,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("received shutdown signal, shutting down gracefully")
		cancel()
	}()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Warn("failed to connect to redis, metrics snapshot export disabled", "error", err)
			redisClient = nil
		}
	}
	collector := metrics.New(redisClient)
	go collector.RunSnapshotLoop(ctx, 30*time.Second)

	nodes := nodecache.New()
	alertSink := sink.New(cfg.Alertmanager, collector)
	alertMapper := mapper.New(cfg, nodes)
	alarms := alarmtable.New(alertMapper, alertSink)

	alarmConsumer, err := consumer.NewAlarmConsumer(cfg.KafkaBrokers, cfg.Topics.Alarms, cfg.AlarmsGroupID, wire.DecodeAlarm, alarms, collector)
	if err != nil {
		slog.Error("failed to create alarm consumer", "error", err)
		slog.Info("tip: start kafka with 'docker compose up -d kafka'")
		return err
	}
	defer alarmConsumer.Close()

	nodeConsumer, err := consumer.NewNodeConsumer(cfg.KafkaBrokers, cfg.Topics.Nodes, cfg.NodesGroupID, wire.DecodeNode, nodes, collector)
	if err != nil {
		slog.Error("failed to create node consumer", "error", err)
		slog.Info("tip: start kafka with 'docker compose up -d kafka'")
		return err
	}
	defer nodeConsumer.Close()

	resender := scheduler.New(cfg.Alert.ResendInterval, alarms, alertMapper, alertSink)
	resender.Start()
	defer resender.Stop()

	go func() {
		if err := alarmConsumer.Run(ctx); err != nil {
			slog.Error("alarm consume loop failed", "error", err)
		}
	}()
	go func() {
		if err := nodeConsumer.Run(ctx); err != nil {
			slog.Error("node consume loop failed", "error", err)
		}
	}()
	go gaugeLoop(ctx, collector, nodes, alarms)

	handlers := api.NewHandlers(api.Options{
		Nodes:               nodes,
		Alarms:              alarms,
		Alertmanager:        alertSink,
		Resender:            resender,
		AlertmanagerURL:     cfg.Alertmanager.URL,
		AlertmanagerEnabled: cfg.Alertmanager.Enabled,
	})
	server := api.NewServer(cfg.AdminAddr, handlers)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting admin http server", "addr", cfg.AdminAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		slog.Error("admin http server failed", "error", err)
		cancel()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("admin http server did not shut down cleanly", "error", err)
	}

	slog.Info("onms-alertmanager-bridge stopped")
	return nil
}

// gaugeLoop keeps the active-alarm and node-cache-size gauges current for
// the metrics snapshot, sampled rather than updated on every mutation since
// neither cache mutates its size on every single operation's hot path.
func gaugeLoop(ctx context.Context, collector *metrics.Collector, nodes *nodecache.Cache, alarms *alarmtable.Table) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collector.SetNodeCacheSize(nodes.Size())
			collector.SetActiveAlarms(alarms.Size())
		}
	}
}
