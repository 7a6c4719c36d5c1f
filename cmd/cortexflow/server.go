package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/api/handlers"
	"github.com/BaSui01/cortexflow/internal/metrics"
	"github.com/BaSui01/cortexflow/internal/server"
	"github.com/BaSui01/cortexflow/memory/jobs"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	host := fs.String("host", "", "Listen host (overrides config)")
	port := fs.Int("port", 0, "Listen port (overrides config)")
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, orchestrator, logger := bootstrap(*configPath)
	defer func() { _ = logger.Sync() }()

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.HTTPPort = *port
	}

	// 指标收集器
	collector := metrics.NewCollector("cortexflow", logger)

	// 记忆维护调度器
	var scheduler *jobs.Scheduler
	if store := orchestrator.Store(); store != nil {
		scheduler = jobs.NewScheduler(store, nil, cfg.Memory.MaintenanceSchedule, logger)
		if err := scheduler.Start(); err != nil {
			logger.Warn("maintenance scheduler failed to start", zap.Error(err))
		} else {
			defer scheduler.Stop()
		}
	}

	// Handlers
	queryHandler := handlers.NewQueryHandler(orchestrator, cfg, logger).WithCollector(collector)
	memoryHandler := handlers.NewMemoryHandler(orchestrator.Store(), scheduler, logger)
	router := handlers.NewRouter(queryHandler, memoryHandler)

	// 业务服务器
	httpManager := server.NewManager(router, server.Config{
		Addr:            fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * cfg.Server.ReadTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)
	if err := httpManager.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "HTTP server failed: %v\n", err)
		os.Exit(1)
	}

	// Metrics 服务器
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	metricsManager := server.NewManager(metricsMux, server.Config{
		Addr:            fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)
	if err := metricsManager.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Metrics server failed: %v\n", err)
		os.Exit(1)
	}

	logger.Info("all servers started",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("metrics_port", cfg.Server.MetricsPort),
		zap.Bool("memory_enabled", cfg.Memory.Enabled),
	)

	httpManager.WaitForShutdown()
	_ = metricsManager.Shutdown(context.Background())
}
