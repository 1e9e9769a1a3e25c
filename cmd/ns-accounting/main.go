package main

import (
	"Go2NetAccounting/internal/accounting"
	"Go2NetAccounting/internal/api"
	"Go2NetAccounting/internal/config"
	"Go2NetAccounting/internal/engine/manager"
	"Go2NetAccounting/internal/factory"
	"Go2NetAccounting/internal/metrics"
	"Go2NetAccounting/internal/publish"
	"Go2NetAccounting/internal/query"
	"Go2NetAccounting/internal/status"
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "Go2NetAccounting/internal/snapshot"           // Registers the gob writer
	_ "Go2NetAccounting/internal/storage/clickhouse" // Registers the clickhouse writer
	_ "Go2NetAccounting/internal/storage/postgres"   // Registers the postgres writer
	_ "Go2NetAccounting/internal/storage/redis"      // Registers the redis writer

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// 1. Load .env and configuration
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to load .env file: %v", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// 2. Create the storage writer and the feed client
	writer, err := factory.CreateWriter(cfg)
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}
	defer writer.Close()

	client := accounting.NewClient(cfg.Router)
	mgr, err := manager.NewManager(cfg, client, writer)
	if err != nil {
		return err
	}

	// 3. Optional cycle event publisher
	publisher, err := publish.New(cfg.Publisher)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	if publisher != nil {
		defer publisher.Close()
		mgr.SetPublisher(publisher)
	}

	// 4. Metrics, health and the status API
	registry := prometheus.NewRegistry()
	exporter := metrics.NewExporter(mgr, mgr.Router())
	registry.MustRegister(exporter, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	health := api.NewHealth(cfg.API.UnhealthyAfter)
	mgr.AddObserver(exporter)
	mgr.AddObserver(health)

	server := api.NewServer(mgr, health, newQuerier(cfg), registry, mgr.Router(), mgr.Subnets().String())
	if err := server.Start(cfg.API.ListenAddr, cfg.API.GrpcListenAddr); err != nil {
		return err
	}

	statusInterval, _ := cfg.StatusInterval()
	reporter := status.NewReporter(mgr, statusInterval)
	reporter.Start()

	// 5. Start polling
	log.Printf("Polling %s", client.URL())
	mgr.Start()

	waitForExit(viper.GetBool("console"))
	log.Println("Shutting down...")

	mgr.Stop()
	reporter.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warnf("Server forced to shutdown: %v", err)
	}

	log.Println(status.FormatLine(mgr.Report(), 0))
	return nil
}

// newQuerier returns a ClickHouse querier when traffic is stored there, nil otherwise.
func newQuerier(cfg *config.Config) query.Querier {
	if cfg.Storage.Type != "clickhouse" {
		return nil
	}
	q, err := query.NewClickHouseQuerier(cfg.Storage.ClickHouse)
	if err != nil {
		log.Warnf("Traffic queries disabled: %v", err)
		return nil
	}
	return q
}

// waitForExit blocks until SIGINT/SIGTERM or, in console mode, until enter is pressed.
func waitForExit(console bool) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	enter := make(chan struct{})
	if console {
		fmt.Println("System ready. Press enter to exit")
		go func() {
			bufio.NewReader(os.Stdin).ReadString('\n')
			close(enter)
		}()
	}

	select {
	case <-sigCh:
	case <-enter:
	}
}

func setupLogging(cfg config.LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	if viper.GetBool("verbose") {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
