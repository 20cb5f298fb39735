// Command dbworkerd hosts the indexing worker loop: a long-lived process
// that polls the driver for files needing (re)indexing and drives them
// through index_file, independent from the driver's own process per
// spec.md §4.9's "often in the same host process as other workers" note.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/maverikod/code-analysis-db/pkg/client"
	"github.com/maverikod/code-analysis-db/pkg/config"
	"github.com/maverikod/code-analysis-db/pkg/dlq"
	"github.com/maverikod/code-analysis-db/pkg/indexworker"
	"github.com/maverikod/code-analysis-db/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "optional JSON config file (same schema as dbdriverd's)")
	socketPath := flag.String("socket", "", "driver Unix domain socket path (overrides config)")
	flag.Parse()

	cfg := loadConfig(*configPath)
	os.Setenv("CODE_ANALYSIS_DB_WORKER", "1")

	sock := *socketPath
	if sock == "" {
		sock = cfg.Worker.DriverSocketPath
	}
	if sock == "" {
		fmt.Fprintln(os.Stderr, "dbworkerd: a driver socket path is required (--socket or config worker.driver_socket_path)")
		os.Exit(2)
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := logging.New(os.Stderr, "dbworkerd", level)

	rpc := client.New(client.DefaultConfig(sock), log)

	ledger, err := dlq.Open(cfg.Worker.DeadLetterDBPath, 0)
	if err != nil {
		log.Fatal("failed to open dead-letter store", "error", err.Error())
	}
	defer ledger.Close()

	wcfg := indexworker.Config{
		PollInterval: time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second,
		BatchSize:    cfg.Worker.BatchSize,
	}
	worker := indexworker.New(wcfg, rpc, ledger, log)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	stats := worker.Run(ctx)
	log.Info("worker stopped", "indexed", stats.Indexed, "errors", stats.Errors, "cycles", stats.Cycles)
	rpc.Disconnect()
}

func loadConfig(configPath string) *config.Config {
	if configPath == "" {
		return (&config.Config{}).WithDefaults()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", configPath, err)
		os.Exit(2)
	}
	return cfg.WithDefaults()
}
