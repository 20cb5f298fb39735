// Command dbdriverd is the out-of-process SQLite database driver: it opens
// the database file, binds a Unix domain socket, and serves JSON-RPC
// requests from clients and the indexing worker until signaled to stop.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/maverikod/code-analysis-db/pkg/config"
	"github.com/maverikod/code-analysis-db/pkg/driver"
	"github.com/maverikod/code-analysis-db/pkg/journal"
	"github.com/maverikod/code-analysis-db/pkg/logging"
	"github.com/maverikod/code-analysis-db/pkg/server"
	"github.com/maverikod/code-analysis-db/pkg/workerpool"
)

// sqliteConfig is the shape of the <driver_config_json> positional
// argument for driver_type "sqlite" — the only driver type this module
// implements, matching the teacher's own driver_factory.py leaving
// postgres/mysql unimplemented.
type sqliteConfig struct {
	Path string `json:"path"`
}

func main() {
	configPath := flag.String("config", "", "optional JSON config file layering extra queue/journal/worker/logging/admin settings")
	adminAddr := flag.String("admin-addr", "", "optional loopback address for the admin HTTP surface, e.g. 127.0.0.1:9090")
	flag.Parse()

	args := flag.Args()
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: dbdriverd <driver_type> <driver_config_json> <socket_path> [<log_path>] [<queue_max_size>]")
		os.Exit(2)
	}
	driverType := args[0]
	driverConfigJSON := args[1]
	socketPath := args[2]
	var logPath string
	if len(args) > 3 {
		logPath = args[3]
	}
	var queueMaxSize int
	if len(args) > 4 {
		n, err := strconv.Atoi(args[4])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid queue_max_size %q: %v\n", args[4], err)
			os.Exit(2)
		}
		queueMaxSize = n
	}

	if driverType != "sqlite" {
		fmt.Fprintf(os.Stderr, "unsupported driver_type %q (only \"sqlite\" is implemented)\n", driverType)
		os.Exit(2)
	}
	var sqliteCfg sqliteConfig
	if err := json.Unmarshal([]byte(driverConfigJSON), &sqliteCfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid driver_config_json: %v\n", err)
		os.Exit(2)
	}
	if sqliteCfg.Path == "" {
		fmt.Fprintln(os.Stderr, "driver_config_json must set \"path\"")
		os.Exit(2)
	}

	cfg := loadLayeredConfig(*configPath)
	os.Setenv("CODE_ANALYSIS_DB_DRIVER", "1")

	log := buildLogger(cfg, logPath)

	drv, err := driver.Open(sqliteCfg.Path)
	if err != nil {
		log.Fatal("failed to open driver", "error", err.Error())
	}

	var jrn *journal.Journal
	if cfg.Journal.Enabled {
		jrnPath := cfg.Journal.Dir + string(os.PathSeparator) + "queries.log"
		jrn, err = journal.Open(jrnPath, cfg.Journal.MaxFileBytes, cfg.Journal.MaxRotatedFiles)
		if err != nil {
			log.Fatal("failed to open journal", "error", err.Error())
		}
		defer jrn.Close()
		drv.AttachJournal(jrn)
	}

	queueCapacity := cfg.Queue.Capacity
	if queueMaxSize > 0 {
		queueCapacity = queueMaxSize
	}

	pool := workerpool.NewWorkerPool(&workerpool.Config{
		InitialSize: cfg.Driver.WorkerPoolSize,
		MinSize:     1,
		MaxSize:     cfg.Driver.WorkerPoolSize * 4,
		QueueSize:   queueCapacity,
	})

	srvCfg := server.DefaultConfig(socketPath)
	srvCfg.QueueCapacity = queueCapacity

	srv := server.New(srvCfg, drv, pool, log)

	addr := *adminAddr
	if addr == "" && cfg.Admin.Enabled {
		addr = cfg.Admin.Address
	}
	admin := server.NewAdminServer(server.AdminConfig{Addr: addr}, srv, jrn, log)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
		admin.Close()
	}()

	adminDone := make(chan error, 1)
	go func() { adminDone <- admin.Run() }()

	if err := srv.Run(ctx); err != nil {
		log.Fatal("server exited with error", "error", err.Error())
	}
	if err := <-adminDone; err != nil {
		log.Error("admin HTTP surface exited with error", "error", err.Error())
	}
}

func loadLayeredConfig(configPath string) *config.Config {
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

func buildLogger(cfg *config.Config, logPathOverride string) *logging.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logPath := logPathOverride
	if logPath == "" {
		logPath = cfg.Logging.Dir
	}
	if logPath == "" {
		return logging.New(os.Stderr, "dbdriverd", level)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v, logging to stderr\n", logPath, err)
		return logging.New(os.Stderr, "dbdriverd", level)
	}
	return logging.New(f, "dbdriverd", level)
}
