package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IliaW/lead-scrape-worker/config"
	"github.com/IliaW/lead-scrape-worker/internal/aws_s3"
	"github.com/IliaW/lead-scrape-worker/internal/broker"
	"github.com/IliaW/lead-scrape-worker/internal/browser"
	cacheClient "github.com/IliaW/lead-scrape-worker/internal/cache"
	"github.com/IliaW/lead-scrape-worker/internal/dedup"
	"github.com/IliaW/lead-scrape-worker/internal/model"
	"github.com/IliaW/lead-scrape-worker/internal/orchestrator"
	"github.com/IliaW/lead-scrape-worker/internal/parser"
	"github.com/IliaW/lead-scrape-worker/internal/persistence"
	"github.com/IliaW/lead-scrape-worker/internal/quota"
	"github.com/IliaW/lead-scrape-worker/internal/worker"
	"github.com/go-sql-driver/mysql"
	"github.com/lmittmann/tint"
)

var (
	cfg   *config.Config
	log   *slog.Logger
	db    *sql.DB
	cache cacheClient.CounterClient
	repo  *persistence.Repository
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg = config.MustLoad()
	log = setupLogger()
	db = setupDatabase()
	defer closeDatabase()
	cache = setupCache()
	defer cache.Close()
	repo = persistence.NewRepository(db, log)
	log.Info("starting application.", slog.String("env", cfg.Env), slog.String("version", cfg.Version))

	orch := &orchestrator.Orchestrator{
		Store:    repo,
		Quota:    quota.NewGuard(repo, time.Now),
		Dedup:    dedup.New(repo),
		Parser:   parser.New(log),
		Launcher: browser.NewChromeLauncher(cfg.BrowserSetting, log),
		Counter:  cache,
		Window:   cfg.CacheSettings.RequestWindow,
		Log:      log,
		Now:      time.Now,
	}
	if archive := setupArchive(); archive != nil {
		orch.Archive = archive
	}

	queue := worker.NewSessionQueue(repo, cfg.WorkerSettings.QueueSize, log)
	eventChan := make(chan *model.SessionEvent, cfg.WorkerSettings.QueueSize)
	panicChan := make(chan struct{}, 1)

	consumerWg := &sync.WaitGroup{}
	consumerWg.Add(1)
	go broker.NewKafkaConsumer(queue, cfg.KafkaSettings.Consumer, log, consumerWg).Run(ctx)

	// A single worker runs queued sessions one at a time.
	workerWg := &sync.WaitGroup{}
	sessionWorker := &worker.SessionWorker{
		InputChan:  queue.IDs(),
		OutputChan: eventChan,
		PanicChan:  panicChan,
		Runner:     orch,
		Cfg:        cfg,
		Log:        log,
		Wg:         workerWg,
	}
	workerWg.Add(1)
	go sessionWorker.Run()
	// Restart the worker if it panics.
	go func() {
		for range panicChan {
			workerWg.Add(1)
			go sessionWorker.Run()
			time.Sleep(cfg.WorkerSettings.RestartDelay) // avoid polluting logs if something unrecoverable happened
		}
	}()

	producerWg := &sync.WaitGroup{}
	producerWg.Add(1)
	go broker.NewKafkaProducer(eventChan, cfg.KafkaSettings.Producer, log, producerWg).Run()

	// Graceful shutdown.
	// 1. Stop Kafka Consumer by system call. Close the session queue
	// 2. Wait till the Worker finished every queued session. Close eventChan
	// 3. Wait till Producer process all messages from eventChan and write to kafka
	// 4. Stop Kafka Producer. Close database and cache connections
	<-ctx.Done()
	log.Info("stopping server...")
	consumerWg.Wait()
	queue.Close()
	log.Info("close session queue.")
	workerWg.Wait()
	close(eventChan)
	log.Info("close eventChan.")
	close(panicChan)
	log.Info("close panicChan.")
	producerWg.Wait()
}

func setupLogger() *slog.Logger {
	resolvedLogLevel := func() slog.Level {
		envLogLevel := strings.ToLower(cfg.LogLevel)
		switch envLogLevel {
		case "info":
			return slog.LevelInfo
		case "error":
			return slog.LevelError
		default:
			return slog.LevelDebug
		}
	}

	replaceAttrs := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		return a
	}

	var logger *slog.Logger
	if strings.ToLower(cfg.LogType) == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource:   true,
			Level:       resolvedLogLevel(),
			ReplaceAttr: replaceAttrs}))
	} else {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			AddSource:   true,
			Level:       resolvedLogLevel(),
			ReplaceAttr: replaceAttrs,
			NoColor:     false}))
	}

	slog.SetDefault(logger)
	logger.Debug("debug messages are enabled.")

	return logger
}

func setupDatabase() *sql.DB {
	log.Info("connecting to the database...")
	sqlCfg := mysql.Config{
		User:                 cfg.DbSettings.User,
		Passwd:               cfg.DbSettings.Password,
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%s", cfg.DbSettings.Host, cfg.DbSettings.Port),
		DBName:               cfg.DbSettings.Name,
		AllowNativePasswords: true,
		ParseTime:            true,
		Loc:                  time.Local, // the daily quota is counted in local calendar days
	}
	database, err := sql.Open("mysql", sqlCfg.FormatDSN())
	if err != nil {
		log.Error("failed to establish database connection.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	database.SetConnMaxLifetime(cfg.DbSettings.ConnMaxLifetime)
	database.SetMaxOpenConns(cfg.DbSettings.MaxOpenConns)
	database.SetMaxIdleConns(cfg.DbSettings.MaxIdleConns)

	maxRetry := 6
	for i := 1; i <= maxRetry; i++ {
		log.Info("ping the database.", slog.String("attempt", fmt.Sprintf("%d/%d", i, maxRetry)))
		pingErr := database.Ping()
		if pingErr != nil {
			log.Error("not responding.", slog.String("err", pingErr.Error()))
			if i == maxRetry {
				log.Error("failed to establish database connection.")
				os.Exit(1)
			}
			log.Info(fmt.Sprintf("wait %d seconds", 5*i))
			time.Sleep(time.Duration(5*i) * time.Second)
		} else {
			break
		}
	}
	log.Info("connected to the database!")

	if err = persistence.EnsureSchema(context.Background(), database); err != nil {
		log.Error("failed to prepare database schema.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return database
}

func closeDatabase() {
	log.Info("closing database connection.")
	err := db.Close()
	if err != nil {
		log.Error("failed to close database connection.", slog.String("err", err.Error()))
	}
}

// setupCache prefers the shared memcached counter so several worker processes spend one request budget.
func setupCache() cacheClient.CounterClient {
	if cfg.CacheSettings.Servers == "" {
		log.Warn("no memcached servers configured. using in-process request counter.")
		return cacheClient.NewLocalClient(cfg.CacheSettings.RequestWindow)
	}
	mc, err := cacheClient.NewMemcachedClient(cfg.CacheSettings, log)
	if err != nil {
		log.Error("failed to connect to memcached. using in-process request counter.",
			slog.String("err", err.Error()))
		return cacheClient.NewLocalClient(cfg.CacheSettings.RequestWindow)
	}
	return mc
}

func setupArchive() *aws_s3.PageArchive {
	if cfg.S3Settings == nil || cfg.S3Settings.BucketName == "" {
		log.Info("s3 bucket is not configured. search results will not be archived.")
		return nil
	}
	archive, err := aws_s3.NewPageArchive(cfg.S3Settings, log)
	if err != nil {
		log.Error("failed to connect to s3. search results will not be archived.", slog.String("err", err.Error()))
		return nil
	}
	return archive
}
