package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sensorvision/internal/api"
	"sensorvision/internal/cache"
	"sensorvision/internal/config"
	"sensorvision/internal/hub"
	"sensorvision/internal/service/ingest"
	"sensorvision/internal/service/insight"
	"sensorvision/internal/storage"
	"sensorvision/internal/store"
	"sensorvision/internal/vision"
	"sensorvision/internal/worker"
	"sensorvision/pkg/logger"
)

func main() {
	cfgPath := os.Getenv("SENSORVISION_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	dbType := os.Getenv("SENSORVISION_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		zlog.Fatal("open database", zap.String("driver", dbType), zap.Error(err))
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		zlog.Fatal("migrate database", zap.Error(err))
	}

	files, err := storage.NewFileStore(cfg.BasicConfig.UploadDir)
	if err != nil {
		zlog.Fatal("init upload storage", zap.Error(err))
	}

	var insightCache insight.Cache
	if cfg.Redis.Enabled {
		rdb, err := cache.NewClient(cfg)
		if err != nil {
			zlog.Fatal("create redis client", zap.Error(err))
		}
		defer rdb.Close()
		insightCache = rdb
	}

	capability, err := vision.NewModel(context.Background(), cfg, cfg.BasicConfig.Provider)
	if err != nil {
		zlog.Fatal("init vision model", zap.Error(err))
	}

	records := store.NewRecords(db)
	eventHub := hub.New()
	defer eventHub.Close()

	runner := worker.NewRunner(records, capability, eventHub, files, worker.Config{
		MinWorkers: cfg.BasicConfig.MinWorkers,
		MaxWorkers: cfg.BasicConfig.MaxWorkers,
		QueueSize:  cfg.BasicConfig.QueueSize,
		Timeout:    time.Duration(cfg.BasicConfig.AnalysisTimeout) * time.Second,
	}, zlog)
	defer runner.Stop()

	ingestSvc := ingest.NewService(records, files, runner, eventHub, zlog)
	insightSvc := insight.NewService(records, capability, files, insightCache, insight.Config{
		Window:   time.Duration(cfg.BasicConfig.InsightWindow) * time.Second,
		Cooldown: time.Duration(cfg.BasicConfig.InsightCooldown) * time.Second,
		CacheTTL: time.Duration(cfg.BasicConfig.InsightCacheTTL) * time.Second,
		Timeout:  time.Duration(cfg.BasicConfig.AnalysisTimeout) * time.Second,
	}, zlog)

	router := gin.Default()
	api.NewHandler(ingestSvc, insightSvc, records, files, eventHub, zlog).RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	zlog.Info("starting server",
		zap.String("addr", addr),
		zap.String("provider", cfg.BasicConfig.Provider))
	if err := router.Run(addr); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}
