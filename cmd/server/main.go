package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/ptdat/guild-bank/internal/adapter/handler"
	"github.com/ptdat/guild-bank/internal/adapter/ocr"
	"github.com/ptdat/guild-bank/internal/adapter/storage"
	"github.com/ptdat/guild-bank/internal/config"
	"github.com/ptdat/guild-bank/internal/core/service"
	"github.com/ptdat/guild-bank/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// no logger yet
		panic(err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal("open mysql", "error", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		log.Fatal("ping mysql", "error", err)
	}
	log.Info("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("ping redis", "error", err)
	}
	log.Info("connected to redis")

	// OCR
	extractor, err := ocr.NewVisionExtractor(ctx, log)
	if err != nil {
		log.Fatal("init vision", "error", err)
	}

	// Catalog
	catalog, err := service.NewCatalogFromFile(cfg.CatalogPath, cfg.Match.AcceptThreshold, cfg.Match.RejectThreshold)
	if err != nil {
		log.Fatal("load catalog", "error", err)
	}
	log.Info("catalog loaded", "path", cfg.CatalogPath)

	// Adapters and services
	ledgerStore := storage.NewMySQLAdapter(db)
	sessionStore := storage.NewRedisAdapter(rdb)

	classifier := service.NewQualityClassifier()
	parser := service.NewParser(catalog, classifier, cfg.QualityConfidenceFloor)
	ledger := service.NewLedgerService(ledgerStore, log)
	sessions := service.NewSessionService(extractor, sessionStore, parser, catalog, ledger, cfg.SessionIdleTTL.Std(), log)
	audits := service.NewAuditService(sessionStore, ledger, catalog, cfg.AuditCollectTTL.Std(), log)
	crafts := service.NewCraftService(ledger, catalog, log)

	// HTTP server
	if cfg.LogMode == "prod" || cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	handler.NewHTTPHandler(sessions, audits, crafts, ledger, log).Register(router)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("http server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	log.Info("http server stopped")

	_ = extractor.Close()
	_ = rdb.Close()
	_ = db.Close()
	log.Info("connections closed")
}
