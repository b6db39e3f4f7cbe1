package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"tunesync/cache"
	"tunesync/config"
	"tunesync/core/meta"
	"tunesync/core/resolver"
	"tunesync/core/source"
	"tunesync/core/syncer"
	"tunesync/core/syncstate"
	"tunesync/db"
	"tunesync/logger"
	"tunesync/model"
	"tunesync/repository"
	"tunesync/storage"
)

// Start wires the resolution pipeline together and serves the internal API
// until interrupted.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    cfg.LogMaxMB,
		MaxBackups: 5,
		MaxAge:     cfg.LogMaxAge,
		Compress:   true,
	})

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseDB()

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect to database with GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.AlbumGroupMapping{}, &model.TrackFileMapping{}); err != nil {
		logger.Fatal("failed to migrate models", logger.ErrorField(err))
	}

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	var archiver syncer.Archiver
	if cfg.ArchiveStreams {
		if err := storage.InitMinio(cfg); err != nil {
			logger.Fatal("failed to initialize MinIO", logger.ErrorField(err))
		}
		archiver = storage.NewArchive(cfg)
	}

	feed := cache.NewFeed(db.RedisClient)
	links := cache.NewLinkCache(db.RedisClient)
	mappings := repository.NewMappingRepository(db.GormDB, feed)

	res := resolver.New(
		resolver.Config{
			Order:                cfg.SourceOrder,
			AllowParallelPending: cfg.AllowParallelPending,
		},
		source.NewDebridClient(cfg.DebridAPIURL, source.StaticCredentials{Key: cfg.DebridAPIKey}),
		source.NewMirrorstreamClient(cfg.MirrorHosts),
		source.NewPagescrapeClient(cfg.ScrapeBaseURL),
	)

	states := syncstate.Default()
	coordinator := syncer.New(res, mappings, states, archiver, links, syncer.Options{
		DropDir: cfg.DropDir,
	})

	// remote mapping changes (other processes, other tabs) flow into the
	// local broadcaster for as long as the server runs
	feedCtx, feedCancel := context.WithCancel(context.Background())
	defer feedCancel()
	events, stopFeed := feed.Subscribe(feedCtx)
	defer stopFeed()
	go states.ConsumeFeed(feedCtx, events)

	handler := NewAPIHandler(coordinator, states, mappings, meta.NewClient(cfg.MetaAPIURL))

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/api/health", HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sync/{track_id}", handler.StartSyncHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sync/state", handler.SyncStateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/search", handler.SearchTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws/sync", handler.SyncFeedHandler)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", logger.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", logger.ErrorField(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", logger.ErrorField(err))
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
