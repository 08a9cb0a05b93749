package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/alaska2/internal/cache"
	"github.com/Brownie44l1/alaska2/internal/config"
	"github.com/Brownie44l1/alaska2/internal/handlers"
	"github.com/Brownie44l1/alaska2/internal/logger"
	"github.com/Brownie44l1/alaska2/internal/model"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("info", "").WithError(err).Fatal("Failed to load config")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Path)

	log.WithField("model", cfg.Model.Path).Info("Loading model")
	session, err := model.NewSession(model.Options{
		ModelPath:    cfg.Model.Path,
		MetadataPath: cfg.Model.MetadataPath,
		LibraryPath:  cfg.Model.LibraryPath,
		Device:       cfg.Model.Device,
		DeviceID:     cfg.Model.DeviceID,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize model session")
	}
	defer session.Close()
	if err := session.Metadata.CheckImageSize(cfg.Data.ImageSize); err != nil {
		log.WithError(err).Fatal("Model does not match configuration")
	}

	var resultCache handlers.Cache
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize redis cache")
		}
		defer redisCache.Close()
		resultCache = redisCache
		log.WithField("addr", cfg.Redis.Addr).Info("Prediction cache enabled")
	}

	handler := handlers.NewHandler(session, session.Metadata, resultCache, cfg.Server.MaxUploadBytes, log)

	router := mux.NewRouter()
	router.Use(handlers.Recovery(log), handlers.Logging(log), handlers.CORS)
	router.HandleFunc("/health", handler.Health).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/predict", handler.Predict).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/predict/image", handler.PredictFromImage).Methods(http.MethodPost, http.MethodOptions)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":    cfg.Addr(),
			"classes": session.Metadata.Classes,
			"device":  cfg.Model.Device,
		}).Info("Server started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server stopped")
}
