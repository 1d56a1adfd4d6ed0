package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/khabarwatch/khabarwatch/internal/alerts"
	"github.com/khabarwatch/khabarwatch/internal/archive"
	"github.com/khabarwatch/khabarwatch/internal/classify"
	"github.com/khabarwatch/khabarwatch/internal/config"
	"github.com/khabarwatch/khabarwatch/internal/connectors"
	"github.com/khabarwatch/khabarwatch/internal/health"
	"github.com/khabarwatch/khabarwatch/internal/ingest"
	"github.com/khabarwatch/khabarwatch/internal/notifications"
	"github.com/khabarwatch/khabarwatch/internal/realtime"
	"github.com/khabarwatch/khabarwatch/internal/scheduler"
	"github.com/khabarwatch/khabarwatch/internal/store"
	"github.com/khabarwatch/khabarwatch/internal/usage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting khabarwatch")

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logrus.Fatalf("Failed to open store: %v", err)
	}

	publisher := realtime.NewNoop()
	if cfg.RedisAddr != "" {
		publisher, err = realtime.NewRedis(cfg.RedisAddr)
		if err != nil {
			logrus.Fatalf("Failed to connect to Redis: %v", err)
		}
	}
	defer publisher.Close()

	mailer := notifications.NewNoop()
	if cfg.EmailAlertsEnabled {
		mailer = notifications.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	}

	var archiver archive.Archiver
	if cfg.StorageAccount != "" {
		blobArchiver, err := archive.NewBlobArchiver(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize batch archival: %v", err)
		}
		archiver = blobArchiver
	}

	conns := []connectors.Connector{
		connectors.NewRSSConnector(cfg.NewsFeeds),
		connectors.NewRedditConnector(),
		connectors.NewYouTubeConnector(cfg.YouTubeAPIKey),
		connectors.NewXConnector(cfg.XBearerToken),
		connectors.NewMetaConnector(cfg.MetaAccessToken),
	}

	classifier := classify.NewSentimentClassifier(cfg.SentimentAPIURL, cfg.SentimentAPIToken)
	tracker := health.NewTracker(db)
	ledger := usage.NewLedger(db)
	emitter := alerts.NewEmitter(db, publisher, mailer, cfg.EmailAlertsEnabled)

	orchestrator := ingest.NewOrchestrator(db, conns, classifier, tracker, ledger, emitter, archiver, ingest.Options{
		ConnectorTimeout: time.Duration(cfg.ConnectorTimeoutSeconds) * time.Second,
		DedupPolicy:      cfg.DedupPolicy,
	})

	schedulerService := scheduler.NewService(db, orchestrator, cfg.TickSeconds, cfg.MaxConcurrentRuns)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")
	router.HandleFunc("/metrics", metricsHandler(orchestrator)).Methods("GET")
	router.HandleFunc("/projects/{id}/run", triggerHandler(db, orchestrator)).Methods("POST")
	router.HandleFunc("/projects/{id}/connectors", connectorHealthHandler(db)).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func metricsHandler(orchestrator *ingest.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, orchestrator.Snapshot())
	}
}

// triggerHandler runs one ingestion batch on demand. The orchestrator
// contract is identical to a scheduled tick: partial failures surface as
// health data, never as a request error.
func triggerHandler(db store.Store, orchestrator *ingest.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, err := db.GetProject(mux.Vars(r)["id"])
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "project not found"})
			return
		}

		result, err := orchestrator.Run(r.Context(), *project)
		if err != nil {
			logrus.Errorf("Manual run failed for project %s: %v", project.ID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ingestion failed"})
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func connectorHealthHandler(db store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.HealthForProject(mux.Vars(r)["id"])
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load connector health"})
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}
