package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	config "github.com/avvvet/csss-services/configs"
	"github.com/avvvet/csss-services/internal/chatbot"
	mongodb "github.com/avvvet/csss-services/internal/db"
	"github.com/avvvet/csss-services/internal/inference"
	nats "github.com/avvvet/csss-services/internal/nats"
	"github.com/avvvet/csss-services/internal/scansvc/auth"
	"github.com/avvvet/csss-services/internal/scansvc/broker"
	svcconfig "github.com/avvvet/csss-services/internal/scansvc/config"
	"github.com/avvvet/csss-services/internal/scansvc/db"
	"github.com/avvvet/csss-services/internal/scansvc/handlers"
	"github.com/avvvet/csss-services/internal/scansvc/service"
	"github.com/avvvet/csss-services/internal/scansvc/store"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "scan"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	cfg, err := svcconfig.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// pg connection
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	userStore := store.NewUserStore(dbpool)
	scanStore := store.NewScanStore(dbpool)
	otpStore := store.NewOTPStore(dbpool)

	// Connect to NATS
	n, err := nats.Connect(SERVICE_NAME)
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(1)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	b := broker.NewBroker(n.Conn)

	// AI classifier
	icfg, err := inference.ConfigFromEnv()
	if err != nil {
		log.Fatalf("Invalid inference configuration: %v", err)
	}
	classifier, err := inference.New(context.Background(), icfg)
	if err != nil {
		log.Fatalf("Failed to init %s classifier: %v", icfg.Provider, err)
	}
	if c, ok := classifier.(io.Closer); ok {
		defer c.Close()
	}
	log.Infof("%s classifier ready with %d classes", icfg.Provider, len(icfg.Labels))

	// chatbot; sessions fall back to memory when mongo is unavailable
	kb, err := chatbot.LoadKnowledge(cfg.ChatKBPath)
	if err != nil {
		log.Fatalf("Failed to load chatbot knowledge base: %v", err)
	}
	var sessions chatbot.SessionStore
	mdb, disconnect, err := mongodb.ConnectToDB()
	if err != nil {
		log.Warnf("chat sessions kept in memory: %v", err)
		sessions = chatbot.NewMemorySessions(cfg.ChatSessionTTL)
	} else {
		defer disconnect()
		ms, err := chatbot.NewMongoSessions(mdb, cfg.ChatSessionTTL)
		if err != nil {
			log.Fatalf("Failed to init chat sessions: %v", err)
		}
		sessions = ms
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTExpire)
	authService := service.NewAuthService(userStore, otpStore, tokens, b, cfg.OTPExpire)
	scanService := service.NewScanService(scanStore, classifier, b, cfg.UploadDir, cfg.MaxUploadBytes)
	reportService := service.NewReportService(scanStore, userStore, b, cfg.ReportsDir)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(tokens, authService, scanService, reportService,
		chatbot.NewBot(kb, sessions), cfg.MaxUploadBytes)
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
