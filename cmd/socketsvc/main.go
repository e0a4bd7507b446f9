package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/avvvet/csss-services/internal/nats"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/csss-services/configs"

	"github.com/avvvet/csss-services/internal/scansvc/auth"
	"github.com/avvvet/csss-services/internal/socketsvc/broker"
	"github.com/avvvet/csss-services/internal/socketsvc/routes"
	"github.com/avvvet/csss-services/internal/socketsvc/ws"
)

const SERVICE_NAME = "socket"

func init() {
	instanceId := config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		log.Fatal("JWT_SECRET_KEY is required")
	}
	port := os.Getenv("SOCKET_SERVICE_PORT")
	if port == "" {
		port = "8001"
	}

	// Connect to NATS
	n, err := nats.Connect(SERVICE_NAME)
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(1)
	}

	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(c.Handler)

	// to protect the service api from any over requests
	rateLimit, err := strconv.Atoi(os.Getenv("RATE_LIMIT"))
	if err != nil || rateLimit <= 0 {
		rateLimit = 100
	}
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	// Initialize websocket hub
	s := ws.NewWs()

	// token ttl is irrelevant here, the gateway only verifies
	routes.SetRoutes(r, s, auth.NewTokens(secret, time.Hour))

	// every gateway instance needs every event, so no queue group
	b := broker.NewBroker(n.Conn, s.PushScanEvent)
	sub, err := b.Subscribe(nats.SubjectScanEvents)
	if err != nil {
		log.Errorf("Error: unable to subscribe to %s %v", nats.SubjectScanEvents, err)
		os.Exit(1)
	}

	// no write timeout; websocket connections are long lived
	server := &http.Server{
		Addr:        ":" + port,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
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

	sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
