package config

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/joho/godotenv"
)

var InstanceId string

// LoadEnv loads ./.env when present. Deployed services get their
// variables from the environment, so a missing file is only a warning.
func LoadEnv(service string) {
	log.Infof("%s service configuration and env variables loading started ...", service)
	err := godotenv.Load("./.env")
	if err != nil {
		log.Warnf("no .env file loaded for %s service: %s", service, err)
		return
	}

	log.Info(".env file loaded.")
}

func CreateUniqueInstance(service string) string {
	id, err := uuid.NewV4() // instance identifier
	if err != nil {
		log.Errorf("error generating instanceId: %s", err)
		os.Exit(1)
	}
	InstanceId = id.String()
	log.Infof(service+" service with Instance ID: %s is ready", id)
	return id.String()
}

func GetInstanceId() string {
	return InstanceId
}

func CORS() *cors.Cors {
	origins := []string{"http://localhost:3000"}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins = strings.Split(v, ",")
	}

	corsOptions := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	})

	return corsOptions
}

// Logging sends the service log to <LOG_DIR>/<service>.log (default
// .l_g) at LOG_LEVEL (default info). LOG_DIR=- keeps stderr.
func Logging(service string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(LogLevel())

	logFolder := os.Getenv("LOG_DIR")
	if logFolder == "" {
		logFolder = ".l_g"
	}
	if logFolder == "-" {
		return
	}

	if err := os.MkdirAll(logFolder, 0755); err != nil {
		log.Warnf("unable to create folder for log %s", err)
		return
	}

	logFilePath := filepath.Join(logFolder, service+".log")
	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatal("Failed to open log file:", err)
	}
	log.SetOutput(file)

	log.Infof("log to file started for service: %s", service)
}

func LogLevel() log.Level {
	lvl, err := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// CustomLoggerMiddleware logs one line per request. Health probes are
// logged at debug.
func CustomLoggerMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				entry := log.WithFields(log.Fields{
					"method":   r.Method,
					"uri":      r.RequestURI,
					"remote":   r.RemoteAddr,
					"status":   ww.Status(),
					"bytes":    ww.BytesWritten(),
					"duration": time.Since(start),
				})
				if strings.HasSuffix(r.URL.Path, "/health") {
					entry.Debug(http.StatusText(ww.Status()))
					return
				}
				entry.Info(http.StatusText(ww.Status()))
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
