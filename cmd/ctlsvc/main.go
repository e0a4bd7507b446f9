package main

import (
	"context"
	"io"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/csss-services/configs"
	"github.com/avvvet/csss-services/internal/ctlsvc"
	"github.com/avvvet/csss-services/internal/inference"
	natscli "github.com/avvvet/csss-services/internal/nats"
	"github.com/avvvet/csss-services/internal/scansvc/broker"
	"github.com/avvvet/csss-services/internal/scansvc/db"
	"github.com/avvvet/csss-services/internal/scansvc/service"
	"github.com/avvvet/csss-services/internal/scansvc/store"
)

const SERVICE_NAME = "ctl"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	schedules := ctlsvc.SchedulesFromEnv()

	// pg connection
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	var analyzer ctlsvc.PendingAnalyzer
	if schedules.AutoAnalyze != "" {
		// Connect to NATS
		n, err := natscli.Connect(SERVICE_NAME)
		if err != nil {
			log.Errorf("Error: unable to connect to NATS server %v", err)
			os.Exit(1)
		}
		defer n.Conn.Close()
		log.Printf("NATS connection established successfully %s", n.Url)

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

		// uploads are read from disk, so the controller shares UPLOAD_DIR
		analyzer = service.NewScanService(store.NewScanStore(dbpool), classifier,
			broker.NewBroker(n.Conn), os.Getenv("UPLOAD_DIR"), 0)
	}

	jobs := ctlsvc.NewJobs(store.NewOTPStore(dbpool), analyzer)
	c, err := jobs.NewScheduler(schedules)
	if err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}
	c.Start()
	log.Infof("%s service started: otp purge %q, auto analyze %q", SERVICE_NAME, schedules.OTPPurge, schedules.AutoAnalyze)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	// wait for running jobs
	<-c.Stop().Done()
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
