package main

import (
	"os"
	"os/signal"

	config "github.com/avvvet/csss-services/configs"
	"github.com/avvvet/csss-services/internal/mailer"
	natscli "github.com/avvvet/csss-services/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "mail"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	cfg := mailer.ConfigFromEnv()
	if cfg.User == "" || cfg.Password == "" {
		log.Warn("SMTP_USER or SMTP_PASSWORD not set, emails will fail until configured")
	}

	var notifier mailer.Notifier
	if tn := mailer.TelegramFromEnv(); tn != nil {
		notifier = tn
	}

	h := mailer.NewHandler(mailer.New(cfg, mailer.NewSMTPSender(cfg)), notifier)

	// Connect to NATS
	nc, err := natscli.Connect(SERVICE_NAME)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Conn.Close()
	log.Infof("NATS connected at %s", nc.Url)

	// one mail per message across instances
	sub, err := nc.Conn.QueueSubscribe(natscli.SubjectMailService, SERVICE_NAME, h.HandleMsg)
	if err != nil {
		log.Fatalf("Subscribe %s error: %v", natscli.SubjectMailService, err)
	}
	log.Infof("%s service listening on %s", SERVICE_NAME, natscli.SubjectMailService)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	sub.Drain()
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
