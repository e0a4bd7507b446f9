package nats

import (
	"os"
	"time"

	"github.com/nats-io/nats.go"
)

// subjects shared by the csss services
const (
	SubjectScanEvents  = "scan.events"
	SubjectMailService = "mail.service"
)

type Nats struct {
	Url   string
	Token string
	Conn  *nats.Conn
}

func Connect(name string) (*Nats, error) {
	n := &Nats{
		Url:   os.Getenv("NATS_URL"),
		Token: os.Getenv("NATS_TOKEN"),
	}

	if n.Url == "" {
		n.Url = nats.DefaultURL
	}

	opts := []nats.Option{
		nats.Name("csss " + name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}

	// if token provided
	if n.Token != "" {
		opts = append(opts, nats.Token(n.Token))
	}

	conn, err := nats.Connect(n.Url, opts...)
	if err != nil {
		return nil, err
	}

	n.Conn = conn

	return n, nil
}
