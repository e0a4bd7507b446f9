package broker

import (
	"fmt"

	"github.com/avvvet/csss-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Broker publishes scan service envelopes on NATS. It satisfies
// service.Publisher.
type Broker struct {
	Conn *nats.Conn
}

func NewBroker(nc *nats.Conn) *Broker {
	return &Broker{Conn: nc}
}

// Publish wraps data in a comm.Message of msgType and sends it to topic.
func (b *Broker) Publish(topic, msgType string, data interface{}) error {
	payload, err := comm.Encode(msgType, data)
	if err != nil {
		log.Errorf("[Broker.Publish] unable to marshal %s message: %s", msgType, err)
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	return b.publish(topic, payload)
}

func (b *Broker) publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}
