package broker

import (
	"encoding/json"

	"github.com/avvvet/csss-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

type Broker struct {
	Conn          *nats.Conn
	PushScanEvent func(patientID int64, m *comm.Message) int
}

func NewBroker(conn *nats.Conn, fncPushScanEvent func(int64, *comm.Message) int) *Broker {
	return &Broker{
		Conn:          conn,
		PushScanEvent: fncPushScanEvent,
	}
}

// consume scan events, one copy per gateway instance
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// handleMessages receive message from scan service
func (b *Broker) handleMessages(msgNats *nats.Msg) {
	message := &comm.Message{}
	if err := json.Unmarshal(msgNats.Data, message); err != nil {
		log.Errorf("invalid message on %s: %s", msgNats.Subject, err)
		return
	}

	switch message.Type {
	case comm.TypeScanStatus:
		var ev comm.ScanEvent
		if err := json.Unmarshal(message.Data, &ev); err != nil {
			log.Errorf("invalid scan event: %s", err)
			return
		}
		n := b.PushScanEvent(ev.PatientID, message)
		log.Debugf("scan %d %s pushed to %d sockets", ev.ScanID, ev.Status, n)
	default:
		log.Warnf("unknown message type: %s", message.Type)
	}
}
