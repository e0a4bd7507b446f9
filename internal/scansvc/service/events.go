package service

import (
	"time"

	"github.com/avvvet/csss-services/internal/comm"
	"github.com/avvvet/csss-services/internal/nats"
	"github.com/avvvet/csss-services/internal/scansvc/models"
	log "github.com/sirupsen/logrus"
)

// publishStatus announces a status change on scan.events. The change is
// already committed, so a failed publish is only logged.
func publishStatus(pub Publisher, scan *models.Scan) {
	ev := comm.ScanEvent{
		ScanID:     scan.ID,
		PatientID:  scan.PatientID,
		Status:     string(scan.Status),
		Prediction: scan.PredictionOr(""),
		Timestamp:  time.Now().UTC(),
	}
	if err := pub.Publish(nats.SubjectScanEvents, comm.TypeScanStatus, ev); err != nil {
		log.Errorf("[publishStatus] scan %d status %s: %s", scan.ID, scan.Status, err)
	}
}

func publishMail(pub Publisher, msgType string, data interface{}) error {
	return pub.Publish(nats.SubjectMailService, msgType, data)
}
