package broker

import (
	"testing"
	"time"

	"github.com/avvvet/csss-services/internal/comm"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessages(t *testing.T) {
	var gotPatient int64
	var got *comm.Message
	b := NewBroker(nil, func(patientID int64, m *comm.Message) int {
		gotPatient, got = patientID, m
		return 1
	})

	data, err := comm.Encode(comm.TypeScanStatus, comm.ScanEvent{
		ScanID: 8, PatientID: 3, Status: "REPORT_READY", Timestamp: time.Now(),
	})
	require.NoError(t, err)

	b.handleMessages(&nats.Msg{Subject: "scan.events", Data: data})
	require.NotNil(t, got)
	assert.Equal(t, int64(3), gotPatient)
	assert.Equal(t, comm.TypeScanStatus, got.Type)
}

func TestHandleMessagesIgnoresOthers(t *testing.T) {
	calls := 0
	b := NewBroker(nil, func(int64, *comm.Message) int { calls++; return 0 })

	other, err := comm.Encode(comm.TypeOTPEmail, comm.OTPEmail{Email: "a@b.c"})
	require.NoError(t, err)
	bad, err := comm.Encode(comm.TypeScanStatus, "not an event")
	require.NoError(t, err)

	for _, data := range [][]byte{[]byte("{"), other, bad} {
		b.handleMessages(&nats.Msg{Subject: "scan.events", Data: data})
	}
	assert.Zero(t, calls)
}
