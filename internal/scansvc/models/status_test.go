package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusAllows(t *testing.T) {
	tests := []struct {
		status Status
		action Action
		want   bool
	}{
		{StatusPendingAI, ActionAnalyze, true},
		{StatusAIAnalyzed, ActionAnalyze, true},
		{StatusDoctorVerified, ActionAnalyze, false},
		{StatusPendingAI, ActionVerify, false},
		{StatusAIAnalyzed, ActionVerify, true},
		{StatusDoctorVerified, ActionVerify, true},
		{StatusAIAnalyzed, ActionComplete, false},
		{StatusDoctorVerified, ActionComplete, true},
		{StatusPharmacistCompleted, ActionComplete, true},
		{StatusDoctorVerified, ActionApprove, false},
		{StatusPharmacistCompleted, ActionApprove, true},
		{StatusReportReady, ActionApprove, false},
		{StatusPharmacistCompleted, ActionReject, true},
		{StatusReportReady, ActionReject, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status)+"/"+string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Allows(tt.action))
		})
	}
}

func TestActionTarget(t *testing.T) {
	assert.Equal(t, StatusAIAnalyzed, ActionAnalyze.Target())
	assert.Equal(t, StatusDoctorVerified, ActionVerify.Target())
	assert.Equal(t, StatusPharmacistCompleted, ActionComplete.Target())
	assert.Equal(t, StatusReportReady, ActionApprove.Target())
	assert.Equal(t, StatusRejected, ActionReject.Target())
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Pending AI", StatusPendingAI.Label())
	assert.Equal(t, "Rx Complete", StatusPharmacistCompleted.Label())
	assert.Equal(t, "Report Ready", StatusReportReady.Label())
	assert.Equal(t, "ARCHIVED", Status("ARCHIVED").Label())
	assert.Equal(t, "Unknown", Status("").Label())
}

func TestRole(t *testing.T) {
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("nurse").Valid())
	assert.True(t, RoleDoctor.Staff())
	assert.False(t, RolePatient.Staff())
}
