package models

type Status string

const (
	StatusPendingAI           Status = "PENDING_AI"
	StatusAIAnalyzed          Status = "AI_ANALYZED"
	StatusDoctorVerified      Status = "DOCTOR_VERIFIED"
	StatusPharmacistCompleted Status = "PHARMACIST_COMPLETED"
	StatusReportReady         Status = "REPORT_READY"
	StatusRejected            Status = "REJECTED"
)

// Action is a workflow step performed by one of the roles.
type Action string

const (
	ActionAnalyze  Action = "analyze"
	ActionVerify   Action = "verify"
	ActionComplete Action = "complete"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
)

// Statuses each action may start from, and the status it leaves behind.
var transitions = map[Action]struct {
	from []Status
	to   Status
}{
	ActionAnalyze:  {[]Status{StatusPendingAI, StatusAIAnalyzed}, StatusAIAnalyzed},
	ActionVerify:   {[]Status{StatusAIAnalyzed, StatusDoctorVerified}, StatusDoctorVerified},
	ActionComplete: {[]Status{StatusDoctorVerified, StatusPharmacistCompleted}, StatusPharmacistCompleted},
	ActionApprove:  {[]Status{StatusPharmacistCompleted}, StatusReportReady},
	ActionReject:   {[]Status{StatusPharmacistCompleted}, StatusRejected},
}

// From returns the statuses a scan must be in for the action.
func (a Action) From() []Status {
	return transitions[a].from
}

// Target returns the status the action moves a scan to.
func (a Action) Target() Status {
	return transitions[a].to
}

func (s Status) Allows(a Action) bool {
	for _, from := range transitions[a].from {
		if s == from {
			return true
		}
	}
	return false
}

var statusLabels = map[Status]string{
	StatusPendingAI:           "Pending AI",
	StatusAIAnalyzed:          "AI Analyzed",
	StatusDoctorVerified:      "Dr. Verified",
	StatusPharmacistCompleted: "Rx Complete",
	StatusReportReady:         "Report Ready",
	StatusRejected:            "Rejected",
}

// Label is the dashboard badge text for a status.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	if s == "" {
		return "Unknown"
	}
	return string(s)
}
