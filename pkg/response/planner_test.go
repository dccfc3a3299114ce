package response

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"shieldx-cti/pkg/event"
	"shieldx-cti/pkg/risk"
)

func TestPlan_Monitor(t *testing.T) {
	ev := event.Event{"src_ip": "10.0.0.9"}
	assert.Equal(t, Monitor, Plan(risk.Low, "DDoS", ev))
	assert.Equal(t, Monitor, Plan(risk.Critical, "Normal", ev))
	assert.Equal(t, Monitor, Plan(risk.Low, "Normal", nil))
}

func TestPlan_Templates(t *testing.T) {
	ev := event.Event{"srcip": "175.45.176.1", "dsport": float64(4444)}

	assert.Equal(t,
		"Automatically rate-limit or block source IP 175.45.176.1.\nAlert network team for potential volumetric attack.",
		Plan(risk.High, "DDoS", ev))

	assert.Equal(t,
		"Block outbound traffic to port 4444.\nIsolate host machine (if internal) communicating with 175.45.176.1.",
		Plan(risk.Medium, "Malware", ev))

	assert.Equal(t,
		"Flag emails/traffic from 175.45.176.1 in proxy configuration.\n"+Escalate,
		Plan(risk.Critical, "Phishing", ev))
}

func TestPlan_CriticalAlwaysEscalates(t *testing.T) {
	plan := Plan(risk.Critical, "DDoS", event.Event{"src_ip": "1.2.3.4"})
	lines := strings.Split(plan, "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "rate-limit")
	assert.Equal(t, Escalate, lines[2])

	assert.Equal(t, Escalate, Plan(risk.Critical, "Worms", nil))
}

func TestPlan_UnrecognisedCategoryBelowCritical(t *testing.T) {
	assert.Equal(t, "", Plan(risk.High, "Exploits", event.Event{"src_ip": "1.2.3.4"}))
}

func TestPlan_MissingIdentity(t *testing.T) {
	assert.Equal(t,
		"Block outbound traffic to port Unknown.\nIsolate host machine (if internal) communicating with Unknown.",
		Plan(risk.High, "Malware", event.Event{}))
}
