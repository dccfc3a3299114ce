// Package response maps a risk verdict to recommended actions.
package response

import (
	"fmt"
	"strings"

	"shieldx-cti/pkg/event"
	"shieldx-cti/pkg/risk"
)

const (
	// Monitor is the sole action for low-risk or normal traffic.
	Monitor = "No immediate action required. Continue monitoring."
	// Escalate is always the last action for Critical risk.
	Escalate = "TRIGGER EMERGENCY AUTOMATED FIREWALL RULE."
	// Unknown replaces a missing source address or destination port.
	Unknown = "Unknown"
)

type target struct {
	srcIP   string
	dstPort string
}

// templates holds category specific actions. Categories not listed get
// no specific line.
var templates = map[string]func(target) []string{
	"DDoS": func(t target) []string {
		return []string{
			fmt.Sprintf("Automatically rate-limit or block source IP %s.", t.srcIP),
			"Alert network team for potential volumetric attack.",
		}
	},
	"Malware": func(t target) []string {
		return []string{
			fmt.Sprintf("Block outbound traffic to port %s.", t.dstPort),
			fmt.Sprintf("Isolate host machine (if internal) communicating with %s.", t.srcIP),
		}
	},
	"Phishing": func(t target) []string {
		return []string{fmt.Sprintf("Flag emails/traffic from %s in proxy configuration.", t.srcIP)}
	},
}

// Plan returns the newline-joined action list.
func Plan(level risk.Level, threatType string, ev event.Event) string {
	if level == risk.Low || threatType == "Normal" {
		return Monitor
	}
	var actions []string
	if tmpl, ok := templates[threatType]; ok {
		actions = tmpl(target{srcIP: ev.SrcIP(Unknown), dstPort: ev.DstPort(Unknown)})
	}
	if level == risk.Critical {
		actions = append(actions, Escalate)
	}
	return strings.Join(actions, "\n")
}
