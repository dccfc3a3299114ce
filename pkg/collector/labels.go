package collector

import (
	"fmt"
	"strings"

	"shieldx-cti/pkg/event"
)

// Normal is the label for benign traffic.
const Normal = "Normal"

// suspiciousPorts are destination ports treated as malware traffic when a
// record carries no ground-truth column.
var suspiciousPorts = map[string]bool{"4444": true, "1337": true, "6667": true, "23": true}

// Label derives the training label for ev. Explicit dataset columns win:
// "Attack Type", then UNSW-NB15 "attack_cat", then the CICIDS "Label"
// column where BENIGN maps to Normal. Records without any of these are
// labelled Malware when the firewall action is DENY/DROP or the destination
// port is a known backdoor port, and Normal otherwise.
func Label(ev event.Event) string {
	if v, ok := ev.Lookup("Attack Type"); ok {
		return orNormal(v)
	}
	if v, ok := ev.Lookup("attack_cat"); ok {
		return orNormal(v)
	}
	if v, ok := ev.Lookup("Label", " Label"); ok {
		s := text(v)
		if s == "" || s == "BENIGN" {
			return Normal
		}
		return s
	}

	action := strings.ToUpper(ev.Text("", "action"))
	if action == "DENY" || action == "DROP" || suspiciousPorts[ev.DstPort("")] {
		return "Malware"
	}
	return Normal
}

func orNormal(v any) string {
	if s := text(v); s != "" {
		return s
	}
	return Normal
}

func text(v any) string {
	return strings.TrimSpace(fmt.Sprint(v))
}
