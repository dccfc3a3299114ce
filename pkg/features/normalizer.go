// Package features maps schema-variable flow events onto the fixed
// numeric feature space shared by both oracles.
package features

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"shieldx-cti/pkg/event"
)

// Size is the length of every feature vector.
const Size = 10

// Sentinels substituted for "infinity" encodings before the log1p transform.
const (
	RateSentinel = 1e6
	LoadSentinel = 1e8
)

// Vector is a log1p-transformed feature vector. Index order matches Quantities.
type Vector [Size]float64

// Slice returns a copy of v as a slice for model code.
func (v Vector) Slice() []float64 {
	out := make([]float64, Size)
	copy(out, v[:])
	return out
}

// Sum returns the sum of all components.
func (v Vector) Sum() float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}

// ErrNormalization is matched by every NormalizationError.
var ErrNormalization = errors.New("normalization failed")

// NormalizationError reports a structurally unusable event.
type NormalizationError struct {
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization failed: %s", e.Reason)
}

func (e *NormalizationError) Is(target error) bool { return target == ErrNormalization }

// Quantity is one logical feature and the schema aliases it may appear under,
// in priority order (UNSW-NB15, CICIDS2017, generic attack logs).
type Quantity struct {
	Name     string
	Aliases  []string
	Sentinel float64 // non-zero: "inf" string tokens resolve to this value
}

// Quantities is the fixed feature layout.
var Quantities = [Size]Quantity{
	{Name: "flow_duration", Aliases: []string{"dur", "Flow Duration"}},
	{Name: "fwd_packets", Aliases: []string{"spkts", "Total Fwd Packets"}},
	{Name: "bwd_packets", Aliases: []string{"dpkts", "Total Backward Packets"}},
	{Name: "fwd_bytes", Aliases: []string{"sbytes", "Total Length of Fwd Packets", "Packet Length"}},
	{Name: "bwd_bytes", Aliases: []string{"dbytes", "Total Length of Bwd Packets", "Total Length of Bwd Packe"}},
	{Name: "header_ttl", Aliases: []string{"sttl", "Fwd Header Length"}},
	{Name: "mean_packet_length", Aliases: []string{"smean", "Packet Length Mean", "Anomaly Scores"}},
	{Name: "rate", Aliases: []string{"rate", "Flow Packets/s"}, Sentinel: RateSentinel},
	{Name: "load", Aliases: []string{"sload", "Flow Bytes/s"}, Sentinel: LoadSentinel},
	{Name: "idle_context", Aliases: []string{"ct_dst_ltm", "Idle Max"}},
}

// Names returns the feature names in vector order.
func Names() []string {
	out := make([]string, Size)
	for i, q := range Quantities {
		out[i] = q.Name
	}
	return out
}

// Normalizer turns events into feature vectors. It holds no state and is
// safe for concurrent use.
type Normalizer struct{}

// New returns a Normalizer.
func New() *Normalizer { return &Normalizer{} }

// Normalize resolves and log1p-transforms all quantities of ev.
func (n *Normalizer) Normalize(ev event.Event) (Vector, error) {
	raw, err := n.Resolve(ev)
	if err != nil {
		return Vector{}, err
	}
	var out Vector
	for i, v := range raw {
		out[i] = math.Log1p(v)
	}
	return out, nil
}

// Resolve returns the pre-transform value of every quantity.
func (n *Normalizer) Resolve(ev event.Event) (Vector, error) {
	if ev == nil {
		return Vector{}, &NormalizationError{Reason: "event is nil"}
	}
	var trimmed map[string]any
	var out Vector
	for i, q := range Quantities {
		v, ok := ev.Lookup(q.Aliases...)
		if !ok {
			// CICIDS exports pad header names with spaces.
			if trimmed == nil {
				trimmed = trimKeys(ev)
			}
			v, ok = event.Event(trimmed).Lookup(q.Aliases...)
		}
		if !ok {
			continue
		}
		out[i] = resolveValue(v, q.Sentinel)
	}
	return out, nil
}

// Normalize is a convenience wrapper around a zero Normalizer.
func Normalize(ev event.Event) (Vector, error) { return (&Normalizer{}).Normalize(ev) }

func resolveValue(v any, sentinel float64) float64 {
	if sentinel != 0 {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), "inf") {
			return sentinel
		}
	}
	f, ok := event.ToFloat(v)
	if !ok {
		return 0
	}
	if math.IsInf(f, 0) {
		if sentinel != 0 && f > 0 {
			return sentinel
		}
		return 0
	}
	// log1p is undefined at or below -1; counters and rates are never negative.
	if f < 0 {
		return 0
	}
	return f
}

func trimKeys(ev event.Event) map[string]any {
	out := make(map[string]any, len(ev))
	for k, v := range ev {
		tk := strings.TrimSpace(k)
		if _, exists := out[tk]; !exists || tk == k {
			out[tk] = v
		}
	}
	return out
}
