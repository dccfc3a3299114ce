// Package event defines the raw network-flow record consumed by the
// pipeline and the flat report it produces.
package event

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Event is one raw flow/log record. Field names and value types vary by
// source schema; the pipeline only ever reads from it.
type Event map[string]any

// Lookup returns the value of the first key in keys present in the event.
func (e Event) Lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := e[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Float reads key with safe numeric coercion. Missing or unparsable
// values yield 0.
func (e Event) Float(key string) float64 {
	v, ok := e[key]
	if !ok {
		return 0
	}
	f, ok := ToFloat(v)
	if !ok {
		return 0
	}
	return f
}

// Text returns the first present key rendered as a string, or def.
func (e Event) Text(def string, keys ...string) string {
	v, ok := e.Lookup(keys...)
	if !ok {
		return def
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return def
	}
	return s
}

// ToFloat coerces JSON/CSV scalar values to float64.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case interface{ Float64() (float64, error) }: // json.Number
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Identity field aliases across the supported flow schemas.
var (
	idKeys        = []string{"event_id", "id"}
	timestampKeys = []string{"timestamp", "Timestamp"}
	srcIPKeys     = []string{"src_ip", "srcip", "Source IP"}
	dstIPKeys     = []string{"dst_ip", "dstip", "Destination IP"}
	dstPortKeys   = []string{"dst_port", "dsport", "Destination Port"}
	protocolKeys  = []string{"protocol", "proto", "Protocol"}
)

// ID returns the event identifier, or "" when absent.
func (e Event) ID() string { return e.Text("", idKeys...) }

// Timestamp returns the event timestamp as recorded by the source.
func (e Event) Timestamp() string { return e.Text("", timestampKeys...) }

// SrcIP returns the source address or def.
func (e Event) SrcIP(def string) string { return e.Text(def, srcIPKeys...) }

// DstIP returns the destination address or def.
func (e Event) DstIP(def string) string { return e.Text(def, dstIPKeys...) }

// DstPort returns the destination port rendered as text, or def.
// Integral float values (JSON numbers) render without a fraction.
func (e Event) DstPort(def string) string {
	v, ok := e.Lookup(dstPortKeys...)
	if !ok {
		return def
	}
	if f, isNum := v.(float64); isNum && f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return e.Text(def, dstPortKeys...)
}

// Protocol returns the lower-cased protocol name or def.
func (e Event) Protocol(def string) string {
	p := e.Text("", protocolKeys...)
	if p == "" {
		return def
	}
	return strings.ToLower(p)
}
