package features

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldx-cti/pkg/event"
)

func TestNormalize_NoNumericFieldsIsAllZero(t *testing.T) {
	for _, ev := range []event.Event{
		{},
		{"src_ip": "10.0.0.1", "protocol": "tcp"},
		{"dur": "n/a", "sbytes": "", "rate": "fast"},
	} {
		v, err := Normalize(ev)
		require.NoError(t, err)
		assert.Equal(t, Vector{}, v)
	}
}

func TestNormalize_NilEventFails(t *testing.T) {
	_, err := Normalize(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNormalization))

	var ne *NormalizationError
	assert.True(t, errors.As(err, &ne))
}

func TestResolve_InfinitySentinels(t *testing.T) {
	n := New()
	for _, tok := range []string{"inf", "Infinity", "  INF ", "-inf", "xxInFyy", "+Infinity"} {
		raw, err := n.Resolve(event.Event{"rate": tok, "sload": tok})
		require.NoError(t, err)
		assert.Equal(t, RateSentinel, raw[7], "rate token %q", tok)
		assert.Equal(t, LoadSentinel, raw[8], "load token %q", tok)
	}

	raw, err := n.Resolve(event.Event{"Flow Packets/s": "Infinity", "Flow Bytes/s": math.Inf(1)})
	require.NoError(t, err)
	assert.Equal(t, RateSentinel, raw[7])
	assert.Equal(t, LoadSentinel, raw[8])
}

func TestResolve_AliasPriority(t *testing.T) {
	raw, err := New().Resolve(event.Event{
		"sbytes":                      6000,
		"Total Length of Fwd Packets": 10,
		"Packet Length":               20,
		"Total Length of Bwd Packe":   30,
		" Fwd Header Length":          "64",
		"Anomaly Scores":              12.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 6000.0, raw[3])
	assert.Equal(t, 30.0, raw[4])
	assert.Equal(t, 64.0, raw[5])
	assert.Equal(t, 12.5, raw[6])
}

func TestNormalize_Log1pTransform(t *testing.T) {
	ev := event.Event{
		"dur": 1.5, "spkts": 10, "dpkts": "4", "sbytes": 6000, "dbytes": 0,
		"sttl": 150, "smean": 60, "rate": 20000, "sload": "12345.5", "ct_dst_ltm": 3,
	}
	v, err := Normalize(ev)
	require.NoError(t, err)
	want := []float64{1.5, 10, 4, 6000, 0, 150, 60, 20000, 12345.5, 3}
	for i, w := range want {
		assert.InDelta(t, math.Log1p(w), v[i], 1e-12, Quantities[i].Name)
	}
}

func TestNormalize_NegativeAndInfiniteValuesStayFinite(t *testing.T) {
	v, err := Normalize(event.Event{"dur": -5, "spkts": math.Inf(1), "sbytes": "inf"})
	require.NoError(t, err)
	for i, x := range v {
		assert.False(t, math.IsNaN(x) || math.IsInf(x, 0), "component %d", i)
	}
	assert.Equal(t, 0.0, v[0])
	assert.Equal(t, 0.0, v[1])
	assert.Equal(t, 0.0, v[3])
}

func TestVectorHelpers(t *testing.T) {
	v := Vector{1, 2, 3}
	s := v.Slice()
	s[0] = 99
	assert.Equal(t, 1.0, v[0])
	assert.Equal(t, 6.0, v.Sum())
	assert.Len(t, Names(), Size)
}
