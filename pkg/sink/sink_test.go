package sink

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldx-cti/pkg/event"
	"shieldx-cti/pkg/metrics"
	"shieldx-cti/pkg/structlog"
)

func sampleReport(id string) event.Report {
	return event.Report{
		EventID:                id,
		Timestamp:              "2024-01-01T00:00:00Z",
		SrcIP:                  "175.45.176.3",
		IsAnomaly:              true,
		AnomalyScore:           0.9,
		ThreatType:             "DDoS",
		Confidence:             0.8,
		RiskLevel:              "Critical",
		RiskScore:              97.5,
		ResponseRecommendation: "TRIGGER EMERGENCY AUTOMATED FIREWALL RULE.",
		Status:                 "success",
	}
}

type fakeRedis struct {
	channel string
	payload []byte
	err     error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	return redis.NewIntResult(1, nil)
}

func TestRedisPublisher(t *testing.T) {
	fr := &fakeRedis{}
	p := NewRedisPublisher(fr, "")
	require.NoError(t, p.Emit(context.Background(), sampleReport("r1")))
	assert.Equal(t, DefaultChannel, fr.channel)

	var got event.Report
	require.NoError(t, json.Unmarshal(fr.payload, &got))
	assert.Equal(t, "r1", got.EventID)
	assert.Equal(t, "Critical", got.RiskLevel)

	fr.err = errors.New("connection refused")
	err := p.Emit(context.Background(), sampleReport("r2"))
	assert.ErrorContains(t, err, "connection refused")
}

type fakeNATS struct {
	msgs []*nats.Msg
	err  error
}

func (f *fakeNATS) PublishMsg(m *nats.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func TestNATSPublisher(t *testing.T) {
	fc := &fakeNATS{}
	p := NewNATSPublisher(fc, "")
	ctx := structlog.ContextWithCorrelationID(context.Background(), "corr-9")
	require.NoError(t, p.Emit(ctx, sampleReport("n1")))

	require.Len(t, fc.msgs, 1)
	msg := fc.msgs[0]
	assert.Equal(t, DefaultSubject, msg.Subject)
	assert.Equal(t, "n1", msg.Header.Get("x-event-id"))
	assert.Equal(t, "Critical", msg.Header.Get("x-risk-level"))
	assert.Equal(t, "DDoS", msg.Header.Get("x-threat-type"))
	assert.Equal(t, "corr-9", msg.Header.Get("x-correlation-id"))
	assert.True(t, bytes.Contains(msg.Data, []byte(`"event_id":"n1"`)))

	fc.err = nats.ErrConnectionClosed
	assert.ErrorIs(t, p.Emit(ctx, sampleReport("n2")), nats.ErrConnectionClosed)
}

type fakeExecer struct {
	query string
	args  []any
	err   error
}

func (f *fakeExecer) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.query, f.args = query, args
	if f.err != nil {
		return nil, f.err
	}
	return driver.RowsAffected(1), nil
}

func TestPostgresStore(t *testing.T) {
	fe := &fakeExecer{}
	s := NewPostgresStore(fe)
	require.NoError(t, s.Emit(context.Background(), sampleReport("p1")))
	assert.Contains(t, fe.query, "INSERT INTO cti_reports")
	assert.Contains(t, fe.query, "ON CONFLICT (event_id)")
	require.Len(t, fe.args, 16)
	assert.Equal(t, "p1", fe.args[0])
	assert.Equal(t, true, fe.args[6])
	assert.Equal(t, "Critical", fe.args[11])

	fe.err = errors.New("relation does not exist")
	assert.ErrorContains(t, s.Emit(context.Background(), sampleReport("p2")), "store report p2")
}

func TestRecent(t *testing.T) {
	r := NewRecent(2)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Emit(ctx, sampleReport(id)))
	}
	assert.Equal(t, 2, r.Len())
	_, ok := r.Get("a")
	assert.False(t, ok, "oldest report is evicted")
	got, ok := r.Get("c")
	require.True(t, ok)
	assert.Equal(t, "c", got.EventID)
}

type failingSink struct{ name string }

func (f failingSink) Name() string { return f.name }
func (f failingSink) Emit(context.Context, event.Report) error {
	return fmt.Errorf("%s unavailable", f.name)
}

func TestFanout_ContinuesPastFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewPipeline(reg)
	var logs bytes.Buffer
	recent := NewRecent(10)
	f := NewFanout(structlog.NewLogger("cti-test", structlog.LevelWarn, &logs), m, failingSink{"redis"}, nil, recent)
	assert.Equal(t, 2, f.Len())

	err := f.EmitAll(context.Background(), []event.Report{sampleReport("f1"), sampleReport("f2")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: redis unavailable")

	assert.Equal(t, 2, recent.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SinkFailures.WithLabelValues("redis")))
	assert.Contains(t, logs.String(), `"sink":"redis"`)

	assert.NoError(t, NewFanout(nil, nil).Emit(context.Background(), sampleReport("x")))
}
