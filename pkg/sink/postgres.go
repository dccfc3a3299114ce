package sink

import (
	"context"
	"database/sql"
	"fmt"

	"shieldx-cti/pkg/event"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertReport = `
INSERT INTO cti_reports (
	event_id, observed_at, src_ip, dst_ip, dst_port, protocol,
	is_anomaly, anomaly_score, threat_type, confidence, explanation,
	risk_level, risk_score, response_recommendation, status, error
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (event_id) DO UPDATE SET
	observed_at = EXCLUDED.observed_at,
	is_anomaly = EXCLUDED.is_anomaly,
	anomaly_score = EXCLUDED.anomaly_score,
	threat_type = EXCLUDED.threat_type,
	confidence = EXCLUDED.confidence,
	explanation = EXCLUDED.explanation,
	risk_level = EXCLUDED.risk_level,
	risk_score = EXCLUDED.risk_score,
	response_recommendation = EXCLUDED.response_recommendation,
	status = EXCLUDED.status,
	error = EXCLUDED.error`

// PostgresStore upserts reports into the cti_reports table.
type PostgresStore struct {
	db Execer
}

// NewPostgresStore returns a store writing through db.
func NewPostgresStore(db Execer) *PostgresStore { return &PostgresStore{db: db} }

// Name implements Sink.
func (s *PostgresStore) Name() string { return "postgres" }

// Emit implements Sink.
func (s *PostgresStore) Emit(ctx context.Context, r event.Report) error {
	_, err := s.db.ExecContext(ctx, upsertReport,
		r.EventID, r.Timestamp, r.SrcIP, r.DstIP, r.DstPort, r.Protocol,
		r.IsAnomaly, r.AnomalyScore, r.ThreatType, r.Confidence, r.Explanation,
		r.RiskLevel, r.RiskScore, r.ResponseRecommendation, r.Status, r.Error,
	)
	if err != nil {
		return fmt.Errorf("store report %s: %w", r.EventID, err)
	}
	return nil
}
