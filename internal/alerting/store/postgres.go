package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	adb "github.com/qiniu/venueops/internal/alerting/database"
	"github.com/qiniu/venueops/internal/alerting/model"
)

// PgStore implements Store on the alerting PostgreSQL database.
type PgStore struct {
	DB *adb.Database
}

func NewPgStore(db *adb.Database) *PgStore { return &PgStore{DB: db} }

var _ Store = (*PgStore)(nil)

var metricColumns = []string{"timestamp", "metric_type", "metric_name", "value", "metadata"}

// InsertMetrics writes the batch with COPY; the batch lands atomically or not at all.
func (s *PgStore) InsertMetrics(ctx context.Context, batch []model.Observation) error {
	if len(batch) == 0 {
		return nil
	}
	src := pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
		o := batch[i]
		var meta any
		if len(o.Metadata) > 0 {
			meta = string(o.Metadata)
		}
		return []any{o.Timestamp, o.MetricType, o.MetricName, o.Value, meta}, nil
	})
	if _, err := s.DB.Pool().CopyFrom(ctx, pgx.Identifier{"metrics"}, metricColumns, src); err != nil {
		return wrap("insert metrics", err)
	}
	return nil
}

// buildMetricQuery renders q with the same selection rules as MetricQuery.Match.
func buildMetricQuery(q model.MetricQuery) (string, []any) {
	query := `SELECT timestamp, metric_type, metric_name, value, metadata FROM metrics WHERE timestamp > $1`
	args := []any{q.Since}
	switch {
	case q.Name != "":
		query += " AND metric_name = $" + strconv.Itoa(len(args)+1)
		args = append(args, q.Name)
	case len(q.Types) > 0 || len(q.Names) > 0:
		query += fmt.Sprintf(" AND (metric_type = ANY($%d) OR metric_name = ANY($%d))", len(args)+1, len(args)+2)
		args = append(args, pq.Array(q.Types), pq.Array(q.Names))
	}
	return query + " ORDER BY timestamp ASC, id ASC", args
}

func (s *PgStore) QueryMetrics(ctx context.Context, q model.MetricQuery) ([]model.Observation, error) {
	query, args := buildMetricQuery(q)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("query metrics", err)
	}
	defer rows.Close()
	out := make([]model.Observation, 0, 256)
	for rows.Next() {
		var o model.Observation
		var meta []byte
		if err := rows.Scan(&o.Timestamp, &o.MetricType, &o.MetricName, &o.Value, &meta); err != nil {
			return nil, wrap("scan metric", err)
		}
		if len(meta) > 0 {
			o.Metadata = meta
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("query metrics", err)
	}
	return out, nil
}

func (s *PgStore) UpsertAlert(ctx context.Context, a *model.Alert) error {
	const q = `
	INSERT INTO alerts (alert_id, name, severity, condition_type, threshold, current_value, status, triggered_at, resolved_at, message, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (alert_id) DO UPDATE SET
		name = EXCLUDED.name,
		severity = EXCLUDED.severity,
		condition_type = EXCLUDED.condition_type,
		threshold = EXCLUDED.threshold,
		current_value = EXCLUDED.current_value,
		status = EXCLUDED.status,
		triggered_at = EXCLUDED.triggered_at,
		resolved_at = EXCLUDED.resolved_at,
		message = EXCLUDED.message,
		created_at = EXCLUDED.created_at
	`
	_, err := s.DB.ExecContext(ctx, q, a.AlertID, a.Name, string(a.Severity), string(a.ConditionType),
		a.Threshold, a.CurrentValue, string(a.Status), a.TriggeredAt, a.ResolvedAt, a.Message, a.CreatedAt)
	return wrap("upsert alert", err)
}

func (s *PgStore) ResolveAlert(ctx context.Context, alertID string, resolvedAt time.Time) error {
	const q = `UPDATE alerts SET status = 'resolved', resolved_at = $2 WHERE alert_id = $1 AND status <> 'resolved'`
	_, err := s.DB.ExecContext(ctx, q, alertID, resolvedAt)
	return wrap("resolve alert", err)
}

func (s *PgStore) AcknowledgeAlert(ctx context.Context, alertID string) (bool, error) {
	const q = `UPDATE alerts SET status = 'acknowledged' WHERE alert_id = $1 AND status = 'active'`
	res, err := s.DB.ExecContext(ctx, q, alertID)
	if err != nil {
		return false, wrap("acknowledge alert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("acknowledge alert", err)
	}
	return n > 0, nil
}

func (s *PgStore) ListAlerts(ctx context.Context, statuses ...model.AlertStatus) ([]model.Alert, error) {
	query := `SELECT alert_id, name, severity, condition_type, threshold, current_value, status, triggered_at, resolved_at, message, created_at FROM alerts`
	var args []any
	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, st := range statuses {
			names = append(names, string(st))
		}
		query += " WHERE status = ANY($1)"
		args = append(args, pq.Array(names))
	}
	query += " ORDER BY triggered_at DESC NULLS LAST, alert_id ASC"

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list alerts", err)
	}
	defer rows.Close()
	var out []model.Alert
	for rows.Next() {
		var (
			a                      model.Alert
			severity, cond, status string
			threshold, current     sql.NullFloat64
			triggered, resolved    sql.NullTime
			message                sql.NullString
		)
		if err := rows.Scan(&a.AlertID, &a.Name, &severity, &cond, &threshold, &current, &status,
			&triggered, &resolved, &message, &a.CreatedAt); err != nil {
			return nil, wrap("scan alert", err)
		}
		a.Severity = model.Severity(severity)
		a.ConditionType = model.ConditionType(cond)
		a.Status = model.AlertStatus(status)
		if threshold.Valid {
			th := threshold.Float64
			a.Threshold = &th
		}
		a.CurrentValue = current.Float64
		a.TriggeredAt = triggered.Time
		if resolved.Valid {
			t := resolved.Time
			a.ResolvedAt = &t
		}
		a.Message = message.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list alerts", err)
	}
	return out, nil
}

func (s *PgStore) InsertIncident(ctx context.Context, inc *model.Incident) error {
	const q = `
	INSERT INTO incidents (incident_id, alert_id, title, description, severity, status, remediation_action, remediation_status, started_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.DB.ExecContext(ctx, q, inc.IncidentID, inc.AlertID, inc.Title, inc.Description, string(inc.Severity),
		string(inc.Status), inc.RemediationAction, string(inc.RemediationStatus), inc.StartedAt)
	return wrap("insert incident", err)
}

func (s *PgStore) UpdateRemediation(ctx context.Context, incidentID, action string, status model.RemediationStatus) (bool, error) {
	const q = `UPDATE incidents SET remediation_action = $2, remediation_status = $3 WHERE incident_id = $1 AND status <> 'resolved'`
	return s.execAffected(ctx, "update remediation", q, incidentID, action, string(status))
}

func (s *PgStore) ResolveOpenIncidents(ctx context.Context, alertID string, resolvedAt time.Time, mttd, mttr float64) (int64, error) {
	const q = `
	UPDATE incidents SET status = 'resolved', resolved_at = $2, mttd_seconds = $3, mttr_seconds = $4
	WHERE alert_id = $1 AND status <> 'resolved'
	`
	res, err := s.DB.ExecContext(ctx, q, alertID, resolvedAt, mttd, mttr)
	if err != nil {
		return 0, wrap("resolve incidents", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("resolve incidents", err)
	}
	return n, nil
}

func (s *PgStore) ResolveIncident(ctx context.Context, incidentID string, resolvedAt time.Time, mttd, mttr float64) (bool, error) {
	const q = `
	UPDATE incidents SET status = 'resolved', resolved_at = $2, mttd_seconds = $3, mttr_seconds = $4
	WHERE incident_id = $1 AND status <> 'resolved'
	`
	return s.execAffected(ctx, "resolve incident", q, incidentID, resolvedAt, mttd, mttr)
}

func (s *PgStore) execAffected(ctx context.Context, op, q string, args ...any) (bool, error) {
	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return false, wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap(op, err)
	}
	return n > 0, nil
}

const incidentColumns = `incident_id, alert_id, title, description, severity, status, remediation_action, remediation_status, started_at, resolved_at, mttd_seconds, mttr_seconds`

func (s *PgStore) ListOpenIncidents(ctx context.Context, alertID string) ([]model.Incident, error) {
	q := `SELECT ` + incidentColumns + ` FROM incidents WHERE alert_id = $1 AND status <> 'resolved' ORDER BY started_at DESC, id DESC`
	return s.queryIncidents(ctx, "list open incidents", q, alertID)
}

func (s *PgStore) ListIncidentsSince(ctx context.Context, since time.Time) ([]model.Incident, error) {
	q := `SELECT ` + incidentColumns + ` FROM incidents WHERE started_at > $1 ORDER BY started_at DESC, id DESC`
	return s.queryIncidents(ctx, "list incidents", q, since)
}

func (s *PgStore) queryIncidents(ctx context.Context, op, q string, args ...any) ([]model.Incident, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()
	var out []model.Incident
	for rows.Next() {
		var (
			inc                   model.Incident
			alertID, desc, action sql.NullString
			remStatus             sql.NullString
			severity, status      string
			resolved              sql.NullTime
			mttd, mttr            sql.NullFloat64
		)
		if err := rows.Scan(&inc.IncidentID, &alertID, &inc.Title, &desc, &severity, &status, &action, &remStatus,
			&inc.StartedAt, &resolved, &mttd, &mttr); err != nil {
			return nil, wrap(op, err)
		}
		inc.AlertID = alertID.String
		inc.Description = desc.String
		inc.Severity = model.Severity(severity)
		inc.Status = model.IncidentStatus(status)
		inc.RemediationAction = action.String
		inc.RemediationStatus = model.RemediationStatus(remStatus.String)
		if resolved.Valid {
			t := resolved.Time
			inc.ResolvedAt = &t
		}
		inc.MTTDSeconds = mttd.Float64
		inc.MTTRSeconds = mttr.Float64
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

func (s *PgStore) UpsertFeedHealth(ctx context.Context, hb model.FeedHeartbeat) error {
	const q = `
	INSERT INTO feed_health (feed_name, feed_type, last_heartbeat, status, latency_ms, message_count, error_count, updated_at)
	VALUES ($1, $2, $3, $4, $5, 1, $6, now())
	ON CONFLICT (feed_name) DO UPDATE SET
		feed_type = EXCLUDED.feed_type,
		last_heartbeat = GREATEST(feed_health.last_heartbeat, EXCLUDED.last_heartbeat),
		status = EXCLUDED.status,
		latency_ms = EXCLUDED.latency_ms,
		message_count = feed_health.message_count + 1,
		error_count = feed_health.error_count + EXCLUDED.error_count,
		updated_at = now()
	`
	errInc := 0
	if hb.Error {
		errInc = 1
	}
	_, err := s.DB.ExecContext(ctx, q, hb.FeedName, string(hb.FeedType), hb.At, string(hb.Status), hb.LatencyMs, errInc)
	return wrap("upsert feed health", err)
}

func (s *PgStore) ListFeedHealth(ctx context.Context) ([]model.FeedHealth, error) {
	const q = `SELECT feed_name, feed_type, last_heartbeat, status, latency_ms, message_count, error_count FROM feed_health ORDER BY feed_name`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, wrap("list feed health", err)
	}
	defer rows.Close()
	var out []model.FeedHealth
	for rows.Next() {
		var (
			f            model.FeedHealth
			feedType, st string
			latency      sql.NullFloat64
		)
		if err := rows.Scan(&f.FeedName, &feedType, &f.LastHeartbeat, &st, &latency, &f.MessageCount, &f.ErrorCount); err != nil {
			return nil, wrap("scan feed health", err)
		}
		f.FeedType = model.FeedType(feedType)
		f.Status = model.FeedStatus(st)
		f.LatencyMs = latency.Float64
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list feed health", err)
	}
	return out, nil
}

func (s *PgStore) UpsertRunbook(ctx context.Context, rb *model.Runbook) error {
	const q = `
	INSERT INTO runbooks (runbook_id, title, alert_type, severity, description, triage_steps, remediation_steps, rollback_steps, related_alerts)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (runbook_id) DO UPDATE SET
		title = EXCLUDED.title,
		alert_type = EXCLUDED.alert_type,
		severity = EXCLUDED.severity,
		description = EXCLUDED.description,
		triage_steps = EXCLUDED.triage_steps,
		remediation_steps = EXCLUDED.remediation_steps,
		rollback_steps = EXCLUDED.rollback_steps,
		related_alerts = EXCLUDED.related_alerts,
		updated_at = now()
	`
	_, err := s.DB.ExecContext(ctx, q, rb.RunbookID, rb.Title, rb.AlertType, string(rb.Severity), rb.Description,
		pq.Array(rb.TriageSteps), pq.Array(rb.RemediationSteps), pq.Array(rb.RollbackSteps), pq.Array(rb.RelatedAlerts))
	return wrap("upsert runbook", err)
}

const runbookColumns = `runbook_id, title, alert_type, severity, description, triage_steps, remediation_steps, rollback_steps, related_alerts`

func (s *PgStore) GetRunbook(ctx context.Context, alertType string) (*model.Runbook, error) {
	q := `SELECT ` + runbookColumns + ` FROM runbooks WHERE alert_type = $1 ORDER BY runbook_id LIMIT 1`
	rb, err := scanRunbook(s.DB.QueryRowContext(ctx, q, alertType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get runbook", err)
	}
	return rb, nil
}

func (s *PgStore) ListRunbooks(ctx context.Context) ([]model.Runbook, error) {
	q := `SELECT ` + runbookColumns + ` FROM runbooks ORDER BY runbook_id`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, wrap("list runbooks", err)
	}
	defer rows.Close()
	var out []model.Runbook
	for rows.Next() {
		rb, err := scanRunbook(rows)
		if err != nil {
			return nil, wrap("scan runbook", err)
		}
		out = append(out, *rb)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list runbooks", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunbook(r rowScanner) (*model.Runbook, error) {
	var rb model.Runbook
	var severity string
	if err := r.Scan(&rb.RunbookID, &rb.Title, &rb.AlertType, &severity, &rb.Description,
		pq.Array(&rb.TriageSteps), pq.Array(&rb.RemediationSteps), pq.Array(&rb.RollbackSteps), pq.Array(&rb.RelatedAlerts)); err != nil {
		return nil, err
	}
	rb.Severity = model.Severity(severity)
	return &rb, nil
}
