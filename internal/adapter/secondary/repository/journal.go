package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"micguard/internal/domain"
)

// timeLayout is fixed width so occurred_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// JournalEvent is one stored non-routine cycle.
type JournalEvent struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurredAt"`
	Outcome    string    `json:"outcome"`
	DeviceID   string    `json:"deviceId,omitempty"`
	DeviceName string    `json:"deviceName,omitempty"`
	Before     int       `json:"before"`
	Target     int       `json:"target"`
	Failures   int       `json:"failures"`
	Cooldown   bool      `json:"cooldown"`
	Message    string    `json:"message"`
}

// Journal records corrections and failures in sqlite.
type Journal struct {
	db *sql.DB
}

func NewJournal(db *sql.DB) *Journal { return &Journal{db: db} }

// Append inserts e, filling ID and OccurredAt when empty.
func (j *Journal) Append(ctx context.Context, e JournalEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO cycle_events (id, occurred_at, outcome, device_id, device_name, before_pct, target_pct, failures, cooldown, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.OccurredAt.UTC().Format(timeLayout),
		e.Outcome,
		nullString(e.DeviceID),
		nullString(e.DeviceName),
		e.Before,
		e.Target,
		e.Failures,
		e.Cooldown,
		e.Message,
	)
	if err != nil {
		return fmt.Errorf("append cycle event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]JournalEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, occurred_at, outcome, device_id, device_name, before_pct, target_pct, failures, cooldown, message
		FROM cycle_events
		ORDER BY occurred_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycle events: %w", err)
	}
	defer rows.Close()

	var out []JournalEvent
	for rows.Next() {
		var (
			e                    JournalEvent
			occurred             string
			deviceID, deviceName sql.NullString
		)
		if err := rows.Scan(&e.ID, &occurred, &e.Outcome, &deviceID, &deviceName,
			&e.Before, &e.Target, &e.Failures, &e.Cooldown, &e.Message); err != nil {
			return nil, fmt.Errorf("scan cycle event: %w", err)
		}
		if t, err := time.Parse(timeLayout, occurred); err == nil {
			e.OccurredAt = t
		}
		e.DeviceID = deviceID.String
		e.DeviceName = deviceName.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle events: %w", err)
	}
	return out, nil
}

// ObserveCycle journals every cycle except a plain optimal poll.
func (j *Journal) ObserveCycle(ctx context.Context, r domain.CycleReport) error {
	if r.Outcome == domain.OutcomeOptimal && !r.Resolved && !r.Cooldown {
		return nil
	}
	return j.Append(context.WithoutCancel(ctx), EventFromReport(r))
}

// EventFromReport flattens a cycle report into a journal row.
func EventFromReport(r domain.CycleReport) JournalEvent {
	e := JournalEvent{
		OccurredAt: r.StartedAt,
		Outcome:    r.Outcome.String(),
		Before:     int(r.Before),
		Target:     r.Target,
		Failures:   r.Failures,
		Cooldown:   r.Cooldown,
	}
	if r.Device != nil {
		e.DeviceID = r.Device.ID
		e.DeviceName = r.Device.DisplayName
	}
	switch {
	case r.Err != nil:
		e.Message = r.Err.Error()
	case r.Outcome == domain.OutcomeCorrected:
		e.Message = fmt.Sprintf("restored from %s to %d%%", r.Before, r.Target)
	case r.Outcome == domain.OutcomeBlindCorrected:
		e.Message = fmt.Sprintf("set to %d%% without a reading", r.Target)
	case r.Resolved && r.Device != nil:
		e.Message = fmt.Sprintf("resolved %s (%s)", r.Device, r.Device.Method)
	default:
		e.Message = r.Outcome.String()
	}
	if r.Cooldown {
		e.Message += fmt.Sprintf("; cooling down for %s", r.Sleep)
	}
	return e
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
