package reporting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	DefaultDays = 7
	MaxDays     = 90
)

// ErrInvalidRange is returned when Days falls outside 1..MaxDays.
var ErrInvalidRange = errors.New("reporting: days must be between 1 and 90")

// StatsQuery filters message stats. A nil ClinicID covers every clinic and
// empty Channels covers every channel.
type StatsQuery struct {
	ClinicID *uuid.UUID
	Days     int
	Channels []string
}

// Stats summarizes message volume for the dashboard.
type Stats struct {
	PeriodDays    int            `json:"period_days"`
	TotalMessages int            `json:"total_messages"`
	InboundCount  int            `json:"inbound_count"`
	OutboundCount int            `json:"outbound_count"`
	ByChannel     map[string]int `json:"by_channel"`
	ByDay         map[string]int `json:"by_day"`
}

// Repository reads message aggregates over database/sql.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

const statsFilter = `
	WHERE created_at >= $1
	  AND ($2::uuid IS NULL OR clinic_id = $2::uuid)
	  AND (cardinality($3::text[]) = 0 OR channel = ANY($3::text[]))`

// Stats aggregates messages created within the last q.Days days.
func (r *Repository) Stats(ctx context.Context, q StatsQuery) (*Stats, error) {
	if q.Days == 0 {
		q.Days = DefaultDays
	}
	if q.Days < 1 || q.Days > MaxDays {
		return nil, ErrInvalidRange
	}
	since := r.now().UTC().Add(-time.Duration(q.Days) * 24 * time.Hour)
	var clinic any
	if q.ClinicID != nil {
		clinic = q.ClinicID.String()
	}
	channels := q.Channels
	if channels == nil {
		channels = []string{}
	}
	args := []any{since, clinic, pq.Array(channels)}

	out := &Stats{PeriodDays: q.Days, ByChannel: map[string]int{}, ByDay: map[string]int{}}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE direction = 'inbound'),
		       COUNT(*) FILTER (WHERE direction <> 'inbound')
		FROM messages`+statsFilter, args...,
	).Scan(&out.TotalMessages, &out.InboundCount, &out.OutboundCount)
	if err != nil {
		return nil, fmt.Errorf("reporting: totals: %w", err)
	}

	if err := r.collect(ctx, `
		SELECT channel, COUNT(*)
		FROM messages`+statsFilter+`
		GROUP BY channel`, args, out.ByChannel); err != nil {
		return nil, fmt.Errorf("reporting: by channel: %w", err)
	}
	if err := r.collect(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD'), COUNT(*)
		FROM messages`+statsFilter+`
		GROUP BY 1`, args, out.ByDay); err != nil {
		return nil, fmt.Errorf("reporting: by day: %w", err)
	}
	return out, nil
}

func (r *Repository) collect(ctx context.Context, query string, args []any, into map[string]int) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}
