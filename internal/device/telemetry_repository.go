package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/classroom-core/internal/appliance"
)

// TelemetryRepository stores hourly telemetry samples.
//
// Times are device wall clocks (see WallClockLayout). A second sample for
// the same device and minute replaces the first.
type TelemetryRepository interface {
	// Insert stores one sample.
	Insert(ctx context.Context, snap Snapshot) error

	// ListRange returns samples with from <= ObservedAt < to, oldest first.
	ListRange(ctx context.Context, from, to time.Time) ([]Snapshot, error)

	// DateBounds returns the first and last sample times. ok is false when
	// the table is empty.
	DateBounds(ctx context.Context) (first, last time.Time, ok bool, err error)

	// DatesWithData returns the set of dates ("2006-01-02") between the
	// dates of from and to, inclusive, that have at least one sample.
	DatesWithData(ctx context.Context, from, to time.Time) (map[string]bool, error)
}

// SQLiteTelemetryRepository implements TelemetryRepository on the
// telemetry table.
type SQLiteTelemetryRepository struct {
	db *sql.DB
}

// NewSQLiteTelemetryRepository creates a repository over an open database.
func NewSQLiteTelemetryRepository(db *sql.DB) *SQLiteTelemetryRepository {
	return &SQLiteTelemetryRepository{db: db}
}

// Insert stores snap, replacing any sample for the same device and time.
func (r *SQLiteTelemetryRepository) Insert(ctx context.Context, snap Snapshot) error {
	if snap.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidSnapshot)
	}
	if snap.ObservedAt.IsZero() {
		return fmt.Errorf("%w: observed time is required", ErrInvalidSnapshot)
	}

	stateJSON, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}
	raw := snap.Sensors.Raw
	if raw == nil {
		raw = map[string]any{}
	}
	sensorJSON, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshalling sensor data: %w", err)
	}

	var occupied sql.NullInt64
	if snap.Sensors.Occupied != nil {
		occupied = sql.NullInt64{Int64: boolToInt(*snap.Sensors.Occupied), Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO telemetry (
			device_id, observed_at, obs_date, temperature, humidity, lux, occupied,
			sensor_data, state, power_watts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.DeviceID,
		snap.ObservedAt.Format(WallClockLayout),
		snap.ObservedAt.Format(DateLayout),
		nullFloat(snap.Sensors.Temperature),
		nullFloat(snap.Sensors.Humidity),
		nullFloat(snap.Sensors.Lux),
		occupied,
		string(sensorJSON),
		string(stateJSON),
		snap.Power,
	)
	if err != nil {
		return fmt.Errorf("inserting telemetry: %w", err)
	}
	return nil
}

// ListRange returns samples in [from, to) ordered by time.
func (r *SQLiteTelemetryRepository) ListRange(ctx context.Context, from, to time.Time) ([]Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device_id, observed_at, temperature, humidity, lux, occupied,
		        sensor_data, state, power_watts
		 FROM telemetry
		 WHERE observed_at >= ? AND observed_at < ?
		 ORDER BY observed_at, id`,
		from.Format(WallClockLayout),
		to.Format(WallClockLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry: %w", err)
	}
	return out, nil
}

// DateBounds returns the earliest and latest sample times.
func (r *SQLiteTelemetryRepository) DateBounds(ctx context.Context) (time.Time, time.Time, bool, error) {
	var first, last sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT MIN(observed_at), MAX(observed_at) FROM telemetry",
	).Scan(&first, &last)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("querying telemetry bounds: %w", err)
	}
	if !first.Valid || !last.Valid {
		return time.Time{}, time.Time{}, false, nil
	}

	f, err := parseWallClock(first.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	l, err := parseWallClock(last.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	return f, l, true, nil
}

// DatesWithData returns dates in the inclusive date range having samples.
func (r *SQLiteTelemetryRepository) DatesWithData(ctx context.Context, from, to time.Time) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT obs_date FROM telemetry WHERE obs_date >= ? AND obs_date <= ?",
		from.Format(DateLayout),
		to.Format(DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry dates: %w", err)
	}
	defer rows.Close()

	dates := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning telemetry date: %w", err)
		}
		dates[d] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry dates: %w", err)
	}
	return dates, nil
}

func scanSnapshot(rows *sql.Rows) (Snapshot, error) {
	var (
		snap                  Snapshot
		observedAt            string
		temp, humidity, lux   sql.NullFloat64
		occupied              sql.NullInt64
		sensorJSON, stateJSON string
	)
	if err := rows.Scan(&snap.DeviceID, &observedAt, &temp, &humidity, &lux, &occupied,
		&sensorJSON, &stateJSON, &snap.Power); err != nil {
		return Snapshot{}, fmt.Errorf("scanning telemetry: %w", err)
	}

	ts, err := parseWallClock(observedAt)
	if err != nil {
		return Snapshot{}, err
	}
	snap.ObservedAt = ts

	var state appliance.DeviceState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshalling state: %w", err)
	}
	snap.State = appliance.Normalize(state)

	var raw map[string]any
	if err := json.Unmarshal([]byte(sensorJSON), &raw); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshalling sensor data: %w", err)
	}
	snap.Sensors = Sensors{
		Temperature: floatPtr(temp),
		Humidity:    floatPtr(humidity),
		Lux:         floatPtr(lux),
		Raw:         raw,
	}
	if occupied.Valid {
		b := occupied.Int64 != 0
		snap.Sensors.Occupied = &b
	}
	return snap, nil
}

func parseWallClock(value string) (time.Time, error) {
	ts, err := time.Parse(WallClockLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing observed_at %q: %w", value, err)
	}
	return ts, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
