package history

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/nerrad567/classroom-core/internal/appliance"
	"github.com/nerrad567/classroom-core/internal/device"
)

// Reader is the part of the telemetry repository history needs.
type Reader interface {
	ListRange(ctx context.Context, from, to time.Time) ([]device.Snapshot, error)
	DateBounds(ctx context.Context) (first, last time.Time, ok bool, err error)
	DatesWithData(ctx context.Context, from, to time.Time) (map[string]bool, error)
}

// Service runs history queries against stored telemetry.
type Service struct {
	repo Reader
}

// NewService creates a history service.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// Query returns one series for q.
func (s *Service) Query(ctx context.Context, q Query) (Result, error) {
	from, to, err := parseRange(q.Start, q.End)
	if err != nil {
		return Result{}, err
	}
	if !q.DataType.Valid() {
		return Result{}, fmt.Errorf("%w: data type %q", ErrInvalidQuery, q.DataType)
	}
	if !q.Unit.Valid() {
		return Result{}, fmt.Errorf("%w: unit %q", ErrInvalidQuery, q.Unit)
	}

	snaps, err := s.repo.ListRange(ctx, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("loading telemetry: %w", err)
	}

	var data []Point
	if q.Unit == Hour {
		data = hourly(snaps, q.DataType)
	} else {
		data = daily(snaps, q.DataType)
	}
	return Result{Data: data, Unit: q.Unit, DataType: q.DataType}, nil
}

// AvailableDates lists every calendar date from the first to the last
// stored sample, marking which have data. It is empty when nothing is
// stored.
func (s *Service) AvailableDates(ctx context.Context) ([]DateAvailability, error) {
	first, last, ok, err := s.repo.DateBounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading date bounds: %w", err)
	}
	if !ok {
		return []DateAvailability{}, nil
	}

	have, err := s.repo.DatesWithData(ctx, first, last)
	if err != nil {
		return nil, fmt.Errorf("loading dates: %w", err)
	}

	var out []DateAvailability
	end := truncateDay(last)
	for d := truncateDay(first); !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(device.DateLayout)
		out = append(out, DateAvailability{Date: key, HasData: have[key]})
	}
	return out, nil
}

// EnergyReport summarises every data type over [start, end] from daily
// aggregates.
func (s *Service) EnergyReport(ctx context.Context, start, end string) (Report, error) {
	from, to, err := parseRange(start, end)
	if err != nil {
		return Report{}, err
	}
	snaps, err := s.repo.ListRange(ctx, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("loading telemetry: %w", err)
	}

	report := Report{
		DateRange: DateRange{Start: start, End: end},
		DailyData: make(map[DataType][]Point),
	}
	for _, dt := range DataTypes() {
		points := daily(snaps, dt)
		values := floats(points)
		if len(values) == 0 {
			continue
		}
		report.DailyData[dt] = points

		switch dt {
		case Power:
			report.Summary.Power = powerSummary(values)
		case Occupancy:
			report.Summary.Occupancy = occupancySummary(values)
		case Temperature:
			report.Summary.Temperature = sensorSummary(values, "°C")
		case Humidity:
			report.Summary.Humidity = sensorSummary(values, "%")
		case Light:
			report.Summary.Light = sensorSummary(values, "lux")
		}
	}
	return report, nil
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	from, err := time.Parse(device.DateLayout, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start date %q", ErrInvalidQuery, start)
	}
	last, err := time.Parse(device.DateLayout, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end date %q", ErrInvalidQuery, end)
	}
	if last.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidQuery, start, end)
	}
	return from, last.AddDate(0, 0, 1), nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// value extracts dt from one sample. ok is false when the sample has no
// reading for dt.
func value(snap device.Snapshot, dt DataType) (float64, bool) {
	var p *float64
	switch dt {
	case Temperature:
		p = snap.Sensors.Temperature
	case Humidity:
		p = snap.Sensors.Humidity
	case Light:
		p = snap.Sensors.Lux
	case Occupancy:
		if snap.Sensors.Occupied == nil {
			return 0, false
		}
		if *snap.Sensors.Occupied {
			return 1, true
		}
		return 0, true
	case Power:
		return appliance.ComputePower(snap.State), true
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

func hourly(snaps []device.Snapshot, dt DataType) []Point {
	out := []Point{}
	for _, snap := range snaps {
		v, ok := value(snap, dt)
		if !ok {
			continue
		}
		p := Point{Timestamp: snap.ObservedAt.Format(device.WallClockLayout)}
		switch dt {
		case Occupancy:
			p.Value = v == 1
		case Power:
			p.Value = v / 1000
		default:
			p.Value = v
		}
		out = append(out, p)
	}
	return out
}

// maxSampleSpan bounds how long one power sample is assumed to hold. It
// matches the hourly persistence interval.
const maxSampleSpan = time.Hour

// daily groups snaps by date. Every type except power is averaged over the
// samples that have a reading. Power is integrated into kWh: each sample
// counts for the time until the next one, capped at maxSampleSpan, so the
// result does not depend on how often telemetry is persisted.
func daily(snaps []device.Snapshot, dt DataType) []Point {
	type bucket struct {
		sum float64
		n   int
	}
	buckets := make(map[string]*bucket)
	var dates []string

	for i, snap := range snaps {
		v, ok := value(snap, dt)
		if !ok {
			continue
		}
		key := snap.ObservedAt.Format(device.DateLayout)
		b, seen := buckets[key]
		if !seen {
			b = &bucket{}
			buckets[key] = b
			dates = append(dates, key)
		}
		if dt == Power {
			v *= sampleSpan(snaps, i).Hours()
		}
		b.sum += v
		b.n++
	}
	slices.Sort(dates)

	out := make([]Point, 0, len(dates))
	for _, d := range dates {
		b := buckets[d]
		v := b.sum / float64(b.n)
		if dt == Power {
			v = b.sum / 1000
		}
		out = append(out, Point{Timestamp: d, Value: v})
	}
	return out
}

// sampleSpan is the time snaps[i] stands for. snaps is ordered by
// observation time. The last sample repeats the gap before it.
func sampleSpan(snaps []device.Snapshot, i int) time.Duration {
	var gap time.Duration
	switch {
	case i+1 < len(snaps):
		gap = snaps[i+1].ObservedAt.Sub(snaps[i].ObservedAt)
	case i > 0:
		gap = snaps[i].ObservedAt.Sub(snaps[i-1].ObservedAt)
	default:
		gap = maxSampleSpan
	}
	return max(0, min(gap, maxSampleSpan))
}

func floats(points []Point) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		if v, ok := p.Value.(float64); ok {
			out = append(out, v)
		}
	}
	return out
}

func powerSummary(values []float64) *PowerSummary {
	total := sum(values)
	return &PowerSummary{
		TotalConsumption: round(total, 2),
		AverageDaily:     round(total/float64(len(values)), 2),
		MaxDaily:         round(slices.Max(values), 2),
		MinDaily:         round(slices.Min(values), 2),
		Unit:             "kWh",
		Days:             len(values),
	}
}

func occupancySummary(values []float64) *OccupancySummary {
	occupied := 0
	for _, v := range values {
		if v > 0 {
			occupied++
		}
	}
	return &OccupancySummary{
		OccupancyRate: round(float64(occupied)/float64(len(values))*100, 1),
		OccupiedDays:  occupied,
		TotalDays:     len(values),
		Unit:          "%",
	}
}

func sensorSummary(values []float64, unit string) *SensorSummary {
	return &SensorSummary{
		Average: round(sum(values)/float64(len(values)), 1),
		Minimum: round(slices.Min(values), 1),
		Maximum: round(slices.Max(values), 1),
		Unit:    unit,
	}
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
