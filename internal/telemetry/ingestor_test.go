package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/classroom-core/internal/device"
	"github.com/nerrad567/classroom-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/classroom-core/internal/infrastructure/mqtt"
)

func report(hour, minute int) []byte {
	return fmt.Appendf(nil, `{
		"device_id": "classroom-001",
		"time": {"year": 2026, "month": 3, "day": 2, "hour": %d, "minute": %d},
		"sensor_data": {"temp": 24.5, "person": "false"},
		"state": {
			"led": {"led1": 1, "led2": 1, "led3": 0, "led4": 0},
			"air_conditioner": {"state": "on", "mode": "cool", "level": 2},
			"multimedia": "off"
		}
	}`, hour, minute)
}

type clockRecorder struct {
	mu    sync.Mutex
	times []time.Time
}

func (c *clockRecorder) Observe(t time.Time) {
	c.mu.Lock()
	c.times = append(c.times, t)
	c.mu.Unlock()
}

type memoryRepo struct {
	device.TelemetryRepository
	mu    sync.Mutex
	snaps []device.Snapshot
	err   error
}

func (m *memoryRepo) Insert(_ context.Context, snap device.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.snaps = append(m.snaps, snap)
	return nil
}

type pointRecorder struct {
	points []influxdb.Telemetry
}

func (p *pointRecorder) WriteTelemetry(t influxdb.Telemetry) {
	p.points = append(p.points, t)
}

type eventRecorder struct {
	events []string
}

func (e *eventRecorder) Broadcast(channel string, _ any) {
	e.events = append(e.events, channel)
}

type fixture struct {
	ing    *Ingestor
	store  *device.Store
	clock  *clockRecorder
	repo   *memoryRepo
	points *pointRecorder
	hub    *eventRecorder
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		store:  device.NewStore(),
		clock:  &clockRecorder{},
		repo:   &memoryRepo{},
		points: &pointRecorder{},
		hub:    &eventRecorder{},
	}
	f.ing = NewIngestor(Deps{
		Store:  f.store,
		Clock:  f.clock,
		Repo:   f.repo,
		Points: f.points,
		Hub:    f.hub,
	}, opts)
	return f
}

func TestIngestor_AcceptsReport(t *testing.T) {
	f := newFixture(Options{PersistOnTheHour: true})

	if err := f.ing.HandleMessage(DefaultTopic, report(8, 0)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	snap, ok := f.store.Read()
	if !ok {
		t.Fatal("store empty after a valid report")
	}
	if snap.DeviceID != "classroom-001" || snap.Power != 3200 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Sensors.Occupied == nil || *snap.Sensors.Occupied {
		t.Errorf("Occupied = %v, want false", snap.Sensors.Occupied)
	}

	want := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if len(f.clock.times) != 1 || !f.clock.times[0].Equal(want) {
		t.Errorf("observed times = %v", f.clock.times)
	}
	if len(f.repo.snaps) != 1 {
		t.Errorf("persisted %d snapshots, want 1", len(f.repo.snaps))
	}
	if len(f.points.points) == 0 {
		t.Fatal("no points written")
	}
	p := f.points.points[0]
	if p.PowerWatts != 3200 || p.LEDsOn != 2 || !p.ACOn || p.Multimedia != "off" {
		t.Errorf("point = %+v", p)
	}
	if len(f.hub.events) != 1 || f.hub.events[0] != Event {
		t.Errorf("events = %v", f.hub.events)
	}
}

func TestIngestor_PersistOnlyOnTheHour(t *testing.T) {
	tests := []struct {
		name        string
		onTheHour   bool
		minute      int
		wantPersist int
	}{
		{"minute zero", true, 0, 1},
		{"minute thirty", true, 30, 0},
		{"every report", false, 30, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Options{PersistOnTheHour: tt.onTheHour})
			if err := f.ing.HandleMessage(DefaultTopic, report(9, tt.minute)); err != nil {
				t.Fatalf("HandleMessage: %v", err)
			}
			if got := len(f.repo.snaps); got != tt.wantPersist {
				t.Errorf("persisted %d, want %d", got, tt.wantPersist)
			}
			if len(f.clock.times) != 1 {
				t.Error("clock not advanced")
			}
		})
	}
}

func TestIngestor_DropsMalformed(t *testing.T) {
	f := newFixture(Options{PersistOnTheHour: true})

	for _, payload := range []string{
		`not json`,
		`{"device_id": "x"}`,
		`{"device_id": "x", "time": {"year": 2026, "month": 13, "day": 1, "hour": 0, "minute": 0}, "state": {}}`,
	} {
		if err := f.ing.HandleMessage(DefaultTopic, []byte(payload)); err != nil {
			t.Errorf("HandleMessage(%q) error = %v, want nil", payload, err)
		}
	}

	if _, ok := f.store.Read(); ok {
		t.Error("malformed report reached the store")
	}
	if len(f.clock.times) != 0 || len(f.repo.snaps) != 0 || len(f.points.points) != 0 || len(f.hub.events) != 0 {
		t.Error("malformed report had side effects")
	}
}

func TestIngestor_PersistErrorIsNotFatal(t *testing.T) {
	f := newFixture(Options{PersistOnTheHour: true})
	f.repo.err = errors.New("disk full")

	if err := f.ing.HandleMessage(DefaultTopic, report(10, 0)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if _, ok := f.store.Read(); !ok {
		t.Error("snapshot not stored when persistence failed")
	}
	if len(f.hub.events) != 1 {
		t.Error("event not broadcast when persistence failed")
	}
}

func TestIngestor_OptionalDeps(t *testing.T) {
	store := device.NewStore()
	ing := NewIngestor(Deps{Store: store, Clock: &clockRecorder{}}, Options{})
	if err := ing.HandleMessage(DefaultTopic, report(8, 0)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if _, ok := store.Read(); !ok {
		t.Error("store empty")
	}
}

type fakeSubscriber struct {
	topic   string
	qos     byte
	handler mqtt.MessageHandler
	err     error
}

func (s *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	if s.err != nil {
		return s.err
	}
	s.topic, s.qos, s.handler = topic, qos, handler
	return nil
}

func TestIngestor_Start(t *testing.T) {
	f := newFixture(Options{QoS: 1})
	sub := &fakeSubscriber{}
	if err := f.ing.Start(context.Background(), sub); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sub.topic != DefaultTopic || sub.qos != 1 {
		t.Errorf("subscribed to %q qos %d", sub.topic, sub.qos)
	}
	if err := sub.handler(sub.topic, report(8, 0)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if _, ok := f.store.Read(); !ok {
		t.Error("subscribed handler did not reach the store")
	}

	failing := &fakeSubscriber{err: errors.New("not connected")}
	if err := f.ing.Start(context.Background(), failing); err == nil {
		t.Error("Start should surface subscribe errors")
	}
}
