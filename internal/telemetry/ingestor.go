package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/classroom-core/internal/appliance"
	"github.com/nerrad567/classroom-core/internal/device"
	"github.com/nerrad567/classroom-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/classroom-core/internal/infrastructure/mqtt"
)

// DefaultTopic is the topic the firmware publishes reports on.
const DefaultTopic = "dataUpdate"

// Event is the live-feed channel each accepted report is broadcast on.
const Event = "telemetry.updated"

// persistTimeout bounds a single repository insert.
const persistTimeout = 5 * time.Second

// Subscriber registers a handler for an MQTT topic.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// SnapshotWriter receives the latest snapshot.
type SnapshotWriter interface {
	Write(snap device.Snapshot)
}

// ClockObserver is told the device time of every accepted report.
type ClockObserver interface {
	Observe(t time.Time)
}

// PointWriter exports telemetry to a time-series database.
type PointWriter interface {
	WriteTelemetry(t influxdb.Telemetry)
}

// Broadcaster pushes an event to live-feed subscribers.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger is the logging interface used by the Ingestor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures an Ingestor.
type Options struct {
	Topic string
	QoS   byte

	// PersistOnTheHour stores only reports stamped at minute 0. When false
	// every report is stored.
	PersistOnTheHour bool
}

// Deps holds the Ingestor's collaborators. Store and Clock are required;
// the rest may be nil.
type Deps struct {
	Store  SnapshotWriter
	Clock  ClockObserver
	Repo   device.TelemetryRepository
	Points PointWriter
	Hub    Broadcaster
	Logger Logger
}

// Ingestor turns raw MQTT reports into snapshots.
type Ingestor struct {
	deps Deps
	opts Options
}

// NewIngestor creates an ingestor.
func NewIngestor(deps Deps, opts Options) *Ingestor {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	return &Ingestor{deps: deps, opts: opts}
}

// Start subscribes the ingestor to its topic.
func (i *Ingestor) Start(_ context.Context, sub Subscriber) error {
	if err := sub.Subscribe(i.opts.Topic, i.opts.QoS, i.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", i.opts.Topic, err)
	}
	i.deps.Logger.Info("telemetry ingestion started", "topic", i.opts.Topic)
	return nil
}

// HandleMessage processes one report. It implements mqtt.MessageHandler
// and never returns an error for bad input; a malformed report is dropped.
func (i *Ingestor) HandleMessage(topic string, payload []byte) error {
	rec, err := device.DecodeRecord(payload)
	if err != nil {
		i.deps.Logger.Warn("dropping malformed telemetry", "topic", topic, "error", err)
		return nil
	}

	snap := rec.Snapshot()
	i.deps.Store.Write(snap)
	i.deps.Clock.Observe(snap.ObservedAt)

	i.deps.Logger.Debug("telemetry received",
		"device_id", snap.DeviceID,
		"device_time", snap.ObservedAt.Format(device.WallClockLayout),
		"power_watts", snap.Power)

	if i.shouldPersist(snap) {
		i.persist(snap)
	}

	if i.deps.Points != nil {
		i.deps.Points.WriteTelemetry(influxdb.Telemetry{
			DeviceID:    snap.DeviceID,
			Time:        snap.ObservedAt,
			PowerWatts:  snap.Power,
			Temperature: snap.Sensors.Temperature,
			Humidity:    snap.Sensors.Humidity,
			Lux:         snap.Sensors.Lux,
			Occupied:    snap.Sensors.Occupied,
			LEDsOn:      snap.State.LEDsOn(),
			ACOn:        snap.State.AC.Power == appliance.PowerOn,
			Multimedia:  string(snap.State.Multimedia),
		})
	}

	if i.deps.Hub != nil {
		i.deps.Hub.Broadcast(Event, snap)
	}
	return nil
}

func (i *Ingestor) shouldPersist(snap device.Snapshot) bool {
	if i.deps.Repo == nil {
		return false
	}
	return !i.opts.PersistOnTheHour || snap.ObservedAt.Minute() == 0
}

func (i *Ingestor) persist(snap device.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := i.deps.Repo.Insert(ctx, snap); err != nil {
		i.deps.Logger.Error("persisting telemetry", "device_id", snap.DeviceID,
			"device_time", snap.ObservedAt.Format(device.WallClockLayout), "error", err)
		return
	}
	i.deps.Logger.Info("telemetry persisted", "device_id", snap.DeviceID,
		"device_time", snap.ObservedAt.Format(device.WallClockLayout))
}
