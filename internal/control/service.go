package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/classroom-core/internal/appliance"
	"github.com/nerrad567/classroom-core/internal/audit"
	"github.com/nerrad567/classroom-core/internal/automation"
)

// DefaultTopic is the topic the firmware listens on for state commands.
const DefaultTopic = "setControl"

// Command sources recorded in published messages.
const (
	SourceAPI     = "api"
	SourceIntent  = "intent"
	SourceCommand = "command"
)

// Event is the live-feed channel every published command is broadcast on.
const Event = "control.sent"

// Publisher sends a payload to an MQTT topic.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// StateReader supplies the latest observed appliance state.
type StateReader interface {
	State() appliance.DeviceState
}

// Broadcaster pushes an event to live-feed subscribers.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger is the logging interface used by the Service.
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

// Message is the JSON body published on the control topic.
type Message struct {
	State     appliance.DeviceState `json:"state"`
	Source    string                `json:"source,omitempty"`
	RuleID    string                `json:"rule_id,omitempty"`
	RuleName  string                `json:"rule_name,omitempty"`
	Timestamp string                `json:"timestamp"`
}

// Result is the outcome of a semantic command.
type Result struct {
	Description string                `json:"description"`
	State       appliance.DeviceState `json:"state"`
}

// Options configures a Service.
type Options struct {
	Topic string
	QoS   byte

	// Now returns the wall clock used for message timestamps.
	Now func() time.Time
}

// Service turns control requests into published state commands.
type Service struct {
	pub    Publisher
	state  StateReader
	hub    Broadcaster
	audit  audit.Recorder
	logger Logger
	opts   Options
}

// NewService creates a control service. logger may be nil.
func NewService(pub Publisher, state StateReader, logger Logger, opts Options) *Service {
	if logger == nil {
		logger = noopLogger{}
	}
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{pub: pub, state: state, logger: logger, opts: opts}
}

// SetHub sets the live-feed broadcaster. Passing nil disables broadcasting.
func (s *Service) SetHub(hub Broadcaster) {
	s.hub = hub
}

// SetAudit sets the recorder every published message is written to.
func (s *Service) SetAudit(rec audit.Recorder) {
	s.audit = rec
}

// Dispatch publishes a scheduled rule firing. It implements
// automation.Dispatcher.
func (s *Service) Dispatch(ctx context.Context, cmd automation.Command) error {
	ts := cmd.Timestamp
	if ts.IsZero() {
		ts = s.opts.Now()
	}
	_, err := s.publish(ctx, Message{
		State:     cmd.State,
		Source:    cmd.Source,
		RuleID:    cmd.RuleID,
		RuleName:  cmd.RuleName,
		Timestamp: ts.UTC().Format(time.RFC3339),
	})
	return err
}

// SetState publishes a complete state. Missing or out-of-range fields are
// replaced with their all-off defaults first.
func (s *Service) SetState(ctx context.Context, state appliance.DeviceState, source string) (Message, error) {
	return s.publish(ctx, s.message(appliance.Normalize(state), source))
}

// ApplyIntent merges intent into the latest state and publishes the result.
func (s *Service) ApplyIntent(ctx context.Context, intent appliance.ActionIntent, source string) (Message, error) {
	if err := intent.Validate(); err != nil {
		return Message{}, err
	}
	merged := appliance.Merge(s.state.State(), intent)
	return s.publish(ctx, s.message(merged, source))
}

// Execute applies a semantic command to the latest state and publishes the
// result.
func (s *Service) Execute(ctx context.Context, cmd appliance.Command) (Result, error) {
	next, desc, err := appliance.ApplyCommand(s.state.State(), cmd)
	if err != nil {
		return Result{}, err
	}
	if _, err := s.publish(ctx, s.message(next, SourceCommand)); err != nil {
		return Result{}, err
	}
	return Result{Description: desc, State: next}, nil
}

func (s *Service) message(state appliance.DeviceState, source string) Message {
	if source == "" {
		source = SourceAPI
	}
	return Message{
		State:     state,
		Source:    source,
		Timestamp: s.opts.Now().UTC().Format(time.RFC3339),
	}
}

func (s *Service) publish(ctx context.Context, msg Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("encoding control message: %w", err)
	}
	if err := s.pub.Publish(s.opts.Topic, payload, s.opts.QoS, false); err != nil {
		s.logger.Error("publishing control message", "topic", s.opts.Topic, "source", msg.Source, "error", err)
		return Message{}, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	s.logger.Info("control message published",
		"topic", s.opts.Topic, "source", msg.Source, "rule_id", msg.RuleID, "state", msg.State.String())

	if s.hub != nil {
		s.hub.Broadcast(Event, msg)
	}
	s.record(ctx, msg)
	return msg, nil
}

func (s *Service) record(ctx context.Context, msg Message) {
	if s.audit == nil {
		return
	}
	details := map[string]any{"state": msg.State.String()}
	if msg.RuleName != "" {
		details["rule_name"] = msg.RuleName
	}
	err := s.audit.Record(ctx, &audit.Entry{
		Action:     audit.ActionControl,
		EntityType: audit.EntityAppliance,
		EntityID:   msg.RuleID,
		Actor:      audit.ActorFrom(ctx),
		Source:     msg.Source,
		Details:    details,
	})
	if err != nil {
		s.logger.Warn("recording control audit entry", "source", msg.Source, "error", err)
	}
}
