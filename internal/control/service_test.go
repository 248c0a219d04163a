package control

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/classroom-core/internal/appliance"
	"github.com/nerrad567/classroom-core/internal/audit"
	"github.com/nerrad567/classroom-core/internal/automation"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// mockPublisher records every publish.
type mockPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, published{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (m *mockPublisher) last(t *testing.T) published {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.msgs) == 0 {
		t.Fatal("nothing published")
	}
	return m.msgs[len(m.msgs)-1]
}

type fixedState struct{ state appliance.DeviceState }

func (f fixedState) State() appliance.DeviceState { return f.state }

type recordingHub struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHub) Broadcast(channel string, _ any) {
	h.mu.Lock()
	h.events = append(h.events, channel)
	h.mu.Unlock()
}

var fixedNow = time.Date(2026, 3, 2, 8, 0, 5, 0, time.UTC)

func newTestService(state appliance.DeviceState) (*Service, *mockPublisher) {
	pub := &mockPublisher{}
	svc := NewService(pub, fixedState{state: state}, nil, Options{
		QoS: 1,
		Now: func() time.Time { return fixedNow },
	})
	return svc, pub
}

func decode(t *testing.T, payload []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	return m
}

func TestService_Dispatch(t *testing.T) {
	svc, pub := newTestService(appliance.DefaultState())

	state := appliance.DefaultState()
	state.LEDs[0] = true
	cmd := automation.Command{
		State:     state,
		Source:    automation.SourceAutomation,
		RuleID:    "r1",
		RuleName:  "Morning",
		Timestamp: time.Date(2026, 3, 2, 8, 0, 1, 0, time.UTC),
	}
	if err := svc.Dispatch(context.Background(), cmd); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	msg := pub.last(t)
	if msg.topic != DefaultTopic || msg.qos != 1 || msg.retained {
		t.Errorf("published to %q qos=%d retained=%v", msg.topic, msg.qos, msg.retained)
	}

	body := decode(t, msg.payload)
	if body["source"] != "automation" || body["rule_id"] != "r1" || body["rule_name"] != "Morning" {
		t.Errorf("provenance = %v", body)
	}
	if body["timestamp"] != "2026-03-02T08:00:01Z" {
		t.Errorf("timestamp = %v", body["timestamp"])
	}
	wire, ok := body["state"].(map[string]any)
	if !ok {
		t.Fatalf("state = %T", body["state"])
	}
	leds := wire["led"].(map[string]any)
	if leds["led1"] != float64(1) || leds["led2"] != float64(0) {
		t.Errorf("led = %v", leds)
	}
	ac := wire["air_conditioner"].(map[string]any)
	if ac["state"] != "off" || ac["mode"] != "cool" || ac["level"] != float64(1) {
		t.Errorf("air_conditioner = %v", ac)
	}
}

func TestService_DispatchPublishError(t *testing.T) {
	svc, pub := newTestService(appliance.DefaultState())
	pub.err = errors.New("not connected")

	err := svc.Dispatch(context.Background(), automation.Command{State: appliance.DefaultState()})
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("error = %v, want ErrPublishFailed", err)
	}
}

func TestService_SetStateNormalizes(t *testing.T) {
	svc, pub := newTestService(appliance.DefaultState())

	in := appliance.DeviceState{Multimedia: appliance.MultimediaStandby}
	msg, err := svc.SetState(context.Background(), in, "")
	if err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if !msg.State.Valid() {
		t.Errorf("published invalid state %v", msg.State)
	}
	if msg.State.Multimedia != appliance.MultimediaStandby {
		t.Errorf("Multimedia = %q, want standby kept", msg.State.Multimedia)
	}
	if msg.Source != SourceAPI {
		t.Errorf("Source = %q, want %q", msg.Source, SourceAPI)
	}
	if decode(t, pub.last(t).payload)["rule_id"] != nil {
		t.Error("direct control message carries a rule_id")
	}
}

func TestService_ApplyIntent(t *testing.T) {
	current := appliance.DefaultState()
	current.LEDs[2] = true
	svc, _ := newTestService(current)

	intent := appliance.ActionIntent{ACPower: appliance.Set(appliance.PowerOn)}
	msg, err := svc.ApplyIntent(context.Background(), intent, SourceIntent)
	if err != nil {
		t.Fatalf("ApplyIntent: %v", err)
	}
	if !msg.State.LEDs[2] || msg.State.AC.Power != appliance.PowerOn {
		t.Errorf("merged state = %v", msg.State)
	}

	bad := appliance.ActionIntent{ACLevel: appliance.Set(appliance.ACLevel(7))}
	if _, err := svc.ApplyIntent(context.Background(), bad, SourceIntent); !errors.Is(err, appliance.ErrInvalidIntent) {
		t.Errorf("invalid intent error = %v", err)
	}
}

func TestService_Execute(t *testing.T) {
	tests := []struct {
		name    string
		cmd     appliance.Command
		check   func(t *testing.T, s appliance.DeviceState)
		wantErr error
	}{
		{
			name: "led on",
			cmd:  appliance.Command{Device: appliance.DeviceLED, Action: appliance.ActionOn, LEDs: []int{2}},
			check: func(t *testing.T, s appliance.DeviceState) {
				if !s.LEDs[1] || s.LEDs[0] {
					t.Errorf("LEDs = %v", s.LEDs)
				}
			},
		},
		{
			name: "all on",
			cmd:  appliance.Command{Device: appliance.DeviceAll, Action: appliance.ActionOn},
			check: func(t *testing.T, s appliance.DeviceState) {
				if s.LEDsOn() != 4 || s.AC.Power != appliance.PowerOn || s.Multimedia != appliance.MultimediaOn {
					t.Errorf("state = %v", s)
				}
			},
		},
		{
			name:    "unknown device",
			cmd:     appliance.Command{Device: "projector", Action: appliance.ActionOn},
			wantErr: appliance.ErrUnsupportedCommand,
		},
		{
			name:    "led out of range",
			cmd:     appliance.Command{Device: appliance.DeviceLED, Action: appliance.ActionOn, LEDs: []int{5}},
			wantErr: appliance.ErrInvalidCommand,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, pub := newTestService(appliance.DefaultState())
			res, err := svc.Execute(context.Background(), tt.cmd)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if len(pub.msgs) != 0 {
					t.Error("published despite error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if res.Description == "" {
				t.Error("empty description")
			}
			tt.check(t, res.State)
			if src := decode(t, pub.last(t).payload)["source"]; src != SourceCommand {
				t.Errorf("source = %v", src)
			}
		})
	}
}

func TestService_BroadcastsToHub(t *testing.T) {
	svc, pub := newTestService(appliance.DefaultState())
	hub := &recordingHub{}
	svc.SetHub(hub)

	if _, err := svc.SetState(context.Background(), appliance.DefaultState(), ""); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	pub.err = errors.New("down")
	_, _ = svc.SetState(context.Background(), appliance.DefaultState(), "")

	if len(hub.events) != 1 || hub.events[0] != Event {
		t.Errorf("events = %v, want one %q", hub.events, Event)
	}
}

func TestService_CancelledContext(t *testing.T) {
	svc, pub := newTestService(appliance.DefaultState())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.SetState(ctx, appliance.DefaultState(), ""); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(pub.msgs) != 0 {
		t.Error("published with a cancelled context")
	}
}

type recordingAudit struct {
	entries []audit.Entry
	err     error
}

func (r *recordingAudit) Record(_ context.Context, e *audit.Entry) error {
	r.entries = append(r.entries, *e)
	return r.err
}

func TestService_RecordsAudit(t *testing.T) {
	svc, pub := newTestService(appliance.DefaultState())
	rec := &recordingAudit{}
	svc.SetAudit(rec)

	ctx := audit.WithActor(context.Background(), "operator1")
	if _, err := svc.SetState(ctx, appliance.DefaultState(), SourceAPI); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	err := svc.Dispatch(context.Background(), automation.Command{
		State: appliance.DefaultState(), Source: automation.SourceAutomation, RuleID: "r1", RuleName: "Morning",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	pub.err = errors.New("down")
	_, _ = svc.SetState(ctx, appliance.DefaultState(), SourceAPI)

	if len(rec.entries) != 2 {
		t.Fatalf("recorded %d entries, want 2", len(rec.entries))
	}
	manual, scheduled := rec.entries[0], rec.entries[1]
	if manual.Actor != "operator1" || manual.Source != SourceAPI || manual.Action != audit.ActionControl {
		t.Errorf("manual entry = %+v", manual)
	}
	if scheduled.Actor != "" || scheduled.EntityID != "r1" || scheduled.Details["rule_name"] != "Morning" {
		t.Errorf("scheduled entry = %+v", scheduled)
	}
}

func TestService_AuditFailureDoesNotFailPublish(t *testing.T) {
	svc, pub := newTestService(appliance.DefaultState())
	svc.SetAudit(&recordingAudit{err: errors.New("disk full")})

	if _, err := svc.SetState(context.Background(), appliance.DefaultState(), ""); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	pub.last(t)
}
