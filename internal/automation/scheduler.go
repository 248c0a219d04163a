package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/classroom-core/internal/appliance"
)

// DefaultTickInterval is how often the scheduler looks for a new device time.
const DefaultTickInterval = time.Second

// RuleSource supplies the enabled rules. It is queried once per evaluation.
type RuleSource interface {
	ListEnabled(ctx context.Context) ([]Rule, error)
}

// StateSource supplies the current appliance state. Implementations return
// a copy and must not hold a lock after returning.
type StateSource interface {
	State() appliance.DeviceState
}

// Dispatcher delivers a command to the devices. Delivery is best effort.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd Command) error
}

// FiringHook is told about every firing after dispatch.
type FiringHook func(Firing)

// SchedulerOptions tune a Scheduler. Zero values select the defaults.
type SchedulerOptions struct {
	TickInterval    time.Duration
	LedgerRetention time.Duration
	FiringLogSize   int

	// Now returns the wall clock used for command timestamps.
	Now func() time.Time
}

// Scheduler fires rules once per scheduled occurrence, clocked by the
// device-reported time rather than the host clock.
//
// Observe is called from the ingestion path; Run evaluates on its own
// goroutine. Rule evaluation is serialised internally.
type Scheduler struct {
	rules  RuleSource
	store  StateSource
	sink   Dispatcher
	logger Logger
	opts   SchedulerOptions

	timeMu    sync.RWMutex
	latest    time.Time
	latestSeq uint64

	evalMu       sync.Mutex
	evaluatedSeq uint64
	lastChecked  time.Time
	checked      bool
	ledger       *Ledger

	firings *firingLog

	hookMu sync.RWMutex
	hooks  []FiringHook

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler. logger may be nil.
func NewScheduler(rules RuleSource, store StateSource, sink Dispatcher, logger Logger, opts SchedulerOptions) *Scheduler {
	if logger == nil {
		logger = noopLogger{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.LedgerRetention <= 0 {
		opts.LedgerRetention = DefaultLedgerRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		rules:   rules,
		store:   store,
		sink:    sink,
		logger:  logger,
		opts:    opts,
		ledger:  NewLedger(opts.LedgerRetention),
		firings: newFiringLog(opts.FiringLogSize),
	}
}

// OnFiring registers a hook called after each firing.
func (s *Scheduler) OnFiring(hook FiringHook) {
	s.hookMu.Lock()
	s.hooks = append(s.hooks, hook)
	s.hookMu.Unlock()
}

// Observe records the latest device time. It never blocks on evaluation.
func (s *Scheduler) Observe(t time.Time) {
	s.timeMu.Lock()
	s.latest = t
	s.latestSeq++
	s.timeMu.Unlock()
}

// LatestObserved returns the most recent device time passed to Observe.
func (s *Scheduler) LatestObserved() (time.Time, bool) {
	s.timeMu.RLock()
	defer s.timeMu.RUnlock()
	return s.latest, s.latestSeq > 0
}

// LastChecked returns the device time of the last completed evaluation.
func (s *Scheduler) LastChecked() (time.Time, bool) {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()
	return s.lastChecked, s.checked
}

// RecentFirings returns the execution log, newest first.
func (s *Scheduler) RecentFirings() []Firing {
	return s.firings.recent()
}

// Start runs the loop in a new goroutine. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		s.Run(ctx)
	}(s.done)
	s.logger.Info("scheduler started", "tick_interval", s.opts.TickInterval.String())
}

// Stop cancels the loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

// Run ticks until ctx is cancelled. Each tick evaluates rules if a new
// device time was observed since the last successful evaluation.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick evaluates the newest observation once. A failed evaluation is
// retried on the next tick.
func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler tick panicked", "panic", fmt.Sprint(r))
		}
	}()

	s.timeMu.RLock()
	t, seq := s.latest, s.latestSeq
	s.timeMu.RUnlock()

	if seq == 0 || seq == s.evaluatedSeq {
		return
	}
	if err := s.Evaluate(ctx, t); err != nil {
		return
	}
	s.evaluatedSeq = seq
}

// Evaluate fires every rule due between the last evaluated device time and
// t. The first call only considers t itself. A backwards step in device
// time fires nothing and re-anchors on t.
//
// Catch-up after a forward jump is capped at LedgerRetention (24h by
// default): only the minutes from t-LedgerRetention through t are replayed and a
// warning is logged for the skipped part. Rules are read from the
// RuleSource on every call, so the source should not cache.
func (s *Scheduler) Evaluate(ctx context.Context, t time.Time) error {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()

	rules, err := s.rules.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("loading enabled rules", "error", err)
		return fmt.Errorf("loading enabled rules: %w", err)
	}
	compiled := s.compile(rules)

	if !s.checked {
		s.evaluateAt(ctx, compiled, t)
		s.lastChecked, s.checked = t, true
		return nil
	}

	from := s.lastChecked.Truncate(time.Minute)
	to := t.Truncate(time.Minute)
	gap := int(to.Sub(from) / time.Minute)

	switch {
	case gap > 0:
		if earliest := to.Add(-s.opts.LedgerRetention); from.Before(earliest) {
			s.logger.Warn("device time jumped beyond catch-up window",
				"from", from.Format(time.DateTime), "to", to.Format(time.DateTime),
				"catch_up_from", earliest.Format(time.DateTime))
			from = earliest
		}
		for m := from; !m.After(to); m = m.Add(time.Minute) {
			s.evaluateAt(ctx, compiled, m)
		}
	case gap < 0:
		s.logger.Warn("device time went backwards, re-anchoring",
			"last_checked", s.lastChecked.Format(time.DateTime), "device_time", t.Format(time.DateTime))
	}

	s.lastChecked = t
	return nil
}

type compiledRule struct {
	rule     Rule
	schedule compiledSchedule
}

func (s *Scheduler) compile(rules []Rule) []compiledRule {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		sched, err := compileSchedule(r.Schedule)
		if err != nil {
			s.logger.Warn("skipping rule with invalid schedule", "rule_id", r.ID, "rule", r.Name, "error", err)
			continue
		}
		out = append(out, compiledRule{rule: r, schedule: sched})
	}
	return out
}

func (s *Scheduler) evaluateAt(ctx context.Context, rules []compiledRule, m time.Time) {
	for _, cr := range rules {
		if !cr.schedule.dueAt(m) || s.ledger.RecentlyFired(cr.rule.ID, m) {
			continue
		}
		// Marked before dispatch and never rolled back.
		s.ledger.Mark(cr.rule.ID, m)
		s.fire(ctx, cr.rule, m)
	}
}

func (s *Scheduler) fire(ctx context.Context, rule Rule, occurrence time.Time) {
	state := appliance.Merge(s.store.State(), rule.Actions)
	cmd := Command{
		State:        state,
		Source:       SourceAutomation,
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		Timestamp:    s.opts.Now().UTC(),
		OccurrenceAt: occurrence,
	}

	firing := Firing{
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		OccurrenceAt: occurrence,
		FiredAt:      cmd.Timestamp,
		State:        state.String(),
	}

	if err := s.sink.Dispatch(ctx, cmd); err != nil {
		firing.Error = err.Error()
		s.logger.Error("dispatching rule", "rule_id", rule.ID, "rule", rule.Name,
			"occurrence", occurrence.Format(time.DateTime), "error", err)
	} else {
		firing.Dispatched = true
		s.logger.Info("rule fired", "rule_id", rule.ID, "rule", rule.Name,
			"occurrence", occurrence.Format(time.DateTime), "state", firing.State)
	}

	s.firings.add(firing)

	s.hookMu.RLock()
	hooks := s.hooks
	s.hookMu.RUnlock()
	for _, h := range hooks {
		h(firing)
	}
}
