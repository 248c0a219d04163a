package automation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Logger defines the logging interface used by the Registry and Scheduler.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides rule authoring with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by the CRUD operations. It is not a RuleSource: the scheduler reads the
// Repository directly on every tick.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Rule // Cached rules by ID
	cacheMu sync.RWMutex     // Protects cache
	logger  Logger
}

// NewRegistry creates a new rule registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Rule),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all rules from the repository into the cache.
func (r *Registry) RefreshCache(ctx context.Context) error {
	rules, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Rule, len(rules))
	for i := range rules {
		r.cache[rules[i].ID] = rules[i].DeepCopy()
	}

	r.logger.Info("rule cache refreshed", "count", len(rules))
	return nil
}

// GetRule retrieves a rule by ID. The returned rule is a deep copy.
func (r *Registry) GetRule(_ context.Context, id string) (*Rule, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	return nil, ErrRuleNotFound
}

// ListRules returns deep copies of all rules sorted by time then name.
func (r *Registry) ListRules(_ context.Context) ([]Rule, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	rules := make([]Rule, 0, len(r.cache))
	for _, rule := range r.cache {
		rules = append(rules, *rule.DeepCopy())
	}
	sortRules(rules)
	return rules, nil
}

// sortRules matches the repository's ORDER BY schedule_time, name.
func sortRules(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Schedule.Time != rules[j].Schedule.Time {
			return rules[i].Schedule.Time < rules[j].Schedule.Time
		}
		return rules[i].Name < rules[j].Name
	})
}

// CreateRule validates, persists, and caches a new rule. An ID is
// generated when empty.
func (r *Registry) CreateRule(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = GenerateID()
	}
	rule.Name = strings.TrimSpace(rule.Name)

	if err := ValidateRule(rule); err != nil {
		return err
	}
	if r.nameTaken(rule.Name, rule.ID) {
		return fmt.Errorf("%w: name %q", ErrRuleExists, rule.Name)
	}

	if err := r.repo.Create(ctx, rule); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("rule created", "id", rule.ID, "name", rule.Name)
	return nil
}

// UpdateRule validates and persists changes to an existing rule. The
// creation time is kept from the stored rule.
func (r *Registry) UpdateRule(ctx context.Context, rule *Rule) error {
	existing, err := r.GetRule(ctx, rule.ID)
	if err != nil {
		return err
	}
	rule.Name = strings.TrimSpace(rule.Name)

	if err := ValidateRule(rule); err != nil {
		return err
	}
	if r.nameTaken(rule.Name, rule.ID) {
		return fmt.Errorf("%w: name %q", ErrRuleExists, rule.Name)
	}
	rule.CreatedAt = existing.CreatedAt

	if err := r.repo.Update(ctx, rule); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("rule updated", "id", rule.ID, "name", rule.Name)
	return nil
}

// SetEnabled switches a rule on or off and returns the updated rule.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) (*Rule, error) {
	rule, err := r.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.Enabled = enabled

	if err := r.repo.Update(ctx, rule); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("rule enabled state changed", "id", id, "enabled", enabled)
	return rule, nil
}

// DeleteRule removes a rule from persistence and cache.
func (r *Registry) DeleteRule(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("rule deleted", "id", id)
	return nil
}

// GetRuleCount returns the number of cached rules.
func (r *Registry) GetRuleCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// nameTaken reports whether a rule other than id already uses name.
func (r *Registry) nameTaken(name, id string) bool {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	for _, rule := range r.cache {
		if rule.Name == name && rule.ID != id {
			return true
		}
	}
	return false
}
