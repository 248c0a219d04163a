package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for rule persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Rule, error)
	GetByName(ctx context.Context, name string) (*Rule, error)
	List(ctx context.Context) ([]Rule, error)
	ListEnabled(ctx context.Context) ([]Rule, error)
	Create(ctx context.Context, rule *Rule) error
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, id string) error
}

// ruleColumns is the SELECT column list for rule queries.
const ruleColumns = `id, name, description, enabled, schedule_type, schedule_time,
			schedule_days, actions, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db     *sql.DB
	logger Logger
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, logger: noopLogger{}}
}

// SetLogger sets the logger used to report rows that fail to decode.
func (r *SQLiteRepository) SetLogger(logger Logger) {
	r.logger = logger
}

// GetByID retrieves a rule by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Rule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("querying rule by id: %w", err)
	}
	return rule, nil
}

// GetByName retrieves a rule by its unique name.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*Rule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE name = ?`, name)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("querying rule by name: %w", err)
	}
	return rule, nil
}

// List retrieves all rules ordered by schedule time then name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Rule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM automation_rules ORDER BY schedule_time, name`)
}

// ListEnabled retrieves the enabled rules. The scheduler calls this on
// every evaluation, so it always reflects the table.
func (r *SQLiteRepository) ListEnabled(ctx context.Context) ([]Rule, error) {
	return r.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM automation_rules WHERE enabled = 1 ORDER BY schedule_time, name`)
}

// Create inserts a new rule.
func (r *SQLiteRepository) Create(ctx context.Context, rule *Rule) error {
	daysJSON, actionsJSON, err := marshalRuleJSON(rule)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO automation_rules (
			id, name, description, enabled, schedule_type, schedule_time,
			schedule_days, actions, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.Name,
		rule.Description,
		boolToInt(rule.Enabled),
		string(rule.Schedule.Type),
		rule.Schedule.Time,
		daysJSON,
		actionsJSON,
		rule.CreatedAt.Format(time.RFC3339),
		rule.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRuleExists
		}
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

// Update modifies an existing rule.
func (r *SQLiteRepository) Update(ctx context.Context, rule *Rule) error {
	daysJSON, actionsJSON, err := marshalRuleJSON(rule)
	if err != nil {
		return err
	}

	rule.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE automation_rules SET
			name = ?, description = ?, enabled = ?, schedule_type = ?,
			schedule_time = ?, schedule_days = ?, actions = ?, updated_at = ?
		WHERE id = ?`,
		rule.Name,
		rule.Description,
		boolToInt(rule.Enabled),
		string(rule.Schedule.Type),
		rule.Schedule.Time,
		daysJSON,
		actionsJSON,
		rule.UpdatedAt.Format(time.RFC3339),
		rule.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRuleExists
		}
		return fmt.Errorf("updating rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Delete removes a rule by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM automation_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// queryRules executes a query and returns a slice of rules. A row that
// fails to scan or decode is logged and skipped so one bad rule cannot
// hide the others.
func (r *SQLiteRepository) queryRules(ctx context.Context, query string, args ...any) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			r.logger.Warn("skipping unreadable rule", "error", scanErr)
			continue
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return rules, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(scanner rowScanner) (*Rule, error) {
	var (
		rule                  Rule
		enabled               int
		scheduleType          string
		daysJSON, actionsJSON string
		createdAt, updatedAt  string
	)
	err := scanner.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&enabled,
		&scheduleType,
		&rule.Schedule.Time,
		&daysJSON,
		&actionsJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled != 0
	rule.Schedule.Type = ScheduleType(scheduleType)

	if daysJSON != "" && daysJSON != "[]" {
		if err := json.Unmarshal([]byte(daysJSON), &rule.Schedule.Days); err != nil {
			return nil, fmt.Errorf("unmarshalling schedule days of %s: %w", rule.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(actionsJSON), &rule.Actions); err != nil {
		return nil, fmt.Errorf("unmarshalling actions of %s: %w", rule.ID, err)
	}

	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		rule.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		rule.UpdatedAt = t
	}
	return &rule, nil
}

func marshalRuleJSON(rule *Rule) (days, actions string, err error) {
	d := rule.Schedule.Days
	if d == nil {
		d = []int{}
	}
	daysJSON, err := json.Marshal(d)
	if err != nil {
		return "", "", fmt.Errorf("marshalling schedule days: %w", err)
	}
	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return "", "", fmt.Errorf("marshalling actions: %w", err)
	}
	return string(daysJSON), string(actionsJSON), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
