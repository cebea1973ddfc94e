package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/vigilhq/vigil/errors"
)

// StateStore persists the last-known status of every observed row.
// GetStates reads by (customer, rule-name set); UpsertStates overwrites by
// key; DeleteStates drops rows for keys that disappeared.
type StateStore interface {
	GetStates(ctx context.Context, customer string, ruleNames []string) (map[StatusKey]Status, error)
	UpsertStates(ctx context.Context, customer string, statuses map[StatusKey]Status) error
	DeleteStates(ctx context.Context, keys []StatusKey) error
}

// SQLStateStore is the SQLite-backed StateStore
type SQLStateStore struct {
	db *sql.DB
}

// NewStateStore creates a rule state store
func NewStateStore(db *sql.DB) *SQLStateStore {
	return &SQLStateStore{db: db}
}

// GetStates loads the persisted statuses for exactly this customer and rule
// name set.
func (s *SQLStateStore) GetStates(ctx context.Context, customer string, ruleNames []string) (map[StatusKey]Status, error) {
	if len(ruleNames) == 0 {
		return map[StatusKey]Status{}, nil
	}

	placeholders := strings.Repeat("?,", len(ruleNames))
	placeholders = placeholders[:len(placeholders)-1]

	query := `
		SELECT rules.name, rule_states.key_values, rule_states.all_values, rule_states.last_updated
		FROM rule_states
		JOIN customers ON customers.id = rule_states.customer
		JOIN rules ON rules.id = rule_states.rule
		WHERE customers.name = ? AND rules.name IN (` + placeholders + `)
	`

	args := make([]interface{}, 0, len(ruleNames)+1)
	args = append(args, customer)
	for _, name := range ruleNames {
		args = append(args, name)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query rule states")
	}
	defer rows.Close()

	statuses := make(map[StatusKey]Status)
	for rows.Next() {
		var ruleName, keyValues, allValues, lastUpdated string
		if err := rows.Scan(&ruleName, &keyValues, &allValues, &lastUpdated); err != nil {
			return nil, errors.Wrap(err, "failed to scan rule state")
		}

		var values map[string]string
		if err := json.Unmarshal([]byte(allValues), &values); err != nil {
			return nil, errors.Wrapf(err, "corrupt all_values for rule %s", ruleName)
		}

		observed, err := time.Parse(time.RFC3339, lastUpdated)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse last_updated for rule %s", ruleName)
		}

		key := StatusKey{Customer: customer, Rule: ruleName, KeyValues: keyValues}
		statuses[key] = Status{Values: values, Observed: observed}
	}

	return statuses, rows.Err()
}

// UpsertStates writes every status as the new previous state for its key,
// overwriting the value map and timestamp on conflict.
func (s *SQLStateStore) UpsertStates(ctx context.Context, customer string, statuses map[StatusKey]Status) error {
	if len(statuses) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin rule state tx")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO rule_states (customer, rule, key_values, all_values, last_updated)
		VALUES (
			(SELECT id FROM customers WHERE name = ?),
			(SELECT id FROM rules WHERE name = ?),
			?, ?, ?
		)
		ON CONFLICT (customer, rule, key_values) DO UPDATE SET
			all_values = excluded.all_values,
			last_updated = excluded.last_updated
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return errors.Wrap(err, "failed to prepare rule state upsert")
	}
	defer stmt.Close()

	for key, status := range statuses {
		allValues := CanonicalValues(status.Values)
		observed := status.Observed.UTC().Format(time.RFC3339)
		if _, err := stmt.ExecContext(ctx, customer, key.Rule, key.KeyValues, allValues, observed); err != nil {
			return errors.Wrapf(err, "failed to upsert rule state for rule %s", key.Rule)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit rule states")
}

// DeleteStates removes the state rows for keys that disappeared from the
// current result set.
func (s *SQLStateStore) DeleteStates(ctx context.Context, keys []StatusKey) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin rule state delete tx")
	}
	defer tx.Rollback()

	query := `
		DELETE FROM rule_states
		WHERE customer = (SELECT id FROM customers WHERE name = ?)
		  AND rule = (SELECT id FROM rules WHERE name = ?)
		  AND key_values = ?
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return errors.Wrap(err, "failed to prepare rule state delete")
	}
	defer stmt.Close()

	for _, key := range keys {
		if _, err := stmt.ExecContext(ctx, key.Customer, key.Rule, key.KeyValues); err != nil {
			return errors.Wrapf(err, "failed to delete rule state for rule %s", key.Rule)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit rule state deletes")
}
