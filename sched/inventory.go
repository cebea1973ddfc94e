package sched

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/rules"
)

// Inventory supplies the scanner with trigger definitions that are not yet
// running.
type Inventory interface {
	ListNewJobSpecs(ctx context.Context, excludeIDs []int) ([]rules.JobSpec, error)
}

// SQLInventory reads trigger definitions from the relational inventory and
// maps them to job specs.
type SQLInventory struct {
	db *sql.DB
}

// NewSQLInventory creates an inventory reader backed by the given database
func NewSQLInventory(db *sql.DB) *SQLInventory {
	return &SQLInventory{db: db}
}

// ListNewJobSpecs returns one JobSpec per trigger definition whose id is not
// in excludeIDs. Each spec carries the trigger's schedule, its email action,
// and the full rule set resolved through trigger_rules.
func (inv *SQLInventory) ListNewJobSpecs(ctx context.Context, excludeIDs []int) ([]rules.JobSpec, error) {
	query := `
		SELECT t.id, t.name, c.name, t.schedule, e.email, e.prompt
		FROM triggers t
		JOIN customers c ON c.id = t.owner
		JOIN email_triggers e ON e.trigger_id = t.id
	`
	args := make([]interface{}, 0, len(excludeIDs))
	if len(excludeIDs) > 0 {
		placeholders := make([]string, len(excludeIDs))
		for i, id := range excludeIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += fmt.Sprintf(" WHERE t.id NOT IN (%s)", strings.Join(placeholders, ", "))
	}
	query += " ORDER BY t.id"

	rows, err := inv.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list trigger definitions")
	}
	defer rows.Close()

	var specs []rules.JobSpec
	for rows.Next() {
		var spec rules.JobSpec
		var email rules.EmailJobSpec
		if err := rows.Scan(&spec.ID, &spec.Name, &spec.Customer, &spec.Schedule,
			&email.Address, &email.Prompt); err != nil {
			return nil, errors.Wrap(err, "failed to scan trigger definition")
		}
		spec.Kind = rules.JobKindEmail
		spec.Email = &email
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating trigger definitions")
	}

	for i := range specs {
		ruleSpecs, err := inv.listTriggerRules(ctx, specs[i].ID)
		if err != nil {
			return nil, err
		}
		specs[i].Rules = ruleSpecs
	}

	return specs, nil
}

// listTriggerRules resolves a trigger's rule set, including each rule's
// data source descriptor.
func (inv *SQLInventory) listTriggerRules(ctx context.Context, triggerID int) ([]rules.RuleJobSpec, error) {
	query := `
		SELECT r.name, r.description, r.filters, r.fields, r.keys,
		       r.trigger_on_new, r.trigger_on_changed, r.trigger_on_removed,
		       d.name, d.url, d.username, d.password, d.model, d.view, d.type
		FROM trigger_rules tr
		JOIN rules r ON r.id = tr.rule_id
		JOIN datasources d ON d.id = r.datasource
		WHERE tr.trigger_id = ?
		ORDER BY tr.id
	`

	rows, err := inv.db.QueryContext(ctx, query, triggerID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list rules for trigger %d", triggerID)
	}
	defer rows.Close()

	var ruleSpecs []rules.RuleJobSpec
	for rows.Next() {
		var spec rules.RuleJobSpec
		var filtersJSON, fieldsJSON, keysJSON string
		var sourceType string
		if err := rows.Scan(&spec.Name, &spec.Description, &filtersJSON, &fieldsJSON, &keysJSON,
			&spec.TriggerOnNew, &spec.TriggerOnChanged, &spec.TriggerOnRemoved,
			&spec.Datasource.Name, &spec.Datasource.URL,
			&spec.Datasource.Username, &spec.Datasource.Password,
			&spec.Datasource.Model, &spec.Datasource.View, &sourceType); err != nil {
			return nil, errors.Wrap(err, "failed to scan rule definition")
		}
		spec.Datasource.Type = rules.DataSourceType(sourceType)

		if err := json.Unmarshal([]byte(filtersJSON), &spec.Filters); err != nil {
			return nil, errors.Wrapf(err, "rule %q has malformed filters", spec.Name)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &spec.Fields); err != nil {
			return nil, errors.Wrapf(err, "rule %q has malformed fields", spec.Name)
		}
		if err := json.Unmarshal([]byte(keysJSON), &spec.Keys); err != nil {
			return nil, errors.Wrapf(err, "rule %q has malformed keys", spec.Name)
		}

		ruleSpecs = append(ruleSpecs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rule definitions")
	}

	return ruleSpecs, nil
}
