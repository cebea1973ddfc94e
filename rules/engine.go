package rules

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vigilhq/vigil/errors"
)

// StateEngine evaluates a customer's rules against their data sources and
// classifies the results against previously persisted state.
type StateEngine interface {
	CheckRules(ctx context.Context, customer string, specs []RuleJobSpec) ([]TriggerEvent, error)
}

// Engine is the persistent StateEngine implementation. It is stateless
// between calls; all evaluation state lives in the StateStore.
type Engine struct {
	store   StateStore
	factory ConnectionFactory
	logger  *zap.SugaredLogger
}

// NewEngine creates a rule state engine
func NewEngine(store StateStore, factory ConnectionFactory, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		store:   store,
		factory: factory,
		logger:  logger,
	}
}

// CheckRules runs one evaluation cycle for the given customer and rule set.
//
// For every rule it queries the data source, keys each result row by the
// rule's key fields, and diffs the keyed set against the persisted previous
// state:
//
//   - NEW: key in current only, rule subscribes to new
//   - REMOVED: key in previous only, rule subscribes to removed
//   - CHANGED: key in both, rule subscribes to changed, AND the full value
//     map differs (an identical row never fires)
//
// Current statuses are upserted as the next cycle's previous state; state
// rows for disappeared keys are deleted so a key that later reappears is
// classified NEW again. A rule whose query fails is skipped for the whole
// cycle (its previous state is left untouched, so nothing is spuriously
// reported REMOVED) and the failure is logged; the other rules still
// evaluate.
func (e *Engine) CheckRules(ctx context.Context, customer string, specs []RuleJobSpec) ([]TriggerEvent, error) {
	specsByName := make(map[string]RuleJobSpec, len(specs))
	current := make(map[StatusKey]Status)
	var ruleNames []string

	for _, spec := range specs {
		statuses, err := e.currentStatuses(ctx, customer, spec)
		if err != nil {
			e.logger.Warnw("Rule evaluation failed, skipping for this cycle",
				"customer", customer,
				"rule", spec.Name,
				"datasource", spec.Datasource.Name,
				"error", err)
			continue
		}
		specsByName[spec.Name] = spec
		ruleNames = append(ruleNames, spec.Name)
		for key, status := range statuses {
			current[key] = status
		}
	}

	if len(ruleNames) == 0 {
		return nil, nil
	}

	previous, err := e.store.GetStates(ctx, customer, ruleNames)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load previous rule states")
	}

	var newEvents, removedEvents, changedEvents []TriggerEvent
	var removedKeys []StatusKey

	for key, status := range current {
		spec, ok := specsByName[key.Rule]
		if !ok {
			continue
		}
		prev, existed := previous[key]
		switch {
		case !existed:
			if spec.TriggerOnNew {
				newEvents = append(newEvents, TriggerEvent{
					Kind:          TriggerNew,
					Customer:      key.Customer,
					Rule:          key.Rule,
					CurrentValues: status.Values,
				})
			}
		case spec.TriggerOnChanged && !status.Equal(prev):
			changedEvents = append(changedEvents, TriggerEvent{
				Kind:          TriggerChanged,
				Customer:      key.Customer,
				Rule:          key.Rule,
				CurrentValues: status.Values,
				OldValues:     prev.Values,
			})
		}
	}

	for key, prev := range previous {
		if _, present := current[key]; present {
			continue
		}
		// Key disappeared. Drop the state row regardless of the flag so
		// REMOVED fires at most once and a reappearance counts as NEW.
		removedKeys = append(removedKeys, key)
		spec, ok := specsByName[key.Rule]
		if !ok || !spec.TriggerOnRemoved {
			continue
		}
		removedEvents = append(removedEvents, TriggerEvent{
			Kind:      TriggerRemoved,
			Customer:  key.Customer,
			Rule:      key.Rule,
			OldValues: prev.Values,
		})
	}

	if err := e.store.UpsertStates(ctx, customer, current); err != nil {
		return nil, errors.Wrap(err, "failed to persist rule states")
	}
	if len(removedKeys) > 0 {
		if err := e.store.DeleteStates(ctx, removedKeys); err != nil {
			return nil, errors.Wrap(err, "failed to delete removed rule states")
		}
	}

	sortEvents(newEvents)
	sortEvents(removedEvents)
	sortEvents(changedEvents)

	events := make([]TriggerEvent, 0, len(newEvents)+len(removedEvents)+len(changedEvents))
	events = append(events, newEvents...)
	events = append(events, removedEvents...)
	events = append(events, changedEvents...)
	return events, nil
}

// currentStatuses queries one rule's data source and keys the result rows
func (e *Engine) currentStatuses(ctx context.Context, customer string, spec RuleJobSpec) (map[StatusKey]Status, error) {
	conn, err := e.factory.CreateDataSource(spec.Datasource)
	if err != nil {
		return nil, err
	}

	rows, err := conn.CheckForData(ctx, spec.Datasource.Model, spec.Datasource.View, spec.Filters, spec.Fields)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	statuses := make(map[StatusKey]Status, len(rows))
	for _, row := range rows {
		// Last write wins on key collision within one evaluation
		key := NewStatusKey(customer, spec.Name, subsetValues(row, spec.Keys))
		statuses[key] = Status{Values: row, Observed: now}
	}
	return statuses, nil
}

// sortEvents orders a bucket by rule then key material for deterministic
// output; map iteration order would otherwise leak into results.
func sortEvents(events []TriggerEvent) {
	valuesOf := func(ev TriggerEvent) map[string]string {
		if ev.CurrentValues != nil {
			return ev.CurrentValues
		}
		return ev.OldValues
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Rule != events[j].Rule {
			return events[i].Rule < events[j].Rule
		}
		return CanonicalValues(valuesOf(events[i])) < CanonicalValues(valuesOf(events[j]))
	})
}
