// Package rules implements Vigil's change-detection engine: rule
// specifications, observed row state, and the diffing that classifies each
// evaluation cycle into NEW / CHANGED / REMOVED events.
package rules

// JobKind discriminates the JobSpec union. Add new kinds here and extend
// every dispatch switch; the compiler-checked exhaustive switch replaces the
// open-ended subtype pattern.
type JobKind string

const (
	JobKindEmail JobKind = "email"
)

// JobSpec is one schedulable unit of trigger evaluation, built from a
// trigger definition at scan time. ID is the trigger's stable id and is the
// identity used to detect already-running jobs. Specs are never mutated
// after creation.
type JobSpec struct {
	ID       int
	Name     string
	Customer string
	Schedule string // cron expression, seconds precision
	Rules    []RuleJobSpec

	Kind  JobKind
	Email *EmailJobSpec // set when Kind == JobKindEmail
}

// EmailJobSpec carries the email-specific part of a trigger definition
type EmailJobSpec struct {
	Address string
	Prompt  string
}

// RuleJobSpec is one rule's query and subscription configuration
type RuleJobSpec struct {
	Name        string
	Description string
	Datasource  DataSourceJobSpec
	Filters     map[string]string // field -> filter expression
	Fields      []string          // ordered field names to fetch
	Keys        []string          // field names forming row identity

	TriggerOnNew     bool
	TriggerOnChanged bool
	TriggerOnRemoved bool
}

// DataSourceType tags the concrete connection implementation for a
// data source descriptor. Closed enumeration.
type DataSourceType string

const (
	DataSourceLooker DataSourceType = "LOOKER"
)

// DataSourceJobSpec describes how to reach a rule's data source
type DataSourceJobSpec struct {
	Name     string
	URL      string
	Username string
	Password string
	Model    string
	View     string
	Type     DataSourceType
}
