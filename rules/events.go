package rules

// TriggerKind classifies the outcome of comparing a row's current state to
// its previous state.
type TriggerKind string

const (
	TriggerNew     TriggerKind = "NEW"
	TriggerChanged TriggerKind = "CHANGED"
	TriggerRemoved TriggerKind = "REMOVED"
)

// TriggerEvent is the classified outcome for one row identity in one
// evaluation cycle. Ephemeral: produced by the engine, consumed by the
// dispatch step, never persisted.
//
// CurrentValues is nil for REMOVED; OldValues is nil for NEW; CHANGED
// carries both.
type TriggerEvent struct {
	Kind          TriggerKind       `json:"kind"`
	Customer      string            `json:"customer"`
	Rule          string            `json:"rule"`
	CurrentValues map[string]string `json:"currentValues,omitempty"`
	OldValues     map[string]string `json:"oldValues,omitempty"`
}
