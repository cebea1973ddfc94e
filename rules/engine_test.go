package rules

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	vigiltest "github.com/vigilhq/vigil/internal/testing"
)

const (
	testField1   = "id"
	testField2   = "price"
	testKeyValue = "1"
	testOldValue = "100"
	testNewValue = "120"
	testRule     = "test_rule"
	testCustomer = "test_customer"
	testSource   = "test_datasource"
)

// fakeConnection returns one fixed row, or none when value is empty
type fakeConnection struct {
	value string
}

func (c *fakeConnection) CheckForData(ctx context.Context, model, view string, filters map[string]string, fields []string) ([]map[string]string, error) {
	if c.value == "" {
		return nil, nil
	}
	return []map[string]string{{testField1: testKeyValue, testField2: c.value}}, nil
}

type fakeFactory struct {
	value string
	err   error
}

func (f *fakeFactory) CreateDataSource(spec DataSourceJobSpec) (DataSourceConnection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fakeConnection{value: f.value}, nil
}

func testRuleSpecs() []RuleJobSpec {
	return []RuleJobSpec{
		{
			Name:        testRule,
			Description: "test description",
			Datasource: DataSourceJobSpec{
				Name:     testSource,
				URL:      "http://looker.test",
				Username: "user",
				Password: "secret",
				Model:    "test model",
				View:     "test view",
				Type:     DataSourceLooker,
			},
			Filters:          map[string]string{testField1: "not null"},
			Fields:           []string{testField1, testField2},
			Keys:             []string{testField1},
			TriggerOnNew:     true,
			TriggerOnChanged: true,
			TriggerOnRemoved: true,
		},
	}
}

// seedInventory inserts the customer and rule rows the state store joins
// against, and optionally a previous state row.
func seedInventory(t *testing.T, db *sql.DB, withState bool) {
	t.Helper()

	_, err := db.Exec(`INSERT INTO customers (name) VALUES (?)`, testCustomer)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO datasources (name, url, username, password, model, view, type, owner)
		VALUES (?, 'http://looker.test', 'user', 'secret', 'test model', 'test view', 'LOOKER', 1)`,
		testSource)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO rules (name, description, filters, fields, keys, owner, datasource,
		                   trigger_on_new, trigger_on_changed, trigger_on_removed)
		VALUES (?, 'test description', '{}', '["id","price"]', '["id"]', 1, 1, 1, 1, 1)`,
		testRule)
	require.NoError(t, err)

	if withState {
		previous := Status{
			Values:   map[string]string{testField1: testKeyValue, testField2: testOldValue},
			Observed: time.Now().Add(-time.Hour),
		}
		key := NewStatusKey(testCustomer, testRule, map[string]string{testField1: testKeyValue})
		_, err = db.Exec(`
			INSERT INTO rule_states (customer, rule, key_values, all_values, last_updated)
			VALUES (1, 1, ?, ?, ?)`,
			key.KeyValues, CanonicalValues(previous.Values), previous.Observed.UTC().Format(time.RFC3339))
		require.NoError(t, err)
	}
}

func newTestEngine(t *testing.T, db *sql.DB, factory ConnectionFactory) *Engine {
	t.Helper()
	return NewEngine(NewStateStore(db), factory, zap.NewNop().Sugar())
}

func TestCheckRules_Changed(t *testing.T) {
	db := vigiltest.CreateTestDB(t)
	seedInventory(t, db, true)

	engine := newTestEngine(t, db, &fakeFactory{value: testNewValue})
	events, err := engine.CheckRules(context.Background(), testCustomer, testRuleSpecs())
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, TriggerChanged, events[0].Kind)
	assert.Equal(t, testCustomer, events[0].Customer)
	assert.Equal(t, testRule, events[0].Rule)
	assert.Equal(t, map[string]string{testField1: testKeyValue, testField2: testNewValue}, events[0].CurrentValues)
	assert.Equal(t, map[string]string{testField1: testKeyValue, testField2: testOldValue}, events[0].OldValues)
}

func TestCheckRules_New(t *testing.T) {
	db := vigiltest.CreateTestDB(t)
	seedInventory(t, db, false)

	engine := newTestEngine(t, db, &fakeFactory{value: testOldValue})
	events, err := engine.CheckRules(context.Background(), testCustomer, testRuleSpecs())
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, TriggerNew, events[0].Kind)
	assert.Equal(t, map[string]string{testField1: testKeyValue, testField2: testOldValue}, events[0].CurrentValues)
	assert.Nil(t, events[0].OldValues)
}

func TestCheckRules_Removed(t *testing.T) {
	db := vigiltest.CreateTestDB(t)
	seedInventory(t, db, true)

	engine := newTestEngine(t, db, &fakeFactory{value: ""})
	events, err := engine.CheckRules(context.Background(), testCustomer, testRuleSpecs())
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, TriggerRemoved, events[0].Kind)
	assert.Nil(t, events[0].CurrentValues)
	assert.Equal(t, map[string]string{testField1: testKeyValue, testField2: testOldValue}, events[0].OldValues)
}

func TestCheckRules_UnchangedRowFiresNothing(t *testing.T) {
	db := vigiltest.CreateTestDB(t)
	seedInventory(t, db, true)

	// Current row is identical to the persisted state: no CHANGED event even
	// though the key is present in both sets and the flag is on.
	engine := newTestEngine(t, db, &fakeFactory{value: testOldValue})
	events, err := engine.CheckRules(context.Background(), testCustomer, testRuleSpecs())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCheckRules_FlagsAreIndependent(t *testing.T) {
	db := vigiltest.CreateTestDB(t)
	seedInventory(t, db, false)

	specs := testRuleSpecs()
	specs[0].TriggerOnNew = false

	engine := newTestEngine(t, db, &fakeFactory{value: testNewValue})
	events, err := engine.CheckRules(context.Background(), testCustomer, specs)
	require.NoError(t, err)
	assert.Empty(t, events, "genuinely new key must be suppressed when triggerOnNew is off")

	// State still converged: re-running with the flag on yields nothing new
	specs[0].TriggerOnNew = true
	events, err = engine.CheckRules(context.Background(), testCustomer, specs)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCheckRules_Idempotent(t *testing.T) {
	db := vigiltest.CreateTestDB(t)
	seedInventory(t, db, false)

	engine := newTestEngine(t, db, &fakeFactory{value: testNewValue})

	events, err := engine.CheckRules(context.Background(), testCustomer, testRuleSpecs())
	require.NoError(t, err)
	require.Len(t, events, 1)

	// Unchanged external source: second run converges to no events
	events, err = engine.CheckRules(context.Background(), testCustomer, testRuleSpecs())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCheckRules_RemovedKeyReappearsAsNew(t *testing.T) {
	db := vigiltest.CreateTestDB(t)
	seedInventory(t, db, true)

	// Cycle 1: key disappears, state row is dropped
	engine := newTestEngine(t, db, &fakeFactory{value: ""})
	events, err := engine.CheckRules(context.Background(), testCustomer, testRuleSpecs())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, TriggerRemoved, events[0].Kind)

	// Cycle 2: same key comes back with its old values and counts as NEW
	engine = newTestEngine(t, db, &fakeFactory{value: testOldValue})
	events, err = engine.CheckRules(context.Background(), testCustomer, testRuleSpecs())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, TriggerNew, events[0].Kind)
}

func TestCheckRules_FailedRuleIsIsolated(t *testing.T) {
	db := vigiltest.CreateTestDB(t)
	seedInventory(t, db, true)

	// The data source query fails: the rule is skipped for this cycle and its
	// previous state must NOT be reported as removed.
	engine := newTestEngine(t, db, &fakeFactory{err: assert.AnError})
	events, err := engine.CheckRules(context.Background(), testCustomer, testRuleSpecs())
	require.NoError(t, err)
	assert.Empty(t, events)

	// State survives: a later healthy cycle still sees the old values
	engine = newTestEngine(t, db, &fakeFactory{value: testNewValue})
	events, err = engine.CheckRules(context.Background(), testCustomer, testRuleSpecs())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, TriggerChanged, events[0].Kind)
}
