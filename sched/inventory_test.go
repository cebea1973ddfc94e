package sched

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vigiltest "github.com/vigilhq/vigil/internal/testing"
	"github.com/vigilhq/vigil/rules"
)

// seedTrigger inserts one complete trigger definition and returns its id
func seedTrigger(t *testing.T, db *sql.DB, customer, trigger, rule string) int {
	t.Helper()

	res, err := db.Exec(`INSERT INTO customers (name) VALUES (?)
		ON CONFLICT (name) DO UPDATE SET name = excluded.name`, customer)
	require.NoError(t, err)
	var customerID int64
	require.NoError(t, db.QueryRow(`SELECT id FROM customers WHERE name = ?`, customer).Scan(&customerID))

	res, err = db.Exec(`INSERT INTO datasources (name, url, username, password, model, view, type, owner)
		VALUES (?, 'http://looker.test', 'user', 'secret', 'shop', 'inventory', 'LOOKER', ?)`,
		rule+"_source", customerID)
	require.NoError(t, err)
	sourceID, err := res.LastInsertId()
	require.NoError(t, err)

	res, err = db.Exec(`INSERT INTO rules
		(name, description, filters, fields, keys, owner, datasource,
		 trigger_on_new, trigger_on_changed, trigger_on_removed)
		VALUES (?, 'watches price changes', '{"inventory.in_stock": "yes"}',
		        '["inventory.id", "inventory.price"]', '["inventory.id"]', ?, ?, 1, 1, 0)`,
		rule, customerID, sourceID)
	require.NoError(t, err)
	ruleID, err := res.LastInsertId()
	require.NoError(t, err)

	res, err = db.Exec(`INSERT INTO triggers (name, description, owner, schedule)
		VALUES (?, '', ?, '0 0 9 * * *')`, trigger, customerID)
	require.NoError(t, err)
	triggerID, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO email_triggers (trigger_id, email, prompt)
		VALUES (?, 'exec@acme.example', 'Summarize: {{ range .Events }}{{ tojson . }}{{ end }}')`,
		triggerID)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO trigger_rules (trigger_id, rule_id) VALUES (?, ?)`,
		triggerID, ruleID)
	require.NoError(t, err)

	return int(triggerID)
}

func TestListNewJobSpecs(t *testing.T) {
	db := vigiltest.CreateTestDB(t)
	id := seedTrigger(t, db, "acme", "daily-prices", "price-watch")

	inv := NewSQLInventory(db)
	specs, err := inv.ListNewJobSpecs(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, specs, 1)
	spec := specs[0]
	assert.Equal(t, id, spec.ID)
	assert.Equal(t, "daily-prices", spec.Name)
	assert.Equal(t, "acme", spec.Customer)
	assert.Equal(t, "0 0 9 * * *", spec.Schedule)
	assert.Equal(t, rules.JobKindEmail, spec.Kind)
	require.NotNil(t, spec.Email)
	assert.Equal(t, "exec@acme.example", spec.Email.Address)

	require.Len(t, spec.Rules, 1)
	rule := spec.Rules[0]
	assert.Equal(t, "price-watch", rule.Name)
	assert.Equal(t, map[string]string{"inventory.in_stock": "yes"}, rule.Filters)
	assert.Equal(t, []string{"inventory.id", "inventory.price"}, rule.Fields)
	assert.Equal(t, []string{"inventory.id"}, rule.Keys)
	assert.True(t, rule.TriggerOnNew)
	assert.True(t, rule.TriggerOnChanged)
	assert.False(t, rule.TriggerOnRemoved)
	assert.Equal(t, rules.DataSourceLooker, rule.Datasource.Type)
	assert.Equal(t, "http://looker.test", rule.Datasource.URL)
	assert.Equal(t, "shop", rule.Datasource.Model)
}

func TestListNewJobSpecs_ExcludesRunning(t *testing.T) {
	db := vigiltest.CreateTestDB(t)
	first := seedTrigger(t, db, "acme", "daily-prices", "price-watch")
	second := seedTrigger(t, db, "acme", "weekly-stock", "stock-watch")

	inv := NewSQLInventory(db)

	specs, err := inv.ListNewJobSpecs(context.Background(), []int{first})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, second, specs[0].ID)

	specs, err = inv.ListNewJobSpecs(context.Background(), []int{first, second})
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestListNewJobSpecs_SkipsTriggersWithoutEmailAction(t *testing.T) {
	db := vigiltest.CreateTestDB(t)
	seedTrigger(t, db, "acme", "daily-prices", "price-watch")

	_, err := db.Exec(`INSERT INTO triggers (name, description, owner, schedule)
		VALUES ('actionless', '', (SELECT id FROM customers WHERE name = 'acme'), '0 0 9 * * *')`)
	require.NoError(t, err)

	inv := NewSQLInventory(db)
	specs, err := inv.ListNewJobSpecs(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, specs, 1)
	assert.Equal(t, "daily-prices", specs[0].Name)
}
