package rules

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vigiltest "github.com/vigilhq/vigil/internal/testing"
)

func TestStateStore_Roundtrip(t *testing.T) {
	db := vigiltest.CreateTestDB(t)
	seedInventory(t, db, false)
	store := NewStateStore(db)
	ctx := context.Background()

	key := NewStatusKey(testCustomer, testRule, map[string]string{testField1: "7"})
	statuses := map[StatusKey]Status{
		key: {
			Values:   map[string]string{testField1: "7", testField2: "42"},
			Observed: time.Now(),
		},
	}

	require.NoError(t, store.UpsertStates(ctx, testCustomer, statuses))

	loaded, err := store.GetStates(ctx, testCustomer, []string{testRule})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, statuses[key].Values, loaded[key].Values)

	// Overwrite on conflict
	statuses[key] = Status{
		Values:   map[string]string{testField1: "7", testField2: "43"},
		Observed: time.Now(),
	}
	require.NoError(t, store.UpsertStates(ctx, testCustomer, statuses))

	loaded, err = store.GetStates(ctx, testCustomer, []string{testRule})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "43", loaded[key].Values[testField2])
}

func TestStateStore_GetStatesScopedToRuleSet(t *testing.T) {
	db := vigiltest.CreateTestDB(t)
	seedInventory(t, db, true)
	store := NewStateStore(db)

	loaded, err := store.GetStates(context.Background(), testCustomer, []string{"some_other_rule"})
	require.NoError(t, err)
	assert.Empty(t, loaded)

	loaded, err = store.GetStates(context.Background(), testCustomer, nil)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestStateStore_DeleteStates(t *testing.T) {
	db := vigiltest.CreateTestDB(t)
	seedInventory(t, db, true)
	store := NewStateStore(db)
	ctx := context.Background()

	key := NewStatusKey(testCustomer, testRule, map[string]string{testField1: testKeyValue})
	require.NoError(t, store.DeleteStates(ctx, []StatusKey{key}))

	loaded, err := store.GetStates(ctx, testCustomer, []string{testRule})
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestStateStore_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT rules.name").WillReturnError(assert.AnError)

	store := NewStateStore(db)
	_, err = store.GetStates(context.Background(), testCustomer, []string{testRule})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query rule states")
}
