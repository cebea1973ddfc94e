package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusKey_StructuralEquality(t *testing.T) {
	a := NewStatusKey("cust", "rule", map[string]string{"id": "1", "region": "eu"})
	b := NewStatusKey("cust", "rule", map[string]string{"region": "eu", "id": "1"})

	// Equal maps canonicalize identically regardless of insertion order
	assert.Equal(t, a, b)

	c := NewStatusKey("cust", "rule", map[string]string{"id": "2", "region": "eu"})
	assert.NotEqual(t, a, c)
}

func TestStatusKey_KeyValueMap(t *testing.T) {
	key := NewStatusKey("cust", "rule", map[string]string{"id": "1"})
	assert.Equal(t, map[string]string{"id": "1"}, key.KeyValueMap())
}

func TestStatus_Equal(t *testing.T) {
	a := Status{Values: map[string]string{"id": "1", "price": "100"}}
	b := Status{Values: map[string]string{"price": "100", "id": "1"}}
	c := Status{Values: map[string]string{"id": "1", "price": "120"}}
	d := Status{Values: map[string]string{"id": "1"}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}

func TestSubsetValues(t *testing.T) {
	row := map[string]string{"id": "1", "price": "100", "name": "widget"}
	assert.Equal(t, map[string]string{"id": "1"}, subsetValues(row, []string{"id"}))
	assert.Equal(t, map[string]string{}, subsetValues(row, []string{"missing"}))
}
