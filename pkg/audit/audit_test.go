package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	before := map[string]any{"status": "ACTIVE", "name": "ksn-1", "url": "http://a"}
	after := map[string]any{"status": "INACTIVE", "name": "ksn-1", "region": "eu"}

	diff := Diff(before, after)

	assert.Equal(t, FieldChange{Before: "ACTIVE", After: "INACTIVE"}, diff["status"])
	assert.Equal(t, FieldChange{Before: "http://a", After: nil}, diff["url"])
	assert.Equal(t, FieldChange{Before: nil, After: "eu"}, diff["region"])
	assert.NotContains(t, diff, "name")
}

func TestDiff_NoChanges(t *testing.T) {
	fields := map[string]any{"status": "ACTIVE"}
	assert.Nil(t, Diff(fields, fields))
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord("key_share_node", "node-1", "deactivate", nil)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "key_share_node", rec.Entity)
	assert.Equal(t, "deactivate", rec.Action)
	assert.False(t, rec.At.IsZero())
}
