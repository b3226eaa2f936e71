package oco

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTxID_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewTxID()
		assert.True(t, strings.HasPrefix(id, "oco-"), "txID must carry prefix: %s", id)
		assert.True(t, HasTxPrefix(BuildLabel(RoleEntry, id)))
		_, dup := seen[id]
		require.False(t, dup, "duplicate txID: %s", id)
		seen[id] = struct{}{}
	}
}

func TestLabel_RoundTrip(t *testing.T) {
	txID := NewTxID()
	for _, role := range []Role{RoleEntry, RoleSL, RoleTP} {
		label := BuildLabel(role, txID)

		gotRole, gotTx, ok := ParseLabel(label)
		require.True(t, ok, "label %s must parse", label)
		assert.Equal(t, role, gotRole)
		assert.Equal(t, txID, gotTx)
		assert.True(t, BelongsTo(label, txID))
	}
}

func TestParseLabel_Foreign(t *testing.T) {
	for _, label := range []string{
		"",
		"manual",
		"sl-",
		"sl-grid-123",       // чужой префикс
		"tp-oco",            // нет тела txID
		"entry-oco-1-abc",   // валидный
	} {
		_, _, ok := ParseLabel(label)
		if label == "entry-oco-1-abc" {
			assert.True(t, ok, label)
		} else {
			assert.False(t, ok, label)
		}
	}
}

func TestBelongsTo_OtherGroup(t *testing.T) {
	a, b := NewTxID(), NewTxID()
	assert.False(t, BelongsTo(BuildLabel(RoleSL, a), b))
}
