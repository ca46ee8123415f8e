package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoleIndexSplitAndRestore(t *testing.T) {
	idx := indexRoles([]Role{
		{ID: "managed", Position: 1, Managed: true},
		{ID: "b", Position: 5},
		{ID: "banned", Position: 2},
		{ID: "member", Position: 1},
	})

	kept, removed := idx.split([]string{"b", "managed", "banned", "b"}, "banned")
	require.Equal(t, []string{"managed"}, kept)
	require.Equal(t, []string{"b"}, removed)

	restored := idx.restore([]string{"b", "deleted", "managed"}, []string{"managed", "banned"}, "member")
	require.Equal(t, []string{"b", "managed", "member"}, restored)

	require.Equal(t, 5, idx.highest([]string{"member", "b", "unknown"}))
	require.Zero(t, idx.highest(nil))
}

func TestExpiry(t *testing.T) {
	require.True(t, Permanent().IsPermanent())
	_, ok := Permanent().Time()
	require.False(t, ok)
}
