package embedded_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raftlab/raftkit/embedded"
	"github.com/raftlab/raftkit/raft"
)

func TestNodeCollection_RejectsPushPastCapacity(t *testing.T) {
	c := embedded.NewNodeCollection(2)

	require.NoError(t, c.Push(1))
	require.NoError(t, c.Push(2))
	err := c.Push(3)

	require.ErrorIs(t, err, raft.ErrCollectionFull)
	require.Equal(t, 2, c.Len())
	require.Equal(t, []raft.NodeId{1, 2}, c.Nodes())
}

func TestNodeCollection_ClearFreesCapacity(t *testing.T) {
	c := embedded.NewNodeCollection(1)
	require.NoError(t, c.Push(1))
	require.Error(t, c.Push(2))

	c.Clear()
	require.True(t, c.IsEmpty())
	require.NoError(t, c.Push(2))
}

func TestMapCollection_RejectsNewKeyPastCapacity(t *testing.T) {
	m := embedded.NewMapCollection(2)

	require.NoError(t, m.Set(1, 10))
	require.NoError(t, m.Set(2, 20))
	err := m.Set(3, 30)

	require.ErrorIs(t, err, raft.ErrCollectionFull)
	require.Equal(t, 2, m.Len())
}

func TestMapCollection_UpdatingExistingKeyNeverFails(t *testing.T) {
	m := embedded.NewMapCollection(1)
	require.NoError(t, m.Set(1, 10))

	require.NoError(t, m.Set(1, 99))
	v, ok := m.Get(1)
	require.True(t, ok)
	require.Equal(t, uint64(99), v)
}
