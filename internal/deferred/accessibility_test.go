package deferred

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nushift/nucore/internal/capspace"
)

func TestAccessibilityTreeSpaceFullRoundTrip(t *testing.T) {
	shmSpace := capspace.NewShmSpace()
	treeSpace := NewAccessibilityTreeSpace()

	_, present := treeSpace.Tree()
	assert.False(t, present)

	capID, err := treeSpace.NewAccessibilityTreeCap()
	require.NoError(t, err)

	want := AccessibilityTree{
		Surfaces: []Surface{
			{
				DisplayList: []DisplayItem{
					{Text: &Text{AABB: [2][]float64{{0, 0}, {10, 10}}, Text: "hello"}},
				},
			},
		},
	}
	payload, err := msgpack.Marshal(&want)
	require.NoError(t, err)
	inputID := newUserCap(t, shmSpace, payload)
	outputID := newUserCap(t, shmSpace, nil)

	require.NoError(t, treeSpace.PublishAccessibilityTreeBlocking(capID, inputID, outputID, shmSpace))
	require.True(t, treeSpace.PublishAccessibilityTreeDeferred(capID, shmSpace))

	got, present := treeSpace.Tree()
	require.True(t, present)
	assert.Equal(t, want, got)
}
