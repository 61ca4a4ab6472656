package deferred

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nushift/nucore/internal/capspace"
)

func TestTitleSpaceFullRoundTrip(t *testing.T) {
	shmSpace := capspace.NewShmSpace()
	titleSpace := NewTitleSpace()

	_, present := titleSpace.Title()
	assert.False(t, present)

	capID, err := titleSpace.NewTitleCap()
	require.NoError(t, err)

	payload, err := msgpack.Marshal("My Document.txt")
	require.NoError(t, err)
	inputID := newUserCap(t, shmSpace, payload)
	outputID := newUserCap(t, shmSpace, nil)

	require.NoError(t, titleSpace.PublishTitleBlocking(capID, inputID, outputID, shmSpace))
	require.True(t, titleSpace.PublishTitleDeferred(capID, shmSpace))

	title, present := titleSpace.Title()
	require.True(t, present)
	assert.Equal(t, "My Document.txt", title)

	require.NoError(t, titleSpace.DestroyTitleCap(capID))
	assert.False(t, titleSpace.deferred.ContainsKey(capID))
}

func TestTitleSpaceDestroyUnknownCapErrors(t *testing.T) {
	titleSpace := NewTitleSpace()
	err := titleSpace.DestroyTitleCap(123)
	require.Error(t, err)
}
