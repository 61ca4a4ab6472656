package deferred

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nushift/nucore/internal/capspace"
)

type fakeTabContext struct {
	outputs       []Output
	titles        []string
	trees         []AccessibilityTree
	presented     [][]byte
	presentFormat []PresentBufferFormat
}

func (f *fakeTabContext) SetTitle(title string) error {
	f.titles = append(f.titles, title)
	return nil
}

func (f *fakeTabContext) PublishAccessibilityTree(tree AccessibilityTree) error {
	f.trees = append(f.trees, tree)
	return nil
}

func (f *fakeTabContext) PresentFrame(format PresentBufferFormat, buffer []byte) error {
	f.presentFormat = append(f.presentFormat, format)
	f.presented = append(f.presented, buffer)
	return nil
}

func (f *fakeTabContext) Outputs() []Output {
	return f.outputs
}

func TestGfxSpaceGetOutputsRoundTrip(t *testing.T) {
	shmSpace := capspace.NewShmSpace()
	tab := &fakeTabContext{outputs: []Output{{Width: 1920, Height: 1080}}}
	gfxSpace := NewGfxSpace(tab)

	capID, err := gfxSpace.NewGfxCap()
	require.NoError(t, err)

	outputID := newUserCap(t, shmSpace, nil)
	require.NoError(t, gfxSpace.GetOutputsBlocking(capID, outputID, shmSpace))
	require.True(t, gfxSpace.GetOutputsDeferred(capID, shmSpace))

	outputCap, err := shmSpace.GetShmCapUser(outputID)
	require.NoError(t, err)
	var out DeferredOutput[[]Output]
	require.NoError(t, msgpack.Unmarshal(outputCap.Backing().Snapshot(), &out))
	require.NotNil(t, out.Success)
	assert.Equal(t, tab.outputs, *out.Success)

	require.NoError(t, gfxSpace.DestroyGfxCap(capID))
}

func TestGfxSpaceCpuPresentRoundTrip(t *testing.T) {
	shmSpace := capspace.NewShmSpace()
	tab := &fakeTabContext{}
	gfxSpace := NewGfxSpace(tab)

	capID, err := gfxSpace.NewGfxCpuPresentBufferCap(R8g8b8UintSrgb)
	require.NoError(t, err)

	frame := []byte{1, 2, 3, 4, 5, 6}
	payload, err := msgpack.Marshal(frame)
	require.NoError(t, err)
	inputID := newUserCap(t, shmSpace, payload)
	outputID := newUserCap(t, shmSpace, nil)

	require.NoError(t, gfxSpace.CpuPresentBlocking(capID, inputID, outputID, shmSpace))
	require.True(t, gfxSpace.CpuPresentDeferred(capID, shmSpace))

	require.Len(t, tab.presented, 1)
	assert.Equal(t, frame, tab.presented[0])
	assert.Equal(t, R8g8b8UintSrgb, tab.presentFormat[0])

	require.NoError(t, gfxSpace.DestroyGfxCpuPresentBufferCap(capID))
	_, tracked := gfxSpace.cpuPresent.formats[capID]
	assert.False(t, tracked)
}
