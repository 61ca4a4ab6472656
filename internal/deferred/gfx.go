package deferred

import (
	"errors"

	"github.com/nushift/nucore/internal/capspace"
)

// GfxCapID identifies a gfx cap (the guest's handle for querying outputs).
type GfxCapID = uint64

// GfxCpuPresentBufferCapID identifies a cap for one CPU-rendered present.
type GfxCpuPresentBufferCapID = uint64

const gfxContext = "gfx"
const gfxCpuPresentContext = "gfx cpu present buffer"

// PresentBufferFormat names the pixel layout of a CPU present buffer.
type PresentBufferFormat uint64

const (
	R8g8b8UintSrgb PresentBufferFormat = 0
)

// Output describes one display surface a tab is rendered on, the Go shape
// of hypervisor/tab.rs's Output. Only the fields the gfx domain round-trips
// are carried; the original's MutexGuard-held Output is host-side state this
// module never mutates.
type Output struct {
	Width  uint32 `msgpack:"width"`
	Height uint32 `msgpack:"height"`
}

// TabContext is the host-side sink/source a tab exposes to its deferred
// domain handlers: SetTitle/PublishAccessibilityTree/PresentFrame mirror
// hypervisor/tab_context.rs's send_hypervisor_event (TitleChange and
// GfxCpuPresent, plus an accessibility-tree variant that file's
// HypervisorEvent enum doesn't have but spec.md's naming of
// PublishAccessibilityTree supplements in); Outputs mirrors that file's
// get_outputs.
type TabContext interface {
	SetTitle(title string) error
	PublishAccessibilityTree(tree AccessibilityTree) error
	PresentFrame(format PresentBufferFormat, buffer []byte) error
	Outputs() []Output
}

// gfxGetOutputs implements DeferredSpaceGet, querying the tab's current
// outputs through TabContext and msgpack-encoding them into the output cap.
// Grounded on gfx_space.rs's GfxGetOutputs.
type gfxGetOutputs struct {
	tabContext TabContext
}

func (g *gfxGetOutputs) Get(outputShmCap *capspace.ShmCap) {
	PrintSuccess(outputShmCap, g.tabContext.Outputs())
}

// cpuPresentBufferFormat pairs a scheduled present with the format it was
// declared under; DefaultDeferredSpace itself carries no per-cap payload
// outside of the input/output caps, so the format is tracked alongside it.
type cpuPresentBufferFormat struct {
	format PresentBufferFormat
}

// gfxCpuPresent implements DeferredSpacePublish[[]byte], handed the raw
// present buffer bytes and writing them out through TabContext.PresentFrame.
type gfxCpuPresent struct {
	tabContext TabContext
	formats    map[GfxCpuPresentBufferCapID]cpuPresentBufferFormat
}

func (g *gfxCpuPresent) PublishCapPayload(payload []byte, outputShmCap *capspace.ShmCap, capID DefaultDeferredSpaceCapID) {
	entry, ok := g.formats[capID]
	if !ok {
		PrintError(outputShmCap, SubmitFailed, errGfxFormatVanished)
		return
	}
	if err := g.tabContext.PresentFrame(entry.format, payload); err != nil {
		PrintError(outputShmCap, SubmitFailed, err)
		return
	}
	PrintSuccess(outputShmCap, struct{}{})
}

var errGfxFormatVanished = errors.New("gfx: present buffer format no longer tracked for this cap")

// GfxSpace is the publish/get-shaped domain handler for a tab's graphics:
// querying available outputs (get-shaped) and submitting CPU-rendered
// frames for presentation (publish-shaped). Grounded on gfx_space.rs.
//
// The original leaves new_gfx_cpu_present_buffer_cap/cpu_present_blocking/
// cpu_present_deferred/destroy_gfx_cpu_present_buffer_cap as todo!() stubs;
// since spec.md names a GfxPresent task explicitly (see Task in
// appglobal.go) this fills them in for real, following the same
// publish/deferred shape TitleSpace uses.
type GfxSpace struct {
	rootDeferredSpace             *DefaultDeferredSpace
	cpuPresentBufferDeferredSpace *DefaultDeferredSpace
	getOutputs                    *gfxGetOutputs
	cpuPresent                    *gfxCpuPresent
}

func NewGfxSpace(tabContext TabContext) *GfxSpace {
	return &GfxSpace{
		rootDeferredSpace:             NewDefaultDeferredSpace(),
		cpuPresentBufferDeferredSpace: NewDefaultDeferredSpace(),
		getOutputs:                    &gfxGetOutputs{tabContext: tabContext},
		cpuPresent: &gfxCpuPresent{
			tabContext: tabContext,
			formats:    make(map[GfxCpuPresentBufferCapID]cpuPresentBufferFormat),
		},
	}
}

func (s *GfxSpace) NewGfxCap() (GfxCapID, error) {
	return s.rootDeferredSpace.NewCap(gfxContext)
}

func (s *GfxSpace) GetOutputsBlocking(gfxCapID GfxCapID, outputShmCapID capspace.ShmCapID, space shmSpace) error {
	return s.rootDeferredSpace.GetBlocking(gfxContext, gfxCapID, outputShmCapID, space)
}

func (s *GfxSpace) GetOutputsDeferred(gfxCapID GfxCapID, space shmSpace) bool {
	return GetDeferred(s.rootDeferredSpace, s.getOutputs, gfxCapID, space)
}

func (s *GfxSpace) DestroyGfxCap(gfxCapID GfxCapID) error {
	return s.rootDeferredSpace.DestroyCap(gfxContext, gfxCapID)
}

func (s *GfxSpace) NewGfxCpuPresentBufferCap(format PresentBufferFormat) (GfxCpuPresentBufferCapID, error) {
	capID, err := s.cpuPresentBufferDeferredSpace.NewCap(gfxCpuPresentContext)
	if err != nil {
		return 0, err
	}
	s.cpuPresent.formats[capID] = cpuPresentBufferFormat{format: format}
	return capID, nil
}

func (s *GfxSpace) CpuPresentBlocking(capID GfxCpuPresentBufferCapID, inputShmCapID, outputShmCapID capspace.ShmCapID, space shmSpace) error {
	return s.cpuPresentBufferDeferredSpace.PublishBlocking(gfxCpuPresentContext, capID, inputShmCapID, outputShmCapID, space)
}

func (s *GfxSpace) CpuPresentDeferred(capID GfxCpuPresentBufferCapID, space shmSpace) bool {
	return PublishDeferred[[]byte](s.cpuPresentBufferDeferredSpace, s.cpuPresent, capID, space)
}

func (s *GfxSpace) DestroyGfxCpuPresentBufferCap(capID GfxCpuPresentBufferCapID) error {
	delete(s.cpuPresent.formats, capID)
	return s.cpuPresentBufferDeferredSpace.DestroyCap(gfxCpuPresentContext, capID)
}
