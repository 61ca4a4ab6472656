package deferred

import "github.com/nushift/nucore/internal/capspace"

// AccessibilityTreeCapID identifies an accessibility tree cap.
type AccessibilityTreeCapID = uint64

const accessibilityTreeContext = "accessibility tree"

// AccessibilityTree is the domain payload a publish carries, grounded on
// accessibility_tree_space/accessibility_tree.rs.
type AccessibilityTree struct {
	Surfaces []Surface `msgpack:"surfaces"`
}

type Surface struct {
	DisplayList []DisplayItem `msgpack:"display_list"`
}

// DisplayItem is a tagged union with a single variant so far (Text),
// modeled with the nil-discriminant pattern used throughout this module.
type DisplayItem struct {
	Text *Text `msgpack:"text,omitempty"`
}

type Text struct {
	// AABB is [min, max] points, each a variable-length coordinate vector,
	// matching the original's (Vec<f64>, Vec<f64>) tuple.
	AABB [2][]float64 `msgpack:"aabb"`
	Text string       `msgpack:"text"`
}

// AccessibilityTreeSpace is the publish-shaped domain handler for a tab's
// accessibility tree. Grounded on accessibility_tree_space/mod.rs, rebuilt
// on top of DefaultDeferredSpace to match the newer title_space.rs/
// gfx_space.rs composition style rather than that file's own inlined
// publish/get state machine.
type AccessibilityTreeSpace struct {
	deferred *DefaultDeferredSpace
	tree     *AccessibilityTree
}

func NewAccessibilityTreeSpace() *AccessibilityTreeSpace {
	return &AccessibilityTreeSpace{deferred: NewDefaultDeferredSpace()}
}

func (s *AccessibilityTreeSpace) Tree() (AccessibilityTree, bool) {
	if s.tree == nil {
		return AccessibilityTree{}, false
	}
	return *s.tree, true
}

func (s *AccessibilityTreeSpace) NewAccessibilityTreeCap() (AccessibilityTreeCapID, error) {
	return s.deferred.NewCap(accessibilityTreeContext)
}

func (s *AccessibilityTreeSpace) PublishAccessibilityTreeBlocking(capID AccessibilityTreeCapID, inputShmCapID, outputShmCapID capspace.ShmCapID, space shmSpace) error {
	return s.deferred.PublishBlocking(accessibilityTreeContext, capID, inputShmCapID, outputShmCapID, space)
}

func (s *AccessibilityTreeSpace) PublishAccessibilityTreeDeferred(capID AccessibilityTreeCapID, space shmSpace) bool {
	return PublishDeferred[AccessibilityTree](s.deferred, s, capID, space)
}

func (s *AccessibilityTreeSpace) DestroyAccessibilityTreeCap(capID AccessibilityTreeCapID) error {
	return s.deferred.DestroyCap(accessibilityTreeContext, capID)
}

// PublishCapPayload implements DeferredSpacePublish[AccessibilityTree].
func (s *AccessibilityTreeSpace) PublishCapPayload(payload AccessibilityTree, outputShmCap *capspace.ShmCap, _ DefaultDeferredSpaceCapID) {
	tree := payload
	s.tree = &tree
	PrintSuccess(outputShmCap, struct{}{})
}
