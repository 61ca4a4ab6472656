package deferred

import "github.com/nushift/nucore/internal/capspace"

// TitleCapID identifies a title cap within a TitleSpace.
type TitleCapID = uint64

const titleContext = "title"

// TitleSpace is the publish-shaped domain handler for a tab's title:
// guest code publishes a UTF-8 string, the host decodes it and remembers
// the most recent one. Grounded on title_space.rs.
type TitleSpace struct {
	deferred *DefaultDeferredSpace
	title    *string
}

func NewTitleSpace() *TitleSpace {
	return &TitleSpace{deferred: NewDefaultDeferredSpace()}
}

// Title returns the most recently published title, if any.
func (s *TitleSpace) Title() (string, bool) {
	if s.title == nil {
		return "", false
	}
	return *s.title, true
}

func (s *TitleSpace) NewTitleCap() (TitleCapID, error) {
	return s.deferred.NewCap(titleContext)
}

func (s *TitleSpace) PublishTitleBlocking(titleCapID TitleCapID, inputShmCapID, outputShmCapID capspace.ShmCapID, space shmSpace) error {
	return s.deferred.PublishBlocking(titleContext, titleCapID, inputShmCapID, outputShmCapID, space)
}

func (s *TitleSpace) PublishTitleDeferred(titleCapID TitleCapID, space shmSpace) bool {
	return PublishDeferred[string](s.deferred, s, titleCapID, space)
}

func (s *TitleSpace) DestroyTitleCap(titleCapID TitleCapID) error {
	return s.deferred.DestroyCap(titleContext, titleCapID)
}

// PublishCapPayload implements DeferredSpacePublish[string].
func (s *TitleSpace) PublishCapPayload(payload string, outputShmCap *capspace.ShmCap, _ DefaultDeferredSpaceCapID) {
	title := payload
	s.title = &title
	PrintSuccess(outputShmCap, struct{}{})
}
