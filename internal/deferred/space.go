// Package deferred implements the publish/get two-phase protocol guest
// syscalls use to hand work (title updates, accessibility trees, graphics
// presents) to the host in a deferred, non-blocking way: a syscall releases
// an input SHM cap and gets back a cap id immediately ("blocking" phase);
// later, off the syscall path, the host decodes the input and calls back
// into the relevant domain handler ("deferred" phase), writing a result or
// error envelope into an output cap.
//
// Grounded on original_source/nushift-core/src/deferred_space/mod.rs.
package deferred

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nushift/nucore/internal/capspace"
	"github.com/nushift/nucore/internal/idpool"
)

// OwnedShmIDAndCap pairs a cap id with the *capspace.ShmCap it names, the
// concrete shape of the (ShmCapId, ShmCap) tuple deferred_space/mod.rs moves
// in and out of ShmSpace's registry. Go has no anonymous-tuple moves, so the
// pair is named explicitly.
type OwnedShmIDAndCap struct {
	ID  capspace.ShmCapID
	Cap *capspace.ShmCap
}

// DeferredSpaceError mirrors DeferredSpaceError in deferred_space/mod.rs.
type DeferredSpaceError struct {
	Kind    DeferredSpaceErrorKind
	Context string
	CapID   capspace.ShmCapID
	Err     error
}

func (e *DeferredSpaceError) Error() string {
	switch e.Kind {
	case ErrKindDuplicateID:
		return "the new pool ID was already present in the space; this indicates a bug"
	case ErrKindExhausted:
		return fmt.Sprintf("the maximum amount of %s capabilities have been used for this app", e.Context)
	case ErrKindCapNotFound:
		return fmt.Sprintf("the %s cap with ID %d was not found", e.Context, e.CapID)
	case ErrKindInProgress:
		return fmt.Sprintf("another %s is currently being processed", e.Context)
	case ErrKindShmCapNotFound:
		return fmt.Sprintf("the SHM cap with ID %d was not found", e.CapID)
	case ErrKindShmPermissionDenied:
		return fmt.Sprintf("the SHM cap with ID %d is not allowed to be used as an input/output cap", e.CapID)
	case ErrKindGetOrPublishInternal:
		return "internal error: get/publish prologue found no available cap"
	default:
		return fmt.Sprintf("deferred space internal error: %v", e.Err)
	}
}

func (e *DeferredSpaceError) Unwrap() error { return e.Err }

type DeferredSpaceErrorKind int

const (
	ErrKindDuplicateID DeferredSpaceErrorKind = iota
	ErrKindExhausted
	ErrKindCapNotFound
	ErrKindInProgress
	ErrKindShmCapNotFound
	ErrKindShmPermissionDenied
	ErrKindShmSpaceInternal
	ErrKindGetOrPublishInternal
)

// DeferredError is the wire error code written into an output cap's
// envelope, mirroring deferred_space/mod.rs's DeferredError enum.
type DeferredError uint64

const (
	DeserializeError DeferredError = iota
	DeserializeRonError
	SubmitFailed
	ExtraInfoNoLongerPresent
	SerializeError
)

// DeferredOutput is the tagged success/error envelope written into an
// output cap's backing via msgpack, mirroring DeferredOutput<T>.
type DeferredOutput[T any] struct {
	Success *T                        `msgpack:"success,omitempty"`
	Error   *DeferredErrorWithMessage `msgpack:"error,omitempty"`
}

type DeferredErrorWithMessage struct {
	DeferredError DeferredError `msgpack:"deferred_error"`
	Message       string        `msgpack:"message"`
}

// inProgressCap tracks the pair of caps moved out of the SHM space while a
// publish or get is being processed. Input is nil for a get (there's no
// input payload to consume).
type inProgressCap struct {
	input  *OwnedShmIDAndCap
	output OwnedShmIDAndCap
}

// DefaultDeferredCap is one domain capability's publish/get state machine.
type DefaultDeferredCap struct {
	inProgress *inProgressCap
}

func newDefaultDeferredCap() *DefaultDeferredCap {
	return &DefaultDeferredCap{}
}

// DefaultDeferredSpace is the id-pool-backed registry of DefaultDeferredCaps
// shared by every publish/get-shaped domain (title, accessibility tree,
// gfx). Reused by composition rather than generics, matching the original's
// own comment that it composes DefaultDeferredSpace into domain types
// rather than parameterizing over it.
type DefaultDeferredSpace struct {
	idPool *idpool.ManualPool
	space  map[DefaultDeferredSpaceCapID]*DefaultDeferredCap
}

// DefaultDeferredSpaceCapID identifies a cap within a DefaultDeferredSpace.
type DefaultDeferredSpaceCapID = uint64

func NewDefaultDeferredSpace() *DefaultDeferredSpace {
	return &DefaultDeferredSpace{
		idPool: idpool.NewManualPool(),
		space:  make(map[DefaultDeferredSpaceCapID]*DefaultDeferredCap),
	}
}

// NewCap allocates a fresh domain cap. context names the domain for error
// messages (e.g. "title", "accessibility tree", "gfx").
func (s *DefaultDeferredSpace) NewCap(context string) (DefaultDeferredSpaceCapID, error) {
	id, err := s.idPool.TryAllocate()
	if err != nil {
		return 0, &DeferredSpaceError{Kind: ErrKindExhausted, Context: context}
	}
	capID := uint64(id)
	if _, exists := s.space[capID]; exists {
		return 0, &DeferredSpaceError{Kind: ErrKindDuplicateID}
	}
	s.space[capID] = newDefaultDeferredCap()
	return capID, nil
}

func (s *DefaultDeferredSpace) getMut(capID DefaultDeferredSpaceCapID) (*DefaultDeferredCap, bool) {
	cap, ok := s.space[capID]
	return cap, ok
}

func (s *DefaultDeferredSpace) ContainsKey(capID DefaultDeferredSpaceCapID) bool {
	_, ok := s.space[capID]
	return ok
}

// DestroyCap frees capID. It does not currently guard against destroying a
// cap with an in-progress task: deferred_space/mod.rs carries this exact
// gap as an un-actioned TODO, and spec.md leaves it as a genuine open
// question rather than instructing a fix, so it's carried here too.
//
// TODO: should not be allowed to destroy a cap while it is in progress, or
// the destroy should itself be deferred until the task finishes. All
// deferred tasks should probably be executed on app shutdown too.
func (s *DefaultDeferredSpace) DestroyCap(context string, capID DefaultDeferredSpaceCapID) error {
	if !s.ContainsKey(capID) {
		return &DeferredSpaceError{Kind: ErrKindCapNotFound, Context: context, CapID: capID}
	}
	delete(s.space, capID)
	s.idPool.Release(idpool.ID(capID))
	return nil
}

// shmSpace is the subset of *capspace.ShmSpace this package depends on,
// accepted as an interface so deferred can be tested without a full
// capspace.ShmSpace.
type shmSpace interface {
	ShmCapExists(capspace.ShmCapID) bool
	ReleaseShmCapApp(capspace.ShmCapID) error
	MoveShmCapToOtherSpace(capspace.ShmCapID) (*capspace.ShmCap, bool)
	MoveShmCapBackIntoSpace(capspace.ShmCapID, *capspace.ShmCap)
}

// PublishBlocking releases inputShmCapID and outputShmCapID (both already
// allocated and acquired by the guest via separate ShmNew calls) and stages
// them for deferred processing under capID. Grounded on
// DefaultDeferredSpace::publish_blocking / get_or_publish_blocking in
// deferred_space/mod.rs — note that, unlike the older flat deferred_space.rs
// file, this newer version never allocates the output cap itself; the
// caller supplies both cap ids up front.
func (s *DefaultDeferredSpace) PublishBlocking(context string, capID DefaultDeferredSpaceCapID, inputShmCapID, outputShmCapID capspace.ShmCapID, space shmSpace) error {
	return s.getOrPublishBlocking(context, capID, &inputShmCapID, outputShmCapID, space)
}

// GetBlocking stages outputShmCapID for deferred processing under capID,
// with no input payload.
func (s *DefaultDeferredSpace) GetBlocking(context string, capID DefaultDeferredSpaceCapID, outputShmCapID capspace.ShmCapID, space shmSpace) error {
	return s.getOrPublishBlocking(context, capID, nil, outputShmCapID, space)
}

// getOrPublishBlocking is the common implementation. The original carries
// an explicit TODO that partial failure mid-sequence is not rolled back;
// this does not implement a general rollback either (once a cap's
// acquisition is released, nothing here remembers the flags it was
// acquired with, so a faithful re-acquire is not possible from this
// function alone). Instead it removes the one guest-reachable way
// partial failure used to happen: both shm cap ids are validated to
// exist, with no side effect, before either one is released, so a stale
// or already-destroyed output cap id can no longer cause the input cap's
// acquisition to be released out from under it. The only remaining
// failure modes inside the release/move sequence below are internal
// state-machine bugs (registry and acquisition tracking disagreeing),
// not conditions a guest can trigger.
func (s *DefaultDeferredSpace) getOrPublishBlocking(context string, capID DefaultDeferredSpaceCapID, inputShmCapID *capspace.ShmCapID, outputShmCapID capspace.ShmCapID, space shmSpace) error {
	cap, ok := s.getMut(capID)
	if !ok {
		return &DeferredSpaceError{Kind: ErrKindCapNotFound, Context: context, CapID: capID}
	}
	if cap.inProgress != nil {
		return &DeferredSpaceError{Kind: ErrKindInProgress, Context: context}
	}

	if inputShmCapID != nil && !space.ShmCapExists(*inputShmCapID) {
		return &DeferredSpaceError{Kind: ErrKindShmCapNotFound, CapID: *inputShmCapID}
	}
	if !space.ShmCapExists(outputShmCapID) {
		return &DeferredSpaceError{Kind: ErrKindShmCapNotFound, CapID: outputShmCapID}
	}

	if inputShmCapID != nil {
		if err := space.ReleaseShmCapApp(*inputShmCapID); err != nil {
			return &DeferredSpaceError{Kind: ErrKindShmCapNotFound, CapID: *inputShmCapID, Err: err}
		}
	}
	if err := space.ReleaseShmCapApp(outputShmCapID); err != nil {
		return &DeferredSpaceError{Kind: ErrKindShmCapNotFound, CapID: outputShmCapID, Err: err}
	}

	var input *OwnedShmIDAndCap
	if inputShmCapID != nil {
		inputCap, ok := space.MoveShmCapToOtherSpace(*inputShmCapID)
		if !ok {
			return &DeferredSpaceError{Kind: ErrKindGetOrPublishInternal}
		}
		input = &OwnedShmIDAndCap{ID: *inputShmCapID, Cap: inputCap}
	}

	outputCap, ok := space.MoveShmCapToOtherSpace(outputShmCapID)
	if !ok {
		if input != nil {
			space.MoveShmCapBackIntoSpace(input.ID, input.Cap)
		}
		return &DeferredSpaceError{Kind: ErrKindGetOrPublishInternal}
	}

	cap.inProgress = &inProgressCap{
		input:  input,
		output: OwnedShmIDAndCap{ID: outputShmCapID, Cap: outputCap},
	}
	return nil
}

type prologueResult int

const (
	prologueReturnOK prologueResult = iota
	prologueReturnErr
	prologueContinuePublish
	prologueContinueGet
)

func (s *DefaultDeferredSpace) prologue(capID DefaultDeferredSpaceCapID) (prologueResult, *capspace.ShmCap, *capspace.ShmCap) {
	cap, ok := s.getMut(capID)
	if !ok {
		// Cap was destroyed after processing started; that's valid, do nothing.
		return prologueReturnOK, nil, nil
	}
	if cap.inProgress == nil {
		return prologueReturnErr, nil, nil
	}
	if cap.inProgress.input != nil {
		return prologueContinuePublish, cap.inProgress.input.Cap, cap.inProgress.output.Cap
	}
	return prologueContinueGet, nil, cap.inProgress.output.Cap
}

func (s *DefaultDeferredSpace) epilogue(capID DefaultDeferredSpaceCapID, space shmSpace) error {
	cap, ok := s.getMut(capID)
	if !ok {
		return errors.New("deferred: internal error, cap vanished mid-epilogue")
	}
	inProgress := cap.inProgress
	cap.inProgress = nil
	if inProgress == nil {
		return errors.New("deferred: internal error, no in-progress cap at epilogue")
	}
	if inProgress.input != nil {
		space.MoveShmCapBackIntoSpace(inProgress.input.ID, inProgress.input.Cap)
	}
	space.MoveShmCapBackIntoSpace(inProgress.output.ID, inProgress.output.Cap)
	return nil
}

// DeferredSpacePublish is implemented by each publish-shaped domain handler
// (title, accessibility tree). Payload is msgpack-decoded from the input
// cap's backing before being handed to PublishCapPayload.
type DeferredSpacePublish[P any] interface {
	PublishCapPayload(payload P, outputShmCap *capspace.ShmCap, capID DefaultDeferredSpaceCapID)
}

// DeferredSpaceGet is implemented by each get-shaped domain handler (gfx).
type DeferredSpaceGet interface {
	Get(outputShmCap *capspace.ShmCap)
}

// PublishDeferred runs the host-side half of a publish: decode the input
// cap's payload, hand it to handler, move both caps back into space. The
// bool return is only false for an internal error (the output cap
// genuinely went missing); every other failure is reported through the
// output cap's envelope instead.
func PublishDeferred[P any](s *DefaultDeferredSpace, handler DeferredSpacePublish[P], capID DefaultDeferredSpaceCapID, space shmSpace) bool {
	result, inputCap, outputCap := s.prologue(capID)
	switch result {
	case prologueReturnOK:
		return true
	case prologueReturnErr:
		return false
	case prologueContinueGet:
		return false // internal error: must have started with a publish
	}

	var payload P
	if err := msgpack.Unmarshal(inputCap.Backing().Snapshot(), &payload); err != nil {
		log.Debug().Err(err).Msg("deferred: msgpack decode error")
		PrintError(outputCap, DeserializeError, err)
	} else {
		handler.PublishCapPayload(payload, outputCap, capID)
	}

	return s.epilogue(capID, space) == nil
}

// GetDeferred runs the host-side half of a get: hand the output cap
// straight to handler, move it back into space.
func GetDeferred(s *DefaultDeferredSpace, handler DeferredSpaceGet, capID DefaultDeferredSpaceCapID, space shmSpace) bool {
	result, _, outputCap := s.prologue(capID)
	switch result {
	case prologueReturnOK:
		return true
	case prologueReturnErr:
		return false
	case prologueContinuePublish:
		return false // internal error: must have started with a get
	}

	handler.Get(outputCap)

	return s.epilogue(capID, space) == nil
}

// PrintSuccess writes a success envelope into outputShmCap's backing.
func PrintSuccess[T any](outputShmCap *capspace.ShmCap, payload T) {
	output := DeferredOutput[T]{Success: &payload}
	encoded, err := msgpack.Marshal(&output)
	if err != nil {
		log.Debug().Err(err).Msg("deferred: msgpack encode error")
		PrintError(outputShmCap, SerializeError, err)
		return
	}
	writeEnvelope(outputShmCap, encoded)
}

// PrintError writes an error envelope into outputShmCap's backing. If the
// encoded envelope doesn't fit, nothing is written, matching the original's
// documented best-effort behavior.
func PrintError(outputShmCap *capspace.ShmCap, deferredError DeferredError, cause error) {
	output := DeferredOutput[struct{}]{
		Error: &DeferredErrorWithMessage{DeferredError: deferredError, Message: cause.Error()},
	}
	encoded, err := msgpack.Marshal(&output)
	if err != nil {
		return
	}
	writeEnvelope(outputShmCap, encoded)
}

func writeEnvelope(outputShmCap *capspace.ShmCap, encoded []byte) {
	if uint64(len(encoded)) > outputShmCap.Backing().Len() {
		return
	}
	outputShmCap.Backing().WriteAt(encoded, 0)
}
