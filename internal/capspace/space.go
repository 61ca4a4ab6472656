package capspace

import (
	"errors"

	"github.com/nushift/nucore/internal/idpool"
)

var (
	ErrDuplicateID                    = errors.New("capspace: new cap ID was already present in the space (bug)")
	ErrExhausted                      = errors.New("capspace: maximum number of SHM capabilities in use")
	ErrCapacityNotAvailable           = errors.New("capspace: not enough available Sv39 capacity for this length/type")
	ErrDestroyingCurrentlyAcquiredCap = errors.New("capspace: cannot destroy a currently acquired cap, release it first")
	ErrCapNotFound                    = errors.New("capspace: cap not found")
	ErrPermissionDeniedForCapKind     = errors.New("capspace: caller is not permitted to touch a cap of this kind")
)

// allowed reports whether caller may touch a cap of kind.
func allowed(caller Caller, kind CapKind) bool {
	switch kind {
	case UserCap:
		return true
	case ElfCap:
		return caller == Privileged
	default: // AppCap: never directly reachable from either caller class
		return false
	}
}

// sv39SpaceStats tracks page counts in use per size class: [0]=1 GiB pages,
// [1]=2 MiB pages, [2]=4 KiB pages, each counted in its own native page
// size; sv39AvailablePages scales them to the size class it is asked about.
type sv39SpaceStats [3]uint64

// ShmSpace is one app's shared-memory capability space: cap allocation,
// acquisition into a virtual address range, and page-table translation.
type ShmSpace struct {
	idPool       *idpool.ManualPool
	caps         map[ShmCapID]*ShmCap
	acquisitions *AcquisitionsAndPageTable
	stats        sv39SpaceStats
}

func NewShmSpace() *ShmSpace {
	return &ShmSpace{
		idPool:       idpool.NewManualPool(),
		caps:         make(map[ShmCapID]*ShmCap),
		acquisitions: NewAcquisitionsAndPageTable(),
	}
}

// LookupShmCap implements ShmCapLookup for AcquisitionsAndPageTable.Walk*.
func (s *ShmSpace) LookupShmCap(id ShmCapID) (*ShmCap, bool) {
	shmCap, ok := s.caps[id]
	return shmCap, ok
}

// NewShmCap allocates a fresh capability of shmType and length pages,
// subject to the space's remaining Sv39 budget. Only Privileged callers may
// create ElfCaps.
func (s *ShmSpace) NewShmCap(shmType ShmType, length uint64, caller Caller, kind CapKind) (ShmCapID, *ShmCap, error) {
	if !allowed(caller, kind) {
		return 0, nil, ErrPermissionDeniedForCapKind
	}
	if length == 0 {
		return 0, nil, ErrInvalidLength
	}
	if length > uint64(s.sv39AvailablePages(shmType)) {
		return 0, nil, ErrCapacityNotAvailable
	}

	shmCap, err := NewShmCap(shmType, length, kind)
	if err != nil {
		return 0, nil, err
	}

	id, err := s.idPool.TryAllocate()
	if err != nil {
		return 0, nil, ErrExhausted
	}

	if _, exists := s.caps[uint64(id)]; exists {
		return 0, nil, ErrDuplicateID
	}
	s.caps[uint64(id)] = shmCap

	s.sv39IncrementStats(shmType, length)

	return uint64(id), shmCap, nil
}

// AcquireShmCap maps shmCapID into the page table at address with flags.
func (s *ShmSpace) AcquireShmCap(shmCapID ShmCapID, address uint64, flags Sv39Flags, caller Caller) error {
	shmCap, ok := s.caps[shmCapID]
	if !ok {
		return ErrCapNotFound
	}
	if !allowed(caller, shmCap.Kind()) {
		return ErrPermissionDeniedForCapKind
	}
	return s.acquisitions.TryAcquire(shmCapID, shmCap, address, flags)
}

// ReleaseShmCap unmaps shmCapID. Releasing a cap that isn't currently
// acquired is silently allowed, matching the original.
func (s *ShmSpace) ReleaseShmCap(shmCapID ShmCapID, caller Caller) error {
	shmCap, ok := s.caps[shmCapID]
	if !ok {
		return ErrCapNotFound
	}
	if !allowed(caller, shmCap.Kind()) {
		return ErrPermissionDeniedForCapKind
	}
	_, err := s.acquisitions.TryRelease(shmCapID, shmCap)
	if err != nil && errors.Is(err, ErrReleasingNonAcquiredCap) {
		return nil
	}
	return err
}

// ReleaseShmCapApp releases shmCapID without a caller-kind check, for use by
// DefaultDeferredSpace before it moves a cap out of the registry; the cap
// may be of any kind.
func (s *ShmSpace) ReleaseShmCapApp(shmCapID ShmCapID) error {
	shmCap, ok := s.caps[shmCapID]
	if !ok {
		return ErrCapNotFound
	}
	_, err := s.acquisitions.TryRelease(shmCapID, shmCap)
	if err != nil && errors.Is(err, ErrReleasingNonAcquiredCap) {
		return nil
	}
	return err
}

// MoveShmCapToOtherSpace removes shmCapID from the registry and hands the
// caller ownership of it, for the duration of deferred out-of-band
// processing. The id remains reserved in the id pool.
func (s *ShmSpace) MoveShmCapToOtherSpace(shmCapID ShmCapID) (*ShmCap, bool) {
	shmCap, ok := s.caps[shmCapID]
	if !ok {
		return nil, false
	}
	delete(s.caps, shmCapID)
	return shmCap, true
}

// MoveShmCapBackIntoSpace reinserts a cap previously removed by
// MoveShmCapToOtherSpace.
func (s *ShmSpace) MoveShmCapBackIntoSpace(shmCapID ShmCapID, shmCap *ShmCap) {
	s.caps[shmCapID] = shmCap
}

// ShmCapExists reports whether shmCapID is currently registered, with no
// side effect. Used to validate every id a multi-step operation needs
// before committing any one of its steps.
func (s *ShmSpace) ShmCapExists(shmCapID ShmCapID) bool {
	_, ok := s.caps[shmCapID]
	return ok
}

// GetShmCapUser looks up shmCapID, allowing only UserCap access.
func (s *ShmSpace) GetShmCapUser(shmCapID ShmCapID) (*ShmCap, error) {
	shmCap, ok := s.caps[shmCapID]
	if !ok {
		return nil, ErrCapNotFound
	}
	if shmCap.Kind() != UserCap {
		return nil, ErrPermissionDeniedForCapKind
	}
	return shmCap, nil
}

// DestroyShmCap frees shmCapID entirely. It must not currently be acquired.
func (s *ShmSpace) DestroyShmCap(shmCapID ShmCapID, caller Caller) error {
	shmCapForPerm, ok := s.caps[shmCapID]
	if ok && !allowed(caller, shmCapForPerm.Kind()) {
		return ErrPermissionDeniedForCapKind
	}
	if _, acquired := s.acquisitions.CheckNotAcquired(shmCapID); acquired {
		return ErrDestroyingCurrentlyAcquiredCap
	}

	shmCap, existed := s.caps[shmCapID]
	delete(s.caps, shmCapID)
	s.idPool.Release(idpool.ID(shmCapID))
	if existed {
		s.sv39DecrementStats(shmCap)
		return shmCap.Close()
	}
	return nil
}

func (s *ShmSpace) Walk(vaddr uint64) (*PageView, error)        { return s.acquisitions.Walk(vaddr, s) }
func (s *ShmSpace) WalkMut(vaddr uint64) (*PageView, error)     { return s.acquisitions.WalkMut(vaddr, s) }
func (s *ShmSpace) WalkExecute(vaddr uint64) (*PageView, error) { return s.acquisitions.WalkExecute(vaddr, s) }

// sv39AvailablePages assumes all pages can be arranged as all 1 GiB pages
// first, then all 2 MiB pages, then all 4 KiB pages.
func (s *ShmSpace) sv39AvailablePages(shmType ShmType) uint32 {
	bit := func(x bool) uint32 {
		if x {
			return 1
		}
		return 0
	}
	st0, st1, st2 := uint32(s.stats[0]), uint32(s.stats[1]), uint32(s.stats[2])

	switch shmType {
	case FourKiB:
		used := (st0 << 18) + (st1 << 9) + st2
		total := uint32(1) << (Sv39Bits - 12)
		return total - used
	case TwoMiB:
		used := (st0 << 9) + st1 + ((st2 >> 9) + bit((st2&((1<<9)-1)) != 0))
		total := uint32(1) << (Sv39Bits - 21)
		return total - used
	case OneGiB:
		fourKibExclOneGib := (st1 << 9) + st2
		oneGibUsedByNonOneGib := (fourKibExclOneGib >> 18) + bit((fourKibExclOneGib&((1<<18)-1)) != 0)
		used := st0 + oneGibUsedByNonOneGib
		total := uint32(1) << (Sv39Bits - 30)
		return total - used
	default:
		panic("capspace: unknown ShmType")
	}
}

// sv39IncrementStats must only be called after sv39AvailablePages has been
// checked, otherwise it can overflow.
func (s *ShmSpace) sv39IncrementStats(shmType ShmType, length uint64) {
	switch shmType {
	case FourKiB:
		s.stats[2] += length
	case TwoMiB:
		s.stats[1] += length
	case OneGiB:
		s.stats[0] += length
	}
}

func (s *ShmSpace) sv39DecrementStats(shmCap *ShmCap) {
	switch shmCap.ShmType() {
	case FourKiB:
		s.stats[2] -= shmCap.Length()
	case TwoMiB:
		s.stats[1] -= shmCap.Length()
	case OneGiB:
		s.stats[0] -= shmCap.Length()
	}
}
