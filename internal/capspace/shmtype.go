// Package capspace implements the shared-memory capability space: apps
// request pages of a given size class, acquire them at a virtual address,
// and the space walks a Sv39-shaped page table to translate accesses.
//
// Grounded on original_source/nushift-core/src/shm_space/{mod.rs,
// acquisitions_and_page_table.rs}. The sharded-lock backing store is
// adapted from the teacher's backend/mem.go.
package capspace

// ShmType is the page size class of a shared-memory capability. Only the
// three page sizes the Sv39 virtual addressing scheme supports are named;
// Sv32/Sv48 superpage sizes are not supported.
type ShmType int

const (
	FourKiB ShmType = iota
	TwoMiB
	OneGiB
)

// PageBytes returns the size in bytes of one page of this type.
func (t ShmType) PageBytes() uint64 {
	switch t {
	case FourKiB:
		return 1 << 12
	case TwoMiB:
		return 1 << 21
	case OneGiB:
		return 1 << 30
	default:
		panic("capspace: unknown ShmType")
	}
}

func (t ShmType) String() string {
	switch t {
	case FourKiB:
		return "4KiB"
	case TwoMiB:
		return "2MiB"
	case OneGiB:
		return "1GiB"
	default:
		return "unknown"
	}
}

// Sv39Bits is the width of the Sv39 virtual address space.
const Sv39Bits = 39
