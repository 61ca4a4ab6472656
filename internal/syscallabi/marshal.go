package syscallabi

import (
	"encoding/binary"
	"errors"
)

// ErrInsufficientReturnData is returned by UnmarshalReturn when data is
// shorter than the fixed two-word wire form.
var ErrInsufficientReturnData = errors.New("syscallabi: insufficient data to unmarshal a Return")

// Args is the fixed register-argument tuple a syscall is invoked with,
// modeled after RISC-V's a0-a5 argument registers. Which slots are
// meaningful depends on Number.
type Args [6]uint64

// Return is the fixed two-register return value spec.md §4.12 describes: a
// success value register and an error code register. Grounded on the
// teacher's internal/uapi/marshal.go binary-struct-marshal idiom
// (encoding/binary.LittleEndian over fixed-width fields) — this is a fixed
// two-register calling convention, not a general payload codec, so it uses
// encoding/binary directly rather than msgpack.
type Return struct {
	Success uint64
	Code    ErrorCode
}

// returnSize is the marshalled wire size: two 8-byte little-endian words.
const returnSize = 16

// Marshal encodes r as two little-endian uint64 words (success, error code).
func (r Return) Marshal() []byte {
	buf := make([]byte, returnSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.Success)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.Code))
	return buf
}

// UnmarshalReturn decodes a Return from its two-word wire form.
func UnmarshalReturn(data []byte) (Return, error) {
	if len(data) < returnSize {
		return Return{}, ErrInsufficientReturnData
	}
	return Return{
		Success: binary.LittleEndian.Uint64(data[0:8]),
		Code:    ErrorCode(binary.LittleEndian.Uint64(data[8:16])),
	}, nil
}

func ok(success uint64) Return   { return Return{Success: success, Code: NoError} }
func fail(code ErrorCode) Return { return Return{Success: 0, Code: code} }

func fromErr(success uint64, err error) Return {
	if err != nil {
		return fail(classify(err))
	}
	return ok(success)
}
