package nucore

import (
	"github.com/nushift/nucore/internal/capspace"
	"github.com/nushift/nucore/internal/noisecrypto"
)

// Re-export the fixed protocol constants host code most often needs,
// without requiring an import of the internal packages that own them.
const (
	NSQWireVersion = noisecrypto.NSQWireVersion
	ProtocolString = noisecrypto.ProtocolString
	Sv39Bits       = capspace.Sv39Bits
)
