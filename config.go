package nucore

import (
	"context"

	"github.com/nushift/nucore/internal/logging"
	"github.com/nushift/nucore/internal/noisecrypto"
)

// Options is the optional-collaborator side channel NewTabWithOptions
// accepts, mirroring the teacher's
// Options{Context, Logger, Observer}: a nil *Options, or a nil field within
// one, falls back to context.Background(), the package-level default
// logger, and a no-op Observer respectively.
type Options struct {
	Context  context.Context
	Logger   *logging.Logger
	Observer Observer
}

func (o *Options) context() context.Context {
	if o != nil && o.Context != nil {
		return o.Context
	}
	return context.Background()
}

func (o *Options) logger() *logging.Logger {
	if o != nil && o.Logger != nil {
		return o.Logger
	}
	return logging.Default()
}

func (o *Options) observer() Observer {
	if o != nil && o.Observer != nil {
		return o.Observer
	}
	return NoOpObserver{}
}

// NoiseConfig bundles the tunable parameters for one side of a Core A
// handshake, mirroring the teacher's DeviceParams/DefaultParams pattern: a
// plain struct passed to NewClientConfig/NewServerConfig, plus a Default*
// constructor filling in sensible values (here, a freshly generated static
// identity). Per-connection transport parameters are not part of this
// config — they're passed to ClientConfig/ServerConfig.StartSession directly, since one
// endpoint config starts many connections, each with its own parameters.
type NoiseConfig struct {
	// Side this endpoint plays. NewClientConfig/NewServerConfig overwrite
	// this with their own side, whatever the caller set.
	Side Side

	// LocalStatic is this endpoint's static X448 identity. If nil,
	// NewClientConfig/NewServerConfig generate one on the fly.
	LocalStatic *noisecrypto.X448KeyPair
}

// DefaultNoiseConfig returns a NoiseConfig for side with a freshly generated
// static X448 identity, the Core A analogue of the teacher's
// DefaultParams(backend).
func DefaultNoiseConfig(side Side) (NoiseConfig, error) {
	static, err := noisecrypto.GenerateX448KeyPair()
	if err != nil {
		return NoiseConfig{}, wrapErr("DefaultNoiseConfig", err)
	}
	return NoiseConfig{Side: side, LocalStatic: static}, nil
}

// ShmSpaceConfig bundles the tunable parameters for one Core B tab,
// mirroring the teacher's DeviceParams{Backend, ...}/DefaultParams pattern:
// Host is the one required collaborator (the backend-equivalent), the rest
// is left to Options since ShmSpace/DeferredSpace themselves have no
// further tunables (the Sv39 address space and page sizes are fixed by
// spec.md, not configuration).
type ShmSpaceConfig struct {
	Host Host
}

// DefaultShmSpaceConfig returns a ShmSpaceConfig for host, the Core B
// analogue of the teacher's DefaultParams(backend).
func DefaultShmSpaceConfig(host Host) ShmSpaceConfig {
	return ShmSpaceConfig{Host: host}
}
