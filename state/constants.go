package state

import "time"

const (
	// INF is the IGP metric of a next hop that cannot be resolved.
	INF = ^(uint32)(0)

	DefaultLocalPref = uint32(100)
	// LocalWeight is the weight of BGP routes originated by the router itself
	LocalWeight = uint32(32768)

	DefaultVrf       = "default"
	DefaultMaxRounds = 256
	// DefaultWarningInterval is how often the same policy failure is logged across runs of one engine
	DefaultWarningInterval = time.Minute
	// MaxLoggedWarnings bounds the distinct policy failures remembered for log suppression
	MaxLoggedWarnings = 4096
	// MaxResolutionDepth bounds recursive next hop lookups in the FIB
	MaxResolutionDepth = 8
	MaxAllowAsIn       = 10
)
