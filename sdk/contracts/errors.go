package contracts

import "errors"

// Error taxonomy. None of these is fatal to the process.
var (
	// ErrValidation marks a bad input that was corrected to a safe default.
	ErrValidation = errors.New("validation error")
	// ErrDevice marks a device redirect or query that failed.
	ErrDevice = errors.New("device error")
	// ErrSurfaceUnavailable marks a render surface that is closed or blocked.
	ErrSurfaceUnavailable = errors.New("surface unavailable")
	// ErrTransportInvalid marks a clock transport with an out-of-range bpm.
	ErrTransportInvalid = errors.New("transport invalid")
	// ErrPlaySuppressed marks a track whose play request was rejected.
	ErrPlaySuppressed = errors.New("play suppressed")
	// ErrNoTrackLoaded is surfaced to the operator when play is requested on an empty session.
	ErrNoTrackLoaded = errors.New("no track loaded")
	// ErrUnknownTrack marks an operation on an empty slot.
	ErrUnknownTrack = errors.New("unknown track")
	// ErrUnknownTrigger marks an operation on a trigger id that is not registered.
	ErrUnknownTrigger = errors.New("unknown trigger")
)
