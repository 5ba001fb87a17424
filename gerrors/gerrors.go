// Package gerrors defines the fixed error taxonomy shared by every core
// package: global operation errors, per-datum observation codes, and the
// locator's terminal return codes.
package gerrors

import "errors"

// Global operation errors. These abort the calling operation and
// surface to the caller; they are never recorded per-datum.
var (
	// ErrInvalidArgs means a precondition was violated at a public entry
	// point: bad filter order, empty time series, conflicting rotation
	// state, and similar caller mistakes.
	ErrInvalidArgs = errors.New("gerrors: invalid arguments")

	// ErrMalloc means an allocation failed. Always fatal for the current
	// operation.
	ErrMalloc = errors.New("gerrors: allocation failure")

	// ErrSampleRate means two inputs that must share a sample rate did
	// not, beyond the configured tolerance.
	ErrSampleRate = errors.New("gerrors: mixed sample rates")

	// ErrIO means an underlying reader or travel-time oracle failed.
	ErrIO = errors.New("gerrors: io failure")
)

// ObsCode is a per-datum observation quality tag produced while building
// the locator's design matrix. Zero means the datum is usable; nonzero
// values mean "not usable" for a specific, fixed reason and are recorded
// on the datum without aborting the iteration.
type ObsCode int

const (
	ObsOK                ObsCode = 0
	ObsNoTravelTime       ObsCode = 1
	ObsNoSlowness         ObsCode = 2
	ObsNoAzimuth          ObsCode = 3
	ObsTTExtrapolated     ObsCode = 4
	ObsLargeResidual      ObsCode = 5
	ObsMissingStation     ObsCode = 6
	ObsDepthOutOfRange    ObsCode = 11
	ObsDistanceOutOfRange ObsCode = 12
	ObsPhaseUnknown       ObsCode = 13
	ObsSiteCorrMissing    ObsCode = 14
	ObsSSSCUnavailable    ObsCode = 15
	ObsNotDefining        ObsCode = 16
	ObsBadSigma           ObsCode = 17
	ObsDuplicate          ObsCode = 18
	ObsOperatorExcluded   ObsCode = 19
	ObsTravelTimeHole     ObsCode = 8
)

// Usable reports whether the observation should contribute to the design
// matrix on the current iteration.
func (c ObsCode) Usable() bool { return c == ObsOK }

// LocatorCode is one of the locator's terminal return codes. The locator
// never panics or returns a Go error mid-iteration: it records one of
// these codes, finalizes whatever partial output it has, and returns.
type LocatorCode int

const (
	// LocNone means the locator has not finished iterating yet.
	LocNone LocatorCode = iota
	// LocOK means the solution converged normally.
	LocOK
	// LocMaxIterations means the iteration budget was exhausted (GLerror1).
	LocMaxIterations
	// LocDiverged means the step-length history diverged (GLerror2).
	LocDiverged
	// LocInsufficientData means too few defining observations remained
	// to solve the system (GLerror3).
	LocInsufficientData
	// LocTravelTimeHole means the travel-time oracle reported a hole in
	// its table for every remaining observation (GLerror4).
	LocTravelTimeHole
	// LocTravelTimeExtrapolation means the oracle had to extrapolate
	// beyond its valid range for all remaining observations (GLerror5).
	LocTravelTimeExtrapolation
	// LocSVDFailure means the SVD decomposition of the design matrix
	// failed (GLerror6).
	LocSVDFailure
	// LocExcessiveCondition means the true (undamped) condition number exceeded
	// the configured limit on the final iteration (GLerror7).
	LocExcessiveCondition
)

func (c LocatorCode) String() string {
	switch c {
	case LocNone:
		return "none"
	case LocOK:
		return "ok"
	case LocMaxIterations:
		return "GLerror1: max iterations"
	case LocDiverged:
		return "GLerror2: diverged"
	case LocInsufficientData:
		return "GLerror3: insufficient data"
	case LocTravelTimeHole:
		return "GLerror4: travel-time hole"
	case LocTravelTimeExtrapolation:
		return "GLerror5: travel-time extrapolation"
	case LocSVDFailure:
		return "GLerror6: SVD failure"
	case LocExcessiveCondition:
		return "GLerror7: excessive condition number"
	default:
		return "unknown locator code"
	}
}
