// Package travel defines the travel-time oracle boundary the locator
// calls into, plus the great-circle distance/azimuth/destination helpers
// the locator needs regardless of which oracle is wired in.
//
// Grounded on gbase/libsrc/libloc/compute_hypo.c's calls to dist_azimuth
// (station/event distance and both azimuths) and total_travel_time
// (phase travel time, partial derivatives, computed azimuth and
// slowness, and an error code); both routines' own source was not
// present in the retrieved pack (only their call sites in
// compute_hypo.c), so Oracle is specified here as the interface
// compute_hypo.c's call contract implies, for locate/locatelm to consume
// and for a caller to implement against a real travel-time table such
// as IASP91 or a crustal model.
package travel

import "math"

// Error codes an Oracle may return, matching compute_hypo.c's fixed
// taxonomy: 0 means usable; every nonzero value means "not usable" for
// the stated reason. Codes 11-19 are reserved for oracle-specific causes
// (e.g. missing phase tables for the requested distance/depth range)
// beyond the seven named here.
const (
	ErrNone               = 0
	ErrNoTable            = 1 // no travel-time table for this phase
	ErrDistanceOutOfRange = 2
	ErrDepthOutOfRange    = 3
	ErrMissingStation     = 4
	ErrOutlier            = 5 // excluded by outlier screening, not the oracle itself
	ErrIterationAborted   = 6
	ErrSlownessUndefined  = 8
)

// Derivatives holds the partials an Oracle reports alongside travel
// time, one component per solved-for parameter: longitude, latitude,
// depth, and origin time. Only the components a locator is actually
// solving for need be populated; the rest are ignored.
type Derivatives struct {
	Dlon, Dlat, Ddepth, Dtime float64
}

// Request bundles everything an Oracle needs to evaluate one
// observation: the phase name, the current origin hypothesis, the
// station's distance and source-to-station azimuth from that origin
// (as computed by DistAzimuth), and whether depth derivatives are
// needed (locate/locatelm skip them while depth is held fixed).
type Request struct {
	Phase           string
	OriginLat       float64
	OriginLon       float64
	OriginDepth     float64
	DistanceDeg     float64
	AzimuthDeg      float64 // source-to-station azimuth (esaz)
	NeedDepthDerivs bool
}

// Response is what an Oracle returns for one Request.
type Response struct {
	TravelTime float64
	Deriv      Derivatives
	Azimuth    float64 // computed azimuth, degrees
	Slowness   float64 // computed slowness, seconds per degree
	ErrorCode  int
}

// Oracle is the external travel-time collaborator the locator calls once
// per observation per iteration. Implementations typically wrap a
// travel-time table (e.g. IASP91) or a local/regional crustal model;
// the core never embeds one.
type Oracle interface {
	TravelTime(req Request) Response
}

const earthRadiusKm = 6371.0
const kmPerDeg = earthRadiusKm * math.Pi / 180

// DistAzimuth returns the great-circle distance (degrees) between
// (lat1,lon1) and (lat2,lon2), the forward azimuth from point 1 to
// point 2, and the back azimuth from point 2 to point 1, both in
// degrees clockwise from north in [0,360).
//
// Grounded on libgmath's deltaz(slat,slon,rlat,rlon,&delta,&az,&baz);
// dist_azimuth's own source was not in the retrieved pack, but its call
// sites in compute_hypo.c (station as point 1, origin as point 2,
// producing both assoc[n].seaz and assoc[n].esaz) show it is the same
// three-value spherical-trigonometry routine.
func DistAzimuth(lat1, lon1, lat2, lon2 float64) (distDeg, azDeg, bazDeg float64) {
	distDeg, azDeg = deltaAz(lat1, lon1, lat2, lon2)
	_, bazDeg = deltaAz(lat2, lon2, lat1, lon1)
	return distDeg, azDeg, bazDeg
}

func deltaAz(lat1, lon1, lat2, lon2 float64) (distDeg, azDeg float64) {
	rad := math.Pi / 180
	phi1, phi2 := lat1*rad, lat2*rad
	dlon := (lon2 - lon1) * rad

	cosD := math.Sin(phi1)*math.Sin(phi2) + math.Cos(phi1)*math.Cos(phi2)*math.Cos(dlon)
	cosD = math.Max(-1, math.Min(1, cosD))
	distDeg = math.Acos(cosD) / rad

	y := math.Sin(dlon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dlon)
	azDeg = math.Atan2(y, x) / rad
	if azDeg < 0 {
		azDeg += 360
	}
	return distDeg, azDeg
}

// Destination returns the point reached by moving distKm kilometers
// from (lat,lon) along azimuthDeg degrees clockwise from north, using a
// spherical-earth great-circle forward solution.
//
// Grounded on the locator's use of a great-circle destination step to
// turn (deast, dnorth) kilometer offsets into updated (lat,lon): the
// update computes a bearing and distance from the easting/northing pair
// and calls this same forward geodesic, matching compute_hypo.c's own
// flat-earth-to-sphere position update.
func Destination(lat, lon, distKm, azimuthDeg float64) (newLat, newLon float64) {
	rad := math.Pi / 180
	delta := distKm / earthRadiusKm
	phi1 := lat * rad
	theta := azimuthDeg * rad

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lam1 := lon * rad
	lam2 := lam1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)
	return phi2 / rad, lam2 / rad
}

// EastingNorthingToLatLon applies a (deastKm, dnorthKm) offset from
// (lat,lon) via Destination, converting the offset to a bearing and
// distance first. Grounded on compute_hypo.c treating the locator's
// lon/lat state-vector components as an easting/northing offset in
// kilometers rather than a direct angular update.
func EastingNorthingToLatLon(lat, lon, deastKm, dnorthKm float64) (newLat, newLon float64) {
	distKm := math.Hypot(deastKm, dnorthKm)
	if distKm == 0 {
		return lat, lon
	}
	azimuthDeg := math.Atan2(deastKm, dnorthKm) / math.Pi * 180
	if azimuthDeg < 0 {
		azimuthDeg += 360
	}
	return Destination(lat, lon, distKm, azimuthDeg)
}

// DegToKm converts a great-circle angular distance to kilometers using
// the mean earth radius, matching the constant factor compute_hypo.c
// applies when clamping step lengths expressed in kilometers (its
// 3000km/1500km step clamps).
func DegToKm(deg float64) float64 { return deg * kmPerDeg }

// KmToDeg is DegToKm's inverse.
func KmToDeg(km float64) float64 { return km / kmPerDeg }
