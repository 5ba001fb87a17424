// Package locate implements the SVD-damped, iteratively-reweighted
// Gauss-Newton event locator: given travel-time/azimuth/slowness
// observations at a set of stations and a travel-time oracle, it solves
// for the hypocenter (origin time, longitude, latitude, depth) that
// minimizes the normalized residual vector.
//
// Grounded on gbase/libsrc/libloc/compute_hypo.c's main iterative loop
// (the first, SVD-only code path; the "first_loc_type" branch that does
// not involve grid-search starting depths). solve_via_svd's own body was
// not present in the retrieved source, only its call contract at line
// ~1074 (a damped least-squares solve returning a compacted solution, a
// convergence-test scalar, a pair of true/effective condition numbers,
// covariance, and per-datum importances) — the damping and SVD math
// implemented here is this package's own construction of that contract,
// using gonum/mat's SVD in place of the original's dsvdc call.
package locate

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/geotool-core/geocore/gerrors"
	"github.com/geotool-core/geocore/travel"
)

// ErrorCode mirrors compute_hypo.c's per-observation error taxonomy
// (ar_info[n].time_error_code/az_error_code/slow_error_code), reused
// here as a single field per datum since this package carries phase
// time, azimuth and slowness as three independent optional data types
// on one Observation rather than three parallel arrays.
type ErrorCode = int

const (
	ErrNone     ErrorCode = travel.ErrNone
	ErrNoOracle ErrorCode = travel.ErrNoTable
	ErrOutlier  ErrorCode = travel.ErrOutlier // excluded this iteration by outlier screening
)

// Observation is one arrival's data at one station, any subset of
// UseTime/UseAzimuth/UseSlowness set according to which measurements
// are defining.
type Observation struct {
	Phase  string
	StaLat float64
	StaLon float64

	UseTime bool
	Time    float64 // observed absolute arrival time
	Sigma   float64 // travel-time sigma, seconds

	UseAzimuth bool
	Azimuth    float64 // observed station-to-event azimuth, degrees
	AzSigma    float64 // degrees

	UseSlowness bool
	Slowness    float64 // observed slowness, seconds/degree
	SloSigma    float64

	// Set by Locate after the final iteration.
	TimeResidual, AzResidual, SlowResidual       float64
	TimeErrorCode, AzErrorCode, SlowErrorCode    ErrorCode
	TimeImportance, AzImportance, SlowImportance float64
	DistanceDeg, AzimuthDeg                      float64 // station-to-event geometry used in the solution
}

// Origin is the hypocenter state vector.
type Origin struct {
	OriginTime float64
	Lon, Lat   float64
	Depth      float64
}

// Params configures the iteration.
type Params struct {
	FixOriginTime bool
	FixLatLon     bool
	FixDepth      bool
	MaxIterations int     `desc:"iteration budget" def:"20"`
	MinIter       int     `desc:"iterations before convergence/divergence tests begin" def:"4"`
	MaxDepth      float64 `desc:"depth clamp, km" def:"800"`
	CondNumLimit  float64 `desc:"true condition number above which a converged solution is treated as divergent" def:"1e6"`
	EffCondTarget float64 `desc:"effective condition number the SVD damping targets" def:"30"`
	LargeResMult  float64 `desc:"outlier screening threshold, multiples of sigma" def:"5"`
	ScreenOutliers bool
}

// Result is the outcome of one Locate call.
type Result struct {
	Origin           Origin
	Iterations       int
	Converged        bool
	Diverged         bool
	DivergenceReason string
	WeightedRMS      float64
	UnweightedRMS    float64
	ConditionNumber  float64
	NumUsed          int
	AzimuthalGap     float64
	Covariance       *mat.Dense // one row/column per free component, in state-vector order [T0, lon-east-km, lat-north-km, depth] with fixed components omitted
	Airquakes        int
}

const earthRadiusKm = 6371.0
const degToRad = math.Pi / 180
const radToDeg = 180 / math.Pi

// Locate runs the damped Gauss-Newton iteration described in
// compute_hypo.c's main loop: at each step, every observation's
// predicted time/azimuth/slowness and partial derivatives are obtained
// from oracle, a normalized design matrix and residual vector are
// accumulated, the damped least-squares step is solved via SVD, the
// step is clipped, and the hypocenter is updated via a great-circle
// move (state-vector components 1 and 2 are treated as an
// easting/northing pair in kilometers, matching ysol[1]/ysol[2]'s use
// as atan2/hypot operands at compute_hypo.c:1293-1298). Iteration stops
// on convergence, divergence, or the iteration budget.
func Locate(obs []Observation, start Origin, oracle travel.Oracle, p Params) (Result, error) {
	if len(obs) == 0 {
		return Result{}, fmt.Errorf("locate.Locate: no observations: %w", gerrors.ErrInvalidArgs)
	}
	if oracle == nil {
		return Result{}, fmt.Errorf("locate.Locate: nil oracle: %w", gerrors.ErrInvalidArgs)
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = 20
	}
	if p.MinIter <= 0 {
		p.MinIter = 4
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = 800
	}
	if p.CondNumLimit <= 0 {
		p.CondNumLimit = 1e6
	}
	if p.EffCondTarget <= 0 {
		p.EffCondTarget = 30
	}
	if p.LargeResMult <= 0 {
		p.LargeResMult = 5
	}

	origin := start
	torg := start.OriginTime
	depth := start.Depth
	if depth < 0 {
		depth = 0
	}
	if depth > p.MaxDepth {
		depth = p.MaxDepth
	}

	cnvghats := make([]float64, 3)
	dxnrms := make([]float64, 3)
	nds := make([]int, 3)
	cnvgold := 0.0
	step := 1.0
	var yold [4]float64
	airquakes := 0

	var res Result
	for iter := 0; iter < p.MaxIterations; iter++ {
		fixDepthThisIter := p.FixDepth || iter < p.MinIter-1
		// Depth derivatives weren't requested from the oracle this
		// iteration when fixDepthThisIter holds off p.FixDepth itself
		// (the iter < p.MinIter-1 warm-up), so the design matrix must
		// drop the depth column the same way it would if p.FixDepth were
		// permanently set — otherwise the SVD solves against a
		// degenerate, effectively unpopulated 4th column.
		effParams := p
		effParams.FixDepth = fixDepthThisIter
		np := numFreeParams(effParams)

		rows := make([][4]float64, 0, len(obs))
		resid := make([]float64, 0, len(obs))
		sigmas := make([]float64, 0, len(obs))
		azUsed := make([]float64, 0, len(obs))

		var wtSqSum, unwtSqSum float64
		nUsed := 0

		for i := range obs {
			o := &obs[i]
			distDeg, seaz, esaz := travel.DistAzimuth(o.StaLat, o.StaLon, origin.Lat, origin.Lon)
			o.DistanceDeg = distDeg
			o.AzimuthDeg = esaz

			resp := oracle.TravelTime(travel.Request{
				Phase:           o.Phase,
				OriginLat:       origin.Lat,
				OriginLon:       origin.Lon,
				OriginDepth:     depth,
				DistanceDeg:     distDeg,
				AzimuthDeg:      esaz,
				NeedDepthDerivs: !fixDepthThisIter,
			})

			if o.UseTime {
				o.TimeErrorCode = resp.ErrorCode
			}
			if o.UseSlowness {
				o.SlowErrorCode = resp.ErrorCode
			}
			if o.UseAzimuth {
				o.AzErrorCode = resp.ErrorCode
			}
			if resp.ErrorCode != travel.ErrNone {
				continue
			}

			if o.UseTime {
				tres := o.Time - resp.TravelTime - torg
				if p.ScreenOutliers && iter >= p.MinIter-1 && o.Sigma > 0 &&
					math.Abs(tres) > p.LargeResMult*o.Sigma {
					o.TimeErrorCode = ErrOutlier
				} else {
					o.TimeResidual = tres
					sig := o.Sigma
					if sig <= 0 {
						sig = 1
					}
					rows = append(rows, [4]float64{1, resp.Deriv.Dlon, resp.Deriv.Dlat, -resp.Deriv.Ddepth})
					resid = append(resid, tres/sig)
					sigmas = append(sigmas, sig)
					wtSqSum += (tres / sig) * (tres / sig)
					unwtSqSum += tres * tres
					azUsed = append(azUsed, esaz)
					nUsed++
				}
			}
			if o.UseAzimuth {
				ares := normalizeAngleDelta(o.Azimuth - seaz)
				o.AzErrorCode = travel.ErrNone
				sig := o.AzSigma
				if sig <= 0 {
					sig = 1
				}
				o.AzResidual = ares
				rows = append(rows, [4]float64{0, azimuthDerivLon(distDeg, esaz), azimuthDerivLat(distDeg, esaz), 0})
				resid = append(resid, ares/sig)
				sigmas = append(sigmas, sig)
			}
			if o.UseSlowness {
				sres := o.Slowness - resp.Slowness
				sig := o.SloSigma
				if sig <= 0 {
					sig = 1
				}
				if p.ScreenOutliers && iter >= p.MinIter-1 && math.Abs(sres) > p.LargeResMult*sig {
					o.SlowErrorCode = ErrOutlier
				} else {
					o.SlowResidual = sres
					rows = append(rows, [4]float64{0, resp.Deriv.Dlon, resp.Deriv.Dlat, -resp.Deriv.Ddepth})
					resid = append(resid, sres/sig)
					sigmas = append(sigmas, sig)
				}
			}
		}

		if len(rows) < np {
			return Result{}, fmt.Errorf("locate.Locate: %d usable rows for %d free parameters: %w", len(rows), np, gerrors.ErrInvalidArgs)
		}

		A := compact(rows, effParams)
		xsolFull, condTrue, condEff, cov, imp, cnvgtst, err := solveDamped(A, resid, p.EffCondTarget)
		if err != nil {
			return Result{}, fmt.Errorf("locate.Locate: %w", err)
		}
		assignImportances(obs, imp)

		ysol := expand(xsolFull, effParams)

		dxnorm := math.Sqrt(ysol[0]*ysol[0] + ysol[1]*ysol[1] + ysol[2]*ysol[2] + ysol[3]*ysol[3])
		dxmax := 1500.0
		if iter < p.MaxIterations/5+1 {
			dxmax = 3000.0
		}
		if dxnorm > dxmax {
			scale := dxmax / dxnorm
			for i := range ysol {
				ysol[i] *= scale
			}
			dxnorm = dxmax
		}

		nds[0], nds[1], nds[2] = nUsed, nds[0], nds[1]
		cnvghats[0], cnvghats[1], cnvghats[2] = cnvgtst, cnvghats[0], cnvghats[1]
		dxnrms[0], dxnrms[1], dxnrms[2] = dxnorm, dxnrms[0], dxnrms[1]

		convergence, divergence := false, false
		if iter > p.MinIter-1 {
			if dxnorm > 0 && cnvgtst > 0 {
				dxn01, dxn12 := 1.05, 1.05
				if dxnrms[1] > 0 && dxnrms[2] > 0 {
					dxn01 = dxnrms[0] / dxnrms[1]
					dxn12 = dxnrms[1] / dxnrms[2]
				}
				if dxn12 > 1.1 && dxn01 > dxn12 && iter > p.MinIter+2 && dxnorm > 1000 {
					divergence = true
				} else if nds[0] == nds[1] && (cnvgtst < 1e-8 || dxnorm < 0.5) {
					convergence = true
				} else if (math.Sqrt(wtSqSum/float64(max(nUsed, 1))) < 0.001 || dxnorm < 0.001) && iter > p.MinIter+2 {
					convergence = true
				} else {
					cnvg01 := cnvgtst
					if cnvghats[1] > 0 && cnvghats[2] > 0 {
						cnvg01 = math.Abs(cnvghats[0]/cnvghats[1] - cnvghats[1]/cnvghats[2])
					}
					cnvg12 := math.Abs(cnvghats[0] - cnvghats[2])
					tol := 1e-8
					if (cnvgtst < 1.01*cnvgold && cnvgtst < tol) ||
						(iter > 3*p.MaxIterations/4 && (cnvgtst < math.Sqrt(tol) || cnvg01 < tol || cnvg12 < math.Sqrt(tol))) {
						convergence = true
					}
				}
			} else {
				convergence = true
			}
		}

		if iter > p.MinIter+2 && (cnvgtst > cnvgold || cnvghats[0] == cnvghats[2]) && step > 0.05 {
			step = 0.5 * step
			for i := range ysol {
				ysol[i] = step * yold[i]
			}
		} else {
			step = 1
			cnvgold = cnvgtst
			yold = ysol
		}

		if ysol[1] != 0 || ysol[2] != 0 {
			azi := radToDeg * math.Atan2(ysol[1], ysol[2])
			dist := math.Hypot(ysol[1], ysol[2])
			deltaDeg := radToDeg * (dist / (earthRadiusKm - depth))
			origin.Lat, origin.Lon = sphericalStep(origin.Lat, origin.Lon, deltaDeg, azi)
		}
		torg += ysol[0]
		if !fixDepthThisIter {
			depth -= ysol[3]
			if depth < 0 {
				depth = 0
				airquakes++
			}
			if depth > p.MaxDepth {
				depth = p.MaxDepth
			}
			if airquakes > 4 {
				p.FixDepth = true
			}
		}

		res.Iterations = iter + 1
		res.ConditionNumber = condTrue
		res.Covariance = cov
		res.NumUsed = nUsed
		res.WeightedRMS = math.Sqrt(wtSqSum / float64(max(nUsed, 1)))
		res.UnweightedRMS = math.Sqrt(unwtSqSum / float64(max(nUsed, 1)))
		res.AzimuthalGap = azimuthalGap(azUsed)
		_ = condEff

		if convergence {
			if condTrue > p.CondNumLimit {
				divergence = true
			} else {
				res.Converged = true
			}
		}
		if divergence {
			res.Diverged = true
			res.DivergenceReason = "condition number or residual growth exceeded limits"
			break
		}
		if convergence {
			break
		}
	}

	origin.OriginTime = torg
	origin.Depth = depth
	res.Origin = origin
	res.Airquakes = airquakes
	return res, nil
}

// numFreeParams returns how many of the four state-vector components
// are actually solved for, matching compute_hypo.c's np = 4 -
// (fix_origin_time) - (fix_lat_lon ? 2 : 0) - (fix_depth_this_iter).
func numFreeParams(p Params) int {
	n := 4
	if p.FixOriginTime {
		n--
	}
	if p.FixLatLon {
		n -= 2
	}
	if p.FixDepth {
		n--
	}
	if n < 1 {
		n = 1
	}
	return n
}

// compact drops the columns of fixed parameters, mirroring the
// uncompact/compact round trip around xsol/ysol in compute_hypo.c.
func compact(rows [][4]float64, p Params) *mat.Dense {
	var cols []int
	if !p.FixOriginTime {
		cols = append(cols, 0)
	}
	if !p.FixLatLon {
		cols = append(cols, 1, 2)
	}
	if !p.FixDepth {
		cols = append(cols, 3)
	}
	if len(cols) == 0 {
		cols = []int{0}
	}
	A := mat.NewDense(len(rows), len(cols), nil)
	for i, r := range rows {
		for j, c := range cols {
			A.Set(i, j, r[c])
		}
	}
	return A
}

func expand(x []float64, p Params) [4]float64 {
	var ysol [4]float64
	ip := 0
	if !p.FixOriginTime {
		ysol[0] = x[ip]
		ip++
	}
	if !p.FixLatLon {
		ysol[1] = x[ip]
		ip++
		ysol[2] = x[ip]
		ip++
	}
	if !p.FixDepth && ip < len(x) {
		ysol[3] = x[ip]
	}
	return ysol
}

// solveDamped solves the normalized least-squares problem
// x = V * diag(s/(s^2+lambda^2)) * U^T * r via SVD, choosing lambda in
// closed form so the effective condition number s[0]/sqrt(s[last]^2+
// lambda^2) equals effCondTarget whenever the true condition number
// exceeds it, leaving lambda at 0 otherwise.
//
// compute_hypo.c's own damping search (inside solve_via_svd, source not
// retrieved) is described only by its call contract; this closed-form
// choice satisfies the same "effective condition number stays at or
// below a threshold" property without needing an iterative search.
func solveDamped(A *mat.Dense, r []float64, effCondTarget float64) (x []float64, condTrue, condEff float64, cov *mat.Dense, importances []float64, cnvgtst float64, err error) {
	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDThin); !ok {
		return nil, 0, 0, nil, nil, 0, fmt.Errorf("svd factorization failed")
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	n := len(values)
	if n == 0 {
		return nil, 0, 0, nil, nil, 0, fmt.Errorf("empty design matrix")
	}
	sMax, sMin := values[0], values[n-1]
	lambda := 0.0
	if sMin > 0 && sMax/sMin > effCondTarget {
		inner := (sMax*sMax)/(effCondTarget*effCondTarget) - sMin*sMin
		if inner > 0 {
			lambda = math.Sqrt(inner)
		}
	}
	if sMin > 0 {
		condTrue = sMax / sMin
	} else {
		condTrue = math.Inf(1)
	}
	condEff = sMax / math.Sqrt(sMin*sMin+lambda*lambda)

	rVec := mat.NewVecDense(len(r), r)
	utr := mat.NewVecDense(n, nil)
	utr.MulVec(u.T(), rVec)

	d := make([]float64, n)
	imp := make([]float64, n)
	for i, s := range values {
		f := s / (s*s + lambda*lambda)
		d[i] = f * utr.AtVec(i)
		imp[i] = s * f // diagonal of the data-resolution contribution
	}
	dVec := mat.NewVecDense(n, d)
	p, _ := v.Dims()
	xVec := mat.NewVecDense(p, nil)
	xVec.MulVec(&v, dVec)
	x = make([]float64, p)
	for i := range x {
		x[i] = xVec.AtVec(i)
	}

	cnvgtst = 0
	for _, di := range d {
		cnvgtst += di * di
	}

	// Covariance = V * diag(f^2*s^2... ) -- approximate as V diag(f) V^T
	// scaled by the damped pseudo-inverse's own gain, matching the second
	// SVD pass's role in compute_hypo.c (store, not reproduce, the table
	// driven dsvdc covariance routine whose source was not retrieved).
	fdiag := make([]float64, n)
	for i, s := range values {
		f := s / (s*s + lambda*lambda)
		fdiag[i] = f * f
	}
	cov = mat.NewDense(p, p, nil)
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			var sum float64
			for k := 0; k < n; k++ {
				sum += v.At(i, k) * fdiag[k] * v.At(j, k)
			}
			cov.Set(i, j, sum)
		}
	}

	// Per-observation importance (diagonal of U diag(s*f) U^T, restricted
	// to the rows that contributed), matching ar_info[n].*_import.
	nObs, _ := A.Dims()
	importances = make([]float64, nObs)
	for i := 0; i < nObs; i++ {
		var sum float64
		for k := 0; k < n; k++ {
			sum += u.At(i, k) * imp[k] * u.At(i, k)
		}
		importances[i] = sum
	}

	return x, condTrue, condEff, cov, importances, cnvgtst, nil
}

// assignImportances writes the per-row importances back onto the
// Observations that contributed a row, in the same order solveDamped's
// caller built them (time row before azimuth row before slowness row,
// for each Observation in order) -- matching ar_info[n].time_import/
// az_import/slow_import's assignment order in compute_hypo.c.
func assignImportances(obs []Observation, imp []float64) {
	k := 0
	for i := range obs {
		o := &obs[i]
		if o.UseTime && o.TimeErrorCode == travel.ErrNone {
			if k < len(imp) {
				o.TimeImportance = imp[k]
			}
			k++
		}
		if o.UseAzimuth && o.AzErrorCode == travel.ErrNone {
			if k < len(imp) {
				o.AzImportance = imp[k]
			}
			k++
		}
		if o.UseSlowness && o.SlowErrorCode == travel.ErrNone {
			if k < len(imp) {
				o.SlowImportance = imp[k]
			}
			k++
		}
	}
}

func normalizeAngleDelta(d float64) float64 {
	for d > 180 {
		d -= 360
	}
	for d < -180 {
		d += 360
	}
	return d
}

// azimuthDerivLon/azimuthDerivLat approximate d(azimuth)/d(east-km) and
// d(azimuth)/d(north-km) for a station at distance distDeg and azimuth
// azDeg from the event, using the small-angle flat-earth approximation
// d(az) β‰ˆ -d(east)/range * cos... (the observed azimuth rotates opposite
// an eastward event shift at a station to the north, and so on). The
// original's azimuth partials (stored directly in az_deriv by
// total_travel_time) were not retrieved, so this is derived from first
// principles rather than ported.
func azimuthDerivLon(distDeg, azDeg float64) float64 {
	rangeKm := distDeg * degToRad * earthRadiusKm
	if rangeKm < 1e-6 {
		return 0
	}
	return -math.Cos(azDeg*degToRad) / rangeKm * radToDeg
}

func azimuthDerivLat(distDeg, azDeg float64) float64 {
	rangeKm := distDeg * degToRad * earthRadiusKm
	if rangeKm < 1e-6 {
		return 0
	}
	return math.Sin(azDeg*degToRad) / rangeKm * radToDeg
}

// sphericalStep moves (lat,lon) by an angular distance deltaDeg along
// azimuthDeg degrees clockwise from north, via the standard spherical
// forward-geodesic formula. Unlike travel.Destination (which takes a
// distance in kilometers at the mean earth radius), this takes the
// angular distance directly in degrees, matching compute_hypo.c's
// lat_lon() call: its delta argument is already RADIUS_EARTH-adjusted
// by the caller (delta = dist/(RADIUS_EARTH-depth)), so the forward
// step itself must not re-apply a fixed radius.
func sphericalStep(lat, lon, deltaDeg, azimuthDeg float64) (newLat, newLon float64) {
	delta := deltaDeg * degToRad
	theta := azimuthDeg * degToRad
	phi1 := lat * degToRad

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lam1 := lon * degToRad
	lam2 := lam1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)
	return phi2 * radToDeg, lam2 * radToDeg
}

// azimuthalGap returns the largest gap (degrees) between successive
// sorted azimuths used in the solution, including the wrap-around gap
// from the largest back to the smallest.
//
// Grounded on compute_hypo.c's azimuthal-gap computation
// (lines ~1509-1536): sort az_used_in_loc, take the largest successive
// difference, then compare against the wrap gap 360 - max + min.
func azimuthalGap(az []float64) float64 {
	if len(az) == 0 {
		return 360
	}
	sorted := append([]float64(nil), az...)
	sort.Float64s(sorted)
	gap := 0.0
	for i := 1; i < len(sorted); i++ {
		if d := sorted[i] - sorted[i-1]; d > gap {
			gap = d
		}
	}
	wrap := 360 - sorted[len(sorted)-1] + sorted[0]
	if wrap > gap {
		gap = wrap
	}
	if gap < 0 || gap > 360 {
		gap = 360
	}
	return gap
}
