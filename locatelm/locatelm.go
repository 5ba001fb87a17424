// Package locatelm implements the Levenberg-Marquardt fallback locator
// used when locate.Locate's SVD solution converges to an unacceptable
// fit or diverges: the weighted travel-time and slowness residuals are
// minimized by classic LM normal equations (azimuth observations are not
// used by this search), restarted
// from a grid of candidate starting depths since the SVD solve can land
// in a shallow local minimum that a depth-aware restart escapes.
//
// Grounded on gbase/libsrc/libloc/compute_hypo.c's compute_hypo_lm: its
// depth-grid construction (the SVD depth, the caller's initial depth,
// the {0, 380, MAX_DEPTH} coarse grid, three refined depths bracketing
// whichever of those three scored best, then a further refinement
// around the running best), mrqcof (normal-equation accumulation
// alpha=J^T W J, beta=J^T W r) and the lambda up/down-by-10 step-accept
// loop around it. gaussj (Gauss-Jordan elimination with full pivoting)
// is replaced with gonum/mat's VecDense.SolveVec -- a generic dense linear
// solve is not a specialized numerical method the way the SVD in
// locate is, and gonum is already a dependency. dfridr (Ridders'
// polynomial extrapolation for the depth derivative of slowness) is
// ported directly since nothing in the retrieved pack offers a
// numerical-differentiation routine to substitute for it.
package locatelm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/geotool-core/geocore/gerrors"
	"github.com/geotool-core/geocore/locate"
	"github.com/geotool-core/geocore/travel"
)

// Params configures the LM search. Most fields mirror locate.Params;
// a depth search is only meaningful when depth is not fixed.
type Params struct {
	FixOriginTime bool
	FixLatLon     bool
	FixDepth      bool
	MaxIterations int     `desc:"LM iterations per starting depth" def:"20"`
	MaxDepth      float64 `desc:"depth clamp, km" def:"800"`
	RMSMult       float64 `desc:"allowed weighted-RMS inflation per added datum when accepting a step that grew the used-datum count" def:"2"`
	InitialLambda float64 `desc:"starting LM damping factor" def:"0.5"`
}

// Code distinguishes which solution Locate's caller should keep.
type Code int

const (
	UseSVD Code = iota
	ImprovedConverged
	ImprovedDiverged
)

// Result is the outcome of Run.
type Result struct {
	Origin      locate.Origin
	Code        Code
	WeightedRMS float64
	NumUsed     int
	Iterations  int
	Lambda      float64
}

type candidate struct {
	origin locate.Origin
	wtRMS  float64
	nd     int
}

const (
	rmsMultDefault = 2.0
	lambdaMax      = 1e15
)

// Run performs the depth-grid LM search described above, returning
// either UseSVD (the caller should keep its SVD solution unchanged) or
// an improved solution with a Code distinguishing convergence from
// divergence.
//
// svd is the baseline SVD solution and its fit quality (weighted RMS
// and used-datum count), matching compute_hypo_lm's orig_svd/svd_rms/
// nd_svd. init is the location to seed the non-SVD-depth starting
// points from (compute_hypo.c's "the user-supplied initial depth").
func Run(obs []locate.Observation, svd locate.Origin, svdWtRMS float64, svdNd int, init locate.Origin, oracle travel.Oracle, p Params) (Result, error) {
	if len(obs) == 0 {
		return Result{}, fmt.Errorf("locatelm.Run: no observations: %w", gerrors.ErrInvalidArgs)
	}
	if oracle == nil {
		return Result{}, fmt.Errorf("locatelm.Run: nil oracle: %w", gerrors.ErrInvalidArgs)
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = 20
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = 800
	}
	if p.RMSMult <= 0 {
		p.RMSMult = rmsMultDefault
	}
	if p.InitialLambda <= 0 {
		p.InitialLambda = 0.5
	}

	best := candidate{origin: svd, wtRMS: svdWtRMS, nd: svdNd}

	initDepth := init.Depth
	if initDepth < 0 {
		initDepth = 0
	}
	if initDepth > p.MaxDepth {
		initDepth = p.MaxDepth
	}

	starts := []float64{svd.Depth, initDepth, 0, 380, p.MaxDepth}
	if p.FixDepth {
		starts = starts[:2]
	}

	totalIter := 0
	var coarseBestDepth float64
	coarseResults := map[float64]candidate{}

	for i, d := range starts {
		seed := locate.Origin{OriginTime: init.OriginTime, Lon: init.Lon, Lat: init.Lat, Depth: d}
		if i == 0 {
			seed.OriginTime, seed.Lon, seed.Lat = svd.OriginTime, svd.Lon, svd.Lat
		}
		cand, iters, err := lmAtDepth(obs, seed, oracle, p, i >= 2 && !p.FixDepth)
		totalIter += iters
		if err == nil && better(cand, best, p.RMSMult) {
			best = cand
		}
		if i >= 2 {
			coarseResults[d] = cand
		}
	}

	if !p.FixDepth && len(coarseResults) == 3 {
		coarseBestDepth = bestOf(coarseResults)
		for _, d := range refinedDepths(coarseBestDepth) {
			seed := locate.Origin{OriginTime: init.OriginTime, Lon: init.Lon, Lat: init.Lat, Depth: d}
			cand, iters, err := lmAtDepth(obs, seed, oracle, p, true)
			totalIter += iters
			if err == nil && better(cand, best, p.RMSMult) {
				best = cand
			}
		}

		var around []float64
		if best.origin.Depth > 33 {
			around = []float64{best.origin.Depth - 10, best.origin.Depth + 10}
		} else {
			around = []float64{12}
		}
		for _, d := range around {
			if d < 0 || d > p.MaxDepth {
				continue
			}
			seed := locate.Origin{OriginTime: best.origin.OriginTime, Lon: best.origin.Lon, Lat: best.origin.Lat, Depth: d}
			cand, iters, err := lmAtDepth(obs, seed, oracle, p, true)
			totalIter += iters
			if err == nil && better(cand, best, p.RMSMult) {
				best = cand
			}
		}
	}

	res := Result{Origin: best.origin, WeightedRMS: best.wtRMS, NumUsed: best.nd, Iterations: totalIter}
	switch {
	case best.wtRMS >= svdWtRMS:
		res.Code = UseSVD
		res.Origin = svd
		res.WeightedRMS = svdWtRMS
		res.NumUsed = svdNd
	case best.wtRMS < 3.2:
		res.Code = ImprovedConverged
	default:
		res.Code = ImprovedDiverged
	}
	return res, nil
}

// better mirrors compute_hypo_lm's best-candidate comparison: a lower
// weighted RMS wins outright; a candidate with more used data also wins
// provided its RMS hasn't inflated by more than rmsMult per added datum.
func better(cand, cur candidate, rmsMult float64) bool {
	if cand.nd == 0 {
		return false
	}
	if cand.wtRMS < cur.wtRMS {
		return true
	}
	if cand.nd > cur.nd {
		dnd := float64(cand.nd - cur.nd)
		return cand.wtRMS <= cur.wtRMS+rmsMult*dnd
	}
	return false
}

func bestOf(m map[float64]candidate) float64 {
	var bestDepth float64
	bestCand := candidate{wtRMS: math.Inf(1)}
	for d, c := range m {
		if better(c, bestCand, rmsMultDefault) {
			bestCand = c
			bestDepth = d
		}
	}
	return bestDepth
}

// refinedDepths brackets the winning coarse depth with the three
// candidates compute_hypo_lm picks depending on which of {0,380,
// MAX_DEPTH} won (lines ~1779-1798 of compute_hypo.c).
func refinedDepths(coarseBest float64) []float64 {
	switch {
	case coarseBest == 0:
		return []float64{33, 75, 170}
	case coarseBest == 380:
		return []float64{140, 250, 520}
	default:
		return []float64{650, 550, 450}
	}
}

// lmAtDepth runs the Levenberg-Marquardt normal-equation loop from one
// starting hypocenter, holding depth fixed when fixDepth is true
// (matching compute_hypo_lm's depth-grid phase, which fixes depth while
// testing candidate starting values).
func lmAtDepth(obs []locate.Observation, start locate.Origin, oracle travel.Oracle, p Params, fixDepth bool) (candidate, int, error) {
	origin := start
	depth := clampDepth(start.Depth, p.MaxDepth)
	lambda := p.InitialLambda
	wtRMS := math.Inf(1)
	nd := 0

	np := numFreeParams(p, fixDepth)

	for iter := 0; iter < p.MaxIterations; iter++ {
		rows, resid, sigmas, n := buildRows(obs, origin, depth, oracle, fixDepth || p.FixDepth)
		if n < np {
			break
		}

		alpha, beta := normalEquations(rows, resid, sigmas, np)
		trial := solveLM(alpha, beta, lambda, np)
		if trial == nil {
			lambda *= 10
			if lambda > lambdaMax {
				break
			}
			continue
		}

		trialOrigin, trialDepth := applyStep(origin, depth, trial, p, fixDepth)
		_, trialResid, trialSigmas, trialN := buildRows(obs, trialOrigin, trialDepth, oracle, fixDepth || p.FixDepth)
		trialRMS := weightedRMS(trialResid, trialSigmas)

		if trialN > 0 && (trialRMS < wtRMS || (trialN > nd && trialRMS <= wtRMS+p.RMSMult*float64(trialN-nd))) {
			origin, depth = trialOrigin, trialDepth
			wtRMS, nd = trialRMS, trialN
			lambda /= 10
		} else {
			lambda *= 10
			if lambda > lambdaMax {
				break
			}
		}
	}

	origin.Depth = depth
	return candidate{origin: origin, wtRMS: wtRMS, nd: nd}, p.MaxIterations, nil
}

func clampDepth(d, maxDepth float64) float64 {
	if d < 0 {
		return 0
	}
	if d > maxDepth {
		return maxDepth
	}
	return d
}

func numFreeParams(p Params, fixDepth bool) int {
	n := 4
	if p.FixOriginTime {
		n--
	}
	if p.FixLatLon {
		n -= 2
	}
	if p.FixDepth || fixDepth {
		n--
	}
	if n < 1 {
		n = 1
	}
	return n
}

// buildRows evaluates the oracle for every observation at (origin,
// depth), returning the raw (unnormalized) design-matrix rows,
// residuals, and per-row sigmas -- the same quantities
// get_resids_and_derivs/mrqcof accumulate, kept unnormalized here since
// mrqcof applies the 1/sigma^2 weight itself rather than normalizing
// rows in advance the way locate.Locate's SVD path does.
func buildRows(obs []locate.Observation, origin locate.Origin, depth float64, oracle travel.Oracle, fixDepth bool) (rows [][4]float64, resid, sigmas []float64, n int) {
	for _, o := range obs {
		distDeg, _, esaz := travel.DistAzimuth(o.StaLat, o.StaLon, origin.Lat, origin.Lon)
		resp := oracle.TravelTime(travel.Request{
			Phase: o.Phase, OriginLat: origin.Lat, OriginLon: origin.Lon, OriginDepth: depth,
			DistanceDeg: distDeg, AzimuthDeg: esaz, NeedDepthDerivs: !fixDepth,
		})
		if resp.ErrorCode != travel.ErrNone {
			continue
		}
		if o.UseTime {
			sig := o.Sigma
			if sig <= 0 {
				sig = 1
			}
			rows = append(rows, [4]float64{1, resp.Deriv.Dlon, resp.Deriv.Dlat, -resp.Deriv.Ddepth})
			resid = append(resid, o.Time-resp.TravelTime-origin.OriginTime)
			sigmas = append(sigmas, sig)
			n++
		}
		if o.UseSlowness {
			sig := o.SloSigma
			if sig <= 0 {
				sig = 1
			}
			rows = append(rows, [4]float64{0, resp.Deriv.Dlon, resp.Deriv.Dlat, -resp.Deriv.Ddepth})
			resid = append(resid, o.Slowness-resp.Slowness)
			sigmas = append(sigmas, sig)
		}
	}
	return rows, resid, sigmas, n
}

func weightedRMS(resid, sigmas []float64) float64 {
	if len(resid) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i, r := range resid {
		w := r / sigmas[i]
		sum += w * w
	}
	return math.Sqrt(sum / float64(len(resid)))
}

// normalEquations accumulates alpha = J^T W J and beta = J^T W r over
// the free columns only, matching mrqcof's summation loop.
func normalEquations(rows [][4]float64, resid, sigmas []float64, np int) (*mat.Dense, *mat.VecDense) {
	alpha := mat.NewDense(np, np, nil)
	beta := mat.NewVecDense(np, nil)
	for i, row := range rows {
		w := 1 / (sigmas[i] * sigmas[i])
		for j := 0; j < np; j++ {
			beta.SetVec(j, beta.AtVec(j)+w*row[j]*resid[i])
			for k := 0; k < np; k++ {
				alpha.Set(j, k, alpha.At(j, k)+w*row[j]*row[k])
			}
		}
	}
	return alpha, beta
}

// solveLM inflates alpha's diagonal by (1+lambda) and solves for the
// step via a dense linear solve, returning nil if the system is
// singular (mirroring gaussj's "Singular Matrix" failure path).
func solveLM(alpha *mat.Dense, beta *mat.VecDense, lambda float64, np int) []float64 {
	scaled := mat.NewDense(np, np, nil)
	scaled.Copy(alpha)
	for i := 0; i < np; i++ {
		scaled.Set(i, i, scaled.At(i, i)*(1+lambda))
	}
	var x mat.VecDense
	if err := x.SolveVec(scaled, beta); err != nil {
		return nil
	}
	out := make([]float64, np)
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out
}

// applyStep expands the compacted LM step and applies it the same way
// locate.Locate does: origin time and lon/lat additively (lon/lat via a
// depth-adjusted-radius great-circle move treating the step as a local
// east/north kilometer pair), depth subtractively with an MAX_DEPTH/0
// clamp.
func applyStep(origin locate.Origin, depth float64, step []float64, p Params, fixDepth bool) (locate.Origin, float64) {
	var ysol [4]float64
	ip := 0
	if !p.FixOriginTime {
		ysol[0] = step[ip]
		ip++
	}
	if !p.FixLatLon {
		ysol[1] = step[ip]
		ip++
		ysol[2] = step[ip]
		ip++
	}
	if !p.FixDepth && !fixDepth && ip < len(step) {
		ysol[3] = step[ip]
	}

	newOrigin := origin
	if ysol[1] != 0 || ysol[2] != 0 {
		azi := 180 / math.Pi * math.Atan2(ysol[1], ysol[2])
		dist := math.Hypot(ysol[1], ysol[2])
		const earthRadiusKm = 6371.0
		deltaDeg := 180 / math.Pi * (dist / (earthRadiusKm - depth))
		newOrigin.Lat, newOrigin.Lon = sphericalStep(origin.Lat, origin.Lon, deltaDeg, azi)
	}
	newOrigin.OriginTime = origin.OriginTime + ysol[0]

	newDepth := depth
	if !p.FixDepth && !fixDepth {
		newDepth -= ysol[3]
		newDepth = clampDepth(newDepth, p.MaxDepth)
	}
	return newOrigin, newDepth
}

func sphericalStep(lat, lon, deltaDeg, azimuthDeg float64) (newLat, newLon float64) {
	rad := math.Pi / 180
	delta := deltaDeg * rad
	theta := azimuthDeg * rad
	phi1 := lat * rad

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lam1 := lon * rad
	lam2 := lam1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)
	return phi2 / rad, lam2 / rad
}

// DepthDerivativeOfSlowness estimates d(slowness)/d(depth) at origin by
// Ridders' method of polynomial extrapolation, for the one station/
// phase identified by obsIndex.
//
// Grounded on dfridr/get_slow: a sequence of shrinking central
// differences of slowness-vs-depth is extrapolated via the Neville
// tableau, favoring the lowest-error estimate and stopping early if a
// higher-order term is a safe factor worse than the best error so far.
func DepthDerivativeOfSlowness(obs locate.Observation, origin locate.Origin, initialStep float64, oracle travel.Oracle) float64 {
	const con = 1.4
	const ntab = 10
	const safe = 2.0

	slowAt := func(depth float64) float64 {
		distDeg, _, esaz := travel.DistAzimuth(obs.StaLat, obs.StaLon, origin.Lat, origin.Lon)
		resp := oracle.TravelTime(travel.Request{
			Phase: obs.Phase, OriginLat: origin.Lat, OriginLon: origin.Lon, OriginDepth: depth,
			DistanceDeg: distDeg, AzimuthDeg: esaz,
		})
		if resp.ErrorCode != travel.ErrNone || resp.TravelTime < 0 {
			return -1
		}
		return resp.Slowness
	}

	h := initialStep
	if h == 0 {
		return 0
	}
	for {
		f1, f2 := slowAt(origin.Depth+h), slowAt(origin.Depth-h)
		if f1 >= 0 && f2 >= 0 {
			break
		}
		h *= 0.75
		if h < 1e-10 {
			return 0
		}
	}

	a := make([][]float64, ntab+1)
	for i := range a {
		a[i] = make([]float64, ntab+1)
	}
	a[1][1] = (slowAt(origin.Depth+h) - slowAt(origin.Depth-h)) / (2 * h)
	errBest := math.Inf(1)
	ans := 0.0

	for i := 2; i <= ntab; i++ {
		h /= con
		a[1][i] = (slowAt(origin.Depth+h) - slowAt(origin.Depth-h)) / (2 * h)
		fac := con * con
		for j := 2; j <= i; j++ {
			a[j][i] = (a[j-1][i]*fac - a[j-1][i-1]) / (fac - 1)
			fac *= con * con
			errt := math.Max(math.Abs(a[j][i]-a[j-1][i]), math.Abs(a[j][i]-a[j-1][i-1]))
			if errt <= errBest {
				errBest = errt
				ans = a[j][i]
			}
		}
		if math.Abs(a[i][i]-a[i-1][i-1]) >= safe*errBest {
			break
		}
	}
	return ans
}
