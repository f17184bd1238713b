// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package coexnet

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// triMatrix is a full similarity matrix held in memory as its packed
// lower triangle (diagonal included), loaded once per threshold scan.
type triMatrix struct {
	n    int
	data []float32
}

func loadTriMatrix(sm *simMatrix) (*triMatrix, error) {
	n := sm.layout.NumGenes
	tm := &triMatrix{
		n:    n,
		data: make([]float32, int64(n)*int64(n+1)/2),
	}
	err := sm.ReadRows(func(j int, scores []float32) error {
		copy(tm.data[int64(j)*int64(j+1)/2:], scores)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tm, nil
}

func (tm *triMatrix) At(a, b int) float64 {
	if a < b {
		a, b = b, a
	}
	return float64(tm.data[int64(a)*int64(a+1)/2+int64(b)])
}

// rmtScanner drives the descending-threshold spectral test. At each
// candidate threshold it prunes the similarity matrix to the genes
// still connected, computes the eigenvalue nearest-neighbor spacing
// distribution after unfolding, and chi-square tests it against the
// Poisson expectation. The scan stops at the first candidate whose
// NNSD is no longer Poisson-consistent and reports the previous one.
type rmtScanner struct {
	StartThreshold float64 // first candidate
	StepSize       float64 // decrement per candidate
	ChiSoughtValue float64 // chi-square cutoff against Poisson
	FloorThreshold float64 // scan failure boundary
	MinMatrixSize  int     // minimum pruned-matrix dimension

	nnsdBins     int
	nnsdMax      float64
	polyDegree   int
	dupTolerance float64
}

func newRMTScanner(start, step, chi float64) *rmtScanner {
	return &rmtScanner{
		StartThreshold: start,
		StepSize:       step,
		ChiSoughtValue: chi,
		FloorThreshold: 0.5,
		MinMatrixSize:  100,
		nnsdBins:       60,
		nnsdMax:        3,
		polyDegree:     7,
		dupTolerance:   1e-6,
	}
}

var poissonChi2 = distuv.ChiSquared{K: 59, Src: rand.NewSource(rand.Uint64())}

// Scan returns the selected threshold, or ErrRMTNoCrossover if the
// spectrum stays Poisson-consistent all the way down to the floor (or
// the pruned matrix gets too small before a crossover shows up).
func (sc *rmtScanner) Scan(tm *triMatrix) (float64, error) {
	lastGood := math.NaN()
	for t := sc.StartThreshold; t >= sc.FloorThreshold; t -= sc.StepSize {
		adj, n := pruneAdjacency(tm, t)
		if n < sc.MinMatrixSize {
			return 0, fmt.Errorf("%w: only %d genes connected at %.4f, need %d", ErrRMTNoCrossover, n, t, sc.MinMatrixSize)
		}
		eigs, err := symEigenvalues(adj, n)
		if err != nil {
			return 0, err
		}
		eigs = dedupeSorted(eigs, sc.dupTolerance)
		spacings := sc.unfold(eigs)
		chiPoisson := sc.chiSquareNNSD(spacings, poissonPDF)
		chiGOE := sc.chiSquareNNSD(spacings, goePDF)
		log.Printf("threshold %.4f: n=%d, eigenvalues=%d, chi2[poisson]=%.2f (p=%.4g), chi2[goe]=%.2f",
			t, n, len(eigs), chiPoisson, 1-poissonChi2.CDF(chiPoisson), chiGOE)
		if chiPoisson >= sc.ChiSoughtValue {
			if math.IsNaN(lastGood) {
				return 0, fmt.Errorf("%w: NNSD already GOE-like at starting threshold %.4f", ErrRMTNoCrossover, t)
			}
			return lastGood, nil
		}
		lastGood = t
	}
	return 0, fmt.Errorf("%w: scan reached floor %.4f", ErrRMTNoCrossover, sc.FloorThreshold)
}

// pruneAdjacency builds the dense symmetric adjacency over the genes
// with at least one off-diagonal |s| >= t. Entries below t are zero,
// kept entries are |s|, and the diagonal is zero.
func pruneAdjacency(tm *triMatrix, t float64) (*mat.SymDense, int) {
	keep := make([]int, 0, tm.n)
	for i := 0; i < tm.n; i++ {
		for j := 0; j < tm.n; j++ {
			if j == i {
				continue
			}
			s := tm.At(i, j)
			if !math.IsNaN(s) && math.Abs(s) >= t {
				keep = append(keep, i)
				break
			}
		}
	}
	n := len(keep)
	if n == 0 {
		return nil, 0
	}
	adj := mat.NewSymDense(n, nil)
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			s := tm.At(keep[a], keep[b])
			if !math.IsNaN(s) && math.Abs(s) >= t {
				adj.SetSym(a, b, math.Abs(s))
			}
		}
	}
	return adj, n
}

// symEigenvalues returns all eigenvalues of the symmetric matrix in
// ascending order.
func symEigenvalues(adj *mat.SymDense, n int) ([]float64, error) {
	var es mat.EigenSym
	if !es.Factorize(adj, false) {
		return nil, fmt.Errorf("%w: %dx%d adjacency", ErrEigensolverFailed, n, n)
	}
	return es.Values(nil), nil
}

// dedupeSorted removes eigenvalues closer than tol to their
// predecessor; degeneracies break the unfolding.
func dedupeSorted(eigs []float64, tol float64) []float64 {
	out := eigs[:0]
	for i, e := range eigs {
		if i == 0 || e-out[len(out)-1] > tol {
			out = append(out, e)
		}
	}
	return out
}

// unfold maps the eigenvalues through a smooth fit of their empirical
// cumulative density so the mean spacing becomes 1, trims a sliver at
// each spectrum edge, and returns the nearest-neighbor spacings.
func (sc *rmtScanner) unfold(eigs []float64) []float64 {
	m := len(eigs)
	if m < 3 {
		return nil
	}
	lo, hi := eigs[0], eigs[m-1]
	x := make([]float64, m)
	y := make([]float64, m)
	for i, e := range eigs {
		x[i] = (e - lo) / (hi - lo)
		y[i] = float64(i) / float64(m-1)
	}
	coef := polyFit(x, y, sc.polyDegree)
	unfolded := make([]float64, m)
	for i := range x {
		unfolded[i] = float64(m) * polyEval(coef, x[i])
	}
	trim := (m + 99) / 100
	kept := unfolded[trim : m-trim]
	if len(kept) < 2 {
		return nil
	}
	spacings := make([]float64, len(kept)-1)
	for i := range spacings {
		spacings[i] = kept[i+1] - kept[i]
	}
	return spacings
}

// polyFit least-squares fits y ~ poly(x) of the given degree (clamped
// to the available points) and returns the coefficients, constant term
// first.
func polyFit(x, y []float64, degree int) []float64 {
	if degree > len(x)-1 {
		degree = len(x) - 1
	}
	vander := mat.NewDense(len(x), degree+1, nil)
	for i, xi := range x {
		p := 1.0
		for j := 0; j <= degree; j++ {
			vander.Set(i, j, p)
			p *= xi
		}
	}
	var qr mat.QR
	qr.Factorize(vander)
	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, mat.NewVecDense(len(y), y)); err != nil {
		// singular fit; fall back to the identity map
		return []float64{0, 1}
	}
	out := make([]float64, degree+1)
	for j := range out {
		out[j] = coef.AtVec(j)
	}
	return out
}

func polyEval(coef []float64, x float64) float64 {
	v := 0.0
	for j := len(coef) - 1; j >= 0; j-- {
		v = v*x + coef[j]
	}
	return v
}

func poissonPDF(s float64) float64 { return math.Exp(-s) }

func goePDF(s float64) float64 {
	return math.Pi / 2 * s * math.Exp(-math.Pi/4*s*s)
}

// chiSquareNNSD bins the spacings over [0, nnsdMax] and chi-square
// compares the observed counts to the expected counts under pdf.
func (sc *rmtScanner) chiSquareNNSD(spacings []float64, pdf func(float64) float64) float64 {
	if len(spacings) == 0 {
		return math.Inf(1)
	}
	obs := make([]float64, sc.nnsdBins)
	width := sc.nnsdMax / float64(sc.nnsdBins)
	n := 0
	for _, s := range spacings {
		bin := int(s / width)
		if s < 0 || bin >= sc.nnsdBins {
			continue
		}
		obs[bin]++
		n++
	}
	if n == 0 {
		return math.Inf(1)
	}
	chi := 0.0
	for k := 0; k < sc.nnsdBins; k++ {
		center := (float64(k) + 0.5) * width
		expected := pdf(center) * width * float64(n)
		d := obs[k] - expected
		chi += d * d / expected
	}
	return chi
}
