// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package coexnet

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// miSimilarity estimates mutual information between the two vectors
// with the B-spline smoothed histogram estimator (Daub et al., BMC
// Bioinformatics 2004) and maps it onto the same [-1, 1] scale as the
// correlation kernels:
//
//	score = sign(pearson) * sqrt(1 - 2^(-2*MI))
//
// which is the correlation magnitude a bivariate Gaussian with this
// mutual information would have. Independence gives 0, perfect
// dependence approaches 1.
func miSimilarity(pws pairWiseSet, minObs, bins, degree int) float64 {
	if pws.N < minObs {
		return math.NaN()
	}
	mi := mutualInfo(pws.X, pws.Y, bins, degree)
	if math.IsNaN(mi) {
		return mi
	}
	score := math.Sqrt(1 - math.Exp2(-2*mi))
	if score > 1 {
		score = 1
	}
	if stat.Correlation(pws.X, pws.Y, nil) < 0 {
		score = -score
	}
	return score
}

// mutualInfo returns the raw B-spline MI estimate in bits. NaN if
// either vector is constant (min-max normalization degenerates).
func mutualInfo(x, y []float64, bins, degree int) float64 {
	nx := normalizeUnit(x)
	ny := normalizeUnit(y)
	if nx == nil || ny == nil {
		return math.NaN()
	}
	n := len(x)
	knots := knotVector(bins, degree)
	wx := make([][]float64, n)
	wy := make([][]float64, n)
	for s := 0; s < n; s++ {
		wx[s] = bsplineBasis(nx[s], bins, degree, knots)
		wy[s] = bsplineBasis(ny[s], bins, degree, knots)
	}

	p := make([]float64, bins)      // marginal over x
	q := make([]float64, bins)      // marginal over y
	joint := make([]float64, bins*bins)
	inv := 1 / float64(n)
	for s := 0; s < n; s++ {
		for i := 0; i < bins; i++ {
			bi := wx[s][i]
			if bi == 0 {
				continue
			}
			p[i] += bi * inv
			for j := 0; j < bins; j++ {
				joint[i*bins+j] += bi * wy[s][j] * inv
			}
		}
		for j := 0; j < bins; j++ {
			q[j] += wy[s][j] * inv
		}
	}

	mi := 0.0
	for i := 0; i < bins; i++ {
		for j := 0; j < bins; j++ {
			pij := joint[i*bins+j]
			if pij <= 0 || p[i] <= 0 || q[j] <= 0 {
				continue
			}
			mi += pij * math.Log2(pij/(p[i]*q[j]))
		}
	}
	if mi < 0 {
		// estimator noise only; true MI is non-negative
		mi = 0
	}
	return mi
}

// normalizeUnit min-max rescales v onto [0,1], or returns nil for a
// constant vector.
func normalizeUnit(v []float64) []float64 {
	min, max := v[0], v[0]
	for _, x := range v[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	if max == min {
		return nil
	}
	out := make([]float64, len(v))
	scale := 1 / (max - min)
	for i, x := range v {
		out[i] = (x - min) * scale
	}
	return out
}

// knotVector builds the clamped uniform knot sequence over [0,1] for
// `bins` basis functions of the given degree: bins+degree+1 knots,
// degree+1 of them pinned at each end.
func knotVector(bins, degree int) []float64 {
	knots := make([]float64, bins+degree+1)
	spans := bins - degree
	for i := range knots {
		switch {
		case i <= degree:
			knots[i] = 0
		case i >= bins:
			knots[i] = 1
		default:
			knots[i] = float64(i-degree) / float64(spans)
		}
	}
	return knots
}

// bsplineBasis evaluates all `bins` B-spline basis functions at u via
// the Cox-de Boor recursion. The basis forms a partition of unity on
// [0,1].
func bsplineBasis(u float64, bins, degree int, knots []float64) []float64 {
	// degree-0 indicators over the bins+degree knot spans
	b := make([]float64, bins+degree)
	if u >= 1 {
		// u==1 belongs to the last non-empty span
		b[bins-1] = 1
	} else {
		for i := range b {
			if knots[i] <= u && u < knots[i+1] {
				b[i] = 1
				break
			}
		}
	}
	for p := 1; p <= degree; p++ {
		for i := 0; i < bins+degree-p; i++ {
			var left, right float64
			if d := knots[i+p] - knots[i]; d > 0 {
				left = (u - knots[i]) / d * b[i]
			}
			if d := knots[i+p+1] - knots[i+1]; d > 0 {
				right = (knots[i+p+1] - u) / d * b[i+1]
			}
			b[i] = left + right
		}
	}
	return b[:bins]
}
