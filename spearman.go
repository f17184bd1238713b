// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package coexnet

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// spearman returns Spearman's rank correlation: Pearson on tie-averaged
// ranks. NaN rules match pearson.
func spearman(pws pairWiseSet, minObs int) float64 {
	if pws.N < minObs {
		return math.NaN()
	}
	return clampUnit(stat.Correlation(ranks(pws.X), ranks(pws.Y), nil))
}

// ranks assigns 1-based ranks, averaging over runs of equal values.
// Stable with respect to input order.
func ranks(v []float64) []float64 {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })
	r := make([]float64, len(v))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && v[idx[j+1]] == v[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			r[idx[k]] = avg
		}
		i = j + 1
	}
	return r
}
