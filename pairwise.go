// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package coexnet

import "math"

// pairWiseSet holds the aligned sample values for one gene pair after
// dropping samples that are missing in either gene (and, if a floor is
// configured, samples where either value falls below it). Sample order
// is preserved. This is the only place sample filtering happens; the
// similarity kernels consume X, Y, and N as-is.
type pairWiseSet struct {
	X []float64
	Y []float64
	N int
}

// buildPairWiseSet filters the sample pairs of rows j and k. floor is
// the minimum expression level to keep; pass math.Inf(-1) to keep all.
func buildPairWiseSet(em *EMatrix, j, k int, floor float64) pairWiseSet {
	rowj, rowk := em.Row(j), em.Row(k)
	x := make([]float64, 0, len(rowj))
	y := make([]float64, 0, len(rowj))
	for s := range rowj {
		a, b := rowj[s], rowk[s]
		if math.IsNaN(a) || math.IsNaN(b) {
			continue
		}
		if a < floor || b < floor {
			continue
		}
		x = append(x, a)
		y = append(y, b)
	}
	return pairWiseSet{X: x, Y: y, N: len(x)}
}
