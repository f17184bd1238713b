// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package coexnet

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// pearson returns the sample Pearson correlation of the pair set, or
// NaN when fewer than minObs observations survive filtering or either
// vector has zero variance. The result is clamped to [-1, 1].
func pearson(pws pairWiseSet, minObs int) float64 {
	if pws.N < minObs {
		return math.NaN()
	}
	return clampUnit(stat.Correlation(pws.X, pws.Y, nil))
}

func clampUnit(r float64) float64 {
	switch {
	case r > 1:
		return 1
	case r < -1:
		return -1
	}
	return r
}
