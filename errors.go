// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package coexnet

import "errors"

var (
	ErrInvalidArgs               = errors.New("invalid arguments")
	ErrInvalidMatrixShape        = errors.New("expression matrix shape does not match -rows/-cols")
	ErrMissingValueNotConfigured = errors.New("missing value encountered but -omit-na/-na-val not configured")
	ErrUnknownTransform          = errors.New("unknown transform function")
	ErrUnknownGene               = errors.New("unknown gene")
	ErrOutOfRange                = errors.New("coordinate out of range")
	ErrConflictingSelection      = errors.New("conflicting selection: use a threshold or coordinates, not both")
	ErrTruncatedBlock            = errors.New("truncated similarity block")
	ErrEigensolverFailed         = errors.New("eigensolver failed to converge")
	ErrRMTNoCrossover            = errors.New("no Poisson crossover found above threshold floor")
)
