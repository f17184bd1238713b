// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package coexnet

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// loadGeneSet reads a one-gene-name-per-line file and resolves each
// name against the expression matrix. Unknown names are fatal.
func loadGeneSet(path string, em *EMatrix) (map[int]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	set := map[int]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		idx := em.GeneIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q in %s", ErrUnknownGene, name, path)
		}
		set[idx] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

// pairSelector decides which gene pairs get a computed score. With no
// set1 every pair is computed; with set1 only, pairs touching set1;
// with both, pairs joining set1 to set2.
type pairSelector struct {
	set1 map[int]bool
	set2 map[int]bool
}

func (ps pairSelector) Wants(j, k int) bool {
	if ps.set1 == nil {
		return true
	}
	if ps.set2 == nil {
		return ps.set1[j] || ps.set1[k]
	}
	return (ps.set1[j] && ps.set2[k]) || (ps.set1[k] && ps.set2[j])
}
