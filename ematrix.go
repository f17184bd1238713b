// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package coexnet

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

// EMatrix is a dense gene-by-sample expression matrix. Missing cells
// (the configured NA token, or non-positive values under a log
// transform) are stored as NaN. Immutable after Load.
type EMatrix struct {
	GeneNames   []string
	SampleNames []string
	Values      [][]float64

	prefix    string
	geneIndex map[string]int
}

// ematrixArgs is the expression-matrix flag group shared by all
// subcommands that read an ematrix file.
type ematrixArgs struct {
	Path    string
	Rows    int
	Cols    int
	Headers bool
	OmitNA  bool
	NAVal   string
	Func    string
}

func (a *ematrixArgs) Flags(flags *flag.FlagSet) {
	flags.StringVar(&a.Path, "ematrix", "", "expression matrix `file` (rows = genes, columns = samples; .gz ok)")
	flags.IntVar(&a.Rows, "rows", 0, "number of `lines` in the ematrix file, including the header line if present")
	flags.IntVar(&a.Cols, "cols", 0, "number of `columns` in the ematrix file")
	flags.BoolVar(&a.Headers, "headers", false, "first line of the ematrix contains sample names")
	flags.BoolVar(&a.OmitNA, "omit-na", false, "ignore missing values (requires -na-val)")
	flags.StringVar(&a.NAVal, "na-val", "", "`string` representing missing values (e.g. NA)")
	flags.StringVar(&a.Func, "func", "", "transform to apply to expression values: log, log2, or log10")
}

func transformFunc(name string) (func(float64) float64, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "log":
		return math.Log, nil
	case "log2":
		return math.Log2, nil
	case "log10":
		return math.Log10, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, name)
	}
}

// Load reads, transforms, and indexes the expression matrix named by
// the flag group.
func (a *ematrixArgs) Load() (*EMatrix, error) {
	if a.Path == "" {
		return nil, fmt.Errorf("%w: an expression matrix is required (-ematrix)", ErrInvalidArgs)
	}
	if a.Rows <= 0 || a.Cols <= 0 {
		return nil, fmt.Errorf("%w: -rows and -cols must be positive", ErrInvalidArgs)
	}
	transform, err := transformFunc(a.Func)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(a.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var rdr io.Reader = f
	if strings.HasSuffix(a.Path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		rdr = gz
	}

	ngenes := a.Rows
	if a.Headers {
		ngenes--
	}
	nsamples := a.Cols - 1
	if ngenes <= 0 || nsamples <= 0 {
		return nil, fmt.Errorf("%w: %d gene rows, %d sample columns", ErrInvalidMatrixShape, ngenes, nsamples)
	}

	em := &EMatrix{
		GeneNames: make([]string, 0, ngenes),
		Values:    make([][]float64, 0, ngenes),
		prefix:    filePrefix(a.Path),
		geneIndex: make(map[string]int, ngenes),
	}

	scanner := bufio.NewScanner(rdr)
	scanner.Buffer(make([]byte, 1<<20), 1<<26)
	lineno := 0
	for scanner.Scan() {
		lineno++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if lineno == 1 && a.Headers {
			if len(fields) != nsamples {
				return nil, fmt.Errorf("%w: header has %d fields, want %d sample names", ErrInvalidMatrixShape, len(fields), nsamples)
			}
			em.SampleNames = fields
			continue
		}
		if len(fields) != a.Cols {
			return nil, fmt.Errorf("%w: line %d has %d fields, want %d", ErrInvalidMatrixShape, lineno, len(fields), a.Cols)
		}
		name := fields[0]
		row := make([]float64, nsamples)
		for i, field := range fields[1:] {
			if a.OmitNA && field == a.NAVal {
				row[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				if !a.OmitNA || a.NAVal == "" {
					return nil, fmt.Errorf("%w: %q at line %d, column %d", ErrMissingValueNotConfigured, field, lineno, i+2)
				}
				return nil, fmt.Errorf("unparsable value %q at line %d, column %d", field, lineno, i+2)
			}
			if transform != nil {
				if v <= 0 {
					v = math.NaN()
				} else {
					v = transform(v)
				}
			}
			row[i] = v
		}
		if _, dup := em.geneIndex[name]; dup {
			return nil, fmt.Errorf("%w: duplicate gene name %q at line %d", ErrInvalidMatrixShape, name, lineno)
		}
		em.geneIndex[name] = len(em.GeneNames)
		em.GeneNames = append(em.GeneNames, name)
		em.Values = append(em.Values, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(em.GeneNames) != ngenes {
		return nil, fmt.Errorf("%w: read %d gene rows, want %d", ErrInvalidMatrixShape, len(em.GeneNames), ngenes)
	}
	log.Printf("loaded expression matrix: %d genes, %d samples", em.NumGenes(), em.NumSamples())
	return em, nil
}

func (em *EMatrix) NumGenes() int   { return len(em.GeneNames) }
func (em *EMatrix) NumSamples() int { return len(em.Values[0]) }

// Row returns the expression values for one gene. The returned slice
// is shared, not copied.
func (em *EMatrix) Row(j int) []float64 { return em.Values[j] }

// GeneIndex returns the row index of the named gene, or -1.
func (em *EMatrix) GeneIndex(name string) int {
	if i, ok := em.geneIndex[name]; ok {
		return i
	}
	return -1
}

// FilePrefix is the input file's base name with compression and final
// extensions stripped. Derived output files are named from it.
func (em *EMatrix) FilePrefix() string { return em.prefix }

func filePrefix(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".gz")
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
