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
	"strings"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

// extractCmd either scans a stored similarity matrix for edges at or
// above a threshold, or looks up a single cell by coordinates or gene
// names.
type extractCmd struct {
	ematrix     ematrixArgs
	methodCode  string
	th          float64
	xCoord      int
	yCoord      int
	gene1       string
	gene2       string
	rowsPerFile int
	inputDir    string
	outputFile  string
}

func (cmd *extractCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.ematrix.Flags(flags)
	flags.StringVar(&cmd.methodCode, "method", "", "similarity `method` whose matrix to read: pc, sc, or mi")
	flags.Float64Var(&cmd.th, "th", 0, "similarity `threshold`; all edges with |score| at or above it are written")
	flags.IntVar(&cmd.xCoord, "x", -1, "extract a single similarity value: the x coordinate (requires -y)")
	flags.IntVar(&cmd.yCoord, "y", -1, "extract a single similarity value: the y coordinate (requires -x)")
	flags.StringVar(&cmd.gene1, "gene1", "", "extract a single similarity value: first gene `name` (requires -gene2)")
	flags.StringVar(&cmd.gene2, "gene2", "", "extract a single similarity value: second gene `name` (requires -gene1)")
	flags.IntVar(&cmd.rowsPerFile, "rows-per-file", defaultRowsPerFile, "similarity matrix rows per block file (must match the similarity run)")
	flags.StringVar(&cmd.inputDir, "input-dir", ".", "`directory` containing the per-method similarity directories")
	flags.StringVar(&cmd.outputFile, "o", "", "edge list output `file` (default <prefix>.<method>.coexpnet.edges.txt; .gz ok; - for stdout)")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return 2
	}
	log.SetLevel(lvl)

	method, err := parseMethod(cmd.methodCode)
	if err != nil {
		return 2
	}
	haveCell := cmd.xCoord >= 0 || cmd.yCoord >= 0 || cmd.gene1 != "" || cmd.gene2 != ""
	if cmd.th > 0 && haveCell {
		err = ErrConflictingSelection
		return 2
	}
	if cmd.th <= 0 && !haveCell {
		err = fmt.Errorf("%w: provide -th, -x/-y, or -gene1/-gene2", ErrInvalidArgs)
		return 2
	}
	if (cmd.gene1 == "") != (cmd.gene2 == "") {
		err = fmt.Errorf("%w: -gene1 and -gene2 must be used together", ErrInvalidArgs)
		return 2
	}

	em, err := cmd.ematrix.Load()
	if err != nil {
		return 1
	}
	sm := openSimMatrix(filepath.Join(cmd.inputDir, method.DirName()), em.FilePrefix(), method, em.NumGenes(), cmd.rowsPerFile)

	if cmd.th > 0 {
		err = cmd.writeNetwork(em, method, sm, stdout)
		if err != nil {
			return 1
		}
		return 0
	}

	x, y := cmd.xCoord, cmd.yCoord
	if cmd.gene1 != "" {
		if x = em.GeneIndex(cmd.gene1); x < 0 {
			err = fmt.Errorf("%w: %q", ErrUnknownGene, cmd.gene1)
			return 1
		}
		if y = em.GeneIndex(cmd.gene2); y < 0 {
			err = fmt.Errorf("%w: %q", ErrUnknownGene, cmd.gene2)
			return 1
		}
	}
	if x < 1 || y < 1 || x >= em.NumGenes() || y >= em.NumGenes() {
		err = fmt.Errorf("%w: coordinates (%d, %d) must both be in [1, %d]", ErrOutOfRange, x, y, em.NumGenes()-1)
		return 1
	}
	if x < y {
		x, y = y, x
	}
	score, err := sm.At(x, y)
	if err != nil {
		return 1
	}
	fmt.Fprintf(stdout, "%f\n", score)
	return 0
}

// writeNetwork scans all blocks in order and emits one line per kept
// edge: geneA, geneB, score, tab separated. Lower-triangle iteration
// guarantees each edge appears exactly once.
func (cmd *extractCmd) writeNetwork(em *EMatrix, method simMethod, sm *simMatrix, stdout io.Writer) error {
	path := cmd.outputFile
	if path == "" {
		path = fmt.Sprintf("%s.%s.coexpnet.edges.txt", em.FilePrefix(), method)
	}
	var out io.WriteCloser
	if path == "-" {
		out = nopCloser{stdout}
	} else {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0777)
		if err != nil {
			return err
		}
		out = f
	}
	bufw := bufio.NewWriter(out)
	var w io.Writer = bufw
	var gzw *pgzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gzw = pgzip.NewWriter(bufw)
		w = gzw
	}

	edges := 0
	err := sm.ReadRows(func(j int, scores []float32) error {
		for k := 0; k < j; k++ {
			s := float64(scores[k])
			if math.IsNaN(s) || math.Abs(s) < cmd.th {
				continue
			}
			if _, err := fmt.Fprintf(w, "%s\t%s\t%0.6f\n", em.GeneNames[j], em.GeneNames[k], s); err != nil {
				return err
			}
			edges++
		}
		return nil
	})
	if err != nil {
		out.Close()
		if path != "-" {
			os.Remove(path)
		}
		return err
	}
	if gzw != nil {
		if err := gzw.Close(); err != nil {
			out.Close()
			return err
		}
	}
	if err := bufw.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	log.Printf("wrote %d edges at threshold %f", edges, cmd.th)
	return nil
}
