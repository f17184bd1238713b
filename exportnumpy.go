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

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

// exportNumpy mirrors a stored lower-triangle similarity matrix into a
// dense symmetric float32 array and writes it in npy format.
type exportNumpy struct {
	ematrix     ematrixArgs
	methodCode  string
	rowsPerFile int
	inputDir    string
	outputFile  string
}

func (cmd *exportNumpy) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.ematrix.Flags(flags)
	flags.StringVar(&cmd.methodCode, "method", "", "similarity `method` whose matrix to export: pc, sc, or mi")
	flags.IntVar(&cmd.rowsPerFile, "rows-per-file", defaultRowsPerFile, "similarity matrix rows per block file (must match the similarity run)")
	flags.StringVar(&cmd.inputDir, "input-dir", ".", "`directory` containing the per-method similarity directories")
	flags.StringVar(&cmd.outputFile, "o", "-", "output `file` (- for stdout)")
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
	em, err := cmd.ematrix.Load()
	if err != nil {
		return 1
	}
	sm := openSimMatrix(filepath.Join(cmd.inputDir, method.DirName()), em.FilePrefix(), method, em.NumGenes(), cmd.rowsPerFile)

	n := em.NumGenes()
	dense := make([]float32, n*n)
	nan := float32(math.NaN())
	for i := range dense {
		dense[i] = nan
	}
	err = sm.ReadRows(func(j int, scores []float32) error {
		for k, s := range scores {
			dense[j*n+k] = s
			dense[k*n+j] = s
		}
		return nil
	})
	if err != nil {
		return 1
	}

	var output io.WriteCloser
	if cmd.outputFile == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(cmd.outputFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0777)
		if err != nil {
			return 1
		}
	}
	bufw := bufio.NewWriter(output)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		output.Close()
		return 1
	}
	npw.Shape = []int{n, n}
	err = npw.WriteFloat32(dense)
	if err != nil {
		output.Close()
		return 1
	}
	err = bufw.Flush()
	if err != nil {
		output.Close()
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	log.Printf("exported %dx%d matrix", n, n)
	return 0
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
