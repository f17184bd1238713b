// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package coexnet

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// corrhistCmd recomputes the absolute-score histogram from a stored
// similarity matrix, for runs whose histogram file was lost or whose
// blocks were produced by separate partial runs.
type corrhistCmd struct {
	ematrix     ematrixArgs
	methodCode  string
	rowsPerFile int
	inputDir    string
	outputFile  string
}

func (cmd *corrhistCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.ematrix.Flags(flags)
	flags.StringVar(&cmd.methodCode, "method", "", "similarity `method` whose matrix to scan: pc, sc, or mi")
	flags.IntVar(&cmd.rowsPerFile, "rows-per-file", defaultRowsPerFile, "similarity matrix rows per block file (must match the similarity run)")
	flags.StringVar(&cmd.inputDir, "input-dir", ".", "`directory` containing the per-method similarity directories")
	flags.StringVar(&cmd.outputFile, "o", "-", "histogram output `file` (- for stdout)")
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

	var hist histogram
	err = sm.ReadRows(func(j int, scores []float32) error {
		for _, s := range scores[:j] {
			hist.Add(float64(s))
		}
		return nil
	})
	if err != nil {
		return 1
	}

	if cmd.outputFile == "-" {
		err = hist.WriteTo(stdout)
	} else {
		err = hist.WriteFile(cmd.outputFile)
	}
	if err != nil {
		return 1
	}
	log.Printf("histogram of %d gene pairs written", int64(em.NumGenes())*int64(em.NumGenes()-1)/2)
	return 0
}
