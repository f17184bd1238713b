// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package coexnet

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// thresholdCmd picks a significance threshold for a stored similarity
// matrix with the random-matrix-theory spectral test.
type thresholdCmd struct {
	ematrix     ematrixArgs
	methodCode  string
	thStart     float64
	thStep      float64
	chiSought   float64
	rowsPerFile int
	inputDir    string
}

func (cmd *thresholdCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.ematrix.Flags(flags)
	flags.StringVar(&cmd.methodCode, "method", "", "similarity `method` whose matrix to threshold: pc, sc, or mi")
	flags.Float64Var(&cmd.thStart, "th-start", 0.96, "starting threshold")
	flags.Float64Var(&cmd.thStep, "th-step", 0.001, "threshold step size")
	flags.Float64Var(&cmd.chiSought, "chi", 200, "chi-square cutoff against the Poisson spacing distribution")
	flags.IntVar(&cmd.rowsPerFile, "rows-per-file", defaultRowsPerFile, "similarity matrix rows per block file (must match the similarity run)")
	flags.StringVar(&cmd.inputDir, "input-dir", ".", "`directory` containing the per-method similarity directories")
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
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
	log.Print("loading similarity matrix")
	tm, err := loadTriMatrix(sm)
	if err != nil {
		return 1
	}

	scanner := newRMTScanner(cmd.thStart, cmd.thStep, cmd.chiSought)
	th, err := scanner.Scan(tm)
	if err != nil {
		return 1
	}
	fmt.Fprintf(stdout, "threshold: %f\n", th)
	return 0
}
