// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package coexnet

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	log "github.com/sirupsen/logrus"
)

type kernelConfig struct {
	minObs   int
	miBins   int
	miDegree int
	floor    float64
}

// scorePair dispatches one gene pair to the selected similarity kernel.
func scorePair(m simMethod, pws pairWiseSet, cfg kernelConfig) float64 {
	switch m {
	case methodPearson:
		return pearson(pws, cfg.minObs)
	case methodSpearman:
		return spearman(pws, cfg.minObs)
	case methodMI:
		return miSimilarity(pws, cfg.minObs, cfg.miBins, cfg.miDegree)
	}
	panic("unreachable: " + m.String())
}

// similarityCmd computes the pairwise similarity matrix for each
// selected method and stores its lower triangle as binary blocks.
type similarityCmd struct {
	ematrix     ematrixArgs
	methodList  string
	minObs      int
	miBins      int
	miDegree    int
	floor       float64
	rowsPerFile int
	threads     int
	set1File    string
	set2File    string
	outputDir   string
}

func (cmd *similarityCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.ematrix.Flags(flags)
	flags.StringVar(&cmd.methodList, "method", "", "comma-separated similarity `methods`: pc (Pearson), sc (Spearman), mi (mutual information)")
	flags.IntVar(&cmd.minObs, "min-obs", 30, "minimum observations (after missing-value removal) required to score a pair")
	flags.IntVar(&cmd.miBins, "mi-bins", 10, "number of B-spline bins for the MI estimator")
	flags.IntVar(&cmd.miDegree, "mi-degree", 3, "B-spline degree for the MI estimator")
	flags.Float64Var(&cmd.floor, "th", math.Inf(-1), "minimum expression `level` to include; sample pairs with a lower value are excluded")
	flags.IntVar(&cmd.rowsPerFile, "rows-per-file", defaultRowsPerFile, "similarity matrix rows per output block file")
	flags.IntVar(&cmd.threads, "threads", runtime.GOMAXPROCS(0), "number of worker threads")
	flags.StringVar(&cmd.set1File, "set1", "", "`file` listing genes (one per line) to compare against all others, or against -set2")
	flags.StringVar(&cmd.set2File, "set2", "", "`file` listing genes to compare against the -set1 genes (requires -set1)")
	flags.StringVar(&cmd.outputDir, "output-dir", ".", "`directory` in which the per-method output directories are created")
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

	methods, err := parseMethods(cmd.methodList)
	if err != nil {
		return 2
	}
	if cmd.set2File != "" && cmd.set1File == "" {
		err = fmt.Errorf("%w: -set2 requires -set1", ErrInvalidArgs)
		return 2
	}
	if cmd.minObs < 1 || cmd.miBins < 1 || cmd.miDegree < 1 || cmd.miBins <= cmd.miDegree {
		err = fmt.Errorf("%w: -min-obs, -mi-bins, -mi-degree must be positive and -mi-bins > -mi-degree", ErrInvalidArgs)
		return 2
	}

	em, err := cmd.ematrix.Load()
	if err != nil {
		return 1
	}
	var sel pairSelector
	if cmd.set1File != "" {
		sel.set1, err = loadGeneSet(cmd.set1File, em)
		if err != nil {
			return 1
		}
	}
	if cmd.set2File != "" {
		sel.set2, err = loadGeneSet(cmd.set2File, em)
		if err != nil {
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = cmd.run(ctx, em, methods, sel, stdout)
	if err != nil {
		return 1
	}
	return 0
}

func (cmd *similarityCmd) run(ctx context.Context, em *EMatrix, methods []simMethod, sel pairSelector, stdout io.Writer) error {
	cfg := kernelConfig{minObs: cmd.minObs, miBins: cmd.miBins, miDegree: cmd.miDegree, floor: cmd.floor}
	layout := blockLayout{NumGenes: em.NumGenes(), RowsPerFile: cmd.rowsPerFile}

	for _, m := range methods {
		if err := os.MkdirAll(filepath.Join(cmd.outputDir, m.DirName()), 0777); err != nil {
			return err
		}
	}

	totalComps := int64(em.NumGenes()) * int64(em.NumGenes()+1) / 2
	var done, nextReport int64
	nextReport = 1000
	hists := make([]*histogram, len(methods))
	for i := range hists {
		hists[i] = &histogram{}
	}

	log.Printf("computing %d pairwise comparisons in %d blocks", totalComps, layout.NumBlocks())
	for b := 0; b < layout.NumBlocks(); b++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r0, r1 := layout.BlockRange(b)
		log.Printf("block %d of %d: rows %d..%d", b+1, layout.NumBlocks(), r0, r1-1)

		// compute all rows of the block before anything is
		// written, so a failed or cancelled block leaves no file
		rowBuf := make([][][]float32, r1-r0)
		workers := throttle{Max: cmd.threads}
		for j := r0; j < r1; j++ {
			j := j
			workers.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				rowBuf[j-r0] = computeRow(em, j, methods, sel, cfg)
				return nil
			})
		}
		if err := workers.Wait(); err != nil {
			return err
		}

		writers := make([]*blockWriter, len(methods))
		for i, m := range methods {
			w, err := createBlock(filepath.Join(cmd.outputDir, m.DirName()), em.FilePrefix(), m, b, layout)
			if err != nil {
				for _, open := range writers[:i] {
					open.Abort()
				}
				return err
			}
			writers[i] = w
		}
		for j := r0; j < r1; j++ {
			for i := range methods {
				scores := rowBuf[j-r0][i]
				if err := writers[i].WriteRow(j, scores); err != nil {
					for _, w := range writers {
						w.Abort()
					}
					return err
				}
				for _, s := range scores[:j] {
					hists[i].Add(float64(s))
				}
			}
			rowBuf[j-r0] = nil
			done += int64(j) + 1
			if done >= nextReport {
				fmt.Fprintf(stdout, "percent complete: %.2f%%\r", float64(done)/float64(totalComps)*100)
				nextReport = done - done%1000 + 1000
			}
		}
		for _, w := range writers {
			if err := w.Close(); err != nil {
				return err
			}
		}
	}
	fmt.Fprintf(stdout, "percent complete: 100.00%%\n")

	for i, m := range methods {
		path := filepath.Join(cmd.outputDir, m.DirName(), fmt.Sprintf("%s.%s.corrhist.txt", em.FilePrefix(), m))
		if err := hists[i].WriteFile(path); err != nil {
			return err
		}
	}
	log.Print("done")
	return nil
}

// computeRow scores gene j against genes 0..j for every selected
// method. The diagonal is 1 and unselected pairs are NaN.
func computeRow(em *EMatrix, j int, methods []simMethod, sel pairSelector, cfg kernelConfig) [][]float32 {
	nan := float32(math.NaN())
	out := make([][]float32, len(methods))
	for i := range out {
		out[i] = make([]float32, j+1)
		out[i][j] = 1
	}
	for k := 0; k < j; k++ {
		if !sel.Wants(j, k) {
			for i := range out {
				out[i][k] = nan
			}
			continue
		}
		pws := buildPairWiseSet(em, j, k, cfg.floor)
		for i, m := range methods {
			out[i][k] = float32(scorePair(m, pws, cfg))
		}
	}
	return out
}
