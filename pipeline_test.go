// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package coexnet

import (
	"bytes"
	"io/ioutil"
	"math"
	"os"
	"strings"

	"github.com/kshedden/gonpy"
	"gopkg.in/check.v1"
)

type pipelineSuite struct{}

var _ = check.Suite(&pipelineSuite{})

// writeToyEMatrix writes a 4-gene, 10-sample expression matrix with
// exactly known pairwise correlations: gene2 = 2*gene1, gene3 reverses
// gene1, gene4 is constant.
func writeToyEMatrix(c *check.C, dir string) (path string, ematrixFlags []string) {
	path = dir + "/toy.tsv"
	lines := []string{
		"gene1\t1\t2\t3\t4\t5\t6\t7\t8\t9\t10",
		"gene2\t2\t4\t6\t8\t10\t12\t14\t16\t18\t20",
		"gene3\t10\t9\t8\t7\t6\t5\t4\t3\t2\t1",
		"gene4\t5\t5\t5\t5\t5\t5\t5\t5\t5\t5",
	}
	err := ioutil.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
	c.Assert(err, check.IsNil)
	return path, []string{"-ematrix", path, "-rows", "4", "-cols", "11"}
}

func (s *pipelineSuite) TestSimilarityExtract(c *check.C) {
	tmpdir := c.MkDir()
	_, emFlags := writeToyEMatrix(c, tmpdir)

	args := append([]string{}, emFlags...)
	args = append(args, "-method", "pc,sc", "-min-obs", "3", "-rows-per-file", "2", "-output-dir", tmpdir)
	code := (&similarityCmd{}).RunCommand("coexnet similarity", args, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(code, check.Equals, 0)

	for _, dir := range []string{"Pearson", "Spearman"} {
		for _, name := range []string{"toy.pc0.bin", "toy.pc1.bin"} {
			if dir == "Spearman" {
				name = strings.Replace(name, "pc", "sc", 1)
			}
			fi, err := os.Stat(tmpdir + "/" + dir + "/" + name)
			c.Assert(err, check.IsNil)
			c.Check(fi.Size() > 8, check.Equals, true)
		}
		// corrhist written next to the blocks
		method := "pc"
		if dir == "Spearman" {
			method = "sc"
		}
		buf, err := ioutil.ReadFile(tmpdir + "/" + dir + "/toy." + method + ".corrhist.txt")
		c.Assert(err, check.IsNil)
		// the three scored pairs all have |score| = 1
		c.Check(strings.Contains(string(buf), "0.990000\t3\n"), check.Equals, true)
	}

	sm := openSimMatrix(tmpdir+"/Pearson", "toy", methodPearson, 4, 2)
	score, err := sm.At(1, 0)
	c.Assert(err, check.IsNil)
	c.Check(score, check.Equals, float32(1))
	score, err = sm.At(2, 1)
	c.Assert(err, check.IsNil)
	c.Check(score, check.Equals, float32(-1))
	score, err = sm.At(3, 0)
	c.Assert(err, check.IsNil)
	c.Check(math.IsNaN(float64(score)), check.Equals, true)

	// edge extraction at a threshold
	args = append([]string{}, emFlags...)
	args = append(args, "-method", "pc", "-th", "0.9", "-rows-per-file", "2", "-input-dir", tmpdir, "-o", tmpdir+"/edges.txt")
	code = (&extractCmd{}).RunCommand("coexnet extract", args, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(code, check.Equals, 0)
	buf, err := ioutil.ReadFile(tmpdir + "/edges.txt")
	c.Assert(err, check.IsNil)
	c.Check(string(buf), check.Equals, ""+
		"gene2\tgene1\t1.000000\n"+
		"gene3\tgene1\t-1.000000\n"+
		"gene3\tgene2\t-1.000000\n")

	// single-cell lookup by coordinates
	args = append([]string{}, emFlags...)
	args = append(args, "-method", "pc", "-x", "2", "-y", "1", "-rows-per-file", "2", "-input-dir", tmpdir)
	stdout := &bytes.Buffer{}
	code = (&extractCmd{}).RunCommand("coexnet extract", args, bytes.NewReader(nil), stdout, os.Stderr)
	c.Assert(code, check.Equals, 0)
	c.Check(stdout.String(), check.Equals, "-1.000000\n")

	// and by gene names, in either order
	args = append([]string{}, emFlags...)
	args = append(args, "-method", "pc", "-gene1", "gene2", "-gene2", "gene3", "-rows-per-file", "2", "-input-dir", tmpdir)
	stdout.Reset()
	code = (&extractCmd{}).RunCommand("coexnet extract", args, bytes.NewReader(nil), stdout, os.Stderr)
	c.Assert(code, check.Equals, 0)
	c.Check(stdout.String(), check.Equals, "-1.000000\n")
}

func (s *pipelineSuite) TestExtractBadArgs(c *check.C) {
	tmpdir := c.MkDir()
	_, emFlags := writeToyEMatrix(c, tmpdir)

	// threshold and cell selection conflict
	args := append([]string{}, emFlags...)
	args = append(args, "-method", "pc", "-th", "0.9", "-x", "2", "-y", "1")
	stderr := &bytes.Buffer{}
	code := (&extractCmd{}).RunCommand("coexnet extract", args, bytes.NewReader(nil), &bytes.Buffer{}, stderr)
	c.Check(code, check.Equals, 2)
	c.Check(stderr.String(), check.Matches, `(?s).*conflicting.*`)

	// -gene1 without -gene2
	args = append([]string{}, emFlags...)
	args = append(args, "-method", "pc", "-gene1", "gene2")
	code = (&extractCmd{}).RunCommand("coexnet extract", args, bytes.NewReader(nil), &bytes.Buffer{}, &bytes.Buffer{})
	c.Check(code, check.Equals, 2)

	// no selection at all
	args = append([]string{}, emFlags...)
	args = append(args, "-method", "pc")
	code = (&extractCmd{}).RunCommand("coexnet extract", args, bytes.NewReader(nil), &bytes.Buffer{}, &bytes.Buffer{})
	c.Check(code, check.Equals, 2)

	// coordinates outside [1, numGenes-1]
	prepareToyMatrix(c, tmpdir, emFlags)
	args = append([]string{}, emFlags...)
	args = append(args, "-method", "pc", "-x", "0", "-y", "1", "-rows-per-file", "2", "-input-dir", tmpdir)
	code = (&extractCmd{}).RunCommand("coexnet extract", args, bytes.NewReader(nil), &bytes.Buffer{}, &bytes.Buffer{})
	c.Check(code, check.Equals, 1)
}

func prepareToyMatrix(c *check.C, tmpdir string, emFlags []string) {
	args := append([]string{}, emFlags...)
	args = append(args, "-method", "pc", "-min-obs", "3", "-rows-per-file", "2", "-output-dir", tmpdir)
	code := (&similarityCmd{}).RunCommand("coexnet similarity", args, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(code, check.Equals, 0)
}

func (s *pipelineSuite) TestSimilarityGeneSets(c *check.C) {
	tmpdir := c.MkDir()
	_, emFlags := writeToyEMatrix(c, tmpdir)
	err := ioutil.WriteFile(tmpdir+"/set1.txt", []byte("gene1\n"), 0644)
	c.Assert(err, check.IsNil)

	args := append([]string{}, emFlags...)
	args = append(args, "-method", "pc", "-min-obs", "3", "-rows-per-file", "2", "-set1", tmpdir+"/set1.txt", "-output-dir", tmpdir)
	code := (&similarityCmd{}).RunCommand("coexnet similarity", args, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(code, check.Equals, 0)

	sm := openSimMatrix(tmpdir+"/Pearson", "toy", methodPearson, 4, 2)
	score, err := sm.At(1, 0)
	c.Assert(err, check.IsNil)
	c.Check(score, check.Equals, float32(1))
	// pairs not touching set1 are left unscored
	score, err = sm.At(2, 1)
	c.Assert(err, check.IsNil)
	c.Check(math.IsNaN(float64(score)), check.Equals, true)

	// unknown gene names in a set file are fatal
	err = ioutil.WriteFile(tmpdir+"/set2.txt", gapBytes(), 0644)
	c.Assert(err, check.IsNil)
	args = append([]string{}, emFlags...)
	args = append(args, "-method", "pc", "-min-obs", "3", "-set1", tmpdir+"/set2.txt", "-output-dir", tmpdir)
	code = (&similarityCmd{}).RunCommand("coexnet similarity", args, bytes.NewReader(nil), &bytes.Buffer{}, &bytes.Buffer{})
	c.Check(code, check.Equals, 1)

	// -set2 without -set1
	args = append([]string{}, emFlags...)
	args = append(args, "-method", "pc", "-set2", tmpdir+"/set1.txt", "-output-dir", tmpdir)
	code = (&similarityCmd{}).RunCommand("coexnet similarity", args, bytes.NewReader(nil), &bytes.Buffer{}, &bytes.Buffer{})
	c.Check(code, check.Equals, 2)
}

func gapBytes() []byte { return []byte("no-such-gene\n") }

func (s *pipelineSuite) TestExportNumpy(c *check.C) {
	tmpdir := c.MkDir()
	_, emFlags := writeToyEMatrix(c, tmpdir)
	prepareToyMatrix(c, tmpdir, emFlags)

	args := append([]string{}, emFlags...)
	args = append(args, "-method", "pc", "-rows-per-file", "2", "-input-dir", tmpdir, "-o", tmpdir+"/matrix.npy")
	code := (&exportNumpy{}).RunCommand("coexnet export-numpy", args, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(code, check.Equals, 0)

	f, err := os.Open(tmpdir + "/matrix.npy")
	c.Assert(err, check.IsNil)
	defer f.Close()
	npy, err := gonpy.NewReader(f)
	c.Assert(err, check.IsNil)
	c.Check(npy.Shape, check.DeepEquals, []int{4, 4})
	dense, err := npy.GetFloat32()
	c.Assert(err, check.IsNil)
	c.Assert(dense, check.HasLen, 16)
	c.Check(dense[0*4+0], check.Equals, float32(1))
	c.Check(dense[0*4+1], check.Equals, float32(1))
	c.Check(dense[1*4+0], check.Equals, float32(1))
	c.Check(dense[2*4+0], check.Equals, float32(-1))
	c.Check(math.IsNaN(float64(dense[3*4+1])), check.Equals, true)
}

func (s *pipelineSuite) TestCorrhist(c *check.C) {
	tmpdir := c.MkDir()
	_, emFlags := writeToyEMatrix(c, tmpdir)
	prepareToyMatrix(c, tmpdir, emFlags)

	args := append([]string{}, emFlags...)
	args = append(args, "-method", "pc", "-rows-per-file", "2", "-input-dir", tmpdir, "-o", "-")
	stdout := &bytes.Buffer{}
	code := (&corrhistCmd{}).RunCommand("coexnet corrhist", args, bytes.NewReader(nil), stdout, os.Stderr)
	c.Assert(code, check.Equals, 0)
	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	c.Check(lines, check.HasLen, 100)
	c.Check(lines[99], check.Equals, "0.990000\t3")
}

func (s *pipelineSuite) TestThresholdTinyMatrix(c *check.C) {
	tmpdir := c.MkDir()
	_, emFlags := writeToyEMatrix(c, tmpdir)
	prepareToyMatrix(c, tmpdir, emFlags)

	// the spectral test needs a much larger connected matrix
	args := append([]string{}, emFlags...)
	args = append(args, "-method", "pc", "-rows-per-file", "2", "-input-dir", tmpdir)
	stderr := &bytes.Buffer{}
	code := (&thresholdCmd{}).RunCommand("coexnet threshold", args, bytes.NewReader(nil), &bytes.Buffer{}, stderr)
	c.Check(code, check.Equals, 1)
	c.Check(stderr.String(), check.Matches, `(?s).*genes connected.*`)
}
