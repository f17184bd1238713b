// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package coexnet

import (
	"errors"
	"flag"
	"io/ioutil"
	"math"

	"gopkg.in/check.v1"
)

type ematrixSuite struct{}

var _ = check.Suite(&ematrixSuite{})

func loadArgs(c *check.C, a ematrixArgs) (*EMatrix, error) {
	c.Logf("loading %s", a.Path)
	return a.Load()
}

func (s *ematrixSuite) TestLoadPlain(c *check.C) {
	tmpdir := c.MkDir()
	path := tmpdir + "/toy.tsv"
	err := ioutil.WriteFile(path, []byte(""+
		"gene1\t1\t2\t3\n"+
		"gene2\t4\t5\t6\n"), 0644)
	c.Assert(err, check.IsNil)

	em, err := loadArgs(c, ematrixArgs{Path: path, Rows: 2, Cols: 4})
	c.Assert(err, check.IsNil)
	c.Check(em.NumGenes(), check.Equals, 2)
	c.Check(em.NumSamples(), check.Equals, 3)
	c.Check(em.GeneNames, check.DeepEquals, []string{"gene1", "gene2"})
	c.Check(em.Row(1), check.DeepEquals, []float64{4, 5, 6})
	c.Check(em.GeneIndex("gene2"), check.Equals, 1)
	c.Check(em.GeneIndex("nope"), check.Equals, -1)
	c.Check(em.FilePrefix(), check.Equals, "toy")
}

func (s *ematrixSuite) TestLoadHeadersAndNA(c *check.C) {
	tmpdir := c.MkDir()
	path := tmpdir + "/expr.tsv"
	err := ioutil.WriteFile(path, []byte(""+
		"s1\ts2\ts3\n"+
		"gene1\t1\tNA\t3\n"+
		"gene2\tNA\t5\t6\n"), 0644)
	c.Assert(err, check.IsNil)

	em, err := loadArgs(c, ematrixArgs{Path: path, Rows: 3, Cols: 4, Headers: true, OmitNA: true, NAVal: "NA"})
	c.Assert(err, check.IsNil)
	c.Check(em.SampleNames, check.DeepEquals, []string{"s1", "s2", "s3"})
	c.Check(em.NumGenes(), check.Equals, 2)
	c.Check(math.IsNaN(em.Row(0)[1]), check.Equals, true)
	c.Check(math.IsNaN(em.Row(1)[0]), check.Equals, true)
	c.Check(em.Row(0)[2], check.Equals, 3.0)
}

func (s *ematrixSuite) TestLoadTransform(c *check.C) {
	tmpdir := c.MkDir()
	path := tmpdir + "/expr.tsv"
	err := ioutil.WriteFile(path, []byte("gene1\t8\t0\t2\n"), 0644)
	c.Assert(err, check.IsNil)

	em, err := loadArgs(c, ematrixArgs{Path: path, Rows: 1, Cols: 4, Func: "log2"})
	c.Assert(err, check.IsNil)
	c.Check(em.Row(0)[0], check.Equals, 3.0)
	c.Check(math.IsNaN(em.Row(0)[1]), check.Equals, true)
	c.Check(em.Row(0)[2], check.Equals, 1.0)
}

func (s *ematrixSuite) TestLoadErrors(c *check.C) {
	tmpdir := c.MkDir()
	path := tmpdir + "/bad.tsv"
	err := ioutil.WriteFile(path, []byte("gene1\t1\t2\n"), 0644)
	c.Assert(err, check.IsNil)

	_, err = loadArgs(c, ematrixArgs{Path: path, Rows: 1, Cols: 4})
	c.Check(errors.Is(err, ErrInvalidMatrixShape), check.Equals, true)

	_, err = loadArgs(c, ematrixArgs{Rows: 1, Cols: 4})
	c.Check(errors.Is(err, ErrInvalidArgs), check.Equals, true)

	_, err = loadArgs(c, ematrixArgs{Path: path, Rows: 1, Cols: 3, Func: "exp"})
	c.Check(errors.Is(err, ErrUnknownTransform), check.Equals, true)

	err = ioutil.WriteFile(path, []byte("gene1\t1\tNA\n"), 0644)
	c.Assert(err, check.IsNil)
	_, err = loadArgs(c, ematrixArgs{Path: path, Rows: 1, Cols: 3})
	c.Check(errors.Is(err, ErrMissingValueNotConfigured), check.Equals, true)

	err = ioutil.WriteFile(path, []byte("gene1\t1\t2\ngene1\t3\t4\n"), 0644)
	c.Assert(err, check.IsNil)
	_, err = loadArgs(c, ematrixArgs{Path: path, Rows: 2, Cols: 3})
	c.Check(errors.Is(err, ErrInvalidMatrixShape), check.Equals, true)
}

func (s *ematrixSuite) TestFilePrefix(c *check.C) {
	c.Check(filePrefix("a/b/expr.tsv.gz"), check.Equals, "expr")
	c.Check(filePrefix("expr.txt"), check.Equals, "expr")
	c.Check(filePrefix("expr"), check.Equals, "expr")
}

func (s *ematrixSuite) TestFlagGroup(c *check.C) {
	var a ematrixArgs
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	a.Flags(flags)
	err := flags.Parse([]string{"-ematrix", "x.tsv", "-rows", "3", "-cols", "4", "-headers", "-omit-na", "-na-val", "NA", "-func", "log10"})
	c.Assert(err, check.IsNil)
	c.Check(a, check.DeepEquals, ematrixArgs{Path: "x.tsv", Rows: 3, Cols: 4, Headers: true, OmitNA: true, NAVal: "NA", Func: "log10"})
}
