// Copyright (C) The CoexNet Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package coexnet

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const defaultRowsPerFile = 10000

// blockLayout is the single home of the blocked lower-triangle
// geometry: which rows land in which block file, and where each row's
// scores live inside it. Every block file starts with two little-endian
// int32s (total gene count, rows in this block) followed by float32
// scores; row j contributes j+1 values covering columns 0..j.
type blockLayout struct {
	NumGenes    int
	RowsPerFile int
}

const blockHeaderBytes = 8

func (l blockLayout) NumBlocks() int {
	return (l.NumGenes + l.RowsPerFile - 1) / l.RowsPerFile
}

func (l blockLayout) BlockOf(row int) int { return row / l.RowsPerFile }

// BlockRange returns the half-open row range [r0, r1) of block b.
func (l blockLayout) BlockRange(b int) (r0, r1 int) {
	r0 = b * l.RowsPerFile
	r1 = r0 + l.RowsPerFile
	if r1 > l.NumGenes {
		r1 = l.NumGenes
	}
	return r0, r1
}

// RowOffset returns the byte offset of row j's first score within its
// block file: the header plus 4*sum_{j'=r0}^{j-1}(j'+1) bytes, where
// the sum telescopes to (j(j+1) - r0(r0+1))/2.
func (l blockLayout) RowOffset(j int) int64 {
	r0, _ := l.BlockRange(l.BlockOf(j))
	floats := (int64(j)*int64(j+1) - int64(r0)*int64(r0+1)) / 2
	return blockHeaderBytes + 4*floats
}

// BlockBytes returns the exact byte length of block b: header plus
// L*(2*r0 + L + 1)/2 float32s.
func (l blockLayout) BlockBytes(b int) int64 {
	r0, r1 := l.BlockRange(b)
	L := int64(r1 - r0)
	return blockHeaderBytes + 4*L*(2*int64(r0)+L+1)/2
}

// FileName returns the block file name <prefix>.<method><b>.bin.
func (l blockLayout) FileName(prefix string, m simMethod, b int) string {
	return fmt.Sprintf("%s.%s%d.bin", prefix, m, b)
}

// blockWriter writes one block file. Rows must arrive in ascending
// order and cover the block exactly; Close fails otherwise. Abort
// removes the partial file so no short block survives a cancelled run.
type blockWriter struct {
	layout  blockLayout
	path    string
	f       *os.File
	w       *bufio.Writer
	nextRow int
	endRow  int
}

func createBlock(dir, prefix string, m simMethod, b int, layout blockLayout) (*blockWriter, error) {
	r0, r1 := layout.BlockRange(b)
	path := filepath.Join(dir, layout.FileName(prefix, m, b))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0777)
	if err != nil {
		return nil, err
	}
	bw := &blockWriter{
		layout:  layout,
		path:    path,
		f:       f,
		w:       bufio.NewWriterSize(f, 1<<20),
		nextRow: r0,
		endRow:  r1,
	}
	hdr := [2]int32{int32(layout.NumGenes), int32(r1 - r0)}
	if err := binary.Write(bw.w, binary.LittleEndian, &hdr); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return bw, nil
}

// WriteRow appends row j's scores for columns 0..j.
func (bw *blockWriter) WriteRow(j int, scores []float32) error {
	if j != bw.nextRow || j >= bw.endRow {
		return fmt.Errorf("block %s: row %d written out of order", bw.path, j)
	}
	if len(scores) != j+1 {
		return fmt.Errorf("block %s: row %d has %d scores, want %d", bw.path, j, len(scores), j+1)
	}
	if err := binary.Write(bw.w, binary.LittleEndian, scores); err != nil {
		return err
	}
	bw.nextRow++
	return nil
}

func (bw *blockWriter) Close() error {
	if bw.nextRow != bw.endRow {
		bw.Abort()
		return fmt.Errorf("block %s: closed after row %d, want %d rows", bw.path, bw.nextRow, bw.endRow)
	}
	if err := bw.w.Flush(); err != nil {
		bw.f.Close()
		os.Remove(bw.path)
		return err
	}
	return bw.f.Close()
}

// Abort discards the partially written block.
func (bw *blockWriter) Abort() {
	bw.f.Close()
	os.Remove(bw.path)
}

// simMatrix reads a stored similarity matrix: the set of block files
// for one method under its method directory.
type simMatrix struct {
	layout blockLayout
	dir    string
	prefix string
	method simMethod
}

func openSimMatrix(dir, prefix string, m simMethod, numGenes, rowsPerFile int) *simMatrix {
	return &simMatrix{
		layout: blockLayout{NumGenes: numGenes, RowsPerFile: rowsPerFile},
		dir:    dir,
		prefix: prefix,
		method: m,
	}
}

func (sm *simMatrix) blockPath(b int) string {
	return filepath.Join(sm.dir, sm.layout.FileName(sm.prefix, sm.method, b))
}

// checkBlock validates a block file's header and byte length against
// the layout.
func (sm *simMatrix) checkBlock(f *os.File, b int) error {
	var hdr [2]int32
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrTruncatedBlock, f.Name(), err)
	}
	r0, r1 := sm.layout.BlockRange(b)
	if int(hdr[0]) != sm.layout.NumGenes || int(hdr[1]) != r1-r0 {
		return fmt.Errorf("%w: %s: header says %d genes, %d rows; want %d, %d",
			ErrTruncatedBlock, f.Name(), hdr[0], hdr[1], sm.layout.NumGenes, r1-r0)
	}
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() != sm.layout.BlockBytes(b) {
		return fmt.Errorf("%w: %s: %d bytes, want %d", ErrTruncatedBlock, f.Name(), fi.Size(), sm.layout.BlockBytes(b))
	}
	return nil
}

// At returns the stored similarity of genes a and b in either order.
func (sm *simMatrix) At(a, b int) (float32, error) {
	if a < 0 || b < 0 || a >= sm.layout.NumGenes || b >= sm.layout.NumGenes {
		return 0, fmt.Errorf("%w: (%d, %d) outside %d genes", ErrOutOfRange, a, b, sm.layout.NumGenes)
	}
	if a < b {
		a, b = b, a
	}
	blk := sm.layout.BlockOf(a)
	f, err := os.Open(sm.blockPath(blk))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if err := sm.checkBlock(f, blk); err != nil {
		return 0, err
	}
	if _, err := f.Seek(sm.layout.RowOffset(a)+4*int64(b), io.SeekStart); err != nil {
		return 0, err
	}
	var score float32
	if err := binary.Read(f, binary.LittleEndian, &score); err != nil {
		return 0, fmt.Errorf("%w: %s: %s", ErrTruncatedBlock, f.Name(), err)
	}
	return score, nil
}

// ReadRows streams every stored row in ascending order, calling fn with
// row j and its j+1 scores. The slice is reused between calls.
func (sm *simMatrix) ReadRows(fn func(j int, scores []float32) error) error {
	for b := 0; b < sm.layout.NumBlocks(); b++ {
		f, err := os.Open(sm.blockPath(b))
		if err != nil {
			return err
		}
		err = func() error {
			defer f.Close()
			if err := sm.checkBlock(f, b); err != nil {
				return err
			}
			rdr := bufio.NewReaderSize(f, 1<<20)
			r0, r1 := sm.layout.BlockRange(b)
			var scores []float32
			for j := r0; j < r1; j++ {
				if cap(scores) < j+1 {
					scores = make([]float32, j+1, r1)
				}
				scores = scores[:j+1]
				if err := binary.Read(rdr, binary.LittleEndian, scores); err != nil {
					return fmt.Errorf("%w: %s: %s", ErrTruncatedBlock, sm.blockPath(b), err)
				}
				if err := fn(j, scores); err != nil {
					return err
				}
			}
			return nil
		}()
		if err != nil {
			return err
		}
	}
	return nil
}
