package bk

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// chunkSize is the comparison granularity: one machine word.
const chunkSize = 8

// Identical reports whether the files at a and b hold the same bytes.
//
// Files of equal size and modification time are treated as identical without
// reading them. Otherwise both files are compared word by word from the start,
// stopping at the first mismatch. A missing file, a size difference or any
// read error makes the files not identical, so callers copy conservatively.
func Identical(fsys FileReader, a, b string) bool {
	ai, err := fsys.Stat(a)
	if err != nil || !ai.Mode().IsRegular() {
		return false
	}
	bi, err := fsys.Stat(b)
	if err != nil || !bi.Mode().IsRegular() {
		return false
	}
	if ai.Size() != bi.Size() {
		return false
	}
	if ai.ModTime().Equal(bi.ModTime()) {
		return true
	}

	same, err := sameContent(fsys, a, b)
	if err != nil {
		return false
	}
	return same
}

// sameContent compares two files chunk by chunk. The final partial chunk is
// compared as if zero padded.
func sameContent(fsys FileReader, a, b string) (bool, error) {
	fa, err := fsys.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()

	fb, err := fsys.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	ra := bufio.NewReader(fa)
	rb := bufio.NewReader(fb)
	var bufA, bufB [chunkSize]byte
	for {
		na, errA := readChunk(ra, bufA[:])
		nb, errB := readChunk(rb, bufB[:])
		if errA != nil {
			return false, errA
		}
		if errB != nil {
			return false, errB
		}
		if !bytes.Equal(bufA[:], bufB[:]) {
			return false, nil
		}
		if na < chunkSize || nb < chunkSize {
			return na == nb, nil
		}
	}
}

// readChunk fills buf from r, zeroing whatever the reader could not supply.
// It returns the number of bytes read; io.EOF is not reported as an error.
func readChunk(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	clear(buf[n:])
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	return n, err
}
