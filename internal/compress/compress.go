// Package compress fans out to the compression codecs used by package
// archives and sync databases: gzip, bzip2, xz and zstd, detected by magic
// bytes on the read side and selected by configuration on the write side.
package compress

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"

	bzip2w "github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// Algorithm identifies one of the supported compression codecs.
type Algorithm string

const (
	None  Algorithm = "none"
	Gzip  Algorithm = "gz"
	Bzip2 Algorithm = "bz2"
	XZ    Algorithm = "xz"
	Zstd  Algorithm = "zst"
)

// ParseAlgorithm maps a configuration value to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case None, Gzip, Bzip2, XZ, Zstd:
		return Algorithm(s), nil
	}
	return "", fmt.Errorf("unknown compression %q (supported: none, gz, bz2, xz, zst)", s)
}

// Ext returns the file extension appended to archive names, including the
// leading dot; empty for None.
func (a Algorithm) Ext() string {
	if a == None {
		return ""
	}
	return "." + string(a)
}

var magics = []struct {
	algo  Algorithm
	magic []byte
}{
	{Gzip, []byte{0x1f, 0x8b}},
	{Bzip2, []byte{'B', 'Z', 'h'}},
	{XZ, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
}

// Detect identifies the compression of the stream by its leading magic
// bytes without consuming them. A stream matching no known magic is
// reported as None.
func Detect(br *bufio.Reader) (Algorithm, error) {
	head, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return None, err
	}
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.algo, nil
		}
	}
	return None, nil
}

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

type zstdReadCloser struct{ dec *zstd.Decoder }

func (z zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }
func (z zstdReadCloser) Close() error               { z.dec.Close(); return nil }

// NewReader wraps r in a decompressor chosen by magic-byte detection.
// Closing the returned reader does not close r.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	algo, err := Detect(br)
	if err != nil {
		return nil, err
	}
	switch algo {
	case Gzip:
		zr, err := pgzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		return zr, nil
	case Bzip2:
		return nopCloser{bzip2.NewReader(br)}, nil
	case XZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, err
		}
		return nopCloser{xr}, nil
	case Zstd:
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{dec}, nil
	}
	return nopCloser{br}, nil
}

// NewWriter wraps w in a compressor for the given algorithm. The returned
// writer must be closed to flush; closing it does not close w.
func NewWriter(w io.Writer, algo Algorithm) (io.WriteCloser, error) {
	switch algo {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return pgzip.NewWriter(w), nil
	case Bzip2:
		bw, err := bzip2w.NewWriter(w, &bzip2w.WriterConfig{Level: bzip2w.BestCompression})
		if err != nil {
			return nil, err
		}
		return bw, nil
	case XZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, err
		}
		return xw, nil
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, err
		}
		return zw, nil
	}
	return nil, fmt.Errorf("unknown compression %q", algo)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
