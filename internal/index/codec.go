package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	magic   = "DQIX"
	version = uint32(1)

	// maxElements bounds allocation when reading an untrusted header.
	maxElements = 1 << 30
)

// ErrCorrupt is returned when encoded index data cannot be decoded.
var ErrCorrupt = errors.New("corrupt index data")

type header struct {
	Version uint32
	Rows    uint32
	Dim     uint32
}

// WriteTo encodes the index: magic, version, rows, dim, then rows*dim
// little-endian float32 values.
func (x *Index) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}

	if _, err := io.WriteString(cw, magic); err != nil {
		return cw.n, err
	}
	h := header{Version: version, Rows: uint32(x.rows), Dim: uint32(x.dim)}
	if err := binary.Write(cw, binary.LittleEndian, h); err != nil {
		return cw.n, err
	}

	buf := make([]byte, 4)
	for _, f := range x.data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
		if _, err := cw.Write(buf); err != nil {
			return cw.n, err
		}
	}
	return cw.n, bw.Flush()
}

// ReadFrom decodes an index written by WriteTo.
func ReadFrom(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)

	m := make([]byte, len(magic))
	if _, err := io.ReadFull(br, m); err != nil {
		return nil, fmt.Errorf("%w: magic: %v", ErrCorrupt, err)
	}
	if string(m) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, m)
	}

	var h header
	if err := binary.Read(br, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if h.Version != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.Version)
	}
	if h.Rows == 0 || h.Dim == 0 || uint64(h.Rows)*uint64(h.Dim) > maxElements {
		return nil, fmt.Errorf("%w: bad shape %dx%d", ErrCorrupt, h.Rows, h.Dim)
	}

	n := int(h.Rows) * int(h.Dim)
	data := make([]float32, n)
	buf := make([]byte, 4)
	for i := range data {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("%w: row data: %v", ErrCorrupt, err)
		}
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf))
	}

	return &Index{dim: int(h.Dim), rows: int(h.Rows), data: data}, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
