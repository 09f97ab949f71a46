package index

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	x, err := Build([][]float32{{1, 0}, {0, 1}, {0.6, 0.8}})

	require.NoError(t, err)
	assert.Equal(t, 3, x.Rows())
	assert.Equal(t, 2, x.Dim())
	assert.Equal(t, []float32{0.6, 0.8}, x.Vector(2))
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Build([][]float32{{1, 0}, {1}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Build([][]float32{{}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearch_OrderAndClamp(t *testing.T) {
	x, err := Build([][]float32{{1, 0}, {0, 1}, {0.6, 0.8}})
	require.NoError(t, err)

	hits, err := x.Search([]float32{0, 1}, 10)

	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, 1, hits[0].Row)
	assert.Equal(t, 2, hits[1].Row)
	assert.Equal(t, 0, hits[2].Row)
	assert.InDelta(t, 0.8, hits[1].Score, 1e-6)
}

func TestSearch_TiesByRow(t *testing.T) {
	x, err := Build([][]float32{{0, 1}, {1, 0}, {1, 0}, {1, 0}})
	require.NoError(t, err)

	hits, err := x.Search([]float32{1, 0}, 2)

	require.NoError(t, err)
	assert.Equal(t, []Hit{{Row: 1, Score: 1}, {Row: 2, Score: 1}}, hits)
}

func TestSearch_Errors(t *testing.T) {
	x, err := Build([][]float32{{1, 0}})
	require.NoError(t, err)

	_, err = x.Search([]float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	hits, err := x.Search([]float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// TestRoundTrip checks that a persisted and reloaded index answers identically.
func TestRoundTrip(t *testing.T) {
	x, err := Build([][]float32{{0.1, 0.2, 0.3}, {-0.5, 0.5, 0}, {1, 0, 0}})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := x.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, int64(4+12+3*3*4), n)

	y, err := ReadFrom(&buf)
	require.NoError(t, err)
	assert.Equal(t, x.Rows(), y.Rows())
	assert.Equal(t, x.Dim(), y.Dim())

	q := []float32{0.3, 0.3, 0.3}
	want, err := x.Search(q, 3)
	require.NoError(t, err)
	got, err := y.Search(q, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadFrom_Corrupt(t *testing.T) {
	x, err := Build([][]float32{{1, 2}, {3, 4}})
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = x.WriteTo(&buf)
	require.NoError(t, err)
	full := buf.Bytes()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("NOPE"), full[4:]...)},
		{"truncated header", full[:8]},
		{"truncated data", full[:len(full)-2]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrom(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}
