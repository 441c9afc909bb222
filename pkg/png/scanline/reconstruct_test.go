package scanline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type visit struct{ pass, row, y, width int }

func walk(t *testing.T, r *Reconstructor) []visit {
	t.Helper()
	var out []visit
	for !r.Done() {
		buf := r.Buffer()
		clear(buf)
		require.NoError(t, r.Unfilter())
		out = append(out, visit{r.Pass(), r.PassRow(), r.Y(), r.PassWidth()})
		r.Advance()
	}
	return out
}

func TestReconstructorOrder(t *testing.T) {
	r := NewReconstructor(3, 2, 8, false)
	assert.Equal(t, []visit{{0, 0, 0, 3}, {0, 1, 1, 3}}, walk(t, r))

	// a 3x2 interlaced image has no pixels in passes 1, 2 and 4
	r = NewReconstructor(3, 2, 8, true)
	got := walk(t, r)
	assert.Equal(t, []visit{
		{0, 0, 0, 1},
		{3, 0, 0, 1},
		{5, 0, 0, 1},
		{6, 0, 1, 3},
	}, got)
}

func TestReconstructorEmpty(t *testing.T) {
	assert.True(t, NewReconstructor(0, 5, 8, false).Done())
	assert.True(t, NewReconstructor(4, 0, 8, true).Done())
}

func TestReconstructorUnfiltersAgainstPreviousRow(t *testing.T) {
	r := NewReconstructor(2, 3, 8, false)
	rows := [][]byte{
		{byte(FilterNone), 1, 2},
		{byte(FilterUp), 1, 1},
		{byte(FilterSub), 5, 5},
	}
	var got [][]byte
	for _, stored := range rows {
		require.False(t, r.Done())
		copy(r.Buffer(), stored)
		require.NoError(t, r.Unfilter())
		got = append(got, append([]byte{}, r.Row()...))
		r.Advance()
	}
	assert.True(t, r.Done())
	assert.Equal(t, [][]byte{{1, 2}, {2, 3}, {5, 10}}, got)
}

func TestReconstructorResetsPreviousRowPerPass(t *testing.T) {
	// 1x2 interlaced: pass 0 row y=0, pass 6 row y=1. Up on the first row of
	// pass 6 must see zeros.
	r := NewReconstructor(1, 2, 8, true)
	copy(r.Buffer(), []byte{byte(FilterNone), 200})
	require.NoError(t, r.Unfilter())
	r.Advance()
	for r.Pass() != 6 {
		copy(r.Buffer(), []byte{byte(FilterNone), 0})
		require.NoError(t, r.Unfilter())
		r.Advance()
	}
	copy(r.Buffer(), []byte{byte(FilterUp), 7})
	require.NoError(t, r.Unfilter())
	assert.Equal(t, []byte{7}, r.Row())
	assert.Equal(t, 1, r.Y())
}
