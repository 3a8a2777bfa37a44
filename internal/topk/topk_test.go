package topk

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopK_KeepsSmallest(t *testing.T) {
	tk := New(3)
	for i, d := range []float32{0.4, 9, 0.001, 0.0534, 0.234, 2.03} {
		tk.Add(d, uint32(i))
	}

	got := tk.Take()
	require.Len(t, got, 3)
	assert.Equal(t, []uint32{2, 3, 4}, []uint32{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, 0, tk.Len())
}

func TestTopK_TiesBrokenByID(t *testing.T) {
	tk := New(2)
	tk.Add(1, 7)
	tk.Add(1, 3)
	tk.Add(1, 5)

	got := tk.Take()
	assert.Equal(t, []Item{{1, 3}, {1, 5}}, got)
}

func TestTopK_Worst(t *testing.T) {
	tk := New(2)
	_, ok := tk.Worst()
	assert.False(t, ok)

	tk.Add(3, 1)
	tk.Add(1, 2)
	w, ok := tk.Worst()
	require.True(t, ok)
	assert.Equal(t, float32(3), w.Distance)

	assert.False(t, tk.Add(4, 9))
	assert.True(t, tk.Add(2, 9))
}

func TestTopK_Zero(t *testing.T) {
	tk := New(0)
	assert.False(t, tk.Add(1, 1))
	assert.Empty(t, tk.Take())
}

func TestTopK_MatchesSort(t *testing.T) {
	r := rand.New(rand.NewSource(4711))
	all := make([]Item, 500)
	tk := New(25)
	for i := range all {
		all[i] = Item{Distance: r.Float32(), ID: uint32(i)}
		tk.Add(all[i].Distance, all[i].ID)
	}
	slices.SortFunc(all, Compare)

	assert.Equal(t, all[:25], tk.Take())
}
