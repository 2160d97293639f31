package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatWindowEviction(t *testing.T) {
	w := newFloatWindow(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		w.Push(v)
		require.LessOrEqual(t, w.Len(), 3)
	}
	assert.Equal(t, []float64{3, 4, 5}, w.Values())
}

func TestFloatWindowMedianOdd(t *testing.T) {
	w := newFloatWindow(7)
	for _, v := range []float64{9, 1, 5, 3, 7} {
		w.Push(v)
	}
	assert.Equal(t, 5.0, w.Median())
}

func TestFloatWindowMedianPartialEven(t *testing.T) {
	w := newFloatWindow(7)
	w.Push(10)
	w.Push(20)
	assert.Equal(t, 15.0, w.Median())
}

func TestFloatWindowMedianEmpty(t *testing.T) {
	w := newFloatWindow(7)
	assert.Equal(t, 0.0, w.Median())
}

func TestFloatWindowMedianAfterWrap(t *testing.T) {
	w := newFloatWindow(3)
	for _, v := range []float64{100, 200, 300, 1, 2} {
		w.Push(v)
	}
	// Window now holds 300, 1, 2.
	assert.Equal(t, 2.0, w.Median())
}

func TestFloatWindowVariance(t *testing.T) {
	w := newFloatWindow(5)
	for _, v := range []float64{2, 4, 4, 4, 6} {
		w.Push(v)
	}
	// Sample variance of {2,4,4,4,6}: mean 4, ss 8, n-1 = 4.
	assert.InDelta(t, 2.0, w.Variance(), 1e-9)
}

func TestFloatWindowVarianceTooFew(t *testing.T) {
	w := newFloatWindow(5)
	assert.Equal(t, 0.0, w.Variance())
	w.Push(42)
	assert.Equal(t, 0.0, w.Variance())
}

func TestBoolWindowTrueCount(t *testing.T) {
	w := newBoolWindow(3)
	w.Push(true)
	w.Push(true)
	w.Push(false)
	assert.Equal(t, 2, w.TrueCount())

	// Evicts the first true.
	w.Push(false)
	assert.Equal(t, 1, w.TrueCount())
	assert.Equal(t, 3, w.Len())

	// Evicts the second true.
	w.Push(false)
	assert.Equal(t, 0, w.TrueCount())
}

func TestBoolWindowCountNeverExceedsCapacity(t *testing.T) {
	w := newBoolWindow(4)
	for i := 0; i < 20; i++ {
		w.Push(i%2 == 0)
		require.LessOrEqual(t, w.Len(), 4)
		require.LessOrEqual(t, w.TrueCount(), w.Len())
	}
}
