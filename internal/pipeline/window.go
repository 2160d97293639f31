package pipeline

import "slices"

// floatWindow is a fixed-capacity FIFO of float64 samples. Pushing beyond
// capacity evicts the oldest sample. Not safe for concurrent use — the
// owning Pipeline synchronizes.
type floatWindow struct {
	buf   []float64
	head  int // next write position
	count int
}

func newFloatWindow(capacity int) *floatWindow {
	return &floatWindow{buf: make([]float64, capacity)}
}

func (w *floatWindow) Push(v float64) {
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

func (w *floatWindow) Len() int { return w.count }

// Values returns the window contents oldest-first.
func (w *floatWindow) Values() []float64 {
	out := make([]float64, w.count)
	start := (w.head - w.count + len(w.buf)) % len(w.buf)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(start+i)%len(w.buf)]
	}
	return out
}

// Median returns the median of the current contents: the middle element for
// odd counts, the mean of the two middle elements for even counts (only
// reachable while the window is still filling). Zero when empty.
func (w *floatWindow) Median() float64 {
	if w.count == 0 {
		return 0
	}
	sorted := w.Values()
	slices.Sort(sorted)
	mid := w.count / 2
	if w.count%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Variance returns the unbiased sample variance of the current contents.
// Zero when fewer than two samples are held.
func (w *floatWindow) Variance() float64 {
	if w.count < 2 {
		return 0
	}
	vals := w.Values()
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(w.count)
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return ss / float64(w.count-1)
}

// boolWindow is a fixed-capacity FIFO of booleans that tracks how many of
// its current entries are true. Not safe for concurrent use.
type boolWindow struct {
	buf   []bool
	head  int
	count int
	trues int
}

func newBoolWindow(capacity int) *boolWindow {
	return &boolWindow{buf: make([]bool, capacity)}
}

func (w *boolWindow) Push(v bool) {
	if w.count == len(w.buf) {
		// Evicting the oldest entry, which head points at.
		if w.buf[w.head] {
			w.trues--
		}
	} else {
		w.count++
	}
	w.buf[w.head] = v
	if v {
		w.trues++
	}
	w.head = (w.head + 1) % len(w.buf)
}

func (w *boolWindow) Len() int { return w.count }

// TrueCount returns how many entries currently in the window are true.
func (w *boolWindow) TrueCount() int { return w.trues }
