package compensation

// History is a fixed-capacity FIFO of past samples used for moving
// averages. Oldest value is evicted on overflow.
type History struct {
	values []float64
	next   int
	count  int
}

func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}

	return &History{values: make([]float64, capacity)}
}

func (h *History) Push(value float64) {
	h.values[h.next] = value
	h.next = (h.next + 1) % len(h.values)
	if h.count < len(h.values) {
		h.count++
	}
}

func (h *History) Len() int {
	return h.count
}

func (h *History) Capacity() int {
	return len(h.values)
}

// Full reports whether one complete smoothing window has been seen.
func (h *History) Full() bool {
	return h.count == len(h.values)
}

// Average returns the moving average over the stored samples.
// Returns false while the history is empty.
func (h *History) Average() (float64, bool) {
	if h.count == 0 {
		return 0, false
	}

	sum := 0.0
	for i := 0; i < h.count; i++ {
		sum += h.values[i]
	}

	return sum / float64(h.count), true
}
