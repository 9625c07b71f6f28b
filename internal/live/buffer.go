package live

// priceBuffer is a bounded deque of recent closes. It is trimmed on every
// append so in-process history never grows past its capacity.
type priceBuffer struct {
	max int
	xs  []float64
}

func newPriceBuffer(max int) *priceBuffer {
	if max < 1 {
		max = 1
	}
	return &priceBuffer{max: max}
}

func (b *priceBuffer) Push(v float64) {
	b.xs = append(b.xs, v)
	if len(b.xs) > b.max {
		b.xs = b.xs[len(b.xs)-b.max:]
	}
}

func (b *priceBuffer) Len() int { return len(b.xs) }

// Tail returns a copy of the most recent n values (or fewer when the buffer is
// shorter).
func (b *priceBuffer) Tail(n int) []float64 {
	if n > len(b.xs) {
		n = len(b.xs)
	}
	out := make([]float64, n)
	copy(out, b.xs[len(b.xs)-n:])
	return out
}
