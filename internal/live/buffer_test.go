package live

import "testing"

func TestPriceBufferTrimsToCapacity(t *testing.T) {
	b := newPriceBuffer(3)
	for i := 0; i < 10; i++ {
		b.Push(float64(i))
	}
	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}
	got := b.Tail(3)
	want := []float64{7, 8, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tail = %v, want %v", got, want)
		}
	}
}

func TestPriceBufferTailShorterThanRequest(t *testing.T) {
	b := newPriceBuffer(10)
	b.Push(1)
	b.Push(2)
	if got := b.Tail(5); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("Tail = %v, want [1 2]", got)
	}
}

func TestPriceBufferTailIsACopy(t *testing.T) {
	b := newPriceBuffer(4)
	b.Push(1)
	b.Push(2)
	tail := b.Tail(2)
	tail[0] = 99
	if got := b.Tail(2); got[0] != 1 {
		t.Fatalf("buffer mutated through Tail copy: %v", got)
	}
}

func TestPriceBufferMinimumCapacity(t *testing.T) {
	b := newPriceBuffer(0)
	b.Push(1)
	b.Push(2)
	if b.Len() != 1 {
		t.Fatalf("Len = %d, want 1", b.Len())
	}
}
