package selection

import (
	"errors"
	"fmt"
	"testing"
)

func intPool(n int) []int {
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	return pool
}

func TestSeededSelectDeterminism(t *testing.T) {
	pool := intPool(50)

	for _, seed := range []int64{0, 1, -42, 1234567890123} {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			first, err := SeededSelect(pool, 10, seed)
			if err != nil {
				t.Fatalf("SeededSelect: %v", err)
			}
			second, err := SeededSelect(pool, 10, seed)
			if err != nil {
				t.Fatalf("SeededSelect: %v", err)
			}
			if len(first) != 10 {
				t.Fatalf("expected 10 elements, got %d", len(first))
			}
			for i := range first {
				if first[i] != second[i] {
					t.Fatalf("selection not deterministic at index %d: %d vs %d", i, first[i], second[i])
				}
			}
		})
	}
}

func TestSeededSelectDifferentSeeds(t *testing.T) {
	pool := intPool(100)

	a, _ := SeededSelect(pool, 20, 1)
	b, _ := SeededSelect(pool, 20, 2)

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical selections")
	}
}

func TestSeededSelectCountExceedsPool(t *testing.T) {
	pool := intPool(5)
	got, err := SeededSelect(pool, 10, 7)
	if err != nil {
		t.Fatalf("SeededSelect: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected full pool of 5, got %d", len(got))
	}

	seen := make(map[int]bool)
	for _, v := range got {
		if seen[v] {
			t.Fatalf("duplicate element %d in selection", v)
		}
		seen[v] = true
	}
}

func TestSeededSelectEmptyPool(t *testing.T) {
	got, err := SeededSelect([]int{}, 3, 99)
	if err != nil {
		t.Fatalf("SeededSelect: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty selection, got %d elements", len(got))
	}
}

func TestSeededSelectNegativeCount(t *testing.T) {
	_, err := SeededSelect(intPool(5), -1, 0)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestShuffledDoesNotMutatePool(t *testing.T) {
	pool := intPool(10)
	Shuffled(pool, 3)
	for i, v := range pool {
		if v != i {
			t.Fatalf("pool mutated at index %d", i)
		}
	}
}
