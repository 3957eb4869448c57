package common

import "testing"

func TestNewULID_SortableAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	prev := ""
	for i := 0; i < 100; i++ {
		id, err := NewULID()
		if err != nil {
			t.Fatalf("new ulid: %v", err)
		}
		if len(id) != 26 {
			t.Fatalf("unexpected ulid length %d: %q", len(id), id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ulid %q", id)
		}
		if prev != "" && id <= prev {
			t.Fatalf("expected monotonic ids, %q after %q", id, prev)
		}
		seen[id] = struct{}{}
		prev = id
	}
}
