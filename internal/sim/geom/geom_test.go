package geom

import "testing"

func TestDistance(t *testing.T) {
	a := Pos{Area: "town", X: 1, Y: 1}
	if got := Distance(a, Pos{Area: "town", X: 4, Y: 2}); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := Distance(a, Pos{Area: "mine", X: 1, Y: 1}); got != Unreachable {
		t.Fatalf("expected unreachable across areas, got %d", got)
	}
}

func TestPath_WalksToDestination(t *testing.T) {
	from := Pos{Area: "town", X: 0, Y: 0}
	to := Pos{Area: "town", X: 3, Y: -2}
	p := Path(from, to)
	if len(p) != 3 {
		t.Fatalf("expected 3 steps, got %d (%v)", len(p), p)
	}
	if p[len(p)-1] != to {
		t.Fatalf("path must end at destination, got %v", p[len(p)-1])
	}
	prev := from
	for _, step := range p {
		if Distance(prev, step) != 1 {
			t.Fatalf("non-adjacent step %v -> %v", prev, step)
		}
		prev = step
	}
	if Path(to, to) != nil {
		t.Fatalf("expected empty path when already at destination")
	}
}

func TestBounds(t *testing.T) {
	b := Bounds{W: 10, H: 5}
	if !b.Contains(Pos{X: 9, Y: 4}) || b.Contains(Pos{X: 10, Y: 0}) || b.Contains(Pos{X: 0, Y: -1}) {
		t.Fatalf("contains mismatch")
	}
	if got := b.Clamp(Pos{X: 12, Y: -3}); got.X != 9 || got.Y != 0 {
		t.Fatalf("clamp mismatch: %v", got)
	}
}
