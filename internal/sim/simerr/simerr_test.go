package simerr

import (
	"fmt"
	"testing"
)

func TestKindOf_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("gather: %w", New(InvalidTarget, "node %s depleted", "oreVein1"))
	if KindOf(err) != InvalidTarget {
		t.Fatalf("expected InvalidTarget, got %q", KindOf(err))
	}
	if !Is(err, InvalidTarget) || Is(err, Busy) {
		t.Fatalf("Is mismatch")
	}
	if KindOf(fmt.Errorf("plain")) != "" {
		t.Fatalf("expected empty kind for non-failure")
	}
}

func TestPlayerFacing(t *testing.T) {
	for _, k := range []Kind{InvalidTarget, Busy, InsufficientResources, CapacityExceeded, NotFound} {
		if !PlayerFacing(k) {
			t.Fatalf("%s should be player facing", k)
		}
	}
	for _, k := range []Kind{Stale, Timeout} {
		if PlayerFacing(k) {
			t.Fatalf("%s should be absorbed", k)
		}
	}
}
