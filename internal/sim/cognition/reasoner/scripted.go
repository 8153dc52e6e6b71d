package reasoner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"driftmoor.ai/internal/sim/cognition"
)

// Scripted answers offline by evaluating a behavior tree over the request snapshot after an
// artificial delay. It stands in for the gateway in development and tests.
type Scripted struct {
	Latency time.Duration
	Tree    cognition.Node
}

func NewScripted(latency time.Duration) *Scripted {
	return &Scripted{Latency: latency, Tree: cognition.DefaultTree()}
}

func (s *Scripted) Reason(ctx context.Context, req cognition.Request) (cognition.Response, error) {
	if s.Latency > 0 {
		t := time.NewTimer(s.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return cognition.Response{}, ctx.Err()
		case <-t.C:
		}
	}
	env, err := cognition.DecodeSnapshot(req.Snapshot)
	if err != nil {
		return cognition.Response{}, fmt.Errorf("decode snapshot: %w", err)
	}

	out := cognition.Response{RequestID: req.ID}
	switch {
	case env.Reflect != nil:
		out.Summary = summarize(env.Reflect)
	case env.Raid != nil:
		for _, m := range env.Raid.Members {
			if d, ok := cognition.Evaluate(s.Tree, m.Blackboard()); ok {
				out.Decisions = append(out.Decisions, d)
			}
		}
	case env.Agent != nil:
		if d, ok := cognition.Evaluate(s.Tree, env.Agent.Blackboard()); ok {
			out.Decisions = append(out.Decisions, d)
		}
	}
	return out, nil
}

func summarize(r *cognition.ReflectSnapshot) string {
	counts := map[string]int{}
	var order []string
	for _, e := range r.Entries {
		if counts[e.Kind] == 0 {
			order = append(order, e.Kind)
		}
		counts[e.Kind]++
	}
	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, fmt.Sprintf("%s x%d", k, counts[k]))
	}
	return fmt.Sprintf("%s by tick %d: %s", r.Profile.Name, r.Tick, strings.Join(parts, ", "))
}
