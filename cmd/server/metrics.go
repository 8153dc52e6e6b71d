package main

import (
	"fmt"
	"io"
	"net/http"

	"driftmoor.ai/internal/persistence/indexdb"
	"driftmoor.ai/internal/sim/world"
)

type metricsSource interface {
	Metrics() world.Metrics
	CurrentTick() uint64
}

func metricsHandler(worldID string, w metricsSource, idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeWorldMetrics(rw, worldID, w)
		if idx != nil {
			writeIndexMetrics(rw, idx.Stats())
		}
	}
}

// writeWorldMetrics renders the minimal Prometheus exposition format.
func writeWorldMetrics(out io.Writer, worldID string, w metricsSource) {
	m := w.Metrics()
	tick := w.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	fmt.Fprintf(out, "# HELP driftmoor_world_tick Current world tick.\n")
	fmt.Fprintf(out, "# TYPE driftmoor_world_tick gauge\n")
	fmt.Fprintf(out, "driftmoor_world_tick{world=%q} %d\n", worldID, tick)

	fmt.Fprintf(out, "# HELP driftmoor_world_entities Entities in the world by kind.\n")
	fmt.Fprintf(out, "# TYPE driftmoor_world_entities gauge\n")
	fmt.Fprintf(out, "driftmoor_world_entities{world=%q,kind=%q} %d\n", worldID, "all", m.Entities)
	fmt.Fprintf(out, "driftmoor_world_entities{world=%q,kind=%q} %d\n", worldID, "agent", m.Agents)

	fmt.Fprintf(out, "# HELP driftmoor_world_clients Current number of connected sessions.\n")
	fmt.Fprintf(out, "# TYPE driftmoor_world_clients gauge\n")
	fmt.Fprintf(out, "driftmoor_world_clients{world=%q} %d\n", worldID, m.Clients)

	fmt.Fprintf(out, "# HELP driftmoor_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(out, "# TYPE driftmoor_world_queue_depth gauge\n")
	fmt.Fprintf(out, "driftmoor_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(out, "driftmoor_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(out, "driftmoor_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)

	fmt.Fprintf(out, "# HELP driftmoor_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(out, "# TYPE driftmoor_world_step_ms gauge\n")
	fmt.Fprintf(out, "driftmoor_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	c := m.Cognition
	fmt.Fprintf(out, "# HELP driftmoor_cognition_last_tick Cognition outcomes during the last tick.\n")
	fmt.Fprintf(out, "# TYPE driftmoor_cognition_last_tick gauge\n")
	for _, kv := range []struct {
		name string
		v    int
	}{
		{"applied", c.Applied},
		{"stale", c.Stale},
		{"failed", c.Failed},
		{"timeouts", c.Timeouts},
		{"submitted", c.Submitted},
		{"fallbacks", c.Fallbacks},
		{"reflections", c.Reflections},
	} {
		fmt.Fprintf(out, "driftmoor_cognition_last_tick{world=%q,outcome=%q} %d\n", worldID, kv.name, kv.v)
	}

	fmt.Fprintf(out, "# HELP driftmoor_cognition_inflight Reasoner requests in flight.\n")
	fmt.Fprintf(out, "# TYPE driftmoor_cognition_inflight gauge\n")
	fmt.Fprintf(out, "driftmoor_cognition_inflight{world=%q} %d\n", worldID, c.Inflight)
}

func writeIndexMetrics(out io.Writer, s indexdb.Stats) {
	fmt.Fprintf(out, "# HELP driftmoor_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(out, "# TYPE driftmoor_index_queue_depth gauge\n")
	fmt.Fprintf(out, "driftmoor_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(out, "# HELP driftmoor_index_dropped_total Records dropped because the index queue was full.\n")
	fmt.Fprintf(out, "# TYPE driftmoor_index_dropped_total counter\n")
	fmt.Fprintf(out, "driftmoor_index_dropped_total{kind=%q} %d\n", "tick", s.DropTick)
	fmt.Fprintf(out, "driftmoor_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshot)
	fmt.Fprintf(out, "driftmoor_index_dropped_total{kind=%q} %d\n", "profile", s.DropProfile)

	fmt.Fprintf(out, "# HELP driftmoor_index_write_errors_total Failed index writes.\n")
	fmt.Fprintf(out, "# TYPE driftmoor_index_write_errors_total counter\n")
	fmt.Fprintf(out, "driftmoor_index_write_errors_total %d\n", s.WriteErrors)
}
