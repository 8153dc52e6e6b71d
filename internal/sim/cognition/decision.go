// Package cognition lets autonomous agents be driven by a slow, fallible external reasoner
// without blocking the tick loop.
//
// Requests are dispatched to a bounded worker pool; results are collected on a channel and
// applied only when the world calls Layer.Step from its cognition tick step. A result is
// discarded when any agent it covers has had its generation counter advanced since the
// request snapshot was taken.
package cognition

import (
	"context"
	"encoding/json"
	"time"

	"driftmoor.ai/internal/sim/geom"
)

type DecisionKind string

const (
	DecisionMove   DecisionKind = "move"
	DecisionGather DecisionKind = "gather"
	DecisionAttack DecisionKind = "attack"
	DecisionIdle   DecisionKind = "idle"
	DecisionSpeak  DecisionKind = "speak"
)

// Decision is one chosen action for one agent. Only the field matching Kind is read.
type Decision struct {
	AgentID  string       `json:"agent_id"`
	Kind     DecisionKind `json:"kind"`
	Dest     *geom.Pos    `json:"dest,omitempty"`
	NodeID   string       `json:"node_id,omitempty"`
	TargetID string       `json:"target_id,omitempty"`
	Text     string       `json:"text,omitempty"`
}

type RequestKind string

const (
	RequestDecide  RequestKind = "decide"
	RequestReflect RequestKind = "reflect"
)

// Request is a unit of work for the external reasoner.
type Request struct {
	ID   string      `json:"id"`
	Key  string      `json:"key"` // agent id, raid:<id> or reflect:<agent id>
	Kind RequestKind `json:"kind"`
	Tick uint64      `json:"tick"`

	// Generations holds the generation counter of every covered agent at snapshot time.
	Generations map[string]uint64 `json:"generations"`
	Snapshot    json.RawMessage   `json:"snapshot"`

	// UptoSeq is the newest memory sequence number summarized by a reflect request.
	UptoSeq uint64 `json:"upto_seq,omitempty"`

	Deadline     time.Time `json:"deadline"`
	DeadlineTick uint64    `json:"deadline_tick"`
}

type Response struct {
	RequestID string     `json:"request_id,omitempty"`
	Decisions []Decision `json:"decisions,omitempty"`
	Summary   string     `json:"summary,omitempty"`
}

// Result pairs a request with its outcome.
type Result struct {
	Request  Request
	Response Response
	Err      error
}

// Reasoner is the external decision source. Implementations must honor ctx cancellation.
type Reasoner interface {
	Reason(ctx context.Context, req Request) (Response, error)
}

// Actuator applies decisions to the simulation. It is the only path from cognition output to
// world mutation and is called from the tick goroutine.
type Actuator interface {
	Move(agentID string, dest geom.Pos) error
	Gather(agentID, nodeID string) error
	Attack(agentID, targetID string) error
	Idle(agentID string) error
	Speak(agentID, text string) error
}

// Apply dispatches d to the matching Actuator operation.
func Apply(act Actuator, d Decision) error {
	switch d.Kind {
	case DecisionMove:
		if d.Dest == nil {
			return errMissing("dest")
		}
		return act.Move(d.AgentID, *d.Dest)
	case DecisionGather:
		return act.Gather(d.AgentID, d.NodeID)
	case DecisionAttack:
		return act.Attack(d.AgentID, d.TargetID)
	case DecisionSpeak:
		return act.Speak(d.AgentID, d.Text)
	default:
		return act.Idle(d.AgentID)
	}
}
