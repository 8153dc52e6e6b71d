package cognition

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"driftmoor.ai/internal/sim/geom"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// gateReasoner blocks every call until release is closed, then answers with respond.
type gateReasoner struct {
	mu      sync.Mutex
	release chan struct{}
	calls   []Request
	respond func(Request) (Response, error)
}

func newGate(respond func(Request) (Response, error)) *gateReasoner {
	return &gateReasoner{release: make(chan struct{}), respond: respond}
}

func (g *gateReasoner) Reason(ctx context.Context, req Request) (Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	select {
	case <-g.release:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	return g.respond(req)
}

func (g *gateReasoner) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *gateReasoner) open() { close(g.release) }

type fakeWorld struct {
	agents map[string]AgentState
	around Surroundings
}

func newFakeWorld() *fakeWorld { return &fakeWorld{agents: map[string]AgentState{}} }

func (w *fakeWorld) Agent(id string) (AgentState, bool) {
	s, ok := w.agents[id]
	return s, ok
}

func (w *fakeWorld) Surroundings(id string) Surroundings { return w.around }

type call struct {
	Kind   DecisionKind
	Agent  string
	Target string
	Dest   geom.Pos
}

type recordingActuator struct {
	calls []call
	err   error
}

func (a *recordingActuator) Move(agentID string, dest geom.Pos) error {
	a.calls = append(a.calls, call{Kind: DecisionMove, Agent: agentID, Dest: dest})
	return a.err
}

func (a *recordingActuator) Gather(agentID, nodeID string) error {
	a.calls = append(a.calls, call{Kind: DecisionGather, Agent: agentID, Target: nodeID})
	return a.err
}

func (a *recordingActuator) Attack(agentID, targetID string) error {
	a.calls = append(a.calls, call{Kind: DecisionAttack, Agent: agentID, Target: targetID})
	return a.err
}

func (a *recordingActuator) Idle(agentID string) error {
	a.calls = append(a.calls, call{Kind: DecisionIdle, Agent: agentID})
	return a.err
}

func (a *recordingActuator) Speak(agentID, text string) error {
	a.calls = append(a.calls, call{Kind: DecisionSpeak, Agent: agentID, Target: text})
	return a.err
}
