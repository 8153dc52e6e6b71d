package cognition

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"driftmoor.ai/internal/sim/simerr"
	"driftmoor.ai/internal/sim/tuning"
)

type Config struct {
	Workers             int
	QueueSize           int
	DecisionTimeout     time.Duration
	DeadlineTicks       int
	ThinkEveryTicks     int
	FailureBackoffTicks int
	MemorySize          int
	ReflectEveryTicks   int
	ReflectMinEntries   int
	RaidMaxMembers      int

	// SnapshotMemory is how many recent memory entries go into a decision snapshot.
	SnapshotMemory int
}

func ConfigFromTuning(c tuning.Cognition) Config {
	return Config{
		Workers:             c.Workers,
		QueueSize:           c.QueueSize,
		DecisionTimeout:     time.Duration(c.DecisionTimeoutMs) * time.Millisecond,
		DeadlineTicks:       c.DeadlineTicks,
		ThinkEveryTicks:     c.ThinkEveryTicks,
		FailureBackoffTicks: c.FailureBackoffTicks,
		MemorySize:          c.MemorySize,
		ReflectEveryTicks:   c.ReflectEveryTicks,
		ReflectMinEntries:   c.ReflectMinEntries,
		RaidMaxMembers:      c.RaidMaxMembers,
		SnapshotMemory:      16,
	}
}

// StepStats counts what one Step did.
type StepStats struct {
	Applied     int
	Stale       int
	Failed      int
	Timeouts    int
	Submitted   int
	Fallbacks   int
	Reflections int
	Detached    int
}

// Layer owns every AgentContext, the decision queue and the raid coordinator. All methods except
// Close must be called from the tick goroutine.
type Layer struct {
	cfg    Config
	queue  *Queue
	agents *Manager
	raids  *Coordinator
	tree   Node
	log    *logrus.Entry

	now   func() time.Time
	newID func() string
}

func NewLayer(cfg Config, r Reasoner, log *logrus.Entry) *Layer {
	if cfg.ThinkEveryTicks <= 0 {
		cfg.ThinkEveryTicks = 10
	}
	if cfg.DeadlineTicks <= 0 {
		cfg.DeadlineTicks = cfg.ThinkEveryTicks * 2
	}
	if cfg.DecisionTimeout <= 0 {
		cfg.DecisionTimeout = 5 * time.Second
	}
	if cfg.SnapshotMemory <= 0 {
		cfg.SnapshotMemory = 16
	}
	return &Layer{
		cfg:    cfg,
		queue:  NewQueue(r, cfg.Workers, cfg.QueueSize, log.WithField("component", "decision_queue")),
		agents: NewManager(cfg.MemorySize),
		raids:  NewCoordinator(cfg.RaidMaxMembers),
		tree:   DefaultTree(),
		log:    log,
		now:    time.Now,
		newID:  func() string { return ulid.Make().String() },
	}
}

// SetTree replaces the fallback behavior tree.
func (l *Layer) SetTree(n Node) { l.tree = n }

func (l *Layer) Close() { l.queue.Close() }

// Attach creates the AgentContext for an agent entity.
func (l *Layer) Attach(entityID string, p Profile, tick uint64) error {
	c, err := l.agents.Attach(entityID, p, tick)
	if err != nil {
		return err
	}
	if l.cfg.ReflectEveryTicks > 0 {
		c.nextReflectTick = tick + uint64(l.cfg.ReflectEveryTicks)
	}
	return nil
}

// Detach destroys the AgentContext and cancels its outstanding requests, so late responses are
// dropped by the queue.
func (l *Layer) Detach(entityID string) bool {
	c, ok := l.agents.Detach(entityID)
	if !ok {
		return false
	}
	l.queue.Cancel(c.key())
	l.queue.Cancel(c.reflectKey())
	if g, ok := l.raids.Leave(entityID); ok && g.Size() == 0 {
		l.queue.Cancel(g.key())
	}
	return true
}

func (l *Layer) Context(entityID string) (*AgentContext, bool) { return l.agents.Get(entityID) }

func (l *Layer) Agents() []string { return l.agents.IDs() }

func (l *Layer) DefineRaid(def RaidDef) *RaidGroup { return l.raids.Define(def) }

func (l *Layer) JoinRaid(groupID, entityID string) error {
	if _, ok := l.agents.Get(entityID); !ok {
		return simerr.New(simerr.NotFound, "agent %s", entityID)
	}
	if err := l.raids.Join(groupID, entityID); err != nil {
		return err
	}
	// The group decides for its members from now on.
	l.queue.Cancel(entityID)
	return nil
}

func (l *Layer) LeaveRaid(entityID string) bool {
	_, ok := l.raids.Leave(entityID)
	return ok
}

func (l *Layer) Raid(entityID string) (*RaidGroup, bool) { return l.raids.GroupOf(entityID) }

// Remember appends a memory entry for an agent. Unknown ids are ignored.
func (l *Layer) Remember(entityID string, e MemoryEntry) {
	if c, ok := l.agents.Get(entityID); ok {
		c.Memory.Add(e)
	}
}

// Pending reports whether a decision request is outstanding for the agent, individually or via
// its raid.
func (l *Layer) Pending(entityID string) (Request, bool) {
	if g, ok := l.raids.GroupOf(entityID); ok {
		return l.queue.Pending(g.key())
	}
	return l.queue.Pending(entityID)
}

// Ready is the number of reasoner results waiting for the next Step.
func (l *Layer) Ready() int { return l.queue.Ready() }

// Inflight is the number of outstanding requests.
func (l *Layer) Inflight() int { return l.queue.Inflight() }

// Step runs the cognition phase of a tick: drop contexts whose entity is gone, apply completed
// non-stale decisions, expire overdue requests, dispatch new requests and let the behavior tree
// drive every agent that got no decision this tick (see fallback).
func (l *Layer) Step(tick uint64, view WorldView, act Actuator) StepStats {
	var st StepStats

	for _, id := range l.agents.IDs() {
		if _, ok := view.Agent(id); !ok {
			l.Detach(id)
			st.Detached++
		}
	}

	// decided: a fresh decision was applied. disrupted: a result for the agent was discarded as
	// stale, failed or expired.
	decided := map[string]bool{}
	disrupted := map[string]bool{}
	results := l.queue.Drain()
	sort.Slice(results, func(i, j int) bool { return results[i].Request.Key < results[j].Request.Key })
	for _, r := range results {
		l.handleResult(tick, r, view, act, decided, disrupted, &st)
	}

	l.expire(tick, disrupted, &st)
	l.dispatch(tick, view, &st)
	l.reflect(tick, &st)

	for _, id := range l.agents.IDs() {
		if decided[id] {
			continue
		}
		c, _ := l.agents.Get(id)
		if l.fallback(tick, c, view, act, disrupted[id]) {
			st.Fallbacks++
		}
	}
	return st
}

func (l *Layer) handleResult(tick uint64, r Result, view WorldView, act Actuator, decided, disrupted map[string]bool, st *StepStats) {
	req := r.Request
	if req.Kind == RequestReflect {
		c, ok := l.agents.Get(strings.TrimPrefix(req.Key, "reflect:"))
		if !ok {
			return
		}
		if r.Err != nil || strings.TrimSpace(r.Response.Summary) == "" {
			l.log.WithFields(logrus.Fields{"agent": c.EntityID, "error": r.Err}).Debug("reflection failed")
			return
		}
		c.Memory.Condense(req.UptoSeq, r.Response.Summary, tick)
		st.Reflections++
		return
	}

	if r.Err != nil {
		st.Failed++
		if simerr.Is(r.Err, simerr.Timeout) {
			st.Timeouts++
		}
		l.log.WithFields(logrus.Fields{"key": req.Key, "request_id": req.ID, "error": r.Err}).Debug("decision failed")
		l.backoff(req.Key, tick)
		for id := range req.Generations {
			disrupted[id] = true
		}
		return
	}

	for _, d := range r.Response.Decisions {
		want, covered := req.Generations[d.AgentID]
		if !covered {
			continue
		}
		cur, ok := view.Agent(d.AgentID)
		if !ok || cur.Generation != want {
			st.Stale++
			disrupted[d.AgentID] = true
			l.log.WithFields(logrus.Fields{
				"agent": d.AgentID, "request_id": req.ID, "want_gen": want, "gen": cur.Generation,
			}).Debug("discarding stale decision")
			continue
		}
		if decided[d.AgentID] {
			continue
		}
		if err := Apply(act, d); err != nil {
			l.log.WithFields(logrus.Fields{"agent": d.AgentID, "kind": d.Kind, "error": err}).Debug("decision rejected")
			continue
		}
		if c, ok := l.agents.Get(d.AgentID); ok {
			c.LastDecisionTick = tick
			c.lastDecision = d.Kind
		}
		if d.Kind != DecisionSpeak {
			decided[d.AgentID] = true
		}
		st.Applied++
	}
}

func (l *Layer) backoff(key string, tick uint64) {
	until := tick + uint64(l.cfg.FailureBackoffTicks)
	if gid, ok := strings.CutPrefix(key, "raid:"); ok {
		if g, ok := l.raids.Group(gid); ok {
			g.backoffUntil = until
		}
		return
	}
	if c, ok := l.agents.Get(key); ok {
		c.backoffUntil = until
	}
}

func (l *Layer) expire(tick uint64, disrupted map[string]bool, st *StepStats) {
	keys := make([]string, 0, l.agents.Len())
	for _, id := range l.agents.IDs() {
		keys = append(keys, id)
	}
	for _, g := range l.raids.Groups() {
		keys = append(keys, g.key())
	}
	for _, k := range keys {
		req, ok := l.queue.Pending(k)
		if !ok || tick < req.DeadlineTick {
			continue
		}
		l.queue.Cancel(k)
		for id := range req.Generations {
			disrupted[id] = true
		}
		st.Timeouts++
		st.Failed++
		l.log.WithFields(logrus.Fields{"key": k, "request_id": req.ID, "tick": tick}).Debug("decision request expired")
		l.backoff(k, tick)
	}
}

func (l *Layer) dispatch(tick uint64, view WorldView, st *StepStats) {
	for _, g := range l.raids.Groups() {
		if g.Size() == 0 || tick < g.nextThinkTick || tick < g.backoffUntil {
			continue
		}
		if _, busy := l.queue.Pending(g.key()); busy {
			continue
		}
		snap := RaidSnapshot{Tick: tick, RaidID: g.ID, Objective: g.Objective}
		gens := map[string]uint64{}
		for _, id := range g.Members() {
			c, ok := l.agents.Get(id)
			s, alive := view.Agent(id)
			if !ok || !alive || s.Dead {
				continue
			}
			gens[id] = s.Generation
			snap.Members = append(snap.Members, agentSnapshot(tick, s, c, view.Surroundings(id), l.cfg.SnapshotMemory))
		}
		if len(gens) == 0 {
			continue
		}
		if l.submit(tick, g.key(), RequestDecide, gens, SnapshotEnvelope{Raid: &snap}, 0) {
			st.Submitted++
			g.nextThinkTick = tick + uint64(l.interval(g.ThinkEveryTicks))
		}
	}

	for _, id := range l.agents.IDs() {
		if _, inRaid := l.raids.GroupOf(id); inRaid {
			continue
		}
		c, _ := l.agents.Get(id)
		if tick < c.nextThinkTick || tick < c.backoffUntil {
			continue
		}
		if _, busy := l.queue.Pending(c.key()); busy {
			continue
		}
		s, ok := view.Agent(id)
		if !ok || s.Dead {
			continue
		}
		snap := agentSnapshot(tick, s, c, view.Surroundings(id), l.cfg.SnapshotMemory)
		gens := map[string]uint64{id: s.Generation}
		if l.submit(tick, c.key(), RequestDecide, gens, SnapshotEnvelope{Agent: &snap}, 0) {
			st.Submitted++
			c.nextThinkTick = tick + uint64(l.interval(c.Profile.ThinkEveryTicks))
		}
	}
}

func (l *Layer) reflect(tick uint64, st *StepStats) {
	if l.cfg.ReflectEveryTicks <= 0 {
		return
	}
	for _, id := range l.agents.IDs() {
		c, _ := l.agents.Get(id)
		if tick < c.nextReflectTick || c.Memory.Len() < l.cfg.ReflectMinEntries {
			continue
		}
		if _, busy := l.queue.Pending(c.reflectKey()); busy {
			continue
		}
		snap := ReflectSnapshot{Tick: tick, AgentID: id, Profile: c.Profile, Entries: c.Memory.Entries()}
		if l.submit(tick, c.reflectKey(), RequestReflect, nil, SnapshotEnvelope{Reflect: &snap}, c.Memory.LastSeq()) {
			st.Submitted++
			c.nextReflectTick = tick + uint64(l.cfg.ReflectEveryTicks)
		}
	}
}

func (l *Layer) submit(tick uint64, key string, kind RequestKind, gens map[string]uint64, env SnapshotEnvelope, upto uint64) bool {
	raw, err := json.Marshal(env)
	if err != nil {
		l.log.WithError(err).WithField("key", key).Error("encode snapshot")
		return false
	}
	req := Request{
		ID:           l.newID(),
		Key:          key,
		Kind:         kind,
		Tick:         tick,
		Generations:  gens,
		Snapshot:     raw,
		UptoSeq:      upto,
		Deadline:     l.now().Add(l.cfg.DecisionTimeout),
		DeadlineTick: tick + uint64(l.cfg.DeadlineTicks),
	}
	if err := l.queue.Submit(req); err != nil {
		// Queue full: the behavior tree keeps the agent going and we retry next tick.
		l.log.WithFields(logrus.Fields{"key": key, "error": err}).Debug("decision not dispatched")
		return false
	}
	return true
}

func (l *Layer) interval(n int) int {
	if n > 0 {
		return n
	}
	return l.cfg.ThinkEveryTicks
}

// fallback runs the behavior tree for an agent that got no decision this tick. Idle agents always
// get it. A busy agent gets it when a result for it was discarded this tick, or when it has
// neither a pending request nor a decision from its current think interval; tree decisions
// supersede whatever it was doing. An explicit idle decision is honored until the agent's next
// think tick unless a later result was discarded.
func (l *Layer) fallback(tick uint64, c *AgentContext, view WorldView, act Actuator, disrupted bool) bool {
	s, ok := view.Agent(c.EntityID)
	if !ok || s.Dead {
		return false
	}
	if s.Action != "idle" && !disrupted && !l.unattended(tick, c) {
		return false
	}
	if !disrupted && c.lastDecision == DecisionIdle && !l.thinkElapsed(tick, c) {
		return false
	}
	bb := &Blackboard{
		Tick:    tick,
		Self:    s,
		Around:  view.Surroundings(c.EntityID),
		Profile: c.Profile,
		Memory:  c.Memory.Entries(),
	}
	d, ok := Evaluate(l.tree, bb)
	if !ok || d.Kind == DecisionIdle {
		return false
	}
	if err := Apply(act, d); err != nil {
		l.log.WithFields(logrus.Fields{"agent": c.EntityID, "kind": d.Kind, "error": err}).Debug("fallback rejected")
		return false
	}
	return true
}

// unattended reports that nothing is deciding for the agent: no request is outstanding and the
// last decision is older than its think interval.
func (l *Layer) unattended(tick uint64, c *AgentContext) bool {
	if _, pending := l.Pending(c.EntityID); pending {
		return false
	}
	return l.thinkElapsed(tick, c)
}

func (l *Layer) thinkElapsed(tick uint64, c *AgentContext) bool {
	return tick >= c.LastDecisionTick+uint64(l.interval(c.Profile.ThinkEveryTicks))
}
