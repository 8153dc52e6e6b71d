package world

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"driftmoor.ai/internal/persistence/snapshot"
	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/catalogs"
	"driftmoor.ai/internal/sim/cognition"
	"driftmoor.ai/internal/sim/geom"
	"driftmoor.ai/internal/sim/tuning"
	"driftmoor.ai/internal/sim/world/logic/rates"
)

type WorldConfig struct {
	Tuning tuning.Tuning
	// Reasoner drives agents. When nil, cognition is disabled and no agents are spawned.
	Reasoner cognition.Reasoner
	Agents   cognition.Notecards
	Log      *logrus.Entry
}

type JoinRequest struct {
	Name    string
	Profile *SavedProfile
	Out     chan []byte
	Resp    chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Err     error
}

type IntentEnvelope struct {
	EntityID string
	Intent   protocol.IntentMsg
}

// RecordedJoin carries the restored profile too so a replay reproduces the joined state.
type RecordedJoin struct {
	EntityID string        `json:"entity_id"`
	Name     string        `json:"name"`
	Profile  *SavedProfile `json:"profile,omitempty"`
}

type RecordedIntent struct {
	EntityID string             `json:"entity_id"`
	Intent   protocol.IntentMsg `json:"intent"`
}

type TickLogEntry struct {
	Tick     uint64           `json:"tick"`
	Joins    []RecordedJoin   `json:"joins,omitempty"`
	Leaves   []string         `json:"leaves,omitempty"`
	Intents  []RecordedIntent `json:"intents,omitempty"`
	Rejected int              `json:"rejected,omitempty"`
	Digest   string           `json:"digest"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type clientState struct {
	Out chan []byte
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      tuning.Tuning
	catalogs *catalogs.Catalogs
	log      *logrus.Entry

	tick atomic.Uint64

	store     *Store
	nodes     map[string]*ResourceNode
	shopStock map[string]map[string]int
	sayLimits map[string]*rates.Window

	clients  map[string]*clientState
	lastSent map[string]protocol.EntityState
	events   []protocol.Event

	cog      *cognition.Layer
	profiles map[string]cognition.Profile // agent notecards by name
	cogStats cognition.StepStats

	inbox chan IntentEnvelope
	join  chan JoinRequest
	leave chan string
	stop  chan struct{}

	stopOnce sync.Once

	nextPlayerNum uint64

	// Optional sinks (may be nil). Implemented in internal/persistence/*; writes happen off-thread.
	tickLogger   TickLogger
	snapshotSink chan<- snapshot.SnapshotV1
	profileSink  chan<- ProfileRecord

	metrics atomic.Value
}

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = logrus.NewEntry(l)
	}
	w := &World{
		cfg:       cfg.Tuning,
		catalogs:  cats,
		log:       log.WithField("world", cfg.Tuning.WorldID),
		store:     NewStore(),
		nodes:     map[string]*ResourceNode{},
		shopStock: map[string]map[string]int{},
		sayLimits: map[string]*rates.Window{},
		clients:   map[string]*clientState{},
		lastSent:  map[string]protocol.EntityState{},
		profiles:  map[string]cognition.Profile{},
		inbox:     make(chan IntentEnvelope, 1024),
		join:      make(chan JoinRequest, 64),
		leave:     make(chan string, 64),
		stop:      make(chan struct{}),
	}
	w.metrics.Store(Metrics{})

	w.store.begin()
	defer w.store.end()

	w.loadNodes()
	w.loadShops()
	if err := w.loadNPCs(); err != nil {
		return nil, err
	}
	if cfg.Reasoner != nil {
		w.cog = cognition.NewLayer(
			cognition.ConfigFromTuning(cfg.Tuning.Cognition),
			cfg.Reasoner,
			w.log.WithField("component", "cognition"),
		)
		for _, p := range cfg.Agents.Agents {
			w.profiles[p.Name] = p
		}
		if _, err := cognition.Generate(w.bridge(), w.cog, cfg.Agents, 0); err != nil {
			w.cog.Close()
			return nil, oops.In("world").Wrapf(err, "spawn agents")
		}
	}
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) SetProfileSink(ch chan<- ProfileRecord)        { w.profileSink = ch }

func (w *World) Inbox() chan<- IntentEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Leave() chan<- string         { return w.leave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingIntents []IntentEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingIntents = append(pendingIntents, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingIntents)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingIntents = pendingIntents[:0]
		}
	}
}

// StepOnce drains whatever is queued on the world channels and runs one tick. It is for tools and
// tests that drive the world without Run.
func (w *World) StepOnce() {
	var joins []JoinRequest
	var leaves []string
	var intents []IntentEnvelope
	for {
		select {
		case req := <-w.join:
			joins = append(joins, req)
			continue
		case id := <-w.leave:
			leaves = append(leaves, id)
			continue
		case env := <-w.inbox:
			intents = append(intents, env)
			continue
		default:
		}
		break
	}
	w.step(joins, leaves, intents)
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// Close stops the cognition workers. Call after Run returns.
func (w *World) Close() {
	if w.cog != nil {
		w.cog.Close()
	}
}

func (w *World) step(joins []JoinRequest, leaves []string, intents []IntentEnvelope) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	w.store.begin()
	w.events = w.events[:0]

	// Leaves and joins apply at the tick boundary, before intents.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if w.handleLeave(id, nowTick) {
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp := w.joinPlayer(req, nowTick)
		if req.Resp != nil {
			req.Resp <- resp
		}
		if resp.Err == nil {
			recordedJoins = append(recordedJoins, RecordedJoin{EntityID: resp.Welcome.EntityID, Name: req.Name, Profile: req.Profile})
		}
	}

	// (1) intents in receive order
	recorded := make([]RecordedIntent, 0, len(intents))
	rejected := 0
	for _, env := range intents {
		if _, ok := w.store.Get(env.EntityID); !ok {
			continue
		}
		recorded = append(recorded, RecordedIntent{EntityID: env.EntityID, Intent: env.Intent})
		if !w.applyIntent(env, nowTick) {
			rejected++
		}
	}

	// (2)-(5) systems, fixed order
	w.systemMovement(nowTick)
	w.systemSkilling(nowTick)
	w.systemCombat(nowTick)
	w.systemNPC(nowTick)

	// (6) cognition results and fallbacks
	if w.cog != nil {
		b := w.bridge()
		w.cogStats = w.cog.Step(nowTick, b, b)
		if w.cogStats.Stale > 0 || w.cogStats.Timeouts > 0 {
			w.log.WithFields(logrus.Fields{
				"tick": nowTick, "stale": w.cogStats.Stale, "timeouts": w.cogStats.Timeouts,
			}).Debug("cognition results discarded")
		}
	}

	// (7) respawns run unconditionally
	w.systemNodeRespawn(nowTick)
	w.systemEntityRespawn(nowTick)

	// (8) emit
	w.emitBatch(nowTick)
	w.store.end()

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{
			Tick: nowTick, Joins: recordedJoins, Leaves: recordedLeaves, Intents: recorded, Rejected: rejected, Digest: digest,
		}); err != nil {
			w.log.WithError(err).WithField("tick", nowTick).Warn("tick log write failed")
		}
	}

	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 && nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		snap := w.ExportSnapshot(nowTick)
		select {
		case w.snapshotSink <- snap:
		default:
			w.log.WithField("tick", nowTick).Warn("snapshot sink backed up, dropping snapshot")
		}
	}

	took := time.Since(stepStart)
	budget := time.Second / time.Duration(w.cfg.TickRateHz)
	if took > budget {
		w.log.WithFields(logrus.Fields{"tick": nowTick, "took": took, "budget": budget}).Warn("tick overran its budget")
	}
	next := w.tick.Add(1)
	w.storeMetrics(next, took, digest)
}

func (w *World) joinPlayer(req JoinRequest, nowTick uint64) JoinResponse {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "player"
	}
	w.nextPlayerNum++
	e := w.newEntity(fmt.Sprintf("player:%d", w.nextPlayerNum), KindPlayer, name, w.catalogs.World.Spawn)
	for _, it := range w.catalogs.World.StarterItems {
		_ = e.Inventory.Add(it.Item, it.Count, w.catalogs.Stackable(it.Item))
	}
	if req.Profile != nil {
		if err := w.restoreProfile(e, *req.Profile); err != nil {
			w.log.WithError(err).WithField("name", name).Warn("saved profile rejected, starting fresh")
		}
	}
	if err := w.store.Create(e); err != nil {
		return JoinResponse{Err: err}
	}
	if req.Out != nil {
		w.clients[e.ID] = &clientState{Out: req.Out}
	}
	return JoinResponse{Welcome: w.buildWelcome(e, nowTick)}
}

func (w *World) buildWelcome(e *Entity, nowTick uint64) protocol.WelcomeMsg {
	c := w.catalogs
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		EntityID:        e.ID,
		Tick:            nowTick,
		WorldParams: protocol.WorldParams{
			WorldID:    w.cfg.WorldID,
			TickRateHz: w.cfg.TickRateHz,
			Seed:       w.cfg.Seed,
		},
		Catalogs: protocol.CatalogDigests{
			Items:   c.Items.Digest,
			Recipes: c.Recipes.Digest,
			Nodes:   c.Nodes.Digest,
			NPCs:    c.NPCs.Digest,
			Shops:   c.Shops.Digest,
			Quests:  c.Quests.Digest,
			World:   c.WorldDigest,
		},
		Self:  e.State(),
		Nodes: w.nodeStates(),
	}
}

func (w *World) handleLeave(id string, nowTick uint64) bool {
	e, ok := w.store.Get(id)
	if !ok {
		return false
	}
	if e.Kind == KindPlayer {
		w.parkPlayer(e, nowTick)
	}
	w.removeEntity(id)
	return true
}

// removeEntity drops the entity, its session and its agent context, and stops everyone
// targeting it.
func (w *World) removeEntity(id string) {
	e, ok := w.store.Get(id)
	if !ok {
		return
	}
	if e.Action.Kind == ActionGathering {
		if n := w.nodes[e.Action.NodeID]; n != nil {
			delete(n.Gatherers, id)
		}
	}
	w.store.Remove(id)
	delete(w.clients, id)
	delete(w.lastSent, id)
	delete(w.sayLimits, id)
	if w.cog != nil {
		w.cog.Detach(id)
	}
}

func (w *World) newEntity(id string, kind Kind, name string, at geom.Pos) *Entity {
	st := w.catalogs.World.Stats
	return &Entity{
		ID:        id,
		Kind:      kind,
		Name:      name,
		Pos:       at,
		Home:      at,
		HP:        st.HP,
		MaxHP:     st.HP,
		Attack:    st.Attack,
		Defence:   st.Defence,
		MaxHit:    st.MaxHit,
		Skills:    map[string]int64{},
		Inventory: NewInventory(w.cfg.InventorySlots),
		Bank:      NewInventory(w.cfg.BankSlots),
		Quests:    map[string]QuestState{},
		Action:    Action{Kind: ActionIdle},
	}
}
