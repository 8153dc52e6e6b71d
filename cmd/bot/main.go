// Command bot is a scripted websocket player: it gathers at the nearest node and reports
// what it hears.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"driftmoor.ai/internal/logging"
	"driftmoor.ai/internal/protocol"
)

func main() {
	var (
		url  = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name = flag.String("name", "bot", "player name")
	)
	flag.Parse()

	log := logging.New("", "", os.Stdout).WithField("component", "bot")
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.WithError(err).Fatal("dial")
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Name:            *name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 16},
	}
	if err := conn.WriteJSON(hello); err != nil {
		log.WithError(err).Fatal("send HELLO")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	b := &bot{conn: conn, log: log}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.welcome(w)
		case protocol.TypeEventBatch:
			var batch protocol.EventBatchMsg
			if err := json.Unmarshal(msg, &batch); err != nil {
				continue
			}
			b.batch(batch)
		}
	}
}

type bot struct {
	conn *websocket.Conn
	log  *logrus.Entry

	self  protocol.EntityState
	nodes map[string]protocol.NodeState
	seq   int
}

func (b *bot) welcome(w protocol.WelcomeMsg) {
	b.self = w.Self
	b.nodes = map[string]protocol.NodeState{}
	for _, n := range w.Nodes {
		b.nodes[n.ID] = n
	}
	b.log = b.log.WithField("entity", w.EntityID)
	b.log.WithFields(logrus.Fields{"tick": w.Tick, "tick_rate": w.WorldParams.TickRateHz, "seed": w.WorldParams.Seed}).Info("WELCOME")
	b.gatherNearest()
}

func (b *bot) batch(batch protocol.EventBatchMsg) {
	for _, ev := range batch.Events {
		switch ev.Type {
		case protocol.EventNodeUpdate:
			if ev.Node != nil {
				b.nodes[ev.Node.ID] = *ev.Node
			}
		case protocol.EventSpeak:
			if ev.EntityID != b.self.ID {
				b.log.WithField("from", ev.EntityID).Info(ev.Text)
			}
		case protocol.EventIntentRejected:
			b.log.WithFields(logrus.Fields{"ref": ev.Ref, "code": ev.Code}).Warn(ev.Message)
		case protocol.EventActionStopped:
			if ev.EntityID == b.self.ID {
				b.gatherNearest()
			}
		case protocol.EventEntityDiff:
			if ev.EntityID != b.self.ID || ev.Diff == nil {
				continue
			}
			if ev.Diff.Pos != nil {
				b.self.Pos = *ev.Diff.Pos
			}
			if ev.Diff.Action != nil {
				b.self.Action = *ev.Diff.Action
				if ev.Diff.Action.Kind == "idle" {
					b.gatherNearest()
				}
			}
		case protocol.EventLevelUp:
			if ev.EntityID == b.self.ID {
				b.send(protocol.IntentMsg{Intent: protocol.IntentSay, Text: fmt.Sprintf("%s level %d!", ev.Skill, ev.Level)})
			}
		}
	}
}

// gatherNearest walks to the closest available node in the bot's area and gathers there.
func (b *bot) gatherNearest() {
	var best *protocol.NodeState
	bestD := 0
	for id := range b.nodes {
		n := b.nodes[id]
		if n.Pos.Area != b.self.Pos.Area || n.Remaining <= 0 {
			continue
		}
		d := chebyshev(n.Pos, b.self.Pos)
		if best == nil || d < bestD || (d == bestD && n.ID < best.ID) {
			best, bestD = &n, d
		}
	}
	if best == nil {
		return
	}
	if bestD > 1 {
		dest := best.Pos
		b.send(protocol.IntentMsg{Intent: protocol.IntentMoveTo, Dest: &dest})
		return
	}
	b.send(protocol.IntentMsg{Intent: protocol.IntentGatherResource, NodeID: best.ID})
}

func (b *bot) send(in protocol.IntentMsg) {
	b.seq++
	in.Type = protocol.TypeIntent
	in.ProtocolVersion = protocol.Version
	in.Ref = fmt.Sprintf("bot-%d", b.seq)
	if err := b.conn.WriteJSON(in); err != nil {
		b.log.WithError(err).Warn("send intent")
	}
}

func chebyshev(a, b protocol.Position) int {
	dx, dy := a.X-b.X, a.Y-b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}
