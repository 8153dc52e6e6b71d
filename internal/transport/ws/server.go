package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/world"
)

const (
	defaultQueue = 8
	maxQueue     = 64

	abandonedJoinWait = 30 * time.Second
)

// ProfileStore looks up the saved profile of a returning player. A missing profile is not
// an error.
type ProfileStore interface {
	LoadProfile(ctx context.Context, name string) (*world.SavedProfile, bool, error)
}

type Server struct {
	world    *world.World
	schemas  *protocol.Schemas
	profiles ProfileStore
	log      *logrus.Entry

	upgrader websocket.Upgrader
}

// NewServer wires sessions to w. profiles may be nil.
func NewServer(w *world.World, schemas *protocol.Schemas, profiles ProfileStore, log *logrus.Entry) *Server {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = logrus.NewEntry(l)
	}
	return &Server{
		world:    w,
		schemas:  schemas,
		profiles: profiles,
		log:      log.WithField("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		entityID, out := s.handshake(ctx, conn)
		if entityID == "" {
			return
		}
		log := s.log.WithField("entity", entityID)
		log.Info("session joined")

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			intent, ok := s.decodeIntent(msg, entityID, out)
			if !ok {
				continue
			}
			select {
			case s.world.Inbox() <- world.IntentEnvelope{EntityID: entityID, Intent: intent}:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		cancel()

		// Cleanup.
		s.world.Leave() <- entityID
		log.Info("session left")
	}
}

// decodeIntent validates an INTENT frame. Malformed frames are answered directly with an
// intent_rejected event since they never reach the world.
func (s *Server) decodeIntent(msg []byte, entityID string, out chan []byte) (protocol.IntentMsg, bool) {
	var intent protocol.IntentMsg
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.rejectFrame(out, entityID, "", "malformed json")
		return intent, false
	}
	if base.Type != protocol.TypeIntent {
		s.rejectFrame(out, entityID, "", "unexpected message type "+base.Type)
		return intent, false
	}
	if err := json.Unmarshal(msg, &intent); err != nil {
		s.rejectFrame(out, entityID, "", "malformed intent")
		return intent, false
	}
	if intent.ProtocolVersion != protocol.Version {
		s.rejectFrame(out, entityID, intent.Ref, "bad protocol_version")
		return intent, false
	}
	if s.schemas != nil {
		if err := s.schemas.Validate(protocol.SchemaIntent, msg); err != nil {
			s.rejectFrame(out, entityID, intent.Ref, err.Error())
			return intent, false
		}
	}
	return intent, true
}

func (s *Server) rejectFrame(out chan []byte, entityID, ref, reason string) {
	batch := protocol.EventBatchMsg{
		Type:            protocol.TypeEventBatch,
		ProtocolVersion: protocol.Version,
		Tick:            s.world.CurrentTick(),
		Events: []protocol.Event{{
			Tick:    s.world.CurrentTick(),
			Type:    protocol.EventIntentRejected,
			To:      entityID,
			Ref:     ref,
			Code:    protocol.ErrProtoBadRequest,
			Message: reason,
		}},
	}
	b, err := json.Marshal(batch)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
		s.log.WithField("entity", entityID).Warn("session queue full, dropping rejection")
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (entityID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closePolicy(conn, "malformed HELLO")
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return "", nil
	}
	if s.schemas != nil {
		if err := s.schemas.Validate(protocol.SchemaHello, msg); err != nil {
			closePolicy(conn, "invalid HELLO")
			return "", nil
		}
	}
	name := strings.TrimSpace(hello.Name)

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = defaultQueue
	}
	if maxQ > maxQueue {
		maxQ = maxQueue
	}
	out = make(chan []byte, maxQ)

	var profile *world.SavedProfile
	if s.profiles != nil {
		p, ok, err := s.profiles.LoadProfile(ctx, name)
		switch {
		case err != nil:
			s.log.WithError(err).WithField("name", name).Warn("load profile failed, joining fresh")
		case ok:
			profile = p
		}
	}

	resp, ok := s.join(ctx, world.JoinRequest{Name: name, Profile: profile, Out: out})
	if !ok {
		return "", nil
	}
	if resp.Err != nil {
		s.log.WithError(resp.Err).WithField("name", name).Error("join failed")
		closePolicy(conn, "join failed")
		return "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.world.Leave() <- resp.Welcome.EntityID
		return "", nil
	}
	return resp.Welcome.EntityID, out
}

// join hands req to the world and waits for its answer. If ctx ends after the world took the
// request, the entity it admits is removed again once the answer arrives.
func (s *Server) join(ctx context.Context, req world.JoinRequest) (world.JoinResponse, bool) {
	respCh := make(chan world.JoinResponse, 1)
	req.Resp = respCh
	select {
	case s.world.Join() <- req:
	case <-ctx.Done():
		return world.JoinResponse{}, false
	}
	select {
	case resp := <-respCh:
		return resp, true
	case <-ctx.Done():
		go s.abandonJoin(respCh)
		return world.JoinResponse{}, false
	}
}

func (s *Server) abandonJoin(respCh <-chan world.JoinResponse) {
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-time.After(abandonedJoinWait):
		s.log.Warn("abandoned join never answered")
		return
	}
	if resp.Err != nil {
		return
	}
	log := s.log.WithField("entity", resp.Welcome.EntityID)
	select {
	case s.world.Leave() <- resp.Welcome.EntityID:
		log.Info("join abandoned, entity removed")
	case <-time.After(abandonedJoinWait):
		log.Warn("abandoned join: leave not accepted")
	}
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
