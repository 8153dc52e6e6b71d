package reasoner

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"driftmoor.ai/internal/sim/cognition"
	"driftmoor.ai/internal/sim/geom"
)

func agentRequest(t *testing.T) cognition.Request {
	t.Helper()
	snap := cognition.AgentSnapshot{
		Tick: 5,
		Self: cognition.AgentState{ID: "agent:bryn", Pos: geom.Pos{Area: "valley", X: 10, Y: 10},
			HP: 10, MaxHP: 10, Action: "idle", Skills: map[string]int{"mining": 1}, FreeSlots: 28},
		Profile: cognition.Profile{Name: "Bryn", Skill: "mining"},
		Surroundings: cognition.Surroundings{Nodes: []cognition.NodeInfo{
			{ID: "oreVein1", Skill: "mining", Pos: geom.Pos{Area: "valley", X: 11, Y: 10}, Available: true, Level: 1},
		}},
	}
	raw, err := json.Marshal(cognition.SnapshotEnvelope{Agent: &snap})
	require.NoError(t, err)
	return cognition.Request{ID: "01REQ", Key: "agent:bryn", Kind: cognition.RequestDecide, Tick: 5, Snapshot: raw}
}

func TestHTTP_PostsSnapshotAndParsesDecisions(t *testing.T) {
	var got wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/decide", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = w.Write([]byte(`{"request_id":"01REQ","decisions":[{"agent_id":"agent:bryn","kind":"gather","node_id":"oreVein1"}]}`))
	}))
	defer srv.Close()

	h, err := NewHTTP(srv.URL, "secret", nil)
	require.NoError(t, err)
	resp, err := h.Reason(context.Background(), agentRequest(t))
	require.NoError(t, err)
	require.Equal(t, "01REQ", got.RequestID)
	require.Equal(t, uint64(5), got.Tick)
	require.Len(t, resp.Decisions, 1)
	require.Equal(t, cognition.DecisionGather, resp.Decisions[0].Kind)
	require.Equal(t, "oreVein1", resp.Decisions[0].NodeID)
}

func TestHTTP_RejectsInvalidResponses(t *testing.T) {
	for name, body := range map[string]string{
		"unknown kind":      `{"decisions":[{"agent_id":"a","kind":"teleport"}]}`,
		"move without dest": `{"decisions":[{"agent_id":"a","kind":"move"}]}`,
		"wrong request id":  `{"request_id":"other","decisions":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()
			h, err := NewHTTP(srv.URL, "", nil)
			require.NoError(t, err)
			_, err = h.Reason(context.Background(), agentRequest(t))
			require.Error(t, err)
		})
	}
}

func TestHTTP_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	h, err := NewHTTP(srv.URL, "", nil)
	require.NoError(t, err)
	_, err = h.Reason(context.Background(), agentRequest(t))
	require.ErrorContains(t, err, "overloaded")
}

func TestHTTP_HonorsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	h, err := NewHTTP(srv.URL, "", nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.Reason(ctx, agentRequest(t))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScripted_DecidesWithBehaviorTree(t *testing.T) {
	s := NewScripted(0)
	resp, err := s.Reason(context.Background(), agentRequest(t))
	require.NoError(t, err)
	require.Equal(t, "01REQ", resp.RequestID)
	require.Len(t, resp.Decisions, 1)
	require.Equal(t, cognition.DecisionGather, resp.Decisions[0].Kind)
	require.Equal(t, "agent:bryn", resp.Decisions[0].AgentID)
}

func TestScripted_Reflects(t *testing.T) {
	snap := cognition.ReflectSnapshot{Tick: 40, Profile: cognition.Profile{Name: "Bryn"}, Entries: []cognition.MemoryEntry{
		{Kind: cognition.MemoryHeard}, {Kind: cognition.MemoryHitTaken}, {Kind: cognition.MemoryHeard},
	}}
	raw, err := json.Marshal(cognition.SnapshotEnvelope{Reflect: &snap})
	require.NoError(t, err)
	resp, err := NewScripted(0).Reason(context.Background(), cognition.Request{ID: "r", Kind: cognition.RequestReflect, Snapshot: raw})
	require.NoError(t, err)
	require.Equal(t, "Bryn by tick 40: heard x2, hit_taken x1", resp.Summary)
}

func TestScripted_CancelledDuringLatency(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScripted(time.Second).Reason(ctx, agentRequest(t))
	require.ErrorIs(t, err, context.Canceled)
}
