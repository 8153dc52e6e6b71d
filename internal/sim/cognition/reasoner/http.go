// Package reasoner holds the external decision sources used by the cognition layer.
package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"driftmoor.ai/internal/protocol"
	"driftmoor.ai/internal/sim/cognition"
)

const maxResponseBytes = 1 << 20

// HTTP posts each request to an LLM gateway and validates the reply against the decision or
// reflection schema before handing it back to the queue.
type HTTP struct {
	endpoint   string
	token      string
	schemas    *protocol.Schemas
	httpClient *http.Client
}

func NewHTTP(endpoint, token string, schemas *protocol.Schemas) (*HTTP, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, oops.In("reasoner").Errorf("endpoint is required")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, oops.In("reasoner").With("endpoint", endpoint).Errorf("invalid endpoint")
	}
	if schemas == nil {
		if schemas, err = protocol.LoadSchemas(); err != nil {
			return nil, oops.In("reasoner").Wrapf(err, "load schemas")
		}
	}
	return &HTTP{
		endpoint: strings.TrimRight(u.String(), "/"),
		token:    strings.TrimSpace(token),
		schemas:  schemas,
		// Per-call deadlines come from the request context.
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

type wireRequest struct {
	RequestID string                `json:"request_id"`
	Kind      cognition.RequestKind `json:"kind"`
	Tick      uint64                `json:"tick"`
	Snapshot  json.RawMessage       `json:"snapshot"`
}

func (h *HTTP) Reason(ctx context.Context, req cognition.Request) (cognition.Response, error) {
	body, err := json.Marshal(wireRequest{RequestID: req.ID, Kind: req.Kind, Tick: req.Tick, Snapshot: req.Snapshot})
	if err != nil {
		return cognition.Response{}, oops.In("reasoner").Wrap(err)
	}
	path := "/v1/decide"
	schema := protocol.SchemaDecision
	if req.Kind == cognition.RequestReflect {
		path = "/v1/reflect"
		schema = protocol.SchemaReflection
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return cognition.Response{}, oops.In("reasoner").Wrap(err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		hreq.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.httpClient.Do(hreq)
	if err != nil {
		if ctx.Err() != nil {
			return cognition.Response{}, ctx.Err()
		}
		return cognition.Response{}, oops.In("reasoner").With("request_id", req.ID).Wrapf(err, "post %s", path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return cognition.Response{}, oops.In("reasoner").With("request_id", req.ID).Wrapf(err, "read body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return cognition.Response{}, oops.In("reasoner").
			With("request_id", req.ID).
			With("status", resp.StatusCode).
			Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	if err := h.schemas.Validate(schema, raw); err != nil {
		return cognition.Response{}, oops.In("reasoner").With("request_id", req.ID).Wrapf(err, "invalid %s response", req.Kind)
	}

	var out cognition.Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return cognition.Response{}, oops.In("reasoner").With("request_id", req.ID).Wrap(err)
	}
	if out.RequestID != "" && out.RequestID != req.ID {
		return cognition.Response{}, oops.In("reasoner").
			With("request_id", req.ID).
			With("got", out.RequestID).
			Errorf("response correlates to another request")
	}
	out.RequestID = req.ID
	return out, nil
}
