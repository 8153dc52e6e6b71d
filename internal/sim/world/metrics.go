package world

import "time"

// Metrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type Metrics struct {
	Tick uint64 `json:"tick"`

	Entities int `json:"entities"`
	Agents   int `json:"agents"`
	Clients  int `json:"clients"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
	Digest string  `json:"digest"`

	Cognition CognitionMetrics `json:"cognition"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

// CognitionMetrics reports the last tick's cognition step plus queue occupancy.
type CognitionMetrics struct {
	Applied     int `json:"applied"`
	Stale       int `json:"stale"`
	Failed      int `json:"failed"`
	Timeouts    int `json:"timeouts"`
	Submitted   int `json:"submitted"`
	Fallbacks   int `json:"fallbacks"`
	Reflections int `json:"reflections"`
	Inflight    int `json:"inflight"`
}

func (w *World) storeMetrics(tick uint64, took time.Duration, digest string) {
	m := Metrics{
		Tick:     tick,
		Entities: w.store.Len(),
		Clients:  len(w.clients),
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS: float64(took.Microseconds()) / 1000,
		Digest: digest,
	}
	if w.cog != nil {
		s := w.cogStats
		m.Agents = len(w.cog.Agents())
		m.Cognition = CognitionMetrics{
			Applied: s.Applied, Stale: s.Stale, Failed: s.Failed, Timeouts: s.Timeouts,
			Submitted: s.Submitted, Fallbacks: s.Fallbacks, Reflections: s.Reflections,
			Inflight: w.cog.Inflight(),
		}
	}
	w.metrics.Store(m)
}

func (w *World) Metrics() Metrics {
	if w == nil {
		return Metrics{}
	}
	m, _ := w.metrics.Load().(Metrics)
	return m
}
