// Package rates holds tick-based rate limits.
package rates

// Window is a fixed-window counter measured in ticks.
type Window struct {
	Start uint64
	Count int
}

// Allow counts one event at nowTick. With window or max unset every event is allowed. When the
// budget is spent it reports how many ticks remain until the window resets.
func (w *Window) Allow(nowTick, window uint64, max int) (ok bool, cooldownTicks uint64) {
	if window == 0 || max <= 0 {
		return true, 0
	}
	if w.Count == 0 || nowTick-w.Start >= window {
		w.Start = nowTick
		w.Count = 0
	}
	if w.Count >= max {
		return false, (w.Start + window) - nowTick
	}
	w.Count++
	return true, 0
}
