package cognition

// Memory kinds recorded by the simulation.
const (
	MemoryAttacked     = "attacked"
	MemoryHitTaken     = "hit_taken"
	MemoryHitDealt     = "hit_dealt"
	MemoryItemReceived = "item_received"
	MemoryHeard        = "heard"
	MemoryDied         = "died"
	MemoryKilled       = "killed"
	MemoryReflection   = "reflection"
)

type MemoryEntry struct {
	Seq     uint64 `json:"seq"`
	Tick    uint64 `json:"tick"`
	Kind    string `json:"kind"`
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text"`
}

// Memory is a fixed-size ring buffer of recent events. When full, the oldest entry is evicted.
type Memory struct {
	buf     []MemoryEntry
	head    int // index of the oldest entry
	n       int
	nextSeq uint64
}

func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 1
	}
	return &Memory{buf: make([]MemoryEntry, size), nextSeq: 1}
}

func (m *Memory) Len() int { return m.n }
func (m *Memory) Cap() int { return len(m.buf) }

// Add appends e, assigning its sequence number.
func (m *Memory) Add(e MemoryEntry) MemoryEntry {
	e.Seq = m.nextSeq
	m.nextSeq++
	if m.n < len(m.buf) {
		m.buf[(m.head+m.n)%len(m.buf)] = e
		m.n++
		return e
	}
	m.buf[m.head] = e
	m.head = (m.head + 1) % len(m.buf)
	return e
}

// Entries returns a copy, oldest first.
func (m *Memory) Entries() []MemoryEntry {
	out := make([]MemoryEntry, m.n)
	for i := 0; i < m.n; i++ {
		out[i] = m.buf[(m.head+i)%len(m.buf)]
	}
	return out
}

// Recent returns up to k newest entries, oldest first.
func (m *Memory) Recent(k int) []MemoryEntry {
	all := m.Entries()
	if k >= len(all) {
		return all
	}
	return all[len(all)-k:]
}

// LastSeq is the sequence number of the newest entry (0 when empty).
func (m *Memory) LastSeq() uint64 { return m.nextSeq - 1 }

// Condense replaces every entry with Seq <= upto by a single reflection note placed before the
// surviving entries. Entries added after the reflection snapshot are kept.
func (m *Memory) Condense(upto uint64, summary string, tick uint64) {
	keep := make([]MemoryEntry, 0, m.n)
	for _, e := range m.Entries() {
		if e.Seq > upto {
			keep = append(keep, e)
		}
	}
	note := MemoryEntry{Seq: upto, Tick: tick, Kind: MemoryReflection, Text: summary}
	rebuilt := append([]MemoryEntry{note}, keep...)
	if len(rebuilt) > len(m.buf) {
		rebuilt = rebuilt[len(rebuilt)-len(m.buf):]
	}
	for i := range m.buf {
		m.buf[i] = MemoryEntry{}
	}
	copy(m.buf, rebuilt)
	m.head = 0
	m.n = len(rebuilt)
}
