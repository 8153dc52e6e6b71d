package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello      = "HELLO"
	TypeWelcome    = "WELCOME"
	TypeIntent     = "INTENT"
	TypeEventBatch = "EVENT_BATCH"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Position mirrors geom.Pos on the wire.
type Position struct {
	Area string `json:"area"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

type ItemStack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}
