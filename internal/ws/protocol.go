package ws

type MessageType string

const (
	MsgNewTraffic      MessageType = "new_traffic"
	MsgStatsUpdate     MessageType = "stats_update"
	MsgSuspiciousAlert MessageType = "suspicious_alert"
)

// WSMessage is the envelope of every server to client frame. Seq increases
// by one per published message; a subscriber seeing a gap knows its queue
// overflowed.
type WSMessage struct {
	Type    MessageType `json:"type"`
	Seq     uint64      `json:"seq"`
	// Payload is a traffic.Event, traffic.Stats or traffic.Alert.
	Payload interface{} `json:"payload"`
}
