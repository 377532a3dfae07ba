package models

import "time"

// Server -> client message types on the push channel.
const (
	MessageSnapshot = "snapshot" // jawaban handshake, full state
	MessageUpdate   = "update"   // push setelah mutasi
	MessageInSync   = "in_sync"
	MessageError    = "error"
	MessagePong     = "pong"
)

// Client -> server message types.
const (
	MessageSubscribe   = "subscribe"
	MessageUnsubscribe = "unsubscribe"
	MessageAck         = "ack"
	MessagePing        = "ping"
)

type ServerMessage struct {
	Type      string    `json:"type"`
	Key       *QueueKey `json:"key,omitempty"`
	Version   int64     `json:"version,omitempty"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

type ClientMessage struct {
	Type             string   `json:"type"`
	Key              QueueKey `json:"key"`
	LastKnownVersion *int64   `json:"last_known_version,omitempty"`
	Version          int64    `json:"version,omitempty"`
}

/*
|--------------------------------------------------------------------------
| Audit
|--------------------------------------------------------------------------
*/

type Operation string

const (
	OpEnqueue      Operation = "enqueue"
	OpCallNext     Operation = "call_next"
	OpMove         Operation = "move"
	OpBulkReorder  Operation = "bulk_reorder"
	OpToggleIntake Operation = "toggle_intake"
	OpMarkStatus   Operation = "mark_status"
	OpCloseDay     Operation = "close_day"
)

type AuditEvent struct {
	Operation Operation `json:"operation"`
	Key       QueueKey  `json:"key"`
	EntryID   string    `json:"entry_id,omitempty"`
	ActorID   string    `json:"actor_id"`
	Version   int64     `json:"version"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
