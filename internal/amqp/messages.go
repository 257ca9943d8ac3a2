package amqp

import (
	"encoding/json"
	"time"

	"personalos/internal/core"
)

// SnapshotMessage carries one metrics snapshot from the server to the
// snapshot worker. ExactMRR keeps the unrounded decimal as a string.
type SnapshotMessage struct {
	TakenAt             time.Time `json:"takenAt"`
	MRR                 int64     `json:"mrr"`
	ExactMRR            string    `json:"exactMrr"`
	MonthlyRevenue      int64     `json:"monthlyRevenue"`
	ActiveSubscriptions int       `json:"activeSubscriptions"`
	RecentCharges       int       `json:"recentCharges"`
	PublishedAt         time.Time `json:"publishedAt"`
}

// NewSnapshotMessage wraps a snapshot for publishing.
func NewSnapshotMessage(s core.MetricsSnapshot) *SnapshotMessage {
	return &SnapshotMessage{
		TakenAt:             s.TakenAt,
		MRR:                 s.MRR,
		ExactMRR:            s.ExactMRR,
		MonthlyRevenue:      s.MonthlyRevenue,
		ActiveSubscriptions: s.ActiveSubscriptions,
		RecentCharges:       s.RecentCharges,
		PublishedAt:         time.Now(),
	}
}

// Snapshot converts the message back into the domain type.
func (m *SnapshotMessage) Snapshot() core.MetricsSnapshot {
	return core.MetricsSnapshot{
		TakenAt:             m.TakenAt,
		MRR:                 m.MRR,
		ExactMRR:            m.ExactMRR,
		MonthlyRevenue:      m.MonthlyRevenue,
		ActiveSubscriptions: m.ActiveSubscriptions,
		RecentCharges:       m.RecentCharges,
	}
}

func (m *SnapshotMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SnapshotMessageFromJSON decodes a message body. A message without a
// snapshot time is rejected.
func SnapshotMessageFromJSON(data []byte) (*SnapshotMessage, error) {
	var msg SnapshotMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.TakenAt.IsZero() {
		return nil, errMissingTakenAt
	}
	return &msg, nil
}
