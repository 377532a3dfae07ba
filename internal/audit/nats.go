package audit

import (
	"context"
	"encoding/json"
	"time"

	"antrian-klinik/internal/models"

	"go.uber.org/zap"
)

const (
	SubjectAudit  = "clinic.queue.audit"
	SubjectTicket = "clinic.queue.ticket"
)

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subj string, data []byte) error
}

type TicketEvent struct {
	Key      models.QueueKey `json:"key"`
	EntryID  string          `json:"entry_id"`
	Number   int64           `json:"number"`
	Source   models.Source   `json:"source"`
	IssuedAt time.Time       `json:"issued_at"`
}

type NATSSink struct {
	pub Publisher
	log *zap.Logger
}

func NewNATSSink(pub Publisher, log *zap.Logger) *NATSSink {
	return &NATSSink{pub: pub, log: log}
}

func (s *NATSSink) Record(ctx context.Context, ev models.AuditEvent) {
	s.publish(SubjectAudit, ev)
}

// TicketIssued mengabarkan nomor antrian baru ke layanan lain (SMS, kiosk).
func (s *NATSSink) TicketIssued(ctx context.Context, key models.QueueKey, entry models.Entry) {
	s.publish(SubjectTicket, TicketEvent{
		Key:      key,
		EntryID:  entry.ID,
		Number:   entry.Number,
		Source:   entry.Source,
		IssuedAt: entry.CreatedAt,
	})
}

func (s *NATSSink) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := s.pub.Publish(subject, data); err != nil {
		s.log.Warn("publish event gagal", zap.String("subject", subject), zap.Error(err))
	}
}
