package audit

import (
	"context"
	"database/sql"

	"antrian-klinik/internal/models"

	"go.uber.org/zap"
)

// Sink menerima setiap mutasi yang sudah di-commit.
type Sink interface {
	Record(ctx context.Context, ev models.AuditEvent)
}

const CreateTableSQL = `
CREATE TABLE IF NOT EXISTS queue_transactions (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	queue_key VARCHAR(191) NOT NULL,
	entry_id VARCHAR(64) NULL,
	event VARCHAR(32) NOT NULL,
	actor_user_id VARCHAR(64) NOT NULL,
	version BIGINT NOT NULL,
	detail VARCHAR(255) NULL,
	created_at DATETIME(3) NOT NULL,
	INDEX idx_queue_key (queue_key, version)
)`

/*
|--------------------------------------------------------------------------
| MySQL Sink
|--------------------------------------------------------------------------
| Satu baris queue_transactions per operasi yang berhasil.
*/

type MySQLSink struct {
	db  *sql.DB
	log *zap.Logger
}

func NewMySQLSink(db *sql.DB, log *zap.Logger) *MySQLSink {
	return &MySQLSink{db: db, log: log}
}

func (s *MySQLSink) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, CreateTableSQL)
	return err
}

func (s *MySQLSink) Record(ctx context.Context, ev models.AuditEvent) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_transactions
		(queue_key, entry_id, event, actor_user_id, version, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.Key.String(), nullString(ev.EntryID), string(ev.Operation), ev.ActorID, ev.Version, nullString(ev.Detail), ev.Timestamp)
	if err != nil {
		s.log.Error("gagal mencatat transaksi",
			zap.String("queue", ev.Key.String()),
			zap.String("event", string(ev.Operation)),
			zap.Int64("version", ev.Version),
			zap.Error(err),
		)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
