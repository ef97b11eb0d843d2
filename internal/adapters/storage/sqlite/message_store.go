// Package sqlite is the durable MessageStore backed by a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dkeye/Pairline/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

type MessageStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*MessageStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; WAL lets readers proceed alongside.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			sender     TEXT NOT NULL,
			receiver   TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '',
			type       TEXT NOT NULL DEFAULT 'text',
			media_ref  TEXT NOT NULL DEFAULT '',
			file_name  TEXT NOT NULL DEFAULT '',
			file_size  INTEGER NOT NULL DEFAULT 0,
			read       INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_pair
			ON messages (sender, receiver, created_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create messages table: %w", err)
	}

	log.Info().Str("module", "storage.sqlite").Str("path", path).Msg("message store ready")
	return &MessageStore{db: db, now: time.Now}, nil
}

func (s *MessageStore) Create(ctx context.Context, m domain.NewMessage) (domain.Message, error) {
	msg := domain.Message{
		ID:        uuid.NewString(),
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Content:   m.Content,
		Type:      m.Type,
		MediaRef:  m.MediaRef,
		FileName:  m.FileName,
		FileSize:  m.FileSize,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender, receiver, content, type, media_ref, file_name, file_size, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		msg.ID, string(msg.Sender), string(msg.Receiver), msg.Content, string(msg.Type),
		msg.MediaRef, msg.FileName, msg.FileSize, msg.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// History returns the conversation between a and b, oldest first, keeping
// the most recent limit messages when limit > 0.
func (s *MessageStore) History(ctx context.Context, a, b domain.UserID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, receiver, content, type, media_ref, file_name, file_size, read, created_at
		FROM (
			SELECT rowid AS seq, * FROM messages
			WHERE (sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)
			ORDER BY created_at DESC, seq DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, seq ASC`,
		string(a), string(b), string(b), string(a), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		var (
			m                domain.Message
			sender, receiver string
			typ              string
			read             int
			createdAtMicro   int64
		)
		if err := rows.Scan(&m.ID, &sender, &receiver, &m.Content, &typ, &m.MediaRef, &m.FileName, &m.FileSize, &read, &createdAtMicro); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = domain.UserID(sender)
		m.Receiver = domain.UserID(receiver)
		m.Type = domain.MessageType(typ)
		m.Read = read != 0
		m.CreatedAt = time.UnixMicro(createdAtMicro).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

func (s *MessageStore) MarkRead(ctx context.Context, reader, peer domain.UserID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET read = 1 WHERE sender = ? AND receiver = ? AND read = 0`,
		string(peer), string(reader),
	)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark read rows: %w", err)
	}
	return n, nil
}

func (s *MessageStore) Close() error {
	return s.db.Close()
}
