package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mmeshcher/orderbot/internal/model"
)

type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions",
		SQL: `
			CREATE TABLE sessions (
				user_id          TEXT PRIMARY KEY,
				id               TEXT NOT NULL,
				last_intent      TEXT NOT NULL DEFAULT '',
				cart_draft       TEXT NOT NULL DEFAULT '[]',
				last_bot_message TEXT NOT NULL DEFAULT '',
				created_at       INTEGER NOT NULL,
				updated_at       INTEGER NOT NULL
			);

			CREATE UNIQUE INDEX idx_sessions_id ON sessions (id);
			CREATE INDEX idx_sessions_updated ON sessions (updated_at);
		`,
	},
}

// SQLiteStore хранит сессии в SQLite. Корзина сохраняется как JSON,
// время хранится в наносекундах Unix.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore открывает (или создаёт) базу сессий и применяет миграции.
// Путь ":memory:" создаёт базу в памяти.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create session db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Каждое соединение к ":memory:" получает собственную базу.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

// Close закрывает соединение с базой.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// GetOrCreate возвращает сессию пользователя, создавая её при первом обращении.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, userID string) (*model.Session, error) {
	now := s.now().UnixNano()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, uuid.New().String(), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return s.Get(ctx, userID)
}

// Get возвращает сессию пользователя или ErrSessionNotFound.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, last_intent, cart_draft, last_bot_message, created_at, updated_at
		 FROM sessions WHERE user_id = ?`, userID,
	)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// Save сохраняет сессию целиком.
func (s *SQLiteStore) Save(ctx context.Context, sess *model.Session) error {
	if sess == nil || sess.UserID == "" {
		return errors.New("save session: empty user id")
	}

	draft, err := json.Marshal(sess.Draft)
	if err != nil {
		return fmt.Errorf("encode cart draft: %w", err)
	}
	if sess.Draft == nil {
		draft = []byte("[]")
	}

	id := sess.ID
	if id == "" {
		id = uuid.New().String()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, id, last_intent, cart_draft, last_bot_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			id = excluded.id,
			last_intent = excluded.last_intent,
			cart_draft = excluded.cart_draft,
			last_bot_message = excluded.last_bot_message,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		sess.UserID, id, string(sess.LastIntent), string(draft), sess.LastBotMessage,
		sess.CreatedAt.UnixNano(), sess.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// List возвращает все сессии, упорядоченные по идентификатору пользователя.
func (s *SQLiteStore) List(ctx context.Context) ([]*model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, last_intent, cart_draft, last_bot_message, created_at, updated_at
		 FROM sessions ORDER BY user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()

	var res []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		res = append(res, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// DeleteIdle удаляет сессии, не обновлявшиеся с момента before, и возвращает их количество.
func (s *SQLiteStore) DeleteIdle(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*model.Session, error) {
	var (
		sess                 model.Session
		lastIntent, draft    string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &lastIntent, &draft, &sess.LastBotMessage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	sess.LastIntent = model.Intent(lastIntent)
	if err := json.Unmarshal([]byte(draft), &sess.Draft); err != nil {
		return nil, fmt.Errorf("decode cart draft: %w", err)
	}
	if len(sess.Draft) == 0 {
		sess.Draft = nil
	}
	sess.CreatedAt = time.Unix(0, createdAt)
	sess.UpdatedAt = time.Unix(0, updatedAt)
	return &sess, nil
}
