package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"support-agent/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLStore persists conversations in SQLite or Postgres. A conversations row
// carries the turn count; turns live in conversation_turns keyed by sequence.
// Put appends only the turns past the stored count.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens dsn with driver ("sqlite" or "postgres") and applies the
// schema. For SQLite, dsn is a file path and its directory is created.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("repository: dsn must not be empty")
	}
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("repository: create data directory: %w", err)
			}
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("repository: unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// A single writer connection avoids SQLITE_BUSY under concurrent puts.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: ping %s: %w", driver, err)
	}
	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("repository: apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Get loads the conversation for sessionKey.
func (s *SQLStore) Get(ctx context.Context, sessionKey string) (domain.ConversationState, bool, error) {
	var (
		count   int
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT turn_count, updated_at FROM conversations WHERE session_key = ?`),
		sessionKey,
	).Scan(&count, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ConversationState{}, false, nil
	}
	if err != nil {
		return domain.ConversationState{}, false, fmt.Errorf("repository: Get conversation: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT seq, role, content, category, sentiment, created_at
			FROM conversation_turns WHERE session_key = ? AND seq < ? ORDER BY seq`),
		sessionKey, count,
	)
	if err != nil {
		return domain.ConversationState{}, false, fmt.Errorf("repository: Get turns: %w", err)
	}
	defer rows.Close()

	state := domain.NewConversationState(sessionKey)
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		state.UpdatedAt = ts
	}
	for rows.Next() {
		var (
			seq                                          int
			role, content, category, sentiment, created string
		)
		if err := rows.Scan(&seq, &role, &content, &category, &sentiment, &created); err != nil {
			return domain.ConversationState{}, false, fmt.Errorf("repository: Get scan: %w", err)
		}
		if seq != len(state.Turns) {
			return domain.ConversationState{}, false, fmt.Errorf("repository: Get: %w: missing turn %d", domain.ErrStateCorrupt, len(state.Turns))
		}
		ts, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return domain.ConversationState{}, false, fmt.Errorf("repository: Get: %w: turn %d: %w", domain.ErrStateCorrupt, seq, err)
		}
		turn := domain.ConversationTurn{Role: domain.Role(role), Content: content, CreatedAt: ts}
		if category != "" || sentiment != "" {
			turn.Metadata = &domain.TurnMetadata{Category: domain.Category(category), Sentiment: domain.Sentiment(sentiment)}
		}
		state.Turns = append(state.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return domain.ConversationState{}, false, fmt.Errorf("repository: Get rows: %w", err)
	}
	if len(state.Turns) != count {
		return domain.ConversationState{}, false, fmt.Errorf("repository: Get: %w: have %d of %d turns", domain.ErrStateCorrupt, len(state.Turns), count)
	}
	state.Version = count
	return state, true, nil
}

// Put stores state. Unless state.Replace is set, the stored turn count must
// equal state.Version and the first Version turns are taken as already
// stored; otherwise Put returns ErrConflict. A replacing put drops every
// stored turn row for the session first.
func (s *SQLStore) Put(ctx context.Context, state domain.ConversationState) error {
	if strings.TrimSpace(state.SessionKey) == "" {
		return errors.New("repository: Put: session key is required")
	}
	if !state.Replace && state.Version > len(state.Turns) {
		return fmt.Errorf("repository: Put: version %d exceeds %d turns", state.Version, len(state.Turns))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: Put begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	base := 0
	if !state.Replace {
		var stored int
		err = tx.QueryRowContext(ctx,
			s.rebind(`SELECT turn_count FROM conversations WHERE session_key = ?`),
			state.SessionKey,
		).Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			stored = 0
		case err != nil:
			return fmt.Errorf("repository: Put read count: %w", err)
		}
		if stored != state.Version {
			return fmt.Errorf("repository: Put: %w", ErrConflict)
		}
		base = stored
	}

	// Rows at or past base are not part of the conversation.
	if _, err := tx.ExecContext(ctx,
		s.rebind(`DELETE FROM conversation_turns WHERE session_key = ? AND seq >= ?`),
		state.SessionKey, base,
	); err != nil {
		return fmt.Errorf("repository: Put prune: %w", err)
	}
	insert := s.rebind(`INSERT INTO conversation_turns
		(session_key, seq, role, content, category, sentiment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for i := base; i < len(state.Turns); i++ {
		t := state.Turns[i]
		var category, sentiment string
		if t.Metadata != nil {
			category, sentiment = string(t.Metadata.Category), string(t.Metadata.Sentiment)
		}
		if _, err := tx.ExecContext(ctx, insert,
			state.SessionKey, i, string(t.Role), t.Content, category, sentiment,
			t.CreatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("repository: Put turn %d: %w", i, err)
		}
	}

	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		s.rebind(`INSERT INTO conversations (session_key, turn_count, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (session_key) DO UPDATE SET turn_count = excluded.turn_count, updated_at = excluded.updated_at`),
		state.SessionKey, len(state.Turns), updated.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("repository: Put conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: Put commit: %w", err)
	}
	return nil
}

// Clear removes the conversation and its turns.
func (s *SQLStore) Clear(ctx context.Context, sessionKey string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: Clear begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM conversations WHERE session_key = ?`), sessionKey); err != nil {
		return fmt.Errorf("repository: Clear conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM conversation_turns WHERE session_key = ?`), sessionKey); err != nil {
		return fmt.Errorf("repository: Clear turns: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: Clear commit: %w", err)
	}
	return nil
}
