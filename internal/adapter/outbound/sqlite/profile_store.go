// Package sqlite implements the ProfileStore port on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/celestine-app/celestine/internal/domain/content"
	"github.com/celestine-app/celestine/internal/domain/profile"
	"github.com/celestine-app/celestine/internal/port/outbound"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id    TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	tier       TEXT NOT NULL,
	timezone   TEXT NOT NULL DEFAULT '',
	birth_data BLOB,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS generated_content (
	user_id      TEXT NOT NULL,
	content_key  TEXT NOT NULL,
	content_type TEXT NOT NULL,
	payload      TEXT NOT NULL,
	generated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, content_key)
);
`

// ProfileStore persists profiles and generated content in SQLite.
// One writer at a time; SQLite serializes concurrent writes internally.
type ProfileStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*ProfileStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// modernc's driver does not support concurrent writes on one
	// connection pool entry; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}
	return &ProfileStore{db: db}, nil
}

// LoadProfile returns the stored profile for a user.
func (s *ProfileStore) LoadProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, tier, timezone, birth_data, updated_at
		 FROM profiles WHERE user_id = ?`, userID)

	var p profile.Profile
	var tier string
	err := row.Scan(&p.UserID, &p.Name, &tier, &p.Timezone, &p.BirthData, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, outbound.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load profile %s: %w", userID, err)
	}
	p.Tier = content.Tier(tier)
	return &p, nil
}

// SaveProfile inserts or replaces the profile row.
func (s *ProfileStore) SaveProfile(ctx context.Context, p *profile.Profile) error {
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, name, tier, timezone, birth_data, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			tier = excluded.tier,
			timezone = excluded.timezone,
			birth_data = excluded.birth_data,
			updated_at = excluded.updated_at`,
		p.UserID, p.Name, string(p.Tier), p.Timezone, []byte(p.BirthData), updatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: save profile %s: %w", p.UserID, err)
	}
	return nil
}

// SaveContent inserts or replaces one generated-content row.
func (s *ProfileStore) SaveContent(ctx context.Context, gc *profile.GeneratedContent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generated_content (user_id, content_key, content_type, payload, generated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, content_key) DO UPDATE SET
			content_type = excluded.content_type,
			payload = excluded.payload,
			generated_at = excluded.generated_at`,
		gc.UserID, gc.Key, string(gc.Type), gc.Payload, gc.GeneratedAt)
	if err != nil {
		return fmt.Errorf("sqlite: save content %s/%s: %w", gc.UserID, gc.Key, err)
	}
	return nil
}

// LoadContent returns the stored payload for a content key, if any.
func (s *ProfileStore) LoadContent(ctx context.Context, userID, key string) (*profile.GeneratedContent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, content_key, content_type, payload, generated_at
		 FROM generated_content WHERE user_id = ? AND content_key = ?`,
		userID, key)

	var gc profile.GeneratedContent
	var typ string
	err := row.Scan(&gc.UserID, &gc.Key, &typ, &gc.Payload, &gc.GeneratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, outbound.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load content %s/%s: %w", userID, key, err)
	}
	gc.Type = content.Type(typ)
	return &gc, nil
}

// Close releases the database handle.
func (s *ProfileStore) Close() error {
	return s.db.Close()
}

// Compile-time interface verification.
var _ outbound.ProfileStore = (*ProfileStore)(nil)
