package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for all tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    username      TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL DEFAULT '',
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users(id),
    plan       TEXT NOT NULL DEFAULT 'free',
    status     TEXT NOT NULL DEFAULT 'active',
    started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS tts_providers (
    key        TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    config     JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS roles (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    promote          TEXT NOT NULL DEFAULT '',
    greeting         TEXT NOT NULL DEFAULT '',
    tags             JSONB NOT NULL DEFAULT '[]',
    image_url        TEXT NOT NULL DEFAULT '',
    silhouette_url   TEXT NOT NULL DEFAULT '',
    is_active        BOOLEAN NOT NULL DEFAULT TRUE,
    popularity_score INTEGER NOT NULL DEFAULT 0,
    tts_provider_key TEXT NOT NULL DEFAULT '',
    voice_params     JSONB NOT NULL DEFAULT '{}',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_roles_active ON roles(is_active);

CREATE TABLE IF NOT EXISTS conversations (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    role_id    TEXT REFERENCES roles(id),
    status     TEXT NOT NULL DEFAULT 'active',
    started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    ended_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);

CREATE TABLE IF NOT EXISTS messages (
    id               TEXT PRIMARY KEY,
    conversation_id  TEXT NOT NULL REFERENCES conversations(id),
    sender           TEXT NOT NULL CHECK (sender IN ('user','role','system','hardware')),
    text             TEXT NOT NULL DEFAULT '',
    audio_url        TEXT NOT NULL DEFAULT '',
    tts_provider_key TEXT NOT NULL DEFAULT '',
    latency_ms       BIGINT NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS user_role_metrics (
    user_id             TEXT NOT NULL,
    role_id             TEXT NOT NULL,
    accompany_days      INTEGER NOT NULL DEFAULT 0,
    total_messages      INTEGER NOT NULL DEFAULT 0,
    last_interaction_at TIMESTAMPTZ,
    PRIMARY KEY (user_id, role_id)
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Structured
// sub-fields (role tags, voice params, provider config) are serialised as
// JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating all tables
// and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// GetRole retrieves a role by ID. It returns (nil, nil) if no role with the
// given ID exists.
func (s *PostgresStore) GetRole(ctx context.Context, id string) (*Role, error) {
	const query = `
		SELECT id, name, description, promote, greeting, tags,
		       image_url, silhouette_url, is_active, popularity_score,
		       tts_provider_key, voice_params, created_at
		FROM roles
		WHERE id = $1`

	role, err := scanRole(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get role %q: %w", id, err)
	}
	return role, nil
}

// ListRoles returns all roles ordered by popularity, most popular first.
// With activeOnly set, inactive roles are filtered out.
func (s *PostgresStore) ListRoles(ctx context.Context, activeOnly bool) ([]*Role, error) {
	query := `
		SELECT id, name, description, promote, greeting, tags,
		       image_url, silhouette_url, is_active, popularity_score,
		       tts_provider_key, voice_params, created_at
		FROM roles`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY popularity_score DESC, name`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list roles: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list roles: %w", err)
	}
	return roles, nil
}

// CreateRole inserts a new role. A missing ID is filled with a random UUID.
func (s *PostgresStore) CreateRole(ctx context.Context, role *Role) (*Role, error) {
	if err := role.Validate(); err != nil {
		return nil, err
	}
	if role.ID == "" {
		role.ID = uuid.NewString()
	}

	tagsJSON, err := json.Marshal(emptySlice(role.Tags))
	if err != nil {
		return nil, fmt.Errorf("store: marshal tags: %w", err)
	}
	voiceJSON, err := json.Marshal(emptyMap(role.VoiceParams))
	if err != nil {
		return nil, fmt.Errorf("store: marshal voice_params: %w", err)
	}

	const query = `
		INSERT INTO roles (
			id, name, description, promote, greeting, tags,
			image_url, silhouette_url, is_active, popularity_score,
			tts_provider_key, voice_params
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at`

	err = s.db.QueryRow(ctx, query,
		role.ID, role.Name, role.Description, role.Promote, role.Greeting, tagsJSON,
		role.ImageURL, role.SilhouetteURL, role.IsActive, role.PopularityScore,
		role.TTSProviderKey, voiceJSON,
	).Scan(&role.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("store: role with id %q already exists", role.ID)
		}
		return nil, fmt.Errorf("store: create role: %w", err)
	}
	return role, nil
}

// CreateConversation starts a new active conversation for the given user. An
// empty roleID records a conversation not attached to any role.
func (s *PostgresStore) CreateConversation(ctx context.Context, userID, roleID string) (*Conversation, error) {
	if userID == "" {
		return nil, errors.New("store: user_id is required")
	}

	const query = `
		INSERT INTO conversations (id, user_id, role_id, status)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		RETURNING started_at`

	conv := &Conversation{
		ID:     uuid.NewString(),
		UserID: userID,
		RoleID: roleID,
		Status: ConversationActive,
	}
	err := s.db.QueryRow(ctx, query, conv.ID, conv.UserID, roleID, conv.Status).Scan(&conv.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID. It returns (nil, nil) if no
// conversation with the given ID exists.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	const query = `
		SELECT id, user_id, COALESCE(role_id, ''), status, started_at, ended_at
		FROM conversations
		WHERE id = $1`

	var conv Conversation
	err := s.db.QueryRow(ctx, query, id).Scan(
		&conv.ID, &conv.UserID, &conv.RoleID, &conv.Status, &conv.StartedAt, &conv.EndedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get conversation %q: %w", id, err)
	}
	return &conv, nil
}

// ListConversations returns all conversations for a user, newest first.
func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	const query = `
		SELECT id, user_id, COALESCE(role_id, ''), status, started_at, ended_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY started_at DESC`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(
			&conv.ID, &conv.UserID, &conv.RoleID, &conv.Status, &conv.StartedAt, &conv.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("store: list conversations scan: %w", err)
		}
		convs = append(convs, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	return convs, nil
}

// EndConversation marks a conversation as ended and stamps ended_at. Ending
// an already-ended conversation leaves the original ended_at untouched. It
// returns (nil, nil) if no conversation with the given ID exists.
func (s *PostgresStore) EndConversation(ctx context.Context, id string) (*Conversation, error) {
	const query = `
		UPDATE conversations
		SET status = $2, ended_at = COALESCE(ended_at, now())
		WHERE id = $1
		RETURNING id, user_id, COALESCE(role_id, ''), status, started_at, ended_at`

	var conv Conversation
	err := s.db.QueryRow(ctx, query, id, ConversationEnded).Scan(
		&conv.ID, &conv.UserID, &conv.RoleID, &conv.Status, &conv.StartedAt, &conv.EndedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: end conversation %q: %w", id, err)
	}
	return &conv, nil
}

// CreateMessage appends a message to a conversation. A missing ID is filled
// with a random UUID. It returns [ErrConversationNotFound] when the
// referenced conversation does not exist.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *Message) (*Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO messages (
			id, conversation_id, sender, text, audio_url, tts_provider_key, latency_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		msg.ID, msg.ConversationID, msg.Sender, msg.Text,
		msg.AudioURL, msg.TTSProviderKey, msg.LatencyMS,
	).Scan(&msg.CreatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return nil, fmt.Errorf("store: create message: %w", ErrConversationNotFound)
		}
		return nil, fmt.Errorf("store: create message: %w", err)
	}
	return msg, nil
}

// ListMessages returns messages of a conversation in chronological order. A
// limit of zero or less returns all messages.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		const query = `
			SELECT id, conversation_id, sender, text, audio_url, tts_provider_key, latency_ms, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at
			LIMIT $2`
		rows, err = s.db.Query(ctx, query, conversationID, limit)
	} else {
		const query = `
			SELECT id, conversation_id, sender, text, audio_url, tts_provider_key, latency_ms, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at`
		rows, err = s.db.Query(ctx, query, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Text,
			&msg.AudioURL, &msg.TTSProviderKey, &msg.LatencyMS, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: list messages scan: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	return msgs, nil
}

// CreateProvider inserts a new TTS provider catalogue entry. It returns
// [ErrProviderExists] when the key is already taken.
func (s *PostgresStore) CreateProvider(ctx context.Context, rec *TTSProviderRecord) (*TTSProviderRecord, error) {
	if rec.Key == "" {
		return nil, errors.New("store: provider key is required")
	}
	if rec.Name == "" {
		return nil, errors.New("store: provider name is required")
	}

	configJSON, err := json.Marshal(emptyMap(rec.Config))
	if err != nil {
		return nil, fmt.Errorf("store: marshal provider config: %w", err)
	}

	const query = `
		INSERT INTO tts_providers (key, name, config)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err = s.db.QueryRow(ctx, query, rec.Key, rec.Name, configJSON).Scan(&rec.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("store: provider %q: %w", rec.Key, ErrProviderExists)
		}
		return nil, fmt.Errorf("store: create provider: %w", err)
	}
	return rec, nil
}

// ListProviders returns all TTS provider catalogue entries ordered by key.
func (s *PostgresStore) ListProviders(ctx context.Context) ([]*TTSProviderRecord, error) {
	const query = `
		SELECT key, name, config, created_at
		FROM tts_providers
		ORDER BY key`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list providers: %w", err)
	}
	defer rows.Close()

	var recs []*TTSProviderRecord
	for rows.Next() {
		var rec TTSProviderRecord
		var configJSON []byte
		if err := rows.Scan(&rec.Key, &rec.Name, &configJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: list providers scan: %w", err)
		}
		if err := json.Unmarshal(configJSON, &rec.Config); err != nil {
			return nil, fmt.Errorf("store: unmarshal provider config: %w", err)
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list providers: %w", err)
	}
	return recs, nil
}

// UpsertUser creates or updates a user keyed by ID. A missing ID is filled
// with a random UUID.
func (s *PostgresStore) UpsertUser(ctx context.Context, user *User) (*User, error) {
	if user.Email == "" {
		return nil, errors.New("store: email is required")
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO users (id, email, username, password_hash, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			is_active = EXCLUDED.is_active
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		user.ID, user.Email, user.Username, user.PasswordHash, user.IsActive,
	).Scan(&user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: upsert user: %w", err)
	}
	return user, nil
}

// ListUserRoleMetrics returns interaction metrics for a user across all roles.
func (s *PostgresStore) ListUserRoleMetrics(ctx context.Context, userID string) ([]*UserRoleMetric, error) {
	const query = `
		SELECT user_id, role_id, accompany_days, total_messages, last_interaction_at
		FROM user_role_metrics
		WHERE user_id = $1
		ORDER BY role_id`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list user role metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*UserRoleMetric
	for rows.Next() {
		var m UserRoleMetric
		if err := rows.Scan(
			&m.UserID, &m.RoleID, &m.AccompanyDays, &m.TotalMessages, &m.LastInteractionAt,
		); err != nil {
			return nil, fmt.Errorf("store: list user role metrics scan: %w", err)
		}
		metrics = append(metrics, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list user role metrics: %w", err)
	}
	return metrics, nil
}

// RecordInteraction bumps the interaction metrics for a user-role pair. The
// accompany_days counter increments only when the last interaction was on a
// different calendar day.
func (s *PostgresStore) RecordInteraction(ctx context.Context, userID, roleID string, messages int) error {
	if userID == "" || roleID == "" {
		return errors.New("store: user_id and role_id are required")
	}

	const query = `
		INSERT INTO user_role_metrics (user_id, role_id, accompany_days, total_messages, last_interaction_at)
		VALUES ($1, $2, 1, $3, now())
		ON CONFLICT (user_id, role_id) DO UPDATE SET
			accompany_days = user_role_metrics.accompany_days + CASE
				WHEN user_role_metrics.last_interaction_at::date < now()::date THEN 1
				ELSE 0
			END,
			total_messages = user_role_metrics.total_messages + EXCLUDED.total_messages,
			last_interaction_at = now()`

	_, err := s.db.Exec(ctx, query, userID, roleID, messages)
	if err != nil {
		return fmt.Errorf("store: record interaction: %w", err)
	}
	return nil
}

// rowScanner is the subset of [pgx.Row] and [pgx.Rows] shared by single-row
// and multi-row scans.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*Role, error) {
	var role Role
	var tagsJSON, voiceJSON []byte

	if err := row.Scan(
		&role.ID, &role.Name, &role.Description, &role.Promote, &role.Greeting, &tagsJSON,
		&role.ImageURL, &role.SilhouetteURL, &role.IsActive, &role.PopularityScore,
		&role.TTSProviderKey, &voiceJSON, &role.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tagsJSON, &role.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(voiceJSON, &role.VoiceParams); err != nil {
		return nil, fmt.Errorf("unmarshal voice_params: %w", err)
	}
	return &role, nil
}

// emptySlice returns s if non-nil, otherwise an empty non-nil slice. This
// ensures JSON marshalling produces "[]" instead of "null".
func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// emptyMap returns m if non-nil, otherwise an empty non-nil map. This ensures
// JSON marshalling produces "{}" instead of "null".
func emptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isForeignKeyError checks whether a PostgreSQL error is a
// foreign-key-violation (SQLSTATE 23503).
func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
