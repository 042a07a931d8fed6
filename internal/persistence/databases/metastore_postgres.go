package databases

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ragforge/internal/apperr"
	"ragforge/internal/persistence"
)

// pgMetaStore is the Postgres-backed persistence.MetaStore, the single
// source of truth for tenant/document/version/session/message state (§3).
type pgMetaStore struct{ pool *pgxpool.Pool }

func NewPostgresMetaStore(pool *pgxpool.Pool) persistence.MetaStore {
	return &pgMetaStore{pool: pool}
}

func (s *pgMetaStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  persona_tone TEXT NOT NULL DEFAULT '',
  persona_language TEXT NOT NULL DEFAULT '',
  persona_greeting TEXT NOT NULL DEFAULT '',
  persona_system_prompt_override TEXT NOT NULL DEFAULT '',
  persona_fallback_message TEXT NOT NULL DEFAULT '',
  access_url TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'processing',
  active_version INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
  filename TEXT NOT NULL,
  storage_path TEXT NOT NULL,
  byte_size BIGINT NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  version INT NOT NULL DEFAULT 0,
  page_count INT NOT NULL DEFAULT 0,
  progress INT NOT NULL DEFAULT 0,
  last_error TEXT NOT NULL DEFAULT '',
  chunk_count INT NOT NULL DEFAULT 0,
  entity_count INT NOT NULL DEFAULT 0,
  processed_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_tenant_idx ON documents(tenant_id);

CREATE TABLE IF NOT EXISTS build_versions (
  tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
  version INT NOT NULL,
  status TEXT NOT NULL DEFAULT 'building',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (tenant_id, version)
);

CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
  created_at TIMESTAMPTZ NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  message_count INT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS sessions_expires_idx ON sessions(expires_at);

CREATE TABLE IF NOT EXISTS messages (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  sources JSONB NOT NULL DEFAULT '[]'::jsonb,
  created_at TIMESTAMPTZ NOT NULL,
  response_time_ms BIGINT NOT NULL DEFAULT 0,
  input_tokens INT NOT NULL DEFAULT 0,
  output_tokens INT NOT NULL DEFAULT 0,
  retrieval_count INT NOT NULL DEFAULT 0,
  retrieval_time_ms BIGINT NOT NULL DEFAULT 0,
  cancelled BOOLEAN NOT NULL DEFAULT false,
  failed BOOLEAN NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS messages_session_idx ON messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS daily_stats (
  tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
  date TEXT NOT NULL,
  sessions INT NOT NULL DEFAULT 0,
  messages INT NOT NULL DEFAULT 0,
  avg_response_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
  p50_response_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
  p95_response_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
  input_tokens INT NOT NULL DEFAULT 0,
  output_tokens INT NOT NULL DEFAULT 0,
  retrieval_count INT NOT NULL DEFAULT 0,
  PRIMARY KEY (tenant_id, date)
);
`)
	return err
}

func (s *pgMetaStore) Close() { s.pool.Close() }

func (s *pgMetaStore) CreateTenant(ctx context.Context, t persistence.Tenant) (persistence.Tenant, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Status == "" {
		t.Status = persistence.TenantProcessing
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO tenants(id, name, persona_tone, persona_language, persona_greeting,
  persona_system_prompt_override, persona_fallback_message, access_url, status,
  active_version, created_at, updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`, t.ID, t.Name, t.Persona.Tone, t.Persona.Language, t.Persona.Greeting,
		t.Persona.SystemPromptOverride, t.Persona.FallbackMessage, t.AccessURL, string(t.Status),
		t.ActiveVersion, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.Tenant{}, apperr.Conflictf("access_url %q already in use", t.AccessURL)
		}
		return persistence.Tenant{}, err
	}
	return t, nil
}

func scanTenant(row rowScanner) (persistence.Tenant, error) {
	var t persistence.Tenant
	var status string
	if err := row.Scan(&t.ID, &t.Name, &t.Persona.Tone, &t.Persona.Language, &t.Persona.Greeting,
		&t.Persona.SystemPromptOverride, &t.Persona.FallbackMessage, &t.AccessURL, &status,
		&t.ActiveVersion, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return persistence.Tenant{}, err
	}
	t.Status = persistence.TenantStatus(status)
	return t, nil
}

const tenantCols = `id, name, persona_tone, persona_language, persona_greeting,
  persona_system_prompt_override, persona_fallback_message, access_url, status,
  active_version, created_at, updated_at`

func (s *pgMetaStore) GetTenant(ctx context.Context, id string) (persistence.Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantCols+` FROM tenants WHERE id=$1`, id)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.Tenant{}, apperr.NotFoundf("tenant %q not found", id)
	}
	return t, err
}

func (s *pgMetaStore) GetTenantBySlug(ctx context.Context, accessURL string) (persistence.Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantCols+` FROM tenants WHERE access_url=$1`, accessURL)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.Tenant{}, apperr.NotFoundf("chatbot %q not found", accessURL)
	}
	return t, err
}

func (s *pgMetaStore) ListTenants(ctx context.Context) ([]persistence.Tenant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tenantCols+` FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persistence.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *pgMetaStore) UpdateTenant(ctx context.Context, id string, mutate func(*persistence.Tenant) error) (persistence.Tenant, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return persistence.Tenant{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+tenantCols+` FROM tenants WHERE id=$1 FOR UPDATE`, id)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.Tenant{}, apperr.NotFoundf("tenant %q not found", id)
	}
	if err != nil {
		return persistence.Tenant{}, err
	}
	if err := mutate(&t); err != nil {
		return persistence.Tenant{}, err
	}
	t.UpdatedAt = time.Now().UTC()
	_, err = tx.Exec(ctx, `
UPDATE tenants SET name=$2, persona_tone=$3, persona_language=$4, persona_greeting=$5,
  persona_system_prompt_override=$6, persona_fallback_message=$7, access_url=$8, status=$9,
  active_version=$10, updated_at=$11
WHERE id=$1
`, t.ID, t.Name, t.Persona.Tone, t.Persona.Language, t.Persona.Greeting,
		t.Persona.SystemPromptOverride, t.Persona.FallbackMessage, t.AccessURL, string(t.Status),
		t.ActiveVersion, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.Tenant{}, apperr.Conflictf("access_url %q already in use", t.AccessURL)
		}
		return persistence.Tenant{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return persistence.Tenant{}, err
	}
	return t, nil
}

func (s *pgMetaStore) DeleteTenant(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tenants WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("tenant %q not found", id)
	}
	return nil
}

const documentCols = `id, tenant_id, filename, storage_path, byte_size, status, version,
  page_count, progress, last_error, chunk_count, entity_count, processed_at, created_at, updated_at`

func scanDocument(row rowScanner) (persistence.Document, error) {
	var d persistence.Document
	var status string
	if err := row.Scan(&d.ID, &d.TenantID, &d.Filename, &d.StoragePath, &d.ByteSize, &status,
		&d.Version, &d.PageCount, &d.Progress, &d.LastError, &d.ChunkCount, &d.EntityCount,
		&d.ProcessedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return persistence.Document{}, err
	}
	d.Status = persistence.DocumentStatus(status)
	return d, nil
}

func (s *pgMetaStore) CreateDocument(ctx context.Context, d persistence.Document) (persistence.Document, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Status == "" {
		d.Status = persistence.DocPending
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents(id, tenant_id, filename, storage_path, byte_size, status, version,
  page_count, progress, last_error, chunk_count, entity_count, processed_at, created_at, updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`, d.ID, d.TenantID, d.Filename, d.StoragePath, d.ByteSize, string(d.Status), d.Version,
		d.PageCount, d.Progress, d.LastError, d.ChunkCount, d.EntityCount, d.ProcessedAt, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return persistence.Document{}, err
	}
	return d, nil
}

func (s *pgMetaStore) GetDocument(ctx context.Context, id string) (persistence.Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentCols+` FROM documents WHERE id=$1`, id)
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.Document{}, apperr.NotFoundf("document %q not found", id)
	}
	return d, err
}

func (s *pgMetaStore) ListDocuments(ctx context.Context, tenantID string) ([]persistence.Document, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+documentCols+` FROM documents WHERE tenant_id=$1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persistence.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *pgMetaStore) UpdateDocumentStage(ctx context.Context, id string, status persistence.DocumentStatus, progress int, lastErr string) (persistence.Document, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE documents SET status=$2, progress=$3, last_error=$4, updated_at=$5
WHERE id=$1
RETURNING `+documentCols, id, string(status), progress, lastErr, time.Now().UTC())
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.Document{}, apperr.NotFoundf("document %q not found", id)
	}
	return d, err
}

func (s *pgMetaStore) FinalizeDocument(ctx context.Context, id string, chunkCount, entityCount int, processedAt time.Time) (persistence.Document, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE documents SET status=$2, progress=100, chunk_count=$3, entity_count=$4, processed_at=$5, updated_at=$6
WHERE id=$1
RETURNING `+documentCols, id, string(persistence.DocCompleted), chunkCount, entityCount, processedAt, time.Now().UTC())
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.Document{}, apperr.NotFoundf("document %q not found", id)
	}
	return d, err
}

func (s *pgMetaStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id=$1`, id)
	return err
}

func (s *pgMetaStore) OpenVersion(ctx context.Context, tenantID string) (persistence.BuildVersion, error) {
	row := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM build_versions WHERE tenant_id=$1`, tenantID)
	var maxVersion int
	if err := row.Scan(&maxVersion); err != nil {
		return persistence.BuildVersion{}, err
	}
	next := maxVersion + 1
	now := time.Now().UTC()
	bv := persistence.BuildVersion{TenantID: tenantID, Version: next, Status: persistence.VersionBuilding, CreatedAt: now, UpdatedAt: now}
	_, err := s.pool.Exec(ctx, `
INSERT INTO build_versions(tenant_id, version, status, created_at, updated_at) VALUES($1,$2,$3,$4,$5)
`, bv.TenantID, bv.Version, string(bv.Status), bv.CreatedAt, bv.UpdatedAt)
	if err != nil {
		return persistence.BuildVersion{}, err
	}
	return bv, nil
}

func scanVersion(row rowScanner) (persistence.BuildVersion, error) {
	var bv persistence.BuildVersion
	var status string
	if err := row.Scan(&bv.TenantID, &bv.Version, &status, &bv.CreatedAt, &bv.UpdatedAt); err != nil {
		return persistence.BuildVersion{}, err
	}
	bv.Status = persistence.VersionStatus(status)
	return bv, nil
}

func (s *pgMetaStore) GetVersion(ctx context.Context, tenantID string, version int) (persistence.BuildVersion, error) {
	row := s.pool.QueryRow(ctx, `
SELECT tenant_id, version, status, created_at, updated_at FROM build_versions WHERE tenant_id=$1 AND version=$2
`, tenantID, version)
	bv, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.BuildVersion{}, apperr.NotFoundf("version %d not found for tenant %q", version, tenantID)
	}
	return bv, err
}

func (s *pgMetaStore) ListVersions(ctx context.Context, tenantID string) ([]persistence.BuildVersion, error) {
	rows, err := s.pool.Query(ctx, `
SELECT tenant_id, version, status, created_at, updated_at FROM build_versions WHERE tenant_id=$1 ORDER BY version
`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persistence.BuildVersion
	for rows.Next() {
		bv, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bv)
	}
	return out, rows.Err()
}

func (s *pgMetaStore) MarkVersionStatus(ctx context.Context, tenantID string, version int, status persistence.VersionStatus) (persistence.BuildVersion, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE build_versions SET status=$3, updated_at=$4 WHERE tenant_id=$1 AND version=$2
RETURNING tenant_id, version, status, created_at, updated_at
`, tenantID, version, string(status), time.Now().UTC())
	bv, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.BuildVersion{}, apperr.NotFoundf("version %d not found for tenant %q", version, tenantID)
	}
	return bv, err
}

// ActivateVersion performs the §4.7 atomic activation in a single
// transaction: version -> active, previous active version(s) -> archived,
// tenant.active_version updated, so no reader ever observes a half-switched state.
func (s *pgMetaStore) ActivateVersion(ctx context.Context, tenantID string, version int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
UPDATE build_versions SET status='active', updated_at=$3 WHERE tenant_id=$1 AND version=$2
`, tenantID, version, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("version %d not found for tenant %q", version, tenantID)
	}
	if _, err := tx.Exec(ctx, `
UPDATE build_versions SET status='archived', updated_at=$3 WHERE tenant_id=$1 AND version<>$2 AND status='active'
`, tenantID, version, now); err != nil {
		return err
	}
	tag, err = tx.Exec(ctx, `
UPDATE tenants SET active_version=$2, status='active', updated_at=$3 WHERE id=$1
`, tenantID, version, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("tenant %q not found", tenantID)
	}
	return tx.Commit(ctx)
}

func (s *pgMetaStore) CreateSession(ctx context.Context, sess persistence.Session) (persistence.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO sessions(id, tenant_id, created_at, expires_at, message_count) VALUES($1,$2,$3,$4,$5)
`, sess.ID, sess.TenantID, sess.CreatedAt, sess.ExpiresAt, sess.MessageCount)
	if err != nil {
		return persistence.Session{}, err
	}
	return sess, nil
}

func (s *pgMetaStore) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, tenant_id, created_at, expires_at, message_count FROM sessions WHERE id=$1`, id)
	var sess persistence.Session
	if err := row.Scan(&sess.ID, &sess.TenantID, &sess.CreatedAt, &sess.ExpiresAt, &sess.MessageCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return persistence.Session{}, apperr.NotFoundf("session %q not found", id)
		}
		return persistence.Session{}, err
	}
	return sess, nil
}

func (s *pgMetaStore) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// appendMessage inserts the message and synchronously bumps the owning
// session's message_count plus the tenant's daily_stats row in one
// transaction, per the Open Question decision recorded in DESIGN.md
// favoring synchronous increments over an eventually-consistent stats worker.
func (s *pgMetaStore) appendMessage(ctx context.Context, msg persistence.Message, isAssistant bool) (persistence.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return persistence.Message{}, err
	}
	defer tx.Rollback(ctx)

	var tenantID string
	var wasFirst bool
	row := tx.QueryRow(ctx, `SELECT tenant_id, message_count=0 FROM sessions WHERE id=$1 FOR UPDATE`, msg.SessionID)
	if err := row.Scan(&tenantID, &wasFirst); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return persistence.Message{}, apperr.NotFoundf("session %q not found", msg.SessionID)
		}
		return persistence.Message{}, err
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	sources := msg.Sources
	if sources == nil {
		sources = []persistence.Source{}
	}
	_, err = tx.Exec(ctx, `
INSERT INTO messages(id, session_id, role, content, sources, created_at, response_time_ms,
  input_tokens, output_tokens, retrieval_count, retrieval_time_ms, cancelled, failed)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`, msg.ID, msg.SessionID, string(msg.Role), msg.Content, sources, msg.CreatedAt, msg.ResponseTimeMs,
		msg.InputTokens, msg.OutputTokens, msg.RetrievalCount, msg.RetrievalTimeMs, msg.Cancelled, msg.Failed)
	if err != nil {
		return persistence.Message{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE sessions SET message_count = message_count + 1 WHERE id=$1`, msg.SessionID); err != nil {
		return persistence.Message{}, err
	}

	date := msg.CreatedAt.Format("2006-01-02")
	sessionDelta := 0
	if !isAssistant && wasFirst {
		sessionDelta = 1
	}
	inputTokens, outputTokens, retrievalCount := 0, 0, 0
	if isAssistant {
		inputTokens, outputTokens, retrievalCount = msg.InputTokens, msg.OutputTokens, msg.RetrievalCount
	}
	_, err = tx.Exec(ctx, `
INSERT INTO daily_stats(tenant_id, date, sessions, messages, input_tokens, output_tokens, retrieval_count)
VALUES($1,$2,$3,1,$4,$5,$6)
ON CONFLICT (tenant_id, date) DO UPDATE SET
  sessions = daily_stats.sessions + EXCLUDED.sessions,
  messages = daily_stats.messages + 1,
  input_tokens = daily_stats.input_tokens + EXCLUDED.input_tokens,
  output_tokens = daily_stats.output_tokens + EXCLUDED.output_tokens,
  retrieval_count = daily_stats.retrieval_count + EXCLUDED.retrieval_count
`, tenantID, date, sessionDelta, inputTokens, outputTokens, retrievalCount)
	if err != nil {
		return persistence.Message{}, err
	}

	if isAssistant {
		if err := recomputeResponseLatency(ctx, tx, tenantID, date); err != nil {
			return persistence.Message{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return persistence.Message{}, err
	}
	return msg, nil
}

func recomputeResponseLatency(ctx context.Context, tx pgx.Tx, tenantID, date string) error {
	rows, err := tx.Query(ctx, `
SELECT m.response_time_ms FROM messages m
JOIN sessions se ON se.id = m.session_id
WHERE se.tenant_id=$1 AND m.role='assistant' AND to_char(m.created_at, 'YYYY-MM-DD')=$2
`, tenantID, date)
	if err != nil {
		return err
	}
	defer rows.Close()
	var times []int64
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			return err
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	avg, p50, p95 := computeResponsePercentiles(times)
	_, err = tx.Exec(ctx, `
UPDATE daily_stats SET avg_response_ms=$3, p50_response_ms=$4, p95_response_ms=$5
WHERE tenant_id=$1 AND date=$2
`, tenantID, date, avg, p50, p95)
	return err
}

func (s *pgMetaStore) AppendUserMessage(ctx context.Context, msg persistence.Message) (persistence.Message, error) {
	return s.appendMessage(ctx, msg, false)
}

func (s *pgMetaStore) AppendAssistantMessage(ctx context.Context, msg persistence.Message) (persistence.Message, error) {
	return s.appendMessage(ctx, msg, true)
}

func (s *pgMetaStore) RecentMessages(ctx context.Context, sessionID string, n int) ([]persistence.Message, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, session_id, role, content, sources, created_at, response_time_ms,
  input_tokens, output_tokens, retrieval_count, retrieval_time_ms, cancelled, failed
FROM messages WHERE session_id=$1 ORDER BY created_at DESC LIMIT $2
`, sessionID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persistence.Message
	for rows.Next() {
		var msg persistence.Message
		var role string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.Sources, &msg.CreatedAt,
			&msg.ResponseTimeMs, &msg.InputTokens, &msg.OutputTokens, &msg.RetrievalCount,
			&msg.RetrievalTimeMs, &msg.Cancelled, &msg.Failed); err != nil {
			return nil, err
		}
		msg.Role = persistence.MessageRole(role)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse DESC-ordered rows back to chronological order, matching the
	// in-memory store's tail semantics.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *pgMetaStore) GetDailyStats(ctx context.Context, tenantID string, days int) ([]persistence.DailyStats, error) {
	rows, err := s.pool.Query(ctx, `
SELECT tenant_id, date, sessions, messages, avg_response_ms, p50_response_ms, p95_response_ms,
  input_tokens, output_tokens, retrieval_count
FROM daily_stats WHERE tenant_id=$1 ORDER BY date DESC LIMIT $2
`, tenantID, nonZeroOrAll(days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persistence.DailyStats
	for rows.Next() {
		var ds persistence.DailyStats
		if err := rows.Scan(&ds.TenantID, &ds.Date, &ds.Sessions, &ds.Messages, &ds.AvgResponseMs,
			&ds.P50ResponseMs, &ds.P95ResponseMs, &ds.InputTokens, &ds.OutputTokens, &ds.RetrievalCount); err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

func nonZeroOrAll(days int) int64 {
	if days <= 0 {
		return math.MaxInt32
	}
	return int64(days)
}

// RebuildDailyStats recomputes daily_stats for tenantID from the raw
// messages/sessions rows, exercising the recomputation-is-idempotent
// property: the rebuilt rows must match the incrementally maintained ones.
func (s *pgMetaStore) RebuildDailyStats(ctx context.Context, tenantID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM daily_stats WHERE tenant_id=$1`, tenantID); err != nil {
		return err
	}

	rows, err := tx.Query(ctx, `
SELECT to_char(m.created_at, 'YYYY-MM-DD') AS date, m.role, m.session_id,
  m.input_tokens, m.output_tokens, m.retrieval_count, m.response_time_ms
FROM messages m
JOIN sessions se ON se.id = m.session_id
WHERE se.tenant_id=$1
ORDER BY m.created_at
`, tenantID)
	if err != nil {
		return err
	}
	type agg struct {
		messages, inputTokens, outputTokens, retrievalCount int
		respTimes                                           []int64
		firstUserSessions                                   map[string]bool
	}
	byDate := map[string]*agg{}
	for rows.Next() {
		var date, role, sessionID string
		var input, output, retrieval int
		var respMs int64
		if err := rows.Scan(&date, &role, &sessionID, &input, &output, &retrieval, &respMs); err != nil {
			rows.Close()
			return err
		}
		a := byDate[date]
		if a == nil {
			a = &agg{firstUserSessions: map[string]bool{}}
			byDate[date] = a
		}
		a.messages++
		if role == string(persistence.RoleUser) && !a.firstUserSessions[sessionID] {
			a.firstUserSessions[sessionID] = true
		}
		if role == string(persistence.RoleAssistant) {
			a.inputTokens += input
			a.outputTokens += output
			a.retrievalCount += retrieval
			a.respTimes = append(a.respTimes, respMs)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for date, a := range byDate {
		avg, p50, p95 := computeResponsePercentiles(a.respTimes)
		_, err := tx.Exec(ctx, `
INSERT INTO daily_stats(tenant_id, date, sessions, messages, avg_response_ms, p50_response_ms, p95_response_ms,
  input_tokens, output_tokens, retrieval_count)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, tenantID, date, len(a.firstUserSessions), a.messages, avg, p50, p95, a.inputTokens, a.outputTokens, a.retrievalCount)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
