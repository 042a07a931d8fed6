package databases

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragforge/internal/apperr"
	"ragforge/internal/persistence"
)

// memMetaStore is an in-process MetaStore used by tests and single-instance
// development deployments, following the same in-memory-fake idiom as
// NewMemoryVector/NewMemoryGraph (§10).
type memMetaStore struct {
	mu        sync.RWMutex
	tenants   map[string]persistence.Tenant
	slugs     map[string]string // access_url -> tenant id
	documents map[string]persistence.Document
	versions  map[string]map[int]persistence.BuildVersion // tenant id -> version -> BuildVersion
	sessions  map[string]persistence.Session
	messages  map[string][]persistence.Message // session id -> messages, chronological
	stats     map[string]map[string]persistence.DailyStats // tenant id -> date -> stats
}

// NewMemoryMetaStore constructs an in-process persistence.MetaStore.
func NewMemoryMetaStore() persistence.MetaStore {
	return &memMetaStore{
		tenants:   map[string]persistence.Tenant{},
		slugs:     map[string]string{},
		documents: map[string]persistence.Document{},
		versions:  map[string]map[int]persistence.BuildVersion{},
		sessions:  map[string]persistence.Session{},
		messages:  map[string][]persistence.Message{},
		stats:     map[string]map[string]persistence.DailyStats{},
	}
}

func (m *memMetaStore) Init(context.Context) error { return nil }
func (m *memMetaStore) Close()                      {}

func (m *memMetaStore) CreateTenant(_ context.Context, t persistence.Tenant) (persistence.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.AccessURL == "" {
		return persistence.Tenant{}, apperr.Validationf("access_url is required")
	}
	if _, exists := m.slugs[t.AccessURL]; exists {
		return persistence.Tenant{}, apperr.Conflictf("access_url %q already in use", t.AccessURL)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Status == "" {
		t.Status = persistence.TenantProcessing
	}
	m.tenants[t.ID] = t
	m.slugs[t.AccessURL] = t.ID
	return t, nil
}

func (m *memMetaStore) GetTenant(_ context.Context, id string) (persistence.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return persistence.Tenant{}, apperr.NotFoundf("tenant %q not found", id)
	}
	return t, nil
}

func (m *memMetaStore) GetTenantBySlug(_ context.Context, accessURL string) (persistence.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.slugs[accessURL]
	if !ok {
		return persistence.Tenant{}, apperr.NotFoundf("chatbot %q not found", accessURL)
	}
	return m.tenants[id], nil
}

func (m *memMetaStore) ListTenants(context.Context) ([]persistence.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]persistence.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memMetaStore) UpdateTenant(_ context.Context, id string, mutate func(*persistence.Tenant) error) (persistence.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return persistence.Tenant{}, apperr.NotFoundf("tenant %q not found", id)
	}
	prevSlug := t.AccessURL
	if err := mutate(&t); err != nil {
		return persistence.Tenant{}, err
	}
	if t.AccessURL != prevSlug {
		if owner, exists := m.slugs[t.AccessURL]; exists && owner != id {
			return persistence.Tenant{}, apperr.Conflictf("access_url %q already in use", t.AccessURL)
		}
		delete(m.slugs, prevSlug)
		m.slugs[t.AccessURL] = id
	}
	t.UpdatedAt = time.Now().UTC()
	m.tenants[id] = t
	return t, nil
}

func (m *memMetaStore) DeleteTenant(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return apperr.NotFoundf("tenant %q not found", id)
	}
	delete(m.slugs, t.AccessURL)
	delete(m.tenants, id)
	delete(m.versions, id)
	for docID, d := range m.documents {
		if d.TenantID == id {
			delete(m.documents, docID)
		}
	}
	for sessID, s := range m.sessions {
		if s.TenantID == id {
			delete(m.sessions, sessID)
			delete(m.messages, sessID)
		}
	}
	delete(m.stats, id)
	return nil
}

func (m *memMetaStore) CreateDocument(_ context.Context, d persistence.Document) (persistence.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Status == "" {
		d.Status = persistence.DocPending
	}
	m.documents[d.ID] = d
	return d, nil
}

func (m *memMetaStore) GetDocument(_ context.Context, id string) (persistence.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return persistence.Document{}, apperr.NotFoundf("document %q not found", id)
	}
	return d, nil
}

func (m *memMetaStore) ListDocuments(_ context.Context, tenantID string) ([]persistence.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]persistence.Document, 0)
	for _, d := range m.documents {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memMetaStore) UpdateDocumentStage(_ context.Context, id string, status persistence.DocumentStatus, progress int, lastErr string) (persistence.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return persistence.Document{}, apperr.NotFoundf("document %q not found", id)
	}
	d.Status = status
	d.Progress = progress
	d.LastError = lastErr
	d.UpdatedAt = time.Now().UTC()
	m.documents[id] = d
	return d, nil
}

func (m *memMetaStore) FinalizeDocument(_ context.Context, id string, chunkCount, entityCount int, processedAt time.Time) (persistence.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return persistence.Document{}, apperr.NotFoundf("document %q not found", id)
	}
	d.Status = persistence.DocCompleted
	d.Progress = 100
	d.ChunkCount = chunkCount
	d.EntityCount = entityCount
	d.ProcessedAt = &processedAt
	d.UpdatedAt = time.Now().UTC()
	m.documents[id] = d
	return d, nil
}

func (m *memMetaStore) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.documents, id)
	return nil
}

func (m *memMetaStore) OpenVersion(_ context.Context, tenantID string) (persistence.BuildVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.versions[tenantID]
	if versions == nil {
		versions = map[int]persistence.BuildVersion{}
		m.versions[tenantID] = versions
	}
	next := 1
	for v := range versions {
		if v >= next {
			next = v + 1
		}
	}
	now := time.Now().UTC()
	bv := persistence.BuildVersion{TenantID: tenantID, Version: next, Status: persistence.VersionBuilding, CreatedAt: now, UpdatedAt: now}
	versions[next] = bv
	return bv, nil
}

func (m *memMetaStore) GetVersion(_ context.Context, tenantID string, version int) (persistence.BuildVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bv, ok := m.versions[tenantID][version]
	if !ok {
		return persistence.BuildVersion{}, apperr.NotFoundf("version %d not found for tenant %q", version, tenantID)
	}
	return bv, nil
}

func (m *memMetaStore) ListVersions(_ context.Context, tenantID string) ([]persistence.BuildVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]persistence.BuildVersion, 0, len(m.versions[tenantID]))
	for _, bv := range m.versions[tenantID] {
		out = append(out, bv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *memMetaStore) MarkVersionStatus(_ context.Context, tenantID string, version int, status persistence.VersionStatus) (persistence.BuildVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bv, ok := m.versions[tenantID][version]
	if !ok {
		return persistence.BuildVersion{}, apperr.NotFoundf("version %d not found for tenant %q", version, tenantID)
	}
	bv.Status = status
	bv.UpdatedAt = time.Now().UTC()
	m.versions[tenantID][version] = bv
	return bv, nil
}

// ActivateVersion performs the §4.7 atomic activation under the store's own
// lock: version -> active, previous active -> archived, tenant.active_version
// updated, all visible to readers as one consistent snapshot since memMetaStore
// serializes all access behind mu.
func (m *memMetaStore) ActivateVersion(_ context.Context, tenantID string, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.versions[tenantID]
	bv, ok := versions[version]
	if !ok {
		return apperr.NotFoundf("version %d not found for tenant %q", version, tenantID)
	}
	t, ok := m.tenants[tenantID]
	if !ok {
		return apperr.NotFoundf("tenant %q not found", tenantID)
	}
	now := time.Now().UTC()
	for v, other := range versions {
		if other.Status == persistence.VersionActive && v != version {
			other.Status = persistence.VersionArchived
			other.UpdatedAt = now
			versions[v] = other
		}
	}
	bv.Status = persistence.VersionActive
	bv.UpdatedAt = now
	versions[version] = bv
	t.ActiveVersion = version
	t.Status = persistence.TenantActive
	t.UpdatedAt = now
	m.tenants[tenantID] = t
	return nil
}

func (m *memMetaStore) CreateSession(_ context.Context, s persistence.Session) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memMetaStore) GetSession(_ context.Context, id string) (persistence.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return persistence.Session{}, apperr.NotFoundf("session %q not found", id)
	}
	return s, nil
}

func (m *memMetaStore) DeleteExpiredSessions(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(before) {
			delete(m.sessions, id)
			delete(m.messages, id)
			n++
		}
	}
	return n, nil
}

func (m *memMetaStore) AppendUserMessage(_ context.Context, msg persistence.Message) (persistence.Message, error) {
	return m.appendMessage(msg, false)
}

func (m *memMetaStore) AppendAssistantMessage(_ context.Context, msg persistence.Message) (persistence.Message, error) {
	return m.appendMessage(msg, true)
}

func (m *memMetaStore) appendMessage(msg persistence.Message, isAssistant bool) (persistence.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[msg.SessionID]
	if !ok {
		return persistence.Message{}, apperr.NotFoundf("session %q not found", msg.SessionID)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	wasFirst := sess.MessageCount == 0
	sess.MessageCount++
	m.sessions[msg.SessionID] = sess
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)

	date := msg.CreatedAt.Format("2006-01-02")
	tenantStats := m.stats[sess.TenantID]
	if tenantStats == nil {
		tenantStats = map[string]persistence.DailyStats{}
		m.stats[sess.TenantID] = tenantStats
	}
	ds := tenantStats[date]
	ds.TenantID, ds.Date = sess.TenantID, date
	if !isAssistant && wasFirst {
		ds.Sessions++
	}
	ds.Messages++
	if isAssistant {
		ds.InputTokens += msg.InputTokens
		ds.OutputTokens += msg.OutputTokens
		ds.RetrievalCount += msg.RetrievalCount
		ds.AvgResponseMs, ds.P50ResponseMs, ds.P95ResponseMs = computeResponsePercentiles(m.messagesOnDate(sess.TenantID, date))
	}
	tenantStats[date] = ds
	return msg, nil
}

func (m *memMetaStore) RecentMessages(_ context.Context, sessionID string, n int) ([]persistence.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.messages[sessionID]
	if n <= 0 || n >= len(all) {
		out := make([]persistence.Message, len(all))
		copy(out, all)
		return out, nil
	}
	tail := all[len(all)-n:]
	out := make([]persistence.Message, len(tail))
	copy(out, tail)
	return out, nil
}

func (m *memMetaStore) GetDailyStats(_ context.Context, tenantID string, days int) ([]persistence.DailyStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]persistence.DailyStats, 0)
	for _, ds := range m.stats[tenantID] {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if days > 0 && len(out) > days {
		out = out[:days]
	}
	return out, nil
}

// RebuildDailyStats recomputes every DailyStats row for tenantID from the
// raw Message rows, exercising the round-trip idempotence property of §8:
// recomputation must be byte-identical to the incrementally maintained
// aggregates.
func (m *memMetaStore) RebuildDailyStats(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := map[string]persistence.DailyStats{}
	seenSessionDate := map[string]bool{}
	for sessID, msgs := range m.messages {
		sess, ok := m.sessions[sessID]
		if !ok || sess.TenantID != tenantID {
			continue
		}
		for _, msg := range msgs {
			date := msg.CreatedAt.Format("2006-01-02")
			ds := fresh[date]
			ds.TenantID, ds.Date = tenantID, date
			ds.Messages++
			key := sessID + "|" + date
			if !seenSessionDate[key] && msg.Role == persistence.RoleUser {
				ds.Sessions++
				seenSessionDate[key] = true
			}
			if msg.Role == persistence.RoleAssistant {
				ds.InputTokens += msg.InputTokens
				ds.OutputTokens += msg.OutputTokens
				ds.RetrievalCount += msg.RetrievalCount
			}
			fresh[date] = ds
		}
	}
	for date, ds := range fresh {
		ds.AvgResponseMs, ds.P50ResponseMs, ds.P95ResponseMs = computeResponsePercentiles(m.messagesOnDate(tenantID, date))
		fresh[date] = ds
	}
	m.stats[tenantID] = fresh
	return nil
}

func (m *memMetaStore) messagesOnDate(tenantID, date string) []int64 {
	var times []int64
	for sessID, msgs := range m.messages {
		sess, ok := m.sessions[sessID]
		if !ok || sess.TenantID != tenantID {
			continue
		}
		for _, msg := range msgs {
			if msg.Role == persistence.RoleAssistant && msg.CreatedAt.Format("2006-01-02") == date {
				times = append(times, msg.ResponseTimeMs)
			}
		}
	}
	return times
}

func computeResponsePercentiles(times []int64) (avg, p50, p95 float64) {
	if len(times) == 0 {
		return 0, 0, 0
	}
	sorted := append([]int64(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var sum int64
	for _, t := range sorted {
		sum += t
	}
	avg = float64(sum) / float64(len(sorted))
	p50 = float64(sorted[percentileIndex(len(sorted), 0.50)])
	p95 = float64(sorted[percentileIndex(len(sorted), 0.95)])
	return avg, p50, p95
}

func percentileIndex(n int, p float64) int {
	if n == 0 {
		return 0
	}
	idx := int(p * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return idx
}
