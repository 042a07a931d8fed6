package persistence

import (
	"context"
	"time"
)

// MetaStore is the relational store contract (§3 "Ownership summary"): the
// single source of truth for tenant/document/version lifecycle and
// conversation/stats bookkeeping. Every lifecycle transition it performs is
// transactional; tenant-level changes row-lock by tenant id, document-level
// changes by document id (§5).
type MetaStore interface {
	Init(ctx context.Context) error
	Close()

	// Tenants.
	CreateTenant(ctx context.Context, t Tenant) (Tenant, error)
	GetTenant(ctx context.Context, id string) (Tenant, error)
	GetTenantBySlug(ctx context.Context, accessURL string) (Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
	UpdateTenant(ctx context.Context, id string, mutate func(*Tenant) error) (Tenant, error)
	DeleteTenant(ctx context.Context, id string) error

	// Documents.
	CreateDocument(ctx context.Context, d Document) (Document, error)
	GetDocument(ctx context.Context, id string) (Document, error)
	ListDocuments(ctx context.Context, tenantID string) ([]Document, error)
	// UpdateDocumentStage transactionally writes status/progress/error
	// before the Orchestrator publishes the corresponding progress event
	// (§4.1: "writes ... transactionally ... before publishing").
	UpdateDocumentStage(ctx context.Context, id string, status DocumentStatus, progress int, lastErr string) (Document, error)
	FinalizeDocument(ctx context.Context, id string, chunkCount, entityCount int, processedAt time.Time) (Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Build versions.
	OpenVersion(ctx context.Context, tenantID string) (BuildVersion, error)
	GetVersion(ctx context.Context, tenantID string, version int) (BuildVersion, error)
	ListVersions(ctx context.Context, tenantID string) ([]BuildVersion, error)
	MarkVersionStatus(ctx context.Context, tenantID string, version int, status VersionStatus) (BuildVersion, error)
	// ActivateVersion performs the atomic activation transaction of §4.7:
	// version -> active, tenant.active_version set, previous active version
	// archived, all within one transaction.
	ActivateVersion(ctx context.Context, tenantID string, version int) error

	// Sessions.
	CreateSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error)

	// Messages. AppendUserMessage and AppendAssistantMessage each
	// synchronously increment session.message_count and the tenant's daily
	// stats counters in the same transaction (§4.5 step 2, Open Questions).
	AppendUserMessage(ctx context.Context, m Message) (Message, error)
	AppendAssistantMessage(ctx context.Context, m Message) (Message, error)
	RecentMessages(ctx context.Context, sessionID string, n int) ([]Message, error)

	// Stats.
	GetDailyStats(ctx context.Context, tenantID string, days int) ([]DailyStats, error)
	RebuildDailyStats(ctx context.Context, tenantID string) error
}
