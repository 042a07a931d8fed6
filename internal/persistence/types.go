// Package persistence defines the relational data model owned by the
// MetaStore (§3): tenants, documents, build versions, conversation sessions,
// messages, and daily stats. The vector store and graph store own their own
// partitions (chunk bodies/embeddings, nodes/edges respectively); this
// package owns lifecycle and statistics only.
package persistence

import "time"

// TenantStatus is the lifecycle state of a chatbot tenant.
type TenantStatus string

const (
	TenantProcessing TenantStatus = "processing"
	TenantActive     TenantStatus = "active"
	TenantInactive   TenantStatus = "inactive"
)

// Persona configures tone, language, and prompt overrides for a tenant's
// Answer Streamer.
type Persona struct {
	Tone                 string
	Language             string
	Greeting             string
	SystemPromptOverride string
	FallbackMessage      string
}

// Tenant is one chatbot service instance with isolated data across all
// three stores, partitioned by (tenant id, active version).
type Tenant struct {
	ID            string
	Name          string
	Persona       Persona
	AccessURL     string
	Status        TenantStatus
	ActiveVersion int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DocumentStatus is the ingestion stage a document currently occupies.
type DocumentStatus string

const (
	DocPending    DocumentStatus = "pending"
	DocParsing    DocumentStatus = "parsing"
	DocChunking   DocumentStatus = "chunking"
	DocEmbedding  DocumentStatus = "embedding"
	DocExtracting DocumentStatus = "extracting"
	DocGraphing   DocumentStatus = "graphing"
	DocCompleted  DocumentStatus = "completed"
	DocFailed     DocumentStatus = "failed"
)

// StageProgress is the progress percentage a document reaches upon entering
// each status, per §4.1.
var StageProgress = map[DocumentStatus]int{
	DocParsing:    10,
	DocChunking:   30,
	DocEmbedding:  50,
	DocExtracting: 70,
	DocGraphing:   90,
	DocCompleted:  100,
}

// Document is one uploaded PDF, belonging to a Tenant and contributing to
// exactly one BuildVersion.
type Document struct {
	ID           string
	TenantID     string
	Filename     string
	StoragePath  string
	ByteSize     int64
	Status       DocumentStatus
	Version      int
	PageCount    int
	Progress     int
	LastError    string
	ChunkCount   int
	EntityCount  int
	ProcessedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// VersionStatus is the lifecycle state of a tenant BuildVersion.
type VersionStatus string

const (
	VersionBuilding VersionStatus = "building"
	VersionReady    VersionStatus = "ready"
	VersionActive   VersionStatus = "active"
	VersionArchived VersionStatus = "archived"
	// VersionCleanupPending marks a version whose drop failed partway
	// through (§4.7); a janitor retries until every substep succeeds.
	VersionCleanupPending VersionStatus = "cleanup_pending"
)

// BuildVersion is a monotonically increasing generation of a tenant's index
// and graph. Exactly one version per tenant may be VersionActive.
type BuildVersion struct {
	TenantID  string
	Version   int
	Status    VersionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is a conversation session belonging to a Tenant, expiring 30
// minutes (configurable) after creation.
type Session struct {
	ID           string
	TenantID     string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	MessageCount int
}

// Expired reports whether the session can no longer accept new messages.
func (s Session) Expired(at time.Time) bool {
	return at.After(s.ExpiresAt)
}

// MessageRole distinguishes the two participants in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Source is one attribution entry on an assistant message: either a vector
// chunk (document/page/section) or a graph entity.
type Source struct {
	Kind         string // "vector" | "graph"
	Filename     string
	Page         int
	Section      string
	DocumentID   string
	EntityID     string
	EntityName   string
	Score        float64
}

// Message is one turn of a Session.
type Message struct {
	ID              string
	SessionID       string
	Role            MessageRole
	Content         string
	Sources         []Source
	CreatedAt       time.Time
	ResponseTimeMs  int64
	InputTokens     int
	OutputTokens    int
	RetrievalCount  int
	RetrievalTimeMs int64
	Cancelled       bool
	Failed          bool
}

// DailyStats is the (tenant, date) aggregate rebuilt idempotently from
// Message rows.
type DailyStats struct {
	TenantID           string
	Date               string // YYYY-MM-DD
	Sessions           int
	Messages           int
	AvgResponseMs      float64
	P50ResponseMs      float64
	P95ResponseMs      float64
	InputTokens        int
	OutputTokens       int
	RetrievalCount     int
}
