package databases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ragforge/internal/apperr"
	"ragforge/internal/persistence"
)

func TestMemoryMetaStore_TenantLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := NewMemoryMetaStore()

	t1, err := ms.CreateTenant(ctx, persistence.Tenant{Name: "Acme", AccessURL: "acme"})
	require.NoError(t, err)
	require.NotEmpty(t, t1.ID)
	require.Equal(t, persistence.TenantProcessing, t1.Status)

	_, err = ms.CreateTenant(ctx, persistence.Tenant{Name: "Dup", AccessURL: "acme"})
	require.Error(t, err)
	require.Equal(t, apperr.Conflict, apperr.KindOf(err))

	got, err := ms.GetTenantBySlug(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, t1.ID, got.ID)

	_, err = ms.UpdateTenant(ctx, t1.ID, func(t *persistence.Tenant) error {
		t.Name = "Acme Corp"
		return nil
	})
	require.NoError(t, err)

	updated, err := ms.GetTenant(ctx, t1.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", updated.Name)

	require.NoError(t, ms.DeleteTenant(ctx, t1.ID))
	_, err = ms.GetTenant(ctx, t1.ID)
	require.Error(t, err)
}

func TestMemoryMetaStore_VersionActivation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := NewMemoryMetaStore()
	tenant, err := ms.CreateTenant(ctx, persistence.Tenant{Name: "T", AccessURL: "t"})
	require.NoError(t, err)

	v1, err := ms.OpenVersion(ctx, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, 1, v1.Version)
	_, err = ms.MarkVersionStatus(ctx, tenant.ID, v1.Version, persistence.VersionReady)
	require.NoError(t, err)
	require.NoError(t, ms.ActivateVersion(ctx, tenant.ID, v1.Version))

	active, err := ms.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, 1, active.ActiveVersion)
	require.Equal(t, persistence.TenantActive, active.Status)

	v2, err := ms.OpenVersion(ctx, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, 2, v2.Version)
	_, err = ms.MarkVersionStatus(ctx, tenant.ID, v2.Version, persistence.VersionReady)
	require.NoError(t, err)
	require.NoError(t, ms.ActivateVersion(ctx, tenant.ID, v2.Version))

	bv1, err := ms.GetVersion(ctx, tenant.ID, 1)
	require.NoError(t, err)
	require.Equal(t, persistence.VersionArchived, bv1.Status)

	bv2, err := ms.GetVersion(ctx, tenant.ID, 2)
	require.NoError(t, err)
	require.Equal(t, persistence.VersionActive, bv2.Status)
}

func TestMemoryMetaStore_SessionsAndMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := NewMemoryMetaStore()
	tenant, err := ms.CreateTenant(ctx, persistence.Tenant{Name: "T", AccessURL: "t2"})
	require.NoError(t, err)

	now := time.Now().UTC()
	sess, err := ms.CreateSession(ctx, persistence.Session{TenantID: tenant.ID, ExpiresAt: now.Add(30 * time.Minute)})
	require.NoError(t, err)
	require.False(t, sess.Expired(now))
	require.True(t, sess.Expired(now.Add(time.Hour)))

	_, err = ms.AppendUserMessage(ctx, persistence.Message{SessionID: sess.ID, Role: persistence.RoleUser, Content: "hi"})
	require.NoError(t, err)
	_, err = ms.AppendAssistantMessage(ctx, persistence.Message{
		SessionID: sess.ID, Role: persistence.RoleAssistant, Content: "hello",
		ResponseTimeMs: 120, InputTokens: 10, OutputTokens: 20, RetrievalCount: 2,
	})
	require.NoError(t, err)

	got, err := ms.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.MessageCount)

	recent, err := ms.RecentMessages(ctx, sess.ID, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, persistence.RoleAssistant, recent[0].Role)

	stats, err := ms.GetDailyStats(ctx, tenant.ID, 7)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, 1, stats[0].Sessions)
	require.Equal(t, 2, stats[0].Messages)
	require.Equal(t, 10, stats[0].InputTokens)

	before := stats[0]
	require.NoError(t, ms.RebuildDailyStats(ctx, tenant.ID))
	after, err := ms.GetDailyStats(ctx, tenant.ID, 7)
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, before.Sessions, after[0].Sessions)
	require.Equal(t, before.Messages, after[0].Messages)
	require.Equal(t, before.InputTokens, after[0].InputTokens)
}

func TestMemoryMetaStore_ExpiredSessionCleanup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := NewMemoryMetaStore()
	tenant, err := ms.CreateTenant(ctx, persistence.Tenant{Name: "T", AccessURL: "t3"})
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = ms.CreateSession(ctx, persistence.Session{TenantID: tenant.ID, ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	_, err = ms.CreateSession(ctx, persistence.Session{TenantID: tenant.ID, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	n, err := ms.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
