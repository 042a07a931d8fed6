// Package versionmgr implements the Version Manager (SPEC_FULL.md §4.7):
// opening a new build version for ingestion, atomically activating it once
// ready, and cleaning up a superseded version's vector collection, graph
// subset, and stored files.
package versionmgr

import (
	"context"

	"github.com/rs/zerolog/log"

	"ragforge/internal/apperr"
	"ragforge/internal/objectstore"
	"ragforge/internal/persistence"
	"ragforge/internal/persistence/databases"
)

// Manager wraps the MetaStore's version primitives with the storage-side
// cleanup they don't own.
type Manager struct {
	Meta   persistence.MetaStore
	Vector databases.VectorStore
	Graph  databases.GraphDB
	Object objectstore.ObjectStore
}

// OpenVersion opens a new building version for tenantID, used when ingesting
// documents against an already-active tenant (SPEC_FULL.md §4.7: "opens
// version N+1 on new ingest to an active tenant").
func (m *Manager) OpenVersion(ctx context.Context, tenantID string) (persistence.BuildVersion, error) {
	return m.Meta.OpenVersion(ctx, tenantID)
}

// MarkReady transitions version to VersionReady once every document in it has
// finished the ingestion pipeline, a precondition for Activate.
func (m *Manager) MarkReady(ctx context.Context, tenantID string, version int) error {
	_, err := m.Meta.MarkVersionStatus(ctx, tenantID, version, persistence.VersionReady)
	return err
}

// Activate performs the atomic activation transaction (version -> active,
// previous active -> archived, tenant.active_version updated) and returns the
// version id that was archived as a side effect, if any, so the caller can
// schedule its cleanup.
func (m *Manager) Activate(ctx context.Context, tenantID string, version int) (archived int, err error) {
	tenant, err := m.Meta.GetTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	previousActive := tenant.ActiveVersion

	if err := m.Meta.ActivateVersion(ctx, tenantID, version); err != nil {
		return 0, err
	}
	if previousActive != 0 && previousActive != version {
		return previousActive, nil
	}
	return 0, nil
}

// Cleanup removes a superseded version's vector collection, graph subset,
// and stored document files. On partial failure it marks the version
// VersionCleanupPending so a retry sweep (CleanupPendingSweep) can finish the job
// later instead of leaking storage (SPEC_FULL.md §4.7).
func (m *Manager) Cleanup(ctx context.Context, tenantID string, version int) error {
	docs, err := m.Meta.ListDocuments(ctx, tenantID)
	if err != nil {
		return apperr.Internalf(err, "list documents for cleanup")
	}

	var firstErr error
	record := func(step string, err error) {
		if err == nil {
			return
		}
		log.Error().Err(err).Str("tenant_id", tenantID).Int("version", version).Str("step", step).Msg("versionmgr: cleanup step failed")
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := m.Vector.DropCollection(ctx, tenantID, version); err != nil {
		record("drop_vector_collection", err)
	}
	if err := m.Graph.DeleteVersion(ctx, tenantID, version); err != nil {
		record("delete_graph_version", err)
	}
	for _, d := range docs {
		if d.Version != version {
			continue
		}
		if err := m.Object.Delete(ctx, d.StoragePath); err != nil {
			record("delete_object", err)
		}
	}

	if firstErr != nil {
		if _, err := m.Meta.MarkVersionStatus(ctx, tenantID, version, persistence.VersionCleanupPending); err != nil {
			return apperr.Internalf(err, "mark version cleanup_pending")
		}
		return apperr.Transientf(firstErr, "version cleanup incomplete, marked cleanup_pending")
	}
	return nil
}

// CleanupPendingSweep retries Cleanup for every version left in
// VersionCleanupPending across all tenants, intended to run on an interval.
func (m *Manager) CleanupPendingSweep(ctx context.Context) error {
	tenants, err := m.Meta.ListTenants(ctx)
	if err != nil {
		return err
	}
	for _, t := range tenants {
		versions, err := m.Meta.ListVersions(ctx, t.ID)
		if err != nil {
			return err
		}
		for _, v := range versions {
			if v.Status != persistence.VersionCleanupPending {
				continue
			}
			if err := m.Cleanup(ctx, t.ID, v.Version); err != nil {
				log.Warn().Err(err).Str("tenant_id", t.ID).Int("version", v.Version).Msg("versionmgr: cleanup retry still incomplete")
			}
		}
	}
	return nil
}
