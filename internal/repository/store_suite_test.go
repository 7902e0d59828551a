package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/pkg/models"
)

var portalSeq atomic.Int64

func seedWorkflow(t *testing.T, ctx context.Context, repo Repository, sourceID string) (*models.Account, *models.Workflow) {
	t.Helper()

	portal := 40000000 + portalSeq.Add(1)
	account := &models.Account{Name: "Acme " + sourceID, Domain: sourceID + ".example.com", PortalID: &portal, PlanID: "starter"}
	require.NoError(t, repo.CreateAccount(ctx, account))

	workflow := &models.Workflow{
		AccountID: account.ID,
		PortalID:  portal,
		SourceID:  sourceID,
		Name:      "Lead nurture " + sourceID,
		Status:    models.WorkflowStatusActive,
	}
	require.NoError(t, repo.CreateWorkflow(ctx, workflow))
	return account, workflow
}

func newVersion(workflowID string, data models.Document) *models.WorkflowVersion {
	return &models.WorkflowVersion{
		WorkflowID:   workflowID,
		SnapshotType: models.SnapshotManual,
		CreatedBy:    "user-1",
		Data:         data,
	}
}

func createEntry(workflowID string) *models.AuditTrailEntry {
	user := "user-1"
	return &models.AuditTrailEntry{
		WorkflowID: workflowID,
		Action:     models.AuditActionCreate,
		UserID:     &user,
		UserName:   "Ada",
	}
}

// runStoreSuite exercises the Repository contract shared by every implementation.
func runStoreSuite(t *testing.T, repo Repository) {
	ctx := context.Background()

	t.Run("Accounts", func(t *testing.T) {
		account, _ := seedWorkflow(t, ctx, repo, "accounts")

		got, err := repo.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, account.Domain, got.Domain)

		byDomain, err := repo.GetAccountByDomain(ctx, account.Domain)
		require.NoError(t, err)
		assert.Equal(t, account.ID, byDomain.ID)

		byPortal, err := repo.GetAccountByPortal(ctx, *account.PortalID)
		require.NoError(t, err)
		assert.Equal(t, account.ID, byPortal.ID)

		_, err = repo.GetAccountByDomain(ctx, "nobody.example.com")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("Workflow registry", func(t *testing.T) {
		account, workflow := seedWorkflow(t, ctx, repo, "registry")

		dup := &models.Workflow{AccountID: account.ID, PortalID: workflow.PortalID, SourceID: workflow.SourceID, Name: "dup", Status: models.WorkflowStatusActive}
		err := repo.CreateWorkflow(ctx, dup)
		assert.True(t, apperrors.IsConflict(err), "got %v", err)

		bySource, err := repo.GetWorkflowBySource(ctx, workflow.PortalID, workflow.SourceID)
		require.NoError(t, err)
		assert.Equal(t, workflow.ID, bySource.ID)

		workflow.Name = "Renamed"
		workflow.Status = models.WorkflowStatusInactive
		workflow.UpdatedAt = time.Now().UTC()
		require.NoError(t, repo.UpdateWorkflow(ctx, workflow))

		got, err := repo.GetWorkflow(ctx, workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, models.WorkflowStatusInactive, got.Status)

		listed, err := repo.ListWorkflows(ctx, account.ID)
		require.NoError(t, err)
		assert.Len(t, listed, 1)

		active, err := repo.ListActiveWorkflows(ctx)
		require.NoError(t, err)
		for _, w := range active {
			assert.NotEqual(t, workflow.ID, w.ID)
		}

		require.NoError(t, repo.DeleteWorkflow(ctx, workflow.ID, time.Now().UTC()))
		_, err = repo.GetWorkflow(ctx, workflow.ID)
		assert.True(t, apperrors.IsNotFound(err))

		listed, err = repo.ListWorkflows(ctx, account.ID)
		require.NoError(t, err)
		assert.Empty(t, listed)

		// The source can be registered again once the old workflow is gone.
		again := &models.Workflow{AccountID: account.ID, PortalID: workflow.PortalID, SourceID: workflow.SourceID, Name: "again", Status: models.WorkflowStatusActive}
		assert.NoError(t, repo.CreateWorkflow(ctx, again))
	})

	t.Run("Append and list versions", func(t *testing.T) {
		_, workflow := seedWorkflow(t, ctx, repo, "versions")

		_, err := repo.LatestVersion(ctx, workflow.ID)
		assert.True(t, apperrors.IsNotFound(err))

		tally, err := repo.TallyVersions(ctx, workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, tally.Count)

		v1 := newVersion(workflow.ID, models.Document{"steps": []any{"A", "B"}})
		require.NoError(t, repo.AppendVersion(ctx, v1, createEntry(workflow.ID)))
		assert.Equal(t, 1, v1.VersionNumber)
		assert.NotEmpty(t, v1.ID)

		v2 := newVersion(workflow.ID, models.Document{"steps": []any{"A", "B", "C"}})
		require.NoError(t, repo.AppendVersion(ctx, v2, createEntry(workflow.ID)))
		assert.Equal(t, 2, v2.VersionNumber)

		versions, err := repo.ListVersions(ctx, workflow.ID)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, 1, versions[0].VersionNumber)
		assert.Equal(t, 2, versions[1].VersionNumber)
		assert.Equal(t, []any{"A", "B", "C"}, versions[1].Data["steps"])

		latest, err := repo.LatestVersion(ctx, workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, v2.ID, latest.ID)

		got, err := repo.GetVersion(ctx, v1.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.ID, got.WorkflowID)

		tally, err = repo.TallyVersions(ctx, workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, tally.Count)
		assert.Equal(t, 2, tally.LatestNumber)
		assert.Equal(t, models.SnapshotManual, tally.LatestType)
		assert.Equal(t, "user-1", tally.LatestBy)
		require.NotNil(t, tally.LatestAt)

		entries, err := repo.ListAudit(ctx, workflow.ID)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("Explicit duplicate number is rejected", func(t *testing.T) {
		_, workflow := seedWorkflow(t, ctx, repo, "duplicate")

		require.NoError(t, repo.AppendVersion(ctx, newVersion(workflow.ID, models.Document{}), createEntry(workflow.ID)))

		dup := newVersion(workflow.ID, models.Document{})
		dup.VersionNumber = 1
		err := repo.AppendVersion(ctx, dup, createEntry(workflow.ID))
		assert.True(t, errors.Is(err, ErrDuplicateVersion), "got %v", err)

		// Neither the version nor its audit entry was kept.
		versions, err := repo.ListVersions(ctx, workflow.ID)
		require.NoError(t, err)
		assert.Len(t, versions, 1)
		entries, err := repo.ListAudit(ctx, workflow.ID)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("Append to unknown workflow", func(t *testing.T) {
		err := repo.AppendVersion(ctx, newVersion("00000000-0000-0000-0000-000000000000", models.Document{}), nil)
		assert.True(t, apperrors.IsNotFound(err), "got %v", err)
	})

	t.Run("Concurrent appends allocate a contiguous range", func(t *testing.T) {
		_, workflow := seedWorkflow(t, ctx, repo, "concurrent")

		const n = 10
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- repo.AppendVersion(ctx, newVersion(workflow.ID, models.Document{}), createEntry(workflow.ID))
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		versions, err := repo.ListVersions(ctx, workflow.ID)
		require.NoError(t, err)
		require.Len(t, versions, n)
		for i, v := range versions {
			assert.Equal(t, i+1, v.VersionNumber)
		}
	})

	t.Run("Audit ordering and counting", func(t *testing.T) {
		account, workflow := seedWorkflow(t, ctx, repo, "audit")

		ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		first := createEntry(workflow.ID)
		first.Timestamp = ts
		second := createEntry(workflow.ID)
		second.Action = models.AuditActionEdit
		second.Timestamp = ts
		second.OldValue = map[string]any{"name": "old"}
		second.NewValue = map[string]any{"name": "new"}
		earlier := createEntry(workflow.ID)
		earlier.Action = models.AuditActionDelete
		earlier.Timestamp = ts.Add(-time.Hour)
		earlier.UserID = nil
		earlier.UserName = models.SystemActorName

		require.NoError(t, repo.AppendAudit(ctx, first))
		require.NoError(t, repo.AppendAudit(ctx, second))
		require.NoError(t, repo.AppendAudit(ctx, earlier))
		assert.Less(t, first.Sequence, second.Sequence)

		entries, err := repo.ListAudit(ctx, workflow.ID)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, models.AuditActionDelete, entries[0].Action)
		assert.Equal(t, models.AuditActionCreate, entries[1].Action)
		assert.Equal(t, models.AuditActionEdit, entries[2].Action)
		assert.Equal(t, map[string]any{"name": "new"}, entries[2].NewValue)
		assert.Nil(t, entries[1].OldValue)
		assert.Equal(t, models.SystemActor, entries[0].ActorKey())

		n, err := repo.CountAuditSince(ctx, account.ID, ts)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}
