package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/pkg/models"
)

func TestRegisterWorkflow(t *testing.T) {
	f := newFixture(t)

	w := f.register(t, "101")
	assert.Equal(t, models.WorkflowStatusActive, w.Status)
	assert.Equal(t, epoch, w.CreatedAt)

	_, err := f.workflows.Register(f.ctx, RegisterWorkflowInput{
		AccountID: f.account.ID, PortalID: *f.account.PortalID, SourceID: "101", Name: "again",
	})
	assert.True(t, apperrors.IsConflict(err))

	_, err = f.workflows.Register(f.ctx, RegisterWorkflowInput{AccountID: f.account.ID, Name: "  ", Status: "paused"})
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)

	entries, err := f.audit.List(f.ctx, w.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionCreate, entries[0].Action)
	assert.Nil(t, entries[0].VersionID)
}

func TestUpdateWorkflow(t *testing.T) {
	f := newFixture(t)
	w := f.register(t, "202")
	actor := models.UserActor("user1", "User One")

	name := "Renamed"
	inactive := models.WorkflowStatusInactive
	f.clock.Advance(minute)
	updated, err := f.workflows.Update(f.ctx, f.account.ID, w.ID, models.WorkflowUpdate{Name: &name, Status: &inactive}, actor)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, models.WorkflowStatusInactive, updated.Status)
	assert.Equal(t, epoch.Add(minute), updated.UpdatedAt)

	// A no-op update records nothing.
	_, err = f.workflows.Update(f.ctx, f.account.ID, w.ID, models.WorkflowUpdate{Name: &name}, actor)
	require.NoError(t, err)

	entries, err := f.audit.List(f.ctx, w.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	edit := entries[1]
	assert.Equal(t, models.AuditActionEdit, edit.Action)
	assert.Equal(t, map[string]any{"name": "Workflow 202", "status": "active"}, edit.OldValue)
	assert.Equal(t, map[string]any{"name": "Renamed", "status": "inactive"}, edit.NewValue)
	assert.Equal(t, "User One", edit.UserName)

	empty := ""
	_, err = f.workflows.Update(f.ctx, f.account.ID, w.ID, models.WorkflowUpdate{Name: &empty}, actor)
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.workflows.Update(f.ctx, "other", w.ID, models.WorkflowUpdate{Name: &name}, actor)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeleteWorkflow(t *testing.T) {
	f := newFixture(t)
	w := f.register(t, "303")
	actor := models.UserActor("user1", "")
	f.snapshot(t, w.ID, models.SnapshotManual, actor, models.Document{"a": "b"})

	assert.True(t, apperrors.IsNotFound(f.workflows.Delete(f.ctx, "other", w.ID, actor)))
	require.NoError(t, f.workflows.Delete(f.ctx, f.account.ID, w.ID, actor))

	_, err := f.workflows.Get(f.ctx, f.account.ID, w.ID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(f.workflows.Delete(f.ctx, f.account.ID, w.ID, actor)))

	list, err := f.workflows.List(f.ctx, f.account.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	// History survives the soft delete.
	versions, err := f.repo.ListVersions(f.ctx, w.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
	entries, err := f.audit.List(f.ctx, w.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.AuditActionDelete, entries[len(entries)-1].Action)
}
