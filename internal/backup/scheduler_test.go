package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"workflowguard/backend/internal/logging"
	"workflowguard/backend/internal/repository"
	"workflowguard/backend/internal/services"
	"workflowguard/backend/pkg/models"
)

type MockWorkflowSource struct {
	mock.Mock
}

func (m *MockWorkflowSource) FetchWorkflow(ctx context.Context, portalID int64, sourceID string) (*services.SourceWorkflow, error) {
	args := m.Called(ctx, portalID, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SourceWorkflow), args.Error(1)
}

func setup(t *testing.T) (repository.Repository, *services.WorkflowService, *services.VersionService) {
	t.Helper()
	repo := repository.NewMemoryStore()
	logger := logging.NewNop()
	audit := services.NewAuditRecorder(repo, time.Now, logger)
	workflows := services.NewWorkflowService(repo, audit, time.Now, logger)
	versions := services.NewVersionService(repo, audit, time.Now, logger)

	portal := int64(777)
	require.NoError(t, repo.CreateAccount(context.Background(), &models.Account{Name: "Acme", Domain: "acme.test", PortalID: &portal}))
	return repo, workflows, versions
}

func register(t *testing.T, repo repository.Repository, workflows *services.WorkflowService, sourceID string) *models.Workflow {
	t.Helper()
	ctx := context.Background()
	account, err := repo.GetAccountByPortal(ctx, 777)
	require.NoError(t, err)
	w, err := workflows.Register(ctx, services.RegisterWorkflowInput{
		AccountID: account.ID,
		PortalID:  777,
		SourceID:  sourceID,
		Name:      "Flow " + sourceID,
		Actor:     models.SystemActorRef(),
	})
	require.NoError(t, err)
	return w
}

func TestRunOnceSnapshotsActiveWorkflows(t *testing.T) {
	repo, workflows, versions := setup(t)
	ctx := context.Background()

	first := register(t, repo, workflows, "1")
	second := register(t, repo, workflows, "2")
	paused := register(t, repo, workflows, "3")
	status := models.WorkflowStatusInactive
	_, err := workflows.Update(ctx, "", paused.ID, models.WorkflowUpdate{Status: &status}, models.SystemActorRef())
	require.NoError(t, err)

	source := new(MockWorkflowSource)
	source.On("FetchWorkflow", mock.Anything, int64(777), "1").
		Return(&services.SourceWorkflow{Name: "Flow 1", Data: models.Document{"actions": []any{"a"}}}, nil)
	source.On("FetchWorkflow", mock.Anything, int64(777), "2").
		Return(nil, errors.New("hubspot: 502 bad gateway"))

	job := NewJob(repo, versions, source, logging.NewNop())
	result, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Workflows: 2, Succeeded: 1, Failed: 1}, result)

	got, err := repo.ListVersions(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.SnapshotDailyBackup, got[0].SnapshotType)
	assert.Equal(t, models.SystemActor, got[0].CreatedBy)
	assert.Equal(t, 1, got[0].VersionNumber)

	got, err = repo.ListVersions(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	source.AssertExpectations(t)
	source.AssertNotCalled(t, "FetchWorkflow", mock.Anything, int64(777), "3")
}

func TestRunOnceStopsOnCancelledContext(t *testing.T) {
	repo, workflows, versions := setup(t)
	register(t, repo, workflows, "1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := NewJob(repo, versions, new(MockWorkflowSource), logging.NewNop())
	_, err := job.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSchedulerValidatesSchedule(t *testing.T) {
	job := NewJob(repository.NewMemoryStore(), nil, new(MockWorkflowSource), logging.NewNop())

	_, err := NewScheduler(job, "not a schedule", logging.NewNop())
	assert.Error(t, err)

	s, err := NewScheduler(job, "", logging.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, s.schedule)
}

func TestSchedulerStartStop(t *testing.T) {
	repo, _, versions := setup(t)
	job := NewJob(repo, versions, new(MockWorkflowSource), logging.NewNop())
	s, err := NewScheduler(job, "@every 1h", logging.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx))

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, s.Stop(stopCtx))
}
