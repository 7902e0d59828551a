package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"workflowguard/backend/internal/logging"
	"workflowguard/backend/internal/repository"
	"workflowguard/backend/pkg/models"
)

// fakeClock is a settable clock shared by every service of a fixture.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// MockWorkflowSource satisfies WorkflowSource.
type MockWorkflowSource struct {
	mock.Mock
}

func (m *MockWorkflowSource) FetchWorkflow(ctx context.Context, portalID int64, sourceID string) (*SourceWorkflow, error) {
	args := m.Called(ctx, portalID, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SourceWorkflow), args.Error(1)
}

// MockBillingClient satisfies BillingClient.
type MockBillingClient struct {
	mock.Mock
}

func (m *MockBillingClient) GetPlan(ctx context.Context, account *models.Account) (models.Plan, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(models.Plan), args.Error(1)
}

type fixture struct {
	ctx        context.Context
	repo       repository.Repository
	clock      *fakeClock
	audit      *AuditRecorder
	workflows  *WorkflowService
	versions   *VersionService
	compliance *ComplianceService
	account    *models.Account
}

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const minute = time.Minute

func newFixture(t *testing.T) *fixture {
	return newFixtureWithRepo(t, repository.NewMemoryStore())
}

func newFixtureWithRepo(t *testing.T, repo repository.Repository) *fixture {
	t.Helper()

	ctx := context.Background()
	clock := &fakeClock{now: epoch}
	logger := logging.NewNop()

	audit := NewAuditRecorder(repo, clock.Now, logger)
	workflows := NewWorkflowService(repo, audit, clock.Now, logger)
	versions := NewVersionService(repo, audit, clock.Now, logger)
	compliance := NewComplianceService(workflows, versions, audit, clock.Now, DefaultComplianceOptions())

	portal := int64(1234)
	account := &models.Account{Name: "Acme", Domain: "acme.test", PortalID: &portal, PlanID: "starter"}
	require.NoError(t, repo.CreateAccount(ctx, account))

	return &fixture{
		ctx:        ctx,
		repo:       repo,
		clock:      clock,
		audit:      audit,
		workflows:  workflows,
		versions:   versions,
		compliance: compliance,
		account:    account,
	}
}

func (f *fixture) register(t *testing.T, sourceID string) *models.Workflow {
	t.Helper()
	w, err := f.workflows.Register(f.ctx, RegisterWorkflowInput{
		AccountID: f.account.ID,
		PortalID:  *f.account.PortalID,
		SourceID:  sourceID,
		Name:      "Workflow " + sourceID,
		Actor:     models.UserActor("user1", "User One"),
	})
	require.NoError(t, err)
	return w
}

func (f *fixture) snapshot(t *testing.T, workflowID string, snapshotType models.SnapshotType, actor models.Actor, data models.Document) *models.WorkflowVersion {
	t.Helper()
	v, err := f.versions.CreateVersion(f.ctx, CreateVersionInput{
		WorkflowID:   workflowID,
		SnapshotType: snapshotType,
		Actor:        actor,
		Data:         data,
	})
	require.NoError(t, err)
	return v
}
