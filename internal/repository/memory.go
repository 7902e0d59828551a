package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/pkg/models"
)

// MemoryStore is an in-process implementation of the Repository interface.
// It backs the memory database driver and the service tests.
type MemoryStore struct {
	mu        sync.Mutex
	accounts  map[string]*models.Account
	workflows map[string]*models.Workflow
	versions  map[string][]*models.WorkflowVersion
	audit     map[string][]*models.AuditTrailEntry
	seq       int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*models.Account),
		workflows: make(map[string]*models.Workflow),
		versions:  make(map[string][]*models.WorkflowVersion),
		audit:     make(map[string][]*models.AuditTrailEntry),
	}
}

var _ Repository = (*MemoryStore)(nil)

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func copyAccount(a *models.Account) *models.Account {
	c := *a
	if a.PortalID != nil {
		portal := *a.PortalID
		c.PortalID = &portal
	}
	return &c
}

func copyWorkflow(w *models.Workflow) *models.Workflow {
	c := *w
	return &c
}

// Versions and audit entries are copied deeply both ways so callers never
// share a document with stored history.
func copyVersion(v *models.WorkflowVersion) *models.WorkflowVersion {
	c := *v
	c.Data = models.CloneDocument(v.Data)
	return &c
}

func copyAudit(e *models.AuditTrailEntry) *models.AuditTrailEntry {
	c := *e
	if e.VersionID != nil {
		id := *e.VersionID
		c.VersionID = &id
	}
	if e.UserID != nil {
		id := *e.UserID
		c.UserID = &id
	}
	c.OldValue = models.CloneValue(e.OldValue)
	c.NewValue = models.CloneValue(e.NewValue)
	return &c
}

// GetAccount retrieves an account by its ID.
func (s *MemoryStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, apperrors.NotFound("account", id)
	}
	return copyAccount(a), nil
}

// GetAccountByDomain retrieves the account owning an email domain.
func (s *MemoryStore) GetAccountByDomain(ctx context.Context, domain string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.Domain == domain {
			return copyAccount(a), nil
		}
	}
	return nil, apperrors.NotFound("account domain", domain)
}

// GetAccountByPortal retrieves the account connected to a HubSpot portal.
func (s *MemoryStore) GetAccountByPortal(ctx context.Context, portalID int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.PortalID != nil && *a.PortalID == portalID {
			return copyAccount(a), nil
		}
	}
	return nil, apperrors.NotFound("account portal", fmt.Sprint(portalID))
}

// CreateAccount saves a new account.
func (s *MemoryStore) CreateAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if _, ok := s.accounts[account.ID]; ok {
		return fmt.Errorf("account %q: %w", account.ID, apperrors.ErrConflict)
	}
	for _, a := range s.accounts {
		if a.Domain == account.Domain {
			return fmt.Errorf("account domain %q: %w", account.Domain, apperrors.ErrConflict)
		}
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.UpdatedAt = account.CreatedAt
	s.accounts[account.ID] = copyAccount(account)
	return nil
}

func (s *MemoryStore) liveWorkflow(id string) (*models.Workflow, bool) {
	w, ok := s.workflows[id]
	if !ok || w.DeletedAt != nil {
		return nil, false
	}
	return w, true
}

// CreateWorkflow registers a workflow.
func (s *MemoryStore) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}
	if _, ok := s.workflows[workflow.ID]; ok {
		return fmt.Errorf("workflow %q: %w", workflow.ID, apperrors.ErrConflict)
	}
	for _, w := range s.workflows {
		if w.DeletedAt == nil && w.PortalID == workflow.PortalID && w.SourceID == workflow.SourceID {
			return fmt.Errorf("workflow source %d/%s: %w", workflow.PortalID, workflow.SourceID, apperrors.ErrConflict)
		}
	}
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = time.Now().UTC()
	}
	workflow.UpdatedAt = workflow.CreatedAt
	s.workflows[workflow.ID] = copyWorkflow(workflow)
	return nil
}

// GetWorkflow retrieves a live workflow by its ID.
func (s *MemoryStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.liveWorkflow(id)
	if !ok {
		return nil, apperrors.NotFound("workflow", id)
	}
	return copyWorkflow(w), nil
}

// GetWorkflowBySource retrieves a live workflow by its HubSpot identity.
func (s *MemoryStore) GetWorkflowBySource(ctx context.Context, portalID int64, sourceID string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.workflows {
		if w.DeletedAt == nil && w.PortalID == portalID && w.SourceID == sourceID {
			return copyWorkflow(w), nil
		}
	}
	return nil, apperrors.NotFound("workflow source", fmt.Sprintf("%d/%s", portalID, sourceID))
}

func sortWorkflows(workflows []*models.Workflow) {
	sort.Slice(workflows, func(i, j int) bool {
		if workflows[i].CreatedAt.Equal(workflows[j].CreatedAt) {
			return workflows[i].ID < workflows[j].ID
		}
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})
}

// ListWorkflows lists the live workflows of an account.
func (s *MemoryStore) ListWorkflows(ctx context.Context, accountID string) ([]*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var workflows []*models.Workflow
	for _, w := range s.workflows {
		if w.DeletedAt == nil && w.AccountID == accountID {
			workflows = append(workflows, copyWorkflow(w))
		}
	}
	sortWorkflows(workflows)
	return workflows, nil
}

// ListActiveWorkflows lists live, active workflows across all accounts.
func (s *MemoryStore) ListActiveWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var workflows []*models.Workflow
	for _, w := range s.workflows {
		if w.IsActive() {
			workflows = append(workflows, copyWorkflow(w))
		}
	}
	sortWorkflows(workflows)
	return workflows, nil
}

// UpdateWorkflow persists name, status and updated_at.
func (s *MemoryStore) UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.liveWorkflow(workflow.ID)
	if !ok {
		return apperrors.NotFound("workflow", workflow.ID)
	}
	w.Name = workflow.Name
	w.Status = workflow.Status
	w.UpdatedAt = workflow.UpdatedAt
	return nil
}

// DeleteWorkflow soft-deletes a workflow.
func (s *MemoryStore) DeleteWorkflow(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.liveWorkflow(id)
	if !ok {
		return apperrors.NotFound("workflow", id)
	}
	w.DeletedAt = &at
	w.UpdatedAt = at
	return nil
}

// AppendVersion inserts a version and its audit entry atomically.
func (s *MemoryStore) AppendVersion(ctx context.Context, version *models.WorkflowVersion, entry *models.AuditTrailEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveWorkflow(version.WorkflowID); !ok {
		return apperrors.NotFound("workflow", version.WorkflowID)
	}

	existing := s.versions[version.WorkflowID]
	if version.VersionNumber == 0 {
		version.VersionNumber = 1
		if n := len(existing); n > 0 {
			version.VersionNumber = existing[n-1].VersionNumber + 1
		}
	}
	for _, v := range existing {
		if v.VersionNumber == version.VersionNumber {
			return fmt.Errorf("workflow %q version %d: %w", version.WorkflowID, version.VersionNumber, ErrDuplicateVersion)
		}
	}

	if version.ID == "" {
		version.ID = uuid.New().String()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	stored := append(existing, copyVersion(version))
	sort.Slice(stored, func(i, j int) bool { return stored[i].VersionNumber < stored[j].VersionNumber })
	s.versions[version.WorkflowID] = stored

	if entry != nil {
		s.appendAuditLocked(entry)
	}
	return nil
}

// GetVersion retrieves a version by its ID.
func (s *MemoryStore) GetVersion(ctx context.Context, id string) (*models.WorkflowVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, versions := range s.versions {
		for _, v := range versions {
			if v.ID == id {
				return copyVersion(v), nil
			}
		}
	}
	return nil, apperrors.NotFound("version", id)
}

// ListVersions lists the versions of a workflow by ascending version number.
func (s *MemoryStore) ListVersions(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := make([]*models.WorkflowVersion, 0, len(s.versions[workflowID]))
	for _, v := range s.versions[workflowID] {
		versions = append(versions, copyVersion(v))
	}
	return versions, nil
}

// LatestVersion retrieves the highest numbered version of a workflow.
func (s *MemoryStore) LatestVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.versions[workflowID]
	if len(versions) == 0 {
		return nil, apperrors.NotFound("latest version of workflow", workflowID)
	}
	return copyVersion(versions[len(versions)-1]), nil
}

// TallyVersions rolls up the versions of a workflow.
func (s *MemoryStore) TallyVersions(ctx context.Context, workflowID string) (models.VersionTally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.versions[workflowID]
	tally := models.VersionTally{Count: len(versions)}
	if len(versions) > 0 {
		latest := versions[len(versions)-1]
		at := latest.CreatedAt
		tally.LatestNumber = latest.VersionNumber
		tally.LatestAt = &at
		tally.LatestType = latest.SnapshotType
		tally.LatestBy = latest.CreatedBy
	}
	return tally, nil
}

func (s *MemoryStore) appendAuditLocked(entry *models.AuditTrailEntry) {
	s.seq++
	entry.Sequence = s.seq
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.audit[entry.WorkflowID] = append(s.audit[entry.WorkflowID], copyAudit(entry))
}

// AppendAudit inserts an audit entry.
func (s *MemoryStore) AppendAudit(ctx context.Context, entry *models.AuditTrailEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[entry.WorkflowID]; !ok {
		return apperrors.NotFound("workflow", entry.WorkflowID)
	}
	s.appendAuditLocked(entry)
	return nil
}

// ListAudit lists a workflow's audit entries in canonical order.
func (s *MemoryStore) ListAudit(ctx context.Context, workflowID string) ([]*models.AuditTrailEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]*models.AuditTrailEntry, 0, len(s.audit[workflowID]))
	for _, e := range s.audit[workflowID] {
		entries = append(entries, copyAudit(e))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Sequence < entries[j].Sequence
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// CountAuditSince counts entries for an account's workflows at or after since.
func (s *MemoryStore) CountAuditSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for workflowID, entries := range s.audit {
		w, ok := s.workflows[workflowID]
		if !ok || w.AccountID != accountID {
			continue
		}
		for _, e := range entries {
			if !e.Timestamp.Before(since) {
				n++
			}
		}
	}
	return n, nil
}
