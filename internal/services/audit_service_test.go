package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/internal/logging"
	"workflowguard/backend/pkg/models"
)

// MockAuditStore satisfies repository.AuditStore.
type MockAuditStore struct {
	mock.Mock
}

func (m *MockAuditStore) AppendAudit(ctx context.Context, entry *models.AuditTrailEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockAuditStore) ListAudit(ctx context.Context, workflowID string) ([]*models.AuditTrailEntry, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditTrailEntry), args.Error(1)
}

func (m *MockAuditStore) CountAuditSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	args := m.Called(ctx, accountID, since)
	return args.Int(0), args.Error(1)
}

func TestRecordPropagatesStorageFailure(t *testing.T) {
	store := new(MockAuditStore)
	store.On("AppendAudit", mock.Anything, mock.Anything).
		Return(apperrors.Unavailable("insert audit entry", errors.New("connection reset")))
	recorder := NewAuditRecorder(store, func() time.Time { return epoch }, logging.NewNop())

	_, err := recorder.Record(context.Background(), "wf", nil, models.AuditActionEdit, models.SystemActorRef(), nil, nil)
	assert.True(t, apperrors.IsStorageUnavailable(err))
	store.AssertExpectations(t)
}

func TestRecordStampsActor(t *testing.T) {
	store := new(MockAuditStore)
	store.On("AppendAudit", mock.Anything, mock.MatchedBy(func(e *models.AuditTrailEntry) bool {
		return e.UserID == nil && e.UserName == models.SystemActorName && e.Timestamp.Equal(epoch)
	})).Return(nil)
	recorder := NewAuditRecorder(store, func() time.Time { return epoch }, logging.NewNop())

	entry, err := recorder.Record(context.Background(), "wf", nil, models.AuditActionDelete, models.SystemActorRef(), "old", nil)
	require.NoError(t, err)
	assert.Equal(t, models.SystemActor, entry.ActorKey())
	store.AssertExpectations(t)
}

func TestListFiltersInclusivePeriod(t *testing.T) {
	at := func(h int) time.Time { return epoch.Add(time.Duration(h) * time.Hour) }
	entries := []*models.AuditTrailEntry{
		{Sequence: 1, Timestamp: at(0)},
		{Sequence: 2, Timestamp: at(1)},
		{Sequence: 3, Timestamp: at(2)},
		{Sequence: 4, Timestamp: at(3)},
	}
	store := new(MockAuditStore)
	store.On("ListAudit", mock.Anything, "wf").Return(entries, nil)
	recorder := NewAuditRecorder(store, nil, logging.NewNop())
	ctx := context.Background()

	start, end := at(1), at(2)
	got, err := recorder.List(ctx, "wf", &start, &end)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].Sequence)
	assert.Equal(t, int64(3), got[1].Sequence)

	got, err = recorder.List(ctx, "wf", &start, nil)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = recorder.List(ctx, "wf", nil, nil)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	_, err = recorder.List(ctx, "wf", &end, &start)
	assert.True(t, apperrors.IsInvalidRange(err))
}
