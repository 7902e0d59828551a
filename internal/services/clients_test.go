package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/pkg/models"
)

func TestHTTPBillingClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts/acc-1/plan":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "professional", "status": "trialing", "capacity": 25})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewHTTPBillingClient(server.URL+"/", time.Second)

	plan, err := client.GetPlan(context.Background(), &models.Account{ID: "acc-1"})
	require.NoError(t, err)
	assert.Equal(t, models.Plan{ID: "professional", Status: "trialing", Capacity: 25}, plan)

	_, err = client.GetPlan(context.Background(), &models.Account{ID: "acc-2"})
	assert.Error(t, err)
}

func TestPlanCatalog(t *testing.T) {
	catalog := NewPlanCatalog(map[string]int{"Starter": 5, "enterprise": -1}, "starter")
	ctx := context.Background()

	plan, err := catalog.GetPlan(ctx, &models.Account{})
	require.NoError(t, err)
	assert.Equal(t, models.Plan{ID: "starter", Status: "active", Capacity: 5}, plan)

	plan, err = catalog.GetPlan(ctx, &models.Account{PlanID: "enterprise"})
	require.NoError(t, err)
	assert.True(t, plan.Unlimited())

	_, err = catalog.GetPlan(ctx, &models.Account{PlanID: "gold"})
	assert.Error(t, err)
}

func TestHubSpotClientFetchWorkflow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer pat-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/automation/v4/flows/42":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"42","name":"Welcome series","revisionId":"7","actions":[{"actionId":"1","type":"DELAY","delayMillis":3600000}]}`))
		case "/automation/v4/flows/43":
			_, _ = w.Write([]byte(`{"id":"43"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewHubSpotClient(server.URL, "pat-123", 1234, time.Second)
	ctx := context.Background()

	flow, err := client.FetchWorkflow(ctx, 1234, "42")
	require.NoError(t, err)
	assert.Equal(t, "Welcome series", flow.Name)
	actions := flow.Data["actions"].([]any)
	require.Len(t, actions, 1)
	assert.Equal(t, json.Number("3600000"), actions[0].(map[string]any)["delayMillis"])

	flow, err = client.FetchWorkflow(ctx, 1234, "43")
	require.NoError(t, err)
	assert.Equal(t, "HubSpot workflow 43", flow.Name)

	_, err = client.FetchWorkflow(ctx, 1234, "99")
	assert.True(t, apperrors.IsNotFound(err))

	unauthorized := NewHubSpotClient(server.URL, "wrong", 0, time.Second)
	_, err = unauthorized.FetchWorkflow(ctx, 1234, "42")
	assert.Error(t, err)
	assert.False(t, apperrors.IsNotFound(err))
}

func TestHubSpotClientRejectsOtherPortals(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"id":"42","name":"Welcome series"}`))
	}))
	defer server.Close()

	client := NewHubSpotClient(server.URL, "pat-123", 1234, time.Second)
	_, err := client.FetchWorkflow(context.Background(), 9999, "42")
	assert.ErrorIs(t, err, ErrForeignPortal)
	assert.Zero(t, calls)

	anyPortal := NewHubSpotClient(server.URL, "pat-123", 0, time.Second)
	flow, err := anyPortal.FetchWorkflow(context.Background(), 9999, "42")
	require.NoError(t, err)
	assert.Equal(t, "Welcome series", flow.Name)
}
