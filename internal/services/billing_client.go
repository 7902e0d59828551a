package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"workflowguard/backend/pkg/models"
)

// HTTPBillingClient is an HTTP implementation of the BillingClient interface.
type HTTPBillingClient struct {
	url    string
	client *http.Client
}

// NewHTTPBillingClient creates a new HTTPBillingClient.
func NewHTTPBillingClient(baseURL string, timeout time.Duration) *HTTPBillingClient {
	return &HTTPBillingClient{
		url:    strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// GetPlan returns the plan for a given account.
func (c *HTTPBillingClient) GetPlan(ctx context.Context, account *models.Account) (models.Plan, error) {
	var plan models.Plan

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/accounts/"+url.PathEscape(account.ID)+"/plan", nil)
	if err != nil {
		return plan, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return plan, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return plan, fmt.Errorf("failed to get plan: status code %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return plan, fmt.Errorf("failed to decode response body: %w", err)
	}
	if plan.ID == "" {
		plan.ID = account.PlanID
	}
	return plan, nil
}

// PlanCatalog is a BillingClient backed by a static plan table.
type PlanCatalog struct {
	plans       map[string]int
	defaultPlan string
}

// NewPlanCatalog creates a PlanCatalog from plan id to capacity.
func NewPlanCatalog(plans map[string]int, defaultPlan string) *PlanCatalog {
	normalized := make(map[string]int, len(plans))
	for id, capacity := range plans {
		normalized[strings.ToLower(id)] = capacity
	}
	return &PlanCatalog{plans: normalized, defaultPlan: strings.ToLower(defaultPlan)}
}

// GetPlan returns the catalog entry of the account's plan.
func (c *PlanCatalog) GetPlan(ctx context.Context, account *models.Account) (models.Plan, error) {
	id := strings.ToLower(account.PlanID)
	if id == "" {
		id = c.defaultPlan
	}
	capacity, ok := c.plans[id]
	if !ok {
		return models.Plan{}, fmt.Errorf("unknown plan %q", id)
	}
	if capacity < 0 {
		capacity = models.UnlimitedCapacity
	}
	return models.Plan{ID: id, Status: "active", Capacity: capacity}, nil
}

var (
	_ BillingClient = (*HTTPBillingClient)(nil)
	_ BillingClient = (*PlanCatalog)(nil)
)
