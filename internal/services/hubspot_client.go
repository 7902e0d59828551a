package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/pkg/models"
)

// ErrForeignPortal is returned for flows of a portal the configured token
// cannot read.
var ErrForeignPortal = errors.New("portal not served by this client")

// HubSpotClient fetches workflow definitions from the HubSpot automation API.
// It holds a single private app token, and a private app token is scoped to
// one portal, so one client serves one portal.
type HubSpotClient struct {
	baseURL  string
	portalID int64
	client   *http.Client
}

// NewHubSpotClient creates a HubSpotClient authenticating with a private app
// access token issued by portalID. A zero portalID skips the portal check.
func NewHubSpotClient(baseURL, accessToken string, portalID int64, timeout time.Duration) *HubSpotClient {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return &HubSpotClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		portalID: portalID,
		client:   oauth2.NewClient(ctx, src),
	}
}

// FetchWorkflow returns the current definition of a HubSpot flow.
func (c *HubSpotClient) FetchWorkflow(ctx context.Context, portalID int64, sourceID string) (*SourceWorkflow, error) {
	if c.portalID != 0 && portalID != c.portalID {
		return nil, fmt.Errorf("%w: portal %d, the access token belongs to portal %d", ErrForeignPortal, portalID, c.portalID)
	}

	endpoint := c.baseURL + "/automation/v4/flows/" + url.PathEscape(sourceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch flow %s of portal %d: %w", sourceID, portalID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFound("hubspot flow", sourceID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("failed to fetch flow %s of portal %d: status code %d", sourceID, portalID, resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var data models.Document
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode flow %s: %w", sourceID, err)
	}
	if data == nil {
		data = models.Document{}
	}

	name, _ := data["name"].(string)
	if name == "" {
		name = "HubSpot workflow " + sourceID
	}
	return &SourceWorkflow{Name: name, Data: data}, nil
}

var _ WorkflowSource = (*HubSpotClient)(nil)
