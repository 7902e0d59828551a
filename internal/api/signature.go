package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"workflowguard/backend/internal/services"
)

const (
	hubSpotSignatureHeader = "X-HubSpot-Signature-v3"
	hubSpotTimestampHeader = "X-HubSpot-Request-Timestamp"

	// maxWebhookAge bounds how old a signed request may be.
	maxWebhookAge = 5 * time.Minute
)

// WebhookVerifier checks the v3 signature HubSpot attaches to webhook
// deliveries: base64(HMAC-SHA256(clientSecret, method + uri + body + timestamp)).
type WebhookVerifier struct {
	secret    []byte
	publicURL string
	clock     services.Clock
}

// NewWebhookVerifier creates a verifier for the app's client secret.
// publicURL is the scheme and host HubSpot calls; when empty the request's
// own host is used.
func NewWebhookVerifier(clientSecret, publicURL string, clock services.Clock) *WebhookVerifier {
	if clock == nil {
		clock = services.SystemClock
	}
	return &WebhookVerifier{
		secret:    []byte(clientSecret),
		publicURL: strings.TrimRight(publicURL, "/"),
		clock:     clock,
	}
}

// Verify rejects requests with a missing, stale or mismatched signature.
func (v *WebhookVerifier) Verify(r *http.Request, body []byte) error {
	signature := r.Header.Get(hubSpotSignatureHeader)
	rawTimestamp := r.Header.Get(hubSpotTimestampHeader)
	if signature == "" || rawTimestamp == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing webhook signature")
	}

	millis, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook timestamp")
	}
	age := v.clock().Sub(time.UnixMilli(millis))
	if age > maxWebhookAge || age < -maxWebhookAge {
		return echo.NewHTTPError(http.StatusUnauthorized, "webhook timestamp outside the accepted window")
	}

	expected := v.Sign(r.Method, v.requestURI(r), body, rawTimestamp)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook signature")
	}
	return nil
}

// Sign computes the signature HubSpot sends for a request.
func (v *WebhookVerifier) Sign(method, uri string, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(method))
	mac.Write([]byte(uri))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (v *WebhookVerifier) requestURI(r *http.Request) string {
	if v.publicURL != "" {
		return v.publicURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
