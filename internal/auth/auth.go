package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"workflowguard/backend/internal/apperrors"
	"workflowguard/backend/internal/config"
	"workflowguard/backend/internal/repository"
	"workflowguard/backend/pkg/models"

	"github.com/coreos/go-oidc"
	"golang.org/x/oauth2"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// DevEmail is the identity assumed when authentication is bypassed.
const DevEmail = "dev@localhost"

// Identity is the authenticated caller of a request.
type Identity struct {
	AccountID string
	UserID    string
	Email     string
	Name      string
}

// Actor returns the audit actor for the identity.
func (i Identity) Actor() models.Actor {
	if i.UserID == "" {
		return models.SystemActorRef()
	}
	return models.UserActor(i.UserID, i.Name)
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by RequireAuth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.AccountID != ""
}

// Auth contains configuration and helpers for performing OpenID Connect
// authentication with an Okta tenant.
type Auth struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	apiVerifier  *oidc.IDTokenVerifier
	accounts     repository.AccountStore
	defaultPlan  string
	logger       Logger
	devMode      bool
	authBypass   bool
}

// New creates a new Auth object using values from the application
// configuration. It establishes a connection to the provider and prepares an
// ID token verifier.
func New(ctx context.Context, cfg *config.Config, accounts repository.AccountStore, logger Logger) (*Auth, error) {
	isDev := cfg.IsDev()
	shouldBypass := isDev && cfg.DevModeBypass

	var oauth2Config *oauth2.Config
	var verifier *oidc.IDTokenVerifier
	var apiVerifier *oidc.IDTokenVerifier

	if !shouldBypass {
		if cfg.Auth.OktaDomain == "" || cfg.Auth.ClientID == "" ||
			cfg.Auth.ClientSecret == "" || cfg.Auth.RedirectURL == "" {
			return nil, errors.New("auth configuration is incomplete")
		}

		provider, err := oidc.NewProvider(ctx, cfg.Auth.OktaDomain)
		if err != nil {
			return nil, err
		}

		oauth2Config = &oauth2.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.Auth.RedirectURL,
			Scopes:       []string{ScopeOpenID, ScopeProfile, ScopeEmail},
		}

		verifier = provider.Verifier(&oidc.Config{ClientID: cfg.Auth.ClientID})

		// Access tokens carry the API audience, not the client ID.
		apiVerifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	}

	return &Auth{
		oauth2Config: oauth2Config,
		verifier:     verifier,
		apiVerifier:  apiVerifier,
		accounts:     accounts,
		defaultPlan:  cfg.Billing.DefaultPlan,
		logger:       logger,
		devMode:      isDev,
		authBypass:   shouldBypass,
	}, nil
}

// Bypassed reports whether authentication is disabled for local development.
func (a *Auth) Bypassed() bool {
	return a.authBypass
}

// LoginHandler initiates the OAuth2 authorization code flow by redirecting the
// user to the Okta authorization endpoint. A random state value is stored in a
// cookie to mitigate CSRF attacks.
func (a *Auth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	state, err := generateState()
	if err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		HttpOnly: true,
		Path:     "/",
		Secure:   !a.devMode,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, a.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler handles the redirect back from Okta. It verifies the state
// parameter, exchanges the code for tokens, validates the ID token, and sets a
// session cookie containing the raw ID token.
func (a *Auth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	cookie, err := r.Cookie("oauthstate")
	if err != nil || r.URL.Query().Get("state") != cookie.Value {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	token, err := a.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no id_token in token response", http.StatusInternalServerError)
		return
	}

	if _, err := a.verifier.Verify(r.Context(), rawIDToken); err != nil {
		http.Error(w, "failed to verify id token", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "id_token",
		Value:    rawIDToken,
		HttpOnly: true,
		Path:     "/",
		Secure:   !a.devMode,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type claims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// RequireAuth is middleware that ensures a valid bearer token or ID token
// cookie is present and resolves the caller's account from the email domain.
// Browsers without a session are redirected to the login page.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c claims

		if a.authBypass {
			c = claims{Subject: "dev", Email: DevEmail, Name: "Developer"}
		} else {
			var token *oidc.IDToken
			var err error

			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				rawToken := strings.TrimPrefix(authHeader, "Bearer ")
				token, err = a.apiVerifier.Verify(r.Context(), rawToken)
				if err != nil {
					http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
					return
				}
			} else {
				cookie, err := r.Cookie("id_token")
				if err != nil {
					http.Redirect(w, r, "/login", http.StatusSeeOther)
					return
				}
				token, err = a.verifier.Verify(r.Context(), cookie.Value)
				if err != nil {
					http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
					return
				}
			}

			if err := token.Claims(&c); err != nil {
				http.Error(w, "failed to parse token claims", http.StatusUnauthorized)
				return
			}
		}

		domain, ok := emailDomain(c.Email)
		if !ok {
			http.Error(w, "invalid email format in token", http.StatusUnauthorized)
			return
		}

		account, err := a.resolveAccount(r.Context(), domain)
		if err != nil {
			if a.logger != nil {
				a.logger.Error("failed to resolve account", "domain", domain, "error", err)
			}
			http.Error(w, "failed to resolve account", http.StatusServiceUnavailable)
			return
		}

		name := c.Name
		if name == "" {
			name = c.Email
		}
		userID := c.Subject
		if userID == "" {
			userID = c.Email
		}
		ctx := WithIdentity(r.Context(), Identity{
			AccountID: account.ID,
			UserID:    userID,
			Email:     c.Email,
			Name:      name,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveAccount looks up the account owning domain, provisioning one on the
// default plan the first time a domain signs in.
func (a *Auth) resolveAccount(ctx context.Context, domain string) (*models.Account, error) {
	account, err := a.accounts.GetAccountByDomain(ctx, domain)
	if err == nil {
		return account, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	account = &models.Account{Name: domain, Domain: domain, PlanID: a.defaultPlan}
	if err := a.accounts.CreateAccount(ctx, account); err != nil {
		if apperrors.IsConflict(err) {
			return a.accounts.GetAccountByDomain(ctx, domain)
		}
		return nil, err
	}
	if a.logger != nil {
		a.logger.Info("Provisioned account", "account_id", account.ID, "domain", domain)
	}
	return account, nil
}

// LogoutHandler clears the session cookie and redirects to the home page.
func (a *Auth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   "id_token",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func emailDomain(email string) (string, bool) {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return strings.ToLower(parts[1]), true
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
