package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"aigc-bridge/internal/metrics"
)

const (
	// DefaultAuthority is the identity endpoint host used when none is configured.
	DefaultAuthority = "https://login.microsoftonline.com"

	defaultTokenTimeout = 60 * time.Second
)

// TokenSource yields the bearer credential attached to chat requests.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// ClientCredentials holds an app registration's client-credentials grant inputs.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	TenantID     string

	// Authority overrides DefaultAuthority (sovereign clouds, tests).
	Authority string
}

// Validate checks required fields only.
func (c ClientCredentials) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if c.TenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// TokenURL is the tenant-scoped v2.0 token endpoint.
func (c ClientCredentials) TokenURL() string {
	authority := strings.TrimRight(c.Authority, "/")
	if authority == "" {
		authority = DefaultAuthority
	}
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", authority, c.TenantID)
}

// Scope is the ".default" scope of the client's own application id.
func (c ClientCredentials) Scope() string {
	return c.ClientID + "/.default"
}

// OAuthProvider exchanges client credentials for an access token.
// Tokens are not cached: every AccessToken call hits the token endpoint.
type OAuthProvider struct {
	creds      ClientCredentials
	oauthCfg   *clientcredentials.Config
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// NewOAuthProvider validates creds and builds a provider. A nil httpClient
// uses http.DefaultClient; a nil logger is replaced by a no-op.
func NewOAuthProvider(creds ClientCredentials, httpClient *http.Client, logger *zap.Logger) (*OAuthProvider, error) {
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("auth: invalid credentials: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OAuthProvider{
		creds: creds,
		oauthCfg: &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL(),
			Scopes:       []string{creds.Scope()},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
		timeout:    defaultTokenTimeout,
		logger:     logger.Named("auth"),
	}, nil
}

// AccessToken performs one client_credentials exchange and returns access_token.
func (p *OAuthProvider) AccessToken(parentCtx context.Context) (string, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(parentCtx, p.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.oauthCfg.Token(ctx)
	if err != nil {
		metrics.TokenFetchesTotal.WithLabelValues("error").Inc()

		fields := []zap.Field{
			zap.String("tenant_id", p.creds.TenantID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		}
		if status := StatusCode(err); status != 0 {
			fields = append(fields, zap.Int("status", status))
		}
		p.logger.Error("token request failed", fields...)
		return "", fmt.Errorf("auth: fetch token: %w", err)
	}

	metrics.TokenFetchesTotal.WithLabelValues("ok").Inc()
	p.logger.Debug("token acquired",
		zap.String("tenant_id", p.creds.TenantID),
		zap.Duration("duration", time.Since(start)),
	)
	return tok.AccessToken, nil
}

// StatusCode returns the HTTP status of a failed token exchange, or 0.
func StatusCode(err error) int {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		return rerr.Response.StatusCode
	}
	return 0
}

// StaticKey is a pre-issued API key used by the alternate backend.
type StaticKey string

func (k StaticKey) AccessToken(context.Context) (string, error) {
	if k == "" {
		return "", errors.New("auth: api key is empty")
	}
	return string(k), nil
}
