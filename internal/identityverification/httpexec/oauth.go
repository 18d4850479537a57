package httpexec

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"idverify/internal/identityverification/models"
	"idverify/pkg/requestcontext"
)

// OAuth grant types accepted in oauth_authorization.type.
const (
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
)

// tokenExpiryLeeway refreshes tokens slightly before the issuer expires them.
const tokenExpiryLeeway = 30 * time.Second

// TokenSource fetches and caches upstream OAuth access tokens.
type TokenSource struct {
	cache  *gocache.Cache
	client *http.Client
}

// NewTokenSource returns a TokenSource that talks to token endpoints through
// client. Tokens without an expiry are cached for defaultTTL.
func NewTokenSource(client *http.Client, defaultTTL time.Duration) *TokenSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &TokenSource{
		cache:  gocache.New(defaultTTL, 2*defaultTTL),
		client: client,
	}
}

// Token returns a cached token or obtains a new one. Cached tokens are
// scoped to the tenant in ctx and to the full credential set, so a
// configuration with a different secret always reaches the token endpoint.
func (s *TokenSource) Token(ctx context.Context, authType string, cfg *models.OAuthConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("auth_type %s requires oauth_authorization", authType)
	}
	key, err := cacheKey(requestcontext.TenantID(ctx), authType, cfg)
	if err != nil {
		return "", err
	}
	if cached, ok := s.cache.Get(key); ok {
		return cached.(string), nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	scopes := strings.Fields(cfg.Scope)

	grant := cfg.Type
	if authType == models.AuthOAuth2ClientCredentials || grant == "" {
		grant = GrantClientCredentials
	}

	var tok *oauth2.Token
	switch grant {
	case GrantClientCredentials:
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenEndpoint,
			Scopes:       scopes,
		}
		tok, err = cc.Token(ctx)
	case GrantPassword:
		pc := oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenEndpoint},
			Scopes:       scopes,
		}
		tok, err = pc.PasswordCredentialsToken(ctx, cfg.Username, cfg.Password)
	default:
		return "", fmt.Errorf("unsupported oauth grant %q", grant)
	}
	if err != nil {
		return "", fmt.Errorf("fetch oauth token: %w", err)
	}

	ttl := gocache.DefaultExpiration
	if !tok.Expiry.IsZero() {
		ttl = time.Until(tok.Expiry) - tokenExpiryLeeway
		if ttl <= 0 {
			ttl = time.Second
		}
	}
	s.cache.Set(key, tok.AccessToken, ttl)
	return tok.AccessToken, nil
}

// Invalidate drops the cached token for cfg under the tenant in ctx.
func (s *TokenSource) Invalidate(ctx context.Context, authType string, cfg *models.OAuthConfig) {
	if cfg == nil {
		return
	}
	key, err := cacheKey(requestcontext.TenantID(ctx), authType, cfg)
	if err != nil {
		return
	}
	s.cache.Delete(key)
}

// cacheKey is the tenant followed by a digest of every credential field.
func cacheKey(tenantID, authType string, cfg *models.OAuthConfig) (string, error) {
	raw, err := json.Marshal(struct {
		AuthType string              `json:"auth_type"`
		Config   *models.OAuthConfig `json:"config"`
	}{authType, cfg})
	if err != nil {
		return "", fmt.Errorf("encode oauth cache key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return tenantID + ":" + hex.EncodeToString(sum[:]), nil
}
