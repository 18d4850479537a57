package models

// ExecutionType discriminates ExecutionConfig.
type ExecutionType string

const (
	ExecutionNoAction    ExecutionType = "no_action"
	ExecutionMock        ExecutionType = "mock"
	ExecutionHTTPRequest ExecutionType = "http_request"
)

// ExecutionConfig is a tagged variant: only the member named by Type is read.
type ExecutionConfig struct {
	Type        ExecutionType      `json:"type"`
	Mock        *MockConfig        `json:"mock,omitempty"`
	HTTPRequest *HTTPRequestConfig `json:"http_request,omitempty"`
}

// MockConfig returns a fixed response.
type MockConfig struct {
	StatusCode   int            `json:"status_code,omitempty"`
	ResponseBody map[string]any `json:"response_body,omitempty"`
}

// Auth types accepted by http_request executions.
const (
	AuthNone                    = "none"
	AuthBasic                   = "basic"
	AuthBearer                  = "bearer"
	AuthHMACSHA256              = "hmac_sha256"
	AuthOAuth2                  = "oauth2"
	AuthOAuth2ClientCredentials = "oauth2_client_credentials"
)

// HTTPRequestConfig describes one outbound call.
type HTTPRequestConfig struct {
	URL                    string                  `json:"url"`
	Method                 string                  `json:"method"`
	AuthType               string                  `json:"auth_type,omitempty"`
	RequestTimeoutSeconds  int                     `json:"request_timeout_seconds,omitempty"`
	PathMappingRules       []MappingRule           `json:"path_mapping_rules,omitempty"`
	HeaderMappingRules     []MappingRule           `json:"header_mapping_rules,omitempty"`
	BodyMappingRules       []MappingRule           `json:"body_mapping_rules,omitempty"`
	QueryMappingRules      []MappingRule           `json:"query_mapping_rules,omitempty"`
	BasicAuth              *BasicAuthConfig        `json:"basic_auth,omitempty"`
	BearerToken            string                  `json:"bearer_token,omitempty"`
	HMACAuthentication     *HMACConfig             `json:"hmac_authentication,omitempty"`
	OAuthAuthorization     *OAuthConfig            `json:"oauth_authorization,omitempty"`
	RetryConfiguration     *RetryConfiguration     `json:"retry_configuration,omitempty"`
	ResponseResolveConfigs []ResponseResolveConfig `json:"response_resolve_configs,omitempty"`
}

// HMACConfig signs requests with a shared secret.
type HMACConfig struct {
	APIKey          string   `json:"api_key"`
	Secret          string   `json:"secret"`
	SigningFields   []string `json:"signing_fields,omitempty"`
	SignatureFormat string   `json:"signature_format,omitempty"`
}

// OAuthConfig obtains an access token before the call.
type OAuthConfig struct {
	Type          string `json:"type"`
	TokenEndpoint string `json:"token_endpoint"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret,omitempty"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	Scope         string `json:"scope,omitempty"`
}

// RetryConfiguration tunes the executor's retry loop.
type RetryConfiguration struct {
	MaxRetries           int      `json:"max_retries"`
	RetryableStatusCodes []int    `json:"retryable_status_codes,omitempty"`
	IdempotencyRequired  bool     `json:"idempotency_required"`
	BackoffDelays        []string `json:"backoff_delays,omitempty"`
}

// Match modes for ResponseResolveConfig.
const (
	MatchModeAll = "ALL"
	MatchModeAny = "ANY"
)

// ResponseResolveConfig overrides the caller-visible status when its
// conditions match the upstream response.
type ResponseResolveConfig struct {
	Conditions       []Condition `json:"conditions"`
	MatchMode        string      `json:"match_mode,omitempty"`
	MappedStatusCode int         `json:"mapped_status_code"`
}
