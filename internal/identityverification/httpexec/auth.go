package httpexec

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"idverify/internal/identityverification/models"
)

// DefaultSignatureFormat renders the HMAC Authorization header.
const DefaultSignatureFormat = "HmacSHA256 apiKey={api_key}, signature={signature}, timestamp={timestamp}"

var defaultSigningFields = []string{"method", "path", "timestamp", "body"}

// applyStaticAuth sets the Authorization header for the auth types that need
// no token round-trip. OAuth is handled by the executor.
func applyStaticAuth(req *http.Request, cfg *models.HTTPRequestConfig, body []byte, now time.Time) error {
	switch cfg.AuthType {
	case "", models.AuthNone:
		return nil
	case models.AuthBasic:
		if cfg.BasicAuth == nil {
			return fmt.Errorf("auth_type basic requires basic_auth")
		}
		req.SetBasicAuth(cfg.BasicAuth.Username, cfg.BasicAuth.Password)
		return nil
	case models.AuthBearer:
		if cfg.BearerToken == "" {
			return fmt.Errorf("auth_type bearer requires bearer_token")
		}
		req.Header.Set("Authorization", "Bearer "+cfg.BearerToken)
		return nil
	case models.AuthHMACSHA256:
		if cfg.HMACAuthentication == nil {
			return fmt.Errorf("auth_type hmac_sha256 requires hmac_authentication")
		}
		req.Header.Set("Authorization", SignHMAC(cfg.HMACAuthentication, req.Method, req.URL.Path, body, now))
		return nil
	case models.AuthOAuth2, models.AuthOAuth2ClientCredentials:
		return nil
	default:
		return fmt.Errorf("unsupported auth_type %q", cfg.AuthType)
	}
}

// SignHMAC returns the Authorization value for an HMAC-SHA256 signed request.
// The signed payload is the configured fields joined by newlines.
func SignHMAC(cfg *models.HMACConfig, method, path string, body []byte, now time.Time) string {
	timestamp := now.UTC().Format(time.RFC3339)
	fields := cfg.SigningFields
	if len(fields) == 0 {
		fields = defaultSigningFields
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f {
		case "method":
			parts = append(parts, strings.ToUpper(method))
		case "path":
			parts = append(parts, path)
		case "timestamp":
			parts = append(parts, timestamp)
		case "body":
			parts = append(parts, string(body))
		}
	}

	mac := hmac.New(sha256.New, []byte(cfg.Secret))
	mac.Write([]byte(strings.Join(parts, "\n")))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	format := cfg.SignatureFormat
	if format == "" {
		format = DefaultSignatureFormat
	}
	return strings.NewReplacer(
		"{api_key}", cfg.APIKey,
		"{signature}", signature,
		"{timestamp}", timestamp,
	).Replace(format)
}
