package management

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	"idverify/internal/identityverification/condition"
	"idverify/internal/identityverification/httpexec"
	"idverify/internal/identityverification/mapping"
	"idverify/internal/identityverification/models"
	"idverify/internal/identityverification/prehook"
	"idverify/internal/identityverification/schema"
)

// validator accumulates every problem in a configuration rather than
// stopping at the first.
type validator struct {
	prehooks *prehook.Validator
	messages []string
}

func (v *validator) add(format string, args ...any) {
	v.messages = append(v.messages, fmt.Sprintf(format, args...))
}

// Validate returns every violation found in cfg, in document order.
func Validate(cfg *models.Configuration, prehooks *prehook.Validator) []string {
	if prehooks == nil {
		prehooks = prehook.New()
	}
	v := &validator{prehooks: prehooks}
	v.configuration(cfg)
	return v.messages
}

func (v *validator) configuration(cfg *models.Configuration) {
	if cfg.ID != "" {
		if _, err := uuid.Parse(cfg.ID); err != nil {
			v.add("id must be a UUID")
		}
	}
	if strings.TrimSpace(cfg.Type) == "" {
		v.add("type is required")
	}
	if cfg.Common.AuthType != "" && cfg.Common.AuthType != models.AuthNone && cfg.Common.AuthType != models.AuthBasic {
		v.add("common.auth_type %s is not supported", cfg.Common.AuthType)
	}
	if cfg.Common.AuthType == models.AuthBasic && (cfg.Common.BasicAuth == nil || cfg.Common.BasicAuth.Username == "") {
		v.add("common.basic_auth is required when auth_type is basic")
	}

	if cfg.Processes.Len() == 0 {
		v.add("processes must declare at least one process")
	}
	for _, name := range cfg.Processes.Keys() {
		def, _ := cfg.Processes.Get(name)
		v.process("processes."+name, def)
	}

	if cfg.Registration != nil {
		v.schema("registration.request.schema", cfg.Registration.Request.Schema)
		v.rules("registration.response.body_mapping_rules", cfg.Registration.Response.BodyMappingRules)
	}
	v.rules("result.verified_claims_mapping_rules", cfg.Result.VerifiedClaimsMappingRules)
	v.rules("result.source_details_mapping_rules", cfg.Result.SourceDetailsMappingRules)
}

func (v *validator) process(prefix string, def models.ProcessDefinition) {
	v.schema(prefix+".request.schema", def.Request.Schema)

	for i, spec := range def.PreHook.Verifications {
		if !v.prehooks.Supports(spec.Type) {
			v.add("%s.pre_hook.verifications[%d].type %s is not supported", prefix, i, spec.Type)
		}
	}
	if def.Dependencies != nil {
		for i, p := range def.Dependencies.RequiredProcesses {
			if strings.TrimSpace(p) == "" {
				v.add("%s.dependencies.required_processes[%d] is empty", prefix, i)
			}
		}
	}

	v.execution(prefix+".execution", def.Execution)

	for _, status := range def.Transition.Keys() {
		rule, _ := def.Transition.Get(status)
		for i, group := range rule.AnyOf {
			v.conditions(fmt.Sprintf("%s.transition.%s.any_of[%d]", prefix, status, i), group, 0)
		}
	}
	v.rules(prefix+".store.application_details_mapping_rules", def.Store.ApplicationDetailsMappingRules)
	v.rules(prefix+".response.body_mapping_rules", def.Response.BodyMappingRules)
}

func (v *validator) execution(prefix string, cfg models.ExecutionConfig) {
	switch cfg.Type {
	case models.ExecutionNoAction, models.ExecutionMock:
		return
	case models.ExecutionHTTPRequest:
	case "":
		v.add("%s.type is required", prefix)
		return
	default:
		v.add("%s.type %s is not supported", prefix, cfg.Type)
		return
	}

	h := cfg.HTTPRequest
	if h == nil {
		v.add("%s.http_request is required", prefix)
		return
	}
	prefix += ".http_request"
	if h.URL == "" {
		v.add("%s.url is required", prefix)
	}
	switch strings.ToUpper(h.Method) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	case "":
		v.add("%s.method is required", prefix)
	default:
		v.add("%s.method %s is not supported", prefix, h.Method)
	}
	switch h.AuthType {
	case "", models.AuthNone, models.AuthBearer, models.AuthOAuth2, models.AuthOAuth2ClientCredentials:
	case models.AuthBasic:
		if h.BasicAuth == nil {
			v.add("%s.basic_auth is required when auth_type is basic", prefix)
		}
	case models.AuthHMACSHA256:
		if h.HMACAuthentication == nil || h.HMACAuthentication.Secret == "" {
			v.add("%s.hmac_authentication.secret is required when auth_type is hmac_sha256", prefix)
		}
	default:
		v.add("%s.auth_type %s is not supported", prefix, h.AuthType)
	}
	if h.OAuthAuthorization != nil && h.OAuthAuthorization.TokenEndpoint == "" {
		v.add("%s.oauth_authorization.token_endpoint is required", prefix)
	}
	if h.RetryConfiguration != nil {
		if h.RetryConfiguration.MaxRetries < 0 {
			v.add("%s.retry_configuration.max_retries must not be negative", prefix)
		}
		if _, err := httpexec.ParseBackoffDelays(h.RetryConfiguration.BackoffDelays); err != nil {
			v.add("%s.retry_configuration.backoff_delays: %v", prefix, err)
		}
	}

	v.rules(prefix+".path_mapping_rules", h.PathMappingRules)
	v.rules(prefix+".header_mapping_rules", h.HeaderMappingRules)
	v.rules(prefix+".body_mapping_rules", h.BodyMappingRules)
	v.rules(prefix+".query_mapping_rules", h.QueryMappingRules)

	for i, rc := range h.ResponseResolveConfigs {
		p := fmt.Sprintf("%s.response_resolve_configs[%d]", prefix, i)
		if rc.MatchMode != "" && !strings.EqualFold(rc.MatchMode, models.MatchModeAll) && !strings.EqualFold(rc.MatchMode, models.MatchModeAny) {
			v.add("%s.match_mode must be ALL or ANY", p)
		}
		if rc.MappedStatusCode < 100 || rc.MappedStatusCode > 599 {
			v.add("%s.mapped_status_code must be an HTTP status", p)
		}
		v.conditions(p+".conditions", rc.Conditions, 0)
	}
}

func (v *validator) conditions(prefix string, conds []models.Condition, depth int) {
	if depth > condition.MaxDepth {
		v.add("%s nests deeper than %d levels", prefix, condition.MaxDepth)
		return
	}
	for i, c := range conds {
		p := fmt.Sprintf("%s[%d]", prefix, i)
		if !condition.Known(c.Operation) {
			v.add("%s.operation %s is not supported", p, c.Operation)
			continue
		}
		if c.Operation == condition.OpAllOf || c.Operation == condition.OpAnyOf {
			nested, err := condition.Nested(c.Value)
			if err != nil {
				v.add("%s.value: %v", p, err)
				continue
			}
			v.conditions(p+".value", nested, depth+1)
			continue
		}
		v.path(p+".path", c.Path)
		if c.Operation == condition.OpRegex {
			pattern, ok := c.Value.(string)
			if !ok {
				v.add("%s.value must be a string", p)
			} else if err := schema.CheckPattern(pattern); err != nil {
				v.add("%s.value: %v", p, err)
			}
		}
	}
}

func (v *validator) rules(prefix string, rules []models.MappingRule) {
	for i, rule := range rules {
		p := fmt.Sprintf("%s[%d]", prefix, i)
		if rule.To == "" {
			v.add("%s.to is required", p)
		}
		if rule.StaticValue != nil {
			continue
		}
		if rule.From == "" {
			v.add("%s needs from or static_value", p)
			continue
		}
		v.path(p+".from", rule.From)
	}
}

func (v *validator) path(prefix, path string) {
	if path == "" {
		v.add("%s is required", prefix)
		return
	}
	if _, err := mapping.Parse(path); err != nil {
		v.add("%s: %v", prefix, err)
	}
}

func (v *validator) schema(prefix string, s map[string]any) {
	if len(s) == 0 {
		return
	}
	if typ, ok := s["type"]; ok && typ != "object" {
		v.add("%s.type must be object", prefix)
	}
	v.patterns(prefix, s, 0)
}

// patterns walks a schema checking every pattern compiles.
func (v *validator) patterns(prefix string, s map[string]any, depth int) {
	if depth > condition.MaxDepth {
		return
	}
	if p, ok := s["pattern"].(string); ok {
		if err := schema.CheckPattern(p); err != nil {
			v.add("%s.pattern: %v", prefix, err)
		}
	}
	if props, ok := s["properties"].(map[string]any); ok {
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if child, ok := props[name].(map[string]any); ok {
				v.patterns(prefix+".properties."+name, child, depth+1)
			}
		}
	}
	if items, ok := s["items"].(map[string]any); ok {
		v.patterns(prefix+".items", items, depth+1)
	}
}
