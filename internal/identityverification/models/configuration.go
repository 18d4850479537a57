package models

import (
	"slices"
	"time"
)

// Configuration is a tenant's verification type definition. It is the whole
// program the engine interprets; nothing about a type lives in code.
//
// Invariants:
//   - Type is unique per tenant
//   - A loaded Configuration is never mutated; updates apply to new calls only
type Configuration struct {
	ID           string                     `json:"id"`
	Type         string                     `json:"type"`
	Attributes   map[string]any             `json:"attributes,omitempty"`
	Common       CommonConfig               `json:"common"`
	Processes    Ordered[ProcessDefinition] `json:"processes"`
	Registration *RegistrationConfig        `json:"registration,omitempty"`
	Result       ResultConfig               `json:"result"`

	TenantID  string    `json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Enabled reports attributes.enabled; absent means enabled.
func (c *Configuration) Enabled() bool {
	v, ok := c.Attributes["enabled"]
	if !ok {
		return true
	}
	b, ok := v.(bool)
	return !ok || b
}

// Process returns the named process definition.
func (c *Configuration) Process(name string) (ProcessDefinition, bool) {
	return c.Processes.Get(name)
}

// IsApprovedStatus reports whether status finalises an application into a result.
func (c *Configuration) IsApprovedStatus(status string) bool {
	approved := c.Result.ApprovedStatuses
	if len(approved) == 0 {
		approved = []string{DefaultApprovedStatus}
	}
	return slices.Contains(approved, status)
}

// IsTerminalStatus reports whether status completes the application.
func (c *Configuration) IsTerminalStatus(status string) bool {
	return c.IsApprovedStatus(status) || status == StatusRejected || status == StatusCancelled
}

const (
	DefaultApprovedStatus = "approved"
	StatusRejected        = "rejected"
	StatusCancelled       = "cancelled"
)

// CommonConfig holds settings shared by every process of a type.
type CommonConfig struct {
	CallbackApplicationIDParam string           `json:"callback_application_id_param,omitempty"`
	ExternalService            string           `json:"external_service,omitempty"`
	AuthType                   string           `json:"auth_type,omitempty"`
	BasicAuth                  *BasicAuthConfig `json:"basic_auth,omitempty"`
}

// BasicAuthConfig is a username/password pair. Password may be a bcrypt hash.
type BasicAuthConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ResultConfig projects verified claims once an application is approved.
type ResultConfig struct {
	VerifiedClaimsMappingRules []MappingRule `json:"verified_claims_mapping_rules,omitempty"`
	SourceDetailsMappingRules  []MappingRule `json:"source_details_mapping_rules,omitempty"`
	ApprovedStatuses           []string      `json:"approved_statuses,omitempty"`
}

// RegistrationConfig drives standalone result ingestion.
type RegistrationConfig struct {
	Request  RequestConfig  `json:"request"`
	Response ResponseConfig `json:"response"`
}

// ProcessDefinition is one named step of a verification type.
type ProcessDefinition struct {
	Request      RequestConfig           `json:"request"`
	PreHook      PreHookConfig           `json:"pre_hook"`
	Execution    ExecutionConfig         `json:"execution"`
	Dependencies *Dependencies           `json:"dependencies,omitempty"`
	Transition   Ordered[TransitionRule] `json:"transition"`
	Store        StoreConfig             `json:"store"`
	Response     ResponseConfig          `json:"response"`
}

// RequestConfig carries the inbound JSON schema.
type RequestConfig struct {
	Schema map[string]any `json:"schema,omitempty"`
}

// PreHookConfig lists checks that run before execution.
type PreHookConfig struct {
	Verifications []VerificationSpec `json:"verifications,omitempty"`
}

// VerificationSpec names one pre-hook check; Details is decoded by the check itself.
type VerificationSpec struct {
	Type    string         `json:"type"`
	Details map[string]any `json:"details,omitempty"`
}

// Dependencies constrains ordering against the application's history.
type Dependencies struct {
	RequiredProcesses []string `json:"required_processes,omitempty"`
	AllowRetry        bool     `json:"allow_retry"`
}

// StoreConfig copies request/response data into application_details.
type StoreConfig struct {
	ApplicationDetailsMappingRules []MappingRule `json:"application_details_mapping_rules,omitempty"`
}

// ResponseConfig shapes the caller-visible body.
type ResponseConfig struct {
	BodyMappingRules []MappingRule `json:"body_mapping_rules,omitempty"`
}

// TransitionRule is a DNF tree: AnyOf is OR over AND-lists.
type TransitionRule struct {
	AnyOf [][]Condition `json:"any_of"`
}

// Condition is a single predicate over a JSONPath.
type Condition struct {
	Path      string `json:"path"`
	Type      string `json:"type,omitempty"`
	Operation string `json:"operation"`
	Value     any    `json:"value,omitempty"`
}

// MappingRule copies From (or StaticValue) to To. To may be "*" to merge at root.
type MappingRule struct {
	From        string `json:"from,omitempty"`
	StaticValue any    `json:"static_value,omitempty"`
	To          string `json:"to"`
}
