// Package events publishes identity-verification security events. Publishing
// never blocks or fails a verification call: events are buffered and flushed
// to a Sink in the background.
package events

import (
	"context"
	"time"
)

// Event types.
const (
	TypeApplicationPrefix  = "identity_verification_application_"
	TypeApplicationFailure = "identity_verification_application_failure"
	TypeResultRegistered   = "identity_verification_result_registered"
)

// Event is one security event. Detail carries type-specific fields such as
// execution_result.
type Event struct {
	ID               string         `json:"id"`
	Type             string         `json:"type"`
	TenantID         string         `json:"tenant_id"`
	UserID           string         `json:"user_id,omitempty"`
	ClientID         string         `json:"client_id,omitempty"`
	VerificationType string         `json:"verification_type"`
	ApplicationID    string         `json:"application_id,omitempty"`
	Process          string         `json:"process,omitempty"`
	RequestID        string         `json:"request_id,omitempty"`
	Detail           map[string]any `json:"detail,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

// ApplicationType names the success event for process.
func ApplicationType(process string) string {
	return TypeApplicationPrefix + process
}

// Sink delivers a batch of events to a transport.
type Sink interface {
	Write(ctx context.Context, batch []Event) error
	Close() error
}
