package models

import (
	"fmt"
	"strconv"
	"time"
)

// Result sources.
const (
	SourceApplication = "application"
	SourceCallback    = "callback"
)

// VerificationResult is the persisted outcome of an approved application or
// a directly registered result.
type VerificationResult struct {
	ID                    string         `json:"id"`
	TenantID              string         `json:"tenant_id"`
	UserID                string         `json:"user_id"`
	ApplicationID         string         `json:"application_id,omitempty"`
	Type                  string         `json:"type"`
	ExternalService       string         `json:"external_service,omitempty"`
	ExternalApplicationID string         `json:"external_application_id,omitempty"`
	VerifiedClaims        map[string]any `json:"verified_claims"`
	SourceDetails         map[string]any `json:"source_details"`
	Source                string         `json:"source"`
	VerifiedAt            time.Time      `json:"verified_at"`
	VerifiedUntil         *time.Time     `json:"verified_until,omitempty"`
}

// ResultQuery filters the owner's result list.
type ResultQuery struct {
	TenantID          string
	UserID            string
	ID                string
	ApplicationID     string
	Type              string
	Source            string
	VerifiedAtFrom    *time.Time
	VerifiedAtTo      *time.Time
	VerifiedUntilFrom *time.Time
	VerifiedUntilTo   *time.Time
	Limit             int
	Offset            int
}

// Matches reports whether r satisfies every set filter.
func (q ResultQuery) Matches(r *VerificationResult) bool {
	switch {
	case q.TenantID != "" && r.TenantID != q.TenantID:
		return false
	case q.UserID != "" && r.UserID != q.UserID:
		return false
	case q.ID != "" && r.ID != q.ID:
		return false
	case q.ApplicationID != "" && r.ApplicationID != q.ApplicationID:
		return false
	case q.Type != "" && r.Type != q.Type:
		return false
	case q.Source != "" && r.Source != q.Source:
		return false
	case q.VerifiedAtFrom != nil && r.VerifiedAt.Before(*q.VerifiedAtFrom):
		return false
	case q.VerifiedAtTo != nil && r.VerifiedAt.After(*q.VerifiedAtTo):
		return false
	}
	if q.VerifiedUntilFrom != nil || q.VerifiedUntilTo != nil {
		if r.VerifiedUntil == nil {
			return false
		}
		if q.VerifiedUntilFrom != nil && r.VerifiedUntil.Before(*q.VerifiedUntilFrom) {
			return false
		}
		if q.VerifiedUntilTo != nil && r.VerifiedUntil.After(*q.VerifiedUntilTo) {
			return false
		}
	}
	return true
}

// Page is one window of a filtered list.
type Page[T any] struct {
	List       []T `json:"list"`
	TotalCount int `json:"total_count"`
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
