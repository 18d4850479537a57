package models

import (
	"maps"
	"time"
)

// StatusRequested is the status of an application before any transition matched.
const StatusRequested = "requested"

// Application is one user's run through a verification type.
//
// Invariants:
//   - TenantID, UserID and Type never change after creation
//   - Processes only grows; counters never decrease
//   - Version increases by one on every persisted write
type Application struct {
	ID                         string                   `json:"id"`
	Type                       string                   `json:"type"`
	TenantID                   string                   `json:"tenant_id"`
	ClientID                   string                   `json:"client_id"`
	UserID                     string                   `json:"user_id"`
	Status                     string                   `json:"status"`
	ApplicationDetails         map[string]any           `json:"application_details"`
	ExternalService            string                   `json:"external_service"`
	ExternalApplicationID      string                   `json:"external_application_id"`
	ExternalApplicationDetails map[string]any           `json:"external_application_details"`
	Processes                  map[string]ProcessResult `json:"processes"`
	RequestedAt                time.Time                `json:"requested_at"`
	CompletedAt                *time.Time               `json:"completed_at,omitempty"`
	Version                    int64                    `json:"-"`
}

// ProcessResult counts executions of one process.
type ProcessResult struct {
	CallCount    int `json:"call_count"`
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// NewApplication creates an application in the requested state.
func NewApplication(id, tenantID, clientID, userID, verificationType string, now time.Time) *Application {
	return &Application{
		ID:                         id,
		Type:                       verificationType,
		TenantID:                   tenantID,
		ClientID:                   clientID,
		UserID:                     userID,
		Status:                     StatusRequested,
		ApplicationDetails:         map[string]any{},
		ExternalApplicationDetails: map[string]any{},
		Processes:                  map[string]ProcessResult{},
		RequestedAt:                now,
	}
}

// CompletedProcesses returns the processes that succeeded at least once.
func (a *Application) CompletedProcesses() map[string]bool {
	if a == nil {
		return map[string]bool{}
	}
	done := make(map[string]bool, len(a.Processes))
	for name, r := range a.Processes {
		if r.SuccessCount > 0 {
			done[name] = true
		}
	}
	return done
}

// RecordSuccess counts a successful execution of process.
func (a *Application) RecordSuccess(process string) {
	r := a.Processes[process]
	r.CallCount++
	r.SuccessCount++
	a.Processes[process] = r
}

// RecordFailure counts a failed execution of process.
func (a *Application) RecordFailure(process string) {
	r := a.Processes[process]
	r.CallCount++
	r.FailureCount++
	a.Processes[process] = r
}

// Transit moves the application to status, stamping completion for terminal statuses.
func (a *Application) Transit(status string, terminal bool, now time.Time) {
	a.Status = status
	if terminal && a.CompletedAt == nil {
		t := now
		a.CompletedAt = &t
	}
}

// Clone returns a copy that shares no mutable state with a. Mapping rules
// write into nested objects in place, so the detail documents are copied
// all the way down.
func (a *Application) Clone() *Application {
	c := *a
	c.ApplicationDetails = CopyDocument(a.ApplicationDetails)
	c.ExternalApplicationDetails = CopyDocument(a.ExternalApplicationDetails)
	c.Processes = maps.Clone(a.Processes)
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// CopyDocument deep-copies a decoded JSON object.
func CopyDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CopyDocument(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}

// Document is the application as seen by mapping rules and conditions.
func (a *Application) Document() map[string]any {
	if a == nil {
		return nil
	}
	processes := make(map[string]any, len(a.Processes))
	for name, r := range a.Processes {
		processes[name] = map[string]any{
			"call_count":    r.CallCount,
			"success_count": r.SuccessCount,
			"failure_count": r.FailureCount,
		}
	}
	return map[string]any{
		"id":                           a.ID,
		"type":                         a.Type,
		"status":                       a.Status,
		"user_id":                      a.UserID,
		"client_id":                    a.ClientID,
		"application_details":          a.ApplicationDetails,
		"external_service":             a.ExternalService,
		"external_application_id":      a.ExternalApplicationID,
		"external_application_details": a.ExternalApplicationDetails,
		"processes":                    processes,
		"requested_at":                 a.RequestedAt.Format(time.RFC3339),
	}
}

// ApplicationQuery filters the owner's application list.
type ApplicationQuery struct {
	TenantID              string
	UserID                string
	ID                    string
	Type                  string
	Status                string
	ClientID              string
	ExternalService       string
	ExternalApplicationID string
	From                  *time.Time
	To                    *time.Time
	// Details matches application_details.<key> by string equality.
	Details map[string]string
	Limit   int
	Offset  int
}

// Matches reports whether a satisfies every set filter. Memory stores use it;
// SQL stores translate the same fields into WHERE clauses.
func (q ApplicationQuery) Matches(a *Application) bool {
	switch {
	case q.TenantID != "" && a.TenantID != q.TenantID:
		return false
	case q.UserID != "" && a.UserID != q.UserID:
		return false
	case q.ID != "" && a.ID != q.ID:
		return false
	case q.Type != "" && a.Type != q.Type:
		return false
	case q.Status != "" && a.Status != q.Status:
		return false
	case q.ClientID != "" && a.ClientID != q.ClientID:
		return false
	case q.ExternalService != "" && a.ExternalService != q.ExternalService:
		return false
	case q.ExternalApplicationID != "" && a.ExternalApplicationID != q.ExternalApplicationID:
		return false
	case q.From != nil && a.RequestedAt.Before(*q.From):
		return false
	case q.To != nil && a.RequestedAt.After(*q.To):
		return false
	}
	for k, want := range q.Details {
		got, ok := a.ApplicationDetails[k]
		if !ok || stringify(got) != want {
			return false
		}
	}
	return true
}
