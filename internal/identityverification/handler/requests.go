package handler

import (
	"net/url"
	"strconv"
	"time"

	"idverify/internal/identityverification/models"
	dErrors "idverify/pkg/domain-errors"
)

// applicationFilterKeys are the list parameters with a dedicated column.
// Every other parameter filters application_details.
var applicationFilterKeys = map[string]bool{
	"id":                      true,
	"type":                    true,
	"status":                  true,
	"client_id":               true,
	"external_service":        true,
	"external_application_id": true,
	"from":                    true,
	"to":                      true,
	"limit":                   true,
	"offset":                  true,
}

func parseApplicationQuery(values url.Values) (models.ApplicationQuery, error) {
	limit, offset, err := parseWindow(values)
	if err != nil {
		return models.ApplicationQuery{}, err
	}
	q := models.ApplicationQuery{
		ID:                    values.Get("id"),
		Type:                  values.Get("type"),
		Status:                values.Get("status"),
		ClientID:              values.Get("client_id"),
		ExternalService:       values.Get("external_service"),
		ExternalApplicationID: values.Get("external_application_id"),
		Limit:                 limit,
		Offset:                offset,
	}
	if q.From, err = parseTime(values, "from"); err != nil {
		return models.ApplicationQuery{}, err
	}
	if q.To, err = parseTime(values, "to"); err != nil {
		return models.ApplicationQuery{}, err
	}
	for key := range values {
		if applicationFilterKeys[key] || values.Get(key) == "" {
			continue
		}
		if q.Details == nil {
			q.Details = map[string]string{}
		}
		q.Details[key] = values.Get(key)
	}
	return q, nil
}

// parseResultQuery never fails on time values: a malformed bound is dropped
// rather than reported.
func parseResultQuery(values url.Values) (models.ResultQuery, error) {
	limit, offset, err := parseWindow(values)
	if err != nil {
		return models.ResultQuery{}, err
	}
	return models.ResultQuery{
		ID:                values.Get("id"),
		ApplicationID:     values.Get("application_id"),
		Type:              values.Get("type"),
		Source:            values.Get("source"),
		VerifiedAtFrom:    lenientTime(values.Get("verified_at_from")),
		VerifiedAtTo:      lenientTime(values.Get("verified_at_to")),
		VerifiedUntilFrom: lenientTime(values.Get("verified_until_from")),
		VerifiedUntilTo:   lenientTime(values.Get("verified_until_to")),
		Limit:             limit,
		Offset:            offset,
	}, nil
}

func parseWindow(values url.Values) (int, int, error) {
	limit, err := parseInt(values, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := parseInt(values, "offset")
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func parseInt(values url.Values, key string) (int, error) {
	raw := values.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.Newf(dErrors.CodeInvalidRequest, "%s must be a non-negative integer", key)
	}
	return n, nil
}

func parseTime(values url.Values, key string) (*time.Time, error) {
	raw := values.Get(key)
	if raw == "" {
		return nil, nil
	}
	t, ok := parseTimestamp(raw)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInvalidRequest, "%s must be an RFC3339 timestamp", key)
	}
	return &t, nil
}

func lenientTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, ok := parseTimestamp(raw)
	if !ok {
		return nil
	}
	return &t
}

// parseTimestamp accepts RFC3339, a bare local date-time and a date.
func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
