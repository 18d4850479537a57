package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"idverify/internal/identityverification/models"
	dErrors "idverify/pkg/domain-errors"
)

const (
	DefaultLimit = 20
	MaxLimit     = 1000
)

func normalizeWindow(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListApplications returns one page of the caller's applications. The count
// and the page are read concurrently.
func (s *Service) ListApplications(ctx context.Context, q models.ApplicationQuery) (*models.Page[*models.Application], error) {
	if q.TenantID == "" || q.UserID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user is required")
	}
	q.Limit, q.Offset = normalizeWindow(q.Limit, q.Offset)

	var (
		list  []*models.Application
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.applications.Count(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		list, err = s.applications.List(gctx, q)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	if list == nil {
		list = []*models.Application{}
	}
	return &models.Page[*models.Application]{List: list, TotalCount: total, Limit: q.Limit, Offset: q.Offset}, nil
}

// DeleteApplication hard-deletes one of the caller's applications of the
// given type.
func (s *Service) DeleteApplication(ctx context.Context, tenantID, userID, verificationType, id string) error {
	app, err := s.applications.FindByID(ctx, tenantID, userID, id)
	if err != nil {
		return storeError(err, "application")
	}
	if app.Type != verificationType {
		return dErrors.New(dErrors.CodeNotFound, "application is not found")
	}
	if err := s.applications.Delete(ctx, tenantID, userID, id); err != nil {
		return storeError(err, "application")
	}
	s.logger.InfoContext(ctx, "identity verification application deleted",
		"tenant_id", tenantID,
		"application_id", id,
		"type", verificationType,
	)
	return nil
}

// ListResults returns one page of the caller's verification results.
func (s *Service) ListResults(ctx context.Context, q models.ResultQuery) (*models.Page[*models.VerificationResult], error) {
	if q.TenantID == "" || q.UserID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user is required")
	}
	q.Limit, q.Offset = normalizeWindow(q.Limit, q.Offset)

	var (
		list  []*models.VerificationResult
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.results.Count(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		list, err = s.results.List(gctx, q)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verification results")
	}
	if list == nil {
		list = []*models.VerificationResult{}
	}
	return &models.Page[*models.VerificationResult]{List: list, TotalCount: total, Limit: q.Limit, Offset: q.Offset}, nil
}
