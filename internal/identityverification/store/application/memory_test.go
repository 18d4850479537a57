package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"idverify/internal/identityverification/models"
	"idverify/pkg/platform/sentinel"
)

type ApplicationStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestApplicationStoreSuite(t *testing.T) {
	suite.Run(t, new(ApplicationStoreSuite))
}

func (s *ApplicationStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
}

func (s *ApplicationStoreSuite) newApp(userID string, offset time.Duration) *models.Application {
	return models.NewApplication(uuid.NewString(), "tenant-a", "client-a", userID, "ekyc", s.now.Add(offset))
}

func (s *ApplicationStoreSuite) TestCreateAndFind() {
	s.Run("create stamps version 1", func() {
		app := s.newApp("user-1", 0)
		s.Require().NoError(s.store.Create(s.ctx, app))
		s.Equal(int64(1), app.Version)

		found, err := s.store.FindByID(s.ctx, "tenant-a", "user-1", app.ID)
		s.Require().NoError(err)
		s.Equal(app.ID, found.ID)
		s.Equal(int64(1), found.Version)
	})

	s.Run("duplicate id conflicts", func() {
		app := s.newApp("user-1", 0)
		s.Require().NoError(s.store.Create(s.ctx, app))
		s.ErrorIs(s.store.Create(s.ctx, app), sentinel.ErrConflict)
	})

	s.Run("lookup is owner scoped", func() {
		app := s.newApp("user-1", 0)
		s.Require().NoError(s.store.Create(s.ctx, app))

		_, err := s.store.FindByID(s.ctx, "tenant-a", "user-2", app.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FindByID(s.ctx, "tenant-b", "user-1", app.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned copies are detached", func() {
		app := s.newApp("user-1", 0)
		s.Require().NoError(s.store.Create(s.ctx, app))
		app.Status = "mutated"

		found, err := s.store.FindByID(s.ctx, "tenant-a", "user-1", app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRequested, found.Status)
	})
}

func (s *ApplicationStoreSuite) TestUpdateIfVersion() {
	app := s.newApp("user-1", 0)
	s.Require().NoError(s.store.Create(s.ctx, app))

	s.Run("matching version writes and bumps", func() {
		app.Status = "applying"
		s.Require().NoError(s.store.UpdateIfVersion(s.ctx, app, 1))
		s.Equal(int64(2), app.Version)

		found, err := s.store.FindByID(s.ctx, "tenant-a", "user-1", app.ID)
		s.Require().NoError(err)
		s.Equal("applying", found.Status)
	})

	s.Run("stale version conflicts", func() {
		stale := app.Clone()
		stale.Status = "stale"
		s.ErrorIs(s.store.UpdateIfVersion(s.ctx, stale, 1), sentinel.ErrConflict)
	})

	s.Run("unknown application is not found", func() {
		other := s.newApp("user-1", 0)
		s.ErrorIs(s.store.UpdateIfVersion(s.ctx, other, 1), sentinel.ErrNotFound)
	})
}

func (s *ApplicationStoreSuite) TestFindByExternalID() {
	app := s.newApp("user-1", 0)
	app.ExternalApplicationID = "ext-42"
	s.Require().NoError(s.store.Create(s.ctx, app))

	found, err := s.store.FindByExternalID(s.ctx, "tenant-a", "ekyc", "ext-42")
	s.Require().NoError(err)
	s.Equal(app.ID, found.ID)

	_, err = s.store.FindByExternalID(s.ctx, "tenant-a", "other-type", "ext-42")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByExternalID(s.ctx, "tenant-a", "ekyc", "")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ApplicationStoreSuite) TestListAndCount() {
	oldest := s.newApp("user-1", 0)
	middle := s.newApp("user-1", time.Minute)
	newest := s.newApp("user-1", 2*time.Minute)
	newest.Status = "approved"
	newest.ApplicationDetails = map[string]any{"last_name": "Ito"}
	foreign := s.newApp("user-2", 3*time.Minute)
	for _, a := range []*models.Application{oldest, middle, newest, foreign} {
		s.Require().NoError(s.store.Create(s.ctx, a))
	}

	s.Run("newest first with paging", func() {
		q := models.ApplicationQuery{TenantID: "tenant-a", UserID: "user-1", Limit: 2}
		list, err := s.store.List(s.ctx, q)
		s.Require().NoError(err)
		s.Require().Len(list, 2)
		s.Equal(newest.ID, list[0].ID)
		s.Equal(middle.ID, list[1].ID)

		q.Offset = 2
		list, err = s.store.List(s.ctx, q)
		s.Require().NoError(err)
		s.Require().Len(list, 1)
		s.Equal(oldest.ID, list[0].ID)

		n, err := s.store.Count(s.ctx, q)
		s.Require().NoError(err)
		s.Equal(3, n)
	})

	s.Run("offset past end is empty", func() {
		list, err := s.store.List(s.ctx, models.ApplicationQuery{TenantID: "tenant-a", UserID: "user-1", Offset: 10})
		s.Require().NoError(err)
		s.Empty(list)
	})

	s.Run("filters by status and details", func() {
		q := models.ApplicationQuery{
			TenantID: "tenant-a",
			UserID:   "user-1",
			Status:   "approved",
			Details:  map[string]string{"last_name": "Ito"},
		}
		list, err := s.store.List(s.ctx, q)
		s.Require().NoError(err)
		s.Require().Len(list, 1)
		s.Equal(newest.ID, list[0].ID)
	})
}

func (s *ApplicationStoreSuite) TestDelete() {
	app := s.newApp("user-1", 0)
	s.Require().NoError(s.store.Create(s.ctx, app))

	s.ErrorIs(s.store.Delete(s.ctx, "tenant-a", "user-2", app.ID), sentinel.ErrNotFound)
	s.Require().NoError(s.store.Delete(s.ctx, "tenant-a", "user-1", app.ID))

	_, err := s.store.FindByID(s.ctx, "tenant-a", "user-1", app.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
