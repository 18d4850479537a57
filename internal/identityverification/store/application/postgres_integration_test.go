//go:build integration

package application_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"idverify/internal/identityverification/models"
	"idverify/internal/identityverification/store/application"
	"idverify/pkg/platform/sentinel"
	"idverify/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *application.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = application.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "identity_verification_applications"))
}

func (s *PostgresStoreSuite) newApp(userID string) *models.Application {
	app := models.NewApplication(uuid.NewString(), "tenant-a", "client-a", userID, "ekyc",
		time.Now().UTC().Truncate(time.Microsecond))
	app.ApplicationDetails = map[string]any{"last_name": "Ito", "age": float64(30)}
	return app
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	app := s.newApp("user-1")
	app.RecordSuccess("apply")
	s.Require().NoError(s.store.Create(ctx, app))

	found, err := s.store.FindByID(ctx, "tenant-a", "user-1", app.ID)
	s.Require().NoError(err)
	s.Equal(app.ApplicationDetails, found.ApplicationDetails)
	s.Equal(app.Processes, found.Processes)
	s.True(app.RequestedAt.Equal(found.RequestedAt))
	s.Nil(found.CompletedAt)
	s.Equal(int64(1), found.Version)
}

func (s *PostgresStoreSuite) TestQueryFilters() {
	ctx := context.Background()
	app := s.newApp("user-1")
	app.ExternalApplicationID = "ext-1"
	s.Require().NoError(s.store.Create(ctx, app))
	s.Require().NoError(s.store.Create(ctx, s.newApp("user-2")))

	list, err := s.store.List(ctx, models.ApplicationQuery{
		TenantID: "tenant-a",
		UserID:   "user-1",
		Details:  map[string]string{"last_name": "Ito"},
		Limit:    20,
	})
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(app.ID, list[0].ID)

	found, err := s.store.FindByExternalID(ctx, "tenant-a", "ekyc", "ext-1")
	s.Require().NoError(err)
	s.Equal(app.ID, found.ID)

	n, err := s.store.Count(ctx, models.ApplicationQuery{TenantID: "tenant-a"})
	s.Require().NoError(err)
	s.Equal(2, n)
}

// TestConcurrentVersionedUpdates verifies that exactly one writer wins per
// version.
func (s *PostgresStoreSuite) TestConcurrentVersionedUpdates() {
	ctx := context.Background()
	app := s.newApp("user-1")
	s.Require().NoError(s.store.Create(ctx, app))

	const writers = 20
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := app.Clone()
			c.RecordSuccess("apply")
			err := s.store.UpdateIfVersion(ctx, c, 1)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(writers-1), conflicts.Load())

	found, err := s.store.FindByID(ctx, "tenant-a", "user-1", app.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), found.Version)
	s.Equal(1, found.Processes["apply"].SuccessCount)
}

func (s *PostgresStoreSuite) TestUpdateMissing() {
	s.ErrorIs(s.store.UpdateIfVersion(context.Background(), s.newApp("user-1"), 1), sentinel.ErrNotFound)
}
