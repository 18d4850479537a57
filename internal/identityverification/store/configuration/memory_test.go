package configuration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"idverify/internal/identityverification/models"
	"idverify/pkg/platform/sentinel"
)

type ConfigurationStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestConfigurationStoreSuite(t *testing.T) {
	suite.Run(t, new(ConfigurationStoreSuite))
}

func (s *ConfigurationStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func newConfig(tenantID, verificationType string) *models.Configuration {
	return &models.Configuration{ID: uuid.NewString(), TenantID: tenantID, Type: verificationType}
}

func (s *ConfigurationStoreSuite) TestCreateAndLookups() {
	cfg := newConfig("tenant-a", "ekyc")
	s.Require().NoError(s.store.Create(s.ctx, cfg))

	s.Run("by id", func() {
		found, err := s.store.FindByID(s.ctx, "tenant-a", cfg.ID)
		s.Require().NoError(err)
		s.Equal("ekyc", found.Type)
	})

	s.Run("by type", func() {
		found, err := s.store.FindByType(s.ctx, "tenant-a", "ekyc")
		s.Require().NoError(err)
		s.Equal(cfg.ID, found.ID)
	})

	s.Run("tenant isolation", func() {
		_, err := s.store.FindByID(s.ctx, "tenant-b", cfg.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FindByType(s.ctx, "tenant-b", "ekyc")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("type is unique per tenant", func() {
		s.ErrorIs(s.store.Create(s.ctx, newConfig("tenant-a", "ekyc")), sentinel.ErrConflict)
		s.NoError(s.store.Create(s.ctx, newConfig("tenant-b", "ekyc")))
	})
}

func (s *ConfigurationStoreSuite) TestUpdate() {
	first := newConfig("tenant-a", "ekyc")
	second := newConfig("tenant-a", "aml")
	s.Require().NoError(s.store.Create(s.ctx, first))
	s.Require().NoError(s.store.Create(s.ctx, second))

	s.Run("rename to free type", func() {
		renamed := *first
		renamed.Type = "ekyc-v2"
		s.Require().NoError(s.store.Update(s.ctx, &renamed))

		found, err := s.store.FindByType(s.ctx, "tenant-a", "ekyc-v2")
		s.Require().NoError(err)
		s.Equal(first.ID, found.ID)
	})

	s.Run("rename onto taken type conflicts", func() {
		clash := *first
		clash.Type = "aml"
		s.ErrorIs(s.store.Update(s.ctx, &clash), sentinel.ErrConflict)
	})

	s.Run("unknown id", func() {
		s.ErrorIs(s.store.Update(s.ctx, newConfig("tenant-a", "x")), sentinel.ErrNotFound)
	})
}

func (s *ConfigurationStoreSuite) TestListAndDelete() {
	for _, typ := range []string{"c", "a", "b"} {
		s.Require().NoError(s.store.Create(s.ctx, newConfig("tenant-a", typ)))
	}

	list, err := s.store.List(s.ctx, "tenant-a", 2, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("a", list[0].Type)
	s.Equal("b", list[1].Type)

	n, err := s.store.Count(s.ctx, "tenant-a")
	s.Require().NoError(err)
	s.Equal(3, n)

	s.Require().NoError(s.store.Delete(s.ctx, "tenant-a", list[0].ID))
	s.ErrorIs(s.store.Delete(s.ctx, "tenant-a", list[0].ID), sentinel.ErrNotFound)

	n, err = s.store.Count(s.ctx, "tenant-a")
	s.Require().NoError(err)
	s.Equal(2, n)
}
