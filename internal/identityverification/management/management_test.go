package management

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"idverify/internal/identityverification/models"
	configstore "idverify/internal/identityverification/store/configuration"
	dErrors "idverify/pkg/domain-errors"
	"idverify/pkg/requestcontext"
)

type recordingInvalidator struct {
	keys []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, tenantID, verificationType string) {
	r.keys = append(r.keys, tenantID+"/"+verificationType)
}

type ManagementSuite struct {
	suite.Suite
	store   *configstore.InMemory
	cache   *recordingInvalidator
	service *Service
	ctx     context.Context
	now     time.Time
}

func TestManagementSuite(t *testing.T) {
	suite.Run(t, new(ManagementSuite))
}

func (s *ManagementSuite) SetupTest() {
	s.store = configstore.NewInMemory()
	s.cache = &recordingInvalidator{}
	svc, err := New(s.store, WithInvalidator(s.cache))
	s.Require().NoError(err)
	s.service = svc
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func validConfiguration(verificationType string) *models.Configuration {
	cfg := &models.Configuration{Type: verificationType}
	cfg.Processes.Set("apply", models.ProcessDefinition{
		Execution: models.ExecutionConfig{Type: models.ExecutionNoAction},
		Store: models.StoreConfig{ApplicationDetailsMappingRules: []models.MappingRule{
			{From: "$.request_body.last_name", To: "last_name"},
		}},
	})
	return cfg
}

func (s *ManagementSuite) TestCreate() {
	s.Run("assigns an id and timestamps", func() {
		m, err := s.service.Create(s.ctx, "tenant-a", validConfiguration("ekyc"), false)
		s.Require().NoError(err)
		s.False(m.DryRun)
		_, err = uuid.Parse(m.Result.ID)
		s.NoError(err)
		s.Equal(s.now, m.Result.CreatedAt)
		s.Equal([]string{"tenant-a/ekyc"}, s.cache.keys)
	})

	s.Run("duplicate type conflicts", func() {
		_, err := s.service.Create(s.ctx, "tenant-a", validConfiguration("ekyc"), false)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("same type in another tenant is allowed", func() {
		_, err := s.service.Create(s.ctx, "tenant-b", validConfiguration("ekyc"), false)
		s.NoError(err)
	})

	s.Run("dry run leaves storage untouched", func() {
		m, err := s.service.Create(s.ctx, "tenant-a", validConfiguration("kyc-lite"), true)
		s.Require().NoError(err)
		s.True(m.DryRun)
		count, err := s.store.Count(s.ctx, "tenant-a")
		s.Require().NoError(err)
		s.Equal(1, count)
	})
}

func (s *ManagementSuite) TestUpdateReportsTopLevelDiff() {
	created, err := s.service.Create(s.ctx, "tenant-a", validConfiguration("ekyc"), false)
	s.Require().NoError(err)
	s.cache.keys = nil

	changed := validConfiguration("ekyc")
	changed.Attributes = map[string]any{"enabled": false}

	dry, err := s.service.Update(s.ctx, "tenant-a", created.Result.ID, changed, true)
	s.Require().NoError(err)
	s.Equal([]string{"attributes"}, dry.Diff)
	stored, err := s.service.Get(s.ctx, "tenant-a", created.Result.ID)
	s.Require().NoError(err)
	s.Empty(stored.Attributes)
	s.Empty(s.cache.keys)

	changed = validConfiguration("ekyc")
	changed.Attributes = map[string]any{"enabled": false}
	applied, err := s.service.Update(s.ctx, "tenant-a", created.Result.ID, changed, false)
	s.Require().NoError(err)
	s.Equal([]string{"attributes"}, applied.Diff)
	s.Equal([]string{"tenant-a/ekyc"}, s.cache.keys)

	stored, err = s.service.Get(s.ctx, "tenant-a", created.Result.ID)
	s.Require().NoError(err)
	s.False(stored.Enabled())
}

func (s *ManagementSuite) TestDelete() {
	created, err := s.service.Create(s.ctx, "tenant-a", validConfiguration("ekyc"), false)
	s.Require().NoError(err)

	m, err := s.service.Delete(s.ctx, "tenant-a", created.Result.ID, true)
	s.Require().NoError(err)
	s.True(m.DryRun)
	_, err = s.service.Get(s.ctx, "tenant-a", created.Result.ID)
	s.NoError(err)

	_, err = s.service.Delete(s.ctx, "tenant-a", created.Result.ID, false)
	s.Require().NoError(err)
	_, err = s.service.Get(s.ctx, "tenant-a", created.Result.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Delete(s.ctx, "tenant-a", created.Result.ID, false)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ManagementSuite) TestListClampsWindow() {
	for _, typ := range []string{"ekyc", "kyc-lite", "address"} {
		_, err := s.service.Create(s.ctx, "tenant-a", validConfiguration(typ), false)
		s.Require().NoError(err)
	}

	page, err := s.service.List(s.ctx, "tenant-a", 0, -5)
	s.Require().NoError(err)
	s.Equal(defaultLimit, page.Limit)
	s.Equal(0, page.Offset)
	s.Equal(3, page.TotalCount)
	s.Len(page.List, 3)

	page, err = s.service.List(s.ctx, "tenant-a", 5000, 2)
	s.Require().NoError(err)
	s.Equal(maxLimit, page.Limit)
	s.Len(page.List, 1)

	page, err = s.service.List(s.ctx, "tenant-z", 10, 0)
	s.Require().NoError(err)
	s.NotNil(page.List)
	s.Empty(page.List)
}

func TestValidate(t *testing.T) {
	t.Run("valid configuration has no messages", func(t *testing.T) {
		assert.Empty(t, Validate(validConfiguration("ekyc"), nil))
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := &models.Configuration{ID: "not-a-uuid"}
		cfg.Processes.Set("apply", models.ProcessDefinition{
			Execution: models.ExecutionConfig{Type: "carrier_pigeon"},
			Store: models.StoreConfig{ApplicationDetailsMappingRules: []models.MappingRule{
				{From: "$.request_body.name"},
			}},
		})

		msgs := Validate(cfg, nil)
		assert.Equal(t, []string{
			"id must be a UUID",
			"type is required",
			"processes.apply.execution.type carrier_pigeon is not supported",
			"processes.apply.store.application_details_mapping_rules[0].to is required",
		}, msgs)
	})

	t.Run("empty process map", func(t *testing.T) {
		msgs := Validate(&models.Configuration{Type: "ekyc"}, nil)
		assert.Equal(t, []string{"processes must declare at least one process"}, msgs)
	})

	t.Run("http request needs url and method", func(t *testing.T) {
		cfg := &models.Configuration{Type: "ekyc"}
		cfg.Processes.Set("apply", models.ProcessDefinition{
			Execution: models.ExecutionConfig{
				Type:        models.ExecutionHTTPRequest,
				HTTPRequest: &models.HTTPRequestConfig{},
			},
		})
		msgs := Validate(cfg, nil)
		assert.Equal(t, []string{
			"processes.apply.execution.http_request.url is required",
			"processes.apply.execution.http_request.method is required",
		}, msgs)
	})

	t.Run("unknown pre-hook type", func(t *testing.T) {
		cfg := validConfiguration("ekyc")
		def, _ := cfg.Processes.Get("apply")
		def.PreHook.Verifications = []models.VerificationSpec{{Type: "astrology"}}
		cfg.Processes.Set("apply", def)

		msgs := Validate(cfg, nil)
		require.Len(t, msgs, 1)
		assert.Equal(t, "processes.apply.pre_hook.verifications[0].type astrology is not supported", msgs[0])
	})
}

func TestDiffListsRemovedKeys(t *testing.T) {
	before := validConfiguration("ekyc")
	before.Registration = &models.RegistrationConfig{}
	after := validConfiguration("ekyc")

	diff, err := Diff(before, after)
	require.NoError(t, err)
	assert.Equal(t, []string{"registration"}, diff)
}
