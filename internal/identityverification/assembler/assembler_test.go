package assembler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"idverify/internal/identityverification/models"
)

func TestAssembler(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	cfg := &models.Configuration{
		Type:   "investment-account-opening",
		Common: models.CommonConfig{ExternalService: "mocky"},
		Result: models.ResultConfig{
			VerifiedClaimsMappingRules: []models.MappingRule{
				{StaticValue: "jp_aml", To: "verification.trust_framework"},
				{From: "$.application.application_details.last_name", To: "claims.family_name"},
			},
			SourceDetailsMappingRules: []models.MappingRule{
				{From: "$.response_body", To: "*"},
			},
		},
	}
	a := New(nil, WithIDGenerator(func() string { return "res-1" }))

	t.Run("from application", func(t *testing.T) {
		app := models.NewApplication("app-1", "tenant-a", "client-a", "user-1", cfg.Type, now)
		app.ExternalService = "mocky"
		app.ExternalApplicationID = "ext-1"
		doc := map[string]any{
			"application":   map[string]any{"application_details": map[string]any{"last_name": "Ito"}},
			"response_body": map[string]any{"provider_ref": "p-9"},
		}

		res := a.FromApplication(context.Background(), cfg, app, doc, now)

		assert.Equal(t, "res-1", res.ID)
		assert.Equal(t, "app-1", res.ApplicationID)
		assert.Equal(t, "user-1", res.UserID)
		assert.Equal(t, "ext-1", res.ExternalApplicationID)
		assert.Equal(t, models.SourceApplication, res.Source)
		assert.Equal(t, now, res.VerifiedAt)
		assert.Nil(t, res.VerifiedUntil)
		assert.Equal(t, map[string]any{
			"verification": map[string]any{"trust_framework": "jp_aml"},
			"claims":       map[string]any{"family_name": "Ito"},
		}, res.VerifiedClaims)
		assert.Equal(t, map[string]any{"provider_ref": "p-9"}, res.SourceDetails)
	})

	t.Run("standalone", func(t *testing.T) {
		res := a.Standalone(context.Background(), cfg, "tenant-a", "user-2", map[string]any{}, now)

		assert.Equal(t, models.SourceCallback, res.Source)
		assert.Empty(t, res.ApplicationID)
		assert.Equal(t, "user-2", res.UserID)
		assert.Equal(t, "mocky", res.ExternalService)
		assert.Equal(t, map[string]any{
			"verification": map[string]any{"trust_framework": "jp_aml"},
		}, res.VerifiedClaims)
		assert.Empty(t, res.SourceDetails)
	})
}
