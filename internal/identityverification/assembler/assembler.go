// Package assembler builds verification results from approved applications
// and standalone submissions.
package assembler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"idverify/internal/identityverification/mapping"
	"idverify/internal/identityverification/models"
)

// Assembler projects result mapping rules into VerificationResult values.
type Assembler struct {
	mapper *mapping.Mapper
	newID  func() string
}

type Option func(*Assembler)

// WithIDGenerator overrides result id generation.
func WithIDGenerator(fn func() string) Option {
	return func(a *Assembler) {
		a.newID = fn
	}
}

// New constructs an Assembler.
func New(mapper *mapping.Mapper, opts ...Option) *Assembler {
	if mapper == nil {
		mapper = &mapping.Mapper{}
	}
	a := &Assembler{mapper: mapper, newID: uuid.NewString}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FromApplication builds the result for an application that just reached an
// approved status. doc is the mapping context of the call that approved it.
func (a *Assembler) FromApplication(ctx context.Context, cfg *models.Configuration, app *models.Application, doc map[string]any, verifiedAt time.Time) *models.VerificationResult {
	return &models.VerificationResult{
		ID:                    a.newID(),
		TenantID:              app.TenantID,
		UserID:                app.UserID,
		ApplicationID:         app.ID,
		Type:                  app.Type,
		ExternalService:       app.ExternalService,
		ExternalApplicationID: app.ExternalApplicationID,
		VerifiedClaims:        a.mapper.Apply(ctx, cfg.Result.VerifiedClaimsMappingRules, doc, nil),
		SourceDetails:         a.mapper.Apply(ctx, cfg.Result.SourceDetailsMappingRules, doc, nil),
		Source:                models.SourceApplication,
		VerifiedAt:            verifiedAt,
	}
}

// Standalone builds a result registered directly, without an application.
func (a *Assembler) Standalone(ctx context.Context, cfg *models.Configuration, tenantID, userID string, doc map[string]any, verifiedAt time.Time) *models.VerificationResult {
	return &models.VerificationResult{
		ID:              a.newID(),
		TenantID:        tenantID,
		UserID:          userID,
		Type:            cfg.Type,
		ExternalService: cfg.Common.ExternalService,
		VerifiedClaims:  a.mapper.Apply(ctx, cfg.Result.VerifiedClaimsMappingRules, doc, nil),
		SourceDetails:   a.mapper.Apply(ctx, cfg.Result.SourceDetailsMappingRules, doc, nil),
		Source:          models.SourceCallback,
		VerifiedAt:      verifiedAt,
	}
}
