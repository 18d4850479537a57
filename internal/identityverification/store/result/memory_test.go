package result

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"idverify/internal/identityverification/models"
	"idverify/pkg/platform/sentinel"
)

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	base := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	until := base.Add(365 * 24 * time.Hour)

	older := &models.VerificationResult{
		ID: uuid.NewString(), TenantID: "tenant-a", UserID: "user-1", Type: "ekyc",
		Source: models.SourceApplication, ApplicationID: "app-1", VerifiedAt: base,
	}
	newer := &models.VerificationResult{
		ID: uuid.NewString(), TenantID: "tenant-a", UserID: "user-1", Type: "ekyc",
		Source: models.SourceCallback, VerifiedAt: base.Add(time.Hour), VerifiedUntil: &until,
	}
	foreign := &models.VerificationResult{
		ID: uuid.NewString(), TenantID: "tenant-a", UserID: "user-2", Type: "ekyc",
		Source: models.SourceApplication, VerifiedAt: base,
	}
	for _, r := range []*models.VerificationResult{older, newer, foreign} {
		require.NoError(t, store.Create(ctx, r))
	}

	t.Run("duplicate id conflicts", func(t *testing.T) {
		require.ErrorIs(t, store.Create(ctx, older), sentinel.ErrConflict)
	})

	t.Run("lists the owner's results newest first", func(t *testing.T) {
		list, err := store.List(ctx, models.ResultQuery{TenantID: "tenant-a", UserID: "user-1"})
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, newer.ID, list[0].ID)
		require.Equal(t, older.ID, list[1].ID)
	})

	t.Run("filters by source and application", func(t *testing.T) {
		n, err := store.Count(ctx, models.ResultQuery{TenantID: "tenant-a", UserID: "user-1", Source: models.SourceCallback})
		require.NoError(t, err)
		require.Equal(t, 1, n)

		list, err := store.List(ctx, models.ResultQuery{TenantID: "tenant-a", UserID: "user-1", ApplicationID: "app-1"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, older.ID, list[0].ID)
	})

	t.Run("verified_until window skips open-ended results", func(t *testing.T) {
		from := base
		list, err := store.List(ctx, models.ResultQuery{TenantID: "tenant-a", UserID: "user-1", VerifiedUntilFrom: &from})
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, newer.ID, list[0].ID)
	})
}
