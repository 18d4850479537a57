package mapping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idverify/internal/identityverification/models"
)

func sourceDoc() map[string]any {
	return map[string]any{
		"request_body": map[string]any{
			"last_name":  "Ito",
			"first_name": "Ichiro",
			"age":        float64(41),
			"address": map[string]any{
				"postal_code": "100-0001",
			},
			"tags": []any{"a", "b"},
		},
		"response_body": map[string]any{
			"application_id": "ext-1",
			"result":         map[string]any{"score": float64(9)},
		},
		"user": map[string]any{"sub": "user-1"},
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	m := New(nil)

	t.Run("copies nested values into dotted targets", func(t *testing.T) {
		out := m.Apply(ctx, []models.MappingRule{
			{From: "$.request_body.address.postal_code", To: "address.zip"},
			{From: "$.user.sub", To: "subject"},
		}, sourceDoc(), nil)

		assert.Equal(t, map[string]any{
			"address": map[string]any{"zip": "100-0001"},
			"subject": "user-1",
		}, out)
	})

	t.Run("static value wins over from", func(t *testing.T) {
		out := m.Apply(ctx, []models.MappingRule{
			{From: "$.request_body.last_name", StaticValue: "fixed", To: "name"},
			{StaticValue: false, To: "flag"},
		}, sourceDoc(), nil)

		assert.Equal(t, "fixed", out["name"])
		assert.Equal(t, false, out["flag"])
	})

	t.Run("missing source writes nothing", func(t *testing.T) {
		out := m.Apply(ctx, []models.MappingRule{
			{From: "$.request_body.nope", To: "nope"},
			{To: "empty"},
		}, sourceDoc(), nil)

		assert.Empty(t, out)
	})

	t.Run("root target merges objects and overwrites collisions", func(t *testing.T) {
		dest := map[string]any{"application_id": "old", "kept": true}
		out := m.Apply(ctx, []models.MappingRule{
			{From: "$.response_body", To: RootTarget},
		}, sourceDoc(), dest)

		assert.Equal(t, "ext-1", out["application_id"])
		assert.Equal(t, true, out["kept"])
		assert.Equal(t, map[string]any{"score": float64(9)}, out["result"])
	})

	t.Run("root target ignores non-objects", func(t *testing.T) {
		out := m.Apply(ctx, []models.MappingRule{
			{From: "$.request_body.last_name", To: RootTarget},
		}, sourceDoc(), nil)

		assert.Empty(t, out)
	})

	t.Run("mapped values do not alias the source", func(t *testing.T) {
		src := sourceDoc()
		out := m.Apply(ctx, []models.MappingRule{
			{From: "$.request_body.address", To: "address"},
		}, src, nil)

		out["address"].(map[string]any)["postal_code"] = "changed"
		assert.Equal(t, "100-0001", src["request_body"].(map[string]any)["address"].(map[string]any)["postal_code"])
	})

	t.Run("wildcards collect every match", func(t *testing.T) {
		out := m.Apply(ctx, []models.MappingRule{
			{From: "$.request_body.tags[*]", To: "tags"},
		}, sourceDoc(), nil)

		assert.Equal(t, []any{"a", "b"}, out["tags"])
	})

	t.Run("invalid from path is skipped", func(t *testing.T) {
		out := m.Apply(ctx, []models.MappingRule{
			{From: "$.[[[", To: "broken"},
			{From: "$.user.sub", To: "sub"},
		}, sourceDoc(), nil)

		assert.Equal(t, map[string]any{"sub": "user-1"}, out)
	})
}

func TestFlatHelpers(t *testing.T) {
	ctx := context.Background()
	m := New(nil)

	headers := m.ToHeaders(ctx, []models.MappingRule{
		{StaticValue: "application/json", To: "Content-Type"},
		{From: "$.request_body.age", To: "X-Age"},
	}, sourceDoc())
	assert.Equal(t, map[string]string{"Content-Type": "application/json", "X-Age": "41"}, headers)

	query := m.ToQuery(ctx, []models.MappingRule{
		{From: "$.request_body.tags", To: "tag"},
		{From: "$.user.sub", To: "sub"},
	}, sourceDoc())
	assert.Equal(t, []string{"a", "b"}, query["tag"])
	assert.Equal(t, "user-1", query.Get("sub"))

	params := m.ToPathParams(ctx, []models.MappingRule{
		{From: "$.response_body.application_id", To: "application_id"},
	}, sourceDoc())
	assert.Equal(t, "https://kyc.example/apps/ext-1/status",
		Interpolate("https://kyc.example/apps/{application_id}/status", params))
}

func TestGet(t *testing.T) {
	v, ok, err := Get(sourceDoc(), "$.request_body.first_name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ichiro", v)

	_, ok, err = Get(sourceDoc(), "$.request_body.absent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = Get(sourceDoc(), "$.[[[")
	require.Error(t, err)
}

func TestSet(t *testing.T) {
	dest := map[string]any{"a": "scalar"}
	require.NoError(t, Set(dest, "$.a.b", 1))
	assert.Equal(t, map[string]any{"b": 1}, dest["a"])

	require.Error(t, Set(dest, "$", 1))
}
