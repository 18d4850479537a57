package transition

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idverify/internal/identityverification/models"
)

func transitions(t *testing.T, raw string) models.Ordered[models.TransitionRule] {
	t.Helper()
	var out models.Ordered[models.TransitionRule]
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestEvaluate(t *testing.T) {
	e := New(nil)
	ctx := context.Background()

	rules := transitions(t, `{
	  "rejected": {"any_of": [[{"path": "$.response_body.status", "operation": "eq", "value": "ng"}]]},
	  "approved": {"any_of": [
	    [{"path": "$.response_body.status", "operation": "eq", "value": "ok"},
	     {"path": "$.response_status_code", "operation": "eq", "value": 200}],
	    [{"path": "$.request_body.force", "operation": "eq", "value": true}]
	  ]},
	  "applying": {"any_of": [[{"path": "$.response_status_code", "operation": "gte", "value": 200}]]}
	}`)

	t.Run("declaration order decides between overlapping rules", func(t *testing.T) {
		status, ok := e.Evaluate(ctx, rules, map[string]any{
			"response_body":        map[string]any{"status": "ok"},
			"response_status_code": float64(200),
		})
		require.True(t, ok)
		assert.Equal(t, "approved", status)
	})

	t.Run("second AND-group can satisfy the rule", func(t *testing.T) {
		status, ok := e.Evaluate(ctx, rules, map[string]any{
			"request_body":         map[string]any{"force": true},
			"response_body":        map[string]any{"status": "pending"},
			"response_status_code": float64(500),
		})
		require.True(t, ok)
		assert.Equal(t, "approved", status)
	})

	t.Run("falls through to later rules", func(t *testing.T) {
		status, ok := e.Evaluate(ctx, rules, map[string]any{
			"response_body":        map[string]any{"status": "pending"},
			"response_status_code": float64(202),
		})
		require.True(t, ok)
		assert.Equal(t, "applying", status)
	})

	t.Run("no match leaves the status alone", func(t *testing.T) {
		_, ok := e.Evaluate(ctx, rules, map[string]any{"response_status_code": float64(100)})
		assert.False(t, ok)
	})

	t.Run("empty AND-group always matches", func(t *testing.T) {
		status, ok := e.Evaluate(ctx, transitions(t, `{"applying": {"any_of": [[]]}}`), map[string]any{})
		require.True(t, ok)
		assert.Equal(t, "applying", status)
	})

	t.Run("evaluation errors count as false", func(t *testing.T) {
		broken := transitions(t, `{
		  "approved": {"any_of": [[{"path": "$.x", "operation": "between"}]]},
		  "applying": {"any_of": [[]]}
		}`)
		status, ok := e.Evaluate(ctx, broken, map[string]any{"x": 1})
		require.True(t, ok)
		assert.Equal(t, "applying", status)
	})
}

func TestCallbackDefault(t *testing.T) {
	status, ok := CallbackDefault(KindExamination)
	assert.True(t, ok)
	assert.Equal(t, StatusExaminationProcessing, status)

	status, ok = CallbackDefault(KindResult)
	assert.True(t, ok)
	assert.Equal(t, "approved", status)

	_, ok = CallbackDefault("other")
	assert.False(t, ok)
}
