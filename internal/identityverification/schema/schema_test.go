package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

const applySchema = `{
  "type": "object",
  "required": ["last_name", "first_name", "birthdate", "email_address", "address"],
  "properties": {
    "last_name": {"type": "string", "maxLength": 5},
    "first_name": {"type": "string", "minLength": 2},
    "birthdate": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "email_address": {"type": "string"},
    "age": {"type": "integer", "minimum": 18, "maximum": 120},
    "plan": {"type": "string", "enum": ["basic", "premium"]},
    "kana": {"type": "string", "pattern": "^\\p{Katakana}+$"},
    "tags": {"type": "array", "minItems": 1, "maxItems": 2, "uniqueItems": true, "items": {"type": "string"}},
    "address": {
      "type": "object",
      "required": ["postal_code"],
      "properties": {"postal_code": {"type": "string", "minLength": 7}}
    }
  }
}`

func TestValidate(t *testing.T) {
	s := decode(t, applySchema)

	t.Run("empty body reports every missing field", func(t *testing.T) {
		msgs := Validate(map[string]any{}, s)
		assert.Equal(t, []string{
			"last_name is missing",
			"first_name is missing",
			"birthdate is missing",
			"email_address is missing",
			"address is missing",
		}, msgs)
	})

	t.Run("valid body passes", func(t *testing.T) {
		body := decode(t, `{
		  "last_name": "Ito", "first_name": "Ichiro", "birthdate": "1976-05-18",
		  "email_address": "ichiro@example.com", "age": 48, "plan": "basic",
		  "kana": "イトウ", "tags": ["a"], "address": {"postal_code": "1000001"}
		}`)
		assert.Empty(t, Validate(body, s))
	})

	t.Run("keyword violations use fixed messages", func(t *testing.T) {
		body := decode(t, `{
		  "last_name": "Yamamoto", "first_name": "I", "birthdate": "18-05-1976",
		  "email_address": 12, "age": 17.5, "plan": "gold",
		  "kana": "ito", "tags": ["a", "a", "b"], "address": {"postal_code": "100"}
		}`)
		msgs := Validate(body, s)
		assert.ElementsMatch(t, []string{
			"address.postal_code minLength is 7",
			"age is not a integer",
			`birthdate pattern is ^\d{4}-\d{2}-\d{2}$`,
			"email_address is not a string",
			"first_name minLength is 2",
			`kana pattern is ^\p{Katakana}+$`,
			"last_name maxLength is 5",
			"plan is not allowed enum value, input: gold, definition: [basic, premium]",
			"tags must have at most 2 items.",
			"tags must not contain duplicate items.",
		}, msgs)
	})

	t.Run("bounds and array items", func(t *testing.T) {
		body := decode(t, `{
		  "last_name": "Ito", "first_name": "Ichiro", "birthdate": "1976-05-18",
		  "email_address": "x", "age": 121, "tags": [], "address": {}
		}`)
		assert.ElementsMatch(t, []string{
			"address.postal_code is missing",
			"age maximum is 120",
			"tags must have at least 1 items.",
		}, Validate(body, s))

		body["tags"] = []any{"ok", float64(3)}
		body["age"] = float64(10)
		assert.ElementsMatch(t, []string{
			"address.postal_code is missing",
			"age minimum is 18",
			"tags[1] is not a string",
		}, Validate(body, s))
	})

	t.Run("null only satisfies null", func(t *testing.T) {
		msgs := Validate(map[string]any{"v": nil}, map[string]any{
			"properties": map[string]any{"v": map[string]any{"type": "string"}},
		})
		assert.Equal(t, []string{"v is not a string"}, msgs)

		msgs = Validate(map[string]any{"v": nil}, map[string]any{
			"properties": map[string]any{"v": map[string]any{"type": "null"}},
		})
		assert.Empty(t, msgs)
	})

	t.Run("empty schema accepts anything", func(t *testing.T) {
		assert.Empty(t, Validate(map[string]any{"x": 1}, nil))
	})
}

func TestValidateMessageOrder(t *testing.T) {
	s := decode(t, applySchema)
	body := decode(t, `{
	  "last_name": "Yamamoto", "birthdate": "18-05-1976",
	  "email_address": 12, "plan": "gold",
	  "tags": ["a", "a", "b"], "address": {"postal_code": "100"}
	}`)

	assert.Equal(t, []string{
		"first_name is missing",
		"address.postal_code minLength is 7",
		`birthdate pattern is ^\d{4}-\d{2}-\d{2}$`,
		"email_address is not a string",
		"last_name maxLength is 5",
		"plan is not allowed enum value, input: gold, definition: [basic, premium]",
		"tags must have at most 2 items.",
		"tags must not contain duplicate items.",
	}, Validate(body, s))
}

func TestValidateUncompilablePatternRejects(t *testing.T) {
	s := map[string]any{
		"properties": map[string]any{
			"pin": map[string]any{"type": "string", "pattern": `^(?=.*\d)[a-z0-9]{4}$`},
		},
	}
	assert.Equal(t, []string{`pin pattern is ^(?=.*\d)[a-z0-9]{4}$`}, Validate(map[string]any{"pin": "!!!!!!!!"}, s))
	assert.Equal(t, []string{`pin pattern is ^(?=.*\d)[a-z0-9]{4}$`}, Validate(map[string]any{"pin": "ab12"}, s))
}

func TestCheckPattern(t *testing.T) {
	require.NoError(t, CheckPattern(`^\p{Han}+$`))
	require.Error(t, CheckPattern(`(`))
}
