package mapping

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"idverify/internal/identityverification/models"
)

// RootTarget merges an object result into the destination root.
const RootTarget = "*"

// Mapper applies mapping rules. The zero value is usable and discards warnings.
type Mapper struct {
	logger *slog.Logger
}

// New constructs a Mapper that reports skipped rules to logger.
func New(logger *slog.Logger) *Mapper {
	return &Mapper{logger: logger}
}

// Apply evaluates rules against source and writes into dest, returning dest.
// A nil dest starts a fresh object. Rules whose source path selects nothing
// write nothing.
func (m *Mapper) Apply(ctx context.Context, rules []models.MappingRule, source any, dest map[string]any) map[string]any {
	if dest == nil {
		dest = map[string]any{}
	}
	for _, rule := range rules {
		value, ok := m.resolve(ctx, rule, source)
		if !ok {
			continue
		}
		if rule.To == RootTarget {
			obj, isObj := value.(map[string]any)
			if !isObj {
				m.warn(ctx, "mapping to root skipped: value is not an object", "from", rule.From)
				continue
			}
			for k, v := range obj {
				dest[k] = deepCopy(v)
			}
			continue
		}
		if err := Set(dest, rule.To, deepCopy(value)); err != nil {
			m.warn(ctx, "mapping rule skipped", "to", rule.To, "error", err.Error())
		}
	}
	return dest
}

func (m *Mapper) resolve(ctx context.Context, rule models.MappingRule, source any) (any, bool) {
	if rule.StaticValue != nil {
		return rule.StaticValue, true
	}
	if rule.From == "" {
		return nil, false
	}
	v, ok, err := Get(source, rule.From)
	if err != nil {
		m.warn(ctx, "mapping rule skipped", "from", rule.From, "error", err.Error())
		return nil, false
	}
	return v, ok
}

// ToHeaders maps rules into a flat header set.
func (m *Mapper) ToHeaders(ctx context.Context, rules []models.MappingRule, source any) map[string]string {
	return flatten(m.Apply(ctx, rules, source, nil))
}

// ToPathParams maps rules into URL placeholder values.
func (m *Mapper) ToPathParams(ctx context.Context, rules []models.MappingRule, source any) map[string]string {
	return flatten(m.Apply(ctx, rules, source, nil))
}

// ToQuery maps rules into query parameters. List values repeat the key.
func (m *Mapper) ToQuery(ctx context.Context, rules []models.MappingRule, source any) url.Values {
	mapped := m.Apply(ctx, rules, source, nil)
	q := url.Values{}
	for k, v := range mapped {
		if list, ok := v.([]any); ok {
			for _, item := range list {
				q.Add(k, Stringify(item))
			}
			continue
		}
		q.Set(k, Stringify(v))
	}
	return q
}

// Interpolate replaces {name} placeholders in raw with escaped params.
func Interpolate(raw string, params map[string]string) string {
	if len(params) == 0 || !strings.Contains(raw, "{") {
		return raw
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", url.PathEscape(v))
	}
	return strings.NewReplacer(pairs...).Replace(raw)
}

func flatten(mapped map[string]any) map[string]string {
	out := make(map[string]string, len(mapped))
	for k, v := range mapped {
		out[k] = Stringify(v)
	}
	return out
}

func (m *Mapper) warn(ctx context.Context, msg string, args ...any) {
	if m == nil || m.logger == nil {
		return
	}
	m.logger.WarnContext(ctx, msg, args...)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

func marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
