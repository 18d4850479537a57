// Package schema validates request bodies against the JSON-schema subset that
// verification configurations declare.
//
// Messages are deterministic. For each object, missing required fields come
// first in the order of the schema's required list; property violations
// follow in lexical order of the property name, and a property's own
// violations are reported before those of its nested fields. Schemas are
// decoded as plain maps, so declaration order of properties is not
// available.
package schema

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

var patternCache sync.Map // string -> *regexp.Regexp

// Validate checks body against schema and returns every violation in the
// order described in the package documentation. A nil or empty schema
// accepts anything.
func Validate(body map[string]any, schema map[string]any) []string {
	if len(schema) == 0 {
		return nil
	}
	v := &validator{}
	v.object("", body, schema)
	return v.messages
}

type validator struct {
	messages []string
}

func (v *validator) add(format string, args ...any) {
	v.messages = append(v.messages, fmt.Sprintf(format, args...))
}

func (v *validator) object(prefix string, obj map[string]any, schema map[string]any) {
	for _, name := range stringList(schema["required"]) {
		if _, ok := obj[name]; !ok {
			v.add("%s is missing", join(prefix, name))
		}
	}

	props, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value, ok := obj[name]
		if !ok {
			continue
		}
		propSchema, _ := props[name].(map[string]any)
		v.value(join(prefix, name), value, propSchema)
	}
}

func (v *validator) value(path string, value any, schema map[string]any) {
	if schema == nil {
		return
	}
	if typ, ok := schema["type"]; ok {
		if name, matched := matchesType(value, typ); !matched {
			v.add("%s is not a %s", path, name)
			return
		}
	}

	if enum, ok := schema["enum"].([]any); ok && !inEnum(value, enum) {
		v.add("%s is not allowed enum value, input: %s, definition: %s", path, format(value), formatList(enum))
	}

	switch t := value.(type) {
	case string:
		v.stringRules(path, t, schema)
	case float64:
		v.numberRules(path, t, schema)
	case []any:
		v.arrayRules(path, t, schema)
	case map[string]any:
		v.object(path, t, schema)
	}
}

func (v *validator) stringRules(path, s string, schema map[string]any) {
	length := utf8.RuneCountInString(s)
	if n, ok := number(schema["minLength"]); ok && float64(length) < n {
		v.add("%s minLength is %s", path, formatNumber(n))
	}
	if n, ok := number(schema["maxLength"]); ok && float64(length) > n {
		v.add("%s maxLength is %s", path, formatNumber(n))
	}
	if pattern, ok := schema["pattern"].(string); ok && pattern != "" {
		// A pattern that does not compile cannot be satisfied.
		re, err := compile(pattern)
		if err != nil || !re.MatchString(s) {
			v.add("%s pattern is %s", path, pattern)
		}
	}
}

func (v *validator) numberRules(path string, f float64, schema map[string]any) {
	if n, ok := number(schema["minimum"]); ok && f < n {
		v.add("%s minimum is %s", path, formatNumber(n))
	}
	if n, ok := number(schema["maximum"]); ok && f > n {
		v.add("%s maximum is %s", path, formatNumber(n))
	}
}

func (v *validator) arrayRules(path string, items []any, schema map[string]any) {
	if n, ok := number(schema["minItems"]); ok && float64(len(items)) < n {
		v.add("%s must have at least %s items.", path, formatNumber(n))
	}
	if n, ok := number(schema["maxItems"]); ok && float64(len(items)) > n {
		v.add("%s must have at most %s items.", path, formatNumber(n))
	}
	if unique, _ := schema["uniqueItems"].(bool); unique && hasDuplicates(items) {
		v.add("%s must not contain duplicate items.", path)
	}
	itemSchema, ok := schema["items"].(map[string]any)
	if !ok {
		return
	}
	for i, item := range items {
		v.value(fmt.Sprintf("%s[%d]", path, i), item, itemSchema)
	}
}

// matchesType accepts a single type name or a list of names.
func matchesType(value any, typ any) (string, bool) {
	switch t := typ.(type) {
	case string:
		return t, isType(value, t)
	case []any:
		names := stringList(t)
		for _, name := range names {
			if isType(value, name) {
				return name, true
			}
		}
		return strings.Join(names, " or "), false
	}
	return "", true
}

func isType(value any, name string) bool {
	switch name {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	case "number":
		_, ok := value.(float64)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "null":
		return value == nil
	}
	return true
}

func inEnum(value any, enum []any) bool {
	for _, candidate := range enum {
		if reflect.DeepEqual(candidate, value) {
			return true
		}
	}
	return false
}

func hasDuplicates(items []any) bool {
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if reflect.DeepEqual(items[i], items[j]) {
				return true
			}
		}
	}
	return false
}

func compile(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

// CheckPattern reports whether pattern compiles.
func CheckPattern(pattern string) error {
	_, err := compile(pattern)
	return err
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func format(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case float64:
		return formatNumber(t)
	default:
		return fmt.Sprint(t)
	}
}

func formatList(items []any) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = format(item)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
