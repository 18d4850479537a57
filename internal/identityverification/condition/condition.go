// Package condition evaluates JSONPath predicates used by transitions and
// response resolvers.
package condition

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"

	"idverify/internal/identityverification/mapping"
	"idverify/internal/identityverification/models"
)

// MaxDepth bounds allOf/anyOf nesting.
const MaxDepth = 10

// Operations.
const (
	OpEq        = "eq"
	OpEquals    = "equals"
	OpNe        = "ne"
	OpNotEquals = "not_equals"
	OpGt        = "gt"
	OpGte       = "gte"
	OpLt        = "lt"
	OpLte       = "lte"
	OpIn        = "in"
	OpNin       = "nin"
	OpExists    = "exists"
	OpMissing   = "missing"
	OpContains  = "contains"
	OpRegex     = "regex"
	OpAllOf     = "allOf"
	OpAnyOf     = "anyOf"
)

var (
	ErrUnknownOperation = errors.New("unknown condition operation")
	ErrTooDeep          = errors.New("condition nesting exceeds maximum depth")
	ErrNotComparable    = errors.New("values are not comparable")
)

var regexCache sync.Map // string -> *regexp.Regexp

// Evaluate reports whether c holds against doc.
func Evaluate(c models.Condition, doc any) (bool, error) {
	return evaluate(c, doc, 0)
}

// All reports whether every condition holds. An empty list is true.
func All(conds []models.Condition, doc any) (bool, error) {
	return all(conds, doc, 0)
}

// Any reports whether at least one condition holds. An empty list is false.
func Any(conds []models.Condition, doc any) (bool, error) {
	return anyOf(conds, doc, 0)
}

// Known reports whether op is a supported operation.
func Known(op string) bool {
	switch op {
	case OpEq, OpEquals, OpNe, OpNotEquals, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin,
		OpExists, OpMissing, OpContains, OpRegex, OpAllOf, OpAnyOf:
		return true
	}
	return false
}

func all(conds []models.Condition, doc any, depth int) (bool, error) {
	for _, c := range conds {
		ok, err := evaluate(c, doc, depth)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func anyOf(conds []models.Condition, doc any, depth int) (bool, error) {
	var firstErr error
	for _, c := range conds {
		ok, err := evaluate(c, doc, depth)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}

func evaluate(c models.Condition, doc any, depth int) (bool, error) {
	if depth > MaxDepth {
		return false, ErrTooDeep
	}

	switch c.Operation {
	case OpAllOf, OpAnyOf:
		nested, err := Nested(c.Value)
		if err != nil {
			return false, err
		}
		if c.Operation == OpAllOf {
			return all(nested, doc, depth+1)
		}
		return anyOf(nested, doc, depth+1)
	}

	actual, found, err := mapping.Get(doc, c.Path)
	if err != nil {
		return false, err
	}
	if found {
		actual = coerce(actual, c.Type)
	}

	switch c.Operation {
	case OpExists:
		return found && actual != nil, nil
	case OpMissing:
		return !found || actual == nil, nil
	case OpEq, OpEquals:
		return found && equal(actual, c.Value), nil
	case OpNe, OpNotEquals:
		return !found || !equal(actual, c.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		if !found {
			return false, nil
		}
		cmp, err := compare(actual, c.Value)
		if err != nil {
			return false, err
		}
		switch c.Operation {
		case OpGt:
			return cmp > 0, nil
		case OpGte:
			return cmp >= 0, nil
		case OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case OpIn:
		return found && member(actual, c.Value), nil
	case OpNin:
		return !found || !member(actual, c.Value), nil
	case OpContains:
		return found && contains(actual, c.Value), nil
	case OpRegex:
		if !found {
			return false, nil
		}
		pattern, ok := c.Value.(string)
		if !ok {
			return false, fmt.Errorf("regex value must be a string, got %T", c.Value)
		}
		re, err := compileRegex(pattern)
		if err != nil {
			return false, err
		}
		s, ok := actual.(string)
		if !ok {
			return false, nil
		}
		return re.MatchString(s), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperation, c.Operation)
	}
}

// Nested decodes the value of an allOf/anyOf condition.
func Nested(value any) ([]models.Condition, error) {
	var out []models.Condition
	switch v := value.(type) {
	case []models.Condition:
		return v, nil
	case nil:
		return nil, nil
	default:
		if err := mapstructure.Decode(v, &out); err != nil {
			return nil, fmt.Errorf("decode nested conditions: %w", err)
		}
	}
	return out, nil
}

func compileRegex(pattern string) (*regexp.Regexp, error) {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile regex %q: %w", pattern, err)
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// coerce applies the declared value type to string inputs, so "10" compares
// as a number when the condition says integer.
func coerce(v any, typ string) any {
	s, isString := v.(string)
	switch typ {
	case "integer", "number":
		if isString {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f
			}
		}
	case "boolean":
		if isString {
			if b, err := strconv.ParseBool(s); err == nil {
				return b
			}
		}
	case "string":
		if !isString && v != nil {
			if _, isObj := v.(map[string]any); !isObj {
				return mapping.Stringify(v)
			}
		}
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func compare(a, b any) (int, error) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, fmt.Errorf("%w: %T and %T", ErrNotComparable, a, b)
		}
		switch {
		case fa < fb:
			return -1, nil
		case fa > fb:
			return 1, nil
		}
		return 0, nil
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), nil
	}
	return 0, fmt.Errorf("%w: %T and %T", ErrNotComparable, a, b)
}

func member(actual, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return equal(actual, list)
	}
	for _, item := range items {
		if equal(actual, item) {
			return true
		}
	}
	return false
}

func contains(actual, want any) bool {
	switch a := actual.(type) {
	case string:
		s, ok := want.(string)
		return ok && strings.Contains(a, s)
	case []any:
		for _, item := range a {
			if equal(item, want) {
				return true
			}
		}
	case map[string]any:
		key, ok := want.(string)
		if !ok {
			return false
		}
		_, present := a[key]
		return present
	}
	return false
}
