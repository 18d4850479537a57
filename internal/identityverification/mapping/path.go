// Package mapping copies values between JSON documents using JSONPath
// sources and dotted destination paths.
package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ohler55/ojg/jp"
)

var exprCache sync.Map // string -> jp.Expr

// Parse compiles a JSONPath expression, caching the result.
func Parse(path string) (jp.Expr, error) {
	if cached, ok := exprCache.Load(path); ok {
		return cached.(jp.Expr), nil
	}
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("parse json path %q: %w", path, err)
	}
	exprCache.Store(path, expr)
	return expr, nil
}

// Get reads path from doc. Paths that can select several nodes (wildcards,
// filters, unions, descent) return every match as a list; plain paths return
// the single node. The bool is false when nothing matched.
func Get(doc any, path string) (any, bool, error) {
	expr, err := Parse(path)
	if err != nil {
		return nil, false, err
	}
	results := expr.Get(doc)
	if isMulti(expr) {
		if len(results) == 0 {
			return nil, false, nil
		}
		return results, true, nil
	}
	if len(results) == 0 {
		return nil, false, nil
	}
	return results[0], true, nil
}

// Lookup is Get with parse errors folded into "not found".
func Lookup(doc any, path string) (any, bool) {
	v, ok, err := Get(doc, path)
	if err != nil {
		return nil, false
	}
	return v, ok
}

func isMulti(expr jp.Expr) bool {
	for _, frag := range expr {
		switch frag.(type) {
		case jp.Wildcard, jp.Descent, jp.Union, jp.Slice, *jp.Filter:
			return true
		}
	}
	return false
}

// Set writes v at a dotted destination path, creating intermediate objects.
// A leading "$." is accepted. Segments are literal keys, so "Content-Type" or
// "x.y" style header names need no escaping beyond the dot separator.
func Set(dest map[string]any, path string, v any) error {
	segments := splitDestination(path)
	if len(segments) == 0 {
		return fmt.Errorf("empty destination path %q", path)
	}
	cur := dest
	for _, seg := range segments[:len(segments)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segments[len(segments)-1]] = v
	return nil
}

func splitDestination(path string) []string {
	p := strings.TrimPrefix(path, "$")
	p = strings.TrimPrefix(p, ".")
	if p == "" {
		return nil
	}
	var out []string
	for _, seg := range strings.Split(p, ".") {
		seg = strings.Trim(seg, "[]'\"")
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// Stringify renders a mapped value for headers, query strings and URL paths.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
